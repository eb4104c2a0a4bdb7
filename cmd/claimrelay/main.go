// Command claimrelay runs the claim exchange process: it terminates
// peer wire connections, admits and countersigns balance claims, and
// triggers on-chain settlement once a channel's outbound debits cross
// its configured threshold.
package main

func main() {
	Execute()
}
