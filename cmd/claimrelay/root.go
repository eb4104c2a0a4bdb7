package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	dotenvPath   string
	peersPath    string
	listenOverride string
)

var rootCmd = &cobra.Command{
	Use:   "claimrelay",
	Short: "Payment-channel claim exchange relay",
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd.Context())
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dotenvPath, "env-file", "", "path to a .env file (optional, overrides the default lookup)")
	rootCmd.PersistentFlags().StringVar(&peersPath, "peers", "peers.json", "path to the peer wallet / channel bootstrap file")
	rootCmd.PersistentFlags().StringVar(&listenOverride, "listen", "", "override HTTP_LISTEN_ADDR")

	viper.BindPFlag("HTTP_LISTEN_ADDR", rootCmd.PersistentFlags().Lookup("listen"))
}

// Execute runs the root command, exiting non-zero on failure, mirroring
// the teacher pack's cobra entrypoint pattern.
func Execute() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "claimrelay: %v\n", err)
		os.Exit(1)
	}
}
