package main

import (
	"net/http"
	"strings"

	"github.com/socialwire/claimbridge/internal/wirebridge"
)

// newWireMux exposes wirebridge.Bridge.ServeHTTP, which takes an explicit
// peerID rather than reading it off the request itself, under
// /ws/{peerID}.
func newWireMux(bridge *wirebridge.Bridge) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws/", func(w http.ResponseWriter, r *http.Request) {
		peerID := strings.TrimPrefix(r.URL.Path, "/ws/")
		if peerID == "" {
			http.Error(w, "missing peer id", http.StatusBadRequest)
			return
		}
		bridge.ServeHTTP(peerID, w, r)
	})
	return mux
}

func listenAndServeMux(addr string, mux *http.ServeMux) error {
	return http.ListenAndServe(addr, mux)
}
