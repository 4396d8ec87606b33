package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "cowave",
		Short: "Realtime collaboration relay",
		Long: `Cowave relays document and presence updates between the clients
of a collaborative session.

Each room runs as an isolated actor: clients connect over WebSocket,
exchange a sync handshake, and from then on every document update and
awareness change is fanned out to the room's other sessions. Rooms can
be gated by a passcode and persist their document snapshots to a
pluggable store (memory, bolt, redis, or s3).`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		serveCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}
