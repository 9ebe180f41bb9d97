package cmd

import (
	"fmt"
	"os"

	"github.com/ValentinKolb/dGate/cmd/serve"
	"github.com/ValentinKolb/dGate/cmd/stmt"
	"github.com/ValentinKolb/dGate/cmd/token"
	"github.com/ValentinKolb/dGate/cmd/util"
	"github.com/ValentinKolb/dGate/rpc/server"
	"github.com/spf13/cobra"
)

const (
	Version = "0.3.0"
)

var (

	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "dgate",
		Short: "statement gateway for monitoring storage",
		Long: fmt.Sprintf(`dGate (v%s)

A storage gateway that lets monitoring agents and clients register
categories, prepare statements once and run them by handle, with
paged query results, ordered asynchronous writes and single use
command channel tokens.`, Version),
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of dGate",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("dGate v%s\n", Version)
		},
	}
)

func init() {
	server.Version = Version

	// Add Commands
	RootCmd.AddCommand(serve.ServeCmd)
	RootCmd.AddCommand(stmt.StatementCommands)
	RootCmd.AddCommand(token.TokenCommands)
	RootCmd.AddCommand(util.HashPasswordCmd)
	RootCmd.AddCommand(versionCmd)

	// Add Flags
	key := "serializer"
	RootCmd.PersistentFlags().String(key, "json", util.WrapString("serializer to use (json, gob)"))
	key = "transport"
	RootCmd.PersistentFlags().String(key, "http", util.WrapString("transport to use (http)"))
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
