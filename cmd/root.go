package cmd

import (
	"fmt"
	"os"

	"github.com/ValentinKolb/raftstore/cmd/backup"
	"github.com/ValentinKolb/raftstore/cmd/cluster"
	"github.com/ValentinKolb/raftstore/cmd/gateway"
	"github.com/ValentinKolb/raftstore/cmd/serve"
	"github.com/ValentinKolb/raftstore/cmd/store"
	"github.com/ValentinKolb/raftstore/cmd/util"
	"github.com/spf13/cobra"
)

const (
	Version = "0.3.0"
)

var (

	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "raftstore",
		Short: "replicated key-value store",
		Long: fmt.Sprintf(`raftstore (v%s)

A replicated key-value store built on RAFT. Clients keep an exactly-once
session with the cluster, follow leader hints and retry until their
deadline passes.`, Version),
		SilenceUsage: true,
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of raftstore",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("raftstore v%s\n", Version)
		},
	}
)

func init() {
	// load .env files and environment variables
	cobra.OnInitialize(util.InitConfig)

	// Add Commands
	RootCmd.AddCommand(serve.ServeCmd)
	RootCmd.AddCommand(gateway.GatewayCmd)
	RootCmd.AddCommand(store.StoreCommands)
	RootCmd.AddCommand(cluster.ClusterCommands)
	RootCmd.AddCommand(backup.BackupCommands)
	RootCmd.AddCommand(versionCmd)

	// Add Flags
	key := "serializer"
	RootCmd.PersistentFlags().String(key, "binary", util.WrapString("serializer to use (json, gob, binary)"))
	key = "transport"
	RootCmd.PersistentFlags().String(key, "tcp", util.WrapString("transport to use (http, tcp, unix)"))
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
