package store

import (
	"fmt"
	"os"

	"github.com/ValentinKolb/raftstore/cmd/util"
	"github.com/ValentinKolb/raftstore/rpc/client"
	"github.com/spf13/cobra"
)

var (
	rpcStore *client.RPCStore

	// StoreCommands represents the store command group
	StoreCommands = &cobra.Command{
		Use:               "store",
		Short:             "Perform key-value store operations",
		PersistentPreRunE: setupStoreClient,
	}
)

func init() {
	cobra.OnFinalize(closeStoreClient)

	// Add common RPC flags to the store command
	util.SetupRPCClientFlags(StoreCommands)

	// Add subcommands
	StoreCommands.AddCommand(getCmd)
	StoreCommands.AddCommand(setCmd)
	StoreCommands.AddCommand(setpCmd)
	StoreCommands.AddCommand(rmCmd)
	StoreCommands.AddCommand(rngCmd)
	StoreCommands.AddCommand(seCmd)
	StoreCommands.AddCommand(statCmd)
	StoreCommands.AddCommand(perfTestCmd)
}

// setupStoreClient initializes the RPC store client
func setupStoreClient(cmd *cobra.Command, _ []string) error {
	// Bind command flags to viper
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}

	var err error
	rpcStore, err = util.NewClient()
	return err
}

// closeStoreClient closes the session of the client. It runs as a cobra finalizer,
// so failed commands close their session as well.
func closeStoreClient() {
	if rpcStore == nil {
		return
	}
	if err := rpcStore.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to close client: %v\n", err)
	}
}
