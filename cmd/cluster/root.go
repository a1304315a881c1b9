package cluster

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ValentinKolb/raftstore/cmd/util"
	dbutil "github.com/ValentinKolb/raftstore/lib/db/util"
	"github.com/ValentinKolb/raftstore/lib/store"
	"github.com/ValentinKolb/raftstore/rpc/client"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	rpcStore *client.RPCStore

	// ClusterCommands represents the cluster command group
	ClusterCommands = &cobra.Command{
		Use:               "cluster",
		Short:             "Inspect and change the cluster",
		PersistentPreRunE: setupClusterClient,
	}
	configCmd = &cobra.Command{
		Use:   "config",
		Short: "Read or change the membership of the cluster",
	}
	configGetCmd = &cobra.Command{
		Use:   "get",
		Short: "Prints the current configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			id, servers, res := rpcStore.GetConfiguration()
			if !res.IsOK() {
				return res.Err()
			}
			fmt.Printf("configuration %d\n", id)
			for _, s := range servers {
				fmt.Printf("  %d\t%s\n", s.ID, s.Address)
			}
			return nil
		},
	}
	configSetCmd = &cobra.Command{
		Use:   "set [old-id] [server...]",
		Short: "Replaces the configuration old-id with the given servers",
		Long: `Replaces the configuration old-id with the given servers.
Every server is given as NAME=ADDRESS, where NAME is either the numeric replica id
or the replica name used for --replica-id of the serve command.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			oldID, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid configuration id %s: %v", args[0], err)
			}
			servers, err := parseServers(args[1:])
			if err != nil {
				return err
			}

			res := rpcStore.SetConfiguration(oldID, servers)
			switch res.Status {
			case store.ConfigOK:
				fmt.Println("OK")
				return nil
			case store.ConfigBad:
				for _, s := range res.BadServers {
					fmt.Printf("  bad server %s\n", s)
				}
			}
			return fmt.Errorf("%s: %s", res.Status, res.Error)
		},
	}
	infoCmd = &cobra.Command{
		Use:   "info [host]",
		Short: "Prints the identity and shards of a server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			info, res := rpcStore.GetServerInfo(args[0], controlTimeout())
			if !res.IsOK() {
				return res.Err()
			}
			return printJSON(info)
		},
	}
	statsCmd = &cobra.Command{
		Use:   "stats [host]",
		Short: "Prints the statistics of a server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			stats, res := rpcStore.GetServerStats(args[0], controlTimeout())
			if !res.IsOK() {
				return res.Err()
			}
			if viper.GetBool("prometheus") {
				fmt.Print(stats.Metrics)
				return nil
			}
			stats.Metrics = ""
			return printJSON(stats)
		},
	}
)

func init() {
	cobra.OnFinalize(closeClusterClient)

	util.SetupRPCClientFlags(ClusterCommands)

	statsCmd.Flags().Bool("prometheus", false, util.WrapString("Print only the store metrics of the server in the prometheus format"))

	configCmd.AddCommand(configGetCmd)
	configCmd.AddCommand(configSetCmd)
	ClusterCommands.AddCommand(configCmd)
	ClusterCommands.AddCommand(infoCmd)
	ClusterCommands.AddCommand(statsCmd)
}

// setupClusterClient initializes the RPC store client
func setupClusterClient(cmd *cobra.Command, _ []string) error {
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}

	var err error
	rpcStore, err = util.NewClient()
	return err
}

// closeClusterClient closes the session of the client. It runs as a cobra finalizer,
// so failed commands close their session as well.
func closeClusterClient() {
	if rpcStore == nil {
		return
	}
	if err := rpcStore.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to close client: %v\n", err)
	}
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// controlTimeout is the timeout of info and stats requests, 0 = no deadline
func controlTimeout() time.Duration {
	return time.Duration(viper.GetInt("timeout")) * time.Second
}

// parseServers parses NAME=ADDRESS arguments
func parseServers(args []string) ([]store.Server, error) {
	servers := make([]store.Server, 0, len(args))
	for _, arg := range args {
		name, addr, ok := strings.Cut(arg, "=")
		if !ok || name == "" || addr == "" {
			return nil, fmt.Errorf("invalid server %s (expected NAME=ADDRESS)", arg)
		}
		id, err := strconv.ParseUint(name, 10, 64)
		if err != nil {
			id = uint64(dbutil.HashString(name, 0))
		}
		servers = append(servers, store.Server{ID: id, Address: addr})
	}
	return servers, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
