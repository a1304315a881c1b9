package gateway

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/ValentinKolb/raftstore/cmd/util"
	"github.com/ValentinKolb/raftstore/rpc/gateway"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// GatewayCmd serves the HTTP API on top of a store client
var GatewayCmd = &cobra.Command{
	Use:   "gateway",
	Short: "Start an HTTP gateway in front of a raftstore cluster",
	Long: `Start an HTTP gateway that forwards requests to a raftstore cluster.
Keys are namespaced per database (GET /raftstore/api/{db}/v1/get?key=...).
Prometheus metrics of the gateway are available under /metrics.`,
	RunE: run,
}

func init() {
	util.SetupRPCClientFlags(GatewayCmd)

	key := "listen"
	GatewayCmd.Flags().String(key, "0.0.0.0:8000", util.WrapString("The address on which the gateway will listen"))
}

func run(cmd *cobra.Command, _ []string) error {
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}

	rpcStore, err := util.NewClient()
	if err != nil {
		return err
	}
	defer rpcStore.Close()

	gw := gateway.New(rpcStore, nil)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(stop)

	errCh := make(chan error, 1)
	go func() { errCh <- gw.ListenAndServe(viper.GetString("listen")) }()

	select {
	case err := <-errCh:
		return err
	case sig := <-stop:
		gateway.Logger.Infof("received %s, shutting down", sig)
		return gw.Close()
	}
}
