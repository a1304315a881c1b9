package serve

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	cmdUtil "github.com/ValentinKolb/raftstore/cmd/util"
	"github.com/ValentinKolb/raftstore/lib/db/util"
	"github.com/ValentinKolb/raftstore/rpc/common"
	"github.com/ValentinKolb/raftstore/rpc/server"
	"github.com/VictoriaMetrics/metrics"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	serveCmdConfig = &common.ServerConfig{}
	ServeCmd       = &cobra.Command{
		Use:     "serve",
		Short:   "Start the raftstore server",
		Long:    `Start the raftstore server with the specified configuration. The configuration can be set via command line flags or environment variables. The format of the environment variables is RAFTSTORE_<flag> (e.g. RAFTSTORE_TIMEOUT=15)`,
		PreRunE: processConfig,
		RunE:    run,
	}
)

func init() {
	// add flags
	key := "shards"
	ServeCmd.PersistentFlags().String(key, "100=lstore", cmdUtil.WrapString("Comma-separated list of shards to serve. Format: ID=TYPE where TYPE is one of: dstore (replicated with raft), lstore (local, not replicated)"))

	key = "engine"
	ServeCmd.PersistentFlags().String(key, common.EngineMemory, cmdUtil.WrapString("Storage engine of the shards (memory, pebble). pebble keeps its data below data-dir"))

	key = "rtt-millisecond"
	ServeCmd.PersistentFlags().Int(key, 100, cmdUtil.WrapString("(dstore) RTTMillisecond defines the average Round Trip Time (RTT) in milliseconds between two NodeHost instances. \nOther raft configuration parameters (ElectionRTT=value*10, HeartbeatRTT=value*1) are derived from this value"))

	key = "snapshot-entries"
	ServeCmd.PersistentFlags().Int(key, 10, cmdUtil.WrapString("(dstore) SnapshotEntries defines how often the state machine should be snapshotted automatically. It is defined in terms of the number of applied Raft log entries. SnapshotEntries can be set to 0 to disable such automatic snapshotting (not recommended)"))

	key = "compaction-overhead"
	ServeCmd.PersistentFlags().Int(key, 5, cmdUtil.WrapString("(dstore) CompactionOverhead defines the number of log entries retained after a snapshot. Recommended value is about 1/2 of SnapshotEntries"))

	key = "data-dir"
	ServeCmd.PersistentFlags().String(key, "data", cmdUtil.WrapString("DataDir is the directory used for the raft log, snapshots, the pebble engine and the cluster UUID"))

	key = "replica-id"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("(dstore) ReplicaID is the unique identifier for this NodeHost instance (e.g. 'node-1')"))

	key = "cluster-members"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("(dstore) ClusterMembers is a comma-separated list of NodeHost addresses in the format 'node-1=localhost:63001,node-2=localhost:63002,...'"))

	key = "client-endpoints"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("(dstore) Comma-separated list of the client endpoints of the cluster members in the format 'node-1=localhost:8080,...'. Used as leader hint for clients"))

	key = "join"
	ServeCmd.PersistentFlags().Bool(key, false, cmdUtil.WrapString("(dstore) Join an existing cluster instead of bootstrapping a new one. The replica has to be added to the configuration first"))

	key = "cluster-id"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("UUID of the cluster. If empty, the UUID is read from the data dir or created"))

	key = "timeout"
	ServeCmd.PersistentFlags().Int64(key, 5, cmdUtil.WrapString("(dstore) Timeout of raft proposals and reads in seconds"))

	key = "session-timeout"
	ServeCmd.PersistentFlags().Int64(key, 0, cmdUtil.WrapString("Idle time in seconds after which a client session expires (0 = one hour)"))

	key = "endpoint"
	ServeCmd.PersistentFlags().String(key, "0.0.0.0:8080", cmdUtil.WrapString("The address on which the API will listen (e.g. localhost:8080, /tmp/raftstore.sock, ...)"))

	key = "workers-per-conn"
	ServeCmd.PersistentFlags().Int(key, 16, cmdUtil.WrapString("Concurrent requests per connection (ignored for http)"))

	key = "max-frame-size"
	ServeCmd.PersistentFlags().Int(key, 64, cmdUtil.WrapString("Size of the request frame buffer in KB (ignored for http)"))

	key = "transport-write-buffer"
	ServeCmd.PersistentFlags().Int(key, 512, cmdUtil.WrapString("The size of the write buffer for the transport (in KB, ignored for http)"))

	key = "transport-read-buffer"
	ServeCmd.PersistentFlags().Int(key, 512, cmdUtil.WrapString("The size of the read buffer for the transport (in KB, ignored for http)"))

	key = "transport-tcp-nodelay"
	ServeCmd.PersistentFlags().Bool(key, true, cmdUtil.WrapString("Whether to enable TCP_NODELAY for the transport (only for tcp)"))

	key = "transport-tcp-keepalive"
	ServeCmd.PersistentFlags().Int(key, 0, cmdUtil.WrapString("The keepalive interval for the transport (in seconds, only for tcp)"))

	key = "transport-tcp-linger"
	ServeCmd.PersistentFlags().Int(key, 0, cmdUtil.WrapString("The linger time for the transport (in seconds, only for tcp)"))

	key = "metrics-endpoint"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("If set, the server metrics are exposed in the prometheus format on this address (e.g. localhost:9100)"))

	key = "log-level"
	ServeCmd.PersistentFlags().String(key, "info", cmdUtil.WrapString("LogLevel is the level at which logs will be output (debug, info, warn, error)"))
}

// processConfig reads the configuration from the command line flags and environment variables and converts them to the server configuration
func processConfig(cmd *cobra.Command, _ []string) error {
	// bind the flags to viper
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	// parse shards
	serveCmdConfig.Shards = []common.ServerShard{}
	for _, shardConfig := range cmdUtil.SplitList(viper.GetString("shards")) {
		id, shardType, err := splitPair(shardConfig)
		if err != nil {
			return fmt.Errorf("invalid shard format: %s (expected ID=TYPE)", shardConfig)
		}

		// Parse shard ID
		shardID, err := strconv.ParseUint(id, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid shard ID %s: %v", id, err)
		}

		// Parse shard type
		var serverShardType common.ServerShardType
		switch shardType {
		case "dstore":
			serverShardType = common.ShardTypeRemoteStore
		case "lstore":
			serverShardType = common.ShardTypeLocalStore
		default:
			return fmt.Errorf("invalid shard type: %s (expected one of: dstore, lstore)", shardType)
		}

		serveCmdConfig.Shards = append(serveCmdConfig.Shards, common.ServerShard{
			ShardID: shardID,
			Type:    serverShardType,
		})
	}

	// read the configuration from the command line flags and environment variables
	serveCmdConfig.Engine = viper.GetString("engine")
	serveCmdConfig.RTTMillisecond = viper.GetUint64("rtt-millisecond")
	serveCmdConfig.SnapshotEntries = viper.GetUint64("snapshot-entries")
	serveCmdConfig.CompactionOverhead = viper.GetUint64("compaction-overhead")
	serveCmdConfig.DataDir = viper.GetString("data-dir")
	serveCmdConfig.Join = viper.GetBool("join")
	serveCmdConfig.ClusterID = viper.GetString("cluster-id")
	serveCmdConfig.TimeoutSecond = viper.GetInt64("timeout")
	serveCmdConfig.SessionTimeoutSecond = viper.GetInt64("session-timeout")
	serveCmdConfig.LogLevel = viper.GetString("log-level")
	serveCmdConfig.Transport = common.ServerTransportConfig{
		Endpoint:          viper.GetString("endpoint"),
		WorkersPerConn:    viper.GetInt("workers-per-conn"),
		MaxFrameSizeBytes: viper.GetInt("max-frame-size") * 1024,
		SocketConf: common.SocketConf{
			WriteBufferSize: viper.GetInt("transport-write-buffer") * 1024,
			ReadBufferSize:  viper.GetInt("transport-read-buffer") * 1024,
		},
		TCPConf: common.TCPConf{
			TCPKeepAliveSec: viper.GetInt("transport-tcp-keepalive"),
			TCPLingerSec:    viper.GetInt("transport-tcp-linger"),
			TCPNoDelay:      viper.GetBool("transport-tcp-nodelay"),
		},
	}

	// parse replica id
	if id := viper.GetString("replica-id"); id != "" {
		serveCmdConfig.ReplicaID = uint64(util.HashString(id, 0))
	} else if serveCmdConfig.HasRemoteShard() {
		// error only if cluster mode
		return fmt.Errorf("ReplicaId is required for remote shards")
	}

	// parse cluster members
	members, err := parseMembers(viper.GetString("cluster-members"))
	if err != nil {
		return fmt.Errorf("invalid cluster member: %w", err)
	}
	if len(members) == 0 && serveCmdConfig.HasRemoteShard() {
		// error only if cluster mode
		return fmt.Errorf("ClusterMembers is required for remote shards")
	}
	serveCmdConfig.ClusterMembers = members

	// parse client endpoints
	if serveCmdConfig.ClientEndpoints, err = parseMembers(viper.GetString("client-endpoints")); err != nil {
		return fmt.Errorf("invalid client endpoint: %w", err)
	}

	// test if the replica id is in the cluster members (only for cluster mode)
	if _, ok := serveCmdConfig.ClusterMembers[serveCmdConfig.ReplicaID]; !ok && serveCmdConfig.HasRemoteShard() {
		return fmt.Errorf("no address found for replica ID %d in cluster members", serveCmdConfig.ReplicaID)
	}

	return nil
}

// run starts the raftstore server and blocks until it is stopped by a signal
func run(_ *cobra.Command, _ []string) error {
	s, err := cmdUtil.GetSerializer()
	if err != nil {
		return err
	}
	t, err := cmdUtil.GetServerTransport()
	if err != nil {
		return err
	}

	serv := server.NewRPCServer(*serveCmdConfig, t, s)

	if addr := viper.GetString("metrics-endpoint"); addr != "" {
		go serveMetrics(addr, serv.Metrics())
	}

	// stop the server on SIGINT / SIGTERM
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(stop)

	errCh := make(chan error, 1)
	go func() { errCh <- serv.Serve() }()

	select {
	case err := <-errCh:
		_ = serv.Close()
		return err
	case sig := <-stop:
		server.Logger.Infof("received %s, shutting down", sig)
		return serv.Close()
	}
}

// serveMetrics exposes the server metrics and the process metrics on addr
func serveMetrics(addr string, set *metrics.Set) {
	mux := http.NewServeMux()
	mux.HandleFunc("/metrics", func(w http.ResponseWriter, _ *http.Request) {
		set.WritePrometheus(w)
		metrics.WriteProcessMetrics(w)
	})
	server.Logger.Infof("metrics available at http://%s/metrics", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		server.Logger.Errorf("metrics endpoint stopped: %v", err)
	}
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// parseMembers parses 'name=address,...' into a map keyed by the hashed name
func parseMembers(s string) (map[uint64]string, error) {
	entries := cmdUtil.SplitList(s)
	if len(entries) == 0 {
		return nil, nil
	}
	members := make(map[uint64]string, len(entries))
	for _, entry := range entries {
		name, addr, err := splitPair(entry)
		if err != nil {
			return nil, err
		}
		members[uint64(util.HashString(name, 0))] = addr
	}
	return members, nil
}

// splitPair splits 'key=value' and trims both sides
func splitPair(s string) (string, string, error) {
	key, value, ok := strings.Cut(s, "=")
	key, value = strings.TrimSpace(key), strings.TrimSpace(value)
	if !ok || key == "" || value == "" {
		return "", "", fmt.Errorf("%s (expected NAME=VALUE)", s)
	}
	return key, value, nil
}
