package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/signal"
	"path/filepath"
	"runtime"
	"sort"
	"sync"
	"syscall"
	"time"

	"github.com/ValentinKolb/raftstore/lib/db"
	"github.com/ValentinKolb/raftstore/lib/db/engines/memory"
	"github.com/ValentinKolb/raftstore/lib/db/engines/pebble"
	"github.com/ValentinKolb/raftstore/lib/store"
	"github.com/ValentinKolb/raftstore/lib/store/dstore"
	"github.com/ValentinKolb/raftstore/lib/store/lstore"
	"github.com/ValentinKolb/raftstore/rpc/common"
	"github.com/ValentinKolb/raftstore/rpc/serializer"
	"github.com/ValentinKolb/raftstore/rpc/transport"
	"github.com/VictoriaMetrics/metrics"
	"github.com/hashicorp/go-multierror"
	"github.com/lni/dragonboat/v4"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
)

var Logger = logger.GetLogger("rpc")

// serverShard is a struct that represents a shard in the RPC server
// It contains the shard it encapsulates and the adapter that handles requests for it
type serverShard struct {
	Store   store.IShard
	Adapter IRPCServerAdapter
}

// RPCServer routes requests from a transport to its shards
type RPCServer struct {
	config     common.ServerConfig
	transport  transport.IRPCServerTransport
	serializer serializer.IRPCSerializer
	shards     *xsync.MapOf[uint64, serverShard]

	clusterID string
	nodeHost  *dragonboat.NodeHost
	startTime time.Time

	metrics     *metrics.Set
	numRequests *metrics.Counter

	closeOnce sync.Once
}

// NewRPCServer creates a new RPC server
// It takes a config, transport and serializer as parameters
//
// Usage:
//
//	s := server.NewRPCServer(
//		config,
//		tcp.NewTCPServerTransport(),
//		serializer.NewBinarySerializer(),
//	)
//
//	if err := s.Serve(); err != nil {
//		panic(err)
//	}
func NewRPCServer(
	config common.ServerConfig,
	transport transport.IRPCServerTransport,
	serializer serializer.IRPCSerializer,
) *RPCServer {
	// https://github.com/golang/go/issues/17393
	if runtime.GOOS == "darwin" {
		signal.Ignore(syscall.Signal(0xd))
	}

	set := metrics.NewSet()

	Logger.Infof("Created RPC Server")
	Logger.Infof("%s", config.String())

	return &RPCServer{
		config:      config,
		transport:   transport,
		serializer:  serializer,
		shards:      xsync.NewMapOf[uint64, serverShard](),
		startTime:   time.Now(),
		metrics:     set,
		numRequests: set.NewCounter("raftstore_server_requests_total"),
	}
}

// Metrics returns the metric set of the server and its shards
func (s *RPCServer) Metrics() *metrics.Set {
	return s.metrics
}

// ClusterID returns the cluster UUID (empty before Serve)
func (s *RPCServer) ClusterID() string {
	return s.clusterID
}

// Serve starts the RPC server
// This function will also initialize the shards and start the transport layer.
// It blocks until Close is called.
func (s *RPCServer) Serve() error {
	if err := s.setup(); err != nil {
		return err
	}
	return s.transport.Listen(s.config)
}

// Close stops the transport, all shards and the raft node host
func (s *RPCServer) Close() error {
	var result error
	s.closeOnce.Do(func() {
		if err := s.transport.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("transport: %w", err))
		}
		s.shards.Range(func(id uint64, shard serverShard) bool {
			if err := shard.Store.Close(); err != nil {
				result = multierror.Append(result, fmt.Errorf("shard %d: %w", id, err))
			}
			return true
		})
		if s.nodeHost != nil {
			s.nodeHost.Close()
		}
	})
	return result
}

// --------------------------------------------------------------------------
// Setup
// --------------------------------------------------------------------------

// dbFactory returns the database factory of a shard according to the configured engine
func (s *RPCServer) dbFactory(shardID uint64) (store.DBFactory, error) {
	switch s.config.Engine {
	case "", common.EngineMemory:
		return func() db.KVDB { return memory.NewMemoryDB(nil) }, nil
	case common.EnginePebble:
		if s.config.DataDir == "" {
			return nil, fmt.Errorf("engine %s needs a data directory", common.EnginePebble)
		}
		engine, err := pebble.Open(pebble.Options{Dir: PebbleDir(s.config.DataDir, shardID)})
		if err != nil {
			return nil, err
		}
		// the engine is opened once, every replica start reuses it
		return func() db.KVDB { return engine }, nil
	default:
		return nil, fmt.Errorf("unknown storage engine: %s", s.config.Engine)
	}
}

// PebbleDir returns the pebble directory of a shard in dataDir
func PebbleDir(dataDir string, shardID uint64) string {
	return filepath.Join(dataDir, "pebble", fmt.Sprintf("shard-%d", shardID))
}

func (s *RPCServer) setup() error {
	// Init logger
	if err := common.InitLoggers(s.config.LogLevel); err != nil {
		return err
	}

	clusterID, err := loadClusterID(s.config.ClusterID, s.config.DataDir)
	if err != nil {
		return err
	}
	s.clusterID = clusterID

	// Create the Dragonboat NodeHost
	if s.config.HasRemoteShard() {
		// Only create the NodeHost if we have remote shards
		s.nodeHost, err = dragonboat.NewNodeHost(s.config.ToNodeHostConfig())
		if err != nil {
			return fmt.Errorf("failed to create node host: %w", err)
		}
	}

	sessionTimeout := s.config.SessionTimeout()

	// CREATE SHARDS

	/*
		Note: A single RPC Server can have any number of remote and or local shards.
		The following loop creates all the shards and stores them for the RPC server.
	*/

	for _, shardConfig := range s.config.Shards {
		factory, err := s.dbFactory(shardConfig.ShardID)
		if err != nil {
			return fmt.Errorf("shard %d: %w", shardConfig.ShardID, err)
		}

		switch shardConfig.Type {
		case common.ShardTypeLocalStore:
			s.shards.Store(shardConfig.ShardID, serverShard{
				Store: lstore.NewLocalShard(shardConfig.ShardID, factory, &lstore.Options{
					SessionTimeout: sessionTimeout,
					Metrics:        s.metrics,
				}),
				Adapter: NewIStoreServerAdapter(),
			})
			Logger.Infof("created local store for shard %d", shardConfig.ShardID)

		case common.ShardTypeRemoteStore:
			members := s.config.ClusterMembers
			if s.config.Join {
				members = nil
			}

			// Start Raft for the shard
			err := s.nodeHost.StartConcurrentReplica(
				members,
				s.config.Join,
				dstore.CreateStateMachineFactory(factory, &dstore.Options{
					SessionTimeout: sessionTimeout,
					Metrics:        s.metrics,
				}),
				s.config.ToDragonboatConfig(shardConfig.ShardID),
			)
			if err != nil {
				return fmt.Errorf("failed to start shard %d: %w", shardConfig.ShardID, err)
			}

			s.shards.Store(shardConfig.ShardID, serverShard{
				Store:   dstore.NewDistributedShard(s.nodeHost, shardConfig.ShardID, s.config.ReplicaID, s.config.Timeout()),
				Adapter: NewIStoreServerAdapter(),
			})
			Logger.Infof("started replica %d of shard %d", s.config.ReplicaID, shardConfig.ShardID)

		default:
			return fmt.Errorf("invalid shard type: %s", shardConfig.Type)
		}
	}

	Logger.Infof("raftstore setup completed successfully (cluster %s)", s.clusterID)

	// Configure the transport layer
	s.transport.RegisterHandler(s.handle)

	return nil
}

// --------------------------------------------------------------------------
// Request handling
// --------------------------------------------------------------------------

// handle is the transport handler, every response carries the cluster id
func (s *RPCServer) handle(shardId uint64, req []byte) []byte {
	s.numRequests.Inc()

	var msg common.Message
	var resp *common.Message

	if err := s.serializer.Deserialize(req, &msg); err != nil {
		resp = common.NewInvalidRequestResponse(fmt.Sprintf("failed to deserialize request: %s", err))
	} else if msg.MsgType.IsControl() {
		resp = s.handleControl(&msg)
	} else if shard, ok := s.shards.Load(shardId); !ok {
		resp = common.NewInvalidRequestResponse(fmt.Sprintf("shard %d not found", shardId))
	} else {
		resp = s.handleShard(shard, &msg)
	}
	resp.ClusterID = s.clusterID

	val, err := s.serializer.Serialize(*resp)
	if err != nil {
		Logger.Errorf("failed to serialize %s response: %v", resp.MsgType, err)
		val, _ = s.serializer.Serialize(common.Message{
			MsgType:   common.MsgTError,
			RPCStatus: common.RPCStatusUnavailable,
			ClusterID: s.clusterID,
			Err:       fmt.Sprintf("failed to serialize response: %s", err),
		})
	}
	return val
}

// handleShard passes a state machine request to the shard, which must be led by this server
func (s *RPCServer) handleShard(shard serverShard, msg *common.Message) *common.Message {
	if resp := s.checkLeader(shard, msg.MsgType); resp != nil {
		return resp
	}

	ctx := context.Background()
	if timeout := s.config.Timeout(); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	resp, err := shard.Adapter.Handle(ctx, msg, shard.Store)
	switch {
	case err == nil:
		return resp
	case errors.Is(err, store.ErrNotLeader):
		// leadership moved while the request was in flight
		if resp := s.checkLeader(shard, msg.MsgType); resp != nil {
			return resp
		}
		return common.NewNotLeaderResponse(msg.MsgType, "")
	default:
		Logger.Debugf("%s failed: %v", msg.MsgType, err)
		return common.NewUnavailableResponse(msg.MsgType, err.Error())
	}
}

// checkLeader returns a NOT_LEADER or UNAVAILABLE response if this server does not lead the shard
func (s *RPCServer) checkLeader(shard serverShard, msgType common.MessageType) *common.Message {
	leaderID, local, ok := shard.Store.Leader()
	switch {
	case !ok:
		return common.NewUnavailableResponse(msgType, "no leader elected")
	case !local:
		return common.NewNotLeaderResponse(msgType, s.config.ClientEndpoints[leaderID])
	default:
		return nil
	}
}

// handleControl answers requests every server can serve
func (s *RPCServer) handleControl(msg *common.Message) *common.Message {
	switch msg.MsgType {
	case common.MsgTServerInfo:
		return common.NewMetaResponse(msg.MsgType, common.ServerInfo{
			ServerID:  s.config.ReplicaID,
			Addresses: s.config.Transport.Endpoint,
			ClusterID: s.clusterID,
			Shards:    s.shardInfos(),
		})
	case common.MsgTServerStats:
		var buf bytes.Buffer
		s.metrics.WritePrometheus(&buf)
		return common.NewMetaResponse(msg.MsgType, common.ServerStats{
			ServerID:      s.config.ReplicaID,
			StartTime:     s.startTime.UnixNano(),
			UptimeSeconds: time.Since(s.startTime).Seconds(),
			Requests:      s.numRequests.Get(),
			Shards:        s.shardInfos(),
			Metrics:       buf.String(),
		})
	default:
		return common.NewInvalidRequestResponse(fmt.Sprintf("unsupported control message: %s", msg.MsgType))
	}
}

// shardInfos returns the info of all shards, sorted by shard id
func (s *RPCServer) shardInfos() []store.ShardInfo {
	infos := make([]store.ShardInfo, 0, s.shards.Size())
	s.shards.Range(func(_ uint64, shard serverShard) bool {
		infos = append(infos, shard.Store.Info())
		return true
	})
	sort.Slice(infos, func(i, j int) bool { return infos[i].ShardID < infos[j].ShardID })
	return infos
}
