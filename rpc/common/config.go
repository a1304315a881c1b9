package common

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/lni/dragonboat/v4/config"
)

// --------------------------------------------------------------------------
// helper functions for to interface with Dragonboat (for the server util)
// --------------------------------------------------------------------------

// Dragonboat uses RTT (Round Trip Time) to determine the timing of elections and heartbeats.
// These default values are selected according to the RAFT Paper
const (
	electionRTTFactor  = 10
	heartbeatRTTFactor = 1
)

// ToDragonboatConfig converts the ServerConfig to Dragonboat Config
func (c *ServerConfig) ToDragonboatConfig(shardId uint64) config.Config {
	return config.Config{
		ReplicaID:          c.ReplicaID,
		ShardID:            shardId,
		ElectionRTT:        electionRTTFactor,  // = c.RTTMillisecond * 10
		HeartbeatRTT:       heartbeatRTTFactor, // = c.RTTMillisecond * 1
		CheckQuorum:        true,
		SnapshotEntries:    c.SnapshotEntries,
		CompactionOverhead: c.CompactionOverhead,
		MaxInMemLogSize:    0,
	}
}

// ToNodeHostConfig creates a NodeHostConfig for Dragonboat
func (c *ServerConfig) ToNodeHostConfig() config.NodeHostConfig {
	return config.NodeHostConfig{
		WALDir:         c.DataDir,
		NodeHostDir:    c.DataDir,
		RTTMillisecond: c.RTTMillisecond,
		RaftAddress:    c.ClusterMembers[c.ReplicaID],
	}
}

// --------------------------------------------------------------------------
// Transport configuration
// --------------------------------------------------------------------------

// SocketConf holds socket options shared by the tcp and unix transports
type SocketConf struct {
	WriteBufferSize int // in bytes, 0 = OS default
	ReadBufferSize  int // in bytes, 0 = OS default
}

// TCPConf holds options only used by the tcp transport
type TCPConf struct {
	TCPNoDelay      bool
	TCPKeepAliveSec int // 0 = disabled
	TCPLingerSec    int // < 0 = OS default
}

// ServerTransportConfig configures the server side of a transport
type ServerTransportConfig struct {
	Endpoint          string // listen address (host:port or socket path)
	WorkersPerConn    int    // concurrent requests per connection
	MaxFrameSizeBytes int    // buffer size of a single request frame
	SocketConf
	TCPConf
}

// ClientTransportConfig configures the client side of a transport
type ClientTransportConfig struct {
	Endpoints              []string
	ConnectionsPerEndpoint int
	SocketConf
	TCPConf
}

// --------------------------------------------------------------------------
// RPC server configuration struct
// --------------------------------------------------------------------------

type ServerShardType string

const (
	ShardTypeLocalStore  ServerShardType = "local store"
	ShardTypeRemoteStore ServerShardType = "remote store"
)

// Storage engines of the shards
const (
	EngineMemory = "memory"
	EnginePebble = "pebble"
)

type ServerShard struct {
	// ShardID is the ID of the shard
	ShardID uint64
	// Type is the store implementation of the shard
	Type ServerShardType
}

// ServerConfig holds all configuration parameters for the RAFT cluster.
type ServerConfig struct {
	// shards served by this server, local and remote shards can be mixed
	Shards []ServerShard

	// Storage engine (memory, pebble)
	Engine string

	// Dragonboat parameters
	RTTMillisecond     uint64
	SnapshotEntries    uint64
	CompactionOverhead uint64
	DataDir            string
	ReplicaID          uint64
	ClusterMembers     map[uint64]string // replica id -> raft address
	Join               bool              // join an existing cluster instead of bootstrapping one
	ClientEndpoints    map[uint64]string // replica id -> rpc endpoint, used as leader hint

	// ClusterID is the cluster UUID, empty = read from (or create in) the data dir
	ClusterID string

	// store parameters
	TimeoutSecond        int64
	SessionTimeoutSecond int64

	// RPC transport
	Transport ServerTransportConfig

	// Logging configuration
	LogLevel string
}

// HasRemoteShard checks if the configuration contains any remote shards
func (c *ServerConfig) HasRemoteShard() bool {
	for _, shard := range c.Shards {
		if shard.Type == ShardTypeRemoteStore {
			return true
		}
	}
	return false
}

// Timeout returns the store timeout as a duration
func (c *ServerConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecond) * time.Second
}

// SessionTimeout returns the session timeout as a duration (0 = store default)
func (c *ServerConfig) SessionTimeout() time.Duration {
	return time.Duration(c.SessionTimeoutSecond) * time.Second
}

// String returns a formatted string representation of the configuration
func (c *ServerConfig) String() string {
	var sb strings.Builder

	// Create helper functions for consistent formatting
	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	// RPC settings
	addSection("RPC Server")
	addField("Endpoint", c.Transport.Endpoint)
	addField("Workers Per Conn", strconv.Itoa(c.Transport.WorkersPerConn))
	addField("Timeout", fmt.Sprintf("%d sec", c.TimeoutSecond))
	addField("Cluster ID", c.ClusterID)

	// Logging configuration
	addSection("Logging")
	addField("Log Level", c.LogLevel)

	// Store
	addSection("Store")
	addField("Engine", c.Engine)
	addField("Session Timeout", fmt.Sprintf("%d sec", c.SessionTimeoutSecond))

	// Shards
	addSection("Shards")
	for _, shard := range c.Shards {
		addField(strconv.FormatUint(shard.ShardID, 10), string(shard.Type))
	}

	if c.HasRemoteShard() {
		// Node Identity
		addSection("Node Identity")
		addField("RAFT Address", c.ClusterMembers[c.ReplicaID])
		addField("Node ID", strconv.FormatUint(c.ReplicaID, 10))
		addField("Join", fmt.Sprintf("%t", c.Join))

		// RAFT parameters
		addSection("RAFT Parameters")
		addField("Round Trip Time (ms)", fmt.Sprintf("%d ms", c.RTTMillisecond))
		addField("Election RTT (ms)", fmt.Sprintf("%d", c.RTTMillisecond*electionRTTFactor))
		addField("Heartbeat RTT (ms)", fmt.Sprintf("%d", c.RTTMillisecond*heartbeatRTTFactor))
		addField("Check Quorum", fmt.Sprintf("%t", true))
		addField("Snapshot Entries", fmt.Sprintf("%d", c.SnapshotEntries))
		addField("Compaction Overhead", fmt.Sprintf("%d", c.CompactionOverhead))

		// Storage
		addSection("Storage")
		addField("Data Directory", c.DataDir)

		// Cluster members
		addSection("Cluster")
		sb.WriteString("  Initial Cluster Members:\n")

		// Sort keys for consistent output
		var keys []uint64
		for k := range c.ClusterMembers {
			keys = append(keys, k)
		}
		sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

		for _, k := range keys {
			if ep, ok := c.ClientEndpoints[k]; ok {
				sb.WriteString(fmt.Sprintf("    Node %d: %s (client %s)\n", k, c.ClusterMembers[k], ep))
			} else {
				sb.WriteString(fmt.Sprintf("    Node %d: %s\n", k, c.ClusterMembers[k]))
			}
		}
	}
	return sb.String()
}

// --------------------------------------------------------------------------
// RPC client configuration struct
// --------------------------------------------------------------------------

// Client defaults
const (
	DefaultKeepAliveInterval   = 60 * time.Second
	DefaultSessionCloseTimeout = 1000 * time.Millisecond
)

type ClientConfig struct {
	// TimeoutSecond is the per-operation timeout, 0 = no deadline
	TimeoutSecond int
	// KeepAliveSecond is the idle time after which the session sends a keep-alive, 0 = default
	KeepAliveSecond int
	// SessionCloseMillis bounds the CloseSession request sent on exit, 0 = default
	SessionCloseMillis int
	// ClusterID pins the cluster UUID, empty = pin the first UUID seen
	ClusterID string
	Transport ClientTransportConfig
}

// Timeout returns the per-operation timeout as a duration
func (c *ClientConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecond) * time.Second
}

// KeepAliveInterval returns the keep-alive interval, falling back to the default
func (c *ClientConfig) KeepAliveInterval() time.Duration {
	if c.KeepAliveSecond <= 0 {
		return DefaultKeepAliveInterval
	}
	return time.Duration(c.KeepAliveSecond) * time.Second
}

// SessionCloseTimeout returns the CloseSession timeout, falling back to the default
func (c *ClientConfig) SessionCloseTimeout() time.Duration {
	if c.SessionCloseMillis <= 0 {
		return DefaultSessionCloseTimeout
	}
	return time.Duration(c.SessionCloseMillis) * time.Millisecond
}

// String returns a formatted string representation of the client configuration
func (c *ClientConfig) String() string {
	var sb strings.Builder

	// Create helper functions for consistent formatting
	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	// General Client Settings
	addSection("Client Configuration")
	addField("Timeout", fmt.Sprintf("%d sec", c.TimeoutSecond))
	addField("Keep Alive", c.KeepAliveInterval().String())
	addField("Session Close", c.SessionCloseTimeout().String())
	if c.ClusterID != "" {
		addField("Cluster ID", c.ClusterID)
	}
	addField("Connections Per Endpoint", strconv.Itoa(max(1, c.Transport.ConnectionsPerEndpoint)))

	// Endpoints
	addSection("Endpoints")
	for i, endpoint := range c.Transport.Endpoints {
		addField(strconv.Itoa(i), endpoint)
	}

	return sb.String()
}
