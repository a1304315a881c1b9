package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ValentinKolb/raftstore/lib/db"
)

// --------------------------------------------------------------------------
// Interface Definition
// --------------------------------------------------------------------------

// DBFactory is a function type that creates a new db used by the store.
// This is used to abstract the creation of the db from the store implementation.
type DBFactory func() db.KVDB

// IStore is the interface applications use to talk to a replicated store.
// Every operation returns a Result. Write and Remove are applied exactly once,
// even if the request has to be retried.
type IStore interface {
	// Write inserts or updates the entry at path. Empty paths and empty contents are rejected
	// with INVALID_ARGUMENT before anything is sent.
	Write(path string, contents []byte) Result
	// Read returns the contents of path. A missing path yields LOOKUP_ERROR.
	Read(path string) ([]byte, Result)
	// Remove deletes the entry at path. Removing a missing path is not an error.
	Remove(path string) Result
	// Range returns the keys in [start, end) in store order. An empty end is unbounded,
	// a limit of 0 returns all keys.
	Range(start, end string, limit uint64) ([]string, Result)
	// Search returns the keys containing pattern, in store order, at most limit (0 = all).
	Search(pattern string, limit uint64) ([]string, Result)
	// Stat returns a diagnostic summary. Its format is not a stable contract.
	Stat(client string) (string, Result)
	// SetTimeout sets the deadline for every following operation. Zero means no deadline.
	SetTimeout(timeout time.Duration)
	// GetTimeout returns the current per-operation timeout.
	GetTimeout() time.Duration
}

// IShard is the server side view of a single replicated state machine.
// The RPC server only talks to shards through this interface.
type IShard interface {
	// Propose appends cmd to the replicated log and returns the response of the state machine.
	// ErrNotLeader is returned if the local replica can not accept proposals.
	Propose(ctx context.Context, cmd Command) (Response, error)
	// Read runs a linearizable query on the state machine.
	Read(ctx context.Context, q Query) (Response, error)
	// Leader returns the replica id of the current leader and whether it is the local replica.
	// ok is false while no leader is known.
	Leader() (leaderID uint64, local bool, ok bool)
	// Membership returns the current cluster configuration.
	Membership(ctx context.Context) (Configuration, error)
	// ChangeMembership replaces the configuration with id oldID by servers.
	ChangeMembership(ctx context.Context, oldID uint64, servers []Server) ConfigurationResult
	// Info returns information about the shard and its database.
	Info() ShardInfo
	// Close releases all resources of the shard.
	Close() error
}

// --------------------------------------------------------------------------
// Shard Errors
// --------------------------------------------------------------------------

var (
	// ErrNotLeader is returned by shards that can only serve requests on the leader.
	ErrNotLeader = errors.New("not leader")
	// ErrUnavailable is returned when the shard can not serve the request right now (no quorum, shutting down).
	ErrUnavailable = errors.New("shard unavailable")
)

// --------------------------------------------------------------------------
// Cluster Configuration
// --------------------------------------------------------------------------

// Server is a member of the cluster
type Server struct {
	ID      uint64 `json:"id"`
	Address string `json:"address"`
}

func (s Server) String() string {
	return fmt.Sprintf("%d=%s", s.ID, s.Address)
}

// Configuration is a versioned cluster membership
type Configuration struct {
	ID      uint64   `json:"id"`
	Servers []Server `json:"servers"`
}

// ConfigStatus is the outcome of a membership change
type ConfigStatus uint8

const (
	ConfigOK      ConfigStatus = iota // The new configuration is in place.
	ConfigChanged                     // The configuration id did not match, nothing was changed.
	ConfigBad                         // Some servers could not join, see BadServers.
)

func (s ConfigStatus) String() string {
	switch s {
	case ConfigOK:
		return "OK"
	case ConfigChanged:
		return "CHANGED"
	case ConfigBad:
		return "BAD"
	default:
		return fmt.Sprintf("Unknown(%d)", s)
	}
}

// Error messages of failed membership changes
const (
	ConfigChangedMessage = "configuration changed: "
	ConfigBadMessage     = "servers slow or unavailable"
)

// ConfigurationResult is the outcome of a membership change
type ConfigurationResult struct {
	Status     ConfigStatus `json:"status"`
	BadServers []Server     `json:"bad_servers,omitempty"`
	Error      string       `json:"error,omitempty"`
}

// ShardInfo describes a shard for server info requests
type ShardInfo struct {
	ShardID   uint64          `json:"shard_id"`
	ReplicaID uint64          `json:"replica_id"`
	Type      string          `json:"type"`
	LeaderID  uint64          `json:"leader_id"`
	IsLeader  bool            `json:"is_leader"`
	Database  db.DatabaseInfo `json:"database"`
}
