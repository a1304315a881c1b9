package client

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/raftstore/lib/store"
	"github.com/ValentinKolb/raftstore/rpc/common"
	"github.com/ValentinKolb/raftstore/rpc/serializer"
	"github.com/ValentinKolb/raftstore/rpc/transport"
	"github.com/hashicorp/go-multierror"
	gometrics "github.com/rcrowley/go-metrics"
)

// NewRPCStore creates a new RPC store
// The function takes a shard ID, a config, a transport and a serializer as parameters.
// No request is sent before the first operation, the session is opened lazily.
func NewRPCStore(
	shardId uint64,
	config common.ClientConfig,
	transport transport.IRPCClientTransport,
	serializer serializer.IRPCSerializer,
) (*RPCStore, error) {
	if len(config.Transport.Endpoints) == 0 {
		return nil, fmt.Errorf("no endpoints configured")
	}

	// Connect the transport
	if err := transport.Connect(config); err != nil {
		return nil, err
	}

	registry := gometrics.NewRegistry()
	rpc := newLeaderRPC(shardId, config, transport, serializer, registry)

	s := &RPCStore{
		transport: transport,
		registry:  registry,
		rpc:       rpc,
		session:   newSession(rpc, config.KeepAliveInterval(), config.SessionCloseTimeout()),
	}
	s.timeout.Store(int64(config.Timeout()))
	return s, nil
}

// RPCStore is a store.IStore talking to a replicated cluster.
// It is safe for concurrent use.
type RPCStore struct {
	transport transport.IRPCClientTransport
	registry  gometrics.Registry
	rpc       *leaderRPC
	session   *session
	timeout   atomic.Int64 // time.Duration, 0 = no deadline

	closeOnce sync.Once
	closeErr  error
}

var _ store.IStore = (*RPCStore)(nil)

// Err returns the error that permanently failed the handle, nil while it is healthy
func (s *RPCStore) Err() error {
	return s.rpc.err()
}

// Metrics returns the registry holding the client call timer
func (s *RPCStore) Metrics() gometrics.Registry {
	return s.registry
}

// Close ends the session and closes the transport
func (s *RPCStore) Close() error {
	s.closeOnce.Do(func() {
		s.session.exit()
		s.rpc.fail(ErrClosed)
		if err := s.transport.Close(); err != nil {
			s.closeErr = multierror.Append(s.closeErr, fmt.Errorf("transport: %w", err))
		}
	})
	return s.closeErr
}

// ctx returns the deadline of an operation, snapshotting the current timeout
func (s *RPCStore) ctx() (context.Context, context.CancelFunc) {
	return deadline(time.Duration(s.timeout.Load()))
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

// tagged executes a write-class request. The tag is released once the outcome is
// definitive. After a timeout it stays outstanding, the request may still be applied.
func (s *RPCStore) tagged(newReq func(tag store.ExactlyOnceTag) *common.Message) store.Result {
	ctx, cancel := s.ctx()
	defer cancel()

	tag, res := s.session.acquire(ctx)
	if !res.IsOK() {
		return res
	}

	resp, status, err := s.rpc.call(ctx, newReq(tag))
	switch status {
	case CallOK:
		s.session.release(tag)
		return resp.Result()
	case CallTimeout:
		return store.TimeoutResult()
	default:
		s.session.release(tag)
		return fatalResult(err)
	}
}

// query executes a read-class request
func (s *RPCStore) query(req *common.Message) (*common.Message, store.Result) {
	ctx, cancel := s.ctx()
	defer cancel()

	resp, status, err := s.rpc.call(ctx, req)
	switch status {
	case CallOK:
		return resp, resp.Result()
	case CallTimeout:
		return nil, store.TimeoutResult()
	default:
		return nil, fatalResult(err)
	}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see store/interface.go)
// --------------------------------------------------------------------------

func (s *RPCStore) Write(path string, contents []byte) store.Result {
	var invalid []string
	if path == "" {
		invalid = append(invalid, "path")
	}
	if len(contents) == 0 {
		invalid = append(invalid, "contents")
	}
	if len(invalid) > 0 {
		return invalidParam(invalid...)
	}
	return s.tagged(func(tag store.ExactlyOnceTag) *common.Message {
		return common.NewWriteRequest(tag, path, contents)
	})
}

func (s *RPCStore) Read(path string) ([]byte, store.Result) {
	if path == "" {
		return nil, invalidParam("path")
	}
	resp, res := s.query(common.NewReadRequest(path))
	if !res.IsOK() {
		return nil, res
	}
	return resp.Value, res
}

func (s *RPCStore) Remove(path string) store.Result {
	if path == "" {
		return invalidParam("path")
	}
	return s.tagged(func(tag store.ExactlyOnceTag) *common.Message {
		return common.NewRemoveRequest(tag, path)
	})
}

func (s *RPCStore) Range(start, end string, limit uint64) ([]string, store.Result) {
	resp, res := s.query(common.NewRangeRequest(start, end, limit))
	if !res.IsOK() {
		return nil, res
	}
	return resp.Keys, res
}

func (s *RPCStore) Search(pattern string, limit uint64) ([]string, store.Result) {
	resp, res := s.query(common.NewSearchRequest(pattern, limit))
	if !res.IsOK() {
		return nil, res
	}
	return resp.Keys, res
}

func (s *RPCStore) Stat(client string) (string, store.Result) {
	resp, res := s.query(common.NewStatRequest(client))
	if !res.IsOK() {
		return "", res
	}
	return string(resp.Value), res
}

func (s *RPCStore) SetTimeout(timeout time.Duration) {
	s.timeout.Store(int64(timeout))
}

func (s *RPCStore) GetTimeout() time.Duration {
	return time.Duration(s.timeout.Load())
}
