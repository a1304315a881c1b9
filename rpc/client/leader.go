package client

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/ValentinKolb/raftstore/lib/store"
	"github.com/ValentinKolb/raftstore/rpc/common"
	"github.com/ValentinKolb/raftstore/rpc/serializer"
	"github.com/ValentinKolb/raftstore/rpc/transport"
	gometrics "github.com/rcrowley/go-metrics"
)

// CallStatus is the outcome of a dispatcher call
type CallStatus int

const (
	// CallOK means a server handled the request, the response carries the store result.
	CallOK CallStatus = iota
	// CallTimeout means the deadline passed. The request may or may not have been applied.
	CallTimeout
	// CallInvalidRequest means the server did not understand the request. The handle is failed.
	CallInvalidRequest
	// CallFailed means the handle is permanently failed, see the returned error.
	CallFailed
)

func (s CallStatus) String() string {
	switch s {
	case CallOK:
		return "OK"
	case CallTimeout:
		return "TIMEOUT"
	case CallInvalidRequest:
		return "INVALID_REQUEST"
	case CallFailed:
		return "FAILED"
	default:
		return fmt.Sprintf("Unknown(%d)", int(s))
	}
}

// Retry parameters of the dispatcher
const (
	initialBackoff = 50 * time.Millisecond
	maxBackoff     = 2 * time.Second

	// at most sessionCreationLimit new connection attempts per sessionCreationWindow
	sessionCreationLimit  = 5
	sessionCreationWindow = 100 * time.Millisecond
)

// --------------------------------------------------------------------------
// Session creation backoff
// --------------------------------------------------------------------------

// creationBackoff limits how often the client starts talking to a server it has
// no confirmed leader belief for.
type creationBackoff struct {
	mu     sync.Mutex
	starts []time.Time // start times of the last attempts, oldest first
	limit  int
	window time.Duration
}

func newCreationBackoff(limit int, window time.Duration) *creationBackoff {
	return &creationBackoff{limit: limit, window: window}
}

// wait blocks until a new attempt may start and records it.
// It returns ctx.Err() if the deadline passes first.
func (b *creationBackoff) wait(ctx context.Context) error {
	for {
		b.mu.Lock()
		now := time.Now()
		if len(b.starts) < b.limit {
			b.starts = append(b.starts, now)
			b.mu.Unlock()
			return nil
		}
		next := b.starts[0].Add(b.window)
		if !now.Before(next) {
			b.starts = append(b.starts[1:], now)
			b.mu.Unlock()
			return nil
		}
		b.mu.Unlock()

		timer := time.NewTimer(next.Sub(now))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// --------------------------------------------------------------------------
// Leader RPC
// --------------------------------------------------------------------------

// leaderRPC executes requests on the leader of a shard. It follows NOT_LEADER hints,
// retries transport failures until the deadline and pins the cluster UUID.
type leaderRPC struct {
	shardId    uint64
	endpoints  []string
	transport  transport.IRPCClientTransport
	serializer serializer.IRPCSerializer
	backoff    *creationBackoff
	timer      gometrics.Timer

	mu        sync.Mutex
	leader    string // believed leader endpoint, empty if unknown
	next      int    // round robin position in endpoints
	clusterID string // pinned cluster UUID, empty until the first reply
	fatal     error  // set once the handle is permanently failed
}

func newLeaderRPC(
	shardId uint64,
	config common.ClientConfig,
	transport transport.IRPCClientTransport,
	serializer serializer.IRPCSerializer,
	registry gometrics.Registry,
) *leaderRPC {
	return &leaderRPC{
		shardId:    shardId,
		endpoints:  config.Transport.Endpoints,
		transport:  transport,
		serializer: serializer,
		backoff:    newCreationBackoff(sessionCreationLimit, sessionCreationWindow),
		timer:      gometrics.GetOrRegisterTimer("raftstore.client.call", registry),
		clusterID:  config.ClusterID,
	}
}

// err returns the fatal error of the handle, nil while it is healthy
func (l *leaderRPC) err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.fatal
}

// fail moves the handle into the permanently failed state. The first error wins.
func (l *leaderRPC) fail(err error) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.fatal == nil {
		l.fatal = err
		if !errors.Is(err, ErrClosed) {
			Logger.Errorf("client handle failed permanently: %v", err)
		}
	}
	return l.fatal
}

// pick returns the endpoint for the next attempt and whether it is a confirmed leader
func (l *leaderRPC) pick() (string, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.leader != "" {
		return l.leader, true
	}
	endpoint := l.endpoints[l.next%len(l.endpoints)]
	l.next++
	return endpoint, false
}

// setLeader updates the leader belief. An empty endpoint clears it.
func (l *leaderRPC) setLeader(endpoint string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.leader = endpoint
}

// clearLeader drops the belief if it still points at endpoint
func (l *leaderRPC) clearLeader(endpoint string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.leader == endpoint {
		l.leader = ""
	}
}

// checkCluster pins the first cluster UUID and rejects every other one
func (l *leaderRPC) checkCluster(endpoint, clusterID string) error {
	l.mu.Lock()
	pinned := l.clusterID
	if pinned == "" && clusterID != "" {
		l.clusterID = clusterID
		pinned = clusterID
		Logger.Infof("pinned cluster %s (first reply from %s)", clusterID, endpoint)
	}
	l.mu.Unlock()

	if clusterID != pinned {
		return l.fail(fmt.Errorf("%w: %s answered for cluster %q, expected %q",
			ErrClusterMismatch, endpoint, clusterID, pinned))
	}
	return nil
}

// sleep waits for the backoff of the given attempt (exponential with +-10% jitter).
// It returns false if the deadline passed first.
func sleep(ctx context.Context, attempt int) bool {
	backoff := initialBackoff << min(attempt, 10)
	if backoff > maxBackoff {
		backoff = maxBackoff
	}
	jitter := time.Duration(float64(backoff) * (0.9 + 0.2*rand.Float64()))

	timer := time.NewTimer(jitter)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// call executes req on the leader. It returns CallOK with the response, CallTimeout once ctx is done,
// or CallInvalidRequest / CallFailed together with a fatal error.
func (l *leaderRPC) call(ctx context.Context, req *common.Message) (*common.Message, CallStatus, error) {
	if err := l.err(); err != nil {
		return nil, CallFailed, err
	}

	start := time.Now()
	defer l.timer.UpdateSince(start)

	reqBytes, err := l.serializer.Serialize(*req)
	if err != nil {
		return nil, CallInvalidRequest, l.fail(fmt.Errorf("%w: failed to serialize %s: %v", ErrInvalidRequest, req.MsgType, err))
	}

	for attempt := 0; ; attempt++ {
		if err := l.err(); err != nil {
			return nil, CallFailed, err
		}
		if ctx.Err() != nil {
			return nil, CallTimeout, nil
		}

		endpoint, confirmed := l.pick()
		if !confirmed {
			if err := l.backoff.wait(ctx); err != nil {
				return nil, CallTimeout, nil
			}
		}

		respBytes, err := l.transport.Send(ctx, endpoint, l.shardId, reqBytes)
		if err != nil {
			if ctx.Err() != nil {
				return nil, CallTimeout, nil
			}
			Logger.Debugf("%s to %s failed: %v", req.MsgType, endpoint, err)
			l.clearLeader(endpoint)
			if !sleep(ctx, attempt) {
				return nil, CallTimeout, nil
			}
			continue
		}

		resp := &common.Message{}
		if err := l.serializer.Deserialize(respBytes, resp); err != nil {
			return nil, CallInvalidRequest, l.fail(fmt.Errorf("%w: undecodable reply from %s: %v", ErrInvalidRequest, endpoint, err))
		}
		if err := l.checkCluster(endpoint, resp.ClusterID); err != nil {
			return nil, CallFailed, err
		}

		switch resp.RPCStatus {
		case common.RPCStatusOK:
			if resp.MsgType != req.MsgType {
				return nil, CallInvalidRequest, l.fail(fmt.Errorf("%w: unexpected message type %s, expected %s",
					ErrInvalidRequest, resp.MsgType, req.MsgType))
			}
			l.setLeader(endpoint)
			if store.StatusCode(resp.Status) == store.StatusSessionExpired &&
				(req.MsgType == common.MsgTWrite || req.MsgType == common.MsgTRemove) {
				return resp, CallFailed, l.fail(fmt.Errorf("%w: %s", ErrSessionExpired, resp.Err))
			}
			return resp, CallOK, nil

		case common.RPCStatusNotLeader:
			Logger.Debugf("%s is not the leader, hint %q", endpoint, resp.LeaderHint)
			l.setLeader(resp.LeaderHint)

		case common.RPCStatusInvalidRequest:
			return nil, CallInvalidRequest, l.fail(fmt.Errorf("%w: %s: %s", ErrInvalidRequest, req.MsgType, resp.Err))

		default:
			Logger.Debugf("%s unavailable for %s: %s", endpoint, req.MsgType, resp.Err)
			l.clearLeader(endpoint)
		}

		if !sleep(ctx, attempt) {
			return nil, CallTimeout, nil
		}
	}
}

// direct sends a control request to host, bypassing leader selection.
// Transport failures are retried with the session creation backoff until ctx is done.
func (l *leaderRPC) direct(ctx context.Context, host string, req *common.Message) (*common.Message, CallStatus, error) {
	if err := l.err(); err != nil {
		return nil, CallFailed, err
	}

	reqBytes, err := l.serializer.Serialize(*req)
	if err != nil {
		return nil, CallInvalidRequest, l.fail(fmt.Errorf("%w: failed to serialize %s: %v", ErrInvalidRequest, req.MsgType, err))
	}

	for {
		if err := l.backoff.wait(ctx); err != nil {
			return nil, CallTimeout, nil
		}

		respBytes, err := l.transport.Send(ctx, host, l.shardId, reqBytes)
		if err != nil {
			if ctx.Err() != nil {
				return nil, CallTimeout, nil
			}
			Logger.Debugf("%s to %s failed: %v", req.MsgType, host, err)
			continue
		}

		resp := &common.Message{}
		if err := l.serializer.Deserialize(respBytes, resp); err != nil {
			return nil, CallInvalidRequest, l.fail(fmt.Errorf("%w: undecodable reply from %s: %v", ErrInvalidRequest, host, err))
		}
		if err := l.checkCluster(host, resp.ClusterID); err != nil {
			return nil, CallFailed, err
		}

		switch resp.RPCStatus {
		case common.RPCStatusOK:
			return resp, CallOK, nil
		case common.RPCStatusInvalidRequest:
			return nil, CallInvalidRequest, l.fail(fmt.Errorf("%w: %s: %s", ErrInvalidRequest, req.MsgType, resp.Err))
		default:
			Logger.Debugf("%s unavailable for %s: %s", host, req.MsgType, resp.Err)
		}
	}
}
