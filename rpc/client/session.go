package client

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ValentinKolb/raftstore/lib/db/util"
	"github.com/ValentinKolb/raftstore/lib/store"
	"github.com/ValentinKolb/raftstore/rpc/common"
)

// The keep-alive writes keepAliveValue to a reserved key. The state machine answers
// with CONDITION_NOT_MET but still refreshes the session.
const (
	keepAlivePath  = "[[keepalive-reserved-path]]"
	keepAliveValue = "you shouldn't see this!"
)

// session manages the exactly-once session of a client handle. It hands out the tags of
// write-class requests and keeps the session alive while the handle is idle.
type session struct {
	rpc               *leaderRPC
	keepAliveInterval time.Duration
	closeTimeout      time.Duration

	mu            sync.Mutex
	clientID      uint64                // 0 until the session is open
	nextSeq       uint64                // sequence number of the next tag
	lastSeq       uint64                // most recently issued sequence number
	outstanding   *util.MapHeap[uint64] // issued and not yet released, key == priority
	lastKeepAlive time.Time             // last time the cluster heard from the session
	exiting       bool

	keepAliveCancel context.CancelFunc // cancels the in-flight keep-alive, nil if none
	started         bool               // keep-alive goroutine running
	wake            chan struct{}
	done            chan struct{}
}

func newSession(rpc *leaderRPC, keepAliveInterval, closeTimeout time.Duration) *session {
	return &session{
		rpc:               rpc,
		keepAliveInterval: keepAliveInterval,
		closeTimeout:      closeTimeout,
		nextSeq:           1,
		outstanding:       util.NewMapHeap[uint64](),
		wake:              make(chan struct{}, 1),
		done:              make(chan struct{}),
	}
}

// notify wakes the keep-alive goroutine without blocking
func (s *session) notify() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// acquire returns the tag of the next write-class request. The first call opens the session
// with the deadline of ctx. The result is OK unless the session could not be opened, in which
// case the tag is zero and must not be sent.
func (s *session) acquire(ctx context.Context) (store.ExactlyOnceTag, store.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.exiting {
		return store.ExactlyOnceTag{}, fatalResult(ErrClosed)
	}

	if s.clientID == 0 {
		s.lastKeepAlive = time.Now()
		resp, status, err := s.rpc.call(ctx, common.NewOpenSessionRequest())
		switch status {
		case CallOK:
		case CallTimeout:
			return store.ExactlyOnceTag{}, store.TimeoutResult()
		default:
			return store.ExactlyOnceTag{}, fatalResult(err)
		}
		if res := resp.Result(); !res.IsOK() {
			Logger.Warningf("failed to open client session: %s", res)
			return store.ExactlyOnceTag{}, res
		}
		if resp.ClientID == 0 {
			// a zero id would reopen the session on the next request
			return store.ExactlyOnceTag{}, fatalResult(s.rpc.fail(
				fmt.Errorf("%w: session opened with client id 0", ErrInvalidRequest)))
		}
		s.clientID = resp.ClientID
		Logger.Debugf("opened client session %d", s.clientID)

		s.started = true
		go s.keepAliveLoop()
	}

	return s.nextTagLocked(), store.OK()
}

// nextTagLocked issues the next sequence number. The caller must hold mu.
func (s *session) nextTagLocked() store.ExactlyOnceTag {
	seq := s.nextSeq
	s.nextSeq++
	s.lastSeq = seq
	s.outstanding.Set(seq, seq)

	// every request keeps the session alive
	s.lastKeepAlive = time.Now()
	s.notify()

	return store.ExactlyOnceTag{
		ClientID:         s.clientID,
		SequenceNumber:   seq,
		FirstOutstanding: s.firstOutstandingLocked(),
	}
}

// release marks the request of tag as definitively answered
func (s *session) release(tag store.ExactlyOnceTag) {
	if !tag.Valid() {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outstanding.Remove(tag.SequenceNumber)
}

// firstOutstanding returns the lowest sequence number still waiting for an answer
func (s *session) firstOutstanding() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.firstOutstandingLocked()
}

func (s *session) firstOutstandingLocked() uint64 {
	if it, ok := s.outstanding.Peek(); ok {
		return it.Key
	}
	return s.lastSeq
}

// keepAliveLoop sends a keep-alive whenever the session was idle for keepAliveInterval
func (s *session) keepAliveLoop() {
	defer close(s.done)

	s.mu.Lock()
	defer s.mu.Unlock()

	for !s.exiting {
		if wait := time.Until(s.lastKeepAlive.Add(s.keepAliveInterval)); wait > 0 {
			s.mu.Unlock()
			timer := time.NewTimer(wait)
			select {
			case <-s.wake:
			case <-timer.C:
			}
			timer.Stop()
			s.mu.Lock()
			continue
		}

		// no deadline, exit cancels the call
		ctx, cancel := context.WithCancel(context.Background())
		s.keepAliveCancel = cancel
		tag := s.nextTagLocked()

		s.mu.Unlock()
		resp, status, err := s.rpc.call(ctx, common.NewWriteRequest(tag, keepAlivePath, []byte(keepAliveValue)))
		cancel()
		s.mu.Lock()
		s.keepAliveCancel = nil

		switch status {
		case CallOK:
			s.outstanding.Remove(tag.SequenceNumber)
			if res := resp.Result(); res.Status != store.StatusConditionNotMet {
				Logger.Warningf("unexpected result from keep-alive: %s", res)
			}
		case CallTimeout:
			// canceled by exit
		default:
			Logger.Warningf("keep-alive failed, stopping: %v", err)
			return
		}
	}
}

// exit stops the keep-alive goroutine and closes the session on the cluster
func (s *session) exit() {
	s.mu.Lock()
	if s.exiting {
		s.mu.Unlock()
		return
	}
	s.exiting = true
	clientID := s.clientID
	started := s.started
	if s.keepAliveCancel != nil {
		s.keepAliveCancel()
	}
	s.mu.Unlock()
	s.notify()

	if clientID != 0 {
		ctx, cancel := context.WithTimeout(context.Background(), s.closeTimeout)
		resp, status, err := s.rpc.call(ctx, common.NewCloseSessionRequest(clientID))
		cancel()

		switch status {
		case CallOK:
			if res := resp.Result(); !res.IsOK() {
				Logger.Warningf("closing client session %d: %s", clientID, res)
			}
		case CallTimeout:
			Logger.Warningf("Could not definitively close client session %d within timeout (%s). "+
				"It may remain open until it expires.", clientID, s.closeTimeout)
		default:
			Logger.Warningf("Could not close client session %d: %v", clientID, err)
		}
	}

	if started {
		<-s.done
	}
}
