package client

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ValentinKolb/raftstore/lib/store"
	"github.com/ValentinKolb/raftstore/rpc/common"
	"github.com/ValentinKolb/raftstore/rpc/serializer"
	"github.com/ValentinKolb/raftstore/rpc/server"
	"github.com/ValentinKolb/raftstore/rpc/transport/loopback"
)

const (
	testClusterID  = "0b0e7d7e-3c4b-4a5e-9f7e-1f2d3c4b5a69"
	otherClusterID = "9d9c1a44-0f0e-4f51-8b2a-6e7d8c9b0a12"
)

// waitForEndpoint blocks until the loopback endpoint accepts requests
func waitForEndpoint(t *testing.T, endpoint string) {
	t.Helper()
	client := loopback.NewClientTransport()
	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, err := client.Send(context.Background(), endpoint, 0, nil); err == nil {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("endpoint %s did not come up", endpoint)
		}
		time.Sleep(time.Millisecond)
	}
}

// startServer runs a single node server with one local shard on a loopback endpoint
func startServer(t *testing.T, endpoint string) {
	t.Helper()
	s := server.NewRPCServer(common.ServerConfig{
		Shards:    []common.ServerShard{{ShardID: 1, Type: common.ShardTypeLocalStore}},
		Engine:    common.EngineMemory,
		ReplicaID: 1,
		ClusterID: testClusterID,
		LogLevel:  "error",
		Transport: common.ServerTransportConfig{Endpoint: endpoint},
	}, loopback.NewServerTransport(), serializer.NewBinarySerializer())
	go func() { _ = s.Serve() }()
	t.Cleanup(func() { _ = s.Close() })
	waitForEndpoint(t, endpoint)
}

// fakeServer answers every decoded request with handle. The cluster id is set on every reply
// unless handle already set one.
func fakeServer(t *testing.T, endpoint string, handle func(req common.Message) *common.Message) {
	t.Helper()
	ser := serializer.NewBinarySerializer()
	tr := loopback.NewServerTransport()
	tr.RegisterHandler(func(_ uint64, req []byte) []byte {
		var msg common.Message
		if len(req) == 0 || ser.Deserialize(req, &msg) != nil {
			return nil
		}
		resp := handle(msg)
		if resp.ClusterID == "" {
			resp.ClusterID = testClusterID
		}
		out, _ := ser.Serialize(*resp)
		return out
	})
	go func() {
		_ = tr.Listen(common.ServerConfig{Transport: common.ServerTransportConfig{Endpoint: endpoint}})
	}()
	t.Cleanup(func() { _ = tr.Close() })
	waitForEndpoint(t, endpoint)
}

func newTestStore(t *testing.T, clusterID string, endpoints ...string) *RPCStore {
	t.Helper()
	s, err := NewRPCStore(1, common.ClientConfig{
		TimeoutSecond: 2,
		ClusterID:     clusterID,
		Transport:     common.ClientTransportConfig{Endpoints: endpoints},
	}, loopback.NewClientTransport(), serializer.NewBinarySerializer())
	if err != nil {
		t.Fatalf("NewRPCStore() returned error: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// --------------------------------------------------------------------------
// Store operations against a real server
// --------------------------------------------------------------------------

func TestStoreOperations(t *testing.T) {
	startServer(t, "client-test-ops")
	s := newTestStore(t, "", "client-test-ops")

	for _, kv := range [][2]string{{"b", "2"}, {"a", "1"}, {"ab", "3"}, {"c", "4"}} {
		if res := s.Write(kv[0], []byte(kv[1])); !res.IsOK() {
			t.Fatalf("Write(%s) = %v, want OK", kv[0], res)
		}
	}

	if val, res := s.Read("a"); !res.IsOK() || string(val) != "1" {
		t.Errorf("Read(a) = %s/%v, want 1/OK", val, res)
	}

	tests := []struct {
		name     string
		call     func() ([]string, store.Result)
		expected []string
	}{
		{"range all", func() ([]string, store.Result) { return s.Range("", "", 0) }, []string{"a", "ab", "b", "c"}},
		{"range bounded", func() ([]string, store.Result) { return s.Range("ab", "c", 0) }, []string{"ab", "b"}},
		{"range limit", func() ([]string, store.Result) { return s.Range("", "", 2) }, []string{"a", "ab"}},
		{"search", func() ([]string, store.Result) { return s.Search("b", 0) }, []string{"ab", "b"}},
		{"search limit", func() ([]string, store.Result) { return s.Search("b", 1) }, []string{"ab"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			keys, res := tt.call()
			if !res.IsOK() {
				t.Fatalf("result = %v, want OK", res)
			}
			if strings.Join(keys, ",") != strings.Join(tt.expected, ",") {
				t.Errorf("keys = %v, want %v", keys, tt.expected)
			}
		})
	}

	if res := s.Remove("a"); !res.IsOK() {
		t.Errorf("Remove(a) = %v, want OK", res)
	}
	if _, res := s.Read("a"); res.Status != store.StatusLookupError {
		t.Errorf("Read(a) after Remove = %v, want LOOKUP_ERROR", res)
	}
	if res := s.Remove("a"); !res.IsOK() {
		t.Errorf("Remove(a) twice = %v, want OK", res)
	}

	if stat, res := s.Stat(""); !res.IsOK() || stat == "" {
		t.Errorf("Stat() = %q/%v, want summary/OK", stat, res)
	}

	if first, last := sequence(s.session); first != last {
		t.Errorf("firstOutstanding() = %d, want %d with nothing outstanding", first, last)
	}
	if err := s.Err(); err != nil {
		t.Errorf("Err() = %v, want nil", err)
	}
}

func TestConfigurationOperations(t *testing.T) {
	startServer(t, "client-test-config")
	s := newTestStore(t, "", "client-test-config")

	id, servers, res := s.GetConfiguration()
	if !res.IsOK() || id != 0 || len(servers) != 0 {
		t.Fatalf("GetConfiguration() = %d/%v/%v, want empty configuration", id, servers, res)
	}

	wanted := []store.Server{{ID: 1, Address: "s1"}}
	if res := s.SetConfiguration(0, wanted); res.Status != store.ConfigOK {
		t.Errorf("SetConfiguration(0) = %+v, want OK", res)
	}
	res2 := s.SetConfiguration(0, wanted)
	if res2.Status != store.ConfigChanged || !strings.HasPrefix(res2.Error, store.ConfigChangedMessage) {
		t.Errorf("SetConfiguration(0) again = %+v, want CHANGED", res2)
	}

	id, servers, _ = s.GetConfiguration()
	if id != 1 || len(servers) != 1 || servers[0] != wanted[0] {
		t.Errorf("GetConfiguration() = %d/%v, want 1/%v", id, servers, wanted)
	}
}

func TestServerInfoAndStats(t *testing.T) {
	startServer(t, "client-test-info")
	s := newTestStore(t, "", "client-test-info")

	info, res := s.GetServerInfo("client-test-info", time.Second)
	if !res.IsOK() {
		t.Fatalf("GetServerInfo() = %v, want OK", res)
	}
	if info.ClusterID != testClusterID || len(info.Shards) != 1 {
		t.Errorf("GetServerInfo() = %+v, want cluster %s with one shard", info, testClusterID)
	}

	stats, res := s.GetServerStats("client-test-info", time.Second)
	if !res.IsOK() || stats.Requests == 0 {
		t.Errorf("GetServerStats() = %+v/%v, want requests > 0", stats, res)
	}

	_, res = s.GetServerInfo("client-test-nowhere", 50*time.Millisecond)
	if res.Status != store.StatusTimeout || res.Error != store.TimeoutMessage {
		t.Errorf("GetServerInfo(unreachable) = %v, want TIMEOUT", res)
	}
}

// --------------------------------------------------------------------------
// Local validation
// --------------------------------------------------------------------------

func TestInvalidArgumentsOffline(t *testing.T) {
	// nothing listens on this endpoint, every request would time out
	s := newTestStore(t, "", "client-test-offline")

	tests := []struct {
		name string
		res  store.Result
	}{
		{"write empty path", s.Write("", []byte("x"))},
		{"write empty contents", s.Write("a", nil)},
		{"remove empty path", s.Remove("")},
		{"read empty path", func() store.Result { _, r := s.Read(""); return r }()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.res.Status != store.StatusInvalidArgument {
				t.Errorf("result = %v, want INVALID_ARGUMENT", tt.res)
			}
		})
	}

	if res := s.Write("", nil); res.Error != "Invalid param: path,contents" {
		t.Errorf("Write(\"\", nil) error = %q, want %q", res.Error, "Invalid param: path,contents")
	}
	if s.session.clientID != 0 {
		t.Errorf("session opened for rejected requests")
	}
}

// --------------------------------------------------------------------------
// Sessions
// --------------------------------------------------------------------------

// sessionHandler answers session requests and delegates writes to write
func sessionHandler(write func(req common.Message) *common.Message) func(common.Message) *common.Message {
	return func(req common.Message) *common.Message {
		switch req.MsgType {
		case common.MsgTOpenSession:
			return common.NewOpenSessionResponse(7, store.OK())
		case common.MsgTCloseSession:
			return common.NewStoreResponse(req.MsgType, store.OK())
		default:
			return write(req)
		}
	}
}

// sequence returns the first outstanding and the last issued sequence number under one lock
func sequence(s *session) (first, last uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.firstOutstandingLocked(), s.lastSeq
}

func TestFirstOutstanding(t *testing.T) {
	fakeServer(t, "client-test-seq", sessionHandler(func(req common.Message) *common.Message {
		return common.NewStoreResponse(req.MsgType, store.OK())
	}))
	s := newTestStore(t, "", "client-test-seq")

	ctx := context.Background()
	t1, _ := s.session.acquire(ctx)
	t2, _ := s.session.acquire(ctx)
	t3, _ := s.session.acquire(ctx)

	if t1.ClientID != 7 {
		t.Fatalf("ClientID = %d, want 7", t1.ClientID)
	}
	for i, tag := range []store.ExactlyOnceTag{t1, t2, t3} {
		if tag.SequenceNumber != uint64(i+1) || tag.FirstOutstanding != 1 {
			t.Errorf("tag %d = %+v, want seq %d first 1", i, tag, i+1)
		}
	}

	s.session.release(t1)
	if got := s.session.firstOutstanding(); got != 2 {
		t.Errorf("firstOutstanding() after release(1) = %d, want 2", got)
	}
	s.session.release(t3)
	if got := s.session.firstOutstanding(); got != 2 {
		t.Errorf("firstOutstanding() after release(3) = %d, want 2", got)
	}
	s.session.release(t2)
	if got := s.session.firstOutstanding(); got != 3 {
		t.Errorf("firstOutstanding() with empty set = %d, want 3", got)
	}

	t4, _ := s.session.acquire(ctx)
	if t4.SequenceNumber != 4 || t4.FirstOutstanding != 4 {
		t.Errorf("tag 4 = %+v, want seq 4 first 4", t4)
	}
}

func TestConcurrentTags(t *testing.T) {
	fakeServer(t, "client-test-concurrent", sessionHandler(func(req common.Message) *common.Message {
		return common.NewStoreResponse(req.MsgType, store.OK())
	}))
	s := newTestStore(t, "", "client-test-concurrent")

	const workers, rounds = 32, 50
	seqs := make([][]uint64, workers)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < rounds; i++ {
				tag, res := s.session.acquire(context.Background())
				if !res.IsOK() {
					t.Errorf("acquire() = %v, want OK", res)
					return
				}
				if tag.FirstOutstanding > tag.SequenceNumber {
					t.Errorf("tag %+v: FirstOutstanding above SequenceNumber", tag)
				}
				if n := len(seqs[w]); n > 0 && seqs[w][n-1] >= tag.SequenceNumber {
					t.Errorf("sequence number %d issued after %d", tag.SequenceNumber, seqs[w][n-1])
				}
				seqs[w] = append(seqs[w], tag.SequenceNumber)
				s.session.release(tag)
			}
		}(w)
	}
	wg.Wait()

	seen := make(map[uint64]bool, workers*rounds)
	for _, ws := range seqs {
		for _, seq := range ws {
			if seen[seq] {
				t.Errorf("sequence number %d issued twice", seq)
			}
			seen[seq] = true
		}
	}
	if len(seen) != workers*rounds {
		t.Errorf("issued %d sequence numbers, want %d", len(seen), workers*rounds)
	}

	first, last := sequence(s.session)
	if last != workers*rounds || first != last {
		t.Errorf("sequence() = %d/%d, want %d/%d", first, last, workers*rounds, workers*rounds)
	}
}

func TestZeroClientID(t *testing.T) {
	var opens atomic.Int32
	fakeServer(t, "client-test-zero-id", func(req common.Message) *common.Message {
		if req.MsgType == common.MsgTOpenSession {
			opens.Add(1)
			return common.NewOpenSessionResponse(0, store.OK())
		}
		return common.NewStoreResponse(req.MsgType, store.OK())
	})
	s := newTestStore(t, "", "client-test-zero-id")

	if res := s.Write("a", []byte("1")); res.Status != store.StatusUnknownError {
		t.Errorf("Write() = %v, want UNKNOWN_ERROR", res)
	}
	if !errors.Is(s.Err(), ErrInvalidRequest) {
		t.Fatalf("Err() = %v, want ErrInvalidRequest", s.Err())
	}
	if res := s.Write("b", []byte("2")); res.IsOK() {
		t.Errorf("Write() on failed handle = %v, want failure", res)
	}
	if opens.Load() != 1 {
		t.Errorf("OpenSession requests = %d, want 1", opens.Load())
	}
	if err := s.Close(); err != nil {
		t.Errorf("Close() returned error: %v", err)
	}
}

func TestTimeoutKeepsTag(t *testing.T) {
	block := make(chan struct{})
	t.Cleanup(func() { close(block) })

	fakeServer(t, "client-test-timeout", sessionHandler(func(req common.Message) *common.Message {
		<-block
		return common.NewStoreResponse(req.MsgType, store.OK())
	}))
	s := newTestStore(t, "", "client-test-timeout")
	s.SetTimeout(50 * time.Millisecond)

	res := s.Write("a", []byte("1"))
	if res.Status != store.StatusTimeout || res.Error != store.TimeoutMessage {
		t.Fatalf("Write() = %v, want TIMEOUT", res)
	}
	if !s.session.outstanding.Contains(1) {
		t.Errorf("sequence number 1 released after TIMEOUT")
	}

	tag, _ := s.session.acquire(context.Background())
	if tag.FirstOutstanding != 1 {
		t.Errorf("FirstOutstanding = %d, want 1", tag.FirstOutstanding)
	}
	if s.Err() != nil {
		t.Errorf("Err() = %v, TIMEOUT must not fail the handle", s.Err())
	}
}

func TestOpenSessionTimeout(t *testing.T) {
	s := newTestStore(t, "", "client-test-unreachable")
	s.SetTimeout(30 * time.Millisecond)

	if res := s.Write("a", []byte("1")); res.Status != store.StatusTimeout {
		t.Errorf("Write() = %v, want TIMEOUT", res)
	}
	if s.session.clientID != 0 || s.session.outstanding.Len() != 0 {
		t.Errorf("session = %d with %d outstanding, want unopened", s.session.clientID, s.session.outstanding.Len())
	}
}

func TestKeepAlive(t *testing.T) {
	var keepAlives, closes atomic.Int32
	fakeServer(t, "client-test-keepalive", func(req common.Message) *common.Message {
		switch req.MsgType {
		case common.MsgTOpenSession:
			return common.NewOpenSessionResponse(3, store.OK())
		case common.MsgTCloseSession:
			closes.Add(1)
			return common.NewStoreResponse(req.MsgType, store.OK())
		case common.MsgTWrite:
			if req.Key == keepAlivePath {
				keepAlives.Add(1)
				return common.NewStoreResponse(req.MsgType, store.NewResult(store.StatusConditionNotMet, "reserved"))
			}
		}
		return common.NewStoreResponse(req.MsgType, store.OK())
	})
	s := newTestStore(t, "", "client-test-keepalive")
	s.session.keepAliveInterval = 20 * time.Millisecond

	if res := s.Write("a", []byte("1")); !res.IsOK() {
		t.Fatalf("Write() = %v, want OK", res)
	}

	deadline := time.Now().Add(2 * time.Second)
	for keepAlives.Load() < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("keep-alives = %d, want at least 2", keepAlives.Load())
		}
		time.Sleep(5 * time.Millisecond)
	}

	if err := s.Close(); err != nil {
		t.Fatalf("Close() returned error: %v", err)
	}
	if closes.Load() != 1 {
		t.Errorf("CloseSession requests = %d, want 1", closes.Load())
	}
	if res := s.Write("a", []byte("1")); res.IsOK() {
		t.Errorf("Write() after Close = %v, want failure", res)
	}
	if !errors.Is(s.Err(), ErrClosed) {
		t.Errorf("Err() = %v, want ErrClosed", s.Err())
	}
}

func TestCloseCancelsKeepAlive(t *testing.T) {
	pending := make(chan struct{}, 1)
	block := make(chan struct{})

	var closes atomic.Int32
	fakeServer(t, "client-test-keepalive-pending", sessionHandler(func(req common.Message) *common.Message {
		if req.MsgType == common.MsgTWrite && req.Key == keepAlivePath {
			select {
			case pending <- struct{}{}:
			default:
			}
			<-block
		}
		if req.MsgType == common.MsgTCloseSession {
			closes.Add(1)
		}
		return common.NewStoreResponse(req.MsgType, store.OK())
	}))
	t.Cleanup(func() { close(block) })

	s := newTestStore(t, "", "client-test-keepalive-pending")
	s.session.keepAliveInterval = 20 * time.Millisecond

	if res := s.Write("a", []byte("1")); !res.IsOK() {
		t.Fatalf("Write() = %v, want OK", res)
	}

	select {
	case <-pending:
	case <-time.After(2 * time.Second):
		t.Fatalf("no keep-alive sent")
	}

	start := time.Now()
	if err := s.Close(); err != nil {
		t.Fatalf("Close() returned error: %v", err)
	}
	if elapsed, limit := time.Since(start), s.session.closeTimeout+500*time.Millisecond; elapsed > limit {
		t.Errorf("Close() took %v, want less than %v", elapsed, limit)
	}

	select {
	case <-s.session.done:
	default:
		t.Errorf("keep-alive goroutine still running after Close()")
	}
	if closes.Load() != 1 {
		t.Errorf("CloseSession requests = %d, want 1", closes.Load())
	}
}

// --------------------------------------------------------------------------
// Dispatcher
// --------------------------------------------------------------------------

func TestNotLeaderHint(t *testing.T) {
	var followerCalls atomic.Int32
	fakeServer(t, "client-test-follower", func(req common.Message) *common.Message {
		followerCalls.Add(1)
		return common.NewNotLeaderResponse(req.MsgType, "client-test-leader")
	})
	fakeServer(t, "client-test-leader", func(req common.Message) *common.Message {
		return common.NewReadResponse([]byte("v"), store.OK())
	})
	s := newTestStore(t, "", "client-test-follower")

	for i := 0; i < 3; i++ {
		if val, res := s.Read("a"); !res.IsOK() || string(val) != "v" {
			t.Fatalf("Read() = %s/%v, want v/OK", val, res)
		}
	}
	if got := followerCalls.Load(); got != 1 {
		t.Errorf("follower calls = %d, want 1", got)
	}
	if leader, confirmed := s.rpc.pick(); leader != "client-test-leader" || !confirmed {
		t.Errorf("pick() = %s/%t, want client-test-leader/true", leader, confirmed)
	}
}

func TestFatalReplies(t *testing.T) {
	tests := []struct {
		name      string
		endpoint  string
		clusterID string // pinned by the client
		handle    func(req common.Message) *common.Message
		status    store.StatusCode
		err       error
	}{
		{
			name:      "cluster mismatch",
			endpoint:  "client-test-mismatch",
			clusterID: otherClusterID,
			handle: func(req common.Message) *common.Message {
				return common.NewReadResponse([]byte("v"), store.OK())
			},
			status: store.StatusUnknownError,
			err:    ErrClusterMismatch,
		},
		{
			name:     "invalid request",
			endpoint: "client-test-invalid",
			handle: func(req common.Message) *common.Message {
				return common.NewInvalidRequestResponse("unknown opcode")
			},
			status: store.StatusUnknownError,
			err:    ErrInvalidRequest,
		},
		{
			name:     "session expired",
			endpoint: "client-test-expired",
			handle: sessionHandler(func(req common.Message) *common.Message {
				return common.NewStoreResponse(req.MsgType, store.NewResult(store.StatusSessionExpired, "unknown session"))
			}),
			status: store.StatusSessionExpired,
			err:    ErrSessionExpired,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			fakeServer(t, tt.endpoint, func(req common.Message) *common.Message {
				calls.Add(1)
				return tt.handle(req)
			})
			s := newTestStore(t, tt.clusterID, tt.endpoint)

			if res := s.Write("a", []byte("1")); res.Status != tt.status {
				t.Errorf("Write() = %v, want %s", res, tt.status)
			}
			if !errors.Is(s.Err(), tt.err) {
				t.Fatalf("Err() = %v, want %v", s.Err(), tt.err)
			}

			sent := calls.Load()
			if _, res := s.Read("a"); res.IsOK() {
				t.Errorf("Read() on failed handle = %v, want failure", res)
			}
			if res := s.Write("b", []byte("2")); res.IsOK() {
				t.Errorf("Write() on failed handle = %v, want failure", res)
			}
			if calls.Load() != sent {
				t.Errorf("failed handle sent %d more requests, want 0", calls.Load()-sent)
			}
		})
	}
}

func TestTransportRetry(t *testing.T) {
	s := newTestStore(t, "", "client-test-late")

	ser := serializer.NewBinarySerializer()
	tr := loopback.NewServerTransport()
	tr.RegisterHandler(func(_ uint64, req []byte) []byte {
		resp := common.NewReadResponse([]byte("late"), store.OK())
		resp.ClusterID = testClusterID
		out, _ := ser.Serialize(*resp)
		return out
	})
	t.Cleanup(func() { _ = tr.Close() })

	// the server comes up while the client is already retrying
	go func() {
		time.Sleep(100 * time.Millisecond)
		_ = tr.Listen(common.ServerConfig{Transport: common.ServerTransportConfig{Endpoint: "client-test-late"}})
	}()

	if val, res := s.Read("a"); !res.IsOK() || string(val) != "late" {
		t.Errorf("Read() = %s/%v, want late/OK", val, res)
	}
}

func TestCreationBackoff(t *testing.T) {
	b := newCreationBackoff(sessionCreationLimit, sessionCreationWindow)

	start := time.Now()
	for i := 0; i < sessionCreationLimit; i++ {
		if err := b.wait(context.Background()); err != nil {
			t.Fatalf("wait() returned error: %v", err)
		}
	}
	if elapsed := time.Since(start); elapsed > sessionCreationWindow/2 {
		t.Errorf("first %d attempts took %v, want no delay", sessionCreationLimit, elapsed)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := b.wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("wait() over limit = %v, want DeadlineExceeded", err)
	}

	if err := b.wait(context.Background()); err != nil {
		t.Errorf("wait() after window returned error: %v", err)
	}
	if elapsed := time.Since(start); elapsed < sessionCreationWindow-10*time.Millisecond {
		t.Errorf("attempt %d started after %v, want at least %v", sessionCreationLimit+1, elapsed, sessionCreationWindow)
	}
}

func TestCallStatusString(t *testing.T) {
	tests := []struct {
		status   CallStatus
		expected string
	}{
		{CallOK, "OK"},
		{CallTimeout, "TIMEOUT"},
		{CallInvalidRequest, "INVALID_REQUEST"},
		{CallFailed, "FAILED"},
		{CallStatus(9), "Unknown(9)"},
	}
	for _, tt := range tests {
		if got := tt.status.String(); got != tt.expected {
			t.Errorf("String() = %q, want %q", got, tt.expected)
		}
	}
}
