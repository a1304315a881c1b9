package server

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ValentinKolb/raftstore/lib/store"
	"github.com/ValentinKolb/raftstore/rpc/common"
	"github.com/ValentinKolb/raftstore/rpc/serializer"
	"github.com/ValentinKolb/raftstore/rpc/transport/loopback"
)

const testClusterID = "5f0c8d5e-8f4e-4a51-9a39-1d1c8a2f7b10"

func newTestServer(t *testing.T) *RPCServer {
	t.Helper()
	s := NewRPCServer(common.ServerConfig{
		Shards:    []common.ServerShard{{ShardID: 1, Type: common.ShardTypeLocalStore}},
		Engine:    common.EngineMemory,
		ReplicaID: 1,
		ClusterID: testClusterID,
		LogLevel:  "error",
		Transport: common.ServerTransportConfig{Endpoint: "server-test"},
	}, loopback.NewServerTransport(), serializer.NewBinarySerializer())
	if err := s.setup(); err != nil {
		t.Fatalf("setup() returned error: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// call sends msg through the transport handler of s
func call(t *testing.T, s *RPCServer, shardID uint64, msg *common.Message) common.Message {
	t.Helper()
	ser := serializer.NewBinarySerializer()
	req, err := ser.Serialize(*msg)
	if err != nil {
		t.Fatalf("Serialize() returned error: %v", err)
	}
	var resp common.Message
	if err := ser.Deserialize(s.handle(shardID, req), &resp); err != nil {
		t.Fatalf("Deserialize() returned error: %v", err)
	}
	if resp.ClusterID != testClusterID {
		t.Errorf("response ClusterID = %q, want %q", resp.ClusterID, testClusterID)
	}
	return resp
}

func TestSessionWriteRead(t *testing.T) {
	s := newTestServer(t)

	open := call(t, s, 1, common.NewOpenSessionRequest())
	if open.RPCStatus != common.RPCStatusOK || open.ClientID == 0 {
		t.Fatalf("OpenSession = %v/%d, want OK with client id", open.RPCStatus, open.ClientID)
	}

	tag := store.ExactlyOnceTag{ClientID: open.ClientID, SequenceNumber: 1, FirstOutstanding: 1}
	if resp := call(t, s, 1, common.NewWriteRequest(tag, "a", []byte("1"))); !resp.Result().IsOK() {
		t.Errorf("Write = %v, want OK", resp.Result())
	}

	resp := call(t, s, 1, common.NewReadRequest("a"))
	if !resp.Result().IsOK() || string(resp.Value) != "1" {
		t.Errorf("Read = %v/%s, want OK/1", resp.Result(), resp.Value)
	}

	resp = call(t, s, 1, common.NewRangeRequest("", "", 0))
	if len(resp.Keys) != 1 || resp.Keys[0] != "a" {
		t.Errorf("Range keys = %v, want [a]", resp.Keys)
	}

	resp = call(t, s, 1, common.NewReadRequest("missing"))
	if resp.Result().Status != store.StatusLookupError {
		t.Errorf("Read(missing) = %v, want LOOKUP_ERROR", resp.Result())
	}
}

func TestUnknownShardAndMessage(t *testing.T) {
	s := newTestServer(t)

	if resp := call(t, s, 99, common.NewReadRequest("a")); resp.RPCStatus != common.RPCStatusInvalidRequest {
		t.Errorf("unknown shard RPCStatus = %v, want INVALID_REQUEST", resp.RPCStatus)
	}
	if resp := call(t, s, 1, &common.Message{MsgType: common.MsgTSuccess}); resp.RPCStatus != common.RPCStatusInvalidRequest {
		t.Errorf("unknown message RPCStatus = %v, want INVALID_REQUEST", resp.RPCStatus)
	}

	var resp common.Message
	_ = serializer.NewBinarySerializer().Deserialize(s.handle(1, []byte{1}), &resp)
	if resp.RPCStatus != common.RPCStatusInvalidRequest {
		t.Errorf("garbage RPCStatus = %v, want INVALID_REQUEST", resp.RPCStatus)
	}
}

func TestConfiguration(t *testing.T) {
	s := newTestServer(t)

	resp := call(t, s, 1, common.NewGetConfigurationRequest())
	if resp.ConfigID != 0 || len(resp.Servers) != 0 {
		t.Fatalf("GetConfiguration = %d/%v, want empty configuration", resp.ConfigID, resp.Servers)
	}

	servers := []store.Server{{ID: 1, Address: "s1"}}
	resp = call(t, s, 1, common.NewSetConfigurationRequest(0, servers))
	if res := resp.ConfigurationResult(); res.Status != store.ConfigOK {
		t.Errorf("SetConfiguration = %v, want OK", res.Status)
	}

	resp = call(t, s, 1, common.NewSetConfigurationRequest(0, servers))
	res := resp.ConfigurationResult()
	if res.Status != store.ConfigChanged || !strings.HasPrefix(res.Error, store.ConfigChangedMessage) {
		t.Errorf("SetConfiguration(stale) = %+v, want CHANGED", res)
	}
}

func TestControlMessages(t *testing.T) {
	s := newTestServer(t)

	resp := call(t, s, 0, common.NewServerInfoRequest())
	var info common.ServerInfo
	if err := json.Unmarshal(resp.Meta, &info); err != nil {
		t.Fatalf("ServerInfo meta: %v", err)
	}
	if info.ClusterID != testClusterID || len(info.Shards) != 1 || info.Shards[0].ShardID != 1 {
		t.Errorf("ServerInfo = %+v", info)
	}

	resp = call(t, s, 0, common.NewServerStatsRequest())
	var stats common.ServerStats
	if err := json.Unmarshal(resp.Meta, &stats); err != nil {
		t.Fatalf("ServerStats meta: %v", err)
	}
	if stats.Requests < 2 {
		t.Errorf("ServerStats.Requests = %d, want >= 2", stats.Requests)
	}
	if !strings.Contains(stats.Metrics, "raftstore_server_requests_total") {
		t.Errorf("ServerStats.Metrics misses the request counter")
	}
}

// followerShard is a shard led by replica 2
type followerShard struct {
	store.IShard
	leaderKnown bool
}

func (f *followerShard) Leader() (uint64, bool, bool) {
	return 2, false, f.leaderKnown
}

func (f *followerShard) Info() store.ShardInfo {
	return store.ShardInfo{ShardID: 7, LeaderID: 2}
}

func (f *followerShard) Close() error { return nil }

func TestNotLeader(t *testing.T) {
	s := newTestServer(t)
	s.config.ClientEndpoints = map[uint64]string{2: "leader:8080"}

	s.shards.Store(7, serverShard{Store: &followerShard{leaderKnown: true}, Adapter: NewIStoreServerAdapter()})
	resp := call(t, s, 7, common.NewReadRequest("a"))
	if resp.RPCStatus != common.RPCStatusNotLeader || resp.LeaderHint != "leader:8080" {
		t.Errorf("follower = %v/%q, want NOT_LEADER with hint", resp.RPCStatus, resp.LeaderHint)
	}

	s.shards.Store(8, serverShard{Store: &followerShard{}, Adapter: NewIStoreServerAdapter()})
	if resp := call(t, s, 8, common.NewReadRequest("a")); resp.RPCStatus != common.RPCStatusUnavailable {
		t.Errorf("no leader = %v, want UNAVAILABLE", resp.RPCStatus)
	}

	// control messages are answered regardless of leadership
	if resp := call(t, s, 7, common.NewServerInfoRequest()); resp.RPCStatus != common.RPCStatusOK {
		t.Errorf("ServerInfo on follower = %v, want OK", resp.RPCStatus)
	}
}

func TestLoadClusterID(t *testing.T) {
	dir := t.TempDir()

	first, err := loadClusterID("", dir)
	if err != nil {
		t.Fatalf("loadClusterID() returned error: %v", err)
	}
	second, _ := loadClusterID("", dir)
	if first != second {
		t.Errorf("loadClusterID() = %s then %s, want a persisted id", first, second)
	}

	if _, err := loadClusterID("not-a-uuid", dir); err == nil {
		t.Errorf("loadClusterID() with invalid id should fail")
	}

	_ = os.WriteFile(filepath.Join(dir, clusterIDFile), []byte("garbage"), 0o644)
	if _, err := loadClusterID("", dir); err == nil {
		t.Errorf("loadClusterID() with corrupt file should fail")
	}
}

func TestServeOverLoopback(t *testing.T) {
	s := newTestServer(t)
	go func() { _ = s.transport.Listen(s.config) }()

	client := loopback.NewClientTransport()
	ser := serializer.NewBinarySerializer()
	req, _ := ser.Serialize(*common.NewServerInfoRequest())

	var resp []byte
	var err error
	for i := 0; i < 100; i++ {
		if resp, err = client.Send(context.Background(), "server-test", 0, req); err == nil {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("loopback server did not come up: %v", err)
	}
	var msg common.Message
	if err := ser.Deserialize(resp, &msg); err != nil || msg.ClusterID != testClusterID {
		t.Errorf("ServerInfo over loopback = %+v, %v", msg, err)
	}
}
