package dstore

import (
	"bytes"
	"testing"

	"github.com/ValentinKolb/raftstore/lib/db"
	"github.com/ValentinKolb/raftstore/lib/db/engines/memory"
	"github.com/ValentinKolb/raftstore/lib/store"
	sm "github.com/lni/dragonboat/v4/statemachine"
)

func newStateMachine() sm.IConcurrentStateMachine {
	factory := CreateStateMachineFactory(func() db.KVDB { return memory.NewMemoryDB(nil) }, nil)
	return factory(100, 1)
}

func entry(index uint64, cmd store.Command) sm.Entry {
	return sm.Entry{Index: index, Cmd: cmd.Serialize()}
}

func decode(t *testing.T, e sm.Entry) store.Response {
	t.Helper()
	var resp store.Response
	if err := resp.Deserialize(e.Result.Data); err != nil {
		t.Fatalf("Deserialize() returned error: %v", err)
	}
	if uint64(resp.Status) != e.Result.Value {
		t.Errorf("Result.Value = %d, want status %d", e.Result.Value, resp.Status)
	}
	return resp
}

func TestUpdate(t *testing.T) {
	machine := newStateMachine()
	defer machine.Close()

	entries, err := machine.Update([]sm.Entry{
		entry(7, store.Command{Type: store.CommandTOpenSession, Timestamp: 1}),
		entry(8, store.Command{
			Type:      store.CommandTWrite,
			Tag:       store.ExactlyOnceTag{ClientID: 7, SequenceNumber: 1, FirstOutstanding: 1},
			Timestamp: 2,
			Key:       "a",
			Value:     []byte("1"),
		}),
		{Index: 9, Cmd: []byte{1, 2}},
	})
	if err != nil {
		t.Fatalf("Update() returned error: %v", err)
	}

	if resp := decode(t, entries[0]); resp.ClientID != 7 {
		t.Errorf("OpenSession ClientID = %d, want log index 7", resp.ClientID)
	}
	if resp := decode(t, entries[1]); resp.Status != store.StatusOK {
		t.Errorf("Write = %v, want OK", resp.Status)
	}
	if resp := decode(t, entries[2]); resp.Status != store.StatusInvalidArgument {
		t.Errorf("malformed entry = %v, want INVALID_ARGUMENT", resp.Status)
	}
}

func TestLookup(t *testing.T) {
	machine := newStateMachine()
	defer machine.Close()

	machine.Update([]sm.Entry{entry(1, store.Command{Type: store.CommandTWrite, Timestamp: 1, Key: "a", Value: []byte("1")})})

	res, err := machine.Lookup(store.Query{Type: store.QueryTRead, Key: "a"})
	if err != nil {
		t.Fatalf("Lookup() returned error: %v", err)
	}
	if resp, ok := res.(store.Response); !ok || string(resp.Value) != "1" {
		t.Errorf("Lookup() = %v, want response with value 1", res)
	}

	if _, err := machine.Lookup("not a query"); err == nil {
		t.Errorf("Lookup() with invalid type should fail")
	}
}

func TestSnapshot(t *testing.T) {
	source := newStateMachine()
	defer source.Close()
	source.Update([]sm.Entry{
		entry(1, store.Command{Type: store.CommandTOpenSession, Timestamp: 1}),
		entry(2, store.Command{Type: store.CommandTWrite, Timestamp: 2, Key: "a", Value: []byte("1")}),
	})

	prepared, err := source.PrepareSnapshot()
	if err != nil {
		t.Fatalf("PrepareSnapshot() returned error: %v", err)
	}
	var buf bytes.Buffer
	if err := source.SaveSnapshot(prepared, &buf, nil, make(chan struct{})); err != nil {
		t.Fatalf("SaveSnapshot() returned error: %v", err)
	}

	target := newStateMachine()
	defer target.Close()
	if err := target.RecoverFromSnapshot(&buf, nil, make(chan struct{})); err != nil {
		t.Fatalf("RecoverFromSnapshot() returned error: %v", err)
	}

	res, _ := target.Lookup(store.Query{Type: store.QueryTRead, Key: "a"})
	if resp := res.(store.Response); string(resp.Value) != "1" {
		t.Errorf("recovered value = %s, want 1", resp.Value)
	}

	// the session survived the snapshot, a tagged write of client 1 is accepted
	entries, _ := target.Update([]sm.Entry{entry(3, store.Command{
		Type:      store.CommandTWrite,
		Tag:       store.ExactlyOnceTag{ClientID: 1, SequenceNumber: 1, FirstOutstanding: 1},
		Timestamp: 3,
		Key:       "b",
		Value:     []byte("2"),
	})})
	if resp := decode(t, entries[0]); resp.Status != store.StatusOK {
		t.Errorf("write after recovery = %v, want OK", resp.Result())
	}
}

func TestSnapshotStopped(t *testing.T) {
	machine := newStateMachine()
	defer machine.Close()

	done := make(chan struct{})
	close(done)
	prepared, _ := machine.PrepareSnapshot()
	if err := machine.SaveSnapshot(prepared, &bytes.Buffer{}, nil, done); err != sm.ErrSnapshotStopped {
		t.Errorf("SaveSnapshot() = %v, want %v", err, sm.ErrSnapshotStopped)
	}
}
