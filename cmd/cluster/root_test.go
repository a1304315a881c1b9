package cluster

import (
	"errors"
	"testing"

	dbutil "github.com/ValentinKolb/raftstore/lib/db/util"
	"github.com/ValentinKolb/raftstore/lib/store"
	"github.com/ValentinKolb/raftstore/rpc/client"
	"github.com/ValentinKolb/raftstore/rpc/common"
	"github.com/ValentinKolb/raftstore/rpc/serializer"
	"github.com/ValentinKolb/raftstore/rpc/transport/loopback"
	"github.com/spf13/cobra"
)

func TestParseServers(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		expected []store.Server
		wantErr  bool
	}{
		{"numeric", []string{"1=a:1", "2=b:2"}, []store.Server{{ID: 1, Address: "a:1"}, {ID: 2, Address: "b:2"}}, false},
		{"named", []string{"node-1=a:1"}, []store.Server{{ID: uint64(dbutil.HashString("node-1", 0)), Address: "a:1"}}, false},
		{"empty", nil, []store.Server{}, false},
		{"missing address", []string{"1="}, nil, true},
		{"no separator", []string{"a:1"}, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseServers(tt.args)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseServers() error = %v, wantErr %v", err, tt.wantErr)
			}
			if len(got) != len(tt.expected) {
				t.Fatalf("parseServers() = %v, want %v", got, tt.expected)
			}
			for i := range got {
				if got[i] != tt.expected[i] {
					t.Errorf("parseServers()[%d] = %v, want %v", i, got[i], tt.expected[i])
				}
			}
		})
	}
}

func TestClientClosedAfterFailedCommand(t *testing.T) {
	s, err := client.NewRPCStore(1, common.ClientConfig{
		Transport: common.ClientTransportConfig{Endpoints: []string{"cluster-cmd-test"}},
	}, loopback.NewClientTransport(), serializer.NewBinarySerializer())
	if err != nil {
		t.Fatalf("NewRPCStore() returned error: %v", err)
	}
	rpcStore = s
	t.Cleanup(func() { rpcStore = nil })

	cmd := &cobra.Command{
		Use:           "fail",
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(*cobra.Command, []string) error {
			return errors.New("configuration changed")
		},
	}
	cmd.SetArgs([]string{})

	if err := cmd.Execute(); err == nil {
		t.Fatalf("Execute() returned nil, want error")
	}
	if !errors.Is(s.Err(), client.ErrClosed) {
		t.Errorf("Err() = %v, want %v", s.Err(), client.ErrClosed)
	}
}
