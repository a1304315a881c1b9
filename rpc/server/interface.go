package server

import (
	"context"

	"github.com/ValentinKolb/raftstore/lib/store"
	"github.com/ValentinKolb/raftstore/rpc/common"
)

// IRPCServerAdapter is the interface for all RPC server adapters
// It is responsible for handling requests and responses
type IRPCServerAdapter interface {
	// Handle translates a request into shard operations and returns the response.
	// Store level failures are part of the response. A returned error means the
	// shard could not serve the request (store.ErrNotLeader, store.ErrUnavailable,
	// context errors) and is turned into an RPC status by the server.
	Handle(ctx context.Context, req *common.Message, shard store.IShard) (*common.Message, error)
}
