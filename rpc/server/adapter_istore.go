package server

import (
	"context"
	"fmt"

	"github.com/ValentinKolb/raftstore/lib/store"
	"github.com/ValentinKolb/raftstore/rpc/common"
)

// NewIStoreServerAdapter creates the adapter for session, store and configuration messages
func NewIStoreServerAdapter() IRPCServerAdapter {
	return &iStoreServerAdapterImpl{}
}

type iStoreServerAdapterImpl struct{}

func (adapter *iStoreServerAdapterImpl) Handle(ctx context.Context, req *common.Message, shard store.IShard) (*common.Message, error) {
	// Check for nil shard
	if shard == nil {
		return common.NewErrorResponse("handler: shard is nil"), nil
	}

	// Handle different message types
	switch req.MsgType {
	case common.MsgTOpenSession:
		resp, err := shard.Propose(ctx, store.Command{Type: store.CommandTOpenSession})
		if err != nil {
			return nil, err
		}
		return common.NewOpenSessionResponse(resp.ClientID, resp.Result()), nil

	case common.MsgTCloseSession:
		return propose(ctx, shard, req.MsgType, store.Command{
			Type: store.CommandTCloseSession,
			Tag:  req.Tag(),
		})

	case common.MsgTWrite:
		return propose(ctx, shard, req.MsgType, store.Command{
			Type:  store.CommandTWrite,
			Tag:   req.Tag(),
			Key:   req.Key,
			Value: req.Value,
		})

	case common.MsgTRemove:
		return propose(ctx, shard, req.MsgType, store.Command{
			Type: store.CommandTRemove,
			Tag:  req.Tag(),
			Key:  req.Key,
		})

	case common.MsgTRead:
		resp, err := shard.Read(ctx, store.Query{Type: store.QueryTRead, Key: req.Key})
		if err != nil {
			return nil, err
		}
		return common.NewReadResponse(resp.Value, resp.Result()), nil

	case common.MsgTRange:
		resp, err := shard.Read(ctx, store.Query{Type: store.QueryTRange, Key: req.Key, End: req.End, Limit: req.Limit})
		if err != nil {
			return nil, err
		}
		return common.NewKeysResponse(req.MsgType, resp.Keys, resp.Result()), nil

	case common.MsgTSearch:
		resp, err := shard.Read(ctx, store.Query{Type: store.QueryTSearch, Key: req.Key, Limit: req.Limit})
		if err != nil {
			return nil, err
		}
		return common.NewKeysResponse(req.MsgType, resp.Keys, resp.Result()), nil

	case common.MsgTStat:
		resp, err := shard.Read(ctx, store.Query{Type: store.QueryTStat, Key: req.Key})
		if err != nil {
			return nil, err
		}
		return common.NewStatResponse(string(resp.Value), resp.Result()), nil

	case common.MsgTGetConfiguration:
		conf, err := shard.Membership(ctx)
		if err != nil {
			return nil, err
		}
		return common.NewGetConfigurationResponse(conf, store.OK()), nil

	case common.MsgTSetConfiguration:
		return common.NewSetConfigurationResponse(shard.ChangeMembership(ctx, req.ConfigID, req.Servers)), nil

	default:
		return common.NewInvalidRequestResponse(
			fmt.Sprintf("RPC IStoreAdapter - Unsupported message type: %s", req.MsgType),
		), nil
	}
}

// propose runs a command that is answered with a plain store result
func propose(ctx context.Context, shard store.IShard, msgType common.MessageType, cmd store.Command) (*common.Message, error) {
	resp, err := shard.Propose(ctx, cmd)
	if err != nil {
		return nil, err
	}
	return common.NewStoreResponse(msgType, resp.Result()), nil
}
