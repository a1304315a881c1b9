package client

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/ValentinKolb/raftstore/lib/store"
	"github.com/ValentinKolb/raftstore/rpc/common"
)

// --------------------------------------------------------------------------
// Cluster membership
// --------------------------------------------------------------------------

// GetConfiguration returns the id and the servers of the current cluster configuration.
// It waits for the handle timeout (none if 0).
func (s *RPCStore) GetConfiguration() (uint64, []store.Server, store.Result) {
	resp, res := s.query(common.NewGetConfigurationRequest())
	if !res.IsOK() {
		return 0, nil, res
	}
	return resp.ConfigID, resp.Servers, res
}

// SetConfiguration replaces the configuration oldID by servers.
// CHANGED means oldID is no longer current, BAD lists the servers that could not catch up.
func (s *RPCStore) SetConfiguration(oldID uint64, servers []store.Server) store.ConfigurationResult {
	ctx, cancel := s.ctx()
	defer cancel()

	resp, status, err := s.rpc.call(ctx, common.NewSetConfigurationRequest(oldID, servers))
	switch status {
	case CallOK:
		res := resp.ConfigurationResult()
		switch res.Status {
		case store.ConfigOK, store.ConfigChanged, store.ConfigBad:
			return res
		default:
			return store.ConfigurationResult{
				Status: store.ConfigBad,
				Error:  fmt.Sprintf("unknown configuration status %d: %s", res.Status, res.Error),
			}
		}
	case CallTimeout:
		return store.ConfigurationResult{Status: store.ConfigBad, Error: store.TimeoutMessage}
	default:
		return store.ConfigurationResult{Status: store.ConfigBad, Error: err.Error()}
	}
}

// --------------------------------------------------------------------------
// Server introspection
// --------------------------------------------------------------------------

// GetServerInfo asks host for its identity, waiting at most timeout (none if 0)
func (s *RPCStore) GetServerInfo(host string, timeout time.Duration) (common.ServerInfo, store.Result) {
	var info common.ServerInfo
	res := s.control(host, timeout, common.NewServerInfoRequest(), &info)
	return info, res
}

// GetServerStats asks host for its statistics, waiting at most timeout (none if 0)
func (s *RPCStore) GetServerStats(host string, timeout time.Duration) (common.ServerStats, store.Result) {
	var stats common.ServerStats
	res := s.control(host, timeout, common.NewServerStatsRequest(), &stats)
	return stats, res
}

// control sends req to host and decodes the JSON payload of the reply into v
func (s *RPCStore) control(host string, timeout time.Duration, req *common.Message, v any) store.Result {
	if host == "" {
		return invalidParam("host")
	}

	ctx, cancel := deadline(timeout)
	defer cancel()

	resp, status, err := s.rpc.direct(ctx, host, req)
	switch status {
	case CallOK:
	case CallTimeout:
		return store.TimeoutResult()
	default:
		return fatalResult(err)
	}

	if err := json.Unmarshal(resp.Meta, v); err != nil {
		return store.NewResult(store.StatusUnknownError, "failed to decode %s from %s: %v", req.MsgType, host, err)
	}
	return store.OK()
}
