package client

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/ValentinKolb/raftstore/lib/store"
	"github.com/lni/dragonboat/v4/logger"
)

var (
	Logger = logger.GetLogger("client")
)

// Fatal errors. Once one of them was observed the handle is permanently failed:
// every following call returns the error and no further write is sent.
var (
	// ErrSessionExpired is returned when the cluster no longer knows the client session.
	// Without a session the cluster can not tell whether retried writes were applied.
	ErrSessionExpired = errors.New("client session expired")
	// ErrClusterMismatch is returned when a server answers with another cluster UUID
	ErrClusterMismatch = errors.New("cluster UUID mismatch")
	// ErrInvalidRequest is returned when a server does not understand a request
	ErrInvalidRequest = errors.New("server rejected request as invalid")
	// ErrClosed is returned by calls after Close
	ErrClosed = errors.New("client closed")
)

// fatalResult converts a fatal error into the result returned to the caller
func fatalResult(err error) store.Result {
	if errors.Is(err, ErrSessionExpired) {
		return store.NewResult(store.StatusSessionExpired, "%s", err.Error())
	}
	return store.NewResult(store.StatusUnknownError, "%s", err.Error())
}

// deadline returns a context bounded by timeout, 0 means no deadline
func deadline(timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(context.Background())
	}
	return context.WithTimeout(context.Background(), timeout)
}

// invalidParam is the result of requests rejected before anything is sent
func invalidParam(params ...string) store.Result {
	return store.NewResult(store.StatusInvalidArgument, "Invalid param: %s", strings.Join(params, ","))
}
