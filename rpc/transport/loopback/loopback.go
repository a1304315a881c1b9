// Package loopback implements an in-process transport. Servers register their
// endpoint name in a process wide registry and clients call the handler
// directly, without serialization to a socket. It is used by tests and by
// programs that embed a server next to its client.
package loopback

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ValentinKolb/raftstore/rpc/common"
	"github.com/ValentinKolb/raftstore/rpc/transport"
	"github.com/puzpuzpuz/xsync/v3"
)

// ErrConnectionRefused is returned for endpoints without listening server
var ErrConnectionRefused = errors.New("connection refused")

var registry = xsync.NewMapOf[string, transport.ServerHandleFunc]()

// --------------------------------------------------------------------------
// Server
// --------------------------------------------------------------------------

type serverTransport struct {
	handler  transport.ServerHandleFunc
	done     chan struct{}
	mu       sync.Mutex
	endpoint string
	closed   bool
}

// NewServerTransport creates a loopback server transport
func NewServerTransport() transport.IRPCServerTransport {
	return &serverTransport{done: make(chan struct{})}
}

func (t *serverTransport) RegisterHandler(handler transport.ServerHandleFunc) {
	t.handler = handler
}

func (t *serverTransport) Listen(config common.ServerConfig) error {
	if t.handler == nil {
		return fmt.Errorf("no handler registered")
	}
	endpoint := config.Transport.Endpoint

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	if _, loaded := registry.LoadOrStore(endpoint, t.handler); loaded {
		t.mu.Unlock()
		return fmt.Errorf("endpoint %s already in use", endpoint)
	}
	t.endpoint = endpoint
	t.mu.Unlock()

	<-t.done
	return nil
}

func (t *serverTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	if t.endpoint != "" {
		registry.Delete(t.endpoint)
	}
	close(t.done)
	return nil
}

// --------------------------------------------------------------------------
// Client
// --------------------------------------------------------------------------

type clientTransport struct{}

// NewClientTransport creates a loopback client transport
func NewClientTransport() transport.IRPCClientTransport {
	return &clientTransport{}
}

func (t *clientTransport) Connect(common.ClientConfig) error {
	return nil
}

func (t *clientTransport) Send(ctx context.Context, endpoint string, shardId uint64, req []byte) ([]byte, error) {
	handler, ok := registry.Load(endpoint)
	if !ok {
		return nil, fmt.Errorf("%s: %w", endpoint, ErrConnectionRefused)
	}

	// the request buffer belongs to the server from here on
	req = append([]byte(nil), req...)

	result := make(chan []byte, 1)
	go func() {
		result <- handler(shardId, req)
	}()

	select {
	case resp := <-result:
		return resp, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (t *clientTransport) Close() error {
	return nil
}
