package base

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/raftstore/rpc/common"
	"github.com/ValentinKolb/raftstore/rpc/transport"
	"github.com/hashicorp/go-multierror"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
)

var Logger = logger.GetLogger("transport/rpc")

// ErrTransportClosed is returned by Send after Close
var ErrTransportClosed = errors.New("transport closed")

// -----------------------------------------------------------
// Interface Definitions for dependency injection
// -----------------------------------------------------------

// IClientConnector defines the interface for transport-specific connection operations
type IClientConnector interface {
	// Connect establishes a single connection to endpoint
	Connect(ctx context.Context, endpoint string) (net.Conn, error)

	// GetName returns the name of the transport type (e.g., "unix", "tcp")
	GetName() string

	// UpgradeConnection applies protocol-specific settings to an established connection
	UpgradeConnection(conn net.Conn, config common.ClientConfig) error
}

// -----------------------------------------------------------
// Helper Types
// -----------------------------------------------------------

// responseResult contains the result of a request
type responseResult struct {
	data []byte
	err  error
}

// connState is one established net connection and the requests waiting on it
type connState struct {
	conn    net.Conn
	pending *xsync.MapOf[uint64, chan responseResult]
}

// clientConnection is a slot in the pool of an endpoint. It redials when its connection broke.
type clientConnection struct {
	endpoint string
	parent   *clientTransport
	mu       sync.Mutex // protects state and writes to the connection
	state    *connState
}

// endpointPool holds the connections to a single endpoint
type endpointPool struct {
	conns []*clientConnection
	next  atomic.Uint64
}

// clientTransport implements the core client transport functionality
// independent of the specific transport medium (unix, tcp, etc.)
type clientTransport struct {
	connector     IClientConnector
	config        common.ClientConfig
	pools         *xsync.MapOf[string, *endpointPool]
	nextRequestID atomic.Uint64
	stopping      atomic.Bool
}

// -----------------------------------------------------------
// Transport Factory Method (used for tcp, unix, etc.)
// -----------------------------------------------------------

// NewBaseClientTransport creates a new base client transport with the specified connector
func NewBaseClientTransport(connector IClientConnector) transport.IRPCClientTransport {
	return &clientTransport{
		connector: connector,
		pools:     xsync.NewMapOf[string, *endpointPool](),
	}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IRPCClientTransport)
// --------------------------------------------------------------------------

func (t *clientTransport) Connect(config common.ClientConfig) error {
	if len(config.Transport.Endpoints) == 0 {
		return fmt.Errorf("no endpoints provided")
	}

	// Close all existing connections
	_ = t.Close()

	t.config = config
	t.stopping.Store(false)

	Logger.Infof("Using %s transport for %d endpoints (%d connections per endpoint)",
		t.connector.GetName(), len(config.Transport.Endpoints), t.connectionsPerEndpoint())
	return nil
}

func (t *clientTransport) Send(ctx context.Context, endpoint string, shardId uint64, req []byte) ([]byte, error) {
	if t.stopping.Load() {
		return nil, ErrTransportClosed
	}

	// Generate a unique request ID
	requestID := t.nextRequestID.Add(1)

	pool, _ := t.pools.LoadOrCompute(endpoint, func() *endpointPool {
		return t.newPool(endpoint)
	})

	// Simple Round Robin over the connections of the endpoint
	conn := pool.conns[0]
	if n := len(pool.conns); n > 1 {
		conn = pool.conns[pool.next.Add(1)%uint64(n)]
	}

	return conn.send(ctx, shardId, requestID, req)
}

func (t *clientTransport) Close() error {
	t.stopping.Store(true)

	var result error
	t.pools.Range(func(endpoint string, pool *endpointPool) bool {
		for _, c := range pool.conns {
			if err := c.close(); err != nil {
				result = multierror.Append(result, fmt.Errorf("%s: %w", endpoint, err))
			}
		}
		t.pools.Delete(endpoint)
		return true
	})
	return result
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

func (t *clientTransport) connectionsPerEndpoint() int {
	if t.config.Transport.ConnectionsPerEndpoint > 0 {
		return t.config.Transport.ConnectionsPerEndpoint
	}
	return 1
}

// newPool creates the (not yet connected) connection slots of an endpoint
func (t *clientTransport) newPool(endpoint string) *endpointPool {
	pool := &endpointPool{conns: make([]*clientConnection, t.connectionsPerEndpoint())}
	for i := range pool.conns {
		pool.conns[i] = &clientConnection{endpoint: endpoint, parent: t}
	}
	return pool
}

// send writes a request frame and waits for the matching response
func (c *clientConnection) send(ctx context.Context, shardId, requestID uint64, req []byte) ([]byte, error) {
	respCh := make(chan responseResult, 1)

	// Lock the connection only for connecting and writing
	c.mu.Lock()
	st, err := c.connect(ctx)
	if err != nil {
		c.mu.Unlock()
		return nil, err
	}

	// Register the request before writing, the response may arrive immediately
	st.pending.Store(requestID, respCh)
	defer st.pending.Delete(requestID)

	deadline, _ := ctx.Deadline() // zero time = no deadline
	if err = st.conn.SetWriteDeadline(deadline); err == nil {
		err = writeFrame(st.conn, shardId, requestID, req)
	}
	if err != nil {
		c.drop(st)
	}
	c.mu.Unlock()

	if err != nil {
		return nil, fmt.Errorf("failed to send request to %s: %w", c.endpoint, err)
	}

	// Wait for response or timeout
	select {
	case result := <-respCh:
		return result.data, result.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// connect returns the current connection, dialing a new one if needed. c.mu must be held.
func (c *clientConnection) connect(ctx context.Context) (*connState, error) {
	if c.state != nil {
		return c.state, nil
	}

	conn, err := c.parent.connector.Connect(ctx, c.endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", c.endpoint, err)
	}

	// Upgrade the connection with protocol-specific settings
	if err := c.parent.connector.UpgradeConnection(conn, c.parent.config); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to upgrade connection to %s: %w", c.endpoint, err)
	}

	c.state = &connState{
		conn:    conn,
		pending: xsync.NewMapOf[uint64, chan responseResult](),
	}
	Logger.Debugf("Connected to %s", c.endpoint)

	// Start the response reader
	go c.readResponses(c.state)
	return c.state, nil
}

// drop closes st and forgets it, so the next request redials. c.mu must be held.
func (c *clientConnection) drop(st *connState) {
	if c.state == st {
		c.state = nil
	}
	_ = st.conn.Close()
}

// close closes the current connection, if any
func (c *clientConnection) close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == nil {
		return nil
	}
	st := c.state
	c.state = nil
	return st.conn.Close()
}

// readResponses reads responses in a loop and distributes them to waiting requests.
// It returns when the connection fails, failing every request still waiting on it.
func (c *clientConnection) readResponses(st *connState) {
	for {
		// no read deadline: requests carry their own deadline through ctx
		shardID, requestID, data, err := readFrame(st.conn, nil, 0)
		if err != nil {
			c.mu.Lock()
			c.drop(st)
			c.mu.Unlock()

			// no new request can be registered on st any more
			failure := responseResult{err: fmt.Errorf("connection to %s lost: %w", c.endpoint, err)}
			st.pending.Range(func(_ uint64, ch chan responseResult) bool {
				select {
				case ch <- failure:
				default:
				}
				return true
			})

			if !errors.Is(err, net.ErrClosed) {
				Logger.Debugf("Connection to %s closed: %v", c.endpoint, err)
			}
			return
		}

		respCh, found := st.pending.Load(requestID)
		if !found {
			// the request already gave up (deadline passed)
			Logger.Debugf("Received response for unknown request ID %d with shard ID %d", requestID, shardID)
			continue
		}
		select {
		case respCh <- responseResult{data: data}:
		default:
		}
	}
}

// dialTimeout bounds connection attempts of requests without deadline
const dialTimeout = 10 * time.Second

// DialContext dials endpoint on network, bounded by ctx (or dialTimeout if ctx has no deadline)
func DialContext(ctx context.Context, network, endpoint string) (net.Conn, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, dialTimeout)
		defer cancel()
	}
	var d net.Dialer
	return d.DialContext(ctx, network, endpoint)
}
