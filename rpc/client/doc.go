// Package client implements the raftstore client runtime. An RPCStore is a
// store.IStore that talks to a replicated cluster and applies every Write and
// Remove exactly once, even when requests have to be retried.
//
// The package is built from three layers:
//
//   - leaderRPC (leader.go): sends a request to the believed leader, follows
//     NOT_LEADER hints, retries transport failures with exponential backoff
//     until the deadline and pins the cluster UUID of the first reply.
//
//   - session (session.go): opens the client session lazily, hands out the
//     exactly-once tag of every write-class request and keeps the session
//     alive while the handle is idle.
//
//   - RPCStore (client_istore.go, cluster.go): the store operations, the
//     cluster configuration and the server introspection calls.
//
// Every operation returns a store.Result. A deadline that passes yields TIMEOUT,
// the request may or may not have been applied. Replies from another cluster,
// requests the server does not understand and an expired session permanently
// fail the handle: Err returns the cause and no further write is sent.
//
// Usage Example:
//
//	config := common.ClientConfig{
//	  TimeoutSecond: 5,
//	  Transport: common.ClientTransportConfig{
//	    Endpoints: []string{"node1:8080", "node2:8080", "node3:8080"},
//	  },
//	}
//
//	s, err := client.NewRPCStore(100, config, tcp.NewTCPClientTransport(), serializer.NewBinarySerializer())
//	if err != nil {
//	  log.Fatal(err)
//	}
//	defer s.Close()
//
//	if res := s.Write("greeting", []byte("hello")); !res.IsOK() {
//	  log.Printf("write failed: %s", res)
//	}
//	value, res := s.Read("greeting")
//
// Thread Safety:
//
//	An RPCStore can be used concurrently from multiple goroutines. Concurrent
//	writes hold distinct sequence numbers of the same session.
package client
