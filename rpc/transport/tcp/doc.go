// Package tcp implements the TCP transport. It only provides the connectors,
// framing, pooling and request correlation live in the base package.
//
// TCP options (TCP_NODELAY, keep-alive, linger, buffer sizes) are applied to
// both accepted and dialed connections from the TCPConf and SocketConf of the
// configuration.
package tcp
