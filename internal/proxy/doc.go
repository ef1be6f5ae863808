// Package proxy implements the client-facing side of socks5d.
//
// SOCKS5Server accepts connections and runs one session per client: the
// handshake, resolution of the requested target, the connect to the first
// reachable candidate, and the bidirectional relay. It also holds the
// listener and relay plumbing the server is built from.
package proxy
