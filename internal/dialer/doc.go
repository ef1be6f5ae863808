// Package dialer opens the outbound side of a proxied connection.
//
// A Dialer reaches a target either directly or through an upstream proxy
// (HTTP CONNECT or SOCKS5). ConnectFirst walks the resolved candidates of a
// request in order and returns the first connection that succeeds.
package dialer
