// Package socks5 implements the server side of the SOCKS5 (RFC 1928)
// handshake used by socks5d: method negotiation, CONNECT request parsing,
// and the fixed-size reply.
//
// Protocol constants are taken from github.com/txthinking/socks5 so the
// wire values live in one place. The client-side helpers in client.go wrap
// the same library to chain through an upstream SOCKS5 proxy.
//
// Functions here only read and write bytes; resolution, dialing and relaying
// belong to internal/resolver, internal/dialer and internal/proxy.
package socks5
