// Package registry tracks remote peers by address: how many datagrams each
// has sent and when it was last heard from. A Sweeper evicts peers that stay
// silent past the inactivity timeout.
package registry
