// Package ports hands out TCP ports to sessions.
//
// Two derivations exist. The Allocator probes the kernel for free ports,
// excludes everything already recorded in the registry and commits the
// result in one transaction, retrying once when a concurrent allocator wins
// a race for the same port. Derive computes ports arithmetically from the
// session index and needs no persisted state:
//
//	port = base + index*100 + offset
package ports
