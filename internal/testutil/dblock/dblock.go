// Package dblock serializes Postgres integration tests across test binaries.
// go test runs packages in parallel, and each package truncates the same
// tables.
package dblock

import (
	"net"
	"os"
	"sync"
	"time"
)

const defaultLockAddr = "127.0.0.1:45432"

// Acquire blocks until this process holds the lock and returns its release
// func. The lock is a listening socket, so a crashed test binary frees it.
// DBLOCK_ADDR overrides the address.
func Acquire() func() {
	addr := os.Getenv("DBLOCK_ADDR")
	if addr == "" {
		addr = defaultLockAddr
	}
	for {
		ln, err := net.Listen("tcp", addr)
		if err == nil {
			var once sync.Once
			return func() { once.Do(func() { _ = ln.Close() }) }
		}
		time.Sleep(50 * time.Millisecond)
	}
}
