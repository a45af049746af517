//go:build !linux
// +build !linux

// File: reactor/reactor_stub.go
// License: Apache-2.0
//
// Stub backend for platforms without an epoll-equivalent wired up yet.

package reactor

import "errors"

func newPlatformBackend() (backend, error) {
	return nil, errors.New("reactor: no readiness backend for this platform")
}
