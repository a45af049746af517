//go:build linux
// +build linux

// File: reactor/reactor_linux.go
// License: Apache-2.0
//
// epoll(7)-backed Reactor backend.

package reactor

import (
	"time"

	"golang.org/x/sys/unix"
)

const maxEpollEvents = 128

type epollBackend struct {
	epfd int
}

func newPlatformBackend() (backend, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}
	return &epollBackend{epfd: epfd}, nil
}

func epollEventMask(readable, writable bool) uint32 {
	var mask uint32
	if readable {
		mask |= unix.EPOLLIN
	}
	if writable {
		mask |= unix.EPOLLOUT
	}
	return mask
}

func (b *epollBackend) add(fd int, readable, writable bool) error {
	ev := unix.EpollEvent{Events: epollEventMask(readable, writable), Fd: int32(fd)}
	return unix.EpollCtl(b.epfd, unix.EPOLL_CTL_ADD, fd, &ev)
}

func (b *epollBackend) modify(fd int, readable, writable bool) error {
	ev := unix.EpollEvent{Events: epollEventMask(readable, writable), Fd: int32(fd)}
	return unix.EpollCtl(b.epfd, unix.EPOLL_CTL_MOD, fd, &ev)
}

func (b *epollBackend) remove(fd int) error {
	// Linux ignores the event argument for EPOLL_CTL_DEL, but older
	// kernels require a non-nil pointer.
	return unix.EpollCtl(b.epfd, unix.EPOLL_CTL_DEL, fd, &unix.EpollEvent{})
}

func (b *epollBackend) wait(timeout time.Duration) (readyRead, readyWrite []int, err error) {
	events := make([]unix.EpollEvent, maxEpollEvents)
	n, err := unix.EpollWait(b.epfd, events, int(timeout/time.Millisecond))
	if err != nil {
		if err == unix.EINTR {
			return nil, nil, nil
		}
		return nil, nil, err
	}
	for i := 0; i < n; i++ {
		fd := int(events[i].Fd)
		mask := events[i].Events
		if mask&(unix.EPOLLIN|unix.EPOLLERR|unix.EPOLLHUP) != 0 {
			readyRead = append(readyRead, fd)
		}
		if mask&(unix.EPOLLOUT|unix.EPOLLERR|unix.EPOLLHUP) != 0 {
			readyWrite = append(readyWrite, fd)
		}
	}
	return readyRead, readyWrite, nil
}

func (b *epollBackend) close() error {
	return unix.Close(b.epfd)
}
