// File: net/socket.go
// License: Apache-2.0
//
// Socket wraps a raw, non-blocking TCP file descriptor with suspend-until-
// ready semantics driven by vial.WaitForRead/WaitForWrite, instead of
// net.Conn's goroutine-blocks-an-OS-thread model.
package net

import (
	"fmt"
	"net"
	"strconv"

	"golang.org/x/sys/unix"

	"github.com/vial-run/vial"
)

// Socket is a non-blocking TCP file descriptor. The zero value is not
// usable; construct one with Listen, Dial, or the Socket an Accept
// returns.
type Socket struct {
	fd int
}

// FD returns the underlying file descriptor, for callers (tests,
// instrumentation) that need to reach past the Socket abstraction.
func (s *Socket) FD() int { return s.fd }

// Listen creates a non-blocking TCP socket bound to addr (host:port, host
// may be empty for any interface) and puts it into the listening state.
func Listen(addr string) (*Socket, error) {
	sa, err := resolveSockaddr(addr)
	if err != nil {
		return nil, err
	}
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM, 0)
	if err != nil {
		return nil, fmt.Errorf("net: socket: %w", err)
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("net: setsockopt SO_REUSEADDR: %w", err)
	}
	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("net: bind: %w", err)
	}
	if err := unix.Listen(fd, unix.SOMAXCONN); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("net: listen: %w", err)
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("net: set nonblock: %w", err)
	}
	return &Socket{fd: fd}, nil
}

func resolveSockaddr(addr string) (unix.Sockaddr, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, fmt.Errorf("net: %w", err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("net: bad port %q: %w", portStr, err)
	}
	sa4 := &unix.SockaddrInet4{Port: port}
	if host == "" {
		sa4.Addr = [4]byte{0, 0, 0, 0}
		return sa4, nil
	}
	ip := net.ParseIP(host)
	if ip == nil {
		ips, err := net.LookupIP(host)
		if err != nil || len(ips) == 0 {
			return nil, fmt.Errorf("net: cannot resolve host %q", host)
		}
		ip = ips[0]
	}
	ip4 := ip.To4()
	if ip4 == nil {
		return nil, fmt.Errorf("net: only IPv4 is supported, got %v", ip)
	}
	copy(sa4.Addr[:], ip4)
	return sa4, nil
}

// Dial opens a non-blocking TCP connection to addr, suspending the
// calling task until the connect completes.
func Dial(ctx *vial.Context, addr string) (*Socket, error) {
	sa, err := resolveSockaddr(addr)
	if err != nil {
		return nil, err
	}
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM, 0)
	if err != nil {
		return nil, fmt.Errorf("net: socket: %w", err)
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("net: set nonblock: %w", err)
	}

	err = unix.Connect(fd, sa)
	if err == nil {
		return &Socket{fd: fd}, nil
	}
	if err != unix.EINPROGRESS {
		unix.Close(fd)
		return nil, fmt.Errorf("net: connect: %w", err)
	}

	vial.WaitForWrite(ctx, fd)

	errno, err := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ERROR)
	if err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("net: getsockopt SO_ERROR: %w", err)
	}
	if errno != 0 {
		unix.Close(fd)
		return nil, fmt.Errorf("net: connect: %w", unix.Errno(errno))
	}
	return &Socket{fd: fd}, nil
}

// Accept suspends the calling task until a connection is pending, then
// returns it as a non-blocking Socket.
func Accept(ctx *vial.Context, l *Socket) (*Socket, error) {
	for {
		nfd, _, err := unix.Accept4(l.fd, unix.SOCK_NONBLOCK)
		if err == nil {
			return &Socket{fd: nfd}, nil
		}
		if err != unix.EAGAIN && err != unix.EWOULDBLOCK {
			return nil, fmt.Errorf("net: accept: %w", err)
		}
		vial.WaitForRead(ctx, l.fd)
	}
}

// Read suspends the calling task until s is readable, then reads into buf.
// It returns (0, nil) on EOF (peer closed), matching io.Reader's short-read
// convention rather than returning an error for the ordinary end of a
// connection.
func Read(ctx *vial.Context, s *Socket, buf []byte) (int, error) {
	for {
		n, err := unix.Read(s.fd, buf)
		if err == nil {
			return n, nil
		}
		if err != unix.EAGAIN && err != unix.EWOULDBLOCK {
			return 0, fmt.Errorf("net: read: %w", err)
		}
		vial.WaitForRead(ctx, s.fd)
	}
}

// Write suspends the calling task until s is writable, then writes buf.
// Short writes from the kernel are retried against the remaining bytes
// until buf is fully written or an error occurs.
func Write(ctx *vial.Context, s *Socket, buf []byte) (int, error) {
	written := 0
	for written < len(buf) {
		n, err := unix.Write(s.fd, buf[written:])
		if err != nil {
			if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
				vial.WaitForWrite(ctx, s.fd)
				continue
			}
			return written, fmt.Errorf("net: write: %w", err)
		}
		written += n
	}
	return written, nil
}

// Close unregisters the socket's fd from vial.DefaultReactor (when Run has
// installed one), dropping any armed callbacks, and then closes the fd. A
// Reactor other than vial.DefaultReactor is not touched.
func (s *Socket) Close() error {
	if r := vial.DefaultReactor(); r != nil {
		_ = r.Unregister(s.fd)
	}
	return unix.Close(s.fd)
}
