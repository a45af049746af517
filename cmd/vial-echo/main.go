// File: cmd/vial-echo/main.go
// License: Apache-2.0
//
// A minimal echo server exercising the vial runtime end to end: one
// listener task fire-and-forgets a handler task per connection, and
// each handler suspends on socket readiness rather than blocking an OS
// thread.
package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/vial-run/vial"
	"github.com/vial-run/vial/bufpool"
	vnet "github.com/vial-run/vial/net"
)

const listenAddr = ":8080"

var buffers = bufpool.NewBytes(4096)

// closeClient unregisters client's fd from the reactor before closing it.
// Without this, a closed fd that was once suspended on (and so left behind
// in the reactor's watched set) can be reassigned by the kernel to a later
// socket, and a stale "watched" entry would make that socket's first
// registration call epoll_ctl(MOD) on an fd the kernel never re-added.
func closeClient(client *vnet.Socket) {
	if r := vial.DefaultReactor(); r != nil {
		_ = r.Unregister(client.FD())
	}
	client.Close()
}

func handleClient(ctx *vial.Context, client *vnet.Socket) vial.Result[int] {
	defer closeClient(client)
	buf := buffers.Get()
	defer buffers.Put(buf)

	for {
		n, err := vnet.Read(ctx, client, buf)
		if err != nil {
			log.Printf("[fd:%d] read error: %v", client.FD(), err)
			return vial.Failed[int](err)
		}
		if n == 0 {
			log.Printf("[fd:%d] client disconnected", client.FD())
			return vial.Ok(0)
		}

		log.Printf("[fd:%d] echoing %d bytes", client.FD(), n)
		if _, err := vnet.Write(ctx, client, buf[:n]); err != nil {
			log.Printf("[fd:%d] write error: %v", client.FD(), err)
			return vial.Failed[int](err)
		}
	}
}

func echoServer(ctx *vial.Context) vial.Result[int] {
	listener, err := vnet.Listen(listenAddr)
	if err != nil {
		return vial.Failed[int](fmt.Errorf("listen: %w", err))
	}
	defer listener.Close()

	log.Printf("[listener fd:%d] listening on %s", listener.FD(), listenAddr)

	sched := vial.DefaultScheduler()
	for {
		client, err := vnet.Accept(ctx, listener)
		if err != nil {
			log.Printf("[listener fd:%d] accept error: %v", listener.FD(), err)
			continue
		}
		log.Printf("[fd:%d] new client connected", client.FD())
		vial.FireAndForget(sched, func(ctx *vial.Context) vial.Result[int] {
			return handleClient(ctx, client)
		})
	}
}

func main() {
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		log.Printf("%v received, exiting...", sig)
		vial.ShutdownAndExit(0)
	}()

	os.Exit(vial.Run(echoServer))
}
