// File: net/socket_test.go
// License: Apache-2.0

package net_test

import (
	"runtime"
	"testing"
	"time"

	"github.com/vial-run/vial"
	vnet "github.com/vial-run/vial/net"
	"github.com/vial-run/vial/reactor"
)

func TestEchoOverLoopback(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("reactor backend is only implemented for linux")
	}

	r, err := reactor.New()
	if err != nil {
		t.Fatalf("reactor.New() error: %v", err)
	}
	go r.Run()
	defer r.Stop()

	sched, err := vial.NewScheduler(2, r)
	if err != nil {
		t.Fatalf("NewScheduler() error: %v", err)
	}
	sched.Start()
	defer sched.Stop()

	listener, err := vnet.Listen("127.0.0.1:18080")
	if err != nil {
		t.Fatalf("Listen() error: %v", err)
	}
	defer listener.Close()

	serverDone := make(chan struct{})
	vial.FireAndForget(sched, func(ctx *vial.Context) vial.Result[int] {
		defer close(serverDone)
		client, err := vnet.Accept(ctx, listener)
		if err != nil {
			t.Errorf("Accept() error: %v", err)
			return vial.Failed[int](err)
		}
		defer client.Close()

		buf := make([]byte, 64)
		n, err := vnet.Read(ctx, client, buf)
		if err != nil {
			t.Errorf("Read() error: %v", err)
			return vial.Failed[int](err)
		}
		if _, err := vnet.Write(ctx, client, buf[:n]); err != nil {
			t.Errorf("Write() error: %v", err)
			return vial.Failed[int](err)
		}
		return vial.Ok(0)
	})

	clientDone := make(chan vial.Result[string], 1)
	vial.FireAndForget(sched, func(ctx *vial.Context) vial.Result[int] {
		conn, err := vnet.Dial(ctx, "127.0.0.1:18080")
		if err != nil {
			clientDone <- vial.Failed[string](err)
			return vial.Failed[int](err)
		}
		defer conn.Close()

		if _, err := vnet.Write(ctx, conn, []byte("ping")); err != nil {
			clientDone <- vial.Failed[string](err)
			return vial.Failed[int](err)
		}
		buf := make([]byte, 64)
		n, err := vnet.Read(ctx, conn, buf)
		if err != nil {
			clientDone <- vial.Failed[string](err)
			return vial.Failed[int](err)
		}
		clientDone <- vial.Ok(string(buf[:n]))
		return vial.Ok(0)
	})

	select {
	case result := <-clientDone:
		if result.Err != nil {
			t.Fatalf("client task failed: %v", result.Err)
		}
		if result.Value != "ping" {
			t.Errorf("echoed = %q, want %q", result.Value, "ping")
		}
	case <-time.After(3 * time.Second):
		t.Fatal("echo round trip timed out")
	}

	select {
	case <-serverDone:
	case <-time.After(time.Second):
		t.Fatal("server handler never finished")
	}
}
