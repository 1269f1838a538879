package orchestrator

import (
	"context"
	"errors"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServiceManagerStopsOthersOnFailure(t *testing.T) {
	stopped := make(chan struct{})
	sm := NewServiceManager(Service{Name: "waiter", Run: func(ctx context.Context) error {
		<-ctx.Done()
		close(stopped)
		return ctx.Err()
	}})
	sm.Add("failer", func(ctx context.Context) error {
		return errors.New("boom")
	})

	err := sm.Run(context.Background())
	assert.EqualError(t, err, "boom")

	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("waiter was not cancelled")
	}
}

func TestServiceManagerCancelledIsClean(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	sm := NewServiceManager()
	sm.Add("waiter", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	cancel()
	assert.NoError(t, sm.Run(ctx))
}

func TestHTTPServiceShutsDown(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	srv := &http.Server{Addr: addr, Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- HTTPService(srv, time.Second)(ctx) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr)
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusNoContent
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not shut down")
	}
}
