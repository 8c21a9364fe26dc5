// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Thermoquad/mcbridge/pkg/mcp"
)

const hubClientBuffer = 4

// snapshotHub pushes CBOR display snapshots to every connected monitor.
// A client that falls behind loses intermediate snapshots, never the
// latest one it is sent.
type snapshotHub struct {
	mu      sync.Mutex
	clients map[*websocket.Conn]chan []byte
	latest  []byte

	upgrader websocket.Upgrader
}

func newSnapshotHub() *snapshotHub {
	return &snapshotHub{
		clients: make(map[*websocket.Conn]chan []byte),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  256,
			WriteBufferSize: 4096,
		},
	}
}

// publish encodes s and queues it for every client
func (h *snapshotHub) publish(s mcp.Snapshot) {
	data, err := mcp.EncodeSnapshot(s)
	if err != nil {
		log.Printf("Snapshot encode error: %v", err)
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.latest = data
	for _, ch := range h.clients {
		select {
		case ch <- data:
		default:
		}
	}
}

func (h *snapshotHub) clientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *snapshotHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("Monitor upgrade failed: %v", err)
		return
	}
	ch := make(chan []byte, hubClientBuffer)

	h.mu.Lock()
	h.clients[conn] = ch
	if h.latest != nil {
		ch <- h.latest
	}
	h.mu.Unlock()

	done := make(chan struct{})
	go func() {
		defer close(done)
		// monitors never send; reading notices the close
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	defer func() {
		h.mu.Lock()
		delete(h.clients, conn)
		h.mu.Unlock()
		conn.Close()
	}()
	for {
		select {
		case data := <-ch:
			conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

// serve runs the hub on addr until ctx is done
func (h *snapshotHub) serve(ctx context.Context, addr string) (net.Addr, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	server := &http.Server{Handler: h, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("Monitor server error: %v", err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
		// hijacked websocket connections are not closed by Shutdown
		h.mu.Lock()
		for conn := range h.clients {
			conn.Close()
		}
		h.mu.Unlock()
	}()
	return ln.Addr(), nil
}
