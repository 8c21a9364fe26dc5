// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bridge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"
)

// TickInterval is the period of the poll loop's housekeeping
const TickInterval = 10 * time.Millisecond

const postQueueDepth = 256

// unit is the part of a bridge unit driven by the poll loop
type unit interface {
	Feed(data []byte, now time.Time)
	Tick(now time.Time)
	Drain(w io.Writer) error
}

// poster serializes work onto the loop goroutine
type poster struct {
	ch   chan func()
	done <-chan struct{}
}

func newPoster(ctx context.Context) *poster {
	return &poster{ch: make(chan func(), postQueueDepth), done: ctx.Done()}
}

func (p *poster) post(fn func()) {
	select {
	case p.ch <- fn:
	case <-p.done:
	}
}

// runLoop owns u for its lifetime. A reader goroutine moves raw bytes
// from conn into a channel; everything else happens here.
func runLoop(ctx context.Context, conn io.ReadWriter, u unit, p *poster) error {
	rx := make(chan []byte, 64)
	rxErr := make(chan error, 1)

	go func() {
		buf := make([]byte, 256)
		for {
			n, err := conn.Read(buf)
			if n > 0 {
				data := append([]byte(nil), buf[:n]...)
				select {
				case rx <- data:
				case <-ctx.Done():
					return
				}
			}
			if err != nil {
				rxErr <- err
				return
			}
		}
	}()

	ticker := time.NewTicker(TickInterval)
	defer ticker.Stop()

	if err := u.Drain(conn); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case data := <-rx:
			u.Feed(data, time.Now())
		case fn := <-p.ch:
			fn()
		case err := <-rxErr:
			for len(rx) > 0 {
				u.Feed(<-rx, time.Now())
			}
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("read: %w", err)
		case now := <-ticker.C:
			u.Tick(now)
			if err := u.Drain(conn); err != nil {
				return err
			}
		}
	}
}
