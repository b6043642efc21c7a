/*
 * SPDX-License-Identifier: AGPL-3.0-or-later
 * Copyright 2021 Kopano and its licensors
 */

package utils

import (
	"context"
	"sync/atomic"
)

// A Broadcaster fans out published values to all of its subscribers. Every
// subscriber gets its own buffered channel. Slow subscribers miss values
// instead of blocking the publisher. Calls made from one goroutine are seen by
// the pump in call order.
type Broadcaster[T any] struct {
	bufferSize int
	stopped    atomic.Bool

	publishCh     chan T
	subscribeCh   chan chan T
	unsubscribeCh chan chan T
	stopCh        chan struct{}
}

func NewBroadcaster[T any]() *Broadcaster[T] {
	return &Broadcaster[T]{
		bufferSize: 10,

		publishCh:     make(chan T),
		subscribeCh:   make(chan chan T),
		unsubscribeCh: make(chan chan T),
		stopCh:        make(chan struct{}),
	}
}

func (b *Broadcaster[T]) SetBufferSize(bufferSize int) {
	b.bufferSize = bufferSize
}

// Start runs the pump. It blocks until Stop is called or the provided context
// is done.
func (b *Broadcaster[T]) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}

	subscribers := make(map[chan T]struct{})

	for {
		select {
		case messageCh := <-b.subscribeCh:
			subscribers[messageCh] = struct{}{}

		case messageCh := <-b.unsubscribeCh:
			delete(subscribers, messageCh)
			close(messageCh)

		case msg := <-b.publishCh:
			for messageCh := range subscribers {
				select {
				case messageCh <- msg:
				default:
				}
			}

		case <-b.stopCh:
			for messageCh := range subscribers {
				close(messageCh)
			}
			return

		case <-ctx.Done():
			b.Stop()
		}
	}
}

func (b *Broadcaster[T]) Stop() {
	if b.stopped.CompareAndSwap(false, true) {
		close(b.stopCh)
	}
}

func (b *Broadcaster[T]) Subscribe() chan T {
	messageCh := make(chan T, b.bufferSize)
	select {
	case b.subscribeCh <- messageCh:
	case <-b.stopCh:
		close(messageCh)
	}
	return messageCh
}

// Unsubscribe removes a channel previously returned by Subscribe. The channel
// is closed by the pump.
func (b *Broadcaster[T]) Unsubscribe(messageCh chan T) {
	select {
	case b.unsubscribeCh <- messageCh:
	case <-b.stopCh:
	}
}

// Broadcast publishes msg to all current subscribers. It never blocks after
// the broadcaster was stopped.
func (b *Broadcaster[T]) Broadcast(msg T) {
	select {
	case b.publishCh <- msg:
	case <-b.stopCh:
	}
}
