// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Quill Contributors

package mail

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/samber/oops"

	"github.com/quillnotes/quill/pkg/errutil"
)

// Dispatcher defaults.
const (
	DefaultWorkers     = 2
	DefaultQueueSize   = 256
	DefaultSendTimeout = 30 * time.Second
)

// FailureRecorder counts messages that could not be delivered.
type FailureRecorder interface {
	RecordMailFailure(kind string)
}

// DispatcherOptions configures a Dispatcher.
type DispatcherOptions struct {
	Workers     int
	QueueSize   int
	SendTimeout time.Duration
	Logger      *slog.Logger
	Recorder    FailureRecorder
}

type job struct {
	ctx context.Context
	msg Message
}

// Dispatcher queues messages and delivers them from background workers,
// so a slow relay never blocks an auth flow. Send fails only when the
// queue is full or the dispatcher is closed.
type Dispatcher struct {
	next     Sender
	timeout  time.Duration
	logger   *slog.Logger
	recorder FailureRecorder

	mu     sync.RWMutex
	closed bool
	queue  chan job
	wg     sync.WaitGroup
}

var _ Sender = (*Dispatcher)(nil)

// NewDispatcher creates a Dispatcher and starts its workers.
func NewDispatcher(next Sender, opts DispatcherOptions) *Dispatcher {
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = DefaultSendTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	d := &Dispatcher{
		next:     next,
		timeout:  opts.SendTimeout,
		logger:   opts.Logger,
		recorder: opts.Recorder,
		queue:    make(chan job, opts.QueueSize),
	}
	d.wg.Add(opts.Workers)
	for range opts.Workers {
		go d.work()
	}
	return d
}

// Send enqueues msg. The request context is detached from cancellation so
// the message outlives the request, but keeps its values for tracing.
func (d *Dispatcher) Send(ctx context.Context, msg Message) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return oops.Code("MAIL_DISPATCHER_CLOSED").With("kind", msg.Kind).Errorf("dispatcher is closed")
	}

	select {
	case d.queue <- job{ctx: context.WithoutCancel(ctx), msg: msg}:
		return nil
	default:
		return oops.Code("MAIL_QUEUE_FULL").With("kind", msg.Kind).Errorf("mail queue is full")
	}
}

// Close stops accepting messages and waits for queued ones to be
// delivered, or for ctx to end.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return oops.Code("MAIL_DRAIN_TIMEOUT").With("pending", len(d.queue)).Wrap(ctx.Err())
	}
}

func (d *Dispatcher) work() {
	defer d.wg.Done()
	for j := range d.queue {
		d.deliver(j)
	}
}

func (d *Dispatcher) deliver(j job) {
	ctx, cancel := context.WithTimeout(j.ctx, d.timeout)
	defer cancel()

	if err := d.next.Send(ctx, j.msg); err != nil {
		if d.recorder != nil {
			d.recorder.RecordMailFailure(j.msg.Kind)
		}
		errutil.LogError(ctx, d.logger, "mail delivery failed", err, "kind", j.msg.Kind)
	}
}
