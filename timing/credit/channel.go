// Package credit provides credit-gated channels used to connect timing units.
//
// A Channel carries items from a producer unit to a consumer unit. The
// producer may only send while it holds credits, and the consumer is the only
// party that grants credits. A credit represents one free slot in the
// consumer's buffering, so the number of items in flight is always bounded by
// what the consumer has promised to accept.
package credit

import (
	"errors"
	"fmt"

	"github.com/go-logr/logr"
)

// ErrNoCredit is reported when a send is attempted without credits.
var ErrNoCredit = errors.New("no credit available")

// ErrEmpty is reported when a receive is attempted on an empty channel.
var ErrEmpty = errors.New("channel empty")

// StallError describes a send that could not proceed because the producer
// holds no credits. It is a backpressure signal, not a failure.
type StallError struct {
	Channel string
	Pending int
}

func (e *StallError) Error() string {
	return fmt.Sprintf("channel %s: %v (%d pending)",
		e.Channel, ErrNoCredit, e.Pending)
}

// Unwrap allows errors.Is(err, ErrNoCredit).
func (e *StallError) Unwrap() error {
	return ErrNoCredit
}

// InvariantError describes a violated credit invariant. Channels panic with
// it, since it can only be caused by a bug in a unit.
type InvariantError struct {
	Channel  string
	Reason   string
	Credits  int
	Pending  int
	Granted  uint64
	Received uint64
	Capacity int
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf(
		"channel %s: %s (credits=%d pending=%d granted=%d received=%d capacity=%d)",
		e.Channel, e.Reason, e.Credits, e.Pending,
		e.Granted, e.Received, e.Capacity)
}

// Stats holds the traffic counters of a channel.
type Stats struct {
	Granted  uint64
	Sent     uint64
	Received uint64
	Stalls   uint64
}

// Option configures a Channel.
type Option func(*options)

type options struct {
	logger logr.Logger
}

// WithLogger traces channel events to the given logger at verbosity 1.
func WithLogger(logger logr.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// Channel is an ordered, credit-gated link between a producer and a consumer.
type Channel[T any] struct {
	name     string
	capacity int

	pending []T
	credits int

	stats Stats

	logger logr.Logger
}

// New creates a channel with no credits. A capacity of 0 means the channel
// does not bound the number of credits the consumer may grant.
func New[T any](name string, capacity int, opts ...Option) *Channel[T] {
	if capacity < 0 {
		panic(fmt.Sprintf("channel %s: negative capacity %d", name, capacity))
	}

	o := options{logger: logr.Discard()}
	for _, opt := range opts {
		opt(&o)
	}

	return &Channel[T]{
		name:     name,
		capacity: capacity,
		logger:   o.logger.WithValues("channel", name),
	}
}

// Name returns the channel name.
func (c *Channel[T]) Name() string {
	return c.name
}

// Capacity returns the capacity bound, 0 if unbounded.
func (c *Channel[T]) Capacity() int {
	return c.capacity
}

// Credits returns the number of credits the producer currently holds.
func (c *Channel[T]) Credits() int {
	return c.credits
}

// Len returns the number of items sent but not yet received.
func (c *Channel[T]) Len() int {
	return len(c.pending)
}

// Stats returns the traffic counters.
func (c *Channel[T]) Stats() Stats {
	return c.stats
}

// CanSend reports whether a send would succeed now.
func (c *Channel[T]) CanSend() bool {
	return c.credits > 0
}

// Send appends an item, spending one credit. Without credits it returns a
// *StallError and leaves the channel untouched.
func (c *Channel[T]) Send(item T) error {
	if c.credits == 0 {
		c.stats.Stalls++
		c.logger.V(1).Info("send stalled", "pending", len(c.pending))

		return &StallError{Channel: c.name, Pending: len(c.pending)}
	}

	c.pending = append(c.pending, item)
	c.credits--
	c.stats.Sent++

	c.logger.V(1).Info("send",
		"credits", c.credits, "pending", len(c.pending))
	c.check()

	return nil
}

// Receive pops the oldest item. It returns ErrEmpty if nothing is pending.
func (c *Channel[T]) Receive() (T, error) {
	var zero T

	if len(c.pending) == 0 {
		return zero, ErrEmpty
	}

	item := c.pending[0]
	c.pending[0] = zero
	c.pending = c.pending[1:]
	c.stats.Received++

	c.logger.V(1).Info("receive",
		"credits", c.credits, "pending", len(c.pending))
	c.check()

	return item, nil
}

// Peek returns the oldest item without removing it.
func (c *Channel[T]) Peek() (T, bool) {
	if len(c.pending) == 0 {
		var zero T
		return zero, false
	}

	return c.pending[0], true
}

// GrantCredits gives the producer n more credits. Only the consumer calls it.
func (c *Channel[T]) GrantCredits(n int) {
	if n < 0 {
		c.fail(fmt.Sprintf("negative credit grant %d", n))
	}

	if c.capacity > 0 && len(c.pending)+c.credits+n > c.capacity {
		c.fail(fmt.Sprintf("grant of %d exceeds capacity", n))
	}

	c.credits += n
	c.stats.Granted += uint64(n)

	c.logger.V(1).Info("grant",
		"n", n, "credits", c.credits, "pending", len(c.pending))
	c.check()
}

// check enforces credits >= 0 and pending + credits == granted - received.
func (c *Channel[T]) check() {
	if c.credits < 0 {
		c.fail("negative credit balance")
	}

	outstanding := c.stats.Granted - c.stats.Received
	if uint64(len(c.pending)+c.credits) != outstanding {
		c.fail("in-flight items do not match outstanding credits")
	}
}

func (c *Channel[T]) fail(reason string) {
	panic(&InvariantError{
		Channel:  c.name,
		Reason:   reason,
		Credits:  c.credits,
		Pending:  len(c.pending),
		Granted:  c.stats.Granted,
		Received: c.stats.Received,
		Capacity: c.capacity,
	})
}
