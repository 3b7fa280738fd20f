// Package queueconsumer implements the queue-consumption contract every
// worker in the pipeline follows: connect, pull exactly one message from an
// injected queue name, acknowledge, delete the queue, close. A process-level
// state machine (Started -> Connected -> Consumed(0|1) -> QueueDeleted ->
// Closed) is terminal on every branch, including "no message available".
package queueconsumer

import (
	"errors"
	"fmt"

	"github.com/ragnarcb/chatclip/internal/pipelineerr"
)

// State is a step in the per-process consumption state machine.
type State int

const (
	StateStarted State = iota
	StateConnected
	StateConsumed
	StateQueueDeleted
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateStarted:
		return "Started"
	case StateConnected:
		return "Connected"
	case StateConsumed:
		return "Consumed"
	case StateQueueDeleted:
		return "QueueDeleted"
	case StateClosed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// ErrAlreadyConsumed names a second consumption attempt on the same queue:
// the contract allows exactly one message per process lifetime. No Source in
// this package returns it; MockSource answers later polls with a nil message.
var ErrAlreadyConsumed = errors.New("queueconsumer: a message was already consumed from this queue")

// Source is the minimal consumer contract; Broker (amqp091) and MockSource
// both implement it.
type Source interface {
	// Connect establishes a session and declares the queue durable
	// (idempotent). Returns pipelineerr.ErrTransportUnavailable if the
	// broker is unreachable after a bounded retry budget.
	Connect() error

	// PollOne performs a single bounded get with manual acknowledgement. A
	// malformed payload is negatively-acknowledged without requeue and
	// reported as a ProtocolError rather than failing the call; the caller
	// treats that as "no usable message" and still proceeds to queue
	// deletion.
	PollOne() (*Message, error)

	// DeleteQueue removes the ephemeral queue. Idempotent.
	DeleteQueue() error

	// Close releases the session.
	Close() error
}

// Message is one payload pulled off the queue.
type Message struct {
	ID   string
	Body []byte
}

// Consumer drives a Source through the full state machine and exposes the
// current state for logging/diagnostics.
type Consumer struct {
	source Source
	state  State
}

// New wraps a Source in the state-tracking Consumer.
func New(source Source) *Consumer {
	return &Consumer{source: source, state: StateStarted}
}

// State reports the consumer's current position in the state machine.
func (c *Consumer) State() State {
	return c.state
}

// Run executes the full lifecycle: connect, poll exactly one message,
// delete the queue, close. Once connected, it always attempts queue deletion
// and close, even when the poll failed. Connect failures are returned
// immediately as fatal (transport), before any deletion or close is
// attempted; a malformed-payload poll result is not fatal and Run still
// proceeds to completion with a nil message.
func (c *Consumer) Run() (*Message, error) {
	if err := c.source.Connect(); err != nil {
		return nil, fmt.Errorf("queueconsumer: connect: %w", err)
	}
	c.state = StateConnected

	msg, pollErr := c.source.PollOne()
	c.state = StateConsumed

	// Queue deletion and close are best-effort: swallow their errors so a
	// broker hiccup during cleanup doesn't mask the real poll result, but
	// still advance the state machine so Run is always terminal.
	_ = c.source.DeleteQueue()
	c.state = StateQueueDeleted

	_ = c.source.Close()
	c.state = StateClosed

	if pollErr != nil {
		if errors.Is(pollErr, pipelineerr.ErrProtocolError) {
			// Malformed body: fatal for the message, not the process. The
			// queue was still drained and deleted above.
			return nil, nil
		}
		return nil, pollErr
	}
	return msg, nil
}
