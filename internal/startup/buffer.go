// Package startup holds outbound messages until the page signals it is ready.
package startup

import "github.com/gaspardpetit/jsbridge/internal/message"

// Buffer queues messages in FIFO order until it is drained. Draining happens
// at most once; afterwards the buffer stays inactive for good. It is not safe
// for concurrent use.
type Buffer struct {
	msgs    []message.Message
	drained bool
}

// Add appends m while buffering. It returns false once the buffer has been
// drained, in which case the caller must transmit m directly.
func (b *Buffer) Add(m message.Message) bool {
	if b.drained {
		return false
	}
	b.msgs = append(b.msgs, m)
	return true
}

// Drain returns the buffered messages in insertion order and deactivates the
// buffer. Calls after the first return nil.
func (b *Buffer) Drain() []message.Message {
	if b.drained {
		return nil
	}
	b.drained = true
	msgs := b.msgs
	b.msgs = nil
	return msgs
}

// Drained reports whether Drain has been called.
func (b *Buffer) Drained() bool { return b.drained }

// Len returns the number of buffered messages.
func (b *Buffer) Len() int { return len(b.msgs) }
