// Package flow holds the generate-then-send state of one form: the latest
// generated message and which generation produced it.
package flow

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/example/sems-monitoring/internal/message"
	"github.com/example/sems-monitoring/internal/notify"
)

// ErrStale is returned when a generation finished after a newer one began.
var ErrStale = errors.New("generation superseded by a newer request")

const msgNothingToSend = "Please generate a message first."

// Token identifies one generation request.
type Token uint64

// Sender is the part of the dispatcher a Flow needs.
type Sender interface {
	Dispatch(ctx context.Context, recipient, subject, body, channel string) notify.Result
}

type Flow struct {
	mu      sync.Mutex
	seq     Token
	current *message.Message
	channel message.Channel
	sender  Sender
}

func New(sender Sender) *Flow {
	return &Flow{sender: sender}
}

// Begin starts a generation. Any message from an earlier generation stops
// being sendable until the new one completes.
func (f *Flow) Begin() Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	f.current = nil
	return f.seq
}

// Generate runs gen for ch and keeps its result if tok is still the latest
// token. The kept message can only be sent on ch.
func (f *Flow) Generate(ctx context.Context, tok Token, ch message.Channel, gen func(context.Context) (message.Message, error)) (message.Message, error) {
	msg, err := gen(ctx)

	f.mu.Lock()
	defer f.mu.Unlock()
	if tok != f.seq {
		return message.Message{}, ErrStale
	}
	if err != nil {
		f.current = nil
		return message.Message{}, err
	}
	f.current = &msg
	f.channel = ch
	return msg, nil
}

// Current returns the message ready to send, if any.
func (f *Flow) Current() (message.Message, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.current == nil {
		return message.Message{}, false
	}
	return *f.current, true
}

// Send dispatches the current message and forgets it once delivered. A
// message is never sent on a channel other than the one it was drafted for.
func (f *Flow) Send(ctx context.Context, recipient, channel string) notify.Result {
	f.mu.Lock()
	if f.current == nil {
		f.mu.Unlock()
		return notify.Result{Success: false, Message: msgNothingToSend}
	}
	msg := *f.current
	drafted := f.channel
	seq := f.seq
	f.mu.Unlock()

	if ch, err := message.ParseChannel(channel); err == nil && ch != drafted {
		return notify.Result{
			Success: false,
			Message: fmt.Sprintf("This message was generated for %s. Please generate it again for %s.", drafted, ch),
		}
	}

	res := f.sender.Dispatch(ctx, recipient, msg.Subject, msg.Body, channel)
	if res.Success {
		f.mu.Lock()
		if f.seq == seq {
			f.current = nil
		}
		f.mu.Unlock()
	}
	return res
}
