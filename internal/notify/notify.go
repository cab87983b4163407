// Package notify delivers transient, user-visible notifications: the
// terminal equivalent of a toast. Notifications never block and never ask
// for input; confirmations are a separate concern (see controller.Confirmer).
package notify

import (
	"fmt"
	"io"
	"sync"
)

// Notifier reports the outcome of a user action.
type Notifier interface {
	Success(msg string)
	Error(msg string)
}

// Writer prints each notification as a single line.
type Writer struct {
	mu  sync.Mutex
	out io.Writer
}

func NewWriter(out io.Writer) *Writer {
	return &Writer{out: out}
}

func (w *Writer) Success(msg string) { w.print("✓", msg) }
func (w *Writer) Error(msg string)   { w.print("✗", msg) }

func (w *Writer) print(mark, msg string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	fmt.Fprintf(w.out, "%s %s\n", mark, msg)
}

// Kind distinguishes recorded notifications.
type Kind string

const (
	KindSuccess Kind = "success"
	KindError   Kind = "error"
)

// Message is one recorded notification.
type Message struct {
	Kind Kind
	Text string
}

// Recorder keeps every notification in memory. Tests use it to assert what
// the user would have seen.
type Recorder struct {
	mu       sync.Mutex
	messages []Message
}

func (r *Recorder) Success(msg string) { r.add(KindSuccess, msg) }
func (r *Recorder) Error(msg string)   { r.add(KindError, msg) }

func (r *Recorder) add(kind Kind, msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, Message{Kind: kind, Text: msg})
}

// Messages returns a copy of everything recorded so far.
func (r *Recorder) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Message, len(r.messages))
	copy(out, r.messages)
	return out
}

// Last returns the most recent notification, or the zero Message.
func (r *Recorder) Last() Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.messages) == 0 {
		return Message{}
	}
	return r.messages[len(r.messages)-1]
}

// Discard drops every notification.
var Discard Notifier = discard{}

type discard struct{}

func (discard) Success(string) {}
func (discard) Error(string)   {}
