package gateway

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
)

// Console prints outbound messages, for driving the bot from a shell.
type Console struct {
	mu  sync.Mutex
	Out io.Writer
}

func NewConsole(out io.Writer) *Console {
	return &Console{Out: out}
}

func (c *Console) SendText(_ context.Context, to, body string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := fmt.Fprintf(c.Out, "-> %s\n%s\n\n", to, body)
	return err
}

func (c *Console) SendInteractive(_ context.Context, to, body string, buttons []Button) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var b strings.Builder
	fmt.Fprintf(&b, "-> %s\n%s\n", to, body)
	for _, btn := range Clamp(buttons) {
		fmt.Fprintf(&b, "  [%s] %s", btn.ID, btn.Title)
		if btn.Description != "" {
			fmt.Fprintf(&b, " (%s)", btn.Description)
		}
		b.WriteString("\n")
	}
	b.WriteString("\n")
	_, err := io.WriteString(c.Out, b.String())
	return err
}

func (c *Console) MarkRead(context.Context, string) error { return nil }

// Outbound is one message captured by a Recorder.
type Outbound struct {
	To      string
	Body    string
	Buttons []Button
}

// Recorder keeps every outbound message in memory. Fail, when set, is
// consulted before each send and its error returned.
type Recorder struct {
	mu   sync.Mutex
	Sent []Outbound
	Read []string
	Fail func(to string) error
}

func (r *Recorder) SendText(_ context.Context, to, body string) error {
	return r.record(Outbound{To: to, Body: body})
}

func (r *Recorder) SendInteractive(_ context.Context, to, body string, buttons []Button) error {
	return r.record(Outbound{To: to, Body: body, Buttons: Clamp(buttons)})
}

func (r *Recorder) MarkRead(_ context.Context, messageID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Read = append(r.Read, messageID)
	return nil
}

func (r *Recorder) record(m Outbound) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Fail != nil {
		if err := r.Fail(m.To); err != nil {
			return err
		}
	}
	r.Sent = append(r.Sent, m)
	return nil
}

// Messages returns a copy of the captured messages.
func (r *Recorder) Messages() []Outbound {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Outbound(nil), r.Sent...)
}

// Last returns the most recent message, or the zero value.
func (r *Recorder) Last() Outbound {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.Sent) == 0 {
		return Outbound{}
	}
	return r.Sent[len(r.Sent)-1]
}

// Reset drops captured messages.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Sent = nil
	r.Read = nil
}
