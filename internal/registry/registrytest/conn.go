// Package registrytest provides an in-memory registry.Conn for tests.
package registrytest

import (
	"encoding/json"
	"errors"
	"sync"
)

var ErrClosed = errors.New("connection closed")

// Conn records every message sent to it.
type Conn struct {
	id   string
	addr string

	mu      sync.Mutex
	msgs    [][]byte
	closed  bool
	sendErr error
}

func NewConn(id, addr string) *Conn {
	return &Conn{id: id, addr: addr}
}

func (c *Conn) ID() string         { return c.id }
func (c *Conn) RemoteAddr() string { return c.addr }

func (c *Conn) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed
}

func (c *Conn) Send(msg []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if c.sendErr != nil {
		return c.sendErr
	}
	c.msgs = append(c.msgs, append([]byte(nil), msg...))
	return nil
}

// Close marks the connection closed; later sends fail.
func (c *Conn) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

// FailSends makes Send return err while IsOpen still reports true.
func (c *Conn) FailSends(err error) {
	c.mu.Lock()
	c.sendErr = err
	c.mu.Unlock()
}

// Messages decodes every recorded message.
func (c *Conn) Messages() []map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]map[string]any, 0, len(c.msgs))
	for _, m := range c.msgs {
		var v map[string]any
		if err := json.Unmarshal(m, &v); err == nil {
			out = append(out, v)
		}
	}
	return out
}

// Kinds returns the kind field of every recorded message, in order.
func (c *Conn) Kinds() []string {
	msgs := c.Messages()
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		k, _ := m["kind"].(string)
		out = append(out, k)
	}
	return out
}

// CountKind returns how many recorded messages have the given kind.
func (c *Conn) CountKind(kind string) int {
	n := 0
	for _, k := range c.Kinds() {
		if k == kind {
			n++
		}
	}
	return n
}

// Reset drops recorded messages.
func (c *Conn) Reset() {
	c.mu.Lock()
	c.msgs = nil
	c.mu.Unlock()
}
