// Package outputs routes committed tables to whatever consumes them. A send
// is a full snapshot: each receiver replaces what it previously held for the
// channel, and a nil table retracts it.
package outputs

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/carbocation/exprnorm/table"
)

// Receiver consumes tables sent on a channel.
type Receiver interface {
	Receive(channel string, t *table.Table) error
}

// ReceiverFunc adapts a function to the Receiver interface.
type ReceiverFunc func(channel string, t *table.Table) error

func (f ReceiverFunc) Receive(channel string, t *table.Table) error {
	return f(channel, t)
}

// Hub fans tables out to the receivers subscribed to each channel and keeps
// the last table sent on each.
type Hub struct {
	mu        sync.RWMutex
	receivers map[string][]Receiver
	last      map[string]*table.Table
}

func NewHub() *Hub {
	return &Hub{
		receivers: make(map[string][]Receiver),
		last:      make(map[string]*table.Table),
	}
}

// Subscribe registers r on a channel. If a table has already been sent on the
// channel, r receives it immediately.
func (h *Hub) Subscribe(channel string, r Receiver) error {
	h.mu.Lock()
	h.receivers[channel] = append(h.receivers[channel], r)
	last, ok := h.last[channel]
	h.mu.Unlock()

	if !ok {
		return nil
	}
	return r.Receive(channel, last)
}

// Send delivers t to every receiver of the channel. All receivers are tried;
// failures are reported together.
func (h *Hub) Send(channel string, t *table.Table) error {
	h.mu.Lock()
	h.last[channel] = t
	receivers := append([]Receiver(nil), h.receivers[channel]...)
	h.mu.Unlock()

	var failures []string
	for _, r := range receivers {
		if err := r.Receive(channel, t); err != nil {
			failures = append(failures, err.Error())
		}
	}

	if len(failures) > 0 {
		return fmt.Errorf("channel %q: %s", channel, strings.Join(failures, "; "))
	}

	return nil
}

// Last returns the table most recently sent on the channel, or nil.
func (h *Hub) Last(channel string) *table.Table {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.last[channel]
}

// Channels lists the channels that have been sent on or subscribed to.
func (h *Hub) Channels() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	seen := make(map[string]struct{})
	for c := range h.receivers {
		seen[c] = struct{}{}
	}
	for c := range h.last {
		seen[c] = struct{}{}
	}

	out := make([]string, 0, len(seen))
	for c := range seen {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// Identifier turns a channel or column name into a lower case identifier made
// of letters, digits and underscores that does not start with a digit.
func Identifier(name string) string {
	var b strings.Builder
	underscore := false
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			underscore = false
		default:
			if !underscore && b.Len() > 0 {
				b.WriteByte('_')
				underscore = true
			}
		}
	}

	out := strings.TrimSuffix(b.String(), "_")
	if out == "" {
		return "_"
	}
	if out[0] >= '0' && out[0] <= '9' {
		out = "_" + out
	}
	return out
}
