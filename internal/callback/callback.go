// Package callback holds the callbacks parked alongside outbound requests
// until the matching response arrives.
package callback

import (
	"sort"
	"strconv"
	"time"
)

// Func is a one-shot continuation invoked with the response payload.
type Func func(data string)

// DefaultPrefix is prepended to generated callback ids.
const DefaultPrefix = "GO_CB_"

// IDGenerator produces callback ids of the form <prefix><counter>_<unix-millis>.
// The counter is strictly increasing, so ids generated within the same
// millisecond still differ.
type IDGenerator struct {
	prefix string
	next   uint64
	now    func() time.Time
}

// NewIDGenerator returns a generator using prefix, or DefaultPrefix when empty.
func NewIDGenerator(prefix string) *IDGenerator {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &IDGenerator{prefix: prefix, now: time.Now}
}

// Next allocates a new callback id.
func (g *IDGenerator) Next() string {
	g.next++
	return g.prefix + strconv.FormatUint(g.next, 10) + "_" + strconv.FormatInt(g.now().UnixMilli(), 10)
}

type entry struct {
	fn       Func
	deadline time.Time
}

// Registry maps callback ids to pending callbacks. It is not safe for
// concurrent use; the bridge loop owns it.
type Registry struct {
	pending map[string]entry
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{pending: make(map[string]entry)}
}

// Register parks fn under id. An existing callback under the same id is
// replaced and Register reports true. A zero deadline never expires.
func (r *Registry) Register(id string, fn Func, deadline time.Time) (replaced bool) {
	_, replaced = r.pending[id]
	r.pending[id] = entry{fn: fn, deadline: deadline}
	return replaced
}

// Resolve removes and returns the callback registered under id.
func (r *Registry) Resolve(id string) (Func, bool) {
	e, ok := r.pending[id]
	if !ok {
		return nil, false
	}
	delete(r.pending, id)
	return e.fn, true
}

// Sweep removes every callback whose deadline is before now and returns
// their ids in sorted order. Swept callbacks are never invoked.
func (r *Registry) Sweep(now time.Time) []string {
	var expired []string
	for id, e := range r.pending {
		if !e.deadline.IsZero() && e.deadline.Before(now) {
			expired = append(expired, id)
			delete(r.pending, id)
		}
	}
	sort.Strings(expired)
	return expired
}

// Len returns the number of pending callbacks.
func (r *Registry) Len() int { return len(r.pending) }

// Reset abandons every pending callback.
func (r *Registry) Reset() int {
	n := len(r.pending)
	r.pending = make(map[string]entry)
	return n
}
