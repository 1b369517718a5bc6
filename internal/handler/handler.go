// Package handler keeps the request handlers the remote side can invoke by
// name, plus the default handler used when no name matches.
package handler

import (
	"sort"

	"github.com/rs/zerolog"
)

// Respond delivers a handler's result back to the caller. It is a no-op when
// the caller did not ask for a response.
type Respond func(data string)

// Handler handles a request from the remote side.
type Handler interface {
	Handle(data string, respond Respond)
}

// Func is a function adapter for Handler.
type Func func(data string, respond Respond)

func (f Func) Handle(data string, respond Respond) { f(data, respond) }

// DefaultResponse is what the built-in default handler answers with.
const DefaultResponse = "DefaultHandler response data"

// Default logs the request and answers with DefaultResponse. The payload
// itself is only logged at trace level.
type Default struct {
	Log zerolog.Logger
}

func (d Default) Handle(data string, respond Respond) {
	d.Log.Debug().Int("bytes", len(data)).Msg("default handler received request")
	d.Log.Trace().Str("data", data).Msg("default handler payload")
	if respond != nil {
		respond(DefaultResponse)
	}
}

// Registry maps handler names to handlers. It is not safe for concurrent use;
// the bridge loop owns it.
type Registry struct {
	named map[string]Handler
	def   Handler
}

// NewRegistry returns a Registry falling back to def, or to a Default handler
// writing to a disabled logger when def is nil.
func NewRegistry(def Handler) *Registry {
	if def == nil {
		def = Default{Log: zerolog.Nop()}
	}
	return &Registry{named: make(map[string]Handler), def: def}
}

// Register stores h under name, replacing any previous handler. A nil handler
// is ignored.
func (r *Registry) Register(name string, h Handler) {
	if h == nil {
		return
	}
	r.named[name] = h
}

// SetDefault replaces the default handler. A nil handler is ignored.
func (r *Registry) SetDefault(h Handler) {
	if h != nil {
		r.def = h
	}
}

// Resolve returns the handler registered under name, or the default handler
// when name is empty or unknown. The second result reports whether the named
// handler was found.
func (r *Registry) Resolve(name string) (Handler, bool) {
	if name != "" {
		if h, ok := r.named[name]; ok {
			return h, true
		}
	}
	return r.def, false
}

// Names lists the registered handler names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.named))
	for n := range r.named {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
