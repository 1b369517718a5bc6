package bridge

import (
	"time"

	"github.com/rs/zerolog"
)

// Option configures a Bridge.
type Option func(*options)

type options struct {
	log            *zerolog.Logger
	defaultHandler Handler
	scriptURL      string
	callbackPrefix string
	callbackTTL    time.Duration
	onExpired      func(id string)
	now            func() time.Time
}

const minSweepInterval = 5 * time.Millisecond

func (o options) sweepInterval() time.Duration {
	d := o.callbackTTL / 2
	if d < minSweepInterval {
		d = minSweepInterval
	}
	return d
}

// WithLogger sets the logger; defaults to logx.Log tagged with component=bridge.
func WithLogger(l zerolog.Logger) Option {
	return func(o *options) { o.log = &l }
}

// WithDefaultHandler sets the handler for requests naming no registered handler.
func WithDefaultHandler(h Handler) Option {
	return func(o *options) { o.defaultHandler = h }
}

// WithScriptURL sets a script injected into the page on the ready signal.
func WithScriptURL(u string) Option {
	return func(o *options) { o.scriptURL = u }
}

// WithCallbackPrefix overrides the prefix of generated callback ids.
func WithCallbackPrefix(p string) Option {
	return func(o *options) { o.callbackPrefix = p }
}

// WithCallbackTTL drops callbacks that receive no response within ttl.
// Zero keeps callbacks until the bridge stops.
func WithCallbackTTL(ttl time.Duration) Option {
	return func(o *options) { o.callbackTTL = ttl }
}

// WithExpiredHook is called from the bridge loop with the id of every
// callback dropped by WithCallbackTTL.
func WithExpiredHook(fn func(id string)) Option {
	return func(o *options) { o.onExpired = fn }
}
