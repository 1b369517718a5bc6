// Package bridge implements the host side of the web view message bridge:
// it sends messages and requests to the page, correlates the page's
// responses with parked callbacks, and routes the page's requests to
// registered handlers.
//
// All bridge state is owned by the goroutine running Run. Public methods
// post work to it and return immediately, so they are safe to call from any
// goroutine, including from inside handlers and callbacks. Close does not wait
// for the loop; callers that need to wait receive from Done.
package bridge

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/gaspardpetit/jsbridge/internal/callback"
	"github.com/gaspardpetit/jsbridge/internal/handler"
	"github.com/gaspardpetit/jsbridge/internal/jsurl"
	"github.com/gaspardpetit/jsbridge/internal/logx"
	"github.com/gaspardpetit/jsbridge/internal/message"
	"github.com/gaspardpetit/jsbridge/internal/metrics"
	"github.com/gaspardpetit/jsbridge/internal/startup"
)

var (
	// ErrClosed is returned by operations on a bridge that has shut down.
	ErrClosed = errors.New("bridge closed")
	// ErrRunning is returned when Run is called twice.
	ErrRunning = errors.New("bridge already running")
)

// Transport loads javascript: URLs into the page. Implementations must not
// block for long; the bridge calls LoadURL from its own loop.
type Transport interface {
	LoadURL(ctx context.Context, url string) error
}

// Callback receives the payload of the response to a request.
type Callback = callback.Func

// Handler handles requests coming from the page.
type Handler = handler.Handler

// HandlerFunc adapts a function to Handler.
type HandlerFunc = handler.Func

// Respond answers a request from the page.
type Respond = handler.Respond

// Bridge is the message dispatcher between the host and the page.
type Bridge struct {
	id        string
	transport Transport
	log       zerolog.Logger
	opts      options

	// owned by the loop
	ctx       context.Context
	ids       *callback.IDGenerator
	callbacks *callback.Registry
	handlers  *handler.Registry
	startup   startup.Buffer

	pending atomic.Int64

	mu      sync.Mutex
	queue   []func()
	closed  bool
	started bool

	wake     chan struct{}
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// New constructs a Bridge delivering through t. Messages sent before
// SignalReady are held back; nothing is processed until Run is called.
func New(t Transport, opts ...Option) *Bridge {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	id := uuid.NewString()
	log := logx.Component("bridge")
	if o.log != nil {
		log = *o.log
	}
	log = log.With().Str("bridge_id", id).Logger()
	def := o.defaultHandler
	if def == nil {
		def = handler.Default{Log: log}
	}
	return &Bridge{
		id:        id,
		transport: t,
		log:       log,
		opts:      o,
		ctx:       context.Background(),
		ids:       callback.NewIDGenerator(o.callbackPrefix),
		callbacks: callback.NewRegistry(),
		handlers:  handler.NewRegistry(def),
		wake:      make(chan struct{}, 1),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// ID returns the unique identifier of this bridge instance.
func (b *Bridge) ID() string { return b.id }

// Run processes bridge work until ctx is cancelled or Close is called. Pending
// callbacks are abandoned when it returns.
func (b *Bridge) Run(ctx context.Context) error {
	b.mu.Lock()
	if b.closed {
		if !b.started {
			b.started = true
			close(b.done)
		}
		b.mu.Unlock()
		return ErrClosed
	}
	if b.started {
		b.mu.Unlock()
		return ErrRunning
	}
	b.started = true
	b.mu.Unlock()
	defer close(b.done)

	b.ctx = ctx
	var sweep <-chan time.Time
	if b.opts.callbackTTL > 0 {
		ticker := time.NewTicker(b.opts.sweepInterval())
		defer ticker.Stop()
		sweep = ticker.C
	}
	b.log.Debug().Msg("bridge loop started")
	for {
		b.drainQueue()
		select {
		case <-ctx.Done():
			b.shutdown()
			return nil
		case <-b.stop:
			b.shutdown()
			return nil
		case <-b.wake:
		case <-sweep:
			b.sweepExpired(b.opts.now())
		}
	}
}

// Close stops the bridge. It returns without waiting for Run, so handlers and
// callbacks may call it; use Done to wait for the loop to exit.
func (b *Bridge) Close() {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	b.stopOnce.Do(func() { close(b.stop) })
}

// Done is closed once Run has returned, including a Run refused with ErrClosed.
func (b *Bridge) Done() <-chan struct{} { return b.done }

func (b *Bridge) shutdown() {
	b.mu.Lock()
	b.closed = true
	dropped := len(b.queue)
	b.queue = nil
	b.mu.Unlock()
	abandoned := b.callbacks.Reset()
	b.notePending()
	b.log.Info().Int("abandoned_callbacks", abandoned).Int("dropped_ops", dropped).Msg("bridge stopped")
}

// post queues fn for the loop. The queue is unbounded so that the loop itself
// can post without blocking.
func (b *Bridge) post(fn func()) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrClosed
	}
	b.queue = append(b.queue, fn)
	b.mu.Unlock()
	select {
	case b.wake <- struct{}{}:
	default:
	}
	return nil
}

func (b *Bridge) drainQueue() {
	for {
		b.mu.Lock()
		q := b.queue
		b.queue = nil
		b.mu.Unlock()
		if len(q) == 0 {
			return
		}
		for _, fn := range q {
			fn()
		}
	}
}

// barrier waits until every operation queued so far, and any work they queue
// in turn, has been processed. It must not be called from the loop.
func (b *Bridge) barrier(ctx context.Context) error {
	for {
		idle := make(chan bool, 1)
		err := b.post(func() {
			b.mu.Lock()
			n := len(b.queue)
			b.mu.Unlock()
			idle <- n == 0
		})
		if err != nil {
			return err
		}
		select {
		case ok := <-idle:
			if ok {
				return nil
			}
		case <-ctx.Done():
			return ctx.Err()
		case <-b.done:
			return ErrClosed
		}
	}
}

// PendingCallbacks returns the number of callbacks waiting for a response as
// of the last operation the loop completed.
func (b *Bridge) PendingCallbacks() int { return int(b.pending.Load()) }

func (b *Bridge) notePending() {
	n := b.callbacks.Len()
	b.pending.Store(int64(n))
	metrics.SetPendingCallbacks(n)
}

// Send delivers data to the page's default handler. When cb is non-nil it is
// invoked once with the page's response.
func (b *Bridge) Send(data string, cb Callback) error {
	return b.CallHandler("", data, cb)
}

// CallHandler invokes the page handler registered under name, or the page's
// default handler when name is empty.
func (b *Bridge) CallHandler(name, data string, cb Callback) error {
	return b.post(func() { b.send(name, data, cb) })
}

// RegisterHandler makes h invocable by the page under name. A later
// registration under the same name replaces h; a nil handler is ignored.
func (b *Bridge) RegisterHandler(name string, h Handler) error {
	return b.post(func() {
		if h == nil {
			b.log.Warn().Str("handler", name).Msg("ignoring nil handler")
			return
		}
		b.handlers.Register(name, h)
		b.log.Debug().Str("handler", name).Strs("handlers", b.handlers.Names()).Msg("handler registered")
	})
}

// SetDefaultHandler replaces the handler used for requests naming no
// registered handler.
func (b *Bridge) SetDefaultHandler(h Handler) error {
	return b.post(func() { b.handlers.SetDefault(h) })
}

// SignalReady reports that the page has finished loading. Every call injects
// the configured script, since a reloaded page loses it. The first call also
// delivers every held message in the order it was sent.
func (b *Bridge) SignalReady() error {
	return b.post(b.ready)
}

// Flush asks the page for its queued messages. The answer arrives as a
// return URL through HandleURL.
func (b *Bridge) Flush() error {
	return b.post(func() { b.loadURL(jsurl.FetchQueue, b.handleBatch) })
}

// LoadURL loads a javascript: URL into the page. When cb is non-nil it is
// invoked with the data the page returns for the called function.
func (b *Bridge) LoadURL(jsURL string, cb Callback) error {
	return b.post(func() { b.loadURL(jsURL, cb) })
}

// HandleURL inspects a URL the page navigated to and reports whether the
// bridge consumed it. Transports call it for every intercepted navigation.
func (b *Bridge) HandleURL(raw string) bool {
	u, err := jsurl.Unescape(raw)
	if err != nil {
		b.log.Warn().Err(err).Str("url", raw).Msg("url decode failed; using raw url")
	}
	switch jsurl.Classify(u) {
	case jsurl.Return:
		function, data, ok := jsurl.ParseReturn(u)
		if !ok {
			b.log.Debug().Str("url", u).Msg("return url names no function")
			return true
		}
		if err := b.post(func() { b.resolve(function, data) }); err != nil {
			b.log.Debug().Err(err).Str("function", function).Msg("return dropped")
		}
		return true
	case jsurl.Command:
		if err := b.Flush(); err != nil {
			b.log.Debug().Err(err).Msg("flush dropped")
		}
		return true
	default:
		return false
	}
}

func (b *Bridge) send(name, data string, cb Callback) {
	m := message.Message{Data: data, HandlerName: name}
	if cb != nil {
		m.CallbackID = b.ids.Next()
		b.park(m.CallbackID, cb)
	}
	b.enqueue(m)
}

func (b *Bridge) park(id string, cb Callback) {
	var deadline time.Time
	if b.opts.callbackTTL > 0 {
		deadline = b.opts.now().Add(b.opts.callbackTTL)
	}
	if b.callbacks.Register(id, cb, deadline) {
		b.log.Debug().Str("callback_id", id).Msg("callback replaced")
	}
	b.notePending()
}

func (b *Bridge) enqueue(m message.Message) {
	if b.startup.Add(m) {
		metrics.SetStartupBuffered(b.startup.Len())
		b.log.Debug().Int("buffered", b.startup.Len()).Msg("page not ready; message held")
		return
	}
	b.deliver(m)
}

func (b *Bridge) deliver(m message.Message) {
	enc, err := message.Encode(m)
	if err != nil {
		b.log.Error().Err(err).Msg("encode message")
		return
	}
	if b.load(jsurl.HandleMessage(enc)) == nil {
		metrics.RecordSent(string(m.Role()))
	}
}

func (b *Bridge) load(url string) error {
	if err := b.transport.LoadURL(b.ctx, url); err != nil {
		metrics.RecordAnomaly(metrics.AnomalyTransportFailure)
		b.log.Warn().Err(err).Msg("transport failed to load url")
		return err
	}
	b.log.Trace().Str("url", url).Msg("url loaded")
	return nil
}

func (b *Bridge) loadURL(jsURL string, cb Callback) {
	function := jsurl.FunctionName(jsURL)
	if cb != nil {
		b.park(function, cb)
	}
	if err := b.load(jsURL); err != nil && cb != nil {
		b.callbacks.Resolve(function)
		b.notePending()
	}
}

func (b *Bridge) ready() {
	if b.opts.scriptURL != "" {
		_ = b.load(jsurl.LoadScript(b.opts.scriptURL))
	}
	if b.startup.Drained() {
		b.log.Debug().Msg("page reloaded; startup buffer already drained")
		return
	}
	held := b.startup.Drain()
	metrics.SetStartupBuffered(0)
	b.log.Info().Int("held", len(held)).Msg("page ready")
	for _, m := range held {
		b.deliver(m)
	}
}

// resolve invokes and removes the callback parked under id.
func (b *Bridge) resolve(id, data string) {
	cb, ok := b.callbacks.Resolve(id)
	if !ok {
		metrics.RecordAnomaly(metrics.AnomalyUnmatchedResponse)
		b.log.Debug().Str("response_id", id).Msg("no callback for response; dropped")
		return
	}
	b.notePending()
	defer b.recoverPanic("callback", id)
	cb(data)
}

func (b *Bridge) handleBatch(batch string) {
	msgs, err := message.DecodeBatch(batch)
	if err != nil {
		metrics.RecordAnomaly(metrics.AnomalyMalformedBatch)
		b.log.Warn().Err(err).Msg("discarding page queue")
		return
	}
	for _, m := range msgs {
		b.route(m)
	}
}

func (b *Bridge) route(m message.Message) {
	metrics.RecordReceived(string(m.Role()))
	if m.ResponseID != "" {
		b.resolve(m.ResponseID, m.ResponseData)
		return
	}
	h, found := b.handlers.Resolve(m.HandlerName)
	label := m.HandlerName
	if !found {
		if m.HandlerName != "" {
			b.log.Debug().Str("handler", m.HandlerName).Msg("no handler registered; using default")
		}
		label = ""
	}
	start := time.Now()
	b.invoke(h, label, m.Data, b.responder(m.CallbackID))
	metrics.ObserveHandlerDuration(label, time.Since(start))
}

func (b *Bridge) invoke(h Handler, label, data string, respond Respond) {
	defer b.recoverPanic("handler", label)
	h.Handle(data, respond)
}

// responder builds the continuation handed to a handler. It emits at most one
// response, and none when the request carried no callback id.
func (b *Bridge) responder(callbackID string) Respond {
	if callbackID == "" {
		return func(string) {}
	}
	var once sync.Once
	return func(data string) {
		once.Do(func() {
			err := b.post(func() {
				b.enqueue(message.Message{ResponseID: callbackID, ResponseData: data})
			})
			if err != nil {
				b.log.Debug().Err(err).Str("response_id", callbackID).Msg("response dropped")
			}
		})
	}
}

func (b *Bridge) recoverPanic(kind, name string) {
	if r := recover(); r != nil {
		metrics.RecordAnomaly(metrics.AnomalyHandlerPanic)
		b.log.Error().Interface("panic", r).Str("kind", kind).Str("name", name).Msg("recovered panic")
	}
}

func (b *Bridge) sweepExpired(now time.Time) {
	expired := b.callbacks.Sweep(now)
	if len(expired) == 0 {
		return
	}
	b.notePending()
	for _, id := range expired {
		metrics.RecordAnomaly(metrics.AnomalyExpiredCallback)
		b.log.Warn().Str("callback_id", id).Msg("callback expired without response")
		if b.opts.onExpired != nil {
			b.opts.onExpired(id)
		}
	}
}
