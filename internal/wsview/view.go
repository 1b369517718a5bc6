// Package wsview is a bridge transport for a page connected over a
// WebSocket. The page receives load_url frames to evaluate and reports its
// navigations and load completion back.
package wsview

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/gaspardpetit/jsbridge/internal/logx"
)

var (
	// ErrBackpressure indicates the connection's send queue is full.
	ErrBackpressure = errors.New("view backpressure")
	// ErrNotConnected indicates no page is connected.
	ErrNotConnected = errors.New("no page connected")
)

// Sink receives what the page reports; *bridge.Bridge satisfies it.
type Sink interface {
	HandleURL(url string) bool
	SignalReady() error
}

// Config tunes a View.
type Config struct {
	// SendQueue bounds the frames buffered per connection; defaults to 64.
	SendQueue int
	// AllowedOrigins lists page origins (e.g. https://app.example); empty
	// allows same-origin pages only.
	AllowedOrigins []string
	// PingInterval defaults to 30s.
	PingInterval time.Duration
	Log          *zerolog.Logger
}

// View implements bridge.Transport for one page connection at a time. A new
// connection replaces the previous one.
type View struct {
	cfg Config
	log zerolog.Logger

	mu   sync.Mutex
	sink Sink
	conn *pageConn
}

type pageConn struct {
	id     string
	ws     *websocket.Conn
	send   chan Frame
	cancel context.CancelFunc
}

// New constructs a View. Attach must be called before a page connects.
func New(cfg Config) *View {
	if cfg.SendQueue <= 0 {
		cfg.SendQueue = 64
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 30 * time.Second
	}
	log := logx.Component("wsview")
	if cfg.Log != nil {
		log = *cfg.Log
	}
	return &View{cfg: cfg, log: log}
}

// Attach sets the sink receiving page events.
func (v *View) Attach(s Sink) {
	v.mu.Lock()
	v.sink = s
	v.mu.Unlock()
}

// Connected reports whether a page is connected.
func (v *View) Connected() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.conn != nil
}

// LoadURL queues url for the connected page.
func (v *View) LoadURL(ctx context.Context, url string) error {
	v.mu.Lock()
	c := v.conn
	v.mu.Unlock()
	if c == nil {
		return ErrNotConnected
	}
	select {
	case c.send <- Frame{Type: TypeLoadURL, URL: url}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return ErrBackpressure
	}
}

// Routes returns the HTTP surface: the page WebSocket and a health check.
func (v *View) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	if len(v.cfg.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: v.cfg.AllowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodOptions},
			MaxAge:         300,
		}))
	}
	r.Get("/healthz", v.health)
	r.Get("/bridge/connect", v.connect)
	return r
}

func (v *View) health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"status": "ok", "connected": v.Connected()})
}

func (v *View) connect(w http.ResponseWriter, r *http.Request) {
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: originPatterns(v.cfg.AllowedOrigins)})
	if err != nil {
		v.log.Debug().Err(err).Msg("websocket accept")
		return
	}
	ws.SetReadLimit(-1)
	// the connection ends on read failure, replacement or Close
	ctx, cancel := context.WithCancel(context.Background())
	c := &pageConn{id: uuid.NewString(), ws: ws, send: make(chan Frame, v.cfg.SendQueue), cancel: cancel}

	v.mu.Lock()
	old := v.conn
	v.conn = c
	v.mu.Unlock()
	if old != nil {
		old.cancel()
		_ = old.ws.Close(websocket.StatusNormalClosure, "replaced")
	}
	log := v.log.With().Str("conn_id", c.id).Logger()
	log.Info().Str("remote", r.RemoteAddr).Msg("page connected")

	go v.writeLoop(ctx, c, log)
	go v.pingLoop(ctx, c)
	v.readLoop(ctx, c, log)
}

func (v *View) readLoop(ctx context.Context, c *pageConn, log zerolog.Logger) {
	defer func() {
		v.mu.Lock()
		if v.conn == c {
			v.conn = nil
		}
		v.mu.Unlock()
		c.cancel()
		_ = c.ws.Close(websocket.StatusNormalClosure, "closing")
		log.Info().Msg("page disconnected")
	}()
	for {
		_, data, err := c.ws.Read(ctx)
		if err != nil {
			return
		}
		var f Frame
		if json.Unmarshal(data, &f) != nil {
			log.Debug().Int("bytes", len(data)).Msg("ignoring undecodable frame")
			continue
		}
		v.mu.Lock()
		sink := v.sink
		v.mu.Unlock()
		if sink == nil {
			log.Warn().Str("type", string(f.Type)).Msg("no sink attached; frame dropped")
			continue
		}
		switch f.Type {
		case TypeNavigate:
			if !sink.HandleURL(f.URL) {
				log.Debug().Str("url", f.URL).Msg("navigation not handled by bridge")
			}
		case TypePageFinished:
			if err := sink.SignalReady(); err != nil {
				log.Warn().Err(err).Msg("ready signal rejected")
			}
		default:
			log.Debug().Str("type", string(f.Type)).Msg("unknown frame type")
		}
	}
}

func (v *View) writeLoop(ctx context.Context, c *pageConn, log zerolog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case f := <-c.send:
			b, err := json.Marshal(f)
			if err != nil {
				continue
			}
			wctx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err = c.ws.Write(wctx, websocket.MessageText, b)
			cancel()
			if err != nil {
				log.Warn().Err(err).Msg("write to page failed")
			}
		}
	}
}

func (v *View) pingLoop(ctx context.Context, c *pageConn) {
	ticker := time.NewTicker(v.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			_ = c.ws.Ping(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// Close disconnects the current page, if any.
func (v *View) Close() {
	v.mu.Lock()
	c := v.conn
	v.conn = nil
	v.mu.Unlock()
	if c != nil {
		c.cancel()
		_ = c.ws.Close(websocket.StatusGoingAway, "shutdown")
	}
}

// originPatterns converts allowed origins to the host patterns expected by
// websocket.AcceptOptions.
func originPatterns(origins []string) []string {
	var out []string
	for _, o := range origins {
		if o == "*" {
			out = append(out, "*")
			continue
		}
		if u, err := url.Parse(o); err == nil && u.Host != "" {
			out = append(out, u.Host)
		} else {
			out = append(out, o)
		}
	}
	return out
}
