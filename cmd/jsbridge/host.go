package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/gaspardpetit/jsbridge/internal/bridge"
	"github.com/gaspardpetit/jsbridge/internal/config"
	"github.com/gaspardpetit/jsbridge/internal/logx"
	"github.com/gaspardpetit/jsbridge/internal/redisqueue"
	"github.com/gaspardpetit/jsbridge/internal/wsview"
)

// host couples a bridge with the transport selected in the config.
type host struct {
	bridge *bridge.Bridge
	view   *wsview.View
	queue  *redisqueue.Queue
	log    zerolog.Logger
}

// echoHandler answers a page request with its own payload.
var echoHandler = bridge.HandlerFunc(func(data string, respond bridge.Respond) { respond(data) })

func bridgeOptions(cfg config.BridgeConfig, log zerolog.Logger) []bridge.Option {
	opts := []bridge.Option{bridge.WithScriptURL(cfg.ScriptURL), bridge.WithCallbackTTL(cfg.CallbackTTL)}
	if cfg.CallbackPrefix != "" {
		opts = append(opts, bridge.WithCallbackPrefix(cfg.CallbackPrefix))
	}
	if cfg.CallbackTTL > 0 {
		opts = append(opts, bridge.WithExpiredHook(func(id string) {
			log.Warn().Str("callback_id", id).Msg("callback expired without a response")
		}))
	}
	return opts
}

func newHost(ctx context.Context, cfg config.BridgeConfig) (*host, error) {
	h := &host{log: logx.Component("host")}
	opts := bridgeOptions(cfg, h.log)
	switch cfg.Transport {
	case config.TransportWebSocket:
		h.view = wsview.New(wsview.Config{SendQueue: cfg.SendQueue, AllowedOrigins: cfg.AllowedOrigins})
		h.bridge = bridge.New(h.view, opts...)
		h.view.Attach(h.bridge)
	case config.TransportRedis:
		q, err := redisqueue.New(ctx, cfg.RedisAddr, redisqueue.Options{Prefix: cfg.RedisPrefix, Namespace: cfg.RedisNamespace})
		if err != nil {
			return nil, err
		}
		h.queue = q
		h.bridge = bridge.New(q, opts...)
		toRemote, toHost := q.Keys()
		h.log.Info().Str("to_remote", toRemote).Str("to_host", toHost).Msg("using redis transport")
	default:
		return nil, fmt.Errorf("unknown transport %q", cfg.Transport)
	}
	if err := h.bridge.RegisterHandler("echo", echoHandler); err != nil {
		return nil, err
	}
	return h, nil
}

// routes serves the page endpoints and, when withMetrics is set, /metrics.
func (h *host) routes(withMetrics bool) http.Handler {
	r := chi.NewRouter()
	if withMetrics {
		r.Handle("/metrics", promhttp.Handler())
	}
	if h.view != nil {
		r.Mount("/", h.view.Routes())
		return r
	}
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok", "bridge_id": h.bridge.ID()})
	})
	return r
}

// run blocks until ctx is done or the bridge stops.
func (h *host) run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if h.queue != nil {
		go func() {
			if err := h.queue.Run(ctx, h.bridge); err != nil && ctx.Err() == nil {
				h.log.Error().Err(err).Msg("redis transport stopped")
				cancel()
			}
		}()
		defer func() { _ = h.queue.Close() }()
	}
	if h.view != nil {
		defer h.view.Close()
	}
	err := h.bridge.Run(ctx)
	if ctx.Err() != nil {
		return nil
	}
	return err
}
