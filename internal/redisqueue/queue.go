// Package redisqueue is a bridge transport whose page side is reached
// through a pair of Redis lists: the host pushes javascript: URLs onto
// <prefix>:<namespace>:to_remote and pops navigations and lifecycle events
// from <prefix>:<namespace>:to_host.
package redisqueue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/gaspardpetit/jsbridge/internal/logx"
	"github.com/gaspardpetit/jsbridge/internal/reconnect"
)

// PageFinished is the to_host entry announcing the page finished loading.
const PageFinished = "page_finished"

// Sink receives what the page posts to the host; *bridge.Bridge satisfies it.
type Sink interface {
	HandleURL(url string) bool
	SignalReady() error
}

// Options tune a Queue.
type Options struct {
	// Prefix of every key; defaults to "jsbridge".
	Prefix string
	// Namespace separates bridges sharing a Redis; defaults to a random uuid.
	Namespace string
	// PollTimeout bounds each blocking pop; defaults to 5s.
	PollTimeout time.Duration
	// BackoffScale shrinks the reconnect schedule, mostly for tests.
	BackoffScale float64
	Log          *zerolog.Logger
}

// Queue implements bridge.Transport on top of Redis lists.
type Queue struct {
	client       redis.UniversalClient
	toRemote     string
	toHost       string
	pollTimeout  time.Duration
	backoffScale float64
	log          zerolog.Logger
}

// New connects to addr, a host:port or redis:// URL, and returns a Queue.
func New(ctx context.Context, addr string, opts Options) (*Queue, error) {
	ro, err := parseRedisURL(addr)
	if err != nil {
		return nil, err
	}
	c := redis.NewUniversalClient(ro)
	if err := c.Ping(ctx).Err(); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return NewWithClient(c, opts), nil
}

// NewWithClient wraps an existing client.
func NewWithClient(c redis.UniversalClient, opts Options) *Queue {
	if opts.Prefix == "" {
		opts.Prefix = "jsbridge"
	}
	if opts.Namespace == "" {
		opts.Namespace = uuid.NewString()
	}
	if opts.PollTimeout <= 0 {
		opts.PollTimeout = 5 * time.Second
	}
	log := logx.Component("redisqueue")
	if opts.Log != nil {
		log = *opts.Log
	}
	base := opts.Prefix + ":" + opts.Namespace
	return &Queue{
		client:       c,
		toRemote:     base + ":to_remote",
		toHost:       base + ":to_host",
		pollTimeout:  opts.PollTimeout,
		backoffScale: opts.BackoffScale,
		log:          log.With().Str("namespace", opts.Namespace).Logger(),
	}
}

// Keys returns the list keys used for each direction.
func (q *Queue) Keys() (toRemote, toHost string) { return q.toRemote, q.toHost }

// LoadURL appends url to the page's command list.
func (q *Queue) LoadURL(ctx context.Context, url string) error {
	if err := q.client.RPush(ctx, q.toRemote, url).Err(); err != nil {
		return fmt.Errorf("redis push: %w", err)
	}
	return nil
}

// Run pops page entries and hands them to sink until ctx ends. Redis errors
// are retried with the reconnect schedule.
func (q *Queue) Run(ctx context.Context, sink Sink) error {
	attempt := 0
	for {
		if ctx.Err() != nil {
			return nil
		}
		res, err := q.client.BLPop(ctx, q.pollTimeout, q.toHost).Result()
		if errors.Is(err, redis.Nil) {
			attempt = 0
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			q.log.Warn().Err(err).Int("attempt", attempt+1).Msg("redis poll failed")
			if !reconnect.Wait(ctx, attempt, q.backoffScale) {
				return nil
			}
			attempt++
			continue
		}
		attempt = 0
		if len(res) == 2 {
			q.dispatch(sink, res[1])
		}
	}
}

func (q *Queue) dispatch(sink Sink, entry string) {
	if entry == PageFinished {
		if err := sink.SignalReady(); err != nil {
			q.log.Warn().Err(err).Msg("ready signal rejected")
		}
		return
	}
	if !sink.HandleURL(entry) {
		q.log.Debug().Str("url", entry).Msg("ignoring navigation")
	}
}

// Close closes the underlying client.
func (q *Queue) Close() error { return q.client.Close() }
