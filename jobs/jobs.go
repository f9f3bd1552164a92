// Package jobs is the small set of download operations the extension shell
// needs, built on the aria2 RPC client.
package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/synodriver/aria2link/aria2"
)

const (
	// waitingPageSize is how many waiting jobs GetJobs lists after the active ones.
	waitingPageSize = 25
	// DefaultRetryDelay is the pause before AddUri tries a second time.
	DefaultRetryDelay = 3 * time.Second
)

// RPC is the part of *aria2.Client the manager depends on.
type RPC interface {
	Call(ctx context.Context, method string, params ...any) (json.RawMessage, error)
	MultiCall(ctx context.Context, calls ...aria2.Call) ([]json.RawMessage, error)
}

// Connector returns the client for the current connection settings.
type Connector func(ctx context.Context) (RPC, error)

// Static always hands out rpc.
func Static(rpc RPC) Connector {
	return func(context.Context) (RPC, error) { return rpc, nil }
}

// Manager implements the job operations.
type Manager struct {
	connect    Connector
	notifier   Notifier
	log        *slog.Logger
	retryDelay time.Duration
}

type Option func(*Manager)

func WithNotifier(n Notifier) Option {
	return func(m *Manager) { m.notifier = n }
}

func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.log = l }
}

func WithRetryDelay(d time.Duration) Option {
	return func(m *Manager) { m.retryDelay = d }
}

func NewManager(connect Connector, opts ...Option) *Manager {
	m := &Manager{
		connect:    connect,
		log:        slog.New(slog.DiscardHandler),
		retryDelay: DefaultRetryDelay,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.log = m.log.With("component", "jobs")
	if m.notifier == nil {
		m.notifier = LogNotifier{Log: m.log}
	}
	return m
}

// GetJobs lists the active jobs followed by the first waiting ones, in
// daemon order.
func (m *Manager) GetJobs(ctx context.Context) ([]aria2.Job, error) {
	rpc, err := m.connect(ctx)
	if err != nil {
		return nil, err
	}
	results, err := rpc.MultiCall(ctx,
		aria2.NewCall("tellActive"),
		aria2.NewCall("tellWaiting", 0, waitingPageSize),
	)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	jobs := []aria2.Job{}
	for _, raw := range results {
		part, err := aria2.DecodeJobs(raw)
		if err != nil {
			return nil, fmt.Errorf("decode jobs: %w", err)
		}
		jobs = append(jobs, part...)
	}
	return jobs, nil
}

// AddUris queues one download per link in a single round trip and returns
// the new gids. Bare info hashes are turned into magnet links. A failure is
// also reported through the notifier; nothing is retried.
func (m *Manager) AddUris(ctx context.Context, uris ...string) ([]string, error) {
	calls := make([]aria2.Call, 0, len(uris))
	for _, u := range uris {
		if u = strings.TrimSpace(u); u != "" {
			calls = append(calls, aria2.NewCall("addUri", []string{AugmentLink(u)}))
		}
	}
	if len(calls) == 0 {
		return nil, nil
	}

	gids, err := m.addUris(ctx, calls)
	if err != nil {
		m.notify(ctx, err.Error())
		return nil, err
	}
	return gids, nil
}

func (m *Manager) addUris(ctx context.Context, calls []aria2.Call) ([]string, error) {
	rpc, err := m.connect(ctx)
	if err != nil {
		return nil, err
	}
	results, err := rpc.MultiCall(ctx, calls...)
	if err != nil {
		return nil, err
	}
	gids := make([]string, 0, len(results))
	for _, raw := range results {
		var gid string
		if err := json.Unmarshal(raw, &gid); err != nil {
			return nil, fmt.Errorf("decode gid: %w", err)
		}
		gids = append(gids, gid)
	}
	return gids, nil
}

// AddUri queues a single download, typically one intercepted from the
// browser. On failure it tries once more after the retry delay. The outcome
// is always reported through the notifier.
func (m *Manager) AddUri(ctx context.Context, link, fileName string, opts *aria2.DownloadOptions) (string, error) {
	if opts == nil {
		opts = &aria2.DownloadOptions{}
	}
	gid, err := m.addUri(ctx, link, opts)
	if err != nil {
		m.log.Warn("addUri failed, retrying", "uri", link, "delay", m.retryDelay, "err", err)
		select {
		case <-time.After(m.retryDelay):
			gid, err = m.addUri(ctx, link, opts)
		case <-ctx.Done():
			err = ctx.Err()
		}
	}
	if err != nil {
		m.notify(ctx, err.Error())
		return "", err
	}
	m.notify(ctx, strings.Join(strings.Fields("Start downloading "+fileName+" using Aria2"), " "))
	return gid, nil
}

func (m *Manager) addUri(ctx context.Context, link string, opts *aria2.DownloadOptions) (string, error) {
	rpc, err := m.connect(ctx)
	if err != nil {
		return "", err
	}
	raw, err := rpc.Call(ctx, "addUri", []string{link}, opts)
	if err != nil {
		return "", err
	}
	var gid string
	if err := json.Unmarshal(raw, &gid); err != nil {
		return "", fmt.Errorf("decode gid: %w", err)
	}
	return gid, nil
}

// StartJobs resumes paused jobs. Failures are logged only.
func (m *Manager) StartJobs(ctx context.Context, gids ...string) {
	m.bulk(ctx, "unpause", gids)
}

// PauseJobs pauses jobs. Failures are logged only.
func (m *Manager) PauseJobs(ctx context.Context, gids ...string) {
	m.bulk(ctx, "pause", gids)
}

// RemoveJobs removes jobs. Failures are logged only.
func (m *Manager) RemoveJobs(ctx context.Context, gids ...string) {
	m.bulk(ctx, "remove", gids)
}

func (m *Manager) bulk(ctx context.Context, method string, gids []string) {
	if len(gids) == 0 {
		return
	}
	rpc, err := m.connect(ctx)
	if err != nil {
		m.log.Warn("bulk update skipped", "method", method, "err", err)
		return
	}
	calls := make([]aria2.Call, len(gids))
	for i, gid := range gids {
		calls[i] = aria2.NewCall(method, gid)
	}
	if _, err := rpc.MultiCall(ctx, calls...); err != nil {
		m.log.Warn("bulk update failed", "method", method, "count", len(gids), "err", err)
	}
}

// GetNumJobs counts the active jobs.
func (m *Manager) GetNumJobs(ctx context.Context) (int, error) {
	rpc, err := m.connect(ctx)
	if err != nil {
		return 0, err
	}
	raw, err := rpc.Call(ctx, "tellActive")
	if err != nil {
		return 0, err
	}
	var active []json.RawMessage
	if err := json.Unmarshal(raw, &active); err != nil {
		return 0, fmt.Errorf("decode active jobs: %w", err)
	}
	return len(active), nil
}

func (m *Manager) notify(ctx context.Context, msg string) {
	if err := m.notifier.Notify(ctx, msg); err != nil {
		m.log.Warn("notification failed", "message", msg, "err", err)
	}
}
