// internal/ota/coordinator.go

// Package ota checks the update server for a newer gateway image and, when
// one exists, installs it with polling paused, then restarts into it.
package ota

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/exp/slog"

	"github.com/tamzrod/modbus-mqtt-gateway/internal/endpoint"
	"github.com/tamzrod/modbus-mqtt-gateway/internal/metrics"
	"github.com/tamzrod/modbus-mqtt-gateway/internal/status"
)

// DefaultVersionHeader carries the advertised image version.
const DefaultVersionHeader = "X-Object-Meta-Version"

// PollControl is the poll scheduler as seen by an update.
type PollControl interface {
	Pause(ctx context.Context) error
	Resume() error
}

// Storage is a pre-sized, append-only, verify-on-close update target.
type Storage interface {
	Begin(size int64) error
	WriteStream(r io.Reader) (int64, error)
	End() error
	IsFinished() bool
	Abort()
}

// Restarter restarts the process. In production it does not return.
type Restarter interface {
	Restart()
}

// ConnectivityReader exposes the advisory link state.
type ConnectivityReader interface {
	State() status.Connectivity
}

// Config is the coordinator runtime config.
type Config struct {
	URL            string
	CurrentVersion string
	VersionHeader  string

	// PauseTimeout bounds the wait for an in-flight poll cycle.
	PauseTimeout time.Duration
}

// Deps are the collaborators an update drives.
type Deps struct {
	Poll      PollControl
	Storage   Storage
	Restarter Restarter
	Links     ConnectivityReader
	HTTP      *http.Client
}

// Session lives for one update attempt.
type Session struct {
	ID            uuid.UUID
	RemoteVersion string
	BytesExpected int64
	BytesWritten  int64
	Started       time.Time
}

// Coordinator runs at most one update session at a time.
type Coordinator struct {
	cfg     Config
	url     string
	deps    Deps
	http    *http.Client
	log     *slog.Logger
	metrics *metrics.Metrics

	inbox  chan struct{}
	state  atomic.Uint32
	active atomic.Bool

	hookMu sync.Mutex
	hook   func(from, to State)
}

func New(cfg Config, deps Deps, log *slog.Logger, m *metrics.Metrics) (*Coordinator, error) {
	if cfg.CurrentVersion == "" {
		return nil, errors.New("ota: current version required")
	}
	if deps.Poll == nil || deps.Storage == nil || deps.Restarter == nil {
		return nil, errors.New("ota: poll, storage and restarter required")
	}

	ep, err := endpoint.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("ota: url: %w", err)
	}
	u, err := ep.URL()
	if err != nil {
		return nil, fmt.Errorf("ota: url: %w", err)
	}

	if cfg.VersionHeader == "" {
		cfg.VersionHeader = DefaultVersionHeader
	}
	if cfg.PauseTimeout <= 0 {
		cfg.PauseTimeout = 30 * time.Second
	}

	hc := deps.HTTP
	if hc == nil {
		if hc, err = NewHTTPClient("", 0); err != nil {
			return nil, err
		}
	}
	if log == nil {
		log = slog.Default()
	}

	return &Coordinator{
		cfg:     cfg,
		url:     u,
		deps:    deps,
		http:    hc,
		log:     log.With("component", "ota"),
		metrics: m,
		inbox:   make(chan struct{}, 1),
	}, nil
}

// OnTransition installs a hook called on every state change, on the
// coordinator goroutine.
func (c *Coordinator) OnTransition(fn func(from, to State)) {
	c.hookMu.Lock()
	c.hook = fn
	c.hookMu.Unlock()
}

// State returns the current state. Safe from any goroutine.
func (c *Coordinator) State() State {
	return State(c.state.Load())
}

func (c *Coordinator) set(to State) {
	from := State(c.state.Swap(uint32(to)))
	if from == to {
		return
	}
	c.log.Debug("transition", "from", from, "to", to)

	c.hookMu.Lock()
	fn := c.hook
	c.hookMu.Unlock()
	if fn != nil {
		fn(from, to)
	}
}

// Trigger requests an update check. It never blocks; a request while a
// session is active, or one already pending, is dropped.
func (c *Coordinator) Trigger() {
	if c.active.Load() {
		c.log.Debug("update already in progress, request ignored")
		return
	}
	select {
	case c.inbox <- struct{}{}:
		c.log.Debug("OTA update requested")
	default:
	}
}

// Run handles one session per trigger until ctx is done.
func (c *Coordinator) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.inbox:
			c.RunOnce(ctx)
		}
	}
}

// RunOnce runs one complete update attempt. It returns after a restart
// only when the restarter returns (tests).
func (c *Coordinator) RunOnce(ctx context.Context) {
	if !c.active.CompareAndSwap(false, true) {
		return
	}
	defer func() {
		// a request that slipped in before the session went active is dropped
		select {
		case <-c.inbox:
		default:
		}
		c.active.Store(false)
	}()

	if c.deps.Links != nil && !c.deps.Links.State().Network {
		c.log.Warn("network link down, update check skipped")
		return
	}

	c.log.Info("checking if new firmware is available")
	c.set(Checking)

	remote, err := c.RemoteVersion(ctx)
	if err != nil {
		c.log.Error("version check failed", "err", err)
		remote = ""
	}

	if !Newer(remote, c.cfg.CurrentVersion) {
		switch {
		case remote == "":
			c.log.Warn("remote firmware not found")
		case !WellFormed(remote, c.cfg.CurrentVersion):
			c.log.Warn("malformed remote version", "remote", remote)
		default:
			c.log.Info("firmware is already up to date", "version", c.cfg.CurrentVersion, "remote", remote)
		}
		c.set(NotNeeded)
		c.metrics.UpdateFinished(NotNeeded.String())
		c.set(Dormant)
		return
	}

	sess := &Session{
		ID:            uuid.New(),
		RemoteVersion: remote,
		Started:       time.Now(),
	}
	log := c.log.With("session", sess.ID.String())
	log.Info("new firmware version detected", "remote", remote, "current", c.cfg.CurrentVersion)

	// polling must be quiet before the first byte is fetched
	c.set(PausingPoll)
	pctx, cancel := context.WithTimeout(ctx, c.cfg.PauseTimeout)
	err = c.deps.Poll.Pause(pctx)
	cancel()

	if err == nil {
		c.set(Downloading)
		err = c.download(ctx, sess, log)
	} else {
		err = fmt.Errorf("ota: unable to pause polling: %w", err)
	}

	if err == nil {
		c.set(Installed)
		c.metrics.UpdateFinished(Installed.String())
		log.Warn("update successfully completed, rebooting",
			"version", remote, "bytes", sess.BytesWritten, "took", time.Since(sess.Started))
		c.deps.Restarter.Restart()
		return
	}

	c.deps.Storage.Abort()
	c.set(Failed)
	c.metrics.UpdateFinished(Failed.String())
	log.Error("update failed", "err", err, "written", sess.BytesWritten, "expected", sess.BytesExpected)

	if ctx.Err() != nil {
		log.Warn("shutting down during update, poller not resumed")
		return
	}

	c.set(ResumingPoll)
	if err := c.deps.Poll.Resume(); err != nil {
		log.Error("unable to restart poller after update failure, rebooting", "err", err)
		c.deps.Restarter.Restart()
		return
	}
	c.set(Dormant)
}

func (c *Coordinator) download(ctx context.Context, sess *Session, log *slog.Logger) error {
	resp, err := c.get(ctx)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.ContentLength <= 0 {
		return ErrNoContentLength
	}
	sess.BytesExpected = resp.ContentLength

	if err := c.deps.Storage.Begin(sess.BytesExpected); err != nil {
		return fmt.Errorf("ota: begin: %w", err)
	}

	log.Warn("starting update, this may take some time", "bytes", sess.BytesExpected)
	n, err := c.deps.Storage.WriteStream(resp.Body)
	sess.BytesWritten = n
	if err != nil {
		return fmt.Errorf("ota: stream: %w", err)
	}
	if n != sess.BytesExpected {
		return fmt.Errorf("%w: %d/%d", ErrIncompleteWrite, n, sess.BytesExpected)
	}
	log.Debug("written successfully", "bytes", n)

	if err := c.deps.Storage.End(); err != nil {
		return fmt.Errorf("ota: end: %w", err)
	}
	if !c.deps.Storage.IsFinished() {
		return ErrNotFinished
	}
	return nil
}
