// internal/connectivity/supervisor.go

// Package connectivity keeps the network and messaging links up.
//
// Each link is a two-state machine (connected / disconnected) with a
// one-shot retry timer armed on entering disconnected. Every event goes
// through a single channel consumed by Run, so link state has one writer.
package connectivity

import (
	"context"
	"errors"
	"time"

	"golang.org/x/exp/slog"

	"github.com/tamzrod/modbus-mqtt-gateway/internal/metrics"
	"github.com/tamzrod/modbus-mqtt-gateway/internal/status"
)

// DefaultRetry is the delay before a failed link is tried again.
const DefaultRetry = 2 * time.Second

// Link is something the supervisor can (re)connect.
// Connect returns nil once the link is usable.
type Link interface {
	Connect(ctx context.Context) error
}

// Step is a best-effort action run after every network (re)connect.
type Step struct {
	Name string
	Run  func(ctx context.Context) error
}

type eventKind uint8

const (
	evNetworkUp eventKind = iota + 1
	evNetworkDown
	evNetworkRetry
	evMessagingDown
	evMessagingRetry
)

func (k eventKind) String() string {
	switch k {
	case evNetworkUp:
		return "network_up"
	case evNetworkDown:
		return "network_down"
	case evNetworkRetry:
		return "network_retry"
	case evMessagingDown:
		return "messaging_down"
	case evMessagingRetry:
		return "messaging_retry"
	default:
		return "unknown"
	}
}

// Config tunes the supervisor.
type Config struct {
	NetworkRetry   time.Duration
	MessagingRetry time.Duration
}

// Supervisor owns both reconnect machines.
type Supervisor struct {
	cfg       Config
	network   Link
	messaging Link
	links     *status.Links
	log       *slog.Logger
	metrics   *metrics.Metrics

	steps       []Step
	onMessaging []func()

	events chan eventKind
	done   chan struct{}

	// owned by Run
	networkUp      bool
	messagingUp    bool
	networkTimer   *time.Timer
	messagingTimer *time.Timer
}

func New(cfg Config, network, messaging Link, links *status.Links, log *slog.Logger, m *metrics.Metrics) (*Supervisor, error) {
	if network == nil || messaging == nil {
		return nil, errors.New("connectivity: both links required")
	}
	if links == nil {
		return nil, errors.New("connectivity: links state required")
	}
	if cfg.NetworkRetry <= 0 {
		cfg.NetworkRetry = DefaultRetry
	}
	if cfg.MessagingRetry <= 0 {
		cfg.MessagingRetry = DefaultRetry
	}
	if log == nil {
		log = slog.Default()
	}

	return &Supervisor{
		cfg:       cfg,
		network:   network,
		messaging: messaging,
		links:     links,
		log:       log.With("component", "connectivity"),
		metrics:   m,
		events:    make(chan eventKind, 16),
		done:      make(chan struct{}),
	}, nil
}

// AfterNetworkUp registers steps run, in order, after every network
// (re)connect and before the messaging link is attempted.
// Must be called before Run.
func (s *Supervisor) AfterNetworkUp(steps ...Step) {
	s.steps = append(s.steps, steps...)
}

// OnMessagingUp registers a callback run on the supervisor goroutine after
// every successful messaging connect. Must be called before Run.
func (s *Supervisor) OnMessagingUp(fn func()) {
	s.onMessaging = append(s.onMessaging, fn)
}

// State returns the current link state. Safe from any goroutine.
func (s *Supervisor) State() status.Connectivity {
	return s.links.Connectivity()
}

// ---- event sources ----

func (s *Supervisor) NetworkUp()   { s.post(evNetworkUp) }
func (s *Supervisor) NetworkDown() { s.post(evNetworkDown) }

// MessagingDown reports an unexpected broker disconnect.
func (s *Supervisor) MessagingDown(err error) {
	s.log.Info("messaging link reported down", "err", err)
	s.post(evMessagingDown)
}

func (s *Supervisor) post(ev eventKind) {
	select {
	case s.events <- ev:
	case <-s.done:
	}
}

// Run starts with a network connect attempt and handles events until ctx
// is done.
func (s *Supervisor) Run(ctx context.Context) error {
	defer func() {
		close(s.done)
		s.stopTimer(&s.networkTimer)
		s.stopTimer(&s.messagingTimer)
	}()

	s.handle(ctx, evNetworkRetry)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-s.events:
			s.handle(ctx, ev)
		}
	}
}

func (s *Supervisor) handle(ctx context.Context, ev eventKind) {
	s.log.Debug("event", "kind", ev, "network", s.networkUp, "messaging", s.messagingUp)

	switch ev {
	case evNetworkUp:
		s.networkConnected(ctx)

	case evNetworkDown:
		if !s.networkUp && s.networkTimer != nil {
			return
		}
		s.log.Warn("network link down")
		s.setNetwork(false)
		s.stopTimer(&s.messagingTimer)
		s.armNetwork()

	case evNetworkRetry:
		s.stopTimer(&s.networkTimer)
		if s.networkUp {
			return
		}
		s.log.Info("connecting network link")
		if err := s.network.Connect(ctx); err != nil {
			s.log.Warn("network connect failed", "err", err, "retry_in", s.cfg.NetworkRetry)
			s.armNetwork()
			return
		}
		s.networkConnected(ctx)

	case evMessagingDown:
		s.setMessaging(false)
		if s.networkUp {
			s.armMessaging()
		}

	case evMessagingRetry:
		s.stopTimer(&s.messagingTimer)
		s.connectMessaging(ctx)
	}
}

func (s *Supervisor) networkConnected(ctx context.Context) {
	if s.networkUp {
		return
	}
	s.log.Info("network link up")
	s.setNetwork(true)
	s.stopTimer(&s.networkTimer)

	for _, st := range s.steps {
		if err := st.Run(ctx); err != nil {
			s.log.Warn("post-connect step failed", "step", st.Name, "err", err)
			continue
		}
		s.log.Debug("post-connect step done", "step", st.Name)
	}

	s.connectMessaging(ctx)
}

func (s *Supervisor) connectMessaging(ctx context.Context) {
	if !s.networkUp || s.messagingUp {
		return
	}
	if err := s.messaging.Connect(ctx); err != nil {
		s.log.Warn("messaging connect failed", "err", err, "retry_in", s.cfg.MessagingRetry)
		s.armMessaging()
		return
	}

	s.setMessaging(true)
	s.stopTimer(&s.messagingTimer)
	for _, fn := range s.onMessaging {
		fn()
	}
}

// ---- state + timers ----

func (s *Supervisor) setNetwork(up bool) {
	s.networkUp = up
	s.links.SetNetwork(up)
	s.metrics.LinkState("network", up)
}

func (s *Supervisor) setMessaging(up bool) {
	s.messagingUp = up
	s.links.SetMessaging(up)
	s.metrics.LinkState("messaging", up)
}

func (s *Supervisor) armNetwork() {
	if s.networkTimer == nil {
		s.networkTimer = time.AfterFunc(s.cfg.NetworkRetry, func() { s.post(evNetworkRetry) })
	}
}

func (s *Supervisor) armMessaging() {
	if s.messagingTimer == nil {
		s.messagingTimer = time.AfterFunc(s.cfg.MessagingRetry, func() { s.post(evMessagingRetry) })
	}
}

func (s *Supervisor) stopTimer(t **time.Timer) {
	if *t != nil {
		(*t).Stop()
		*t = nil
	}
}
