// internal/connectivity/setup.go
package connectivity

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/beevik/ntp"
	"github.com/grandcat/zeroconf"
	"golang.org/x/exp/slog"
)

// MDNSService is the service type advertised for the gateway.
const MDNSService = "_modbus-mqtt._tcp"

// ClockSkewWarn is the offset above which the NTP step warns.
const ClockSkewWarn = time.Second

// NTPStep queries server and logs the local clock offset. Setting the clock
// is left to the OS time daemon.
func NTPStep(server string, timeout time.Duration, log *slog.Logger) Step {
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "ntp")

	return Step{
		Name: "ntp",
		Run: func(ctx context.Context) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			resp, err := ntp.QueryWithOptions(server, ntp.QueryOptions{Timeout: timeout})
			if err != nil {
				return fmt.Errorf("ntp: query %s: %w", server, err)
			}
			if err := resp.Validate(); err != nil {
				return fmt.Errorf("ntp: %s: %w", server, err)
			}

			off := resp.ClockOffset
			if off < 0 {
				off = -off
			}
			if off > ClockSkewWarn {
				log.Warn("local clock is off", "offset", resp.ClockOffset, "server", server)
			} else {
				log.Info("time synchronized", "offset", resp.ClockOffset, "stratum", resp.Stratum)
			}
			return nil
		},
	}
}

// Announcer keeps one mDNS registration alive across reconnects.
type Announcer struct {
	instance string
	port     int
	text     []string
	log      *slog.Logger

	mu     sync.Mutex
	server *zeroconf.Server
}

func NewAnnouncer(instance string, port int, text []string, log *slog.Logger) *Announcer {
	if log == nil {
		log = slog.Default()
	}
	return &Announcer{
		instance: instance,
		port:     port,
		text:     text,
		log:      log.With("component", "mdns"),
	}
}

// Step re-registers the service; the previous responder is shut down first
// because its sockets are bound to the old addresses.
func (a *Announcer) Step() Step {
	return Step{
		Name: "mdns",
		Run: func(context.Context) error {
			a.mu.Lock()
			defer a.mu.Unlock()

			if a.server != nil {
				a.server.Shutdown()
				a.server = nil
			}

			srv, err := zeroconf.Register(a.instance, MDNSService, "local.", a.port, a.text, nil)
			if err != nil {
				return fmt.Errorf("mdns: register %s: %w", a.instance, err)
			}
			a.server = srv
			a.log.Info("mDNS responder started", "instance", a.instance, "service", MDNSService, "port", a.port)
			return nil
		},
	}
}

// Close stops the responder.
func (a *Announcer) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.server != nil {
		a.server.Shutdown()
		a.server = nil
	}
}
