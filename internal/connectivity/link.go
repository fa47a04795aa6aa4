// internal/connectivity/link.go
package connectivity

import (
	"context"
	"fmt"
	"net"
	"time"

	"golang.org/x/exp/slog"
)

// InterfaceLink is the network link of a Linux box: it is "connected" when
// the watched interface is up and carries a non-loopback address.
// The OS owns association and DHCP; this only observes.
type InterfaceLink struct {
	name  string
	log   *slog.Logger
	probe func() (bool, error)
}

// NewInterfaceLink watches name, or any non-loopback interface when empty.
func NewInterfaceLink(name string, log *slog.Logger) *InterfaceLink {
	if log == nil {
		log = slog.Default()
	}
	l := &InterfaceLink{name: name, log: log.With("component", "netlink")}
	l.probe = l.up
	return l
}

// Connect reports whether the link is usable now.
func (l *InterfaceLink) Connect(_ context.Context) error {
	ok, err := l.probe()
	if err != nil {
		return err
	}
	if !ok {
		if l.name == "" {
			return fmt.Errorf("netlink: no interface up")
		}
		return fmt.Errorf("netlink: %s not up", l.name)
	}
	return nil
}

// Watch polls the interface and reports transitions to the supervisor
// until ctx is done.
func (l *InterfaceLink) Watch(ctx context.Context, every time.Duration, s *Supervisor) {
	t := time.NewTicker(every)
	defer t.Stop()

	last, _ := l.probe()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}

		ok, err := l.probe()
		if err != nil {
			l.log.Debug("probe failed", "err", err)
			ok = false
		}
		if ok == last {
			continue
		}
		last = ok

		if ok {
			s.NetworkUp()
		} else {
			s.NetworkDown()
		}
	}
}

func (l *InterfaceLink) up() (bool, error) {
	if l.name != "" {
		ifi, err := net.InterfaceByName(l.name)
		if err != nil {
			return false, fmt.Errorf("netlink: %w", err)
		}
		return usable(*ifi), nil
	}

	ifs, err := net.Interfaces()
	if err != nil {
		return false, fmt.Errorf("netlink: %w", err)
	}
	for _, ifi := range ifs {
		if usable(ifi) {
			return true, nil
		}
	}
	return false, nil
}

func usable(ifi net.Interface) bool {
	if ifi.Flags&net.FlagUp == 0 || ifi.Flags&net.FlagLoopback != 0 {
		return false
	}
	addrs, err := ifi.Addrs()
	if err != nil {
		return false
	}
	for _, a := range addrs {
		if ipn, ok := a.(*net.IPNet); ok && ipn.IP.IsGlobalUnicast() {
			return true
		}
	}
	return false
}
