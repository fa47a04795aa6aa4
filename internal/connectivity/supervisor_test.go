// internal/connectivity/supervisor_test.go
package connectivity

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"gotest.tools/v3/assert"
	"gotest.tools/v3/poll"

	"github.com/tamzrod/modbus-mqtt-gateway/internal/status"
)

type fakeLink struct {
	mu    sync.Mutex
	fail  bool
	calls int
}

func (f *fakeLink) Connect(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.fail {
		return errors.New("refused")
	}
	return nil
}

func (f *fakeLink) setFail(v bool) {
	f.mu.Lock()
	f.fail = v
	f.mu.Unlock()
}

func (f *fakeLink) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

const fastRetry = 10 * time.Millisecond

func newSupervisor(t *testing.T, network, messaging Link) (*Supervisor, *status.Links) {
	t.Helper()
	links := &status.Links{}
	s, err := New(Config{NetworkRetry: fastRetry, MessagingRetry: fastRetry}, network, messaging, links, nil, nil)
	assert.NilError(t, err)
	return s, links
}

func run(t *testing.T, s *Supervisor) func() {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = s.Run(ctx)
		close(done)
	}()
	return func() {
		cancel()
		<-done
	}
}

func connected(links *status.Links, network, messaging bool) poll.Check {
	return func(poll.LogT) poll.Result {
		c := links.Connectivity()
		if c.Network == network && c.Messaging == messaging {
			return poll.Success()
		}
		return poll.Continue("links=%+v", c)
	}
}

var pollOpts = []poll.SettingOp{poll.WithTimeout(2 * time.Second), poll.WithDelay(2 * time.Millisecond)}

// ---- tests ----

func TestSupervisor_BootConnectsBoth(t *testing.T) {
	var mu sync.Mutex
	var trace []string
	record := func(name string) Step {
		return Step{Name: name, Run: func(context.Context) error {
			mu.Lock()
			trace = append(trace, name)
			mu.Unlock()
			return nil
		}}
	}

	network := &fakeLink{}
	messaging := &fakeLink{}
	s, links := newSupervisor(t, network, messaging)
	s.AfterNetworkUp(record("mdns"), record("ntp"))

	var ups int
	s.OnMessagingUp(func() {
		mu.Lock()
		ups++
		trace = append(trace, "messaging_up")
		mu.Unlock()
	})

	stop := run(t, s)
	defer stop()

	poll.WaitOn(t, connected(links, true, true), pollOpts...)

	mu.Lock()
	defer mu.Unlock()
	assert.DeepEqual(t, trace, []string{"mdns", "ntp", "messaging_up"})
	assert.Equal(t, ups, 1)
}

func TestSupervisor_FailedStepDoesNotBlockMessaging(t *testing.T) {
	network := &fakeLink{}
	messaging := &fakeLink{}
	s, links := newSupervisor(t, network, messaging)
	s.AfterNetworkUp(Step{Name: "ntp", Run: func(context.Context) error { return errors.New("timeout") }})

	stop := run(t, s)
	defer stop()

	poll.WaitOn(t, connected(links, true, true), pollOpts...)
}

func TestSupervisor_NetworkRetry(t *testing.T) {
	network := &fakeLink{fail: true}
	messaging := &fakeLink{}
	s, links := newSupervisor(t, network, messaging)

	stop := run(t, s)
	defer stop()

	poll.WaitOn(t, func(poll.LogT) poll.Result {
		if network.count() >= 3 {
			return poll.Success()
		}
		return poll.Continue("network attempts=%d", network.count())
	}, pollOpts...)

	// no messaging attempt while the network is down
	assert.Equal(t, messaging.count(), 0)

	network.setFail(false)
	poll.WaitOn(t, connected(links, true, true), pollOpts...)
}

func TestSupervisor_MessagingRetryOnlyWithNetwork(t *testing.T) {
	network := &fakeLink{}
	messaging := &fakeLink{fail: true}
	s, links := newSupervisor(t, network, messaging)

	stop := run(t, s)
	defer stop()

	poll.WaitOn(t, func(poll.LogT) poll.Result {
		if messaging.count() >= 2 {
			return poll.Success()
		}
		return poll.Continue("messaging attempts=%d", messaging.count())
	}, pollOpts...)

	network.setFail(true)
	s.NetworkDown()
	poll.WaitOn(t, connected(links, false, false), pollOpts...)

	// the pending messaging retry was disarmed with the network
	n := messaging.count()
	time.Sleep(5 * fastRetry)
	assert.Equal(t, messaging.count(), n)

	network.setFail(false)
	messaging.setFail(false)
	poll.WaitOn(t, connected(links, true, true), pollOpts...)
}

func TestSupervisor_MessagingLostReconnects(t *testing.T) {
	network := &fakeLink{}
	messaging := &fakeLink{}
	s, links := newSupervisor(t, network, messaging)

	stop := run(t, s)
	defer stop()

	poll.WaitOn(t, connected(links, true, true), pollOpts...)

	s.MessagingDown(errors.New("EOF"))
	poll.WaitOn(t, func(poll.LogT) poll.Result {
		if messaging.count() >= 2 && links.Connectivity().Messaging {
			return poll.Success()
		}
		return poll.Continue("messaging attempts=%d", messaging.count())
	}, pollOpts...)
	assert.Assert(t, s.State().Seen)
}

func TestSupervisor_NetworkUpEventRunsSetupOnce(t *testing.T) {
	network := &fakeLink{}
	messaging := &fakeLink{}
	s, links := newSupervisor(t, network, messaging)

	var mu sync.Mutex
	var setups int
	s.AfterNetworkUp(Step{Name: "count", Run: func(context.Context) error {
		mu.Lock()
		setups++
		mu.Unlock()
		return nil
	}})

	stop := run(t, s)
	poll.WaitOn(t, connected(links, true, true), pollOpts...)

	// a duplicate up while already connected is ignored
	s.NetworkUp()
	s.NetworkDown()
	s.NetworkUp()
	poll.WaitOn(t, func(poll.LogT) poll.Result {
		mu.Lock()
		defer mu.Unlock()
		if setups == 2 {
			return poll.Success()
		}
		return poll.Continue("setups=%d", setups)
	}, pollOpts...)
	stop()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, setups, 2)
	assert.Assert(t, links.Connectivity().Network)
}

func TestNew_Rejects(t *testing.T) {
	_, err := New(Config{}, nil, &fakeLink{}, &status.Links{}, nil, nil)
	assert.ErrorContains(t, err, "both links")

	_, err = New(Config{}, &fakeLink{}, &fakeLink{}, nil, nil, nil)
	assert.ErrorContains(t, err, "links state")
}

func TestInterfaceLink_Watch(t *testing.T) {
	var mu sync.Mutex
	up := false

	l := NewInterfaceLink("eth0", nil)
	l.probe = func() (bool, error) {
		mu.Lock()
		defer mu.Unlock()
		return up, nil
	}

	assert.ErrorContains(t, l.Connect(context.Background()), "eth0 not up")

	network := &fakeLink{fail: true}
	s, links := newSupervisor(t, network, &fakeLink{})
	stop := run(t, s)
	defer stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go l.Watch(ctx, 2*time.Millisecond, s)

	// the watcher's up event connects even though retries still fail
	mu.Lock()
	up = true
	mu.Unlock()
	poll.WaitOn(t, connected(links, true, true), pollOpts...)

	mu.Lock()
	up = false
	mu.Unlock()
	poll.WaitOn(t, connected(links, false, true), pollOpts...)
}
