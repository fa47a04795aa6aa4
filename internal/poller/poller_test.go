// internal/poller/poller_test.go
package poller

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/tamzrod/modbus-mqtt-gateway/internal/registers"
)

type fakeClient struct {
	mu sync.Mutex

	values map[uint16]uint16 // missing address reads as 0
	fails  map[uint16]int    // failures left before a read succeeds; <0 always fails
	calls  map[uint16]int

	// onRead runs before every read, outside the lock
	onRead func(addr uint16)
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		values: map[uint16]uint16{},
		fails:  map[uint16]int{},
		calls:  map[uint16]int{},
	}
}

func (f *fakeClient) read(addr, qty uint16) ([]uint16, error) {
	if f.onRead != nil {
		f.onRead(addr)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls[addr]++
	if n, ok := f.fails[addr]; ok && n != 0 {
		if n > 0 {
			f.fails[addr] = n - 1
		}
		return nil, errors.New("timeout")
	}
	out := make([]uint16, qty)
	out[0] = f.values[addr]
	return out, nil
}

func (f *fakeClient) ReadHoldingRegisters(addr, qty uint16) ([]uint16, error) {
	return f.read(addr, qty)
}

func (f *fakeClient) ReadInputRegisters(addr, qty uint16) ([]uint16, error) {
	return f.read(addr, qty)
}

func (f *fakeClient) callsFor(addr uint16) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[addr]
}

type recordingSink struct {
	mu   sync.Mutex
	docs []Document
}

func (s *recordingSink) Publish(doc Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs = append(s.docs, doc)
	return nil
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.docs)
}

func fixed(addr uint16, name string) registers.Descriptor {
	return registers.Descriptor{Address: addr, Source: registers.Holding, Kind: registers.FixedPointOneDecimal, Name: name}
}

func newPoller(t *testing.T, c Client, catalog []registers.Descriptor, retries int) *Poller {
	t.Helper()
	p, err := New(Config{DeviceID: "gw", Catalog: catalog, Retries: retries}, c, nil, nil)
	if err != nil {
		t.Fatalf("New() err=%v", err)
	}
	return p
}

// ---- tests ----

func TestNew_Rejects(t *testing.T) {
	if _, err := New(Config{Catalog: registers.Catalog()}, newFakeClient(), nil, nil); err == nil {
		t.Fatalf("expected device id error")
	}
	if _, err := New(Config{DeviceID: "gw", Catalog: registers.Catalog()}, nil, nil, nil); err == nil {
		t.Fatalf("expected client error")
	}
	if _, err := New(Config{DeviceID: "gw", Catalog: registers.Catalog(), Retries: -1}, newFakeClient(), nil, nil); err == nil {
		t.Fatalf("expected retries error")
	}
}

func TestPollOnce_AllPresent(t *testing.T) {
	c := newFakeClient()
	c.values[601] = 215
	c.values[602] = 0x8000 | 35

	p := newPoller(t, c, []registers.Descriptor{fixed(601, "temp_ext"), fixed(602, "temp_water")}, DefaultRetries)

	doc := p.PollOnce(context.Background())
	if doc.Partial {
		t.Fatalf("unexpected partial document")
	}
	if doc.Len() != 2 {
		t.Fatalf("expected 2 fields, got %d", doc.Len())
	}

	b, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("marshal err=%v", err)
	}
	if got, want := string(b), `{"temp_ext":21.5,"temp_water":-3.5}`; got != want {
		t.Fatalf("json: got=%s want=%s", got, want)
	}
}

func TestPollOnce_AbsentOmitted(t *testing.T) {
	c := newFakeClient()
	c.values[601] = registers.Absent
	c.values[602] = 100

	p := newPoller(t, c, []registers.Descriptor{fixed(601, "a"), fixed(602, "b")}, DefaultRetries)

	doc := p.PollOnce(context.Background())
	if doc.Len() != 1 || doc.Fields()[0].Name != "b" {
		t.Fatalf("absent value should be omitted: %+v", doc.Fields())
	}
}

func TestPollOnce_RetryThenSuccess(t *testing.T) {
	c := newFakeClient()
	c.values[601] = 10
	c.fails[601] = 2

	p := newPoller(t, c, []registers.Descriptor{fixed(601, "a")}, 2)

	doc := p.PollOnce(context.Background())
	if doc.Len() != 1 {
		t.Fatalf("expected value after retries, got %d fields", doc.Len())
	}
	if n := c.callsFor(601); n != 3 {
		t.Fatalf("expected 3 trials, got %d", n)
	}
}

func TestPollOnce_ExhaustedSkipped(t *testing.T) {
	c := newFakeClient()
	c.fails[601] = -1
	c.values[602] = 42

	p := newPoller(t, c, []registers.Descriptor{fixed(601, "a"), fixed(602, "b")}, 2)

	doc := p.PollOnce(context.Background())
	if doc.Partial {
		t.Fatalf("exhausted register must not abort the cycle")
	}
	if doc.Len() != 1 || doc.Fields()[0].Name != "b" {
		t.Fatalf("expected only b: %+v", doc.Fields())
	}
	if n := c.callsFor(601); n != 3 {
		t.Fatalf("expected 1+2 trials, got %d", n)
	}
	if n := c.callsFor(602); n != 1 {
		t.Fatalf("next register should be read once, got %d", n)
	}
}

func TestPollOnce_ZeroRetries(t *testing.T) {
	c := newFakeClient()
	c.fails[601] = -1

	p := newPoller(t, c, []registers.Descriptor{fixed(601, "a")}, 0)
	p.PollOnce(context.Background())

	if n := c.callsFor(601); n != 1 {
		t.Fatalf("expected a single trial, got %d", n)
	}
}

func TestPollOnce_CatalogOrder(t *testing.T) {
	c := newFakeClient()
	catalog := registers.Catalog()

	p := newPoller(t, c, catalog, DefaultRetries)
	doc := p.PollOnce(context.Background())

	// every raw 0 decodes: fixed-point to 0.0, bitfields to 16 flags each
	var want []string
	for _, d := range catalog {
		for _, f := range registers.Decode(d, 0) {
			want = append(want, f.Name)
		}
	}

	got := doc.Fields()
	if len(got) != len(want) {
		t.Fatalf("fields: got=%d want=%d", len(got), len(want))
	}
	for i := range want {
		if got[i].Name != want[i] {
			t.Fatalf("field %d: got=%s want=%s", i, got[i].Name, want[i])
		}
	}
}

func TestPollOnce_CancelledIsPartial(t *testing.T) {
	c := newFakeClient()
	ctx, cancel := context.WithCancel(context.Background())
	c.onRead = func(addr uint16) {
		if addr == 602 {
			cancel()
		}
	}

	p := newPoller(t, c, []registers.Descriptor{fixed(601, "a"), fixed(602, "b"), fixed(603, "c")}, DefaultRetries)

	doc := p.PollOnce(ctx)
	if !doc.Partial {
		t.Fatalf("expected partial document")
	}
	if doc.Len() != 0 {
		t.Fatalf("partial document should carry no fields, got %d", doc.Len())
	}
	if n := c.callsFor(603); n != 0 {
		t.Fatalf("no register should be read after cancel, got %d", n)
	}
}

func TestCycle_PartialNotPublished(t *testing.T) {
	c := newFakeClient()
	p := newPoller(t, c, []registers.Descriptor{fixed(601, "a")}, DefaultRetries)
	sink := &recordingSink{}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p.Cycle(sink)(ctx)

	if sink.count() != 0 {
		t.Fatalf("partial document was published")
	}

	p.Cycle(sink)(context.Background())
	if sink.count() != 1 {
		t.Fatalf("complete document not published")
	}
}
