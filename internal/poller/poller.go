// internal/poller/poller.go
package poller

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/exp/slog"

	"github.com/tamzrod/modbus-mqtt-gateway/internal/metrics"
	"github.com/tamzrod/modbus-mqtt-gateway/internal/registers"
)

// Client abstracts the field-bus reads the poller needs.
// Requests are issued sequentially, never concurrently.
type Client interface {
	ReadHoldingRegisters(addr, qty uint16) ([]uint16, error) // FC 3
	ReadInputRegisters(addr, qty uint16) ([]uint16, error)   // FC 4
}

// Sink receives complete telemetry documents.
type Sink interface {
	Publish(doc Document) error
}

// DefaultRetries gives three trials per register.
const DefaultRetries = 2

// Config is the minimal runtime config the poller needs.
type Config struct {
	DeviceID string
	Catalog  []registers.Descriptor

	// Retries is the number of extra attempts after the first failed read.
	Retries int
}

// Poller reads the register catalog and decodes it into a Document.
type Poller struct {
	cfg     Config
	client  Client
	log     *slog.Logger
	metrics *metrics.Metrics
}

// New creates a poller with immutable config.
func New(cfg Config, client Client, log *slog.Logger, m *metrics.Metrics) (*Poller, error) {
	if cfg.DeviceID == "" {
		return nil, errors.New("poller: device id required")
	}
	if client == nil {
		return nil, errors.New("poller: client required")
	}
	if cfg.Retries < 0 {
		return nil, errors.New("poller: retries must be >= 0")
	}
	if err := registers.Validate(cfg.Catalog); err != nil {
		return nil, fmt.Errorf("poller: %w", err)
	}
	if log == nil {
		log = slog.Default()
	}

	return &Poller{
		cfg:     cfg,
		client:  client,
		log:     log.With("component", "poller"),
		metrics: m,
	}, nil
}

// PollOnce performs exactly one poll cycle over the configured catalog.
func (p *Poller) PollOnce(ctx context.Context) Document {
	return p.AcquireAll(ctx, p.cfg.Catalog)
}

// AcquireAll reads every descriptor in order.
// A register whose attempts are all exhausted is skipped; the cycle goes on.
// If ctx ends mid-cycle, the returned document is empty and Partial.
func (p *Poller) AcquireAll(ctx context.Context, catalog []registers.Descriptor) Document {
	start := time.Now()
	doc := Document{DeviceID: p.cfg.DeviceID, At: start}

	p.log.Info("parsing all registers", "count", len(catalog))

	for _, d := range catalog {
		if ctx.Err() != nil {
			return p.abort(doc)
		}

		p.log.Debug("register", "addr", d.Address, "kind", d.Kind, "name", d.Name)

		raw, err := p.readRegister(ctx, d)
		if err != nil {
			if ctx.Err() != nil {
				return p.abort(doc)
			}
			p.log.Warn("request failed", "addr", d.Address, "name", d.Name, "err", err)
			p.metrics.RegisterExhausted(d.Address)
			continue
		}

		p.log.Debug("raw value", "name", d.Name, "raw", fmt.Sprintf("%#06x", raw))

		fields := registers.Decode(d, raw)
		if len(fields) == 0 {
			p.log.Debug("no reading available", "addr", d.Address, "name", d.Name)
			continue
		}
		doc.append(fields...)
	}

	if ctx.Err() != nil {
		return p.abort(doc)
	}

	p.metrics.CycleCompleted(doc.Len(), time.Since(start))
	return doc
}

func (p *Poller) abort(doc Document) Document {
	p.log.Warn("poll cycle interrupted, discarding document", "fields", doc.Len())
	p.metrics.CycleSkipped("aborted")
	return Document{DeviceID: doc.DeviceID, At: doc.At, Partial: true}
}

// readRegister makes one initial attempt plus cfg.Retries retries.
// No backoff: the transport timeout paces the attempts.
func (p *Poller) readRegister(ctx context.Context, d registers.Descriptor) (uint16, error) {
	attempts := p.cfg.Retries + 1

	var lastErr error
	for i := 1; i <= attempts; i++ {
		if err := ctx.Err(); err != nil {
			return 0, err
		}

		p.log.Debug("trial", "addr", d.Address, "n", i, "of", attempts)

		regs, err := p.read(d)
		if err == nil && len(regs) != 1 {
			err = fmt.Errorf("poller: expected 1 register, got %d", len(regs))
		}
		if err == nil {
			p.metrics.ReadAttempt(true)
			return regs[0], nil
		}

		p.metrics.ReadAttempt(false)
		p.log.Debug("read error", "addr", d.Address, "n", i, "err", err)
		lastErr = err
	}

	return 0, fmt.Errorf("poller: addr=%d: %d attempts failed: %w", d.Address, attempts, lastErr)
}

func (p *Poller) read(d registers.Descriptor) ([]uint16, error) {
	switch d.Source {
	case registers.Holding:
		return p.client.ReadHoldingRegisters(d.Address, 1)
	case registers.Input:
		return p.client.ReadInputRegisters(d.Address, 1)
	default:
		return nil, fmt.Errorf("poller: unsupported source %s", d.Source)
	}
}
