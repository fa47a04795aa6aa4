// internal/poller/modbus/client.go
package modbus

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/goburrow/modbus"
	"golang.org/x/exp/slog"
)

// Client implements poller.Client over Modbus RTU.
// It is geometry-only: it issues reads and unpacks big-endian registers.
// Requests are serialized; the bus is half-duplex.
type Client struct {
	mu      sync.Mutex
	handler *modbus.RTUClientHandler
	client  modbus.Client
}

// Config is the serial link config.
type Config struct {
	Device   string
	BaudRate int
	DataBits int
	Parity   string // N, E or O
	StopBits int
	UnitID   uint8
	Timeout  time.Duration

	// RS485 drives RTS around each request (DE/RE of the transceiver).
	RS485 bool

	// Trace logs raw frames at debug level.
	Trace *slog.Logger
}

// New creates an RTU client. The port is opened eagerly so a missing
// device fails at startup; later failures reconnect on the next request.
func New(cfg Config) (*Client, error) {
	if cfg.Device == "" {
		return nil, errors.New("modbus client: device required")
	}

	parity := strings.ToUpper(cfg.Parity)
	switch parity {
	case "":
		parity = "N"
	case "N", "E", "O":
	default:
		return nil, fmt.Errorf("modbus client: invalid parity %q", cfg.Parity)
	}

	h := modbus.NewRTUClientHandler(cfg.Device)
	h.BaudRate = cfg.BaudRate
	h.DataBits = cfg.DataBits
	h.Parity = parity
	h.StopBits = cfg.StopBits
	h.SlaveId = cfg.UnitID
	h.Timeout = cfg.Timeout
	h.RS485.Enabled = cfg.RS485

	if cfg.Trace != nil {
		h.Logger = slog.NewLogLogger(cfg.Trace.Handler(), slog.LevelDebug)
	}

	if err := h.Connect(); err != nil {
		return nil, fmt.Errorf("modbus client: open %s: %w", cfg.Device, err)
	}

	return &Client{
		handler: h,
		client:  modbus.NewClient(h),
	}, nil
}

// Close closes the serial port.
func (c *Client) Close() error {
	if c == nil || c.handler == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handler.Close()
}

// ---- poller.Client interface ----

func (c *Client) ReadHoldingRegisters(addr, qty uint16) ([]uint16, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	b, err := c.client.ReadHoldingRegisters(addr, qty)
	if err != nil {
		return nil, err
	}
	return unpackRegisters(b, qty)
}

func (c *Client) ReadInputRegisters(addr, qty uint16) ([]uint16, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	b, err := c.client.ReadInputRegisters(addr, qty)
	if err != nil {
		return nil, err
	}
	return unpackRegisters(b, qty)
}

// ---- helpers (pure geometry) ----

func unpackRegisters(data []byte, qty uint16) ([]uint16, error) {
	if len(data) != int(qty)*2 {
		return nil, fmt.Errorf("modbus: register payload length %d, want %d", len(data), int(qty)*2)
	}
	n := len(data) / 2
	out := make([]uint16, n)
	for i := 0; i < n; i++ {
		out[i] = uint16(data[2*i])<<8 | uint16(data[2*i+1])
	}
	return out, nil
}
