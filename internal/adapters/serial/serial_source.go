// Package serial requests a dump from a buoy over a serial port and exposes
// the response as a line source.
package serial

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	goserial "go.bug.st/serial"

	"github.com/werpogo98-bit/buoysync/internal/adapters/lines"
)

// Config captures the serial link settings.
type Config struct {
	Port        string        `yaml:"port"`
	Baud        int           `yaml:"baud"`
	ReadTimeout time.Duration `yaml:"read_timeout"`
	SettleDelay time.Duration `yaml:"settle_delay"`
	Trigger     string        `yaml:"trigger"`
}

func (c *Config) ApplyDefaults() {
	if c.Baud == 0 {
		c.Baud = 9600
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 2 * time.Second
	}
	// boards that reset on DTR need a moment before they listen
	if c.SettleDelay == 0 {
		c.SettleDelay = 2 * time.Second
	}
	if c.Trigger == "" {
		c.Trigger = "d"
	}
}

func (c *Config) Validate() error {
	if c.Port == "" {
		return errors.New("port is required")
	}
	if c.Baud < 0 {
		return fmt.Errorf("invalid baud rate %d", c.Baud)
	}
	if c.ReadTimeout < 0 {
		return errors.New("read_timeout must not be negative")
	}
	if len(c.Trigger) != 1 {
		return fmt.Errorf("trigger must be a single byte, got %q", c.Trigger)
	}
	return nil
}

type port interface {
	io.ReadWriteCloser
	ResetInputBuffer() error
	SetReadTimeout(t time.Duration) error
}

type openFunc func(name string, mode *goserial.Mode) (port, error)

func openPort(name string, mode *goserial.Mode) (port, error) {
	return goserial.Open(name, mode)
}

// Open connects to the buoy, waits for it to settle, discards whatever it
// sent meanwhile and writes the trigger byte. A read that times out with
// no data ends the returned source with io.EOF.
func Open(ctx context.Context, cfg Config) (*lines.Source, error) {
	return open(ctx, cfg, openPort)
}

func open(ctx context.Context, cfg Config, openFn openFunc) (*lines.Source, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("serial config: %w", err)
	}

	p, err := openFn(cfg.Port, &goserial.Mode{
		BaudRate: cfg.Baud,
		DataBits: 8,
		Parity:   goserial.NoParity,
		StopBits: goserial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Port, err)
	}

	if err := p.SetReadTimeout(cfg.ReadTimeout); err != nil {
		p.Close()
		return nil, fmt.Errorf("set read timeout: %w", err)
	}

	if cfg.SettleDelay > 0 {
		timer := time.NewTimer(cfg.SettleDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			p.Close()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	if err := p.ResetInputBuffer(); err != nil {
		p.Close()
		return nil, fmt.Errorf("reset input buffer: %w", err)
	}
	if _, err := p.Write([]byte(cfg.Trigger)); err != nil {
		p.Close()
		return nil, fmt.Errorf("write trigger: %w", err)
	}

	return lines.NewSource(&timeoutReader{port: p}), nil
}

// timeoutReader turns the driver's (0, nil) read timeout into io.EOF.
type timeoutReader struct {
	port
}

func (t *timeoutReader) Read(b []byte) (int, error) {
	n, err := t.port.Read(b)
	if n == 0 && err == nil {
		return 0, io.EOF
	}
	return n, err
}

// ListPorts returns the serial ports visible to the OS.
func ListPorts() ([]string, error) {
	return goserial.GetPortsList()
}
