package buoysync

import (
	"context"
	"fmt"
	"io"
)

// Flow is a convenience builder that lets callers say Conf → From → Into
// without touching the underlying hexagonal wiring.
type Flow struct {
	cfg  *Config
	opts []Option
}

// FlowOption mutates the Flow after configuration is loaded.
type FlowOption func(*Flow)

// Conf loads configuration, applies FlowOption values, and returns a Flow builder.
func Conf(path string, opts ...FlowOption) (*Flow, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}
	return ConfFromConfig(cfg, opts...)
}

// ConfFromConfig bootstraps a Flow from an in-memory Config.
func ConfFromConfig(cfg *Config, opts ...FlowOption) (*Flow, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	f := &Flow{cfg: cfg}
	for _, opt := range opts {
		if opt != nil {
			opt(f)
		}
	}
	return f, nil
}

// Config returns the underlying configuration so callers can tweak it before building a runtime.
func (f *Flow) Config() *Config {
	if f == nil {
		return nil
	}
	return f.cfg
}

// Options appends raw Option values for advanced scenarios.
func (f *Flow) Options(opts ...Option) *Flow {
	if f == nil {
		return nil
	}
	f.appendOptions(opts...)
	return f
}

// From replaces the serial transport with a caller-provided source.
func (f *Flow) From(fn SourceFunc) *Flow {
	if f == nil || fn == nil {
		return f
	}
	f.appendOptions(WithSource(fn))
	return f
}

// Into replaces the configured store with a caller-provided sink.
func (f *Flow) Into(s Sink) *Flow {
	if f == nil || s == nil {
		return f
	}
	f.appendOptions(WithSink(s))
	return f
}

// IntoCallback installs a sink built from a simple callback function.
func (f *Flow) IntoCallback(name string, fn CommitFunc) *Flow {
	return f.Into(NewCallbackSink(name, fn))
}

// Build assembles a Runtime from the recorded options.
func (f *Flow) Build() (*Runtime, error) {
	if f == nil {
		return nil, fmt.Errorf("flow is nil")
	}
	return New(f.cfg, f.opts...)
}

// Sync is a shortcut for Build + Runtime.Sync + Close.
func (f *Flow) Sync(ctx context.Context, startInput string) (Report, error) {
	rt, err := f.Build()
	if err != nil {
		return Report{}, err
	}
	defer rt.Close()
	return rt.Sync(ctx, startInput)
}

// Replay is a shortcut for Build + Runtime.Replay + Close.
func (f *Flow) Replay(ctx context.Context, rd io.Reader, startInput string) (Report, error) {
	rt, err := f.Build()
	if err != nil {
		return Report{}, err
	}
	defer rt.Close()
	return rt.Replay(ctx, rd, startInput)
}

// WithFlowOptions appends Option values during Conf.
func WithFlowOptions(opts ...Option) FlowOption {
	return func(f *Flow) {
		if f != nil {
			f.appendOptions(opts...)
		}
	}
}

func (f *Flow) appendOptions(opts ...Option) {
	for _, opt := range opts {
		if opt != nil {
			f.opts = append(f.opts, opt)
		}
	}
}
