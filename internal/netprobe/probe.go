// Package netprobe samples network connectivity on a fixed interval and
// reports transitions into the offline state exactly once.
package netprobe

import (
	"context"
	"net"
	"sync"
	"time"
)

const (
	DefaultInterval = 5 * time.Second
	defaultTarget   = "1.1.1.1:443"
	dialTimeout     = 3 * time.Second
)

// State is one connectivity sample. IsInternetReachable is nil while
// reachability has not been determined yet.
type State struct {
	IsConnected         bool
	IsInternetReachable *bool
}

// Offline reports whether the sample is a confirmed dead state: no link and
// reachability definitively false. An undetermined probe is not offline.
func (s State) Offline() bool {
	return !s.IsConnected && s.IsInternetReachable != nil && !*s.IsInternetReachable
}

// Sampler produces one connectivity sample.
type Sampler func(ctx context.Context) State

// DialSampler probes connectivity with a TCP dial to a well-known endpoint.
func DialSampler(target string) Sampler {
	if target == "" {
		target = defaultTarget
	}
	return func(ctx context.Context) State {
		dialer := net.Dialer{Timeout: dialTimeout}
		conn, err := dialer.DialContext(ctx, "tcp", target)
		reachable := err == nil
		if conn != nil {
			conn.Close()
		}
		return State{IsConnected: reachable, IsInternetReachable: &reachable}
	}
}

// Probe polls a Sampler on a fixed interval. Every sample goes to onChange;
// onOffline fires once per transition into the offline state, not on every
// offline sample.
type Probe struct {
	sampler   Sampler
	interval  time.Duration
	onChange  func(State)
	onOffline func()

	mu      sync.Mutex
	last    State
	offline bool
}

type Option func(*Probe)

func WithInterval(interval time.Duration) Option {
	return func(p *Probe) {
		if interval > 0 {
			p.interval = interval
		}
	}
}

func WithOnChange(fn func(State)) Option {
	return func(p *Probe) { p.onChange = fn }
}

func WithOnOffline(fn func()) Option {
	return func(p *Probe) { p.onOffline = fn }
}

func New(sampler Sampler, opts ...Option) *Probe {
	p := &Probe{
		sampler:  sampler,
		interval: DefaultInterval,
		last:     State{IsConnected: true},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Last returns the most recent sample. Before the first poll it reports an
// optimistic connected state with undetermined reachability.
func (p *Probe) Last() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last
}

// Start samples immediately, then on every interval tick until the context is
// cancelled or the returned stop function runs.
func (p *Probe) Start(ctx context.Context) func() {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	go func() {
		defer close(done)
		p.poll(ctx)
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				p.poll(ctx)
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			<-done
		})
	}
}

func (p *Probe) poll(ctx context.Context) {
	sample := p.sampler(ctx)

	p.mu.Lock()
	p.last = sample
	enteredOffline := sample.Offline() && !p.offline
	p.offline = sample.Offline()
	p.mu.Unlock()

	if p.onChange != nil {
		p.onChange(sample)
	}
	if enteredOffline && p.onOffline != nil {
		p.onOffline()
	}
}
