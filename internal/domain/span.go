package domain

import (
	"context"
	"sync"
	"time"
)

// Profile times the phases of one run. Phases are sequential: beginning a
// phase ends the one before it.
type Profile struct {
	mu      sync.Mutex
	now     func() time.Time
	startTs time.Time
	current *Phase

	Phases  []*Phase `json:"phases"`
	TotalMs *int64   `json:"totalMs,omitempty"`
}

// Phase is one stretch of a run. Steps repeated inside it (one per symbol
// per day) are aggregated into timers rather than recorded individually.
type Phase struct {
	mu      sync.Mutex
	now     func() time.Time
	startTs time.Time

	Name      string            `json:"name"`
	ElapsedMs *int64            `json:"elapsedMs,omitempty"`
	Steps     map[string]*Timer `json:"steps,omitempty"`
}

type Timer struct {
	Count   int   `json:"count"`
	TotalMs int64 `json:"totalMs"`
	MaxMs   int64 `json:"maxMs"`
}

type profileKey struct{}

func ContextWithProfile(ctx context.Context, p *Profile) context.Context {
	return context.WithValue(ctx, profileKey{}, p)
}

// ProfileFromContext returns the profile attached to ctx, or nil.
func ProfileFromContext(ctx context.Context) *Profile {
	p, _ := ctx.Value(profileKey{}).(*Profile)
	return p
}

// NewProfile starts the clock. now may be nil for the wall clock.
func NewProfile(now func() time.Time) (*Profile, func()) {
	if now == nil {
		now = time.Now
	}
	p := &Profile{
		now:     now,
		startTs: now(),
		Phases:  []*Phase{},
	}
	return p, p.End
}

func (p *Profile) Begin(name string) (*Phase, func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current != nil {
		p.current.End()
	}
	ph := &Phase{
		now:     p.now,
		startTs: p.now(),
		Name:    name,
	}
	p.current = ph
	p.Phases = append(p.Phases, ph)
	return ph, ph.End
}

// Current is the phase in progress. Nil-safe.
func (p *Profile) Current() *Phase {
	if p == nil {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

func (p *Profile) End() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current != nil {
		p.current.End()
	}
	if p.TotalMs == nil {
		t := p.now().Sub(p.startTs).Milliseconds()
		p.TotalMs = &t
	}
}

func (ph *Phase) End() {
	ph.mu.Lock()
	defer ph.mu.Unlock()
	if ph.ElapsedMs == nil {
		t := ph.now().Sub(ph.startTs).Milliseconds()
		ph.ElapsedMs = &t
	}
}

// Time starts timing one occurrence of step and returns the func that stops
// it. Safe for concurrent use and on a nil phase.
func (ph *Phase) Time(step string) func() {
	if ph == nil {
		return func() {}
	}
	start := ph.now()
	return func() {
		ms := ph.now().Sub(start).Milliseconds()
		ph.mu.Lock()
		defer ph.mu.Unlock()
		if ph.Steps == nil {
			ph.Steps = map[string]*Timer{}
		}
		t, ok := ph.Steps[step]
		if !ok {
			t = &Timer{}
			ph.Steps[step] = t
		}
		t.Count++
		t.TotalMs += ms
		if ms > t.MaxMs {
			t.MaxMs = ms
		}
	}
}
