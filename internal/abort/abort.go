// Package abort implements the hierarchical cancellation model of spec
// §4.D: a caller's AbortManager carries an ordered list of tiered abort
// instances (external > scrape > engine). Engine-tier aborts are recoverable
// (the orchestrator moves to the next engine); scrape- or external-tier
// aborts must propagate upward.
//
// Grounded on the teacher's contextAwareTransport pattern (html_scraper.go)
// generalized from a single context.Context into a tiered stack, since the
// spec requires the orchestrator to distinguish *why* a suspension point
// was cancelled, not just *that* it was.
package abort

import (
	"context"
	"fmt"
	"time"

	"github.com/wayfarer-labs/scrapeforge/internal/apperr"
)

// Tier is the scope at which a cancellation cause is interpreted.
type Tier int

const (
	TierEngine Tier = iota
	TierScrape
	TierExternal
)

func (t Tier) String() string {
	switch t {
	case TierExternal:
		return "external"
	case TierScrape:
		return "scrape"
	case TierEngine:
		return "engine"
	default:
		return "unknown"
	}
}

// instance is one entry in a Manager's tiered list.
type instance struct {
	tier     Tier
	ctx      context.Context
	errKind  apperr.Kind // kind used when this instance is the one that fired
}

// Manager holds an ordered list of abort instances and answers
// throwIfAborted/child/asSignal/scrapeTimeout/engineNearestTimeout (§4.D).
type Manager struct {
	instances []instance
}

// NewExternal builds the root Manager for one scrape: an external-tier
// instance (caller disconnect / delete) plus a scrape-tier timeout derived
// from ScrapeOptions.timeout.
func NewExternal(external context.Context, scrapeTimeout time.Duration) (*Manager, context.CancelFunc) {
	m := &Manager{}
	m.instances = append(m.instances, instance{tier: TierExternal, ctx: external, errKind: apperr.KindScrapeTimeout})

	scrapeCtx := external
	var cancel context.CancelFunc = func() {}
	if scrapeTimeout > 0 {
		scrapeCtx, cancel = context.WithTimeout(external, scrapeTimeout)
	}
	m.instances = append(m.instances, instance{tier: TierScrape, ctx: scrapeCtx, errKind: apperr.KindScrapeTimeout})
	return m, cancel
}

// Child creates a manager merging the parent's instances plus additional
// engine-scoped contexts (§4.D "child(...extra)").
func (m *Manager) Child(extra ...context.Context) (*Manager, context.CancelFunc) {
	child := &Manager{instances: append([]instance(nil), m.instances...)}
	cancels := make([]context.CancelFunc, 0, len(extra))
	for _, e := range extra {
		ctx, cancel := context.WithCancel(e)
		cancels = append(cancels, cancel)
		child.instances = append(child.instances, instance{tier: TierEngine, ctx: ctx, errKind: apperr.KindEngineSniped})
	}
	cancelAll := func() {
		for _, c := range cancels {
			c()
		}
	}
	return child, cancelAll
}

// WithEngineTimeout is a convenience over Child that also bounds the new
// engine-tier context with a per-engine timeout.
func (m *Manager) WithEngineTimeout(parent context.Context, d time.Duration) (*Manager, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	timeoutCtx, timeoutCancel := context.WithTimeout(ctx, d)
	child := &Manager{instances: append([]instance(nil), m.instances...)}
	child.instances = append(child.instances, instance{tier: TierEngine, ctx: timeoutCtx, errKind: apperr.KindEngineSniped})
	return child, func() {
		timeoutCancel()
		cancel()
	}
}

// WrappedAbort is thrown by ThrowIfAborted: the tier and the inner,
// tier-specific error (§4.D).
type WrappedAbort struct {
	Tier  Tier
	Inner error
}

func (w *WrappedAbort) Error() string {
	return fmt.Sprintf("aborted at tier %s: %v", w.Tier, w.Inner)
}

func (w *WrappedAbort) Unwrap() error { return w.Inner }

// ThrowIfAborted scans instances in the order they were added (external,
// then scrape, then any engine-tier children) and returns the first one
// whose context is done, wrapped with its tier.
func (m *Manager) ThrowIfAborted() error {
	for _, inst := range m.instances {
		if err := inst.ctx.Err(); err != nil {
			return &WrappedAbort{Tier: inst.tier, Inner: apperr.Wrap(inst.errKind, "context aborted", err)}
		}
	}
	return nil
}

// AsSignal returns a context that is Done as soon as any instance fires,
// along with the tier of whichever one does (§4.D "asSignal").
func (m *Manager) AsSignal() (ctx context.Context, tierOf func() Tier) {
	ctx, cancel := context.WithCancel(context.Background())
	fired := TierEngine
	done := make(chan struct{})
	for _, inst := range m.instances {
		inst := inst
		go func() {
			select {
			case <-inst.ctx.Done():
				select {
				case <-done:
				default:
					fired = inst.tier
					close(done)
					cancel()
				}
			case <-done:
			}
		}()
	}
	return ctx, func() Tier { return fired }
}

// nearestDeadline returns the soonest deadline among instances at tier t,
// or (zero, false) if none have a deadline.
func (m *Manager) nearestDeadline(t Tier) (time.Time, bool) {
	var best time.Time
	found := false
	for _, inst := range m.instances {
		if inst.tier != t {
			continue
		}
		if dl, ok := inst.ctx.Deadline(); ok {
			if !found || dl.Before(best) {
				best = dl
				found = true
			}
		}
	}
	return best, found
}

// ScrapeTimeout returns remaining time until the nearest scrape-tier abort,
// or (0, false) if no scrape-tier deadline is set.
func (m *Manager) ScrapeTimeout() (time.Duration, bool) {
	dl, ok := m.nearestDeadline(TierScrape)
	if !ok {
		return 0, false
	}
	return time.Until(dl), true
}

// EngineNearestTimeout returns remaining time until the nearest engine-tier
// abort, or (0, false) if none is set.
func (m *Manager) EngineNearestTimeout() (time.Duration, bool) {
	dl, ok := m.nearestDeadline(TierEngine)
	if !ok {
		return 0, false
	}
	return time.Until(dl), true
}
