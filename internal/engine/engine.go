// Package engine implements the Engine Registry (spec §4.C) and the
// concrete fetch strategies it catalogs. Engines are exposed through a
// common capability trait (§9 "Engine polymorphism"): the orchestrator
// reasons over static EngineDescriptors, never over concrete engine types.
package engine

import (
	"context"
	"sort"

	"github.com/wayfarer-labs/scrapeforge/internal/models"
)

// Engine is the common capability trait every fetch strategy implements.
type Engine interface {
	Descriptor() models.EngineDescriptor
	Scrape(ctx context.Context, meta models.Meta) (models.EngineScrapeResult, error)
}

// Registry is the static catalog of engines (§4.C).
type Registry struct {
	engines map[models.EngineName]Engine
}

// NewRegistry builds a Registry from the given engines, keyed by their own
// descriptor name.
func NewRegistry(engines ...Engine) *Registry {
	r := &Registry{engines: make(map[models.EngineName]Engine, len(engines))}
	for _, e := range engines {
		r.engines[e.Descriptor().Name] = e
	}
	return r
}

// Get returns the engine registered under name, if any.
func (r *Registry) Get(name models.EngineName) (Engine, bool) {
	e, ok := r.engines[name]
	return e, ok
}

// FallbackEntry is one ordered entry in buildFallbackList's result (§4.C).
type FallbackEntry struct {
	Engine              Engine
	UnsupportedFeatures []models.FeatureFlag
}

// supportsOrDegrades reports whether d can serve required, either fully
// (empty unsupported set) or by acceptable degradation, and returns the
// unsupported subset.
func supportsOrDegrades(d models.EngineDescriptor, required models.FeatureSet) (ok bool, unsupported []models.FeatureFlag) {
	for f := range required {
		if !d.SupportedFlags.Has(f) {
			unsupported = append(unsupported, f)
		}
	}
	// An engine with any unsupported required flag still qualifies for the
	// fallback list (it "acceptably degrades", §4.C step 2); the caller
	// surfaces a warning listing the gaps if it ends up winning (§4.E).
	return true, unsupported
}

// BuildFallbackList returns an ordered list of {engine, unsupportedFeatures}
// per §4.C: forceEngine short-circuits; otherwise filter then sort by
// descending quality, tie-break by ascending cost.
func (r *Registry) BuildFallbackList(meta models.Meta) []FallbackEntry {
	if meta.Options.ForceEngine != "" {
		if e, ok := r.Get(models.EngineName(meta.Options.ForceEngine)); ok {
			_, unsupported := supportsOrDegrades(e.Descriptor(), meta.FeatureFlags)
			return []FallbackEntry{{Engine: e, UnsupportedFeatures: unsupported}}
		}
		return nil
	}

	entries := make([]FallbackEntry, 0, len(r.engines))
	for _, e := range r.engines {
		d := e.Descriptor()
		if d.IsIndexLookup {
			// index/index;documents only consulted explicitly, never part of
			// the default live-fetch waterfall.
			continue
		}
		ok, unsupported := supportsOrDegrades(d, meta.FeatureFlags)
		if !ok {
			continue
		}
		entries = append(entries, FallbackEntry{Engine: e, UnsupportedFeatures: unsupported})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		di, dj := entries[i].Engine.Descriptor(), entries[j].Engine.Descriptor()
		if di.Quality != dj.Quality {
			return di.Quality > dj.Quality
		}
		return di.UnsupportedFlagCost < dj.UnsupportedFlagCost
	})
	return entries
}
