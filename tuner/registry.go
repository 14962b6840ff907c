package tuner

import "context"

// strategyFunc runs one resolution attempt against a page. Implementations
// never panic past this boundary; every code path ends in a Result.
type strategyFunc func(ctx context.Context, page Page, profile SiteProfile) Result

// Optional per-strategy capabilities, discovered by type assertion on the
// entry's impl. A strategy that lacks one simply does not implement the
// interface; there are no nullable function fields.
type cacheClearer interface {
	clearCaches()
}

type directResolver interface {
	directURL(ctx context.Context, page Page, profile SiteProfile) (string, bool)
	invalidateDirectURL(profile SiteProfile)
}

type enumerator interface {
	enumerate(ctx context.Context, page Page, profile SiteProfile) ([]string, error)
}

// strategyEntry is one registry record: the execute function plus dispatch
// metadata. imageIdentifier marks strategies whose channel identifier is an
// image-URL fragment, which the coordinator pre-polls for before dispatch.
type strategyEntry struct {
	name            Strategy
	imageIdentifier bool
	execute         strategyFunc
	impl            any
}

// registry is the fixed strategy table, owned by one Engine and populated
// once at construction. Strategies never reach into the coordinator and the
// coordinator only dispatches through entries, so neither imports the
// other's logic.
type registry struct {
	entries map[Strategy]*strategyEntry
}

func newRegistry() *registry {
	return &registry{entries: make(map[Strategy]*strategyEntry)}
}

func (r *registry) register(e *strategyEntry) {
	r.entries[e.name] = e
}

// lookup returns nil for strategies outside the registered set; callers
// translate that into a typed failure, never a panic.
func (r *registry) lookup(s Strategy) *strategyEntry {
	return r.entries[s]
}
