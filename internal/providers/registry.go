package providers

// Provider identifiers form a closed set. Unknown identifiers resolve to
// the registry default — a deliberate leniency contract so that a UI
// sending a stale or misspelled id still gets an answer.
const (
	Gemini    = "gemini"
	OpenAI    = "openai"
	Anthropic = "anthropic"
	Search    = "search"
)

// KnownProviders lists every recognized provider identifier.
var KnownProviders = []string{Gemini, OpenAI, Anthropic, Search}

// Registry maps provider identifiers to their call strategies.
type Registry struct {
	byName    map[string]Provider
	defaultID string
}

// NewRegistry creates a Registry over the given providers. defaultID names
// the strategy used for empty or unrecognized identifiers; it must be a key
// of provs.
func NewRegistry(provs map[string]Provider, defaultID string) *Registry {
	return &Registry{byName: provs, defaultID: defaultID}
}

// Resolve returns the strategy for id, falling back to the default strategy
// for empty or unknown identifiers. The second return value is the
// identifier the caller asked for (or the default id when none was given) —
// the envelope reports this id even when a fallback strategy served the
// request.
func (r *Registry) Resolve(id string) (Provider, string) {
	if id == "" {
		id = r.defaultID
	}
	if p, ok := r.byName[id]; ok {
		return p, id
	}
	return r.byName[r.defaultID], id
}

// Has reports whether id maps to a configured strategy.
func (r *Registry) Has(id string) bool {
	_, ok := r.byName[id]
	return ok
}

// DefaultID returns the configured default provider identifier.
func (r *Registry) DefaultID() string { return r.defaultID }

// Names returns the configured provider identifiers (order unspecified).
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.byName))
	for n := range r.byName {
		out = append(out, n)
	}
	return out
}

// All returns the underlying provider map (used by the health checker).
func (r *Registry) All() map[string]Provider {
	return r.byName
}
