package lineage

import (
	"time"

	"github.com/r3e-network/dataflow-sim/lib/simulation/cache"
	"github.com/r3e-network/dataflow-sim/lib/simulation/token"
)

// Lineage is the complete computed ancestry/descendant structure of one
// token, together with its source contributions — the pure function
// result of lineage(tokenId) in spec §6. It satisfies cache.Lineage.
type Lineage struct {
	TokenID             string
	GenerationLevel     int
	Ancestors           []AncestorInfo
	Descendants         []AncestorInfo
	UltimateSources     []string
	SourceContributions map[string]float64
}

// Dependencies returns every token id this lineage depends on, for the
// cache's dependency index.
func (l *Lineage) Dependencies() []string {
	deps := make([]string, 0, len(l.Ancestors)+len(l.Descendants)+1)
	deps = append(deps, l.TokenID)
	for _, a := range l.Ancestors {
		deps = append(deps, a.TokenID)
	}
	for _, d := range l.Descendants {
		deps = append(deps, d.TokenID)
	}
	return deps
}

// SizeBytes is a coarse memory estimate used by the Memory eviction
// policy: roughly 64 bytes of overhead per ancestor/descendant entry
// plus the source-contribution map.
func (l *Lineage) SizeBytes() int64 {
	return int64(64*(len(l.Ancestors)+len(l.Descendants)) + 32*len(l.SourceContributions) + 64)
}

// ValidationResult is the structured report returned by Engine.Validate
// (spec §4.3).
type ValidationResult struct {
	TokenID            string
	MissingToken       bool
	CircularReference  bool
	Cycles             []Cycle
	IncompleteLineage  []string // source token ids referenced but absent from the log
	DeepLineageWarning bool
	PerformanceLimit   bool
	MaxDepthSeen       int
}

// OK reports whether the lineage is free of any reportable problem.
func (r *ValidationResult) OK() bool {
	return !r.MissingToken && !r.CircularReference && len(r.IncompleteLineage) == 0 && !r.PerformanceLimit
}

// Engine is the lineage query API of spec §6, built on top of a Graph
// derived from a log snapshot and memoized through a lineage Cache.
type Engine struct {
	graph      *Graph
	cache      *cache.Cache
	maxPathDepth int
	warnDepth    int
	hardDepth    int
}

// Config controls Engine construction.
type Config struct {
	Cache        *cache.Cache // may be nil to disable caching
	MaxPathDepth int
	WarnDepth    int
	HardDepth    int
}

// New builds a lineage Engine from a log snapshot.
func New(entries []token.Entry, cfg Config) *Engine {
	if cfg.MaxPathDepth <= 0 {
		cfg.MaxPathDepth = 64
	}
	if cfg.WarnDepth <= 0 {
		cfg.WarnDepth = 20
	}
	if cfg.HardDepth <= 0 {
		cfg.HardDepth = 100
	}
	return &Engine{
		graph:        Build(entries),
		cache:        cfg.Cache,
		maxPathDepth: cfg.MaxPathDepth,
		warnDepth:    cfg.WarnDepth,
		hardDepth:    cfg.HardDepth,
	}
}

// Graph exposes the underlying Graph for callers that need raw queries
// (e.g. replay comparison).
func (e *Engine) Graph() *Graph { return e.graph }

// Lineage computes (or retrieves from cache) the full lineage of a token.
func (e *Engine) Lineage(tokenID string) (*Lineage, error) {
	if e.cache != nil {
		if cached, ok := e.cache.Get(tokenID); ok {
			if l, ok := cached.(*Lineage); ok {
				return l, nil
			}
		}
	}

	start := time.Now()
	ancestors, err := e.graph.Ancestors(tokenID)
	if err != nil {
		return nil, err
	}
	descendants, err := e.graph.Descendants(tokenID)
	if err != nil {
		return nil, err
	}
	genLevel, err := e.graph.GenerationLevel(tokenID)
	if err != nil {
		return nil, err
	}
	ultimate, err := e.graph.UltimateSources(tokenID)
	if err != nil {
		return nil, err
	}
	contributions, err := e.graph.SourceContributions(tokenID, e.maxPathDepth)
	if err != nil {
		return nil, err
	}

	l := &Lineage{
		TokenID:             tokenID,
		GenerationLevel:     genLevel,
		Ancestors:           ancestors,
		Descendants:         descendants,
		UltimateSources:     ultimate,
		SourceContributions: contributions,
	}

	if e.cache != nil {
		e.cache.Set(tokenID, l, time.Since(start))
	}
	return l, nil
}

// Ancestors answers ancestors(tokenId).
func (e *Engine) Ancestors(tokenID string) ([]AncestorInfo, error) { return e.graph.Ancestors(tokenID) }

// Descendants answers descendants(tokenId).
func (e *Engine) Descendants(tokenID string) ([]AncestorInfo, error) {
	return e.graph.Descendants(tokenID)
}

// Contributions answers contributions(tokenId).
func (e *Engine) Contributions(tokenID string) (map[string]float64, error) {
	return e.graph.SourceContributions(tokenID, e.maxPathDepth)
}

// GraphStats answers graphStats().
func (e *Engine) GraphStats() GraphStats { return e.graph.Stats() }

// Validate answers validate(tokenId), implementing the four report
// classes of spec §4.3.
func (e *Engine) Validate(tokenID string, allEntries []token.Entry) *ValidationResult {
	result := &ValidationResult{TokenID: tokenID}

	if !e.graph.Exists(tokenID) {
		result.MissingToken = true
		return result
	}

	ancestors, err := e.graph.Ancestors(tokenID)
	if err != nil {
		result.MissingToken = true
		return result
	}

	cycles := e.graph.DetectCycles()
	if len(cycles) > 0 {
		result.CircularReference = true
		result.Cycles = cycles
	}

	knownTokens := map[string]bool{}
	for _, en := range allEntries {
		if en.IsCreation() {
			knownTokens[en.TokenID] = true
		}
	}
	var incomplete []string
	seen := map[string]bool{}
	for _, en := range allEntries {
		if en.TokenID != tokenID {
			continue
		}
		for _, src := range en.SourceTokenIDs {
			if !knownTokens[src] && !seen[src] {
				incomplete = append(incomplete, src)
				seen[src] = true
			}
		}
	}
	result.IncompleteLineage = incomplete

	maxDepth := 0
	for _, a := range ancestors {
		if a.GenerationLevel > maxDepth {
			maxDepth = a.GenerationLevel
		}
	}
	result.MaxDepthSeen = maxDepth
	if maxDepth > e.hardDepth {
		result.PerformanceLimit = true
	} else if maxDepth > e.warnDepth {
		result.DeepLineageWarning = true
	}

	return result
}

// InvalidateDependents notifies the lineage cache that a token changed
// (new log entries referencing it were appended).
func (e *Engine) InvalidateDependents(tokenID string) int {
	if e.cache == nil {
		return 0
	}
	return e.cache.InvalidateDependents(tokenID)
}
