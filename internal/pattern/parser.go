package pattern

import "github.com/Adithya-Monish-Kumar-K/pattern-type-index/internal/affix"

const (
	markerAny    = "*"
	markerSingle = "?"
	// markerBang is only recognised when rejecting patterns wildcarded at
	// both ends; it never produces a configuration of its own.
	markerBang = "!"
)

// Parse returns the deduplicated configurations needed to resolve patterns.
// Fixed is always first. With glob disabled only Fixed is returned.
// Patterns with no recognised wildcard shape contribute nothing and can only
// match a type exactly.
func Parse(patterns []string, glob bool) []Config {
	configs := make([]Config, 0, 1+len(patterns)/4)
	configs = append(configs, Fixed)
	if !glob {
		return configs
	}
	seen := map[Config]struct{}{Fixed: {}}
	for _, p := range patterns {
		conf, ok := Classify(p)
		if !ok {
			continue
		}
		if _, dup := seen[conf]; dup {
			continue
		}
		seen[conf] = struct{}{}
		configs = append(configs, conf)
	}
	return configs
}

// Classify returns the wildcard configuration for a single pattern. It
// reports false for patterns with no supported wildcard, including those
// wildcarded at both ends.
func Classify(p string) (Config, bool) {
	left, right := affix.First(p), affix.Last(p)
	if isOpen(left) && isOpen(right) {
		return Config{}, false
	}
	switch {
	case left == markerAny:
		return Config{Side: SideLeft, Marker: markerAny, Span: Exact(affix.Length(p) - 1)}, true
	case right == markerAny:
		return Config{Side: SideRight, Marker: markerAny, Span: Exact(affix.Length(p) - 1)}, true
	case left == markerSingle:
		return Config{Side: SideLeft, Marker: markerSingle, Span: AllButWildcard()}, true
	case right == markerSingle:
		return Config{Side: SideRight, Marker: markerSingle, Span: AllButWildcard()}, true
	}
	return Config{}, false
}

func isOpen(c string) bool {
	return c == markerAny || c == markerBang
}
