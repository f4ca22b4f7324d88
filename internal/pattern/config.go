// Package pattern classifies glob-style patterns into the index
// configurations needed to resolve them. A configuration says which end of a
// type to anchor on, which wildcard marker rebuilds the lookup key, and how
// many characters of the type the key keeps.
package pattern

import (
	"fmt"
	"strconv"

	"github.com/Adithya-Monish-Kumar-K/pattern-type-index/internal/affix"
)

// Side is the end of a type a configuration keeps characters from.
type Side int

const (
	// SideNone indexes the whole type string.
	SideNone Side = iota
	// SideLeft serves patterns with a leading wildcard ("*ab", "?ab"); the
	// key is the marker followed by a suffix of the type.
	SideLeft
	// SideRight serves patterns with a trailing wildcard ("ab*", "ab?"); the
	// key is a prefix of the type followed by the marker.
	SideRight
)

func (s Side) String() string {
	switch s {
	case SideNone:
		return "none"
	case SideLeft:
		return "left"
	case SideRight:
		return "right"
	default:
		return "unknown"
	}
}

// Span is the number of characters a configuration keeps from a type: either
// a fixed count, or everything except the single slot consumed by a "?".
type Span struct {
	allButWildcard bool
	n              int
}

// Exact keeps exactly n characters.
func Exact(n int) Span {
	return Span{n: n}
}

// AllButWildcard keeps all characters of the type but one.
func AllButWildcard() Span {
	return Span{allButWildcard: true}
}

// Resolve returns the character count to keep from a type of the given
// length.
func (s Span) Resolve(typeLen int) int {
	if s.allButWildcard {
		return typeLen - 1
	}
	return s.n
}

func (s Span) String() string {
	if s.allButWildcard {
		return "all-but-one"
	}
	return fmt.Sprintf("%d", s.n)
}

// Config is one index-building pass over the vocabulary. Config is
// comparable and is used directly as its own deduplication key.
type Config struct {
	Side   Side
	Marker string
	Span   Span
}

// Fixed is the exact-match configuration every parse starts with.
var Fixed = Config{Side: SideNone, Marker: "", Span: Exact(0)}

// Key derives the index key for typ under this configuration. It reports
// false when the configuration keeps no characters of typ, or more than typ
// has; such types are never inserted.
func (c Config) Key(typ string) (string, bool) {
	if c.Side == SideNone {
		return typ, true
	}
	length := affix.Length(typ)
	n := c.Span.Resolve(length)
	if n <= 0 || n > length {
		return "", false
	}
	if c.Side == SideLeft {
		return c.Marker + affix.Right(typ, n), true
	}
	return affix.Left(typ, n) + c.Marker, true
}

func (c Config) String() string {
	if c.Side == SideNone {
		return "fixed"
	}
	return fmt.Sprintf("%s%s%s", c.Side, c.Marker, c.Span)
}

// Encode returns a compact, stable text form of c, e.g. "F", "L*3", "R?".
func (c Config) Encode() string {
	var side string
	switch c.Side {
	case SideLeft:
		side = "L"
	case SideRight:
		side = "R"
	default:
		return "F"
	}
	if c.Span.allButWildcard {
		return side + c.Marker
	}
	return fmt.Sprintf("%s%s%d", side, c.Marker, c.Span.n)
}

// DecodeConfig parses the output of Encode.
func DecodeConfig(s string) (Config, error) {
	if s == "F" {
		return Fixed, nil
	}
	if affix.Length(s) < 2 {
		return Config{}, fmt.Errorf("invalid config encoding %q", s)
	}
	var side Side
	switch s[0] {
	case 'L':
		side = SideLeft
	case 'R':
		side = SideRight
	default:
		return Config{}, fmt.Errorf("invalid config side in %q", s)
	}
	marker := affix.First(s[1:])
	rest := s[1+len(marker):]
	if rest == "" {
		return Config{Side: side, Marker: marker, Span: AllButWildcard()}, nil
	}
	n, err := strconv.Atoi(rest)
	if err != nil || n < 1 {
		return Config{}, fmt.Errorf("invalid config length in %q", s)
	}
	return Config{Side: side, Marker: marker, Span: Exact(n)}, nil
}
