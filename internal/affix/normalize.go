package affix

import (
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Form selects the Unicode normalisation applied to types and patterns
// before they are indexed.
type Form string

const (
	FormNone Form = "none"
	FormNFC  Form = "nfc"
	FormNFD  Form = "nfd"
)

// ParseForm maps a config value onto a Form. The empty string means FormNone.
func ParseForm(v string) (Form, error) {
	switch Form(strings.ToLower(strings.TrimSpace(v))) {
	case "", FormNone:
		return FormNone, nil
	case FormNFC:
		return FormNFC, nil
	case FormNFD:
		return FormNFD, nil
	default:
		return FormNone, fmt.Errorf("unknown normalization form %q", v)
	}
}

// Normalize returns s in the given form. FormNone returns s unchanged.
func (f Form) Normalize(s string) string {
	switch f {
	case FormNFC:
		return norm.NFC.String(s)
	case FormNFD:
		return norm.NFD.String(s)
	default:
		return s
	}
}

// NormalizeAll returns a normalised copy of ss. With FormNone the input slice
// itself is returned.
func (f Form) NormalizeAll(ss []string) []string {
	if f == FormNone || f == "" {
		return ss
	}
	out := make([]string, len(ss))
	for i, s := range ss {
		out[i] = f.Normalize(s)
	}
	return out
}
