// Package affix extracts character-counted prefixes and suffixes from UTF-8
// strings. All counts are in Unicode code points, never bytes. A byte that
// does not start a valid encoding counts as one character, so malformed input
// is sliced consistently instead of panicking.
package affix

import "unicode/utf8"

// Length returns the number of characters in s.
func Length(s string) int {
	return utf8.RuneCountInString(s)
}

// Left returns the first n characters of s.
func Left(s string, n int) string {
	if n <= 0 {
		return ""
	}
	return s[:offset(s, n)]
}

// Right returns the last n characters of s.
func Right(s string, n int) string {
	if n <= 0 {
		return ""
	}
	skip := Length(s) - n
	if skip <= 0 {
		return s
	}
	return s[offset(s, skip):]
}

// First returns the first character of s, or "" when s is empty.
func First(s string) string {
	return Left(s, 1)
}

// Last returns the last character of s, or "" when s is empty.
func Last(s string) string {
	return Right(s, 1)
}

// offset returns the byte offset just past the first n characters of s,
// clamped to len(s).
func offset(s string, n int) int {
	i := 0
	for count := 0; count < n && i < len(s); count++ {
		_, size := utf8.DecodeRuneInString(s[i:])
		i += size
	}
	return i
}
