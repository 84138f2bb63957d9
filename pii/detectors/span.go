package pii

import "strings"

// ResolveSpan locates the first occurrence of value in text and returns its half-open byte
// span. Matching is exact: no case folding, whitespace collapsing or Unicode normalization.
// ok is false when value is empty or does not occur in text.
func ResolveSpan(text, value string) (start, end int, ok bool) {
	if value == "" {
		return 0, 0, false
	}
	idx := strings.Index(text, value)
	if idx < 0 {
		return 0, 0, false
	}
	return idx, idx + len(value), true
}

// ResolveSpanNear locates the occurrence of value whose start offset is closest to hint.
// Ties go to the earlier occurrence. It is used when a backend reports an approximate
// position that cannot be trusted verbatim but still tells repeated values apart.
func ResolveSpanNear(text, value string, hint int) (start, end int, ok bool) {
	if value == "" {
		return 0, 0, false
	}
	best := -1
	for from := 0; from <= len(text)-len(value); {
		idx := strings.Index(text[from:], value)
		if idx < 0 {
			break
		}
		abs := from + idx
		if best < 0 || distance(abs, hint) < distance(best, hint) {
			best = abs
		}
		// every later occurrence is farther from the hint
		if abs >= hint {
			break
		}
		from = abs + 1
	}
	if best < 0 {
		return 0, 0, false
	}
	return best, best + len(value), true
}

// inBounds reports whether [start, end) is a valid span of text.
func inBounds(text string, start, end int) bool {
	return start >= 0 && start <= end && end <= len(text)
}

// runeToByteOffset converts a code-point offset, as reported by backends written in
// languages that index strings by character, into a byte offset into text.
func runeToByteOffset(text string, runeOffset int) (int, bool) {
	if runeOffset < 0 {
		return 0, false
	}
	n := 0
	for i := range text {
		if n == runeOffset {
			return i, true
		}
		n++
	}
	if n == runeOffset {
		return len(text), true
	}
	return 0, false
}

func distance(a, b int) int {
	if a > b {
		return a - b
	}
	return b - a
}
