package formula

import (
	"iter"
	"strconv"
	"strings"
)

// RangeAddress is a parsed `[sheet!]start:end` range. only the numeric
// suffixes take part in the expansion, the prefix comes from start.
type RangeAddress struct {
	Sheet  string // sheet qualifier without the '!', empty if none
	Prefix string // non-digit prefix of the start reference
	Start  int
	End    int

	// literal start reference, used when a bound has no digits
	startRef string
	numeric  bool
}

// ExpandRange expands a range reference into its member references. case is
// preserved, callers normalize. a reversed range expands to nothing and a
// range whose bounds carry no trailing digits degrades to its start
// reference.
func ExpandRange(rangeRef string) []string {
	addr, ok := ParseRange(rangeRef)
	if !ok {
		return []string{}
	}

	result := []string{}
	for ref := range addr.Iterate() {
		result = append(result, ref)
	}
	return result
}

// ParseRange parses the two-reference range grammar
func ParseRange(s string) (RangeAddress, bool) {
	s = strings.TrimSpace(s)
	colon := strings.IndexByte(s, charColon)
	if colon < 0 || strings.IndexByte(s[colon+1:], charColon) >= 0 {
		return RangeAddress{}, false
	}

	startSheet, start, ok := splitQualified(s[:colon])
	if !ok {
		return RangeAddress{}, false
	}
	endSheet, end, ok := splitQualified(s[colon+1:])
	if !ok {
		return RangeAddress{}, false
	}

	sheet := startSheet
	if sheet == "" {
		sheet = endSheet
	}

	addr := RangeAddress{Sheet: sheet, startRef: start}

	startPrefix, startNum, startOk := splitTrailingNumber(start)
	_, endNum, endOk := splitTrailingNumber(end)
	if !startOk || !endOk {
		// no usable bounds, the range is just its start
		return addr, true
	}

	addr.Prefix = startPrefix
	addr.Start = startNum
	addr.End = endNum
	addr.numeric = true
	return addr, true
}

// Iterate yields the member references of the range in ascending order
func (r RangeAddress) Iterate() iter.Seq[string] {
	return func(yield func(string) bool) {
		if !r.numeric {
			yield(r.qualifier() + r.startRef)
			return
		}

		for i := r.Start; i <= r.End; i++ {
			if !yield(r.member(i)) {
				return
			}
		}
	}
}

// Bounds returns the first and last member references, or nothing for a
// reversed range
func (r RangeAddress) Bounds() []string {
	switch {
	case !r.numeric:
		return []string{r.qualifier() + r.startRef}
	case r.End < r.Start:
		return []string{}
	case r.End == r.Start:
		return []string{r.member(r.Start)}
	}
	return []string{r.member(r.Start), r.member(r.End)}
}

func (r RangeAddress) qualifier() string {
	if r.Sheet == "" {
		return ""
	}
	return r.Sheet + "!"
}

func (r RangeAddress) member(i int) string {
	return r.qualifier() + r.Prefix + strconv.Itoa(i)
}

// Len returns the number of member references
func (r RangeAddress) Len() int {
	if !r.numeric {
		return 1
	}
	if r.End < r.Start {
		return 0
	}
	return r.End - r.Start + 1
}

// NormalizeReference returns the canonical form of a reference. every map
// and graph inside the engine is keyed by canonical references.
func NormalizeReference(ref string) string {
	return strings.ToUpper(strings.TrimSpace(ref))
}

// IsReference reports whether s is a single, optionally sheet-qualified,
// cell reference
func IsReference(s string) bool {
	_, _, ok := splitQualified(strings.TrimSpace(s))
	return ok
}

// IsRange reports whether s matches the range grammar
func IsRange(s string) bool {
	_, ok := ParseRange(s)
	return ok
}

// splitQualified splits `sheet!name` into its parts. both parts must be
// identifiers.
func splitQualified(s string) (sheet, name string, ok bool) {
	if bang := strings.IndexByte(s, charExclaim); bang >= 0 {
		sheet, name = s[:bang], s[bang+1:]
		if !isIdentifier(sheet) {
			return "", "", false
		}
	} else {
		name = s
	}
	if !isIdentifier(name) {
		return "", "", false
	}
	return sheet, name, true
}

// splitTrailingNumber extracts the longest trailing run of digits. returns
// false when there are no digits or the run does not fit an int.
func splitTrailingNumber(ref string) (prefix string, n int, ok bool) {
	i := len(ref)
	for i > 0 && isDigit(rune(ref[i-1])) {
		i--
	}
	if i == len(ref) {
		return ref, 0, false
	}

	n, err := strconv.Atoi(ref[i:])
	if err != nil {
		return ref, 0, false
	}
	return ref[:i], n, true
}

// isIdentifier matches [A-Za-z_][A-Za-z0-9_]*
func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, ch := range s {
		if i == 0 && !isIdentStart(ch) {
			return false
		}
		if !isIdentPart(ch) {
			return false
		}
	}
	return true
}

func isDigit(ch rune) bool {
	return ch >= '0' && ch <= '9'
}

func isAlpha(ch rune) bool {
	return (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z')
}

func isIdentStart(ch rune) bool {
	return isAlpha(ch) || ch == charUnderscore
}

func isIdentPart(ch rune) bool {
	return isIdentStart(ch) || isDigit(ch)
}
