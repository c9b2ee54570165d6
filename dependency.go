package formula

import (
	"slices"
	"sort"
)

// ParseDependencies returns the distinct canonical references a formula
// reads, sorted. ranges of up to DefaultMaxRangeSize cells are expanded;
// function names and bare reserved names are not references. formulas that do not parse still yield the
// references that could be recognized.
func ParseDependencies(formula string) []string {
	return parseDependencies(formula, DefaultMaxRangeSize)
}

// parseDependencies expands ranges of up to maxRangeSize cells. a larger
// range contributes only its first and last references. 0 lifts the limit.
func parseDependencies(formula string, maxRangeSize int) []string {
	text := stripFormulaPrefix(formula)
	if text == "" {
		return []string{}
	}

	// lenient lexers never fail
	tokens, _ := NewLenientLexer(text).Tokenize()

	seen := make(map[string]struct{})
	for _, tok := range tokens {
		switch tok.Type {
		case TokenRange:
			addr, ok := ParseRange(tok.Value)
			if !ok {
				continue
			}
			refs := addr.Iterate()
			if maxRangeSize > 0 && addr.Len() > maxRangeSize {
				refs = slices.Values(addr.Bounds())
			}
			for ref := range refs {
				seen[NormalizeReference(ref)] = struct{}{}
			}
		case TokenCell:
			if IsReservedName(tok.Value) {
				continue
			}
			seen[NormalizeReference(tok.Value)] = struct{}{}
		}
	}

	result := make([]string, 0, len(seen))
	for ref := range seen {
		result = append(result, ref)
	}
	sort.Strings(result)
	return result
}
