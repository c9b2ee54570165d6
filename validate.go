package formula

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	msgEmptyFormula      = "Formula cannot be empty"
	msgUnmatchedClosing  = "Unmatched closing parenthesis"
	msgUnmatchedOpening  = "Unmatched opening parenthesis"
	msgInvalidCharacters = "Formula contains invalid characters"
)

// Validator runs the syntactic pre-checks that gate a formula before it
// is committed. passing validation does not guarantee a clean evaluation.
type Validator struct {
	// MaxLength limits the formula length in characters, 0 disables it
	MaxLength int
	// MaxRangeSize limits the cells a single range may cover, 0 disables it
	MaxRangeSize int
}

// ValidateFormula checks a formula without a length limit. ranges are
// limited to DefaultMaxRangeSize cells.
func ValidateFormula(formula string) (bool, string) {
	return Validator{MaxRangeSize: DefaultMaxRangeSize}.Validate(formula)
}

// Validate returns false and a user facing message for the first problem
// found
func (v Validator) Validate(formula string) (bool, string) {
	if strings.TrimSpace(formula) == "" {
		return true, ""
	}

	if v.MaxLength > 0 && utf8.RuneCountInString(formula) > v.MaxLength {
		return false, fmt.Sprintf("Formula must not exceed %d characters", v.MaxLength)
	}

	text := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(formula), "="))
	if text == "" {
		return false, msgEmptyFormula
	}

	depth := 0
	for _, ch := range text {
		switch ch {
		case charLParen:
			depth++
		case charRParen:
			depth--
			if depth < 0 {
				return false, msgUnmatchedClosing
			}
		}
	}
	if depth != 0 {
		return false, msgUnmatchedOpening
	}

	for _, ch := range text {
		if !isAllowedChar(ch) {
			return false, msgInvalidCharacters
		}
	}

	if v.MaxRangeSize > 0 {
		tokens, _ := NewLenientLexer(text).Tokenize()
		for _, tok := range tokens {
			if tok.Type != TokenRange {
				continue
			}
			if addr, ok := ParseRange(tok.Value); ok && addr.Len() > v.MaxRangeSize {
				return false, fmt.Sprintf("Range %s must not exceed %d cells", tok.Value, v.MaxRangeSize)
			}
		}
	}

	return true, ""
}

// isAllowedChar matches [A-Za-z0-9_!:+\-*/().,%\s<>=]
func isAllowedChar(ch rune) bool {
	if isIdentPart(ch) || isWhitespace(ch) {
		return true
	}
	switch ch {
	case charExclaim, charColon, charPlus, charMinus, charAsterisk, charSlash,
		charLParen, charRParen, charPeriod, charComma, charPercent,
		charLess, charGreater, charEqual, '\v', '\f':
		return true
	}
	return false
}
