package formula

import "strings"

// TokenType represents different types of tokens in formulas
type TokenType int

const (
	TokenEOF TokenType = iota
	TokenNumber
	TokenCell
	TokenRange
	TokenFunction
	TokenUnaryPrefixOp
	TokenUnaryPostfixOp
	TokenBinaryOp
	TokenComma
	TokenLeftParen
	TokenRightParen
	TokenError
)

var tokenNames = map[TokenType]string{
	TokenEOF:            "end of formula",
	TokenNumber:         "number",
	TokenCell:           "reference",
	TokenRange:          "range",
	TokenFunction:       "function",
	TokenUnaryPrefixOp:  "unary operator",
	TokenUnaryPostfixOp: "postfix operator",
	TokenBinaryOp:       "operator",
	TokenComma:          "comma",
	TokenLeftParen:      "'('",
	TokenRightParen:     "')'",
	TokenError:          "error",
}

func (t TokenType) String() string {
	return tokenNames[t]
}

// BinaryOp represents binary operators in AST nodes
type BinaryOp int

const (
	BinOpAdd BinaryOp = iota
	BinOpSubtract
	BinOpMultiply
	BinOpDivide
	BinOpModulo
	BinOpEqual
	BinOpNotEqual
	BinOpLess
	BinOpLessEqual
	BinOpGreater
	BinOpGreaterEqual
)

// IsComparison reports whether the operator compares its operands
func (op BinaryOp) IsComparison() bool {
	return op >= BinOpEqual
}

// UnaryOp represents unary operators in AST nodes
type UnaryOp int

const (
	UnaryOpPlus UnaryOp = iota
	UnaryOpMinus
	UnaryOpPercent
)

// character classification constants. slightly easier to read.
const (
	charNull       = 0
	charTab        = '\t'
	charNewline    = '\n'
	charReturn     = '\r'
	charSpace      = ' '
	charPercent    = '%'
	charLParen     = '('
	charRParen     = ')'
	charAsterisk   = '*'
	charPlus       = '+'
	charComma      = ','
	charMinus      = '-'
	charPeriod     = '.'
	charSlash      = '/'
	charColon      = ':'
	charLess       = '<'
	charEqual      = '='
	charGreater    = '>'
	charUnderscore = '_'
	charExclaim    = '!'
)

// TokenState represents the lexer state for validation
type TokenState int

const (
	StateStart TokenState = iota
	StateAfterValue
	StateAfterOperator
	StateAfterLeftParen
	StateAfterRightParen
	StateAfterComma
	StateAfterFunction
)

// valueStarts are the tokens that can begin an operand
var valueStarts = map[TokenType]bool{
	TokenNumber:        true,
	TokenCell:          true,
	TokenRange:         true,
	TokenFunction:      true,
	TokenLeftParen:     true,
	TokenUnaryPrefixOp: true,
}

// tokenTransitions maps the current state to valid next token types
var tokenTransitions = map[TokenState]map[TokenType]bool{
	StateStart:         valueStarts,
	StateAfterOperator: valueStarts,
	StateAfterComma:    valueStarts,
	StateAfterLeftParen: {
		TokenNumber:        true,
		TokenCell:          true,
		TokenRange:         true,
		TokenFunction:      true,
		TokenLeftParen:     true, // nested
		TokenUnaryPrefixOp: true,
		TokenRightParen:    true, // empty argument list
	},
	StateAfterValue: { // after number, reference, range
		TokenBinaryOp:       true,
		TokenUnaryPostfixOp: true, // for %
		TokenRightParen:     true,
		TokenComma:          true, // only if in function
		TokenEOF:            true,
		// whitespace is significant - no consecutive values
	},
	StateAfterRightParen: {
		TokenBinaryOp:       true,
		TokenUnaryPostfixOp: true,
		TokenRightParen:     true, // if nested
		TokenComma:          true, // if in function
		TokenEOF:            true,
	},
	StateAfterFunction: {
		TokenLeftParen: true,
	},
}

// Token represents a lexical token with position information
type Token struct {
	Type  TokenType
	Value string
	Pos   int // rune position in input
}

// Lexer tokenizes formula expressions. the input is the formula text after
// the optional leading '=' has been stripped, so '=' is always a
// comparison.
type Lexer struct {
	input      string
	runes      []rune
	pos        int
	state      TokenState
	parenDepth int
	lenient    bool
	tokens     []Token
}

// NewLexer creates a new lexer that rejects malformed input
func NewLexer(input string) *Lexer {
	return &Lexer{
		input:  input,
		runes:  []rune(input),
		state:  StateStart,
		tokens: []Token{},
	}
}

// NewLenientLexer creates a lexer that skips anything it cannot
// tokenize and does not check token order. used to pull references out of
// formulas that may not parse.
func NewLenientLexer(input string) *Lexer {
	l := NewLexer(input)
	l.lenient = true
	return l
}

// Tokenize tokenizes the entire input. the returned slice always ends with
// a TokenEOF token.
func (l *Lexer) Tokenize() ([]Token, error) {
	for {
		tok := l.nextToken()
		if tok.Type == TokenEOF {
			break
		}
		if tok.Type == TokenError {
			if l.lenient {
				continue
			}
			return nil, newSyntaxError(tok.Pos, "%s", tok.Value)
		}
		if !l.lenient && !l.validateTransition(tok.Type) {
			return nil, newSyntaxError(tok.Pos, "unexpected %s %q", tok.Type, tok.Value)
		}
		l.tokens = append(l.tokens, tok)
		l.updateState(tok.Type)
	}

	if !l.lenient {
		if l.parenDepth > 0 {
			return nil, newSyntaxError(l.pos, "missing closing parenthesis")
		}
		if !l.validateTransition(TokenEOF) {
			return nil, newSyntaxError(l.pos, "unexpected end of formula")
		}
	}

	l.tokens = append(l.tokens, Token{Type: TokenEOF, Pos: l.pos})
	return l.tokens, nil
}

// validateTransition checks if the token type is valid in current state
func (l *Lexer) validateTransition(tokenType TokenType) bool {
	validTokens, exists := tokenTransitions[l.state]
	if !exists {
		return false
	}
	return validTokens[tokenType]
}

// updateState updates the lexer state based on the token type
func (l *Lexer) updateState(tokenType TokenType) {
	switch tokenType {
	case TokenNumber, TokenCell, TokenRange:
		l.state = StateAfterValue
	case TokenUnaryPrefixOp, TokenBinaryOp:
		l.state = StateAfterOperator
	case TokenUnaryPostfixOp:
		// postfix operators don't change state
	case TokenLeftParen:
		l.state = StateAfterLeftParen
	case TokenRightParen:
		l.state = StateAfterRightParen
	case TokenComma:
		l.state = StateAfterComma
	case TokenFunction:
		l.state = StateAfterFunction
	}
}

// nextToken returns the next token from the input. every call consumes at
// least one rune unless it returns TokenEOF.
func (l *Lexer) nextToken() Token {
	l.skipWhitespace()

	if l.pos >= len(l.runes) {
		return Token{Type: TokenEOF, Pos: l.pos}
	}

	startPos := l.pos
	ch := l.current()

	// check for numbers
	if isDigit(ch) || (ch == charPeriod && isDigit(l.peek(1))) {
		return l.scanNumber()
	}

	// check for operators and special characters
	switch ch {
	case charLParen:
		l.pos++
		l.parenDepth++
		return Token{Type: TokenLeftParen, Value: "(", Pos: startPos}
	case charRParen:
		l.pos++
		l.parenDepth--
		if l.parenDepth < 0 && !l.lenient {
			return Token{Type: TokenError, Value: "unexpected closing parenthesis", Pos: startPos}
		}
		return Token{Type: TokenRightParen, Value: ")", Pos: startPos}
	case charComma:
		l.pos++
		return Token{Type: TokenComma, Value: ",", Pos: startPos}
	case charPlus, charMinus:
		return l.scanUnaryPrefixOrBinaryOp()
	case charAsterisk, charSlash:
		l.pos++
		return Token{Type: TokenBinaryOp, Value: string(ch), Pos: startPos}
	case charPercent:
		return l.scanPercent()
	case charLess, charGreater, charEqual, charExclaim:
		return l.scanComparisonOp()
	}

	// check for references, ranges and functions
	if isIdentStart(ch) {
		return l.scanIdentifierOrCell()
	}

	// unknown character
	l.pos++
	return Token{Type: TokenError, Value: "unexpected character: " + string(ch), Pos: startPos}
}

// helper methods for character navigation

// substring returns a substring of the original input based on rune positions
func (l *Lexer) substring(start, end int) string {
	if start < 0 || end > len(l.runes) || start > end {
		return ""
	}
	return string(l.runes[start:end])
}

func (l *Lexer) current() rune {
	if l.pos >= len(l.runes) {
		return charNull
	}
	return l.runes[l.pos]
}

func (l *Lexer) peek(offset int) rune {
	pos := l.pos + offset
	if pos >= len(l.runes) || pos < 0 {
		return charNull
	}
	return l.runes[pos]
}

// peekPastWhitespace returns the first non-whitespace rune at or after the
// current position without consuming anything
func (l *Lexer) peekPastWhitespace() rune {
	for pos := l.pos; pos < len(l.runes); pos++ {
		if !isWhitespace(l.runes[pos]) {
			return l.runes[pos]
		}
	}
	return charNull
}

func (l *Lexer) skipWhitespace() {
	for l.pos < len(l.runes) && isWhitespace(l.current()) {
		l.pos++
	}
}

func isWhitespace(ch rune) bool {
	return ch == charSpace || ch == charTab || ch == charNewline || ch == charReturn
}

// scanNumber scans a number token including decimals and scientific notation
func (l *Lexer) scanNumber() Token {
	startPos := l.pos

	// scan integer part
	for l.pos < len(l.runes) && isDigit(l.current()) {
		l.pos++
	}

	// check for decimal part
	if l.current() == charPeriod && isDigit(l.peek(1)) {
		l.pos++ // consume '.'
		for l.pos < len(l.runes) && isDigit(l.current()) {
			l.pos++
		}
	}

	// check for scientific notation (e or E)
	if l.current() == 'e' || l.current() == 'E' {
		savedPos := l.pos
		l.pos++ // consume 'e' or 'E'

		// optional + or - sign
		if l.current() == charPlus || l.current() == charMinus {
			l.pos++
		}

		// must have at least one digit after e/E
		if !isDigit(l.current()) {
			// not scientific notation, restore position
			l.pos = savedPos
		} else {
			for l.pos < len(l.runes) && isDigit(l.current()) {
				l.pos++
			}
		}
	}

	return Token{Type: TokenNumber, Value: l.substring(startPos, l.pos), Pos: startPos}
}

// scanIdent consumes [A-Za-z0-9_]* from the current position
func (l *Lexer) scanIdent() {
	for l.pos < len(l.runes) && isIdentPart(l.current()) {
		l.pos++
	}
}

// scanQualifiedIdent consumes `name` or `sheet!name`. the current rune must
// already be an identifier start.
func (l *Lexer) scanQualifiedIdent() bool {
	l.scanIdent()
	if l.current() != charExclaim || l.peek(1) == charEqual {
		return true
	}
	l.pos++ // consume '!'
	if !isIdentStart(l.current()) {
		return false
	}
	l.scanIdent()
	return true
}

// scanIdentifierOrCell scans references, sheet-qualified references, ranges
// and function names
func (l *Lexer) scanIdentifierOrCell() Token {
	startPos := l.pos

	if !l.scanQualifiedIdent() {
		return Token{Type: TokenError, Value: "invalid reference after sheet name", Pos: startPos}
	}

	// check for range (A1:A9, Sheet!A1:A9, Sheet!A1:Sheet!A9)
	if l.current() == charColon {
		l.pos++ // consume ':'
		if !isIdentStart(l.current()) || !l.scanQualifiedIdent() {
			return Token{Type: TokenError, Value: "invalid range reference", Pos: startPos}
		}
		return Token{Type: TokenRange, Value: l.substring(startPos, l.pos), Pos: startPos}
	}

	value := l.substring(startPos, l.pos)

	// check if it's a function (followed by open paren)
	if !strings.ContainsRune(value, charExclaim) && l.peekPastWhitespace() == charLParen {
		return Token{Type: TokenFunction, Value: strings.ToUpper(value), Pos: startPos}
	}

	return Token{Type: TokenCell, Value: value, Pos: startPos}
}

// scanUnaryPrefixOrBinaryOp scans + and - which can be either unary
// prefix or binary
func (l *Lexer) scanUnaryPrefixOrBinaryOp() Token {
	startPos := l.pos
	ch := l.current()
	l.pos++

	if l.isUnaryContext() {
		return Token{Type: TokenUnaryPrefixOp, Value: string(ch), Pos: startPos}
	}
	return Token{Type: TokenBinaryOp, Value: string(ch), Pos: startPos}
}

// scanPercent scans '%', which is modulo when an operand follows and
// percent otherwise
func (l *Lexer) scanPercent() Token {
	startPos := l.pos
	l.pos++

	next := l.peekPastWhitespace()
	if isDigit(next) || next == charPeriod || isIdentStart(next) || next == charLParen {
		return Token{Type: TokenBinaryOp, Value: "%", Pos: startPos}
	}
	return Token{Type: TokenUnaryPostfixOp, Value: "%", Pos: startPos}
}

// scanComparisonOp scans = < > <= >= <> !=
func (l *Lexer) scanComparisonOp() Token {
	startPos := l.pos
	ch := l.current()
	l.pos++

	switch ch {
	case charLess:
		if l.current() == charEqual {
			l.pos++
			return Token{Type: TokenBinaryOp, Value: "<=", Pos: startPos}
		} else if l.current() == charGreater {
			l.pos++
			return Token{Type: TokenBinaryOp, Value: "<>", Pos: startPos}
		}
		return Token{Type: TokenBinaryOp, Value: "<", Pos: startPos}
	case charGreater:
		if l.current() == charEqual {
			l.pos++
			return Token{Type: TokenBinaryOp, Value: ">=", Pos: startPos}
		}
		return Token{Type: TokenBinaryOp, Value: ">", Pos: startPos}
	case charExclaim:
		if l.current() == charEqual {
			l.pos++
			return Token{Type: TokenBinaryOp, Value: "!=", Pos: startPos}
		}
		// a lone '!' only makes sense inside a sheet-qualified reference
		return Token{Type: TokenError, Value: "unexpected '!'", Pos: startPos}
	}

	return Token{Type: TokenBinaryOp, Value: "=", Pos: startPos}
}

// isUnaryContext checks if the current context allows for unary operators
func (l *Lexer) isUnaryContext() bool {
	// unary operators are allowed after:
	// - start of expression
	// - after another operator
	// - after left paren
	// - after comma
	switch l.state {
	case StateStart, StateAfterOperator, StateAfterLeftParen, StateAfterComma:
		return true
	default:
		return false
	}
}
