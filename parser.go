package formula

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

type NodePosition struct {
	Start int
	End   int
}

// ASTNode is one node of a parsed formula. the tree is a tagged union of
// literals, references, ranges, function calls, operators and
// conditionals; evaluation walks it recursively.
type ASTNode interface {
	Eval(ec *evalContext) (decimal.Decimal, error)
	GetPosition() NodePosition
	ToString() string
}

// MaxNumberExponent bounds the exponent of a numeric literal. decimal
// arithmetic on exponents near the int32 limit panics or allocates digits
// in proportion to the exponent.
const MaxNumberExponent = 1000

// Parser parses tokens into an AST
type Parser struct {
	tokens []Token
	pos    int
}

// NumberNode represents a numeric literal
type NumberNode struct {
	Value    decimal.Decimal
	Position NodePosition
}

func (n *NumberNode) Eval(ec *evalContext) (decimal.Decimal, error) {
	return n.Value, nil
}

func (n *NumberNode) GetPosition() NodePosition {
	return n.Position
}

func (n *NumberNode) ToString() string {
	return n.Value.String()
}

// CellRefNode represents a single reference. Ref is canonical.
type CellRefNode struct {
	Ref      string
	Position NodePosition
}

func (n *CellRefNode) Eval(ec *evalContext) (decimal.Decimal, error) {
	if v, ok := ec.lookup(n.Ref); ok {
		return v, nil
	}
	// unknown references read as zero by convention
	ec.warn(ErrorCodeRef, n.Position.Start, "unknown reference %s", n.Ref)
	return decimal.Zero, nil
}

func (n *CellRefNode) GetPosition() NodePosition {
	return n.Position
}

func (n *CellRefNode) ToString() string {
	return n.Ref
}

// RangeNode represents a `start:end` range. it only has a value as an
// aggregate argument.
type RangeNode struct {
	Text     string
	Range    RangeAddress
	Position NodePosition
}

func (n *RangeNode) Eval(ec *evalContext) (decimal.Decimal, error) {
	return decimal.Zero, newFormulaError(ErrorCodeValue, n.Position.Start, "range %s used where a single value is expected", n.Text)
}

func (n *RangeNode) GetPosition() NodePosition {
	return n.Position
}

func (n *RangeNode) ToString() string {
	return n.Text
}

// BinaryOpNode represents a binary operation
type BinaryOpNode struct {
	Op       BinaryOp
	Left     ASTNode
	Right    ASTNode
	Position NodePosition
}

func (n *BinaryOpNode) Eval(ec *evalContext) (decimal.Decimal, error) {
	left, err := n.Left.Eval(ec)
	if err != nil {
		return decimal.Zero, err
	}
	right, err := n.Right.Eval(ec)
	if err != nil {
		return decimal.Zero, err
	}

	switch n.Op {
	case BinOpAdd:
		return left.Add(right), nil
	case BinOpSubtract:
		return left.Sub(right), nil
	case BinOpMultiply:
		return left.Mul(right), nil
	case BinOpDivide:
		if right.IsZero() {
			return decimal.Zero, newFormulaError(ErrorCodeDiv0, n.Position.Start, "division by zero")
		}
		return left.DivRound(right, ec.precision), nil
	case BinOpModulo:
		if right.IsZero() {
			return decimal.Zero, newFormulaError(ErrorCodeDiv0, n.Position.Start, "modulo by zero")
		}
		return left.Mod(right), nil
	}

	// comparisons yield 1 or 0 outside of IF
	if compare(n.Op, left, right) {
		return decimal.NewFromInt(1), nil
	}
	return decimal.Zero, nil
}

func (n *BinaryOpNode) GetPosition() NodePosition {
	return n.Position
}

func (n *BinaryOpNode) ToString() string {
	return fmt.Sprintf("(%s%s%s)", n.Left.ToString(), binaryOpSymbols[n.Op], n.Right.ToString())
}

var binaryOpSymbols = map[BinaryOp]string{
	BinOpAdd:          "+",
	BinOpSubtract:     "-",
	BinOpMultiply:     "*",
	BinOpDivide:       "/",
	BinOpModulo:       "%",
	BinOpEqual:        "=",
	BinOpNotEqual:     "<>",
	BinOpLess:         "<",
	BinOpLessEqual:    "<=",
	BinOpGreater:      ">",
	BinOpGreaterEqual: ">=",
}

// compare applies a comparison operator
func compare(op BinaryOp, left, right decimal.Decimal) bool {
	cmp := left.Cmp(right)
	switch op {
	case BinOpEqual:
		return cmp == 0
	case BinOpNotEqual:
		return cmp != 0
	case BinOpLess:
		return cmp < 0
	case BinOpLessEqual:
		return cmp <= 0
	case BinOpGreater:
		return cmp > 0
	case BinOpGreaterEqual:
		return cmp >= 0
	}
	return false
}

// UnaryOpNode represents a unary operation
type UnaryOpNode struct {
	Op       UnaryOp
	Operand  ASTNode
	Position NodePosition
}

func (n *UnaryOpNode) Eval(ec *evalContext) (decimal.Decimal, error) {
	val, err := n.Operand.Eval(ec)
	if err != nil {
		return decimal.Zero, err
	}

	switch n.Op {
	case UnaryOpMinus:
		return val.Neg(), nil
	case UnaryOpPercent:
		return val.DivRound(decimal.NewFromInt(100), ec.precision), nil
	default:
		return val, nil
	}
}

func (n *UnaryOpNode) GetPosition() NodePosition {
	return n.Position
}

func (n *UnaryOpNode) ToString() string {
	switch n.Op {
	case UnaryOpMinus:
		return "-" + n.Operand.ToString()
	case UnaryOpPercent:
		return fmt.Sprintf("(%s%%)", n.Operand.ToString())
	}
	return "+" + n.Operand.ToString()
}

// FunctionCallNode represents a call to an aggregate function
type FunctionCallNode struct {
	Name     string
	Args     []ASTNode
	Position NodePosition
}

func (n *FunctionCallNode) Eval(ec *evalContext) (decimal.Decimal, error) {
	if !ec.functions.Has(n.Name) {
		return decimal.Zero, newFormulaError(ErrorCodeName, n.Position.Start, "unknown function %s", n.Name)
	}
	if n.Name == "IF" {
		// three-argument IF is a ConditionalNode
		return decimal.Zero, newFormulaError(ErrorCodeNA, n.Position.Start, "IF expects 3 arguments, got %d", len(n.Args))
	}

	result, err := ec.functions.Call(n.Name, ec.resolveArgs(n.Args))
	if err != nil {
		if formulaErr, ok := err.(*FormulaError); ok {
			formulaErr.Position = n.Position.Start
		}
		return decimal.Zero, err
	}
	return result, nil
}

func (n *FunctionCallNode) GetPosition() NodePosition {
	return n.Position
}

func (n *FunctionCallNode) ToString() string {
	args := make([]string, len(n.Args))
	for i, arg := range n.Args {
		args[i] = arg.ToString()
	}
	return fmt.Sprintf("%s(%s)", n.Name, strings.Join(args, ","))
}

// ConditionalNode represents IF(condition, then, else). only the selected
// branch is evaluated.
type ConditionalNode struct {
	Condition ASTNode
	Then      ASTNode
	Else      ASTNode
	Position  NodePosition
}

func (n *ConditionalNode) Eval(ec *evalContext) (decimal.Decimal, error) {
	if n.holds(ec) {
		return n.Then.Eval(ec)
	}
	return n.Else.Eval(ec)
}

// holds evaluates the condition. a condition that is not a comparison is
// false, and a side that fails to evaluate compares as zero.
func (n *ConditionalNode) holds(ec *evalContext) bool {
	cmp, ok := n.Condition.(*BinaryOpNode)
	if !ok || !cmp.Op.IsComparison() {
		ec.warn(ErrorCodeValue, n.Condition.GetPosition().Start, "IF condition %s is not a comparison", n.Condition.ToString())
		return false
	}
	return compare(cmp.Op, ec.evalOrZero(cmp.Left), ec.evalOrZero(cmp.Right))
}

func (n *ConditionalNode) GetPosition() NodePosition {
	return n.Position
}

func (n *ConditionalNode) ToString() string {
	return fmt.Sprintf("IF(%s,%s,%s)", n.Condition.ToString(), n.Then.ToString(), n.Else.ToString())
}

// NewParser creates a new parser with the given tokens
func NewParser(tokens []Token) *Parser {
	return &Parser{
		tokens: tokens,
		pos:    0,
	}
}

// Parse parses the tokens into an AST
func (p *Parser) Parse() (ASTNode, error) {
	if len(p.tokens) == 0 || p.tokens[0].Type == TokenEOF {
		return nil, newSyntaxError(0, "no tokens to parse")
	}

	node, err := p.parseComparison()
	if err != nil {
		return nil, err
	}

	// ensure we've consumed all tokens except EOF
	if tok := p.current(); tok.Type != TokenEOF {
		return nil, newSyntaxError(tok.Pos, "unexpected token after expression: %s", tok.Value)
	}
	return node, nil
}

func (p *Parser) current() Token {
	if p.pos >= len(p.tokens) {
		end := 0
		if len(p.tokens) > 0 {
			end = p.tokens[len(p.tokens)-1].Pos
		}
		return Token{Type: TokenEOF, Pos: end}
	}
	return p.tokens[p.pos]
}

func span(left, right ASTNode) NodePosition {
	return NodePosition{Start: left.GetPosition().Start, End: right.GetPosition().End}
}

// parseComparison handles comparison operators (lowest precedence)
func (p *Parser) parseComparison() (ASTNode, error) {
	left, err := p.parseAddition()
	if err != nil {
		return nil, err
	}

	for {
		tok := p.current()
		if tok.Type != TokenBinaryOp {
			break
		}

		var op BinaryOp
		switch tok.Value {
		case "=":
			op = BinOpEqual
		case "<>", "!=":
			op = BinOpNotEqual
		case "<":
			op = BinOpLess
		case "<=":
			op = BinOpLessEqual
		case ">":
			op = BinOpGreater
		case ">=":
			op = BinOpGreaterEqual
		default:
			return left, nil
		}

		p.pos++
		right, err := p.parseAddition()
		if err != nil {
			return nil, err
		}
		left = &BinaryOpNode{Op: op, Left: left, Right: right, Position: span(left, right)}
	}

	return left, nil
}

// parseAddition handles addition and subtraction
func (p *Parser) parseAddition() (ASTNode, error) {
	left, err := p.parseMultiplication()
	if err != nil {
		return nil, err
	}

	for {
		tok := p.current()
		if tok.Type != TokenBinaryOp {
			break
		}

		var op BinaryOp
		switch tok.Value {
		case "+":
			op = BinOpAdd
		case "-":
			op = BinOpSubtract
		default:
			return left, nil
		}

		p.pos++
		right, err := p.parseMultiplication()
		if err != nil {
			return nil, err
		}
		left = &BinaryOpNode{Op: op, Left: left, Right: right, Position: span(left, right)}
	}

	return left, nil
}

// parseMultiplication handles multiplication, division, and modulo
func (p *Parser) parseMultiplication() (ASTNode, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}

	for {
		tok := p.current()
		if tok.Type != TokenBinaryOp {
			break
		}

		var op BinaryOp
		switch tok.Value {
		case "*":
			op = BinOpMultiply
		case "/":
			op = BinOpDivide
		case "%":
			op = BinOpModulo
		default:
			return left, nil
		}

		p.pos++
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = &BinaryOpNode{Op: op, Left: left, Right: right, Position: span(left, right)}
	}

	return left, nil
}

// parseUnary handles unary operators
func (p *Parser) parseUnary() (ASTNode, error) {
	tok := p.current()
	if tok.Type != TokenUnaryPrefixOp {
		return p.parsePostfix()
	}

	op := UnaryOpPlus
	if tok.Value == "-" {
		op = UnaryOpMinus
	}

	p.pos++
	operand, err := p.parseUnary() // recurse for chained unary operators
	if err != nil {
		return nil, err
	}

	return &UnaryOpNode{
		Op:       op,
		Operand:  operand,
		Position: NodePosition{Start: tok.Pos, End: operand.GetPosition().End},
	}, nil
}

// parsePostfix handles postfix percent
func (p *Parser) parsePostfix() (ASTNode, error) {
	node, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}

	for p.current().Type == TokenUnaryPostfixOp {
		endPos := p.current().Pos + 1
		p.pos++
		node = &UnaryOpNode{
			Op:       UnaryOpPercent,
			Operand:  node,
			Position: NodePosition{Start: node.GetPosition().Start, End: endPos},
		}
	}

	return node, nil
}

// parsePrimary handles primary expressions (literals, references,
// functions, parentheses)
func (p *Parser) parsePrimary() (ASTNode, error) {
	tok := p.current()
	position := NodePosition{Start: tok.Pos, End: tok.Pos + len([]rune(tok.Value))}

	switch tok.Type {
	case TokenNumber:
		p.pos++
		text := tok.Value
		if strings.HasPrefix(text, ".") {
			text = "0" + text
		}
		val, err := decimal.NewFromString(text)
		if err != nil {
			return nil, newSyntaxError(tok.Pos, "invalid number: %s", tok.Value)
		}
		if exp := val.Exponent(); exp > MaxNumberExponent || exp < -MaxNumberExponent {
			return nil, newSyntaxError(tok.Pos, "number out of range: %s", tok.Value)
		}
		return &NumberNode{Value: val, Position: position}, nil

	case TokenCell:
		p.pos++
		return &CellRefNode{Ref: NormalizeReference(tok.Value), Position: position}, nil

	case TokenRange:
		p.pos++
		text := NormalizeReference(tok.Value)
		addr, ok := ParseRange(text)
		if !ok {
			return nil, newSyntaxError(tok.Pos, "invalid range reference: %s", tok.Value)
		}
		return &RangeNode{Text: text, Range: addr, Position: position}, nil

	case TokenFunction:
		return p.parseFunctionCall()

	case TokenLeftParen:
		p.pos++
		node, err := p.parseComparison()
		if err != nil {
			return nil, err
		}
		if p.current().Type != TokenRightParen {
			return nil, newSyntaxError(p.current().Pos, "expected closing parenthesis")
		}
		p.pos++
		return node, nil

	case TokenEOF:
		return nil, newSyntaxError(tok.Pos, "unexpected end of expression")

	default:
		return nil, newSyntaxError(tok.Pos, "unexpected token: %s", tok.Value)
	}
}

// parseFunctionCall parses a function call. three-argument IF becomes a
// ConditionalNode.
func (p *Parser) parseFunctionCall() (ASTNode, error) {
	funcTok := p.current()
	p.pos++

	// expect opening parenthesis
	if p.current().Type != TokenLeftParen {
		return nil, newSyntaxError(p.current().Pos, "expected '(' after function name")
	}
	p.pos++

	args := []ASTNode{}

	// check for empty argument list
	if p.current().Type == TokenRightParen {
		p.pos++
		return &FunctionCallNode{
			Name:     funcTok.Value,
			Args:     args,
			Position: NodePosition{Start: funcTok.Pos, End: p.tokens[p.pos-1].Pos + 1},
		}, nil
	}

	for {
		arg, err := p.parseComparison()
		if err != nil {
			return nil, err
		}
		args = append(args, arg)

		tok := p.current()
		if tok.Type == TokenRightParen {
			p.pos++
			break
		}
		if tok.Type != TokenComma {
			return nil, newSyntaxError(tok.Pos, "expected ',' or ')' in function arguments")
		}
		p.pos++
	}

	position := NodePosition{Start: funcTok.Pos, End: p.tokens[p.pos-1].Pos + 1}
	if funcTok.Value == "IF" && len(args) == 3 {
		return &ConditionalNode{
			Condition: args[0],
			Then:      args[1],
			Else:      args[2],
			Position:  position,
		}, nil
	}

	return &FunctionCallNode{
		Name:     funcTok.Value,
		Args:     args,
		Position: position,
	}, nil
}

// ParseFormula strips the optional leading '=' and parses the rest. an
// empty formula parses to a nil node without error.
func ParseFormula(formula string) (ASTNode, error) {
	text := stripFormulaPrefix(formula)
	if text == "" {
		return nil, nil
	}

	tokens, err := NewLexer(text).Tokenize()
	if err == nil {
		var node ASTNode
		node, err = NewParser(tokens).Parse()
		if err == nil {
			return node, nil
		}
	}

	if evalErr, ok := err.(*EvaluationError); ok {
		evalErr.Formula = formula
	}
	return nil, err
}

// stripFormulaPrefix trims whitespace and a single leading '='
func stripFormulaPrefix(formula string) string {
	text := strings.TrimSpace(formula)
	text = strings.TrimPrefix(text, "=")
	return strings.TrimSpace(text)
}
