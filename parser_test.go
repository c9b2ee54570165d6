package formula

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parses(formula string) bool {
	node, err := ParseFormula(formula)
	return err == nil && node != nil
}

func TestParserBasicFormulas(t *testing.T) {
	validFormulas := []string{
		"=1+2",
		"1+2",
		"=A1",
		"=Tax",
		"=SUM(A1:A10)",
		"=Sheet2!A1",
		"=Sheet2!A1:A9",
		"=SUM(Sheet2!A1:A10)",
		"=Sheet2!A1 + Sheet3!B1",
		"=SUM(A1:A1)",
		"=SUM()",
		"=sum (A1, A2)",
		"=AVG(A1,A2,3)",
		"=IF(A1>A2,1,0)",
		"=IF(A1 <> A2, A1, A2)",
		"=IF(A1!=A2,1,0)",
		"=IF(A1>=A2,IF(A1<=3,1,2),0)",
		"=ROUND(A1/3,2)",
		"=-A1",
		"=--A1",
		"=+A1",
		"=10%",
		"=7%4",
		"=A1 % 2",
		"=(A1+A2)*(A3-A4)/2",
		"=1e3+2.5E-2",
		"=.5",
		"=A1=A2",
		"=UNKNOWNFUNC(A1)",
		"=Main!Revenue_Y1*(1+Main!Growth_Y1%)",
	}

	for _, formula := range validFormulas {
		assert.True(t, parses(formula), "expected %s to parse", formula)
	}

	invalidFormulas := []string{
		"=1+",
		"=(A1",
		"=A1)",
		"=A1 A2",
		"=1..2",
		"=SUM(A1,)",
		"=SUM(,A1)",
		"=*5",
		"=1,2",
		"=A1:",
		"=Sheet!",
		"=A1 @ 2",
		"=A1 ! 2",
		"==A1",
		"=()",
		"=SUM(A1",
		"=Sheet1!A1(2)",
		"=2A",
	}

	for _, formula := range invalidFormulas {
		_, err := ParseFormula(formula)
		if assert.Error(t, err, "expected %s to fail", formula) {
			assert.True(t, errors.Is(err, ErrMalformedFormula), "expected malformed error for %s", formula)
		}
	}
}

func TestParseFormulaEmpty(t *testing.T) {
	for _, formula := range []string{"", "   ", "=", " = "} {
		node, err := ParseFormula(formula)
		assert.NoError(t, err)
		assert.Nil(t, node)
	}
}

func TestParseFormulaErrorDetails(t *testing.T) {
	_, err := ParseFormula("=A1 + @")

	var evalErr *EvaluationError
	require.True(t, errors.As(err, &evalErr))
	assert.Equal(t, "=A1 + @", evalErr.Formula)
	assert.Equal(t, 5, evalErr.Position)
	assert.Contains(t, evalErr.Error(), "unexpected character: @")
}

func TestParserTreeShape(t *testing.T) {
	tests := []struct {
		formula  string
		expected string
	}{
		{"=1+2*3", "(1+(2*3))"},
		{"=(1+2)*3", "((1+2)*3)"},
		{"=1-2-3", "((1-2)-3)"},
		{"=-a1%", "-(A1%)"},
		{"=7%4", "(7%4)"},
		{"=A1>1+2", "(A1>(1+2))"},
		{"=if(a1>1,2,3)", "IF((A1>1),2,3)"},
		{"=sum(a1:a3, 2)", "SUM(A1:A3,2)"},
		{"=IF(A1,2)", "IF(A1,2)"},
		{"=main!tax*2", "(MAIN!TAX*2)"},
	}

	for _, tt := range tests {
		t.Run(tt.formula, func(t *testing.T) {
			node, err := ParseFormula(tt.formula)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, node.ToString())
		})
	}
}

func TestParserNodeTypes(t *testing.T) {
	node, err := ParseFormula("=IF(A1>A2,1,0)")
	require.NoError(t, err)
	_, ok := node.(*ConditionalNode)
	assert.True(t, ok, "three argument IF should be a conditional")

	node, err = ParseFormula("=IF(A1>A2,1)")
	require.NoError(t, err)
	call, ok := node.(*FunctionCallNode)
	require.True(t, ok, "IF with the wrong arity stays a function call")
	assert.Equal(t, "IF", call.Name)

	node, err = ParseFormula("=SUM(Row1:Row3)")
	require.NoError(t, err)
	call, ok = node.(*FunctionCallNode)
	require.True(t, ok)
	rng, ok := call.Args[0].(*RangeNode)
	require.True(t, ok)
	assert.Equal(t, "ROW1:ROW3", rng.Text)
	assert.Equal(t, 3, rng.Range.Len())
}

func TestLexerTokens(t *testing.T) {
	tests := []struct {
		input  string
		types  []TokenType
		values []string
	}{
		{
			input:  "A1 % 2",
			types:  []TokenType{TokenCell, TokenBinaryOp, TokenNumber, TokenEOF},
			values: []string{"A1", "%", "2", ""},
		},
		{
			input:  "A1% + 2",
			types:  []TokenType{TokenCell, TokenUnaryPostfixOp, TokenBinaryOp, TokenNumber, TokenEOF},
			values: []string{"A1", "%", "+", "2", ""},
		},
		{
			input:  "7%-2",
			types:  []TokenType{TokenNumber, TokenUnaryPostfixOp, TokenBinaryOp, TokenNumber, TokenEOF},
			values: []string{"7", "%", "-", "2", ""},
		},
		{
			input:  "Main!Rev_1 != 3",
			types:  []TokenType{TokenCell, TokenBinaryOp, TokenNumber, TokenEOF},
			values: []string{"Main!Rev_1", "!=", "3", ""},
		},
		{
			input:  "-1-1",
			types:  []TokenType{TokenUnaryPrefixOp, TokenNumber, TokenBinaryOp, TokenNumber, TokenEOF},
			values: []string{"-", "1", "-", "1", ""},
		},
		{
			input:  "sum(A1:A3)",
			types:  []TokenType{TokenFunction, TokenLeftParen, TokenRange, TokenRightParen, TokenEOF},
			values: []string{"SUM", "(", "A1:A3", ")", ""},
		},
		{
			input:  "1.5e3<=x",
			types:  []TokenType{TokenNumber, TokenBinaryOp, TokenCell, TokenEOF},
			values: []string{"1.5e3", "<=", "x", ""},
		},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			tokens, err := NewLexer(tt.input).Tokenize()
			require.NoError(t, err)

			types := make([]TokenType, len(tokens))
			values := make([]string, len(tokens))
			for i, tok := range tokens {
				types[i] = tok.Type
				values[i] = tok.Value
			}
			assert.Equal(t, tt.types, types)
			assert.Equal(t, tt.values, values)
		})
	}
}

func TestLenientLexerSkipsGarbage(t *testing.T) {
	tokens, err := NewLenientLexer("A1 + @B2 ) ! (").Tokenize()
	require.NoError(t, err)

	var refs []string
	for _, tok := range tokens {
		if tok.Type == TokenCell {
			refs = append(refs, tok.Value)
		}
	}
	assert.Equal(t, []string{"A1", "B2"}, refs)
	assert.Equal(t, TokenEOF, tokens[len(tokens)-1].Type)
}
