package formula

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExpandRange(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []string
	}{
		{"ascending", "Row1:Row5", []string{"Row1", "Row2", "Row3", "Row4", "Row5"}},
		{"reversed", "Row5:Row1", []string{}},
		{"no digits", "Total:Total", []string{"Total"}},
		{"end without digits", "Row3:Total", []string{"Row3"}},
		{"single member", "A7:A7", []string{"A7"}},
		{"zero padded", "Row08:Row10", []string{"Row8", "Row9", "Row10"}},
		{"zero padding dropped", "Row01:Row03", []string{"Row1", "Row2", "Row3"}},
		{"prefix from start", "A1:B3", []string{"A1", "A2", "A3"}},
		{"sheet on start", "Sheet1!A1:A3", []string{"Sheet1!A1", "Sheet1!A2", "Sheet1!A3"}},
		{"sheet on end", "A1:Sheet2!A2", []string{"Sheet2!A1", "Sheet2!A2"}},
		{"sheet on both", "Main!Rev_1:Main!Rev_2", []string{"Main!Rev_1", "Main!Rev_2"}},
		{"case preserved", "row1:ROW2", []string{"row1", "row2"}},
		{"surrounding space", "  A1:A2 ", []string{"A1", "A2"}},
		{"overflowing bound", "A1:A99999999999999999999999", []string{"A1"}},
		{"not a range", "A1", []string{}},
		{"empty", "", []string{}},
		{"two colons", "A1:A2:A3", []string{}},
		{"digit first", "1A:2A", []string{}},
		{"bad sheet", "!A1:A2", []string{}},
		{"missing end", "A1:", []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ExpandRange(tt.input))
		})
	}
}

func TestParseRange(t *testing.T) {
	addr, ok := ParseRange("Sheet1!Row2:Row6")
	assert.True(t, ok)
	assert.Equal(t, "Sheet1", addr.Sheet)
	assert.Equal(t, "Row", addr.Prefix)
	assert.Equal(t, 2, addr.Start)
	assert.Equal(t, 6, addr.End)
	assert.Equal(t, 5, addr.Len())

	reversed, ok := ParseRange("A9:A1")
	assert.True(t, ok)
	assert.Equal(t, 0, reversed.Len())

	fallback, ok := ParseRange("Total:Other")
	assert.True(t, ok)
	assert.Equal(t, 1, fallback.Len())

	_, ok = ParseRange("A1+A2")
	assert.False(t, ok)
}

func TestRangeIterateStopsEarly(t *testing.T) {
	addr, ok := ParseRange("A1:A1000")
	assert.True(t, ok)

	var seen []string
	for ref := range addr.Iterate() {
		seen = append(seen, ref)
		if len(seen) == 3 {
			break
		}
	}
	assert.Equal(t, []string{"A1", "A2", "A3"}, seen)
}

func TestNormalizeReference(t *testing.T) {
	assert.Equal(t, "A1", NormalizeReference(" a1 "))
	assert.Equal(t, "MAIN!REVENUE_Y1", NormalizeReference("Main!Revenue_Y1"))
	assert.Equal(t, "", NormalizeReference("   "))
}

func TestIsReferenceAndIsRange(t *testing.T) {
	assert.True(t, IsReference("Tax"))
	assert.True(t, IsReference("Main!Row_1"))
	assert.True(t, IsReference("_hidden"))
	assert.False(t, IsReference("1Tax"))
	assert.False(t, IsReference("A1:A2"))
	assert.False(t, IsReference("Main!"))

	assert.True(t, IsRange("A1:A2"))
	assert.True(t, IsRange("Total:Total"))
	assert.False(t, IsRange("A1"))
}

func TestReferenceTable(t *testing.T) {
	rt := NewReferenceTable()

	a := rt.Intern("A1")
	b := rt.Intern("B1")
	again := rt.Intern("A1")

	assert.Equal(t, uint32(0), a)
	assert.Equal(t, uint32(1), b)
	assert.Equal(t, a, again)
	assert.Equal(t, 2, rt.Count())

	ref, ok := rt.GetReference(b)
	assert.True(t, ok)
	assert.Equal(t, "B1", ref)

	_, ok = rt.GetReference(7)
	assert.False(t, ok)

	id, ok := rt.Contains("A1")
	assert.True(t, ok)
	assert.Equal(t, a, id)

	_, ok = rt.Contains("C1")
	assert.False(t, ok)
}

func TestRangeBounds(t *testing.T) {
	tests := []struct {
		input    string
		expected []string
	}{
		{"A1:A2000000000", []string{"A1", "A2000000000"}},
		{"Data!Row3:Row3", []string{"Data!Row3"}},
		{"A5:A1", []string{}},
		{"Total:Total", []string{"Total"}},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			addr, ok := ParseRange(tt.input)
			assert.True(t, ok)
			assert.Equal(t, tt.expected, addr.Bounds())
		})
	}
}
