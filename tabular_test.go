package sanlvm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseTableWhitespace(t *testing.T) {
	ast := assert.New(t)

	out := "  vg0  lvol0  4.00g\n  vg0  lvol1  10.00g\n\n"

	records, err := ParseTable(out, Schema{Name: "lvs", Fields: 3})
	ast.NoError(err)
	ast.Equal([][]string{
		{"vg0", "lvol0", "4.00g"},
		{"vg0", "lvol1", "10.00g"},
	}, records)
}

func TestParseTableSeparator(t *testing.T) {
	ast := assert.New(t)

	out := "  vg0:/dev/sda1:10.00g:2.00g\n  vg0:/dev/sdb1:10.00g:10.00g\n"

	records, err := ParseTable(out, Schema{Name: "pvs", Fields: 4, Separator: ":"})
	ast.NoError(err)
	ast.Equal([][]string{
		{"vg0", "/dev/sda1", "10.00g", "2.00g"},
		{"vg0", "/dev/sdb1", "10.00g", "10.00g"},
	}, records)
}

func TestParseTableSingleField(t *testing.T) {
	ast := assert.New(t)

	records, err := ParseTable("  vg0\n  vg1\n", Schema{Name: "vgs", Fields: 1})
	ast.NoError(err)
	ast.Equal([][]string{{"vg0"}, {"vg1"}}, records)
}

func TestParseTableEmptyOutput(t *testing.T) {
	ast := assert.New(t)

	records, err := ParseTable("\n  \n", Schema{Name: "lvs", Fields: 3})
	ast.NoError(err)
	ast.Empty(records)
}

func TestParseTableShortLine(t *testing.T) {
	ast := assert.New(t)

	_, err := ParseTable("  vg0  lvol0\n", Schema{Name: "lvs", Fields: 3})
	ast.Error(err)

	parseErr, ok := err.(*ParseError)
	ast.True(ok, "expected a *ParseError, got %T", err)
	ast.Equal(3, parseErr.Expected)
	ast.Equal(2, parseErr.Found)
	ast.Equal("lvs", parseErr.Schema)
	ast.Equal("vg0  lvol0", parseErr.Line)
}

func TestParseTableLongLine(t *testing.T) {
	ast := assert.New(t)

	_, err := ParseTable("vg0:a:b:c:d:e\n", Schema{Name: "vgs", Fields: 5, Separator: ":"})

	parseErr, ok := err.(*ParseError)
	ast.True(ok, "expected a *ParseError, got %T", err)
	ast.Equal(5, parseErr.Expected)
	ast.Equal(6, parseErr.Found)
}
