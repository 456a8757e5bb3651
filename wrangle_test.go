package wrangle_test

import (
	"testing"

	wrangle "github.com/SimonWaldherr/wrangle"
)

func TestColumnTypeConstants(t *testing.T) {
	types := []wrangle.ColType{
		wrangle.IntType, wrangle.FloatType, wrangle.StringType,
		wrangle.TextType, wrangle.BoolType, wrangle.TimeType,
		wrangle.DurationType, wrangle.UUIDType, wrangle.JSONType,
	}
	seen := map[wrangle.ColType]bool{}
	for _, ct := range types {
		if seen[ct] {
			t.Fatalf("duplicate column type constant %v", ct)
		}
		seen[ct] = true
	}
	tbl := wrangle.NewTable("spans", []wrangle.Column{
		{Name: "took", Type: wrangle.DurationType},
	})
	if tbl.Cols[0].Type != wrangle.DurationType {
		t.Fatalf("column type = %v, want DurationType", tbl.Cols[0].Type)
	}
}
