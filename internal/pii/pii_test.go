package pii

import (
	"testing"

	"github.com/google/uuid"

	"github.com/SimonWaldherr/wrangle/internal/table"
)

func idTable(t *testing.T, values ...any) *table.Table {
	t.Helper()
	tbl := table.NewTable("ids", []table.Column{{Name: "id", Type: table.StringType}})
	for _, v := range values {
		if err := tbl.AppendRow([]any{v}); err != nil {
			t.Fatalf("AppendRow: %v", err)
		}
	}
	return tbl
}

func column(t *testing.T, tbl *table.Table, name string) []any {
	t.Helper()
	vals, err := tbl.Column(name)
	if err != nil {
		t.Fatalf("Column: %v", err)
	}
	return vals
}

func TestShiftDigits(t *testing.T) {
	tbl := idTable(t, "124rf234", "990", nil, int64(11234323))

	out, err := ShiftDigits(tbl, "id", 3)
	if err != nil {
		t.Fatalf("ShiftDigits: %v", err)
	}
	got := column(t, out, "id")
	want := []any{"457rf567", "223", nil, int64(44567656)}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("row %d: got %v, want %v", i, got[i], want[i])
		}
	}

	back, err := UnshiftDigits(out, "id", 3)
	if err != nil {
		t.Fatalf("UnshiftDigits: %v", err)
	}
	orig := column(t, tbl, "id")
	restored := column(t, back, "id")
	for i := range orig {
		if restored[i] != orig[i] {
			t.Errorf("row %d not restored: got %v, want %v", i, restored[i], orig[i])
		}
	}

	// input untouched
	if v := column(t, tbl, "id")[0]; v != "124rf234" {
		t.Errorf("input mutated: %v", v)
	}
}

func TestCaesarLetters(t *testing.T) {
	tbl := idTable(t, "Hello World", "abc-XYZ")

	out, err := CaesarLetters(tbl, "id", 1)
	if err != nil {
		t.Fatalf("CaesarLetters: %v", err)
	}
	got := column(t, out, "id")
	if got[0] != "Ifmmp Xpsme" {
		t.Errorf("got %v, want Ifmmp Xpsme", got[0])
	}
	if got[1] != "bcd-YZA" {
		t.Errorf("got %v, want bcd-YZA", got[1])
	}

	back, err := UncaesarLetters(out, "id", 1)
	if err != nil {
		t.Fatalf("UncaesarLetters: %v", err)
	}
	if v := column(t, back, "id")[0]; v != "Hello World" {
		t.Errorf("not restored: %v", v)
	}
}

func TestShuffleColumnRoundTrip(t *testing.T) {
	values := []any{"Asian", "White", "Black", "Hispanic", "White", "Asian", "Black"}
	tbl := idTable(t, values...)

	shuffled, err := ShuffleColumn(tbl, "id", 42)
	if err != nil {
		t.Fatalf("ShuffleColumn: %v", err)
	}
	got := column(t, shuffled, "id")

	// equal inputs stay equal
	if got[0] != got[5] || got[1] != got[4] || got[2] != got[6] {
		t.Errorf("equal inputs diverged: %v", got)
	}

	back, err := UnshuffleColumn(shuffled, "id", 42)
	if err != nil {
		t.Fatalf("UnshuffleColumn: %v", err)
	}
	restored := column(t, back, "id")
	for i, want := range values {
		if restored[i] != want {
			t.Errorf("row %d: got %v, want %v", i, restored[i], want)
		}
	}

	// outputs draw from the same value set
	valid := map[any]bool{"Asian": true, "White": true, "Black": true, "Hispanic": true}
	for i, v := range got {
		if !valid[v] {
			t.Errorf("row %d: %v is not one of the original values", i, v)
		}
	}
}

func TestShuffleColumnRejectsNonStrings(t *testing.T) {
	tbl := idTable(t, int64(5))
	if _, err := ShuffleColumn(tbl, "id", 1); err == nil {
		t.Error("expected error for non-string column")
	}
}

func TestPseudonymize(t *testing.T) {
	ns := uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")
	tbl := idTable(t, "alice", "bob", "alice", nil)

	out, err := Pseudonymize(tbl, "id", ns)
	if err != nil {
		t.Fatalf("Pseudonymize: %v", err)
	}
	got := column(t, out, "id")

	a1, ok := got[0].(uuid.UUID)
	if !ok {
		t.Fatalf("cell is %T, want uuid.UUID", got[0])
	}
	if got[0] != got[2] {
		t.Error("same input produced different UUIDs")
	}
	if got[0] == got[1] {
		t.Error("different inputs produced the same UUID")
	}
	if got[3] != nil {
		t.Errorf("nil cell transformed: %v", got[3])
	}
	if a1.Version() != 5 {
		t.Errorf("UUID version = %d, want 5", a1.Version())
	}
	if ct := out.Cols[0].Type; ct != table.UUIDType {
		t.Errorf("column type = %v, want UUID", ct)
	}

	// stable across calls
	again, err := Pseudonymize(tbl, "id", ns)
	if err != nil {
		t.Fatalf("Pseudonymize: %v", err)
	}
	if column(t, again, "id")[0] != got[0] {
		t.Error("pseudonyms not stable across runs")
	}
}

func TestUnknownColumn(t *testing.T) {
	tbl := idTable(t, "x")
	if _, err := ShiftDigits(tbl, "nope", 1); err == nil {
		t.Error("ShiftDigits: expected error")
	}
	if _, err := CaesarLetters(tbl, "nope", 1); err == nil {
		t.Error("CaesarLetters: expected error")
	}
	if _, err := Pseudonymize(tbl, "nope", uuid.Nil); err == nil {
		t.Error("Pseudonymize: expected error")
	}
}
