// Package pii provides reversible pseudonymization helpers for sharing
// wrangled extracts. All transforms copy the input table and leave the
// original untouched; each one has an exact inverse except Pseudonymize,
// which is deterministic but one-way.
package pii

import (
	"fmt"
	"math/rand"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/SimonWaldherr/wrangle/internal/table"
)

// ShiftDigits offsets every decimal digit in the column by offset, modulo
// 10 per digit. Non-digit characters pass through unchanged. Applying
// UnshiftDigits with the same offset restores the original values.
func ShiftDigits(t *table.Table, column string, offset int) (*table.Table, error) {
	return mapStringColumn(t, column, func(s string) string {
		return shiftDigitsIn(s, offset)
	})
}

// UnshiftDigits reverses a ShiftDigits with the same offset.
func UnshiftDigits(t *table.Table, column string, offset int) (*table.Table, error) {
	return ShiftDigits(t, column, -offset)
}

func shiftDigitsIn(s string, offset int) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			d := int(r-'0') + offset
			d = ((d % 10) + 10) % 10
			b.WriteRune(rune('0' + d))
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// CaesarLetters rotates ASCII letters in the column by shift positions,
// preserving case. Non-letter characters pass through unchanged.
func CaesarLetters(t *table.Table, column string, shift int) (*table.Table, error) {
	return mapStringColumn(t, column, func(s string) string {
		return caesar(s, shift)
	})
}

// UncaesarLetters reverses a CaesarLetters with the same shift.
func UncaesarLetters(t *table.Table, column string, shift int) (*table.Table, error) {
	return CaesarLetters(t, column, -shift)
}

func caesar(s string, shift int) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z':
			b.WriteRune(rotate(r, 'a', shift))
		case r >= 'A' && r <= 'Z':
			b.WriteRune(rotate(r, 'A', shift))
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

func rotate(r, base rune, shift int) rune {
	n := int(r-base) + shift
	n = ((n % 26) + 26) % 26
	return base + rune(n)
}

// ShuffleColumn replaces each value in the column by another value drawn
// from the same column, using a permutation of the sorted distinct values
// generated by a PRNG seeded with seed. Equal inputs map to equal outputs,
// so joins on the column keep working.
func ShuffleColumn(t *table.Table, column string, seed int64) (*table.Table, error) {
	unique, err := distinctSorted(t, column)
	if err != nil {
		return nil, err
	}
	perm := permute(unique, seed)
	mapping := make(map[string]string, len(unique))
	for i, v := range unique {
		mapping[v] = perm[i]
	}
	return mapStringColumn(t, column, func(s string) string { return mapping[s] })
}

// UnshuffleColumn inverts a ShuffleColumn done with the same seed.
func UnshuffleColumn(t *table.Table, column string, seed int64) (*table.Table, error) {
	unique, err := distinctSorted(t, column)
	if err != nil {
		return nil, err
	}
	perm := permute(unique, seed)
	mapping := make(map[string]string, len(unique))
	for i, v := range unique {
		mapping[perm[i]] = v
	}
	return mapStringColumn(t, column, func(s string) string { return mapping[s] })
}

func permute(unique []string, seed int64) []string {
	perm := make([]string, len(unique))
	copy(perm, unique)
	rng := rand.New(rand.NewSource(seed))
	rng.Shuffle(len(perm), func(i, j int) {
		perm[i], perm[j] = perm[j], perm[i]
	})
	return perm
}

func distinctSorted(t *table.Table, column string) ([]string, error) {
	idx, err := t.ColIndex(column)
	if err != nil {
		return nil, err
	}
	seen := map[string]bool{}
	var unique []string
	for _, row := range t.Rows {
		if row[idx] == nil {
			continue
		}
		s, ok := row[idx].(string)
		if !ok {
			return nil, fmt.Errorf("column %q: shuffle requires string values, got %T", column, row[idx])
		}
		if !seen[s] {
			seen[s] = true
			unique = append(unique, s)
		}
	}
	sort.Strings(unique)
	return unique, nil
}

// Pseudonymize replaces every value in the column with a deterministic
// name-based UUID derived from the namespace. The same input value always
// yields the same UUID, so repeated runs and cross-table joins stay
// consistent. The column type becomes UUID.
func Pseudonymize(t *table.Table, column string, namespace uuid.UUID) (*table.Table, error) {
	idx, err := t.ColIndex(column)
	if err != nil {
		return nil, err
	}
	out := t.Clone()
	for _, row := range out.Rows {
		if row[idx] == nil {
			continue
		}
		row[idx] = uuid.NewSHA1(namespace, []byte(cellString(row[idx])))
	}
	out.Cols[idx].Type = table.UUIDType
	out.Version++
	return out, nil
}

func mapStringColumn(t *table.Table, column string, fn func(string) string) (*table.Table, error) {
	idx, err := t.ColIndex(column)
	if err != nil {
		return nil, err
	}
	out := t.Clone()
	for _, row := range out.Rows {
		switch v := row[idx].(type) {
		case nil:
		case string:
			row[idx] = fn(v)
		case int64:
			shifted := fn(strconv.FormatInt(v, 10))
			n, err := strconv.ParseInt(shifted, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("column %q: %q is not numeric after transform", column, shifted)
			}
			row[idx] = n
		default:
			return nil, fmt.Errorf("column %q: cannot transform %T", column, v)
		}
	}
	out.Version++
	return out, nil
}

func cellString(v any) string {
	switch n := v.(type) {
	case string:
		return n
	case int64:
		return strconv.FormatInt(n, 10)
	case float64:
		return strconv.FormatFloat(n, 'f', -1, 64)
	}
	return fmt.Sprint(v)
}
