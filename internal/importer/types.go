package importer

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/SimonWaldherr/wrangle/internal/table"
)

// inferColumnTypes analyzes sample data to determine the best column type
// for each column. Per value it tries BOOL → INT → FLOAT → TIME → UUID → TEXT
// and per column picks the most specific type covering at least 80% of the
// non-null values.
func inferColumnTypes(sampleData [][]string, numCols int, opts *ImportOptions) []table.ColType {
	types := make([]table.ColType, numCols)

	votes := make([]map[table.ColType]int, numCols)
	for i := range votes {
		votes[i] = make(map[table.ColType]int)
	}

	for _, row := range sampleData {
		for colIdx := 0; colIdx < numCols; colIdx++ {
			var val string
			if colIdx < len(row) {
				val = strings.TrimSpace(row[colIdx])
			}
			if isNullValue(val, opts.NullLiterals) {
				continue
			}
			votes[colIdx][detectValueType(val, opts.DateTimeFormats)]++
		}
	}

	for colIdx := 0; colIdx < numCols; colIdx++ {
		types[colIdx] = determineColumnType(votes[colIdx])
	}
	return types
}

// detectValueType parses a single value and returns its most specific type.
func detectValueType(val string, dateFormats []string) table.ColType {
	if val == "" {
		return table.TextType
	}

	lower := strings.ToLower(val)
	if lower == "true" || lower == "false" || lower == "yes" || lower == "no" ||
		(len(val) == 1 && (lower == "t" || lower == "f" || lower == "y" || lower == "n")) {
		return table.BoolType
	}

	if _, err := strconv.ParseInt(val, 10, 64); err == nil {
		return table.IntType
	}
	if _, err := strconv.ParseFloat(val, 64); err == nil {
		return table.FloatType
	}
	for _, layout := range dateFormats {
		if _, err := time.Parse(layout, val); err == nil {
			return table.TimeType
		}
	}
	if len(val) == 36 {
		if _, err := uuid.Parse(val); err == nil {
			return table.UUIDType
		}
	}
	return table.TextType
}

// determineColumnType picks the final column type from the per-value votes.
// INT is promoted to FLOAT on any mixed numeric column.
func determineColumnType(votes map[table.ColType]int) table.ColType {
	totalVotes := 0
	for _, count := range votes {
		totalVotes += count
	}
	if totalVotes == 0 {
		return table.TextType
	}

	boolCount := votes[table.BoolType]
	intCount := votes[table.IntType]
	floatCount := votes[table.FloatType]
	timeCount := votes[table.TimeType]
	uuidCount := votes[table.UUIDType]

	threshold := float64(totalVotes) * 0.80

	if float64(boolCount) >= threshold {
		return table.BoolType
	}
	if float64(timeCount) >= threshold {
		return table.TimeType
	}
	if float64(uuidCount) >= threshold {
		return table.UUIDType
	}
	if float64(intCount) >= threshold && floatCount == 0 {
		return table.IntType
	}
	if float64(intCount+floatCount) >= threshold {
		return table.FloatType
	}
	return table.TextType
}

// isNullValue checks whether a raw value should become a missing cell.
func isNullValue(val string, nullLiterals []string) bool {
	trimmed := strings.ToLower(strings.TrimSpace(val))
	for _, nl := range nullLiterals {
		if trimmed == strings.ToLower(strings.TrimSpace(nl)) {
			return true
		}
	}
	return false
}

// convertValue converts a raw string to the Go value for a column type.
func convertValue(val string, colType table.ColType, dateFormats []string, nullLiterals []string) (any, error) {
	val = strings.TrimSpace(val)
	if isNullValue(val, nullLiterals) {
		return nil, nil
	}

	switch colType {
	case table.BoolType:
		return parseBool(val)
	case table.IntType:
		return strconv.ParseInt(val, 10, 64)
	case table.FloatType:
		return strconv.ParseFloat(val, 64)
	case table.TimeType:
		return parseDateTime(val, dateFormats)
	case table.UUIDType:
		return uuid.Parse(val)
	case table.DurationType:
		return time.ParseDuration(val)
	default:
		// TEXT, STRING, JSON keep the raw text.
		return val, nil
	}
}

// parseBool handles the common textual boolean spellings.
func parseBool(val string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(val)) {
	case "true", "t", "yes", "y", "1":
		return true, nil
	case "false", "f", "no", "n", "0":
		return false, nil
	default:
		return strconv.ParseBool(val)
	}
}

// parseDateTime tries each configured layout in order.
func parseDateTime(val string, formats []string) (time.Time, error) {
	for _, layout := range formats {
		if t, err := time.Parse(layout, val); err == nil {
			return t, nil
		}
	}
	return time.Time{}, strconv.ErrSyntax
}
