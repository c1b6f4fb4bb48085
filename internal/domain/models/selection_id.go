package models

import (
	"strconv"
	"strings"
)

// SelectionIDPrefix starts every selection id; the rest is unix milliseconds.
const SelectionIDPrefix = "sel_"

// ParseSelectionID returns the millisecond timestamp encoded in id.
func ParseSelectionID(id string) (int64, bool) {
	raw, ok := strings.CutPrefix(id, SelectionIDPrefix)
	if !ok {
		return 0, false
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	return ms, err == nil
}

// CompareSelectionIDs orders ids by their timestamp, falling back to a
// string comparison when either id is not well formed.
func CompareSelectionIDs(a, b string) int {
	am, aok := ParseSelectionID(a)
	bm, bok := ParseSelectionID(b)
	if aok && bok {
		switch {
		case am < bm:
			return -1
		case am > bm:
			return 1
		}
		return 0
	}
	return strings.Compare(a, b)
}
