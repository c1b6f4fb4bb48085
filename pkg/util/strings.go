package util

import (
	"strconv"
	"strings"
)

// ParseIntDefault parses s, ignoring surrounding whitespace, or returns def
// when s is blank or not an integer.
func ParseIntDefault(s string, def int) int {
	s = strings.TrimSpace(s)
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}
