// Package utils holds small helpers shared by the handlers and services that
// carry no domain rules of their own.
package utils

import (
	"strconv"
	"strings"
)

// Page is a 1-based page of Size rows.
type Page struct {
	Number int
	Size   int
}

// ParsePage reads raw page and page_size query values. Missing or unparsable
// values take page 1 and defSize; the size is then bounded to [1, maxSize]
// (no upper bound when maxSize <= 0).
func ParsePage(rawNumber, rawSize string, defSize, maxSize int) Page {
	p := Page{Number: parseIntOr(rawNumber, 1), Size: parseIntOr(rawSize, defSize)}
	p.Number = max(p.Number, 1)
	p.Size = max(p.Size, 1)
	if maxSize > 0 {
		p.Size = min(p.Size, maxSize)
	}
	return p
}

// Offset is the number of rows before the page; zero for invalid pages.
func (p Page) Offset() int {
	if p.Number < 1 || p.Size < 1 {
		return 0
	}
	return (p.Number - 1) * p.Size
}

func parseIntOr(s string, def int) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return def
	}
	return n
}
