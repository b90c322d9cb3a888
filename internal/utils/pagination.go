// Package utils holds small helpers shared by the handlers and coordinators.
package utils

import (
	"net/url"
	"strconv"
)

// ParsePage reads raw page and limit query values. Page is at least 1. Limit
// falls back to def when missing or unparsable and is bounded by [1, max].
func ParsePage(page, limit string, def, max int) (int, int) {
	p := atoiOr(page, 1)
	if p < 1 {
		p = 1
	}
	l := atoiOr(limit, def)
	switch {
	case l < 1:
		l = 1
	case l > max:
		l = max
	}
	return p, l
}

// PageQuery encodes a page request the way the upstream list endpoints
// expect it.
func PageQuery(page, limit int) url.Values {
	return url.Values{
		"page":  {strconv.Itoa(page)},
		"limit": {strconv.Itoa(limit)},
	}
}

func atoiOr(s string, def int) int {
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return def
}
