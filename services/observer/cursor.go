package observer

import (
	// Go Internal Packages
	"strconv"
	"strings"
)

// CursorAfter reports whether token is strictly past cursor. Paging tokens are decimal
// integers; an empty cursor means nothing was processed yet.
func CursorAfter(token, cursor string) bool {
	if cursor == "" {
		return true
	}
	if token == "" {
		return false
	}
	t, errT := strconv.ParseUint(token, 10, 64)
	c, errC := strconv.ParseUint(cursor, 10, 64)
	if errT == nil && errC == nil {
		return t > c
	}

	token, cursor = strings.TrimLeft(token, "0"), strings.TrimLeft(cursor, "0")
	if len(token) != len(cursor) {
		return len(token) > len(cursor)
	}
	return token > cursor
}
