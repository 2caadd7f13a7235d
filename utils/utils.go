package utils

import (
	// Go Internal Packages
	"strings"
)

const keySeparator = ":"

// JoinKey joins the parts of a storage or dedup key.
func JoinKey(parts ...string) string {
	return strings.Join(parts, keySeparator)
}

