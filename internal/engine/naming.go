package engine

import "strings"

// IndexName returns the physical index holding records of typ within the
// logical index: "<index>.<lower(typ)>".
func IndexName(index, typ string) string {
	return index + "." + strings.ToLower(typ)
}

// IndexPattern matches every physical index of a logical index.
func IndexPattern(index string) string {
	return index + ".*"
}
