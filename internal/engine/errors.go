package engine

import "fmt"

// Op constants name engine API calls for error context and metrics.
const (
	OpGet           = "get"
	OpIndex         = "index"
	OpDelete        = "delete"
	OpSearch        = "search"
	OpMultiSearch   = "msearch"
	OpDeleteByQuery = "delete_by_query"
	OpCreateIndex   = "create_index"
	OpDeleteIndex   = "delete_index"
	OpPutMapping    = "put_mapping"
	OpGetMapping    = "get_mapping"
	OpPutSettings   = "put_settings"
	OpRefresh       = "refresh"
	OpPing          = "ping"
)

// Error is a failure reported by the engine. Type carries the engine error
// type string (for example "index_not_found_exception") used for classification.
type Error struct {
	Op     string
	Status int
	Type   string
	Reason string
	Err    error
}

func (e *Error) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	case e.Type != "":
		return fmt.Sprintf("%s: [%d] %s: %s", e.Op, e.Status, e.Type, e.Reason)
	default:
		return fmt.Sprintf("%s: status %d", e.Op, e.Status)
	}
}

func (e *Error) Unwrap() error { return e.Err }
