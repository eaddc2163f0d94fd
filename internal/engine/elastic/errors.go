package elastic

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/elastic/go-elasticsearch/v8/esapi"

	"github.com/kailas-cloud/escompat/internal/engine"
)

// errorBody is the engine's error envelope. "error" is an object on modern
// clusters and a bare string on some proxies and very old versions.
type errorBody struct {
	Error  json.RawMessage `json:"error"`
	Status int             `json:"status"`
}

type errorCause struct {
	Type      string       `json:"type"`
	Reason    string       `json:"reason"`
	RootCause []errorCause `json:"root_cause"`
}

// decodeError reads an error response into *engine.Error.
func decodeError(op string, res *esapi.Response) error {
	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return &engine.Error{Op: op, Status: res.StatusCode, Err: fmt.Errorf("read error body: %w", err)}
	}
	return parseError(op, res.StatusCode, raw)
}

func parseError(op string, status int, raw []byte) error {
	e := &engine.Error{Op: op, Status: status}
	var body errorBody
	if err := json.Unmarshal(raw, &body); err != nil || len(body.Error) == 0 {
		e.Reason = string(raw)
		return e
	}
	if body.Status != 0 {
		e.Status = body.Status
	}
	var cause errorCause
	if err := json.Unmarshal(body.Error, &cause); err == nil {
		e.Type, e.Reason = cause.Type, cause.Reason
		if e.Type == "" && len(cause.RootCause) > 0 {
			e.Type, e.Reason = cause.RootCause[0].Type, cause.RootCause[0].Reason
		}
		return e
	}
	var msg string
	if err := json.Unmarshal(body.Error, &msg); err == nil {
		e.Reason = msg
	}
	return e
}
