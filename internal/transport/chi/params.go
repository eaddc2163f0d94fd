package chi

import (
	"fmt"
	"net/http"

	"github.com/oapi-codegen/runtime"
)

// OpTypeCreate selects create semantics on PUT of a document.
const OpTypeCreate = "create"

// docParams are the query parameters of document routes.
type docParams struct {
	Routing *string `json:"routing,omitempty"`
	Version *int64  `json:"version,omitempty"`
	OpType  *string `json:"op_type,omitempty"`
}

// searchParams are the query parameters of search routes.
type searchParams struct {
	Routing *string `json:"routing,omitempty"`
}

func bindDocParams(r *http.Request) (docParams, error) {
	var p docParams
	q := r.URL.Query()
	if err := runtime.BindQueryParameter("form", true, false, "routing", q, &p.Routing); err != nil {
		return p, fmt.Errorf("invalid format for parameter routing: %w", err)
	}
	if err := runtime.BindQueryParameter("form", true, false, "version", q, &p.Version); err != nil {
		return p, fmt.Errorf("invalid format for parameter version: %w", err)
	}
	if err := runtime.BindQueryParameter("form", true, false, "op_type", q, &p.OpType); err != nil {
		return p, fmt.Errorf("invalid format for parameter op_type: %w", err)
	}
	if p.OpType != nil && *p.OpType != OpTypeCreate && *p.OpType != "index" {
		return p, fmt.Errorf("op_type must be %q or \"index\", got %q", OpTypeCreate, *p.OpType)
	}
	return p, nil
}

func bindSearchParams(r *http.Request) (searchParams, error) {
	var p searchParams
	if err := runtime.BindQueryParameter("form", true, false, "routing", r.URL.Query(), &p.Routing); err != nil {
		return p, fmt.Errorf("invalid format for parameter routing: %w", err)
	}
	return p, nil
}

func bindRequiredString(r *http.Request, name string) (string, error) {
	var v string
	if err := runtime.BindQueryParameter("form", true, true, name, r.URL.Query(), &v); err != nil {
		return "", fmt.Errorf("invalid format for parameter %s: %w", name, err)
	}
	return v, nil
}

func bindOptionalString(r *http.Request, name string) (string, error) {
	var v *string
	if err := runtime.BindQueryParameter("form", true, false, name, r.URL.Query(), &v); err != nil {
		return "", fmt.Errorf("invalid format for parameter %s: %w", name, err)
	}
	return deref(v), nil
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
