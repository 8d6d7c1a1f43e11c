package teamauth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

// ProviderError is a rejection reported by a remote party: the identity
// provider, the backend or a callback redirect. Status is the HTTP status
// when there was one.
type ProviderError struct {
	Provider    string
	Operation   string
	Status      int
	Code        string
	Description string
	Err         error
	Raw         map[string]any
}

// Error reads as "<provider> <operation> failed [status]: <detail>".
func (e *ProviderError) Error() string {
	if e == nil {
		return "provider error"
	}

	var b strings.Builder
	b.WriteString(e.scope())
	b.WriteString(" failed")
	if e.Status != 0 {
		fmt.Fprintf(&b, " [%d]", e.Status)
	}
	if detail := e.detail(); detail != "" {
		b.WriteString(": ")
		b.WriteString(detail)
	}
	return b.String()
}

func (e *ProviderError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func (e *ProviderError) scope() string {
	parts := make([]string, 0, 2)
	for _, p := range []string{e.Provider, e.Operation} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) == 0 {
		return "provider"
	}
	return strings.Join(parts, " ")
}

func (e *ProviderError) detail() string {
	switch {
	case e.Description != "":
		return e.Description
	case e.Code != "":
		return e.Code
	case e.Err != nil:
		return e.Err.Error()
	}
	return ""
}

// HTTPCode is the go-errors code for the reply. Statuses outside the
// 4xx/5xx range yield 0 so the sentinel keeps its own code.
func (e *ProviderError) HTTPCode() int {
	if e == nil || e.Status < http.StatusBadRequest || e.Status > 599 {
		return 0
	}
	return e.Status
}

// Category classifies the reply status with go-errors' HTTP table.
func (e *ProviderError) Category() goerrors.Category {
	if e.HTTPCode() == 0 {
		return ""
	}
	return goerrors.HTTPStatusToCategory(e.Status)
}

// Metadata flattens the error into go-errors metadata. Empty fields are omitted.
func (e *ProviderError) Metadata() map[string]any {
	if e == nil {
		return nil
	}

	meta := map[string]any{}
	set := func(key string, value string) {
		if value != "" {
			meta[key] = value
		}
	}
	set("provider", e.Provider)
	set("operation", e.Operation)
	set("code", e.Code)
	set("description", e.Description)
	if e.Status != 0 {
		meta["status"] = e.Status
	}
	if cat := e.Category(); cat != "" {
		meta["status_category"] = string(cat)
	}
	if len(e.Raw) > 0 {
		meta["raw"] = e.Raw
	}
	return meta
}

// WrapProviderError attaches err to a clone of base. A ProviderError lends
// its description as the user-facing message and its HTTP status as the
// error code. The text code always stays the sentinel's.
func WrapProviderError(base *goerrors.Error, err error) error {
	if base == nil {
		return err
	}

	var perr *ProviderError
	if !errors.As(err, &perr) || perr == nil {
		var meta map[string]any
		if err != nil {
			meta = map[string]any{"error": err.Error()}
		}
		return derive(base, "", err, meta)
	}

	wrapped := derive(base, perr.Description, err, perr.Metadata())
	if code := perr.HTTPCode(); code != 0 {
		wrapped.Code = code
	}
	return wrapped
}
