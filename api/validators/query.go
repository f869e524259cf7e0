package validators

import (
	"net/http"
	"strconv"
	"strings"

	pkgerrors "github.com/angelmondragon/storefront-settlement/pkg/errors"
	"github.com/angelmondragon/storefront-settlement/pkg/pagination"
)

const maxCursorLen = 256

// ParsePage reads the limit and cursor query parameters. Cursor contents are
// checked later by the service that issued them.
func ParsePage(r *http.Request) (pagination.Params, error) {
	query := r.URL.Query()
	limit, err := queryInt(query.Get("limit"), "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
	if err != nil {
		return pagination.Params{}, err
	}
	cursor := strings.TrimSpace(query.Get("cursor"))
	if len(cursor) > maxCursorLen {
		return pagination.Params{}, pkgerrors.New(pkgerrors.CodeValidation, "cursor too long").
			WithDetails(map[string]any{"field": "cursor", "max": maxCursorLen})
	}
	return pagination.Params{Limit: limit, Cursor: cursor}, nil
}

func queryInt(raw, field string, fallback, lo, hi int) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeValidation, err, field+" must be an integer").
			WithDetails(map[string]any{"field": field})
	}
	if value < lo || value > hi {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, field+" out of range").
			WithDetails(map[string]any{"field": field, "min": lo, "max": hi})
	}
	return value, nil
}
