package pagination

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	DefaultLimit = 25
	MaxLimit     = 100
)

var errMalformed = errors.New("malformed cursor")

// Params is a keyset page request as read from the query string.
type Params struct {
	Limit  int
	Cursor string
}

// Cursor points at the last row of a page ordered by (At DESC, ID DESC).
// At is whichever timestamp the listing sorts on.
type Cursor struct {
	At time.Time
	ID uuid.UUID
}

func NormalizeLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultLimit
	case limit > MaxLimit:
		return MaxLimit
	default:
		return limit
	}
}

// FetchLimit is the row count to ask the database for: one extra row tells
// Trim whether another page exists.
func FetchLimit(limit int) int {
	return NormalizeLimit(limit) + 1
}

// Trim cuts rows fetched with FetchLimit down to the page size and returns
// the cursor for the next page, or nil on the last page.
func Trim[T any](rows []T, limit int, key func(T) Cursor) ([]T, *Cursor) {
	size := NormalizeLimit(limit)
	if len(rows) <= size {
		return rows, nil
	}
	rows = rows[:size]
	next := key(rows[size-1])
	return rows, &next
}

// EncodeCursor renders a cursor that is safe to pass back as a query value.
func EncodeCursor(cursor Cursor) string {
	payload := cursor.At.UTC().Format(time.RFC3339Nano) + "|" + cursor.ID.String()
	return base64.RawURLEncoding.EncodeToString([]byte(payload))
}

// ParseCursor decodes a cursor from EncodeCursor. A blank value is the first
// page and yields nil.
func ParseCursor(value string) (*Cursor, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	decoded, err := base64.RawURLEncoding.DecodeString(value)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errMalformed, err)
	}
	at, id, ok := strings.Cut(string(decoded), "|")
	if !ok {
		return nil, errMalformed
	}
	ts, err := time.Parse(time.RFC3339Nano, at)
	if err != nil {
		return nil, fmt.Errorf("%w: timestamp: %v", errMalformed, err)
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("%w: id: %v", errMalformed, err)
	}
	return &Cursor{At: ts, ID: parsed}, nil
}
