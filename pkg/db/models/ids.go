package models

import "github.com/google/uuid"

// assignID fills a zero primary key before insert. Postgres also defaults the
// column, but assigning client-side keeps IDs available before commit.
func assignID(id *uuid.UUID) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
}
