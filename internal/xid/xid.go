package xid

import (
	"fmt"

	"github.com/google/uuid"
)

// New returns a prefixed identifier. Version 7 UUIDs keep ids roughly
// ordered by creation time.
func New(prefix string) string {
	id, err := uuid.NewV7()
	if err != nil {
		return fmt.Sprintf("%s-%s", prefix, uuid.NewString())
	}
	return fmt.Sprintf("%s-%s", prefix, id.String())
}
