package util

import (
	"errors"
	"strings"

	"github.com/google/uuid"
)

var ErrNilID = errors.New("nil uuid")

// ParseEntityID parses an upstream GUID. Braced and URN forms are accepted;
// the nil UUID is rejected because upstream never assigns it.
func ParseEntityID(raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return uuid.Nil, err
	}
	if id == uuid.Nil {
		return uuid.Nil, ErrNilID
	}
	return id, nil
}
