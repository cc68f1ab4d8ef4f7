// Package store holds the read paths and small writes that several services
// and the permission evaluator share.
package store

import (
	"errors"

	"gorm.io/gorm"
)

// ErrNotFound indicates the requested row does not exist.
var ErrNotFound = errors.New("not found")

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
