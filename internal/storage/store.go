package storage

import (
	"errors"
	"fmt"
)

// ErrNotFound signals a key without a stored artifact.
var ErrNotFound = errors.New("not found")

// Key identifies a stored artifact within a store.
type Key struct {
	Name  string `json:"name"`
	Label string `json:"label"`
}

// Path returns the file name for the key.
func (k Key) Path() string {
	return fmt.Sprintf("%s_%s", k.Name, k.Label)
}

// Persistence stores and loads json artifacts by key.
type Persistence interface {
	Store(k Key, value interface{}) error
	Load(k Key, value interface{}) error
}

// Void discards all writes and never finds anything.
// It is the default when persistence is disabled.
type Void struct {
}

// NewVoid creates a no-op store.
func NewVoid() Void {
	return Void{}
}

func (v Void) Store(k Key, value interface{}) error {
	return nil
}

func (v Void) Load(k Key, value interface{}) error {
	return fmt.Errorf("'%v': %w", k, ErrNotFound)
}
