package storage

import (
	"encoding/json"
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
)

// Json is a file backed store keeping one json file per key.
type Json struct {
	dir string
}

// NewJson creates a store rooted at the given directory.
func NewJson(dir string) *Json {
	return &Json{dir: dir}
}

// Path returns the file the key is stored at.
func (s *Json) Path(k Key) string {
	return filepath.Join(s.dir, fmt.Sprintf("%s.json", k.Path()))
}

// Store marshals the value into the file for the key, creating the directory on first use.
func (s *Json) Store(k Key, value interface{}) error {
	if err := os.MkdirAll(s.dir, os.ModePerm); err != nil {
		return fmt.Errorf("could not make dir '%s': %w", s.dir, err)
	}
	b, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("could not marshal '%v': %w", k, err)
	}
	if err := ioutil.WriteFile(s.Path(k), b, 0644); err != nil {
		return fmt.Errorf("could not write '%s': %w", s.Path(k), err)
	}
	return nil
}

// Load unmarshals the file for the key into the value.
func (s *Json) Load(k Key, value interface{}) error {
	b, err := ioutil.ReadFile(s.Path(k))
	if os.IsNotExist(err) {
		return fmt.Errorf("'%v': %w", k, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("could not read '%s': %w", s.Path(k), err)
	}
	if err := json.Unmarshal(b, value); err != nil {
		return fmt.Errorf("could not unmarshal '%v': %w", k, err)
	}
	return nil
}
