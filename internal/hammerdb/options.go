package hammerdb

import (
	"errors"
	"fmt"
)

// Option categories understood by HammerDB.
const (
	CategoryDB         = "db"
	CategoryBenchmark  = "bm"
	CategoryConnection = "connection"
	CategoryTPCC       = "tpcc"
)

var ErrUnknownCategory = errors.New("unknown option category")

// Option is a single (category, key) = value entry.
// For dbset options Category and Key are the same ("db", "bm").
type Option struct {
	Category string
	Key      string
	Value    string
}

// IsDBSet reports whether the option is written with dbset rather than diset.
func (o Option) IsDBSet() bool {
	return o.Category == CategoryDB || o.Category == CategoryBenchmark
}

// OptionSet is an insertion ordered set of options. Setting an existing
// (category, key) overwrites the value in place.
type OptionSet struct {
	options []Option
	index   map[[2]string]int
}

func NewOptionSet() *OptionSet {
	return &OptionSet{
		index: make(map[[2]string]int),
	}
}

func validCategory(category string) bool {
	switch category {
	case CategoryDB, CategoryBenchmark, CategoryConnection, CategoryTPCC:
		return true
	}
	return false
}

func (s *OptionSet) Set(category, key, value string) error {
	if !validCategory(category) {
		return fmt.Errorf("%w: %q", ErrUnknownCategory, category)
	}
	if key == "" {
		return fmt.Errorf("empty key for category %q", category)
	}
	k := [2]string{category, key}
	if i, ok := s.index[k]; ok {
		s.options[i].Value = value
		return nil
	}
	s.index[k] = len(s.options)
	s.options = append(s.options, Option{Category: category, Key: key, Value: value})
	return nil
}

func (s *OptionSet) Get(category, key string) (string, bool) {
	i, ok := s.index[[2]string{category, key}]
	if !ok {
		return "", false
	}
	return s.options[i].Value, true
}

// Options returns a copy of the options in insertion order.
func (s *OptionSet) Options() []Option {
	out := make([]Option, len(s.options))
	copy(out, s.options)
	return out
}

func (s *OptionSet) Len() int {
	return len(s.options)
}
