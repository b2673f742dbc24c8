// Package collection holds the named lists a user files notes into.
package collection

import (
	"fmt"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

// MaxNameLen is the longest list name accepted, in runes.
const MaxNameLen = 64

// List is a named collection of notes owned by a user (immutable value object).
type List struct {
	name      string
	config    string
	createdAt time.Time
}

// User is an organizer user identified by an external id (chat id, login).
type User struct {
	ID         int64
	Name       string
	ExternalID string
	CreatedAt  time.Time
}

// NormalizeName trims surrounding space and validates a list name.
func NormalizeName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("list name is required")
	}
	if utf8.RuneCountInString(name) > MaxNameLen {
		return "", fmt.Errorf("list name too long (max %d)", MaxNameLen)
	}
	if strings.IndexFunc(name, unicode.IsControl) >= 0 {
		return "", fmt.Errorf("list name must not contain control characters")
	}
	return name, nil
}

// New validates and creates a List.
func New(name, config string) (List, error) {
	n, err := NormalizeName(name)
	if err != nil {
		return List{}, err
	}
	return List{name: n, config: config, createdAt: time.Now().UTC()}, nil
}

// Reconstruct creates a List without validation (storage hydration).
func Reconstruct(name, config string, createdAt time.Time) List {
	return List{name: name, config: config, createdAt: createdAt}
}

// Name returns the list name.
func (l List) Name() string { return l.name }

// Config returns the opaque list configuration.
func (l List) Config() string { return l.config }

// CreatedAt returns the creation time.
func (l List) CreatedAt() time.Time { return l.createdAt }

// Names returns the names of lists in order.
func Names(lists []List) []string {
	out := make([]string, len(lists))
	for i, l := range lists {
		out[i] = l.name
	}
	return out
}
