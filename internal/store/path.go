package store

import (
	"fmt"
	"strings"
)

// Path addresses a node in the tree. The zero value is the root.
type Path struct {
	segs []string
}

// forbidden mirrors the key restrictions of the Realtime Database.
const forbidden = "/.#$[]"

// NewPath builds a path from segments, validating each one.
func NewPath(segments ...string) (Path, error) {
	return Path{}.Child(segments...)
}

// MustPath is NewPath for constant segments; it panics on invalid input.
func MustPath(segments ...string) Path {
	p, err := NewPath(segments...)
	if err != nil {
		panic(err)
	}
	return p
}

// ParsePath splits a slash separated path such as "campaigns/c1".
func ParsePath(s string) (Path, error) {
	s = strings.Trim(s, "/")
	if s == "" {
		return Path{}, nil
	}
	return NewPath(strings.Split(s, "/")...)
}

// Child returns p extended by segments.
func (p Path) Child(segments ...string) (Path, error) {
	out := make([]string, 0, len(p.segs)+len(segments))
	out = append(out, p.segs...)
	for _, s := range segments {
		if err := ValidateKey(s); err != nil {
			return Path{}, err
		}
		out = append(out, s)
	}
	return Path{segs: out}, nil
}

// ValidateKey checks a single path segment.
func ValidateKey(key string) error {
	if key == "" || strings.TrimSpace(key) != key {
		return fmt.Errorf("%w: key %q", ErrInvalidPath, key)
	}
	if strings.ContainsAny(key, forbidden) {
		return fmt.Errorf("%w: key %q contains one of %q", ErrInvalidPath, key, forbidden)
	}
	for _, r := range key {
		if r < 0x20 || r == 0x7f {
			return fmt.Errorf("%w: key %q contains control characters", ErrInvalidPath, key)
		}
	}
	return nil
}

// Segments returns a copy of the path segments.
func (p Path) Segments() []string {
	return append([]string(nil), p.segs...)
}

func (p Path) IsRoot() bool { return len(p.segs) == 0 }

func (p Path) Len() int { return len(p.segs) }

// Key is the last segment, or "" for the root.
func (p Path) Key() string {
	if len(p.segs) == 0 {
		return ""
	}
	return p.segs[len(p.segs)-1]
}

// Parent returns the enclosing path; the root is its own parent.
func (p Path) Parent() Path {
	if len(p.segs) == 0 {
		return p
	}
	return Path{segs: p.segs[:len(p.segs)-1]}
}

// String renders the path without leading slash ("" for the root).
func (p Path) String() string {
	return strings.Join(p.segs, "/")
}

// Contains reports whether q equals p or lies below it.
func (p Path) Contains(q Path) bool {
	if len(q.segs) < len(p.segs) {
		return false
	}
	for i, s := range p.segs {
		if q.segs[i] != s {
			return false
		}
	}
	return true
}

// Overlaps reports whether a change at one path affects the other.
func (p Path) Overlaps(q Path) bool {
	return p.Contains(q) || q.Contains(p)
}

// Equal compares two paths.
func (p Path) Equal(q Path) bool {
	return len(p.segs) == len(q.segs) && p.Contains(q)
}
