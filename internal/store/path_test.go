package store

import (
	"errors"
	"testing"
)

func TestValidateKey(t *testing.T) {
	tests := []struct {
		key string
		ok  bool
	}{
		{"campaign1", true},
		{"jane,doe@mail,com", true},
		{"-Nabc_123", true},
		{"", false},
		{" padded", false},
		{"a.b", false},
		{"a/b", false},
		{"a#b", false},
		{"a$b", false},
		{"a[0]", false},
		{"tab\there", false},
	}
	for _, tt := range tests {
		err := ValidateKey(tt.key)
		if tt.ok && err != nil {
			t.Errorf("ValidateKey(%q) = %v, want nil", tt.key, err)
		}
		if !tt.ok && !errors.Is(err, ErrInvalidPath) {
			t.Errorf("ValidateKey(%q) = %v, want ErrInvalidPath", tt.key, err)
		}
	}
}

func TestPathRelations(t *testing.T) {
	donations := MustPath("donations")
	c1, err := donations.Child("c1")
	if err != nil {
		t.Fatal(err)
	}
	d1 := MustPath("donations", "c1", "d1")
	other := MustPath("donations", "c10")

	if !donations.Contains(d1) || !c1.Contains(d1) || d1.Contains(c1) {
		t.Fatal("unexpected containment")
	}
	if c1.Overlaps(other) || !d1.Overlaps(donations) {
		t.Fatal("unexpected overlap")
	}
	if !(Path{}).Contains(d1) {
		t.Fatal("root must contain every path")
	}
	if d1.Parent().String() != "donations/c1" || d1.Key() != "d1" {
		t.Fatalf("parent/key mismatch: %s %s", d1.Parent(), d1.Key())
	}

	p, err := ParsePath("/users/u1/donations/")
	if err != nil || p.String() != "users/u1/donations" || p.Len() != 3 {
		t.Fatalf("ParsePath = %v, %v", p, err)
	}
	if _, err := ParsePath("users//x"); !errors.Is(err, ErrInvalidPath) {
		t.Fatalf("empty segment must be rejected, got %v", err)
	}
}

func TestTreeSetAndGet(t *testing.T) {
	var root any
	root = TreeSet(root, []string{"a", "b"}, "x")
	root = TreeSet(root, []string{"a", "c"}, "y")

	if v, ok := TreeGet(root, []string{"a", "b"}); !ok || v != "x" {
		t.Fatalf("TreeGet a/b = %v, %v", v, ok)
	}
	root = TreeSet(root, []string{"a", "b"}, nil)
	root = TreeSet(root, []string{"a", "c"}, nil)
	if root != nil {
		t.Fatalf("emptied tree must collapse, got %v", root)
	}
	if _, ok := TreeGet(root, []string{"a"}); ok {
		t.Fatal("expected missing node")
	}
}

func TestNormalizeKeepsNumbersAndDropsEmptyObjects(t *testing.T) {
	n, err := Normalize(map[string]any{"ts": int64(1700000000123), "empty": map[string]any{}})
	if err != nil {
		t.Fatal(err)
	}
	raw, err := Encode(n)
	if err != nil {
		t.Fatal(err)
	}
	if string(raw) != `{"ts":1700000000123}` {
		t.Fatalf("unexpected encoding %s", raw)
	}
	if n, _ := Normalize(map[string]any{}); n != nil {
		t.Fatalf("empty object must normalize to nil, got %v", n)
	}
}
