package sft

import (
	"errors"
	"reflect"
	"strings"
	"testing"
)

func TestNormalizeTags(t *testing.T) {
	tests := []struct {
		name string
		in   []string
		want []string
	}{
		{"nil", nil, []string{}},
		{"trims and drops blanks", []string{" a ", "", "  ", "b"}, []string{"a", "b"}},
		{"dedupes keeping first", []string{"b", "a", "b", " a"}, []string{"b", "a"}},
		{"case sensitive", []string{"Draft", "draft"}, []string{"Draft", "draft"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeTags(tt.in); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("NormalizeTags(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestApplyTagOp(t *testing.T) {
	tests := []struct {
		name    string
		current []string
		op      TagOp
		delta   []string
		want    []string
	}{
		{"add to empty", nil, TagAdd, []string{"x"}, []string{"x"}},
		{"add appends in order", []string{"a"}, TagAdd, []string{"c", "b"}, []string{"a", "c", "b"}},
		{"add present is no-op", []string{"a", "b"}, TagAdd, []string{"a"}, []string{"a", "b"}},
		{"remove", []string{"a", "b", "c"}, TagRemove, []string{"b"}, []string{"a", "c"}},
		{"remove absent is no-op", []string{"a"}, TagRemove, []string{"z"}, []string{"a"}},
		{"remove trims delta", []string{"a"}, TagRemove, []string{" a "}, []string{}},
		{"add ignores blanks", []string{"a"}, TagAdd, []string{"", " "}, []string{"a"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ApplyTagOp(tt.current, tt.op, tt.delta)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ApplyTagOp(%q, %v, %q) = %q, want %q", tt.current, tt.op, tt.delta, got, tt.want)
			}
		})
	}
}

func TestApplyTagOp_DoesNotAliasInput(t *testing.T) {
	current := []string{"a", "b", "c"}
	ApplyTagOp(current, TagRemove, []string{"a"})
	if !reflect.DeepEqual(current, []string{"a", "b", "c"}) {
		t.Errorf("input mutated: %q", current)
	}
}

func TestRevision_HasTag(t *testing.T) {
	r := &Revision{Tags: []string{"status:deleted", "x"}}
	if !r.HasTag(DeletedTag) {
		t.Error("HasTag(DeletedTag) = false, want true")
	}
	if r.HasTag("status") {
		t.Error("HasTag(status) = true, want false")
	}
}

func TestTagOp_String(t *testing.T) {
	if TagAdd.String() != "add" || TagRemove.String() != "remove" {
		t.Errorf("TagOp strings = %q/%q", TagAdd, TagRemove)
	}
}

func TestAmbiguousError(t *testing.T) {
	err := error(&AmbiguousError{
		Identifier: "plan",
		Candidates: []*Revision{{ID: "a", Revision: 2}, {ID: "a", Revision: 1}, {ID: "b", Revision: 1}},
	})
	if !errors.Is(err, ErrAmbiguous) {
		t.Error("errors.Is(err, ErrAmbiguous) = false")
	}
	msg := err.Error()
	if !strings.Contains(msg, "matches 2 files") || !strings.Contains(msg, "a, b") {
		t.Errorf("Error() = %q", msg)
	}
}

func TestConflictKinds(t *testing.T) {
	for _, err := range []error{ErrDuplicateEdge, ErrAlreadyDeleted} {
		if !errors.Is(err, ErrConflict) {
			t.Errorf("errors.Is(%v, ErrConflict) = false", err)
		}
	}
}
