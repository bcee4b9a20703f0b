package history

import (
	"errors"
	"testing"

	"go.aimuz.me/dawn/internal/types"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenInMemory()
	if err != nil {
		t.Fatalf("OpenInMemory() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRecentNewestFirst(t *testing.T) {
	s := newTestStore(t)
	for i, text := range []string{"first", "second", "third"} {
		if err := s.Add(types.Transcription{Text: text, Timestamp: int64(1000 + i)}); err != nil {
			t.Fatalf("Add() error = %v", err)
		}
	}

	all, err := s.Recent(0)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(all) != 3 || all[0].Text != "third" || all[2].Text != "first" {
		t.Fatalf("Recent(0) = %+v", all)
	}
	for _, r := range all {
		if r.ID == "" {
			t.Error("Add() did not assign an id")
		}
	}

	two, _ := s.Recent(2)
	if len(two) != 2 || two[1].Text != "second" {
		t.Errorf("Recent(2) = %+v", two)
	}
}

func TestDelete(t *testing.T) {
	s := newTestStore(t)
	_ = s.Add(types.Transcription{ID: "a", Text: "keep", Timestamp: 1})
	_ = s.Add(types.Transcription{ID: "b", Text: "drop", Timestamp: 2})

	if err := s.Delete("b"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := s.Delete("b"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second Delete() error = %v, want ErrNotFound", err)
	}
	got, _ := s.Recent(0)
	if len(got) != 1 || got[0].ID != "a" {
		t.Errorf("Recent() after delete = %+v", got)
	}

	if err := s.Clear(); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	if got, _ := s.Recent(0); len(got) != 0 {
		t.Errorf("Recent() after Clear = %+v", got)
	}
}
