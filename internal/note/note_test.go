package note

import (
	"testing"
	"time"
)

func TestNewNote(t *testing.T) {
	created := time.Date(2026, 3, 14, 15, 9, 26, 0, time.Local)
	n := New("/tmp/memo.wav", 42, created)

	if n.ID == "" {
		t.Error("ID should not be empty")
	}
	if n.Text != DefaultText {
		t.Errorf("Text = %q, want %q", n.Text, DefaultText)
	}
	if n.URI != "/tmp/memo.wav" {
		t.Errorf("URI = %q", n.URI)
	}
	if n.Duration != 42 {
		t.Errorf("Duration = %d, want 42", n.Duration)
	}
	if n.Date != "Mar 14, 2026" {
		t.Errorf("Date = %q", n.Date)
	}
	if n.Time != "3:09 PM" {
		t.Errorf("Time = %q", n.Time)
	}
}

func TestNewIDUnique(t *testing.T) {
	a := NewID(time.Now())
	b := NewID(time.Now().Add(time.Nanosecond))
	if a == b {
		t.Errorf("ids should differ, both %q", a)
	}
}

func TestPrepend(t *testing.T) {
	c := Collection{{ID: "old"}}
	c = c.Prepend(VoiceNote{ID: "new"})

	if len(c) != 2 {
		t.Fatalf("len = %d, want 2", len(c))
	}
	if c[0].ID != "new" {
		t.Errorf("c[0].ID = %q, want %q", c[0].ID, "new")
	}
}

func TestRemove(t *testing.T) {
	c := Collection{{ID: "a"}, {ID: "b"}, {ID: "c"}}

	c = c.Remove("b")
	if len(c) != 2 {
		t.Fatalf("len = %d, want 2", len(c))
	}
	if c.IndexOf("b") != -1 {
		t.Error("b should be gone")
	}

	// Removing an unknown ID is a no-op.
	c = c.Remove("nope")
	if len(c) != 2 {
		t.Errorf("len = %d, want 2", len(c))
	}
}

func TestFilter(t *testing.T) {
	c := Collection{
		{ID: "1", Text: "Grocery list"},
		{ID: "2", Text: "Meeting notes"},
		{ID: "3", Text: "grocery run"},
	}

	got := c.Filter("GROCERY")
	if len(got) != 2 {
		t.Fatalf("got %d notes, want 2", len(got))
	}
	if got[0].ID != "1" || got[1].ID != "3" {
		t.Errorf("got ids %q, %q", got[0].ID, got[1].ID)
	}

	all := c.Filter("")
	if len(all) != 3 {
		t.Errorf("empty query: got %d notes, want 3", len(all))
	}

	none := c.Filter("xyz")
	if len(none) != 0 {
		t.Errorf("got %d notes, want 0", len(none))
	}
}
