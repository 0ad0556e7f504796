package app

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"memovox/internal/audio"
	"memovox/internal/audio/audiotest"
	"memovox/internal/library"
	"memovox/internal/note"
	"memovox/internal/session"
	"memovox/internal/store"
)

func newTestModel(t *testing.T) (Model, *library.Library, *audiotest.FakeDevice) {
	t.Helper()
	st, err := store.NewFileStore(filepath.Join(t.TempDir(), "notes.json"))
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	dev := audiotest.NewFakeDevice()
	lib, err := library.New(library.Config{
		Store:        st,
		Device:       dev,
		TickInterval: time.Hour,
	})
	if err != nil {
		t.Fatalf("library.New: %v", err)
	}
	return New(lib, 600), lib, dev
}

// record creates a note through the library so the model has something
// to list.
func record(t *testing.T, lib *library.Library) note.VoiceNote {
	t.Helper()
	if err := lib.StartRecording(); err != nil {
		t.Fatalf("StartRecording: %v", err)
	}
	n, err := lib.StopRecording()
	if err != nil {
		t.Fatalf("StopRecording: %v", err)
	}
	return n
}

// step runs a returned command and feeds its message back, the way the
// bubbletea runtime would.
func step(t *testing.T, m tea.Model, cmd tea.Cmd) Model {
	t.Helper()
	if cmd == nil {
		t.Fatal("expected a command")
	}
	updated, _ := m.Update(cmd())
	return updated.(Model)
}

func TestNewModel(t *testing.T) {
	m, _, _ := newTestModel(t)
	if m.recording {
		t.Error("new model should not be recording")
	}
	if m.loadedNoteID != "" {
		t.Error("new model should have no playback loaded")
	}
	if m.focus != FocusList {
		t.Error("new model should focus the list")
	}
	if len(m.notes) != 0 {
		t.Error("new model should list no notes")
	}
}

func TestSpaceStartsAndStopsRecording(t *testing.T) {
	m, _, _ := newTestModel(t)

	updated, cmd := m.Update(tea.KeyMsg{Type: tea.KeySpace})
	m = step(t, updated, cmd)
	if !m.recording {
		t.Fatal("space should start recording")
	}

	updated, cmd = m.Update(tea.KeyMsg{Type: tea.KeySpace})
	m = step(t, updated, cmd)
	if m.recording {
		t.Fatal("space again should stop recording")
	}

	m.refreshNotes()
	if len(m.notes) != 1 {
		t.Errorf("notes = %d, want the saved recording", len(m.notes))
	}
}

func TestPermissionDeniedShowsError(t *testing.T) {
	m, _, dev := newTestModel(t)
	dev.PermissionGranted = false

	updated, cmd := m.Update(tea.KeyMsg{Type: tea.KeySpace})
	m = step(t, updated, cmd)

	if m.recording {
		t.Error("denied permission must not enter recording state")
	}
	if m.errorMessage != "Microphone access denied" {
		t.Errorf("errorMessage = %q", m.errorMessage)
	}
	if !m.errorTransient {
		t.Error("permission error should clear on its own")
	}
}

func TestPauseToggleWhileRecording(t *testing.T) {
	m, _, _ := newTestModel(t)

	updated, cmd := m.Update(tea.KeyMsg{Type: tea.KeySpace})
	m = step(t, updated, cmd)

	updated, cmd = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'p'}})
	m = step(t, updated, cmd)
	if !m.recPaused {
		t.Fatal("p should pause the recording")
	}

	updated, cmd = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'p'}})
	m = step(t, updated, cmd)
	if m.recPaused {
		t.Fatal("p again should resume")
	}
}

func TestDiscardWhileRecording(t *testing.T) {
	m, lib, _ := newTestModel(t)

	updated, cmd := m.Update(tea.KeyMsg{Type: tea.KeySpace})
	m = step(t, updated, cmd)

	updated, cmd = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'x'}})
	m = step(t, updated, cmd)

	if m.recording {
		t.Error("discard should leave recording state")
	}
	if len(lib.ListNotes("")) != 0 {
		t.Error("discard must not create a note")
	}
}

func TestElapsedEvent(t *testing.T) {
	m, _, _ := newTestModel(t)
	m.recording = true

	m.handleEvent(library.Event{Kind: library.EventRecordingElapsed, ElapsedSec: 42})

	if m.elapsedSec != 42 {
		t.Errorf("elapsedSec = %d, want 42", m.elapsedSec)
	}
}

func TestNotesChangedEvent(t *testing.T) {
	m, lib, _ := newTestModel(t)
	record(t, lib)

	m.handleEvent(library.Event{Kind: library.EventNotesChanged})

	if len(m.notes) != 1 {
		t.Errorf("notes = %d, want 1", len(m.notes))
	}
}

func TestWarningEvent(t *testing.T) {
	m, _, _ := newTestModel(t)

	cmd := m.handleEvent(library.Event{
		Kind: library.EventWarning,
		Err:  errors.New("disk full"),
	})

	if m.errorMessage == "" {
		t.Error("warning should surface as an error message")
	}
	if cmd == nil {
		t.Error("transient warning should schedule a clear")
	}
}

func TestEnterPlaysSelected(t *testing.T) {
	m, lib, dev := newTestModel(t)
	n := record(t, lib)
	m.refreshNotes()

	updated, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = step(t, updated, cmd)

	if m.loadedNoteID != n.ID {
		t.Errorf("loadedNoteID = %q, want %q", m.loadedNoteID, n.ID)
	}
	if !dev.Playing() {
		t.Error("device should be playing")
	}
}

func TestEscClosesPlayback(t *testing.T) {
	m, lib, dev := newTestModel(t)
	record(t, lib)
	m.refreshNotes()

	updated, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = step(t, updated, cmd)

	updated, cmd = m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	m = step(t, updated, cmd)

	if m.loadedNoteID != "" {
		t.Error("esc should unload playback")
	}
	if dev.Loaded() {
		t.Error("device handle should be unloaded")
	}
}

func TestSeekKeysClampThroughLibrary(t *testing.T) {
	m, lib, dev := newTestModel(t)
	record(t, lib)
	m.refreshNotes()

	updated, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = step(t, updated, cmd)

	// Seeking back from the start clamps to zero.
	updated, cmd = m.Update(tea.KeyMsg{Type: tea.KeyLeft})
	m = step(t, updated, cmd)
	if dev.LastSeekMS != 0 {
		t.Errorf("seek = %d, want clamp to 0", dev.LastSeekMS)
	}

	m.playback = session.Snapshot{PositionMS: 8000, DurationMS: 10000}
	updated, cmd = m.Update(tea.KeyMsg{Type: tea.KeyRight})
	m = step(t, updated, cmd)
	if dev.LastSeekMS != 10000 {
		t.Errorf("seek = %d, want clamp to duration", dev.LastSeekMS)
	}
}

func TestNavigationClamps(t *testing.T) {
	m, lib, _ := newTestModel(t)
	record(t, lib)
	record(t, lib)
	m.refreshNotes()

	updated, _ := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'j'}})
	m = updated.(Model)
	if m.selected != 1 {
		t.Errorf("after j, selected = %d, want 1", m.selected)
	}

	updated, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'j'}})
	m = updated.(Model)
	if m.selected != 1 {
		t.Errorf("j at the end should stay, selected = %d", m.selected)
	}

	updated, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'k'}})
	m = updated.(Model)
	if m.selected != 0 {
		t.Errorf("after k, selected = %d, want 0", m.selected)
	}

	updated, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'k'}})
	m = updated.(Model)
	if m.selected != 0 {
		t.Errorf("k at the top should stay, selected = %d", m.selected)
	}
}

func TestRenameFlow(t *testing.T) {
	m, lib, _ := newTestModel(t)
	record(t, lib)
	m.refreshNotes()

	updated, _ := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'r'}})
	m = updated.(Model)
	if m.focus != FocusRename {
		t.Fatal("r should focus the rename input")
	}
	if m.renameInput.Value() != note.DefaultText {
		t.Errorf("rename input = %q, want the current title", m.renameInput.Value())
	}

	m.renameInput.SetValue("Dentist reminder")
	updated, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = step(t, updated, cmd)

	if m.focus != FocusList {
		t.Error("enter should return focus to the list")
	}
	if got := lib.ListNotes("")[0].Text; got != "Dentist reminder" {
		t.Errorf("title = %q, want the new one", got)
	}
}

func TestRenameRejectsBlank(t *testing.T) {
	m, lib, _ := newTestModel(t)
	record(t, lib)
	m.refreshNotes()

	updated, _ := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'r'}})
	m = updated.(Model)
	m.renameInput.SetValue("   ")

	updated, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = step(t, updated, cmd)

	if m.errorMessage != "Title cannot be empty" {
		t.Errorf("errorMessage = %q", m.errorMessage)
	}
	if got := lib.ListNotes("")[0].Text; got != note.DefaultText {
		t.Errorf("title = %q, rejected rename must not stick", got)
	}
}

func TestDeleteSelected(t *testing.T) {
	m, lib, _ := newTestModel(t)
	record(t, lib)
	m.refreshNotes()

	updated, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'d'}})
	m = step(t, updated, cmd)

	if len(lib.ListNotes("")) != 0 {
		t.Error("d should delete the selected note")
	}
}

func TestSearchFiltersList(t *testing.T) {
	m, lib, _ := newTestModel(t)
	a := record(t, lib)
	b := record(t, lib)
	if err := lib.RenameNote(a.ID, "Groceries"); err != nil {
		t.Fatal(err)
	}
	if err := lib.RenameNote(b.ID, "Meeting"); err != nil {
		t.Fatal(err)
	}
	m.refreshNotes()

	updated, _ := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'/'}})
	m = updated.(Model)
	if m.focus != FocusSearch {
		t.Fatal("/ should focus the search input")
	}

	for _, r := range "groc" {
		updated, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}})
		m = updated.(Model)
	}
	if len(m.notes) != 1 || m.notes[0].ID != a.ID {
		t.Fatalf("filtered notes = %v, want only the grocery note", m.notes)
	}

	updated, _ = m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	m = updated.(Model)
	if m.focus != FocusList {
		t.Error("esc should leave the search input")
	}
	if len(m.notes) != 2 {
		t.Error("esc should clear the filter")
	}
}

func TestErrorText(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{audio.ErrPermissionDenied, "Microphone access denied"},
		{audio.ErrMediaNotFound, "Audio file is missing"},
		{library.ErrSessionConflict, "Finish the current session first"},
		{library.ErrValidation, "Title cannot be empty"},
		{library.ErrNoteNotFound, "Note no longer exists"},
	}
	for _, tt := range tests {
		if got := errorText(tt.err); got != tt.want {
			t.Errorf("errorText(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestViewRendersWithSize(t *testing.T) {
	m, _, _ := newTestModel(t)
	m.width = 80
	m.height = 24

	view := m.View()
	if view == "" {
		t.Error("view should not be empty")
	}
	if view == "Initializing..." {
		t.Error("view should not show initializing with size set")
	}
}

func TestViewWithoutSize(t *testing.T) {
	m, _, _ := newTestModel(t)
	view := m.View()
	if view != "Initializing..." {
		t.Errorf("view without size = %q, want 'Initializing...'", view)
	}
}

func TestTruncateToWidthStyledLine(t *testing.T) {
	styled := "\x1b[31m" + strings.Repeat("a", 20) + "\x1b[0m"

	got := truncateToWidth(styled, 10)
	if w := lipgloss.Width(got); w != 10 {
		t.Errorf("visible width = %d, want 10", w)
	}

	// A line that already fits passes through untouched.
	short := "\x1b[31mab\x1b[0m"
	if got := truncateToWidth(short, 10); got != short {
		t.Errorf("truncateToWidth(%q) = %q, want unchanged", short, got)
	}
}
