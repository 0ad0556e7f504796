package app

import (
	"memovox/internal/library"
	"memovox/internal/note"
)

// LibraryEventMsg wraps an event pushed by the library.
type LibraryEventMsg struct {
	Event library.Event
}

// LibraryClosedMsg is sent when the library's event channel drains after
// shutdown.
type LibraryClosedMsg struct{}

// RecordingStartedMsg carries the result of starting a capture.
type RecordingStartedMsg struct {
	Err error
}

// RecordingStoppedMsg carries the note created by stopping a capture.
type RecordingStoppedMsg struct {
	Note note.VoiceNote
	Err  error
}

// RecordingDiscardedMsg carries the result of discarding a capture.
type RecordingDiscardedMsg struct {
	Err error
}

// RecordingToggledMsg carries the result of a pause or resume.
type RecordingToggledMsg struct {
	Paused bool
	Err    error
}

// PlaybackLoadedMsg carries the result of loading a note for playback.
type PlaybackLoadedMsg struct {
	NoteID string
	Err    error
}

// PlaybackControlMsg carries the result of a play, pause, seek, rate or
// volume call.
type PlaybackControlMsg struct {
	Err error
}

// PlaybackClosedMsg is sent after the playback session unloads.
type PlaybackClosedMsg struct{}

// NoteRenamedMsg carries the result of a rename.
type NoteRenamedMsg struct {
	Err error
}

// NoteDeletedMsg carries the result of a delete.
type NoteDeletedMsg struct {
	Err error
}

// ClearTransientErrorMsg clears a transient error after a timeout.
type ClearTransientErrorMsg struct{}
