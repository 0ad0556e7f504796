package library

import (
	"memovox/internal/note"
	"memovox/internal/session"
)

// EventKind discriminates library events.
type EventKind int

const (
	// EventNotesChanged fires whenever the in-memory collection changes:
	// a new recording, a rename, or a delete.
	EventNotesChanged EventKind = iota

	// EventRecordingElapsed fires once per second while capturing.
	EventRecordingElapsed

	// EventRecordingDone fires when a capture finalizes into a note,
	// including the automatic stop at the recording ceiling.
	EventRecordingDone

	// EventPlaybackProgress carries a playback snapshot, emitted as the
	// position advances and when playback finishes naturally.
	EventPlaybackProgress

	// EventWarning reports a non-fatal problem, such as a store write
	// that failed after the collection was already updated in memory.
	EventWarning
)

// Event is a library state change pushed to the UI. Only the fields
// relevant to the Kind are populated.
type Event struct {
	Kind EventKind

	ElapsedSec int
	Note       note.VoiceNote
	Playback   session.Snapshot
	Err        error
	Message    string
}
