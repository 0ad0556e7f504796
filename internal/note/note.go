// Package note defines the voice note model and collection helpers.
package note

import (
	"strconv"
	"strings"
	"time"
)

// DefaultText is the placeholder title given to a freshly recorded note.
const DefaultText = "New recording"

// VoiceNote is one recorded memo. The URI points at the media file on disk
// and stays valid until the note is deleted. Duration is whole seconds,
// fixed at creation.
type VoiceNote struct {
	ID       string `json:"id"`
	Text     string `json:"text"`
	URI      string `json:"uri"`
	Date     string `json:"date"`
	Time     string `json:"time"`
	Duration int    `json:"duration"`
}

// NewID derives a unique note ID from the creation instant.
func NewID(t time.Time) string {
	return strconv.FormatInt(t.UnixNano(), 10)
}

// New builds a draft note for a finished recording.
func New(uri string, durationSec int, createdAt time.Time) VoiceNote {
	return VoiceNote{
		ID:       NewID(createdAt),
		Text:     DefaultText,
		URI:      uri,
		Date:     createdAt.Format("Jan 2, 2006"),
		Time:     createdAt.Format("3:04 PM"),
		Duration: durationSec,
	}
}

// Collection is an ordered list of notes, newest first by convention.
type Collection []VoiceNote

// Prepend inserts a note at the front of the collection.
func (c Collection) Prepend(n VoiceNote) Collection {
	return append(Collection{n}, c...)
}

// IndexOf returns the position of the note with the given ID, or -1.
func (c Collection) IndexOf(id string) int {
	for i, n := range c {
		if n.ID == id {
			return i
		}
	}
	return -1
}

// Remove returns the collection without the note with the given ID.
func (c Collection) Remove(id string) Collection {
	i := c.IndexOf(id)
	if i < 0 {
		return c
	}
	out := make(Collection, 0, len(c)-1)
	out = append(out, c[:i]...)
	return append(out, c[i+1:]...)
}

// Filter returns the notes whose text contains query, case-insensitively.
// An empty query returns a copy of the whole collection.
func (c Collection) Filter(query string) Collection {
	out := make(Collection, 0, len(c))
	q := strings.ToLower(query)
	for _, n := range c {
		if q == "" || strings.Contains(strings.ToLower(n.Text), q) {
			out = append(out, n)
		}
	}
	return out
}
