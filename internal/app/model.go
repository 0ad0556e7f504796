package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"memovox/internal/audio"
	"memovox/internal/library"
	"memovox/internal/note"
	"memovox/internal/session"
	"memovox/internal/ui"

	tea "github.com/charmbracelet/bubbletea"
)

// Focus tracks which input has the keyboard.
type Focus int

const (
	FocusList Focus = iota
	FocusRename
	FocusSearch
)

// Model is the root bubbletea model for the memovox TUI.
type Model struct {
	lib *library.Library

	// Note list
	notes    note.Collection
	selected int
	query    string

	// Recording state
	recording  bool
	recPaused  bool
	elapsedSec int
	ceilingSec int

	// Playback state
	loadedNoteID string
	playback     session.Snapshot

	// Inputs
	focus       Focus
	renameInput textinput.Model
	searchInput textinput.Model
	keys        KeyMap
	help        help.Model

	// UI state
	width  int
	height int

	statusText     string
	errorMessage   string
	errorTransient bool
}

// New creates the root model over an assembled library.
func New(lib *library.Library, ceilingSec int) Model {
	rename := textinput.New()
	rename.CharLimit = 120
	rename.Prompt = "Title: "

	search := textinput.New()
	search.Prompt = "/"

	hm := help.New()
	hm.Styles.ShortKey = ui.FooterKeyStyle
	hm.Styles.ShortDesc = ui.FooterDescStyle
	hm.Styles.FullKey = ui.FooterKeyStyle
	hm.Styles.FullDesc = ui.FooterDescStyle

	return Model{
		lib:         lib,
		notes:       lib.ListNotes(""),
		ceilingSec:  ceilingSec,
		renameInput: rename,
		searchInput: search,
		keys:        DefaultKeyMap(),
		help:        hm,
		statusText:  "Press Space to record",
	}
}

// Init starts the library event loop.
func (m Model) Init() tea.Cmd {
	return listenCmd(m.lib)
}

// listenCmd reads the next library event.
func listenCmd(lib *library.Library) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-lib.Events()
		if !ok {
			return LibraryClosedMsg{}
		}
		return LibraryEventMsg{Event: ev}
	}
}

func startRecordingCmd(lib *library.Library) tea.Cmd {
	return func() tea.Msg {
		return RecordingStartedMsg{Err: lib.StartRecording()}
	}
}

func stopRecordingCmd(lib *library.Library) tea.Cmd {
	return func() tea.Msg {
		n, err := lib.StopRecording()
		return RecordingStoppedMsg{Note: n, Err: err}
	}
}

func discardRecordingCmd(lib *library.Library) tea.Cmd {
	return func() tea.Msg {
		return RecordingDiscardedMsg{Err: lib.DiscardRecording()}
	}
}

func toggleRecordingCmd(lib *library.Library, pause bool) tea.Cmd {
	return func() tea.Msg {
		var err error
		if pause {
			err = lib.PauseRecording()
		} else {
			err = lib.ResumeRecording()
		}
		return RecordingToggledMsg{Paused: pause, Err: err}
	}
}

// loadAndPlayCmd opens a note for playback and starts it.
func loadAndPlayCmd(lib *library.Library, noteID string) tea.Cmd {
	return func() tea.Msg {
		if err := lib.LoadForPlayback(noteID); err != nil {
			return PlaybackLoadedMsg{Err: err}
		}
		if err := lib.Play(); err != nil {
			return PlaybackLoadedMsg{NoteID: noteID, Err: err}
		}
		return PlaybackLoadedMsg{NoteID: noteID}
	}
}

func playCmd(lib *library.Library) tea.Cmd {
	return func() tea.Msg {
		return PlaybackControlMsg{Err: lib.Play()}
	}
}

func pausePlaybackCmd(lib *library.Library) tea.Cmd {
	return func() tea.Msg {
		return PlaybackControlMsg{Err: lib.PausePlayback()}
	}
}

func seekCmd(lib *library.Library, positionMS int64) tea.Cmd {
	return func() tea.Msg {
		return PlaybackControlMsg{Err: lib.Seek(positionMS)}
	}
}

func setRateCmd(lib *library.Library, rate float64) tea.Cmd {
	return func() tea.Msg {
		return PlaybackControlMsg{Err: lib.SetRate(rate)}
	}
}

func setVolumeCmd(lib *library.Library, volume float64) tea.Cmd {
	return func() tea.Msg {
		return PlaybackControlMsg{Err: lib.SetVolume(volume)}
	}
}

func closePlaybackCmd(lib *library.Library) tea.Cmd {
	return func() tea.Msg {
		if err := lib.ClosePlayback(); err != nil {
			return PlaybackControlMsg{Err: err}
		}
		return PlaybackClosedMsg{}
	}
}

func renameNoteCmd(lib *library.Library, noteID, text string) tea.Cmd {
	return func() tea.Msg {
		return NoteRenamedMsg{Err: lib.RenameNote(noteID, text)}
	}
}

func deleteNoteCmd(lib *library.Library, noteID string) tea.Cmd {
	return func() tea.Msg {
		return NoteDeletedMsg{Err: lib.DeleteNote(noteID)}
	}
}

// clearTransientErrorCmd fires after a delay to clear transient errors.
func clearTransientErrorCmd() tea.Cmd {
	return tea.Tick(5*time.Second, func(time.Time) tea.Msg {
		return ClearTransientErrorMsg{}
	})
}

// Update processes messages and returns the updated model and any commands.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		return m, nil

	case LibraryEventMsg:
		cmd := m.handleEvent(msg.Event)
		// Keep reading events.
		return m, tea.Batch(cmd, listenCmd(m.lib))

	case LibraryClosedMsg:
		return m, nil

	case RecordingStartedMsg:
		if msg.Err != nil {
			return m.showError(msg.Err)
		}
		m.recording = true
		m.recPaused = false
		m.elapsedSec = 0
		m.statusText = "Recording"
		return m, nil

	case RecordingStoppedMsg:
		m.recording = false
		m.recPaused = false
		if msg.Err != nil {
			return m.showError(msg.Err)
		}
		m.statusText = "Saved " + msg.Note.Text
		return m, nil

	case RecordingDiscardedMsg:
		m.recording = false
		m.recPaused = false
		if msg.Err != nil {
			return m.showError(msg.Err)
		}
		m.statusText = "Recording discarded"
		return m, nil

	case RecordingToggledMsg:
		if msg.Err != nil {
			return m.showError(msg.Err)
		}
		m.recPaused = msg.Paused
		if msg.Paused {
			m.statusText = "Paused"
		} else {
			m.statusText = "Recording"
		}
		return m, nil

	case PlaybackLoadedMsg:
		if msg.Err != nil {
			return m.showError(msg.Err)
		}
		m.loadedNoteID = msg.NoteID
		if snap, ok := m.lib.PlaybackSnapshot(); ok {
			m.playback = snap
		}
		m.statusText = "Playing"
		return m, nil

	case PlaybackControlMsg:
		if msg.Err != nil {
			return m.showError(msg.Err)
		}
		return m, nil

	case PlaybackClosedMsg:
		m.loadedNoteID = ""
		m.playback = session.Snapshot{}
		return m, nil

	case NoteRenamedMsg:
		if msg.Err != nil {
			return m.showError(msg.Err)
		}
		m.statusText = "Renamed"
		return m, nil

	case NoteDeletedMsg:
		if msg.Err != nil {
			return m.showError(msg.Err)
		}
		m.statusText = "Deleted"
		return m, nil

	case ClearTransientErrorMsg:
		if m.errorTransient {
			m.errorMessage = ""
			m.errorTransient = false
		}
		return m, nil
	}

	return m, nil
}

// handleEvent folds a library event into the model.
func (m *Model) handleEvent(ev library.Event) tea.Cmd {
	switch ev.Kind {
	case library.EventNotesChanged:
		m.refreshNotes()

	case library.EventRecordingElapsed:
		m.elapsedSec = ev.ElapsedSec

	case library.EventRecordingDone:
		m.recording = false
		m.recPaused = false
		m.statusText = "Saved " + ev.Note.Text

	case library.EventPlaybackProgress:
		m.playback = ev.Playback
		if ev.Playback.Finished {
			m.statusText = "Finished"
		}

	case library.EventWarning:
		m.errorMessage = "save failed: " + ev.Err.Error()
		m.errorTransient = true
		return clearTransientErrorCmd()
	}

	return nil
}

// refreshNotes re-runs the current query and keeps the selection in
// bounds.
func (m *Model) refreshNotes() {
	m.notes = m.lib.ListNotes(m.query)
	if m.selected >= len(m.notes) {
		m.selected = max(0, len(m.notes)-1)
	}
}

func (m Model) showError(err error) (tea.Model, tea.Cmd) {
	m.errorMessage = errorText(err)
	m.errorTransient = true
	return m, clearTransientErrorCmd()
}

// errorText maps library errors to short user-facing messages.
func errorText(err error) string {
	switch {
	case errors.Is(err, audio.ErrPermissionDenied):
		return "Microphone access denied"
	case errors.Is(err, audio.ErrMediaNotFound):
		return "Audio file is missing"
	case errors.Is(err, library.ErrSessionConflict):
		return "Finish the current session first"
	case errors.Is(err, library.ErrValidation):
		return "Title cannot be empty"
	case errors.Is(err, library.ErrNoteNotFound):
		return "Note no longer exists"
	default:
		return err.Error()
	}
}

func (m Model) selectedNote() (note.VoiceNote, bool) {
	if m.selected < 0 || m.selected >= len(m.notes) {
		return note.VoiceNote{}, false
	}
	return m.notes[m.selected], true
}

// handleKey processes key presses.
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch m.focus {
	case FocusRename:
		return m.handleRenameKey(msg)
	case FocusSearch:
		return m.handleSearchKey(msg)
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		m.lib.Close()
		return m, tea.Quit

	case key.Matches(msg, m.keys.Record):
		if m.recording {
			return m, stopRecordingCmd(m.lib)
		}
		return m, startRecordingCmd(m.lib)

	case key.Matches(msg, m.keys.Pause):
		if m.recording {
			return m, toggleRecordingCmd(m.lib, !m.recPaused)
		}
		if m.loadedNoteID != "" {
			if m.playback.Playing {
				return m, pausePlaybackCmd(m.lib)
			}
			return m, playCmd(m.lib)
		}
		return m, nil

	case key.Matches(msg, m.keys.Discard):
		if m.recording {
			return m, discardRecordingCmd(m.lib)
		}
		return m, nil

	case key.Matches(msg, m.keys.Play):
		n, ok := m.selectedNote()
		if !ok || m.recording {
			return m, nil
		}
		if n.ID == m.loadedNoteID {
			if m.playback.Playing {
				return m, pausePlaybackCmd(m.lib)
			}
			return m, playCmd(m.lib)
		}
		return m, loadAndPlayCmd(m.lib, n.ID)

	case key.Matches(msg, m.keys.Close):
		if m.loadedNoteID != "" {
			return m, closePlaybackCmd(m.lib)
		}
		if m.query != "" {
			m.query = ""
			m.searchInput.SetValue("")
			m.refreshNotes()
		}
		return m, nil

	case key.Matches(msg, m.keys.SeekBack):
		if m.loadedNoteID != "" {
			return m, seekCmd(m.lib, m.playback.PositionMS-5000)
		}
		return m, nil

	case key.Matches(msg, m.keys.SeekForward):
		if m.loadedNoteID != "" {
			return m, seekCmd(m.lib, m.playback.PositionMS+5000)
		}
		return m, nil

	case key.Matches(msg, m.keys.RateDown):
		if m.loadedNoteID != "" {
			return m, setRateCmd(m.lib, m.playback.Rate-0.25)
		}
		return m, nil

	case key.Matches(msg, m.keys.RateUp):
		if m.loadedNoteID != "" {
			return m, setRateCmd(m.lib, m.playback.Rate+0.25)
		}
		return m, nil

	case key.Matches(msg, m.keys.VolumeDown):
		if m.loadedNoteID != "" {
			return m, setVolumeCmd(m.lib, m.playback.Volume-0.1)
		}
		return m, nil

	case key.Matches(msg, m.keys.VolumeUp):
		if m.loadedNoteID != "" {
			return m, setVolumeCmd(m.lib, m.playback.Volume+0.1)
		}
		return m, nil

	case key.Matches(msg, m.keys.Rename):
		n, ok := m.selectedNote()
		if !ok {
			return m, nil
		}
		m.focus = FocusRename
		m.renameInput.SetValue(n.Text)
		m.renameInput.CursorEnd()
		return m, m.renameInput.Focus()

	case key.Matches(msg, m.keys.Delete):
		n, ok := m.selectedNote()
		if !ok {
			return m, nil
		}
		return m, deleteNoteCmd(m.lib, n.ID)

	case key.Matches(msg, m.keys.Search):
		m.focus = FocusSearch
		m.searchInput.SetValue(m.query)
		m.searchInput.CursorEnd()
		return m, m.searchInput.Focus()

	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
		return m, nil

	case key.Matches(msg, m.keys.Down):
		if m.selected < len(m.notes)-1 {
			m.selected++
		}
		return m, nil

	case key.Matches(msg, m.keys.Up):
		if m.selected > 0 {
			m.selected--
		}
		return m, nil
	}

	return m, nil
}

func (m Model) handleRenameKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "enter":
		n, ok := m.selectedNote()
		m.focus = FocusList
		m.renameInput.Blur()
		if !ok {
			return m, nil
		}
		return m, renameNoteCmd(m.lib, n.ID, m.renameInput.Value())

	case "esc":
		m.focus = FocusList
		m.renameInput.Blur()
		return m, nil
	}

	var cmd tea.Cmd
	m.renameInput, cmd = m.renameInput.Update(msg)
	return m, cmd
}

func (m Model) handleSearchKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "enter", "esc":
		if msg.String() == "esc" {
			m.searchInput.SetValue("")
		}
		m.focus = FocusList
		m.searchInput.Blur()
		m.query = m.searchInput.Value()
		m.refreshNotes()
		return m, nil
	}

	var cmd tea.Cmd
	m.searchInput, cmd = m.searchInput.Update(msg)
	m.query = m.searchInput.Value()
	m.refreshNotes()
	return m, cmd
}

func (m Model) listVisibleLines() int {
	if m.height == 0 {
		return 15
	}
	// Reserve: header(1) + status(1) + dividers(2) + input/error(1) + footer(1)
	return max(3, m.height-6)
}

// View renders the full TUI.
func (m Model) View() string {
	if m.width == 0 {
		return "Initializing..."
	}

	var sections []string

	sections = append(sections, m.renderHeader())
	sections = append(sections, m.renderStatusBar())
	sections = append(sections, ui.DividerStyle.Render(strings.Repeat("─", m.width)))
	sections = append(sections, m.renderNoteList())
	sections = append(sections, ui.DividerStyle.Render(strings.Repeat("─", m.width)))

	switch {
	case m.focus == FocusRename:
		sections = append(sections, m.renameInput.View())
	case m.focus == FocusSearch:
		sections = append(sections, m.searchInput.View())
	case m.errorMessage != "":
		sections = append(sections, m.renderErrorBar())
	}

	sections = append(sections, m.renderFooter())

	return strings.Join(sections, "\n")
}

func (m Model) renderHeader() string {
	title := ui.TitleStyle.Render("MEMOVOX")
	count := ui.DimStyle.Render(fmt.Sprintf(" — %d notes", len(m.notes)))
	if m.query != "" {
		count += ui.SearchPromptStyle.Render(fmt.Sprintf("  /%s", m.query))
	}
	return title + count
}

func (m Model) renderStatusBar() string {
	if m.recording {
		var dot string
		if m.recPaused {
			dot = ui.PausedDotStyle.Render("❚❚ PAUSED")
		} else {
			dot = ui.RecordingDotStyle.Render("● REC")
		}
		timer := ui.TimerStyle.Render(
			formatClock(m.elapsedSec) + " / " + formatClock(m.ceilingSec))
		return dot + "  " + timer
	}

	if m.loadedNoteID != "" {
		return m.renderPlaybackBar()
	}

	return ui.IdleDotStyle.Render("○ IDLE") + "  " + ui.StatusStyle.Render(m.statusText)
}

func (m Model) renderPlaybackBar() string {
	var badge string
	if m.playback.Playing {
		badge = ui.PlayingBadgeStyle.Render("▶ PLAYING")
	} else {
		badge = ui.IdleDotStyle.Render("❚❚ PAUSED")
	}

	pos := formatClockMS(m.playback.PositionMS)
	dur := formatClockMS(m.playback.DurationMS)
	bar := renderProgressBar(m.playback.PositionMS, m.playback.DurationMS, 20)
	extras := ui.DimStyle.Render(fmt.Sprintf("  %.2fx  vol %.0f%%",
		m.playback.Rate, m.playback.Volume*100))

	return badge + "  " + bar + "  " + ui.TimestampStyle.Render(pos+" / "+dur) + extras
}

func renderProgressBar(positionMS, durationMS int64, width int) string {
	filled := 0
	if durationMS > 0 {
		filled = int(positionMS * int64(width) / durationMS)
		if filled > width {
			filled = width
		}
	}
	return ui.ProgressFilledStyle.Render(strings.Repeat("━", filled)) +
		ui.ProgressEmptyStyle.Render(strings.Repeat("─", width-filled))
}

func (m Model) renderNoteList() string {
	height := m.listVisibleLines()

	var lines []string
	if len(m.notes) == 0 {
		if m.query != "" {
			lines = append(lines, ui.DimStyle.Render("  No notes match /"+m.query))
		} else {
			lines = append(lines, ui.DimStyle.Render("  No notes yet. Press Space to record one."))
		}
	} else {
		// Keep the selection visible.
		start := 0
		if m.selected >= height {
			start = m.selected - height + 1
		}
		end := min(len(m.notes), start+height)

		for i := start; i < end; i++ {
			n := m.notes[i]
			marker := "  "
			if n.ID == m.loadedNoteID {
				marker = ui.PlayingBadgeStyle.Render("▶ ")
			}

			meta := ui.TimestampStyle.Render(n.Date+" "+n.Time) + " " +
				ui.DurationStyle.Render(formatClock(n.Duration))

			var line string
			if i == m.selected {
				line = ui.SelectedStyle.Render("> "+n.Text) + "  " + meta
			} else {
				line = "  " + n.Text + "  " + meta
			}
			lines = append(lines, truncateToWidth(marker+line, m.width))
		}
	}

	for len(lines) < height {
		lines = append(lines, "")
	}
	if len(lines) > height {
		lines = lines[:height]
	}

	return strings.Join(lines, "\n")
}

func (m Model) renderErrorBar() string {
	return ui.ErrorStyle.Render("Error: ") + ui.ErrorTextStyle.Render(m.errorMessage)
}

func (m Model) renderFooter() string {
	return m.help.View(m.keys)
}

// Helpers

func formatClock(sec int) string {
	return fmt.Sprintf("%02d:%02d", sec/60, sec%60)
}

func formatClockMS(ms int64) string {
	return formatClock(int(ms / 1000))
}

func truncateToWidth(s string, width int) string {
	if lipgloss.Width(s) <= width {
		return s
	}
	return ansi.Truncate(s, width, "…")
}
