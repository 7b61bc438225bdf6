package views

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/shuzhai/shuzhai-t/internal/crawler"
	"github.com/shuzhai/shuzhai-t/internal/reader"
	"github.com/shuzhai/shuzhai-t/pkg/models"
)

// ViewType represents different screens in the application
type ViewType int

const (
	ViewLibrary ViewType = iota
	ViewReader
	ViewSearch
	ViewAddBook
)

// String returns the name of the view
func (v ViewType) String() string {
	switch v {
	case ViewLibrary:
		return "Library"
	case ViewReader:
		return "Reader"
	case ViewSearch:
		return "Online Search"
	case ViewAddBook:
		return "Add Book"
	default:
		return "Unknown"
	}
}

// View is the interface that all views must implement
type View interface {
	Init() tea.Cmd
	Update(msg tea.Msg) (View, tea.Cmd)
	View() string
	SetSize(width, height int)
}

// Message types for inter-view communication

// OpenBookMsg is sent when a book is selected to read
type OpenBookMsg struct {
	Book models.Book
}

// BookImportedMsg is sent when a remote import finishes, so the library
// can refresh
type BookImportedMsg struct {
	BookID string
}

// ErrorMsg is sent when an error occurs
type ErrorMsg struct {
	Err error
}

// ClearErrorMsg clears the current error
type ClearErrorMsg struct{}

// SwitchViewMsg requests a view switch
type SwitchViewMsg struct {
	View ViewType
}

// SessionEventMsg carries a background notification from the session's
// content cache
type SessionEventMsg struct {
	Event reader.Event
}

// TrackerEventMsg carries a background notification from the import
// tracker
type TrackerEventMsg struct {
	Event crawler.Event
}

// Helper functions to create messages

// SendError creates an error message command
func SendError(err error) tea.Cmd {
	return func() tea.Msg {
		return ErrorMsg{Err: err}
	}
}

// SwitchTo creates a command to switch views
func SwitchTo(view ViewType) tea.Cmd {
	return func() tea.Msg {
		return SwitchViewMsg{View: view}
	}
}
