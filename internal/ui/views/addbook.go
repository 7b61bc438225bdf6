package views

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/filepicker"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/shuzhai/shuzhai-t/internal/api"
	"github.com/shuzhai/shuzhai-t/internal/ui/styles"
	"github.com/shuzhai/shuzhai-t/pkg/models"
)

// AddBookView displays a file picker for registering local book files
type AddBookView struct {
	client     *api.Client
	filepicker filepicker.Model
	selected   string
	adding     bool
	result     *addResult
	err        error

	width  int
	height int
}

type addResult struct {
	book    *models.Book
	success bool
	err     error
}

// Message types
type addCompleteMsg struct {
	book *models.Book
	err  error
}

type clearResultMsg struct{}

type clearErrorMsg struct{}

// NewAddBookView creates a new add-book view
func NewAddBookView(client *api.Client) *AddBookView {
	cwd, err := os.Getwd()
	if err != nil {
		cwd = "."
	}

	fp := filepicker.New()
	fp.AllowedTypes = []string{".txt", ".md", ".epub"}
	fp.CurrentDirectory = cwd
	fp.ShowHidden = false
	fp.ShowPermissions = false
	fp.ShowSize = true
	fp.Height = 15

	return &AddBookView{
		client:     client,
		filepicker: fp,
		width:      80,
		height:     24,
	}
}

// Init implements View
func (v *AddBookView) Init() tea.Cmd {
	return v.filepicker.Init()
}

// Update implements View
func (v *AddBookView) Update(msg tea.Msg) (View, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "esc":
			if v.adding {
				return v, nil
			}
			return v, SwitchTo(ViewLibrary)
		case "q":
			if !v.adding {
				return v, SwitchTo(ViewLibrary)
			}
		}

	case addCompleteMsg:
		v.adding = false
		if msg.err != nil {
			v.result = &addResult{success: false, err: msg.err}
		} else {
			v.result = &addResult{book: msg.book, success: true}
		}
		return v, tea.Tick(3*time.Second, func(t time.Time) tea.Msg {
			return clearResultMsg{}
		})

	case clearResultMsg:
		v.result = nil
		v.selected = ""
		return v, nil

	case clearErrorMsg:
		v.err = nil
		return v, nil
	}

	var cmd tea.Cmd
	v.filepicker, cmd = v.filepicker.Update(msg)

	if didSelect, path := v.filepicker.DidSelectFile(msg); didSelect {
		v.selected = path
		v.adding = true
		v.result = nil
		return v, v.addBook(path)
	}

	if didSelect, path := v.filepicker.DidSelectDisabledFile(msg); didSelect {
		v.err = fmt.Errorf("cannot select %s (want .txt, .md or .epub)", path)
		return v, tea.Tick(2*time.Second, func(t time.Time) tea.Msg {
			return clearErrorMsg{}
		})
	}

	return v, cmd
}

// View implements View
func (v *AddBookView) View() string {
	var b strings.Builder

	b.WriteString(styles.TitleBar.Render(" Add Book ") + "\n\n")

	b.WriteString(styles.Help.Render("Navigate to a book file and press Enter to add it") + "\n")
	b.WriteString(styles.Help.Render("Press Esc to go back") + "\n\n")

	if v.adding {
		b.WriteString(styles.SecondaryText.Render(fmt.Sprintf("Adding %s...", v.selected)) + "\n\n")
	}

	if v.result != nil {
		if v.result.success {
			b.WriteString(styles.SuccessStyle.Render("Added: "+v.result.book.Title) + "\n\n")
		} else {
			b.WriteString(styles.ErrorStyle.Render("Add failed: "+v.result.err.Error()) + "\n\n")
		}
	}

	if v.err != nil {
		b.WriteString(styles.ErrorStyle.Render(v.err.Error()) + "\n\n")
	}

	b.WriteString(v.filepicker.View())

	b.WriteString("\n\n")
	help := []string{
		styles.HelpKey.Render("↑/↓") + styles.Help.Render(" navigate"),
		styles.HelpKey.Render("enter") + styles.Help.Render(" select"),
		styles.HelpKey.Render("esc") + styles.Help.Render(" back"),
	}
	b.WriteString(strings.Join(help, "  "))

	content := styles.Dialog.Width(v.width - 4).Render(b.String())
	return lipgloss.Place(v.width, v.height, lipgloss.Center, lipgloss.Center, content)
}

// SetSize implements View
func (v *AddBookView) SetSize(width, height int) {
	v.width = width
	v.height = height
	v.filepicker.Height = height - 15
	if v.filepicker.Height < 5 {
		v.filepicker.Height = 5
	}
}

// addBook registers the selected file server-side. The server parses the
// file itself; only the path and format travel in the request.
func (v *AddBookView) addBook(path string) tea.Cmd {
	return func() tea.Msg {
		ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
		title := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))

		ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
		defer cancel()
		book, err := v.client.CreateBook(ctx, models.CreateBookRequest{
			Title:      title,
			FilePath:   path,
			FileFormat: ext,
		})
		if err != nil {
			return addCompleteMsg{err: err}
		}
		return addCompleteMsg{book: &book}
	}
}
