package views

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/shuzhai/shuzhai-t/internal/api"
	"github.com/shuzhai/shuzhai-t/internal/config"
	"github.com/shuzhai/shuzhai-t/internal/ui/styles"
	"github.com/shuzhai/shuzhai-t/pkg/models"
)

// Sort options
type sortField int

const (
	sortRecent sortField = iota
	sortLastRead
	sortTitle
)

func (s sortField) Label() string {
	switch s {
	case sortRecent:
		return "Recent"
	case sortLastRead:
		return "Last read"
	case sortTitle:
		return "Title"
	default:
		return "Recent"
	}
}

// bookStatus is the per-book reading state shown in the list
type bookStatus struct {
	progress models.ReadingProgress
	chapters int
	known    bool
}

// LibraryView displays the book library
type LibraryView struct {
	client *api.Client
	config *config.Config

	// Books
	books  []models.Book
	status map[string]bookStatus
	cursor int
	offset int

	// State
	loading       bool
	err           error
	filterMode    bool
	filterInput   textinput.Model
	confirmDelete bool
	deleteTarget  *models.Book
	statusMsg     string

	// Sorting
	sortBy sortField

	// Dimensions
	width  int
	height int
}

// NewLibraryView creates a new library view
func NewLibraryView(client *api.Client, cfg *config.Config) *LibraryView {
	filterInput := textinput.New()
	filterInput.Placeholder = "Filter books..."
	filterInput.CharLimit = 100
	filterInput.Width = 40

	return &LibraryView{
		client:      client,
		config:      cfg,
		status:      make(map[string]bookStatus),
		filterInput: filterInput,
		width:       80,
		height:      24,
	}
}

// Message types
type booksLoadedMsg struct {
	books []models.Book
	err   error
}

type statusLoadedMsg struct {
	status map[string]bookStatus
}

type bookDeletedMsg struct {
	id  string
	err error
}

// Init implements View
func (v *LibraryView) Init() tea.Cmd {
	v.loading = true
	return v.loadBooks()
}

// Update implements View
func (v *LibraryView) Update(msg tea.Msg) (View, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		v.statusMsg = ""
		if v.filterMode {
			return v.updateFilter(msg)
		}
		if v.confirmDelete {
			return v.updateConfirmDelete(msg)
		}
		return v.handleKey(msg)

	case booksLoadedMsg:
		v.loading = false
		if msg.err != nil {
			v.err = msg.err
			return v, nil
		}
		v.books = msg.books
		v.err = nil
		v.clampCursor()
		return v, v.loadStatus(msg.books)

	case statusLoadedMsg:
		v.status = msg.status
		return v, nil

	case bookDeletedMsg:
		if msg.err != nil {
			v.err = msg.err
			return v, nil
		}
		v.statusMsg = "Book deleted"
		return v, v.loadBooks()

	case BookImportedMsg:
		// A remote import finished while we were elsewhere; refresh.
		return v, v.loadBooks()
	}

	return v, nil
}

func (v *LibraryView) handleKey(msg tea.KeyMsg) (View, tea.Cmd) {
	switch msg.String() {
	case "j", "down":
		if v.cursor < len(v.visible())-1 {
			v.cursor++
		}
	case "k", "up":
		if v.cursor > 0 {
			v.cursor--
		}
	case "g", "home":
		v.cursor = 0
	case "G", "end":
		v.cursor = max(0, len(v.visible())-1)
	case "enter":
		books := v.visible()
		if v.cursor < len(books) {
			book := books[v.cursor]
			return v, func() tea.Msg { return OpenBookMsg{Book: book} }
		}
	case "/":
		v.filterMode = true
		v.filterInput.Focus()
		return v, textinput.Blink
	case "s":
		v.sortBy = (v.sortBy + 1) % 3
		v.cursor = 0
	case "d":
		books := v.visible()
		if v.cursor < len(books) {
			book := books[v.cursor]
			v.confirmDelete = true
			v.deleteTarget = &book
		}
	case "a":
		return v, SwitchTo(ViewAddBook)
	case "o":
		return v, SwitchTo(ViewSearch)
	case "r":
		v.loading = true
		return v, v.loadBooks()
	case "q":
		return v, tea.Quit
	}
	return v, nil
}

func (v *LibraryView) updateFilter(msg tea.KeyMsg) (View, tea.Cmd) {
	switch msg.String() {
	case "esc":
		v.filterMode = false
		v.filterInput.Blur()
		v.filterInput.SetValue("")
		v.cursor = 0
		return v, nil
	case "enter":
		v.filterMode = false
		v.filterInput.Blur()
		v.cursor = 0
		return v, nil
	default:
		var cmd tea.Cmd
		v.filterInput, cmd = v.filterInput.Update(msg)
		return v, cmd
	}
}

func (v *LibraryView) updateConfirmDelete(msg tea.KeyMsg) (View, tea.Cmd) {
	switch msg.String() {
	case "y", "enter":
		v.confirmDelete = false
		target := v.deleteTarget
		v.deleteTarget = nil
		if target != nil {
			return v, v.deleteBook(target.ID)
		}
	case "n", "esc", "q":
		v.confirmDelete = false
		v.deleteTarget = nil
	}
	return v, nil
}

// visible returns the books after filter and sort
func (v *LibraryView) visible() []models.Book {
	filter := strings.ToLower(strings.TrimSpace(v.filterInput.Value()))
	books := make([]models.Book, 0, len(v.books))
	for _, b := range v.books {
		if filter != "" &&
			!strings.Contains(strings.ToLower(b.Title), filter) &&
			!strings.Contains(strings.ToLower(b.Author), filter) {
			continue
		}
		books = append(books, b)
	}

	switch v.sortBy {
	case sortTitle:
		sort.SliceStable(books, func(i, j int) bool {
			return books[i].Title < books[j].Title
		})
	case sortLastRead:
		sort.SliceStable(books, func(i, j int) bool {
			return v.status[books[i].ID].progress.LastReadAt.
				After(v.status[books[j].ID].progress.LastReadAt)
		})
	default:
		// Recently opened books first, newly added books after that.
		sort.SliceStable(books, func(i, j int) bool {
			oi, oj := v.config.LastOpened(books[i].ID), v.config.LastOpened(books[j].ID)
			if !oi.Equal(oj) {
				return oi.After(oj)
			}
			return books[i].CreatedAt.After(books[j].CreatedAt)
		})
	}
	return books
}

func (v *LibraryView) clampCursor() {
	if v.cursor >= len(v.visible()) {
		v.cursor = max(0, len(v.visible())-1)
	}
}

// View implements View
func (v *LibraryView) View() string {
	var b strings.Builder

	b.WriteString(styles.TitleBar.Render(" Shuzhai Library ") + "\n\n")

	if v.filterMode {
		b.WriteString(styles.InputFieldFocused.Render(v.filterInput.View()) + "\n\n")
	} else if v.filterInput.Value() != "" {
		b.WriteString(styles.SecondaryText.Render("Filter: "+v.filterInput.Value()) + "\n\n")
	}

	if v.loading {
		b.WriteString(lipgloss.Place(v.width, v.height-4,
			lipgloss.Center, lipgloss.Center,
			styles.MutedText.Render("Loading library...")))
		return b.String()
	}

	if v.err != nil {
		b.WriteString(styles.ErrorStyle.Render("Error: "+v.err.Error()) + "\n\n")
	}

	if v.confirmDelete && v.deleteTarget != nil {
		dialog := styles.Dialog.Render(
			styles.DialogTitle.Render("Delete book?") + "\n" +
				v.deleteTarget.Title + "\n\n" +
				styles.HelpKey.Render("y") + styles.Help.Render(" delete  ") +
				styles.HelpKey.Render("n") + styles.Help.Render(" cancel"))
		return lipgloss.Place(v.width, v.height, lipgloss.Center, lipgloss.Center, dialog)
	}

	books := v.visible()
	if len(books) == 0 {
		b.WriteString(styles.MutedText.Render("No books. Press 'a' to add one or 'o' to search online.") + "\n")
	} else {
		v.renderList(&b, books)
	}

	if v.statusMsg != "" {
		b.WriteString("\n" + styles.SuccessStyle.Render(v.statusMsg))
	}

	b.WriteString("\n" + v.renderFooter())
	return b.String()
}

func (v *LibraryView) renderList(b *strings.Builder, books []models.Book) {
	maxVisible := v.height - 8
	if maxVisible < 1 {
		maxVisible = 1
	}
	if v.cursor < v.offset {
		v.offset = v.cursor
	}
	if v.cursor >= v.offset+maxVisible {
		v.offset = v.cursor - maxVisible + 1
	}

	for i := v.offset; i < min(v.offset+maxVisible, len(books)); i++ {
		book := books[i]
		title := styles.TruncateText(book.Title, v.width/2)
		line := fmt.Sprintf("%s  %s", title, styles.BookAuthor.Render(book.Author))
		if st, ok := v.status[book.ID]; ok && st.known && st.chapters > 0 {
			line += styles.MutedText.Render(fmt.Sprintf("  [%d ch · %.0f%%]",
				st.chapters, st.progress.ProgressPercentage))
		}
		line += styles.MutedText.Render("  " + book.FileFormat)

		if i == v.cursor {
			b.WriteString(styles.ListItemSelected.Render("▸ "+line) + "\n")
		} else {
			b.WriteString(styles.ListItem.Render("  "+line) + "\n")
		}
	}
}

func (v *LibraryView) renderFooter() string {
	help := []string{
		styles.HelpKey.Render("enter") + styles.Help.Render(" read"),
		styles.HelpKey.Render("/") + styles.Help.Render(" filter"),
		styles.HelpKey.Render("s") + styles.Help.Render(" sort: "+v.sortBy.Label()),
		styles.HelpKey.Render("a") + styles.Help.Render(" add"),
		styles.HelpKey.Render("o") + styles.Help.Render(" online"),
		styles.HelpKey.Render("d") + styles.Help.Render(" delete"),
		styles.HelpKey.Render("q") + styles.Help.Render(" quit"),
	}
	return styles.FooterBar.Width(v.width).Render(strings.Join(help, "  "))
}

// SetSize implements View
func (v *LibraryView) SetSize(width, height int) {
	v.width = width
	v.height = height
}

// loadBooks fetches the library list
func (v *LibraryView) loadBooks() tea.Cmd {
	return func() tea.Msg {
		books, err := v.client.ListBooks(context.Background())
		return booksLoadedMsg{books: books, err: err}
	}
}

// loadStatus fetches progress and chapter counts for every book
// concurrently; individual failures leave that book without status.
func (v *LibraryView) loadStatus(books []models.Book) tea.Cmd {
	client := v.client
	return func() tea.Msg {
		var (
			mu     sync.Mutex
			wg     sync.WaitGroup
			status = make(map[string]bookStatus, len(books))
		)
		for _, book := range books {
			wg.Add(1)
			go func(book models.Book) {
				defer wg.Done()
				ctx := context.Background()
				progress, perr := client.GetProgress(ctx, book.ID)
				chapters, cerr := client.GetBookChapters(ctx, book.ID)
				if perr != nil && cerr != nil {
					return
				}
				mu.Lock()
				status[book.ID] = bookStatus{
					progress: progress,
					chapters: len(chapters),
					known:    true,
				}
				mu.Unlock()
			}(book)
		}
		wg.Wait()
		return statusLoadedMsg{status: status}
	}
}

// deleteBook removes a book server-side
func (v *LibraryView) deleteBook(id string) tea.Cmd {
	return func() tea.Msg {
		err := v.client.DeleteBook(context.Background(), id)
		return bookDeletedMsg{id: id, err: err}
	}
}
