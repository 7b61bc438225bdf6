package views

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/shuzhai/shuzhai-t/internal/crawler"
	"github.com/shuzhai/shuzhai-t/internal/ui/styles"
	"github.com/shuzhai/shuzhai-t/pkg/models"
)

// resultsPerPage is the number of search results shown per page
const resultsPerPage = 10

// importState is the displayed state of one tracked import, keyed by
// the result's URL
type importState struct {
	percent int
	failed  bool
	done    bool
	errMsg  string
}

// SearchView searches the remote catalog and imports books from it
type SearchView struct {
	tracker *crawler.Tracker

	// Query
	queryInput textinput.Model
	inputMode  bool

	// Results
	results []models.CrawlResult
	cursor  int
	page    int

	// Imports in flight, keyed by URL
	imports map[string]importState

	// State
	searching   bool
	rateLimited bool
	errMsg      string

	// Dimensions
	width  int
	height int
}

// NewSearchView creates a new online search view
func NewSearchView(tracker *crawler.Tracker) *SearchView {
	queryInput := textinput.New()
	queryInput.Placeholder = "Search title or author..."
	queryInput.CharLimit = 100
	queryInput.Width = 40

	return &SearchView{
		tracker:    tracker,
		queryInput: queryInput,
		imports:    make(map[string]importState),
		width:      80,
		height:     24,
	}
}

// Message types
type searchDoneMsg struct {
	results []models.CrawlResult
	err     error
}

// Init implements View
func (v *SearchView) Init() tea.Cmd {
	v.inputMode = true
	v.queryInput.Focus()
	return textinput.Blink
}

// Update implements View
func (v *SearchView) Update(msg tea.Msg) (View, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if v.inputMode {
			return v.updateInput(msg)
		}
		return v.handleKey(msg)

	case searchDoneMsg:
		v.searching = false
		if msg.err != nil {
			if crawler.IsRateLimited(msg.err) {
				v.rateLimited = true
				v.errMsg = "Search limit reached, wait a minute and try again"
			} else {
				v.errMsg = "Search failed: " + msg.err.Error()
			}
			return v, nil
		}
		v.results = msg.results
		v.cursor = 0
		v.page = 0
		return v, nil

	case TrackerEventMsg:
		return v.handleTrackerEvent(msg.Event)
	}
	return v, nil
}

func (v *SearchView) updateInput(msg tea.KeyMsg) (View, tea.Cmd) {
	switch msg.String() {
	case "esc":
		if len(v.results) > 0 {
			v.inputMode = false
			v.queryInput.Blur()
			return v, nil
		}
		return v, v.leave()
	case "enter":
		query := strings.TrimSpace(v.queryInput.Value())
		if query == "" {
			return v, nil
		}
		v.inputMode = false
		v.queryInput.Blur()
		return v, v.search(query)
	default:
		var cmd tea.Cmd
		v.queryInput, cmd = v.queryInput.Update(msg)
		return v, cmd
	}
}

func (v *SearchView) handleKey(msg tea.KeyMsg) (View, tea.Cmd) {
	switch msg.String() {
	case "j", "down":
		if v.cursor < len(v.pageResults())-1 {
			v.cursor++
		}
	case "k", "up":
		if v.cursor > 0 {
			v.cursor--
		}
	case "l", "right", "pgdown":
		if (v.page+1)*resultsPerPage < len(v.results) {
			v.page++
			v.cursor = 0
		}
	case "h", "left", "pgup":
		if v.page > 0 {
			v.page--
			v.cursor = 0
		}
	case "enter", "i":
		page := v.pageResults()
		if v.cursor < len(page) {
			v.startImport(page[v.cursor])
		}
	case "/":
		v.inputMode = true
		v.queryInput.Focus()
		return v, textinput.Blink
	case "q", "esc":
		return v, v.leave()
	}
	return v, nil
}

func (v *SearchView) handleTrackerEvent(ev crawler.Event) (View, tea.Cmd) {
	switch ev.Kind {
	case crawler.EventProgress:
		v.imports[ev.Key] = importState{percent: ev.Percent}
	case crawler.EventSuccess:
		v.imports[ev.Key] = importState{percent: 100, done: true}
		if ev.BookID != "" {
			id := ev.BookID
			return v, func() tea.Msg { return BookImportedMsg{BookID: id} }
		}
	case crawler.EventFailed:
		msg := "import failed"
		if ev.Err != nil {
			msg = ev.Err.Error()
		}
		v.imports[ev.Key] = importState{failed: true, errMsg: msg}
	case crawler.EventCleared:
		delete(v.imports, ev.Key)
	}
	return v, nil
}

// startImport submits one result for import. The tracker ignores items
// that are already being imported.
func (v *SearchView) startImport(item models.CrawlResult) {
	v.tracker.Start(item)
}

// leave cancels all tracked imports before switching back to the library
func (v *SearchView) leave() tea.Cmd {
	v.tracker.CancelAll()
	v.imports = make(map[string]importState)
	return SwitchTo(ViewLibrary)
}

func (v *SearchView) search(query string) tea.Cmd {
	v.searching = true
	v.errMsg = ""
	v.rateLimited = false
	v.tracker.CancelAll()
	v.imports = make(map[string]importState)
	tracker := v.tracker
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		results, err := tracker.Search(ctx, query)
		return searchDoneMsg{results: results, err: err}
	}
}

func (v *SearchView) pageResults() []models.CrawlResult {
	start := v.page * resultsPerPage
	if start >= len(v.results) {
		return nil
	}
	end := min(start+resultsPerPage, len(v.results))
	return v.results[start:end]
}

// View implements View
func (v *SearchView) View() string {
	var b strings.Builder

	b.WriteString(styles.TitleBar.Render(" Online Search ") + "\n\n")

	if v.inputMode {
		b.WriteString(styles.InputLabel.Render("Query") + "\n")
		b.WriteString(styles.InputFieldFocused.Render(v.queryInput.View()) + "\n\n")
	} else {
		b.WriteString(styles.SecondaryText.Render("Query: "+v.queryInput.Value()) + "\n\n")
	}

	if v.searching {
		b.WriteString(lipgloss.Place(v.width, v.height-6,
			lipgloss.Center, lipgloss.Center,
			styles.MutedText.Render("Searching...")))
		return b.String()
	}

	if v.errMsg != "" {
		style := styles.ErrorStyle
		if v.rateLimited {
			style = styles.WarningStyle
		}
		b.WriteString(style.Render(v.errMsg) + "\n\n")
	}

	page := v.pageResults()
	if len(page) == 0 && v.errMsg == "" && !v.inputMode {
		b.WriteString(styles.MutedText.Render("No results") + "\n")
	}

	for i, result := range page {
		line := styles.BookTitle.Render(styles.TruncateText(result.Title, v.width/3)) +
			"  " + styles.BookAuthor.Render(result.Author)
		if result.Latest != "" {
			line += styles.MutedText.Render("  " + styles.TruncateText(result.Latest, 30))
		}
		line += v.renderImportState(result.URL)

		if i == v.cursor && !v.inputMode {
			b.WriteString(styles.ListItemSelected.Render("▸ "+line) + "\n")
		} else {
			b.WriteString(styles.ListItem.Render("  "+line) + "\n")
		}
	}

	if totalPages := (len(v.results) + resultsPerPage - 1) / resultsPerPage; totalPages > 1 {
		b.WriteString("\n" + styles.MutedText.Render(
			fmt.Sprintf("Page %d/%d", v.page+1, totalPages)))
	}

	b.WriteString("\n" + v.renderFooter())
	return b.String()
}

func (v *SearchView) renderImportState(url string) string {
	st, ok := v.imports[url]
	if !ok {
		return ""
	}
	switch {
	case st.failed:
		return "  " + styles.ErrorStyle.Render("✗ "+st.errMsg)
	case st.done:
		return "  " + styles.SuccessStyle.Render("✓ imported")
	default:
		return "  " + styles.SecondaryText.Render(fmt.Sprintf("importing %d%%", st.percent))
	}
}

func (v *SearchView) renderFooter() string {
	help := []string{
		styles.HelpKey.Render("enter") + styles.Help.Render(" import"),
		styles.HelpKey.Render("h/l") + styles.Help.Render(" page"),
		styles.HelpKey.Render("/") + styles.Help.Render(" new search"),
		styles.HelpKey.Render("q") + styles.Help.Render(" back"),
	}
	return styles.FooterBar.Width(v.width).Render(strings.Join(help, "  "))
}

// SetSize implements View
func (v *SearchView) SetSize(width, height int) {
	v.width = width
	v.height = height
}
