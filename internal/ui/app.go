// Package ui wires the views together into one bubbletea program and
// owns the shared session, progress syncer, and import tracker.
package ui

import (
	"context"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"

	"github.com/shuzhai/shuzhai-t/internal/api"
	"github.com/shuzhai/shuzhai-t/internal/config"
	"github.com/shuzhai/shuzhai-t/internal/crawler"
	"github.com/shuzhai/shuzhai-t/internal/reader"
	"github.com/shuzhai/shuzhai-t/internal/sched"
	"github.com/shuzhai/shuzhai-t/internal/ui/styles"
	"github.com/shuzhai/shuzhai-t/internal/ui/views"
	"github.com/shuzhai/shuzhai-t/pkg/models"
)

// App is the main application model
type App struct {
	config *config.Config
	client *api.Client
	log    *zap.Logger
	keys   KeyMap

	session *reader.Session
	syncer  *reader.Syncer
	tracker *crawler.Tracker
	timers  *sched.Scheduler

	// send delivers background notifications into the program's update
	// loop; set via SetSend before the program runs
	send func(tea.Msg)

	// Current view state
	currentView views.ViewType
	prevView    views.ViewType

	// Window dimensions
	width  int
	height int

	// View models
	libraryView views.View
	readerView  views.View
	searchView  views.View
	addBookView views.View

	// Error/status message
	err      error
	opening  bool
	showHelp bool
}

// sessionReadyMsg reports the outcome of opening a book's session
type sessionReadyMsg struct {
	book models.Book
	err  error
}

// NewApp creates a new application instance
func NewApp(cfg *config.Config, log *zap.Logger) *App {
	client := api.NewClient(cfg.ServerURL)

	app := &App{
		config:      cfg,
		client:      client,
		log:         log,
		keys:        DefaultKeyMap(),
		timers:      sched.New(),
		currentView: views.ViewLibrary,
		width:       80,
		height:      24,
	}

	app.session = reader.NewSession(client, log, func(ev reader.Event) {
		if app.send != nil {
			app.send(views.SessionEventMsg{Event: ev})
		}
	})
	app.syncer = reader.NewSyncer(app.session, client, log, app.timers, nil)
	app.tracker = crawler.NewTracker(client, log, func(ev crawler.Event) {
		if app.send != nil {
			app.send(views.TrackerEventMsg{Event: ev})
		}
	})

	app.libraryView = views.NewLibraryView(client, cfg)
	app.readerView = views.NewReaderView(app.session, app.syncer, cfg)
	app.searchView = views.NewSearchView(app.tracker)
	app.addBookView = views.NewAddBookView(client)

	return app
}

// SetSend installs the program's message injector. Must be called before
// the program runs.
func (a *App) SetSend(send func(tea.Msg)) {
	a.send = send
}

// Shutdown persists pending state and stops background work. Called
// after the program exits.
func (a *App) Shutdown() {
	a.tracker.CancelAll()
	a.syncer.Flush()
	a.session.Close()
	a.timers.Shutdown()
	if err := a.config.Save(); err != nil {
		a.log.Warn("saving config failed", zap.Error(err))
	}
}

// Init implements tea.Model
func (a *App) Init() tea.Cmd {
	return tea.Batch(
		a.getCurrentView().Init(),
		tea.SetWindowTitle("shuzhai-t"),
	)
}

// Update implements tea.Model
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.libraryView.SetSize(msg.Width, msg.Height)
		a.readerView.SetSize(msg.Width, msg.Height)
		a.searchView.SetSize(msg.Width, msg.Height)
		a.addBookView.SetSize(msg.Width, msg.Height)
		return a, nil

	case tea.KeyMsg:
		switch {
		case msg.String() == "ctrl+c":
			return a, tea.Quit

		case key.Matches(msg, a.keys.Help):
			a.showHelp = !a.showHelp
			return a, nil
		}
		if a.showHelp {
			a.showHelp = false
			return a, nil
		}

	case views.OpenBookMsg:
		if a.opening {
			return a, nil
		}
		a.opening = true
		a.err = nil
		if err := a.config.AddRecentlyRead(msg.Book.ID, msg.Book.Title); err != nil {
			a.log.Warn("recording recently read failed", zap.Error(err))
		}
		return a, a.openBook(msg.Book)

	case sessionReadyMsg:
		a.opening = false
		if msg.err != nil {
			a.err = msg.err
			return a, nil
		}
		a.readerView.(*views.ReaderView).SetBook(msg.book)
		return a.switchView(views.ViewReader)

	case views.SessionEventMsg:
		// Content fetches resolve regardless of which view has focus.
		var cmd tea.Cmd
		a.readerView, cmd = a.readerView.Update(msg)
		return a, cmd

	case views.TrackerEventMsg:
		var cmd tea.Cmd
		a.searchView, cmd = a.searchView.Update(msg)
		return a, cmd

	case views.BookImportedMsg:
		// Forward to the library so the next visit shows the new book.
		var cmd tea.Cmd
		a.libraryView, cmd = a.libraryView.Update(msg)
		return a, cmd

	case views.ErrorMsg:
		a.err = msg.Err
		return a, nil

	case views.ClearErrorMsg:
		a.err = nil
		return a, nil

	case views.SwitchViewMsg:
		return a.switchView(msg.View)
	}

	// Delegate to current view
	var cmd tea.Cmd
	switch a.currentView {
	case views.ViewLibrary:
		a.libraryView, cmd = a.libraryView.Update(msg)
	case views.ViewReader:
		a.readerView, cmd = a.readerView.Update(msg)
	case views.ViewSearch:
		a.searchView, cmd = a.searchView.Update(msg)
	case views.ViewAddBook:
		a.addBookView, cmd = a.addBookView.Update(msg)
	}
	cmds = append(cmds, cmd)

	return a, tea.Batch(cmds...)
}

// View implements tea.Model
func (a *App) View() string {
	if a.showHelp {
		return a.renderHelp()
	}

	var content string
	switch a.currentView {
	case views.ViewLibrary:
		content = a.libraryView.View()
	case views.ViewReader:
		content = a.readerView.View()
	case views.ViewSearch:
		content = a.searchView.View()
	case views.ViewAddBook:
		content = a.addBookView.View()
	default:
		content = "Unknown view"
	}

	if a.opening {
		content = lipgloss.JoinVertical(lipgloss.Left, content,
			styles.SecondaryText.Render("Opening book..."))
	}
	if a.err != nil {
		errorBar := styles.ErrorStyle.Render("Error: " + a.err.Error())
		content = lipgloss.JoinVertical(lipgloss.Left, content, errorBar)
	}
	return content
}

// openBook opens the reading session for a book off the update loop
func (a *App) openBook(book models.Book) tea.Cmd {
	session := a.session
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
		defer cancel()
		if err := session.Open(ctx, book.ID); err != nil {
			return sessionReadyMsg{book: book, err: err}
		}
		return sessionReadyMsg{book: book}
	}
}

// switchView changes the current view and initializes it
func (a *App) switchView(view views.ViewType) (*App, tea.Cmd) {
	// Leaving the reader persists the last position and tears the
	// session down; nothing from it survives into the next open.
	if a.currentView == views.ViewReader && view != views.ViewReader {
		a.syncer.Flush()
		a.syncer.Stop()
		a.session.Close()
	}

	a.prevView = a.currentView
	a.currentView = view
	a.err = nil

	return a, a.getCurrentView().Init()
}

// getCurrentView returns the current view model
func (a *App) getCurrentView() views.View {
	switch a.currentView {
	case views.ViewLibrary:
		return a.libraryView
	case views.ViewReader:
		return a.readerView
	case views.ViewSearch:
		return a.searchView
	case views.ViewAddBook:
		return a.addBookView
	default:
		return a.libraryView
	}
}

// renderHelp renders the help overlay
func (a *App) renderHelp() string {
	help := styles.Dialog.Width(60).Render(
		styles.DialogTitle.Render("Keyboard Shortcuts") + "\n\n" +
			styles.HelpKey.Render("Navigation") + "\n" +
			"  j/↓     Move down\n" +
			"  k/↑     Move up\n" +
			"  g       Go to top\n" +
			"  G       Go to bottom\n\n" +
			styles.HelpKey.Render("Reader") + "\n" +
			"  n/l     Next chapter\n" +
			"  p/h     Previous chapter\n" +
			"  t       Table of contents\n" +
			"  T       Cycle theme\n" +
			"  +/-     Text scale\n\n" +
			styles.HelpKey.Render("Library") + "\n" +
			"  /       Filter\n" +
			"  s       Sort\n" +
			"  a       Add book\n" +
			"  o       Online search\n" +
			"  d       Delete\n" +
			"  Enter   Open book\n\n" +
			styles.HelpKey.Render("General") + "\n" +
			"  q       Quit/Back\n" +
			"  Esc     Back\n" +
			"  ?       Toggle help\n",
	)

	return lipgloss.Place(a.width, a.height, lipgloss.Center, lipgloss.Center, help)
}
