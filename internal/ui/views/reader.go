package views

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/shuzhai/shuzhai-t/internal/config"
	"github.com/shuzhai/shuzhai-t/internal/reader"
	"github.com/shuzhai/shuzhai-t/internal/ui/styles"
	"github.com/shuzhai/shuzhai-t/pkg/models"
)

// ReaderView displays the current chapter of the open session
type ReaderView struct {
	session *reader.Session
	syncer  *reader.Syncer
	config  *config.Config

	book *models.Book

	// Wrapped content of the current chapter
	lines      []string
	lineOffset int

	// State
	showTOC   bool
	tocCursor int
	textScale float64
	theme     styles.ReaderTheme
	errMsg    string

	// Dimensions
	width  int
	height int
}

// NewReaderView creates a new reader view
func NewReaderView(session *reader.Session, syncer *reader.Syncer, cfg *config.Config) *ReaderView {
	return &ReaderView{
		session:   session,
		syncer:    syncer,
		config:    cfg,
		textScale: cfg.TextScale,
		theme:     styles.Theme(cfg.ReadingTheme),
		width:     80,
		height:    24,
	}
}

// SetBook points the view at a freshly opened session
func (v *ReaderView) SetBook(book models.Book) {
	v.book = &book
	v.lineOffset = 0
	v.lines = nil
	v.showTOC = false
	v.tocCursor = v.session.Current()
	v.errMsg = ""
}

// Init implements View
func (v *ReaderView) Init() tea.Cmd {
	v.wrapContent()
	v.tryRestore()
	v.requestNeighbors()
	return nil
}

// Update implements View
func (v *ReaderView) Update(msg tea.Msg) (View, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if v.showTOC {
			return v.updateTOC(msg)
		}
		return v.handleKey(msg)

	case SessionEventMsg:
		return v.handleSessionEvent(msg.Event)
	}
	return v, nil
}

func (v *ReaderView) handleKey(msg tea.KeyMsg) (View, tea.Cmd) {
	switch msg.String() {
	case "j", "down":
		v.scroll(1)
	case "k", "up":
		v.scroll(-1)
	case " ", "pgdown", "f":
		v.scroll(v.visibleLines())
	case "pgup", "b":
		v.scroll(-v.visibleLines())
	case "g", "home":
		v.scrollTo(0)
	case "G", "end":
		v.scrollTo(len(v.lines))
	case "n", "l", "right":
		return v, v.nextChapter()
	case "p", "h", "left":
		return v, v.prevChapter()
	case "t":
		v.showTOC = true
		v.tocCursor = v.session.Current()
	case "+", "=":
		v.adjustTextScale(config.TextScaleStep)
	case "-", "_":
		v.adjustTextScale(-config.TextScaleStep)
	case "T":
		v.cycleTheme()
	case "r":
		v.errMsg = ""
		v.session.RequestContent(v.session.Current())
	case "q", "esc":
		return v, SwitchTo(ViewLibrary)
	}
	return v, nil
}

func (v *ReaderView) updateTOC(msg tea.KeyMsg) (View, tea.Cmd) {
	switch msg.String() {
	case "esc", "t", "q":
		v.showTOC = false
	case "j", "down":
		if v.tocCursor < v.session.Len()-1 {
			v.tocCursor++
		}
	case "k", "up":
		if v.tocCursor > 0 {
			v.tocCursor--
		}
	case "g", "home":
		v.tocCursor = 0
	case "G", "end":
		v.tocCursor = v.session.Len() - 1
	case "enter":
		v.showTOC = false
		v.session.SetCurrent(v.tocCursor)
		v.enterChapter()
	}
	return v, nil
}

func (v *ReaderView) handleSessionEvent(ev reader.Event) (View, tea.Cmd) {
	switch ev.Kind {
	case reader.EventChapterLoaded:
		if ev.Index == v.session.Current() {
			v.wrapContent()
			v.tryRestore()
		}
	case reader.EventChapterFailed:
		if ev.Index == v.session.Current() && ev.Err != nil {
			v.errMsg = ev.Err.Error()
		}
	}
	return v, nil
}

// nextChapter advances to the following chapter; a no-op on the last one
func (v *ReaderView) nextChapter() tea.Cmd {
	if !v.session.Next() {
		return nil
	}
	v.enterChapter()
	return nil
}

func (v *ReaderView) prevChapter() tea.Cmd {
	if !v.session.Previous() {
		return nil
	}
	v.enterChapter()
	return nil
}

// enterChapter resets the viewport for the chapter the session now points
// at, records the navigation for persistence, and kicks off fetches.
func (v *ReaderView) enterChapter() {
	v.lineOffset = 0
	v.errMsg = ""
	v.syncer.NoteChapterChange(v.session.Current())
	v.wrapContent()
	v.tryRestore()
	v.requestNeighbors()
}

// requestNeighbors fetches the current chapter and its immediate
// neighbors so short chapters read without a loading pause
func (v *ReaderView) requestNeighbors() {
	cur := v.session.Current()
	v.session.RequestContent(cur)
	v.session.RequestContent(cur + 1)
	v.session.RequestContent(cur - 1)
}

// tryRestore applies the persisted scroll position, at most once per
// chapter visit, once content has been laid out
func (v *ReaderView) tryRestore() {
	if len(v.lines) == 0 {
		return
	}
	if target, ok := v.syncer.RestoreTarget(v.session.Current(), v.maxOffset()); ok {
		v.lineOffset = target
	}
}

func (v *ReaderView) scroll(delta int) {
	v.scrollTo(v.lineOffset + delta)
}

func (v *ReaderView) scrollTo(offset int) {
	v.lineOffset = offset
	if v.lineOffset < 0 {
		v.lineOffset = 0
	}
	if v.lineOffset > v.maxOffset() {
		v.lineOffset = v.maxOffset()
	}
	v.syncer.NoteScroll(reader.ScrollMetrics{
		Offset:         v.lineOffset,
		ViewportHeight: v.visibleLines(),
		TotalHeight:    len(v.lines),
	})
}

func (v *ReaderView) maxOffset() int {
	m := len(v.lines) - v.visibleLines()
	if m < 0 {
		m = 0
	}
	return m
}

func (v *ReaderView) adjustTextScale(delta float64) {
	if err := v.config.SetTextScale(v.textScale + delta); err == nil {
		v.textScale = v.config.TextScale
		v.wrapContent()
		v.scrollTo(v.lineOffset)
	}
}

func (v *ReaderView) cycleTheme() {
	next := map[string]string{
		config.ThemeDay:   config.ThemeNight,
		config.ThemeNight: config.ThemeSepia,
		config.ThemeSepia: config.ThemeDay,
	}[v.config.ReadingTheme]
	if next == "" {
		next = config.ThemeDay
	}
	if err := v.config.SetReadingTheme(next); err == nil {
		v.theme = styles.Theme(next)
	}
}

// View implements View
func (v *ReaderView) View() string {
	if v.book == nil || !v.session.Active() {
		return styles.ErrorStyle.Render("No book open")
	}

	if v.showTOC {
		return v.renderTOC()
	}

	ch, ok := v.session.ChapterAt(v.session.Current())
	if !ok {
		return styles.ErrorStyle.Render("No chapters")
	}

	if ch.Kind() == models.KindDivider {
		return v.renderDivider(ch)
	}

	var b strings.Builder
	b.WriteString(v.renderHeader(ch) + "\n")

	switch {
	case v.errMsg != "":
		b.WriteString(lipgloss.Place(v.width, v.height-4,
			lipgloss.Center, lipgloss.Center,
			styles.ErrorStyle.Render("Error: "+v.errMsg)+"\n"+
				styles.MutedText.Render("Press 'r' to retry")))
	case !ch.HasContent():
		b.WriteString(lipgloss.Place(v.width, v.height-4,
			lipgloss.Center, lipgloss.Center,
			styles.MutedText.Render("Loading chapter...")))
	default:
		visible := v.visibleLines()
		for i := v.lineOffset; i < min(v.lineOffset+visible, len(v.lines)); i++ {
			b.WriteString(v.theme.Text.Render(v.lines[i]) + "\n")
		}
	}

	b.WriteString("\n" + v.renderFooter())
	return b.String()
}

// renderDivider shows a volume title page. Dividers carry no content and
// nothing is fetched for them.
func (v *ReaderView) renderDivider(ch models.Chapter) string {
	title := styles.VolumeTitle.Render(ch.Title)
	page := lipgloss.Place(v.width, v.height-2,
		lipgloss.Center, lipgloss.Center, title)
	return v.renderHeader(ch) + "\n" + page + "\n" + v.renderFooter()
}

func (v *ReaderView) renderHeader(ch models.Chapter) string {
	maxTitleWidth := v.width / 3
	if maxTitleWidth < 10 {
		maxTitleWidth = 10
	}
	title := styles.TruncateText(v.book.Title, maxTitleWidth)
	titlePart := styles.ReaderHeader.Render(" " + title + " ")

	chapterTitle := styles.TruncateText(ch.Title, 30)
	if ch.Kind() == models.KindContent && ch.VolumeNumber != nil && ch.VolumeChapterNumber != nil {
		chapterTitle = fmt.Sprintf("%d·%d %s", *ch.VolumeNumber, *ch.VolumeChapterNumber, chapterTitle)
	}
	chapterPart := styles.Help.Render(fmt.Sprintf(" %d/%d: %s ",
		v.session.Current()+1, v.session.Len(), chapterTitle))

	// Book position counts content chapters only.
	displayIndex, displayTotal := v.session.DisplayPosition(v.session.Current())
	bookPart := ""
	if displayTotal > 0 {
		bookPart = styles.MutedText.Render(fmt.Sprintf("%d/%d ", displayIndex+1, displayTotal))
	}
	progressPart := bookPart +
		styles.ReaderProgress.Render(fmt.Sprintf(" %d%% ", v.chapterProgress()))

	left := titlePart + chapterPart
	gap := v.width - lipgloss.Width(left) - lipgloss.Width(progressPart)
	if gap < 0 {
		gap = 0
	}
	return left + strings.Repeat(" ", gap) + progressPart
}

func (v *ReaderView) renderFooter() string {
	scaleStr := fmt.Sprintf("%.0f%%", v.textScale*100)
	help := []string{
		styles.HelpKey.Render("j/k") + styles.Help.Render(" scroll"),
		styles.HelpKey.Render("h/l") + styles.Help.Render(" chapter"),
		styles.HelpKey.Render("t") + styles.Help.Render(" toc"),
		styles.HelpKey.Render("T") + styles.Help.Render(" "+v.config.ReadingTheme),
		styles.HelpKey.Render("+/-") + styles.Help.Render(" "+scaleStr),
		styles.HelpKey.Render("q") + styles.Help.Render(" back"),
	}
	return styles.FooterBar.Width(v.width).Render(strings.Join(help, "  "))
}

// renderTOC renders the volume-grouped table of contents overlay
func (v *ReaderView) renderTOC() string {
	chapters := v.session.Chapters()
	current := v.session.Current()
	lastRead := v.session.Progress().CurrentChapter

	var b strings.Builder
	b.WriteString(styles.DialogTitle.Render("Table of Contents") + "\n\n")

	maxVisible := v.height - 8
	offset := 0
	if v.tocCursor >= maxVisible {
		offset = v.tocCursor - maxVisible + 1
	}

	for i := offset; i < min(offset+maxVisible, len(chapters)); i++ {
		ch := chapters[i]

		if ch.Kind() == models.KindDivider {
			line := styles.TruncateText(ch.Title, v.width-14)
			if i == v.tocCursor {
				b.WriteString(styles.ListItemSelected.Render("▸ "+line) + "\n")
			} else {
				b.WriteString(styles.VolumeTitle.Render("  "+line) + "\n")
			}
			continue
		}

		marker := "  "
		if i == current {
			marker = "▸ "
		} else if i <= lastRead {
			marker = "· "
		}
		line := styles.TruncateText(fmt.Sprintf("%s%s", marker, ch.Title), v.width-14)

		switch {
		case i == v.tocCursor:
			b.WriteString(styles.ListItemSelected.Render(line) + "\n")
		case i == current:
			b.WriteString(styles.BookAuthor.Render(line+" (current)") + "\n")
		case i <= lastRead:
			b.WriteString(styles.ListItemDimmed.Render(line) + "\n")
		default:
			b.WriteString(styles.ListItem.Render(line) + "\n")
		}
	}

	b.WriteString("\n" + styles.Help.Render("j/k navigate • enter select • esc close"))

	dialog := styles.Dialog.Width(min(60, v.width-4)).Render(b.String())
	return lipgloss.Place(v.width, v.height, lipgloss.Center, lipgloss.Center, dialog)
}

// SetSize implements View
func (v *ReaderView) SetSize(width, height int) {
	v.width = width
	v.height = height
	v.wrapContent()
	if v.lineOffset > v.maxOffset() {
		v.lineOffset = v.maxOffset()
	}
}

// wrapContent wraps the current chapter's text to the scaled width.
// A larger text scale narrows the line, reading like bigger type.
func (v *ReaderView) wrapContent() {
	v.lines = nil
	ch, ok := v.session.ChapterAt(v.session.Current())
	if !ok || !ch.HasContent() {
		return
	}

	baseWidth := v.width - 4
	maxWidth := int(float64(baseWidth) / v.textScale)
	if maxWidth < 20 {
		maxWidth = 20
	}
	if maxWidth > baseWidth {
		maxWidth = baseWidth
	}

	for _, paragraph := range strings.Split(ch.Text(), "\n") {
		if strings.TrimSpace(paragraph) == "" {
			v.lines = append(v.lines, "")
			continue
		}
		v.lines = append(v.lines, wrapParagraph(paragraph, maxWidth)...)
	}
}

// wrapParagraph wraps one paragraph. Space-separated text wraps at word
// boundaries; runs longer than the width (CJK prose has no spaces) are
// split at rune boundaries.
func wrapParagraph(paragraph string, maxWidth int) []string {
	var out []string
	var current strings.Builder
	currentWidth := 0

	flush := func() {
		if current.Len() > 0 {
			out = append(out, current.String())
			current.Reset()
			currentWidth = 0
		}
	}

	for _, word := range strings.Fields(paragraph) {
		wordWidth := lipgloss.Width(word)
		if wordWidth > maxWidth {
			flush()
			for _, r := range word {
				rw := lipgloss.Width(string(r))
				if currentWidth+rw > maxWidth {
					flush()
				}
				current.WriteRune(r)
				currentWidth += rw
			}
			flush()
			continue
		}
		if currentWidth > 0 && currentWidth+1+wordWidth > maxWidth {
			flush()
		}
		if currentWidth > 0 {
			current.WriteString(" ")
			currentWidth++
		}
		current.WriteString(word)
		currentWidth += wordWidth
	}
	flush()
	return out
}

func (v *ReaderView) visibleLines() int {
	lines := v.height - 5
	if lines < 1 {
		lines = 1
	}
	return lines
}

func (v *ReaderView) chapterProgress() int {
	if len(v.lines) == 0 {
		return 0
	}
	if v.lineOffset+v.visibleLines() >= len(v.lines) {
		return 100
	}
	return (v.lineOffset + v.visibleLines()) * 100 / len(v.lines)
}
