// Package reader holds the in-memory state of one open book: the chapter
// list with lazily fetched content, the current chapter index, and the
// synchronizer that reconciles scroll position into persisted progress.
package reader

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/shuzhai/shuzhai-t/internal/api"
	"github.com/shuzhai/shuzhai-t/pkg/models"
)

// initialPrefetch is the number of leading content chapters fetched
// eagerly when a book is opened.
const initialPrefetch = 10

// EventKind distinguishes session notifications
type EventKind int

const (
	// EventChapterLoaded means the chapter at Index now has content
	EventChapterLoaded EventKind = iota
	// EventChapterFailed means a content fetch failed; the caller may
	// request the chapter again
	EventChapterFailed
)

// Event is a notification from a background content fetch
type Event struct {
	Kind  EventKind
	Index int
	Err   error
}

// Session owns the state of one open book. All mutation goes through its
// methods; background fetches carry a generation number so a fetch that
// resolves after Close (or after a new Open) is discarded, never merged.
type Session struct {
	client *api.Client
	log    *zap.Logger
	notify func(Event)

	mu       sync.Mutex
	bookID   string
	chapters []models.Chapter
	current  int
	progress models.ReadingProgress
	inflight map[int]struct{}
	gen      uint64
	ctx      context.Context
	cancel   context.CancelFunc
}

// NewSession creates an idle session. notify may be nil; when set, it is
// called from fetch goroutines and must be safe to invoke concurrently
// (the UI feeds it into Program.Send).
func NewSession(client *api.Client, log *zap.Logger, notify func(Event)) *Session {
	if log == nil {
		log = zap.NewNop()
	}
	return &Session{
		client:   client,
		log:      log,
		notify:   notify,
		inflight: make(map[int]struct{}),
	}
}

// Open loads the chapter list and persisted progress for a book and
// prefetches the initial chapter set. It blocks until the session is
// ready to display. Any previously open session is closed first.
func (s *Session) Open(ctx context.Context, bookID string) error {
	s.Close()

	var (
		wg        sync.WaitGroup
		summaries []models.ChapterSummary
		sumErr    error
		progress  models.ReadingProgress
		progErr   error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		summaries, sumErr = s.client.GetBookChapters(ctx, bookID)
	}()
	go func() {
		defer wg.Done()
		progress, progErr = s.client.GetProgress(ctx, bookID)
	}()
	wg.Wait()

	if sumErr != nil {
		return sumErr
	}
	if progErr != nil {
		// First read or transient failure: start from the beginning.
		if errors.Is(progErr, api.ErrNotFound) {
			s.log.Info("no progress yet", zap.String("book", bookID))
		} else {
			s.log.Warn("loading progress failed, starting fresh",
				zap.String("book", bookID), zap.Error(progErr))
		}
		progress = models.ReadingProgress{BookID: bookID}
	}

	// Legacy books have no per-chapter records; load the whole text.
	if len(summaries) == 0 {
		chapters, err := s.client.GetBookContent(ctx, bookID)
		if err != nil {
			return err
		}
		s.start(bookID, chapters, progress)
		return nil
	}

	chapters := make([]models.Chapter, len(summaries))
	for i, sum := range summaries {
		chapters[i] = models.Chapter{ChapterSummary: sum}
	}

	numbers := prefetchSet(summaries, progress.CurrentChapter)
	fetched := make([]models.Chapter, len(numbers))
	errs := make([]error, len(numbers))
	wg.Add(len(numbers))
	for i, number := range numbers {
		go func(i, number int) {
			defer wg.Done()
			fetched[i], errs[i] = s.client.GetChapter(ctx, bookID, number)
		}(i, number)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			// Not fatal: the placeholder stays and the chapter is
			// fetched again on demand.
			s.log.Warn("prefetch failed",
				zap.String("book", bookID),
				zap.Int("chapter", numbers[i]),
				zap.Error(err))
			continue
		}
		idx := fetched[i].ChapterNumber - 1
		if idx >= 0 && idx < len(chapters) {
			chapters[idx] = fetched[i]
		}
	}

	s.start(bookID, chapters, progress)
	return nil
}

// prefetchSet returns the 1-based chapter numbers to fetch eagerly: the
// first initialPrefetch content chapters plus, if beyond those, the
// chapter the reader last stopped at. Dividers are never part of the set.
func prefetchSet(summaries []models.ChapterSummary, currentChapter int) []int {
	seen := make(map[int]bool)
	var numbers []int
	for _, sum := range summaries {
		if len(numbers) >= initialPrefetch {
			break
		}
		if sum.Kind() == models.KindDivider {
			continue
		}
		numbers = append(numbers, sum.ChapterNumber)
		seen[sum.ChapterNumber] = true
	}

	resume := currentChapter + 1
	if resume > 0 && resume <= len(summaries) && !seen[resume] {
		if summaries[resume-1].Kind() != models.KindDivider {
			numbers = append(numbers, resume)
		}
	}
	return numbers
}

// start installs the session state with the current index clamped into
// the valid range. A persisted out-of-range index is corrected here and
// never propagated.
func (s *Session) start(bookID string, chapters []models.Chapter, progress models.ReadingProgress) {
	ctx, cancel := context.WithCancel(context.Background())

	s.mu.Lock()
	defer s.mu.Unlock()
	s.bookID = bookID
	s.chapters = chapters
	s.current = clampIndex(progress.CurrentChapter, len(chapters))
	s.progress = progress
	s.inflight = make(map[int]struct{})
	s.ctx = ctx
	s.cancel = cancel
	s.gen++
}

func clampIndex(i, n int) int {
	if n <= 0 {
		return 0
	}
	if i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}

// Close tears the session down: pending fetches are canceled and their
// results discarded, and no partial state survives.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.bookID = ""
	s.chapters = nil
	s.current = 0
	s.progress = models.ReadingProgress{}
	s.inflight = make(map[int]struct{})
	s.ctx = nil
	s.gen++
}

// Active reports whether a book is open
func (s *Session) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bookID != ""
}

// BookID returns the open book's id, or empty
func (s *Session) BookID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bookID
}

// Len returns the chapter count, dividers included
func (s *Session) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.chapters)
}

// Current returns the current chapter index
func (s *Session) Current() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// ChapterAt returns a copy of the chapter at index
func (s *Session) ChapterAt(index int) (models.Chapter, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if index < 0 || index >= len(s.chapters) {
		return models.Chapter{}, false
	}
	return s.chapters[index], true
}

// Chapters returns a snapshot of the chapter list
func (s *Session) Chapters() []models.Chapter {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Chapter, len(s.chapters))
	copy(out, s.chapters)
	return out
}

// Progress returns the last known persisted progress
func (s *Session) Progress() models.ReadingProgress {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.progress
}

// setProgress records a freshly persisted progress value
func (s *Session) setProgress(p models.ReadingProgress) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.progress = p
}

// SetCurrent jumps to a chapter. Navigation entries always pass a valid
// index; anything else is clamped.
func (s *Session) SetCurrent(index int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = clampIndex(index, len(s.chapters))
}

// Next advances one chapter, a no-op at the last index
func (s *Session) Next() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current >= len(s.chapters)-1 {
		return false
	}
	s.current++
	return true
}

// Previous retreats one chapter, a no-op at index zero
func (s *Session) Previous() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current <= 0 {
		return false
	}
	s.current--
	return true
}

// DisplayPosition maps a full-list index to its position among content
// chapters only (dividers excluded) and the content chapter total.
func (s *Session) DisplayPosition(index int) (displayIndex, displayTotal int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	displayIndex = -1
	for i, ch := range s.chapters {
		if ch.Kind() == models.KindDivider {
			continue
		}
		if i <= index {
			displayIndex++
		}
		displayTotal++
	}
	if displayIndex < 0 {
		displayIndex = 0
	}
	return displayIndex, displayTotal
}
