package reader

import (
	"context"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/shuzhai/shuzhai-t/internal/api"
	"github.com/shuzhai/shuzhai-t/internal/sched"
	"github.com/shuzhai/shuzhai-t/pkg/models"
)

const (
	// saveDebounce is the quiet window collapsing scroll bursts into a
	// single persisted update
	saveDebounce = 400 * time.Millisecond

	saveKey = "progress-save"
)

// ScrollMetrics captures the raw scroll state of the content surface at
// the moment of a trigger
type ScrollMetrics struct {
	Offset         int // scroll offset from the top
	ViewportHeight int
	TotalHeight    int
}

// Syncer observes scroll and chapter-change signals from a session,
// debounces persistence, and restores the saved position at most once
// per chapter visit.
type Syncer struct {
	session *Session
	client  *api.Client
	log     *zap.Logger
	timers  *sched.Scheduler
	onSaved func(models.ReadingProgress)

	debounce time.Duration

	mu       sync.Mutex
	restored map[int]bool
	last     *capture
}

// capture is the state recorded at the most recent trigger; only the
// last capture inside a quiet window is ever persisted.
type capture struct {
	index   int
	metrics ScrollMetrics
}

// NewSyncer wires a syncer to a session. onSaved may be nil.
func NewSyncer(session *Session, client *api.Client, log *zap.Logger, timers *sched.Scheduler, onSaved func(models.ReadingProgress)) *Syncer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Syncer{
		session:  session,
		client:   client,
		log:      log,
		timers:   timers,
		onSaved:  onSaved,
		debounce: saveDebounce,
		restored: make(map[int]bool),
	}
}

// NoteScroll records a scroll trigger and (re)starts the debounce
// window. Divider pages never produce a progress update.
func (y *Syncer) NoteScroll(m ScrollMetrics) {
	index := y.session.Current()
	ch, ok := y.session.ChapterAt(index)
	if !ok || ch.Kind() == models.KindDivider {
		return
	}
	y.schedule(capture{index: index, metrics: m})
}

// NoteChapterChange records a navigation trigger. The chapter's restored
// mark is cleared so the next entry restores again, and a save is
// scheduled with the fallback metrics.
func (y *Syncer) NoteChapterChange(index int) {
	y.mu.Lock()
	delete(y.restored, index)
	y.mu.Unlock()

	ch, ok := y.session.ChapterAt(index)
	if !ok || ch.Kind() == models.KindDivider {
		return
	}
	y.schedule(capture{index: index})
}

func (y *Syncer) schedule(c capture) {
	y.mu.Lock()
	y.last = &c
	y.mu.Unlock()
	y.timers.Schedule(saveKey, y.debounce, func() {
		y.mu.Lock()
		if y.last == &c {
			y.last = nil
		}
		y.mu.Unlock()
		y.flush(&c)
	})
}

// Flush persists the most recent capture immediately, canceling any
// pending debounced save. Used when the reader is being left.
func (y *Syncer) Flush() {
	y.timers.Cancel(saveKey)
	y.mu.Lock()
	c := y.last
	y.last = nil
	y.mu.Unlock()
	if c != nil {
		y.flush(c)
	}
}

// Stop drops any pending save without persisting
func (y *Syncer) Stop() {
	y.timers.Cancel(saveKey)
	y.mu.Lock()
	y.last = nil
	y.restored = make(map[int]bool)
	y.mu.Unlock()
}

func (y *Syncer) flush(c *capture) {
	bookID := y.session.BookID()
	if bookID == "" {
		return
	}

	req := models.UpdateProgressRequest{
		CurrentChapter:     c.index,
		CurrentPosition:    maxInt(0, c.metrics.Offset),
		ProgressPercentage: y.percentFor(c.index, c.metrics),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	saved, err := y.client.UpdateProgress(ctx, bookID, req)
	if err != nil {
		// Local state is not rolled back; the reader keeps going and a
		// later trigger retries naturally.
		y.log.Warn("saving progress failed",
			zap.String("book", bookID),
			zap.Int("chapter", c.index),
			zap.Error(err))
		return
	}
	y.session.setProgress(saved)
	if y.onSaved != nil {
		y.onSaved(saved)
	}
}

// percentFor computes the persisted percentage. The scroll-based value
// wins when it is finite and positive; otherwise (pre-layout, chapter
// just switched) the position of the chapter among content chapters is
// used, which keeps the result in [0,100] regardless of scroll state.
func (y *Syncer) percentFor(index int, m ScrollMetrics) float64 {
	raw := float64(m.Offset+m.ViewportHeight) / float64(m.TotalHeight) * 100
	if !math.IsNaN(raw) && !math.IsInf(raw, 0) {
		if p := clampPercent(raw); p > 0 {
			return p
		}
	}
	displayIndex, displayTotal := y.session.DisplayPosition(index)
	if displayTotal <= 0 {
		return 0
	}
	return clampPercent(float64(displayIndex+1) / float64(displayTotal) * 100)
}

func clampPercent(p float64) float64 {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}

// RestoreTarget reports the scroll offset to restore for the chapter at
// index, clamped to maxScroll. It returns ok exactly once per visit:
// when the displayed chapter matches the persisted one, the persisted
// position is positive, and no restore happened since the chapter was
// last entered. The caller invokes this only after content has laid out.
func (y *Syncer) RestoreTarget(index, maxScroll int) (int, bool) {
	ch, ok := y.session.ChapterAt(index)
	if !ok || ch.Kind() == models.KindDivider {
		return 0, false
	}
	progress := y.session.Progress()
	if progress.CurrentChapter != index || progress.CurrentPosition <= 0 {
		return 0, false
	}

	y.mu.Lock()
	defer y.mu.Unlock()
	if y.restored[index] {
		return 0, false
	}
	y.restored[index] = true

	target := progress.CurrentPosition
	if maxScroll >= 0 && target > maxScroll {
		target = maxScroll
	}
	return target, true
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
