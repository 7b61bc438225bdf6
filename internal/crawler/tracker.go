// Package crawler drives remote search and the lifecycle of asynchronous
// import jobs: one active job per remote item, polled to a terminal state.
package crawler

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/shuzhai/shuzhai-t/internal/api"
	"github.com/shuzhai/shuzhai-t/pkg/models"
)

const (
	// pollInterval is how often a job's status is fetched
	pollInterval = 800 * time.Millisecond
	// successGrace is how long the finished progress display lingers
	// before it is cleared
	successGrace = 1000 * time.Millisecond
)

// rateLimitSignals are throttling phrases the remote source is known to
// return; a search failure matching any of them is classified as
// rate-limited rather than generic.
var rateLimitSignals = []string{
	"rate_limit",
	"搜索次数已耗尽",
	"搜索过于频繁",
	"搜索次數已耗盡",
	"搜索過於頻繁",
	"提供10次搜索机会",
	"提供10次搜索機會",
	"一分钟只提供10次搜索机会",
	"一分鐘只提供10次搜索機會",
	"為防止惡意搜索",
	"为防止恶意搜索",
	"為防止惡意搜尋",
	"为防止恶意搜尋",
	"429",
}

// RateLimitedError marks a search failure caused by remote throttling.
// Callers show a back-off message instead of the raw error.
type RateLimitedError struct {
	cause error
}

func (e *RateLimitedError) Error() string {
	return "remote search rate limited: " + e.cause.Error()
}

func (e *RateLimitedError) Unwrap() error { return e.cause }

// IsRateLimited reports whether err is a classified throttling failure
func IsRateLimited(err error) bool {
	var rl *RateLimitedError
	return errors.As(err, &rl)
}

func classifySearchErr(err error) error {
	msg := err.Error()
	lower := strings.ToLower(msg)
	for _, signal := range rateLimitSignals {
		if strings.Contains(msg, signal) {
			return &RateLimitedError{cause: err}
		}
	}
	if strings.Contains(lower, "too many") {
		return &RateLimitedError{cause: err}
	}
	return err
}

// EventKind distinguishes tracker notifications
type EventKind int

const (
	// EventProgress updates the displayed percentage for a running job
	EventProgress EventKind = iota
	// EventSuccess means the job finished; the progress display shows
	// 100 until EventCleared follows after a grace period
	EventSuccess
	// EventFailed means the job or its submission failed; the progress
	// display is cleared immediately
	EventFailed
	// EventCleared removes the item's progress display
	EventCleared
)

// Event is a notification about one tracked import, keyed by the remote
// item's URL
type Event struct {
	Key     string
	Kind    EventKind
	Percent int
	BookID  string
	Err     error
}

// Tracker owns the set of active imports. Mutations of the active set
// are atomic read-modify-write operations keyed by item URL.
type Tracker struct {
	client *api.Client
	log    *zap.Logger
	notify func(Event)

	poll  time.Duration
	grace time.Duration

	mu     sync.Mutex
	active map[string]context.CancelFunc
}

// NewTracker creates a tracker. notify is called from polling goroutines
// and must be safe to invoke concurrently.
func NewTracker(client *api.Client, log *zap.Logger, notify func(Event)) *Tracker {
	if log == nil {
		log = zap.NewNop()
	}
	return &Tracker{
		client: client,
		log:    log,
		notify: notify,
		poll:   pollInterval,
		grace:  successGrace,
		active: make(map[string]context.CancelFunc),
	}
}

// Search runs a single remote search round-trip. Failures are classified
// so callers can distinguish throttling from everything else.
func (t *Tracker) Search(ctx context.Context, query string) ([]models.CrawlResult, error) {
	results, err := t.client.SearchRemote(ctx, query)
	if err != nil {
		return nil, classifySearchErr(err)
	}
	return results, nil
}

// Active reports whether an import for the item key is in progress
func (t *Tracker) Active(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.active[key]
	return ok
}

// Start submits an import for the item and begins polling its status.
// The item's URL is the dedup key: if an import for it is already
// active, the call is a no-op.
func (t *Tracker) Start(item models.CrawlResult) {
	key := item.URL
	if key == "" {
		t.emit(Event{Key: key, Kind: EventFailed, Err: errors.New("item has no url")})
		return
	}

	jobCtx, cancel := context.WithCancel(context.Background())
	t.mu.Lock()
	if _, busy := t.active[key]; busy {
		t.mu.Unlock()
		cancel()
		return
	}
	t.active[key] = cancel
	t.mu.Unlock()

	t.emit(Event{Key: key, Kind: EventProgress, Percent: 0})

	go t.run(jobCtx, key, item)
}

func (t *Tracker) run(ctx context.Context, key string, item models.CrawlResult) {
	jobID, err := t.client.StartImport(ctx, models.ImportRequest{
		Title:  item.Title,
		Author: item.Author,
		Latest: item.Latest,
		URL:    item.URL,
	})
	if err != nil {
		t.clear(key)
		t.emit(Event{Key: key, Kind: EventFailed, Err: err})
		return
	}

	ticker := time.NewTicker(t.poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			t.clear(key)
			t.emit(Event{Key: key, Kind: EventCleared})
			return
		case <-ticker.C:
		}

		job, err := t.client.GetImportStatus(ctx, jobID)
		if err != nil {
			// A missed poll is not terminal; try again next tick.
			t.log.Warn("import status poll failed",
				zap.String("job", jobID), zap.Error(err))
			continue
		}

		switch job.Status {
		case models.JobSuccess:
			t.clear(key)
			t.emit(Event{Key: key, Kind: EventSuccess, Percent: 100, BookID: job.BookID})
			select {
			case <-time.After(t.grace):
				t.emit(Event{Key: key, Kind: EventCleared})
			case <-ctx.Done():
			}
			return
		case models.JobError:
			t.clear(key)
			msg := job.Error
			if msg == "" {
				msg = "import failed"
			}
			t.emit(Event{Key: key, Kind: EventFailed, Err: errors.New(msg)})
			return
		default:
			t.emit(Event{Key: key, Kind: EventProgress, Percent: job.Percent()})
		}
	}
}

// Cancel stops tracking one item. The job itself keeps running on the
// server; only the local polling stops.
func (t *Tracker) Cancel(key string) {
	t.mu.Lock()
	cancel, ok := t.active[key]
	if ok {
		delete(t.active, key)
	}
	t.mu.Unlock()
	if ok {
		cancel()
	}
}

// CancelAll stops tracking every active item. Called when the surface
// that initiated the imports goes away.
func (t *Tracker) CancelAll() {
	t.mu.Lock()
	cancels := make([]context.CancelFunc, 0, len(t.active))
	for key, cancel := range t.active {
		cancels = append(cancels, cancel)
		delete(t.active, key)
	}
	t.mu.Unlock()
	for _, cancel := range cancels {
		cancel()
	}
}

func (t *Tracker) clear(key string) {
	t.mu.Lock()
	delete(t.active, key)
	t.mu.Unlock()
}

func (t *Tracker) emit(ev Event) {
	if t.notify != nil {
		t.notify(ev)
	}
}
