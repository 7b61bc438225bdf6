package crawler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shuzhai/shuzhai-t/internal/api"
	"github.com/shuzhai/shuzhai-t/pkg/models"
)

// crawlServer is a fake crawler backend whose import job walks through a
// scripted sequence of states
type crawlServer struct {
	t *testing.T

	mu         sync.Mutex
	searchErr  string
	results    []models.CrawlResult
	states     []models.ImportJob
	stateIdx   int
	startCalls int

	srv *httptest.Server
}

func newCrawlServer(t *testing.T) *crawlServer {
	cs := &crawlServer{t: t}
	cs.srv = httptest.NewServer(http.HandlerFunc(cs.handle))
	t.Cleanup(cs.srv.Close)
	return cs
}

func (cs *crawlServer) client() *api.Client {
	return api.NewClient(cs.srv.URL)
}

func (cs *crawlServer) handle(w http.ResponseWriter, r *http.Request) {
	write := func(data interface{}) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"success": true,
			"data":    data,
		})
	}

	switch r.URL.Path {
	case "/crawler/search":
		cs.mu.Lock()
		errMsg := cs.searchErr
		results := cs.results
		cs.mu.Unlock()
		if errMsg != "" {
			w.WriteHeader(http.StatusInternalServerError)
			json.NewEncoder(w).Encode(map[string]interface{}{
				"success": false,
				"error":   errMsg,
			})
			return
		}
		write(results)

	case "/crawler/import/start":
		cs.mu.Lock()
		cs.startCalls++
		cs.mu.Unlock()
		write(map[string]string{"job_id": "job-1"})

	case "/crawler/import/status":
		cs.mu.Lock()
		job := cs.states[cs.stateIdx]
		if cs.stateIdx < len(cs.states)-1 {
			cs.stateIdx++
		}
		cs.mu.Unlock()
		write(job)

	default:
		cs.t.Errorf("unexpected path %s", r.URL.Path)
	}
}

func newTestTracker(cs *crawlServer, events chan Event) *Tracker {
	tr := NewTracker(cs.client(), nil, func(ev Event) { events <- ev })
	tr.poll = 10 * time.Millisecond
	tr.grace = 40 * time.Millisecond
	return tr
}

func collectUntil(t *testing.T, events chan Event, kind EventKind) []Event {
	t.Helper()
	var got []Event
	deadline := time.After(3 * time.Second)
	for {
		select {
		case ev := <-events:
			got = append(got, ev)
			if ev.Kind == kind {
				return got
			}
		case <-deadline:
			t.Fatalf("timed out waiting for event kind %d, got %v", kind, got)
		}
	}
}

func TestImportLifecycle(t *testing.T) {
	cs := newCrawlServer(t)
	cs.states = []models.ImportJob{
		{ID: "job-1", Status: models.JobPending},
		{ID: "job-1", Status: models.JobRunning, Done: 5, Total: 10},
		{ID: "job-1", Status: models.JobSuccess, Done: 10, Total: 10, BookID: "b-new"},
	}

	events := make(chan Event, 32)
	tr := newTestTracker(cs, events)
	item := models.CrawlResult{Title: "A Novel", URL: "https://example.com/n/1"}

	tr.Start(item)
	got := collectUntil(t, events, EventSuccess)

	// First event is the immediate zero-progress mark.
	assert.Equal(t, EventProgress, got[0].Kind)
	assert.Equal(t, 0, got[0].Percent)

	success := got[len(got)-1]
	assert.Equal(t, 100, success.Percent)
	assert.Equal(t, "b-new", success.BookID)
	assert.Equal(t, item.URL, success.Key)

	// A 50% progress event came through while the job ran.
	var sawHalf bool
	for _, ev := range got {
		if ev.Kind == EventProgress && ev.Percent == 50 {
			sawHalf = true
		}
	}
	assert.True(t, sawHalf, "running state should surface its percentage")

	// After the grace period the display is cleared; polling stopped.
	cleared := collectUntil(t, events, EventCleared)
	assert.Equal(t, EventCleared, cleared[len(cleared)-1].Kind)
	assert.False(t, tr.Active(item.URL))
}

func TestImportErrorStopsPolling(t *testing.T) {
	cs := newCrawlServer(t)
	cs.states = []models.ImportJob{
		{ID: "job-1", Status: models.JobRunning, Done: 1, Total: 10},
		{ID: "job-1", Status: models.JobError, Error: "source page vanished"},
	}

	events := make(chan Event, 32)
	tr := newTestTracker(cs, events)
	tr.Start(models.CrawlResult{Title: "A Novel", URL: "https://example.com/n/2"})

	got := collectUntil(t, events, EventFailed)
	failed := got[len(got)-1]
	require.Error(t, failed.Err)
	assert.Equal(t, "source page vanished", failed.Err.Error())
	assert.False(t, tr.Active("https://example.com/n/2"))

	// No more polls after the terminal state.
	cs.mu.Lock()
	polls := cs.stateIdx
	cs.mu.Unlock()
	time.Sleep(60 * time.Millisecond)
	cs.mu.Lock()
	assert.Equal(t, polls, cs.stateIdx)
	cs.mu.Unlock()
}

func TestImportErrorWithoutMessage(t *testing.T) {
	cs := newCrawlServer(t)
	cs.states = []models.ImportJob{
		{ID: "job-1", Status: models.JobError},
	}

	events := make(chan Event, 32)
	tr := newTestTracker(cs, events)
	tr.Start(models.CrawlResult{URL: "https://example.com/n/3"})

	got := collectUntil(t, events, EventFailed)
	assert.Equal(t, "import failed", got[len(got)-1].Err.Error())
}

func TestStartDeduplicatesByURL(t *testing.T) {
	cs := newCrawlServer(t)
	cs.states = []models.ImportJob{
		{ID: "job-1", Status: models.JobRunning, Done: 1, Total: 100},
	}

	events := make(chan Event, 64)
	tr := newTestTracker(cs, events)
	defer tr.CancelAll()

	item := models.CrawlResult{Title: "A Novel", URL: "https://example.com/n/4"}
	tr.Start(item)
	require.True(t, tr.Active(item.URL))
	tr.Start(item)
	tr.Start(item)

	time.Sleep(50 * time.Millisecond)
	cs.mu.Lock()
	starts := cs.startCalls
	cs.mu.Unlock()
	assert.Equal(t, 1, starts, "one import per URL")
}

func TestStartRejectsEmptyURL(t *testing.T) {
	cs := newCrawlServer(t)
	events := make(chan Event, 8)
	tr := newTestTracker(cs, events)

	tr.Start(models.CrawlResult{Title: "No URL"})
	got := collectUntil(t, events, EventFailed)
	require.Error(t, got[len(got)-1].Err)

	cs.mu.Lock()
	assert.Equal(t, 0, cs.startCalls)
	cs.mu.Unlock()
}

func TestCancelStopsTracking(t *testing.T) {
	cs := newCrawlServer(t)
	cs.states = []models.ImportJob{
		{ID: "job-1", Status: models.JobRunning, Done: 1, Total: 100},
	}

	events := make(chan Event, 64)
	tr := newTestTracker(cs, events)

	item := models.CrawlResult{URL: "https://example.com/n/5"}
	tr.Start(item)
	require.True(t, tr.Active(item.URL))

	tr.Cancel(item.URL)
	collectUntil(t, events, EventCleared)
	assert.False(t, tr.Active(item.URL))
}

func TestSearchClassifiesRateLimits(t *testing.T) {
	cases := []struct {
		name    string
		errMsg  string
		limited bool
	}{
		{"chinese quota phrase", "一分钟只提供10次搜索机会", true},
		{"chinese frequency phrase", "搜索过于频繁，请稍后再试", true},
		{"traditional variant", "為防止惡意搜尋，請稍候", true},
		{"status code marker", "upstream returned 429", true},
		{"english too many", "Too Many Requests", true},
		{"plain failure", "crawler backend exploded", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cs := newCrawlServer(t)
			cs.searchErr = tc.errMsg

			tr := NewTracker(cs.client(), nil, nil)
			_, err := tr.Search(context.Background(), "query")
			require.Error(t, err)
			assert.Equal(t, tc.limited, IsRateLimited(err),
				"classification for %q", tc.errMsg)
		})
	}
}

func TestSearchPassesResultsThrough(t *testing.T) {
	cs := newCrawlServer(t)
	cs.results = []models.CrawlResult{
		{Title: "First", Author: "A", URL: "https://example.com/n/10"},
		{Title: "Second", Author: "B", URL: "https://example.com/n/11"},
	}

	tr := NewTracker(cs.client(), nil, nil)
	results, err := tr.Search(context.Background(), "first")
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "First", results[0].Title)
}
