package reader

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shuzhai/shuzhai-t/internal/api"
	"github.com/shuzhai/shuzhai-t/pkg/models"
)

// bookServer is a fake Shuzhai server for one book
type bookServer struct {
	t *testing.T

	mu           sync.Mutex
	summaries    []models.ChapterSummary
	progress     models.ReadingProgress
	progressErr  bool
	failChapters bool
	gate         chan struct{} // when set, chapter fetches block on it
	chapterCalls map[int]int
	updates      []models.UpdateProgressRequest

	srv *httptest.Server
}

func newBookServer(t *testing.T) *bookServer {
	bs := &bookServer{t: t, chapterCalls: make(map[int]int)}
	bs.srv = httptest.NewServer(http.HandlerFunc(bs.handle))
	t.Cleanup(bs.srv.Close)
	return bs
}

func (bs *bookServer) client() *api.Client {
	return api.NewClient(bs.srv.URL)
}

func (bs *bookServer) handle(w http.ResponseWriter, r *http.Request) {
	write := func(data interface{}) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"success": true,
			"data":    data,
		})
	}
	fail := func(status int, msg string) {
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"success": false,
			"error":   msg,
		})
	}

	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	switch {
	case parts[0] == "books" && len(parts) == 3 && parts[2] == "chapters":
		bs.mu.Lock()
		summaries := bs.summaries
		bs.mu.Unlock()
		write(summaries)

	case parts[0] == "books" && len(parts) == 4 && parts[2] == "chapters":
		number, err := strconv.Atoi(parts[3])
		require.NoError(bs.t, err)

		bs.mu.Lock()
		bs.chapterCalls[number]++
		failing := bs.failChapters
		gate := bs.gate
		var sum models.ChapterSummary
		for _, s := range bs.summaries {
			if s.ChapterNumber == number {
				sum = s
			}
		}
		bs.mu.Unlock()

		if gate != nil {
			<-gate
		}
		if failing {
			fail(http.StatusInternalServerError, "chapter store unavailable")
			return
		}
		content := fmt.Sprintf("content-%d", number)
		write(models.Chapter{ChapterSummary: sum, Content: &content})

	case parts[0] == "books" && len(parts) == 3 && parts[2] == "content":
		bs.mu.Lock()
		chapters := make([]models.Chapter, len(bs.summaries))
		for i, s := range bs.summaries {
			content := fmt.Sprintf("full-%d", s.ChapterNumber)
			chapters[i] = models.Chapter{ChapterSummary: s, Content: &content}
		}
		bs.mu.Unlock()
		write(chapters)

	case parts[0] == "progress" && r.Method == http.MethodGet:
		bs.mu.Lock()
		progressErr := bs.progressErr
		progress := bs.progress
		bs.mu.Unlock()
		if progressErr {
			fail(http.StatusNotFound, "no progress")
			return
		}
		write(progress)

	case parts[0] == "progress" && r.Method == http.MethodPut:
		var req models.UpdateProgressRequest
		require.NoError(bs.t, json.NewDecoder(r.Body).Decode(&req))
		bs.mu.Lock()
		bs.updates = append(bs.updates, req)
		bs.progress = models.ReadingProgress{
			BookID:             parts[1],
			CurrentChapter:     req.CurrentChapter,
			CurrentPosition:    req.CurrentPosition,
			ProgressPercentage: req.ProgressPercentage,
		}
		progress := bs.progress
		bs.mu.Unlock()
		write(progress)

	default:
		fail(http.StatusNotFound, "unknown path "+r.URL.Path)
	}
}

func (bs *bookServer) calledChapters() []int {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	var numbers []int
	for n := range bs.chapterCalls {
		numbers = append(numbers, n)
	}
	return numbers
}

func (bs *bookServer) callsFor(number int) int {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	return bs.chapterCalls[number]
}

// contentSummaries builds n plain content chapters numbered 1..n
func contentSummaries(n int) []models.ChapterSummary {
	summaries := make([]models.ChapterSummary, n)
	for i := range summaries {
		vcn := i + 1
		summaries[i] = models.ChapterSummary{
			ID:                  fmt.Sprintf("ch-%d", i+1),
			BookID:              "b1",
			ChapterNumber:       i + 1,
			VolumeChapterNumber: &vcn,
			Title:               fmt.Sprintf("Chapter %d", i+1),
		}
	}
	return summaries
}

// withDividers marks the given 1-based chapter numbers as volume dividers
func withDividers(summaries []models.ChapterSummary, numbers ...int) []models.ChapterSummary {
	zero := 0
	for _, n := range numbers {
		summaries[n-1].VolumeChapterNumber = &zero
		summaries[n-1].Title = fmt.Sprintf("Volume at %d", n)
	}
	return summaries
}

func TestOpenPrefetchesLeadingWindow(t *testing.T) {
	bs := newBookServer(t)
	bs.summaries = contentSummaries(25)

	s := NewSession(bs.client(), nil, nil)
	require.NoError(t, s.Open(context.Background(), "b1"))
	defer s.Close()

	assert.ElementsMatch(t, []int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}, bs.calledChapters())
	for i := 0; i < 10; i++ {
		ch, ok := s.ChapterAt(i)
		require.True(t, ok)
		assert.True(t, ch.HasContent(), "chapter %d should be prefetched", i)
	}
	ch, _ := s.ChapterAt(10)
	assert.False(t, ch.HasContent())
}

func TestOpenPrefetchIncludesResumeChapter(t *testing.T) {
	bs := newBookServer(t)
	bs.summaries = contentSummaries(25)
	bs.progress = models.ReadingProgress{BookID: "b1", CurrentChapter: 16}

	s := NewSession(bs.client(), nil, nil)
	require.NoError(t, s.Open(context.Background(), "b1"))
	defer s.Close()

	assert.ElementsMatch(t, []int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 17}, bs.calledChapters())
	assert.Equal(t, 16, s.Current())
	ch, _ := s.ChapterAt(16)
	assert.True(t, ch.HasContent())
}

func TestOpenPrefetchSkipsDividers(t *testing.T) {
	bs := newBookServer(t)
	bs.summaries = withDividers(contentSummaries(15), 1, 6)

	s := NewSession(bs.client(), nil, nil)
	require.NoError(t, s.Open(context.Background(), "b1"))
	defer s.Close()

	// First ten content chapters, dividers passed over.
	assert.ElementsMatch(t, []int{2, 3, 4, 5, 7, 8, 9, 10, 11, 12}, bs.calledChapters())
}

func TestOpenDoesNotPrefetchDividerResume(t *testing.T) {
	bs := newBookServer(t)
	bs.summaries = withDividers(contentSummaries(20), 15)
	bs.progress = models.ReadingProgress{BookID: "b1", CurrentChapter: 14}

	s := NewSession(bs.client(), nil, nil)
	require.NoError(t, s.Open(context.Background(), "b1"))
	defer s.Close()

	assert.NotContains(t, bs.calledChapters(), 15)
}

func TestOpenClampsStoredChapter(t *testing.T) {
	bs := newBookServer(t)
	bs.summaries = contentSummaries(30)
	bs.progress = models.ReadingProgress{BookID: "b1", CurrentChapter: 999}

	s := NewSession(bs.client(), nil, nil)
	require.NoError(t, s.Open(context.Background(), "b1"))
	assert.Equal(t, 29, s.Current())
	s.Close()

	bs.mu.Lock()
	bs.progress.CurrentChapter = -5
	bs.mu.Unlock()
	require.NoError(t, s.Open(context.Background(), "b1"))
	assert.Equal(t, 0, s.Current())
	s.Close()
}

func TestOpenFallsBackToFullContent(t *testing.T) {
	// Legacy book: the chapters listing is empty but the content
	// endpoint serves the whole text.
	bs := newBookServer(t)
	full := contentSummaries(3)
	bs.srv.Config.Handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/chapters") {
			json.NewEncoder(w).Encode(map[string]interface{}{
				"success": true, "data": []models.ChapterSummary{},
			})
			return
		}
		bs.mu.Lock()
		bs.summaries = full
		bs.mu.Unlock()
		bs.handle(w, r)
	})

	s := NewSession(bs.client(), nil, nil)
	require.NoError(t, s.Open(context.Background(), "b1"))
	defer s.Close()

	assert.Equal(t, 3, s.Len())
	ch, ok := s.ChapterAt(0)
	require.True(t, ok)
	assert.True(t, ch.HasContent())
	assert.Equal(t, "full-1", ch.Text())
}

func TestOpenToleratesMissingProgress(t *testing.T) {
	bs := newBookServer(t)
	bs.summaries = contentSummaries(5)
	bs.progressErr = true

	s := NewSession(bs.client(), nil, nil)
	require.NoError(t, s.Open(context.Background(), "b1"))
	defer s.Close()

	assert.Equal(t, 0, s.Current())
	assert.True(t, s.Active())
}

func TestCloseResetsEverything(t *testing.T) {
	bs := newBookServer(t)
	bs.summaries = contentSummaries(5)

	s := NewSession(bs.client(), nil, nil)
	require.NoError(t, s.Open(context.Background(), "b1"))
	s.Close()

	assert.False(t, s.Active())
	assert.Equal(t, 0, s.Len())
	assert.Equal(t, "", s.BookID())
	_, ok := s.ChapterAt(0)
	assert.False(t, ok)
}

func TestNavigationBoundaries(t *testing.T) {
	bs := newBookServer(t)
	bs.summaries = contentSummaries(3)

	s := NewSession(bs.client(), nil, nil)
	require.NoError(t, s.Open(context.Background(), "b1"))
	defer s.Close()

	assert.False(t, s.Previous(), "previous at first chapter is a no-op")
	assert.True(t, s.Next())
	assert.True(t, s.Next())
	assert.Equal(t, 2, s.Current())
	assert.False(t, s.Next(), "next at last chapter is a no-op")
	assert.Equal(t, 2, s.Current())
}

func TestSetCurrentClamps(t *testing.T) {
	bs := newBookServer(t)
	bs.summaries = contentSummaries(4)

	s := NewSession(bs.client(), nil, nil)
	require.NoError(t, s.Open(context.Background(), "b1"))
	defer s.Close()

	s.SetCurrent(100)
	assert.Equal(t, 3, s.Current())
	s.SetCurrent(-1)
	assert.Equal(t, 0, s.Current())
}

func TestDisplayPositionSkipsDividers(t *testing.T) {
	bs := newBookServer(t)
	bs.summaries = withDividers(contentSummaries(5), 1, 4)

	s := NewSession(bs.client(), nil, nil)
	require.NoError(t, s.Open(context.Background(), "b1"))
	defer s.Close()

	// Layout: D C C D C — three content chapters.
	idx, total := s.DisplayPosition(2)
	assert.Equal(t, 1, idx)
	assert.Equal(t, 3, total)

	idx, total = s.DisplayPosition(4)
	assert.Equal(t, 2, idx)
	assert.Equal(t, 3, total)
}
