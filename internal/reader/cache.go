package reader

import (
	"context"

	"go.uber.org/zap"

	"github.com/shuzhai/shuzhai-t/pkg/models"
)

// RequestContent fetches the content of the chapter at index in the
// background. It returns immediately, doing nothing when there is no
// active session, the index is out of range, the chapter already has
// content, the chapter is a volume divider, or a fetch for the index is
// already in flight. At most one fetch per index is ever outstanding.
func (s *Session) RequestContent(index int) {
	s.mu.Lock()
	if s.bookID == "" || index < 0 || index >= len(s.chapters) {
		s.mu.Unlock()
		return
	}
	ch := s.chapters[index]
	if ch.HasContent() || ch.Kind() == models.KindDivider {
		s.mu.Unlock()
		return
	}
	if _, busy := s.inflight[index]; busy {
		s.mu.Unlock()
		return
	}
	s.inflight[index] = struct{}{}
	ctx := s.ctx
	gen := s.gen
	bookID := s.bookID
	number := ch.ChapterNumber
	s.mu.Unlock()

	go s.fetchContent(ctx, gen, index, bookID, number)
}

// fetchContent runs in its own goroutine. Whatever happens, the in-flight
// mark for index is cleared; on failure the placeholder is left without
// content so a later request retries.
func (s *Session) fetchContent(ctx context.Context, gen uint64, index int, bookID string, number int) {
	full, err := s.client.GetChapter(ctx, bookID, number)

	s.mu.Lock()
	if s.gen != gen {
		// The session was closed or replaced while we were fetching;
		// this result must not be merged.
		s.mu.Unlock()
		return
	}
	delete(s.inflight, index)
	if err != nil {
		s.mu.Unlock()
		s.log.Warn("chapter fetch failed",
			zap.String("book", bookID),
			zap.Int("chapter", number),
			zap.Error(err))
		s.emit(Event{Kind: EventChapterFailed, Index: index, Err: err})
		return
	}
	// Only the targeted slot changes; ordering of concurrent merges
	// does not matter.
	s.chapters[index] = full
	s.mu.Unlock()

	s.emit(Event{Kind: EventChapterLoaded, Index: index})
}

func (s *Session) emit(ev Event) {
	if s.notify != nil {
		s.notify(ev)
	}
}
