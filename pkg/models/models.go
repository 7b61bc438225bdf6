package models

import "time"

// File format constants
const (
	FileFormatTXT      = "txt"
	FileFormatMarkdown = "md"
	FileFormatEPUB     = "epub"
	FileFormatWeb      = "web"
)

// Book represents a book in the library
type Book struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Author      string    `json:"author"`
	Description string    `json:"description,omitempty"`
	FilePath    string    `json:"file_path"`
	FileFormat  string    `json:"file_format"`
	FileSize    int64     `json:"file_size,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ChapterKind classifies a chapter entry in the table of contents
type ChapterKind int

const (
	// KindContent is a regular chapter with fetchable text
	KindContent ChapterKind = iota
	// KindDivider is a volume-divider pseudo-chapter; it has no content
	// and is never fetched
	KindDivider
)

// ChapterSummary is a metadata-only chapter record, used for cheap
// listing and prefetch planning
type ChapterSummary struct {
	ID                  string `json:"id"`
	BookID              string `json:"book_id"`
	ChapterNumber       int    `json:"chapter_number"` // 1-based global sequence
	VolumeNumber        *int   `json:"volume_number,omitempty"`
	VolumeChapterNumber *int   `json:"volume_chapter_number,omitempty"`
	Title               string `json:"title"`
	WordCount           int    `json:"word_count"`
}

// Kind reports whether the summary describes content or a volume divider.
// A volume_chapter_number of zero marks the divider page; this is the only
// place that sentinel is interpreted.
func (s ChapterSummary) Kind() ChapterKind {
	if s.VolumeChapterNumber != nil && *s.VolumeChapterNumber == 0 {
		return KindDivider
	}
	return KindContent
}

// Chapter is a summary plus optional content. Content is nil until
// fetched; divider pages carry an empty string and are never fetched.
type Chapter struct {
	ChapterSummary
	Content *string `json:"content,omitempty"`
}

// HasContent reports whether the chapter's text has been populated
func (c Chapter) HasContent() bool {
	return c.Content != nil
}

// Text returns the chapter content, or empty if not yet fetched
func (c Chapter) Text() string {
	if c.Content == nil {
		return ""
	}
	return *c.Content
}

// ReadingProgress is the persisted progress pointer for one book
type ReadingProgress struct {
	BookID             string    `json:"book_id"`
	CurrentChapter     int       `json:"current_chapter"`  // 0-based index into the full chapter list
	CurrentPosition    int       `json:"current_position"` // raw scroll offset
	ProgressPercentage float64   `json:"progress_percentage"`
	LastReadAt         time.Time `json:"last_read_at"`
}

// UpdateProgressRequest is the body of PUT /progress/:bookId
type UpdateProgressRequest struct {
	CurrentChapter     int     `json:"current_chapter"`
	CurrentPosition    int     `json:"current_position"`
	ProgressPercentage float64 `json:"progress_percentage"`
}

// CreateBookRequest is the body of POST /books
type CreateBookRequest struct {
	Title       string   `json:"title"`
	Author      string   `json:"author,omitempty"`
	Description string   `json:"description,omitempty"`
	FilePath    string   `json:"file_path"`
	FileFormat  string   `json:"file_format"`
	TagIDs      []string `json:"tag_ids,omitempty"`
}

// CrawlResult is a single ranked result from the remote search
type CrawlResult struct {
	Title  string `json:"title"`
	Author string `json:"author"`
	Latest string `json:"latest"`
	URL    string `json:"url"`
}

// ImportRequest is the body of POST /crawler/import/start
type ImportRequest struct {
	Title  string `json:"title"`
	Author string `json:"author,omitempty"`
	Latest string `json:"latest,omitempty"`
	URL    string `json:"url"`
}

// Import job states reported by the status endpoint
const (
	JobPending = "pending"
	JobRunning = "running"
	JobSuccess = "success"
	JobError   = "error"
)

// ImportJob is the server-side state of an asynchronous import
type ImportJob struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
	Total  int    `json:"total"`
	Done   int    `json:"done"`
	BookID string `json:"book_id,omitempty"`
}

// Terminal reports whether the job has finished, one way or the other
func (j ImportJob) Terminal() bool {
	return j.Status == JobSuccess || j.Status == JobError
}

// Percent returns the job's displayed progress
func (j ImportJob) Percent() int {
	if j.Total <= 0 {
		return 0
	}
	return j.Done * 100 / j.Total
}

// Envelope wraps every server response
type Envelope[T any] struct {
	Success bool   `json:"success"`
	Data    T      `json:"data"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}
