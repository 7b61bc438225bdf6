package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/shuzhai/shuzhai-t/pkg/models"
)

// ErrNotFound matches any server failure with a 404 status, via
// errors.Is.
var ErrNotFound = errors.New("not found")

const (
	defaultTimeout = 15 * time.Second
	getAttempts    = 3
	retryDelay     = 200 * time.Millisecond
)

// Error is a failure reported by the server, either as an HTTP error
// status or as a non-success response envelope.
type Error struct {
	Status  int
	Message string
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("HTTP %d", e.Status)
}

func (e *Error) Is(target error) bool {
	return target == ErrNotFound && e.Status == http.StatusNotFound
}

// Client is the HTTP client for the Shuzhai server API
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new API client. baseURL points at the API root,
// e.g. "http://localhost:8080/api".
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
	}
}

// request makes a single HTTP request to the API
func (c *Client) request(ctx context.Context, method, path string, body interface{}) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	return c.httpClient.Do(req)
}

// get issues a GET with bounded retries on transport failures. Envelope
// failures are not retried; only requests that never produced a response
// are tried again.
func (c *Client) get(ctx context.Context, path string) (*http.Response, error) {
	return retry.DoWithData(
		func() (*http.Response, error) {
			return c.request(ctx, http.MethodGet, path, nil)
		},
		retry.Context(ctx),
		retry.Attempts(getAttempts),
		retry.Delay(retryDelay),
		retry.LastErrorOnly(true),
	)
}

// parseEnvelope reads the response body and unwraps the server envelope.
// A non-success envelope or an HTTP error status becomes an *Error.
func parseEnvelope[T any](resp *http.Response) (T, error) {
	var zero T
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return zero, err
	}

	var env models.Envelope[T]
	if err := json.Unmarshal(body, &env); err != nil {
		if resp.StatusCode >= 400 {
			return zero, &Error{Status: resp.StatusCode, Message: string(body)}
		}
		return zero, err
	}

	if !env.Success {
		msg := env.Error
		if msg == "" {
			msg = env.Message
		}
		return zero, &Error{Status: resp.StatusCode, Message: msg}
	}
	return env.Data, nil
}

// Book methods

// ListBooks returns all books in the library
func (c *Client) ListBooks(ctx context.Context) ([]models.Book, error) {
	resp, err := c.get(ctx, "/books")
	if err != nil {
		return nil, err
	}
	return parseEnvelope[[]models.Book](resp)
}

// CreateBook registers a new book from a local file path
func (c *Client) CreateBook(ctx context.Context, req models.CreateBookRequest) (models.Book, error) {
	resp, err := c.request(ctx, http.MethodPost, "/books", req)
	if err != nil {
		return models.Book{}, err
	}
	return parseEnvelope[models.Book](resp)
}

// DeleteBook removes a book and its chapters
func (c *Client) DeleteBook(ctx context.Context, id string) error {
	resp, err := c.request(ctx, http.MethodDelete, "/books/"+url.PathEscape(id), nil)
	if err != nil {
		return err
	}
	_, err = parseEnvelope[json.RawMessage](resp)
	return err
}

// GetBookContent returns every chapter with content populated. Used only
// as a fallback for legacy books without per-chapter records.
func (c *Client) GetBookContent(ctx context.Context, id string) ([]models.Chapter, error) {
	resp, err := c.get(ctx, "/books/"+url.PathEscape(id)+"/content")
	if err != nil {
		return nil, err
	}
	return parseEnvelope[[]models.Chapter](resp)
}

// GetBookChapters returns metadata-only chapter summaries
func (c *Client) GetBookChapters(ctx context.Context, id string) ([]models.ChapterSummary, error) {
	resp, err := c.get(ctx, "/books/"+url.PathEscape(id)+"/chapters")
	if err != nil {
		return nil, err
	}
	return parseEnvelope[[]models.ChapterSummary](resp)
}

// GetChapter returns one chapter with content, addressed by its 1-based
// chapter number
func (c *Client) GetChapter(ctx context.Context, bookID string, number int) (models.Chapter, error) {
	resp, err := c.get(ctx, fmt.Sprintf("/books/%s/chapters/%d", url.PathEscape(bookID), number))
	if err != nil {
		return models.Chapter{}, err
	}
	return parseEnvelope[models.Chapter](resp)
}

// Progress methods

// GetProgress returns the persisted reading progress for a book
func (c *Client) GetProgress(ctx context.Context, bookID string) (models.ReadingProgress, error) {
	resp, err := c.get(ctx, "/progress/"+url.PathEscape(bookID))
	if err != nil {
		return models.ReadingProgress{}, err
	}
	return parseEnvelope[models.ReadingProgress](resp)
}

// UpdateProgress persists the progress pointer for a book
func (c *Client) UpdateProgress(ctx context.Context, bookID string, req models.UpdateProgressRequest) (models.ReadingProgress, error) {
	resp, err := c.request(ctx, http.MethodPut, "/progress/"+url.PathEscape(bookID), req)
	if err != nil {
		return models.ReadingProgress{}, err
	}
	return parseEnvelope[models.ReadingProgress](resp)
}

// Crawler methods

// SearchRemote runs a remote search and returns ranked results
func (c *Client) SearchRemote(ctx context.Context, query string) ([]models.CrawlResult, error) {
	resp, err := c.request(ctx, http.MethodPost, "/crawler/search", map[string]string{
		"query": query,
	})
	if err != nil {
		return nil, err
	}
	return parseEnvelope[[]models.CrawlResult](resp)
}

// StartImport submits an import request and returns the job identifier
func (c *Client) StartImport(ctx context.Context, req models.ImportRequest) (string, error) {
	resp, err := c.request(ctx, http.MethodPost, "/crawler/import/start", req)
	if err != nil {
		return "", err
	}
	data, err := parseEnvelope[struct {
		JobID string `json:"job_id"`
	}](resp)
	if err != nil {
		return "", err
	}
	return data.JobID, nil
}

// GetImportStatus fetches the current state of an import job
func (c *Client) GetImportStatus(ctx context.Context, jobID string) (models.ImportJob, error) {
	resp, err := c.get(ctx, "/crawler/import/status?id="+url.QueryEscape(jobID))
	if err != nil {
		return models.ImportJob{}, err
	}
	return parseEnvelope[models.ImportJob](resp)
}
