package auditlinesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Auditline HTTP API client.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Ingest represents one processed log upload.
type Ingest struct {
	ID         string `json:"id"`
	Source     string `json:"source,omitempty"`
	ActorID    string `json:"actor_id"`
	LineCount  int    `json:"line_count"`
	EntryCount int    `json:"entry_count"`
	ErrorCount int    `json:"error_count"`
	CreatedAt  string `json:"created_at"`
}

// Entry represents one parsed log entry.
type Entry struct {
	ID        string         `json:"id"`
	Title     string         `json:"title"`
	Category  string         `json:"category"`
	Status    string         `json:"status"`
	CreatedAt string         `json:"createdAt"`
	Owner     string         `json:"owner"`
	Payload   map[string]any `json:"payload"`
	Action    Action         `json:"action"`
}

// Action represents resolved action metadata.
type Action struct {
	Code     string `json:"code"`
	Name     string `json:"name"`
	Category string `json:"category"`
	Color    string `json:"color"`
}

// ParseError is a rejected input line.
type ParseError struct {
	Line    int    `json:"line"`
	Message string `json:"message"`
	Raw     string `json:"raw,omitempty"`
}

// Issue is one validation finding.
type Issue struct {
	InstructionID         string   `json:"instructionId"`
	ActionCode            string   `json:"actionCode"`
	Category              string   `json:"category"`
	Severity              string   `json:"severity"`
	Code                  string   `json:"code"`
	Message               string   `json:"message"`
	Detail                string   `json:"detail,omitempty"`
	RelatedInstructionIDs []string `json:"relatedInstructionIds,omitempty"`
}

// Result aggregates one instruction's findings.
type Result struct {
	InstructionID string  `json:"instructionId"`
	ActionCode    string  `json:"actionCode"`
	Title         string  `json:"title"`
	Category      string  `json:"category"`
	Issues        []Issue `json:"issues"`
	ErrorCount    int     `json:"errorCount"`
	WarningCount  int     `json:"warningCount"`
}

// Report is a full validation report.
type Report struct {
	Results []Result `json:"results"`
	Totals  struct {
		InstructionCount int `json:"instructionCount"`
		AffectedCount    int `json:"affectedCount"`
		ErrorCount       int `json:"errorCount"`
		WarningCount     int `json:"warningCount"`
	} `json:"totals"`
	CategorySummaries []struct {
		Category         string `json:"category"`
		InstructionCount int    `json:"instructionCount"`
		AffectedCount    int    `json:"affectedCount"`
		ErrorCount       int    `json:"errorCount"`
		WarningCount     int    `json:"warningCount"`
	} `json:"categorySummaries"`
	GeneratedAt string `json:"generatedAt"`
}

// IngestRun is the full response of a log submission.
type IngestRun struct {
	Ingest  Ingest       `json:"ingest"`
	Entries []Entry      `json:"entries"`
	Errors  []ParseError `json:"errors"`
	Report  Report       `json:"report"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// SubmitLog ingests and validates a raw JSON Lines log.
func (c *Client) SubmitLog(ctx context.Context, content, source string) (IngestRun, error) {
	body := map[string]any{
		"content": content,
		"source":  source,
	}
	var resp IngestRun
	err := c.do(ctx, http.MethodPost, "v0/ingests", body, &resp)
	return resp, err
}

// Ingests lists recent ingests.
func (c *Client) Ingests(ctx context.Context, limit int) ([]Ingest, error) {
	endpoint := "v0/ingests"
	if limit > 0 {
		endpoint = fmt.Sprintf("%s?limit=%d", endpoint, limit)
	}
	var resp []Ingest
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// GetReport fetches the validation report for an ingest.
func (c *Client) GetReport(ctx context.Context, ingestID string) (Report, error) {
	var resp Report
	endpoint := fmt.Sprintf("v0/ingests/%s/report", url.PathEscape(ingestID))
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// Entries lists the parsed entries of an ingest.
func (c *Client) Entries(ctx context.Context, ingestID string) ([]Entry, error) {
	var resp []Entry
	endpoint := fmt.Sprintf("v0/ingests/%s/entries", url.PathEscape(ingestID))
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// ResolveAction resolves an action code to its metadata.
func (c *Client) ResolveAction(ctx context.Context, code string) (Action, error) {
	var resp Action
	endpoint := fmt.Sprintf("v0/actions/%s", url.PathEscape(code))
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
