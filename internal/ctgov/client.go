// Package ctgov is the outbound client for the study registry API.
//
// It performs paginated fetches with retry/backoff and validates that
// every returned study carries a usable identifier before handing it to
// the rest of the system. Callers receive either schema-conforming
// studies (with their verbatim JSON attached) or a terminal error.
package ctgov

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
)

// ErrStudyNotFound is returned when the registry has no study with the
// requested identifier.
var ErrStudyNotFound = errors.New("ctgov: study not found")

const defaultPageSize = 100

// Client talks to the registry's JSON API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *logrus.Logger
	retry      RetryConfig
}

// NewClient creates a registry client. baseURL is the API root without
// a trailing slash, e.g. https://clinicaltrials.gov/api/v2.
func NewClient(baseURL string, logger *logrus.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		logger: logger,
		retry:  DefaultRetryConfig(),
	}
}

// Search fetches one page of studies matching params.
func (c *Client) Search(ctx context.Context, params SearchParams) (*SearchResponse, error) {
	var resp *SearchResponse
	err := c.withRetry(ctx, "search", func() error {
		var err error
		resp, err = c.searchOnce(ctx, params)
		return err
	})
	return resp, err
}

// SearchAll fetches every page of studies matching params, invoking fn
// once per page. Paging stops when the registry stops returning a
// nextPageToken or fn returns an error. Each call restarts from the
// first page; there is no mid-stream resumption.
func (c *Client) SearchAll(ctx context.Context, params SearchParams, fn func(batch []Study) error) error {
	for {
		page, err := c.Search(ctx, params)
		if err != nil {
			return err
		}
		if len(page.Studies) > 0 {
			if err := fn(page.Studies); err != nil {
				return err
			}
		}
		if page.NextPageToken == "" {
			return nil
		}
		params.PageToken = page.NextPageToken
	}
}

// GetStudy fetches a single study by its NCT identifier. Returns
// ErrStudyNotFound if the registry has no such study.
func (c *Client) GetStudy(ctx context.Context, nctID string) (*Study, error) {
	var study *Study
	err := c.withRetry(ctx, "get_study", func() error {
		var err error
		study, err = c.getStudyOnce(ctx, nctID)
		return err
	})
	return study, err
}

func (c *Client) searchOnce(ctx context.Context, params SearchParams) (*SearchResponse, error) {
	q := url.Values{}
	if params.Condition != "" {
		q.Set("query.cond", params.Condition)
	}
	if params.Terms != "" {
		q.Set("query.term", params.Terms)
	}
	if params.Location != "" {
		q.Set("query.locn", params.Location)
	}
	if params.Status != "" {
		q.Set("filter.overallStatus", params.Status)
	}
	pageSize := params.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	q.Set("pageSize", strconv.Itoa(pageSize))
	q.Set("countTotal", "true")
	if params.PageToken != "" {
		q.Set("pageToken", params.PageToken)
	}

	body, err := c.get(ctx, "/studies?"+q.Encode())
	if err != nil {
		return nil, err
	}

	var wire wireSearchResponse
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, fmt.Errorf("decoding search response: %w", err)
	}

	resp := &SearchResponse{
		NextPageToken: wire.NextPageToken,
		TotalCount:    wire.TotalCount,
	}
	for _, raw := range wire.Studies {
		study, err := decodeStudy(raw)
		if err != nil {
			// One malformed study invalidates the page: the caller is
			// promised schema-conforming payloads or a terminal error.
			return nil, fmt.Errorf("decoding study in search response: %w", err)
		}
		resp.Studies = append(resp.Studies, *study)
	}

	c.logger.WithFields(logrus.Fields{
		"returned": len(resp.Studies),
		"total":    resp.TotalCount,
		"has_next": resp.NextPageToken != "",
	}).Debug("Registry search page fetched")

	return resp, nil
}

func (c *Client) getStudyOnce(ctx context.Context, nctID string) (*Study, error) {
	body, err := c.get(ctx, "/studies/"+url.PathEscape(nctID))
	if err != nil {
		return nil, err
	}
	study, err := decodeStudy(body)
	if err != nil {
		return nil, fmt.Errorf("decoding study %s: %w", nctID, err)
	}
	return study, nil
}

// decodeStudy parses one study payload, validating the identifier and
// attaching the verbatim JSON.
func decodeStudy(raw json.RawMessage) (*Study, error) {
	var study Study
	if err := json.Unmarshal(raw, &study); err != nil {
		return nil, err
	}
	if study.NCTID() == "" {
		return nil, fmt.Errorf("study payload has no nctId")
	}
	study.Raw = append(json.RawMessage(nil), raw...)
	return &study, nil
}

func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("registry request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading registry response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrStudyNotFound
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, &statusError{code: resp.StatusCode, body: string(body)}
	}

	return body, nil
}

// statusError carries the HTTP status so the retry layer can decide
// whether a failure is transient.
type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	msg := e.body
	if len(msg) > 200 {
		msg = msg[:200]
	}
	return fmt.Sprintf("registry returned status %d: %s", e.code, msg)
}
