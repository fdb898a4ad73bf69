package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/moov-data/internal/common/logger"
	"github.com/moov-data/pkg/star/models"
)

const (
	searchPath = "/api/records/1.0/search/"
	UserAgent  = "moov-data/1.0"
)

// Query is one records search against a dataset.
type Query struct {
	Dataset string
	// Refine restricts results server-side, facet name to value.
	Refine map[string]string
	Facets []string
	// Sort follows the API convention: a bare field sorts descending,
	// a "-" prefix sorts ascending.
	Sort     string
	Rows     int
	Timezone string
}

// Fetcher returns the records matching a query. An empty result means no
// data is available right now; it is never an error.
type Fetcher interface {
	Fetch(ctx context.Context, q Query) []models.Record
}

type Client struct {
	baseURL string
	client  *http.Client
	timeout time.Duration
	logger  logger.Logger
}

func NewClient(baseURL string, timeout time.Duration, logger logger.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     30 * time.Second,
			},
		},
		timeout: timeout,
		logger:  logger,
	}
}

// URL renders the search URL for q.
func (c *Client) URL(q Query) string {
	params := url.Values{}
	params.Set("dataset", q.Dataset)
	params.Set("q", "")
	for _, facet := range q.Facets {
		params.Add("facet", facet)
	}
	keys := make([]string, 0, len(q.Refine))
	for k := range q.Refine {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		params.Set("refine."+k, q.Refine[k])
	}
	if q.Sort != "" {
		params.Set("sort", q.Sort)
	}
	if q.Rows > 0 {
		params.Set("rows", strconv.Itoa(q.Rows))
	}
	if q.Timezone != "" {
		params.Set("timezone", q.Timezone)
	}
	return c.baseURL + searchPath + "?" + params.Encode()
}

// Fetch runs a single attempt of q. Failures are logged and yield nil.
func (c *Client) Fetch(ctx context.Context, q Query) []models.Record {
	records, err := c.fetch(ctx, q)
	if err != nil {
		c.logger.Warn("Feed fetch failed, treating as no data", "dataset", q.Dataset, "error", err)
		return nil
	}
	if len(records) == 0 {
		c.logger.Debug("Feed returned no records", "dataset", q.Dataset, "refine", q.Refine)
	}
	return records
}

func (c *Client) fetch(ctx context.Context, q Query) ([]models.Record, error) {
	var result models.SearchResponse
	if err := c.getJSON(ctx, c.URL(q), &result); err != nil {
		return nil, err
	}
	return result.Records, nil
}

// getJSON runs one GET against endpoint and decodes the body into out.
func (c *Client) getJSON(ctx context.Context, endpoint string, out interface{}) error {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", UserAgent)
	req.Header.Set("Accept", "application/json")

	c.logger.Debug("Fetching", "url", endpoint)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("executing request to %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("API returned status %d: %s", resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
