package question

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/minhvu/quoterush/internal/domain"
)

const defaultTimeout = 10 * time.Second

// Client fetches questions from the generator service over HTTP.
type Client struct {
	baseURL string
	http    *http.Client
}

type ClientConfig struct {
	BaseURL string
	// HTTPClient defaults to a client with a 10s timeout.
	HTTPClient *http.Client
}

func NewClient(c ClientConfig) *Client {
	hc := c.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: defaultTimeout}
	}

	return &Client{
		baseURL: c.BaseURL,
		http:    hc,
	}
}

// Fetch requests one generated question. The response body is the
// question JSON as served by the generator.
func (c *Client) Fetch(ctx context.Context, qtype int, difficulty domain.Difficulty) (domain.Question, error) {
	u, err := url.Parse(c.baseURL + "/v1/questions")
	if err != nil {
		return domain.Question{}, fmt.Errorf("question: parse url: %w", err)
	}

	q := u.Query()
	q.Set("type", strconv.Itoa(qtype))
	q.Set("difficulty", string(difficulty))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return domain.Question{}, fmt.Errorf("question: build request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return domain.Question{}, fmt.Errorf("question: fetch type=%d difficulty=%s: %w", qtype, difficulty, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return domain.Question{}, fmt.Errorf("question: generator returned %d: %s", resp.StatusCode, body)
	}

	var out domain.Question
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return domain.Question{}, fmt.Errorf("question: decode response: %w", err)
	}

	if err := Validate(out); err != nil {
		return domain.Question{}, fmt.Errorf("question: malformed generator output: %w", err)
	}

	return out, nil
}
