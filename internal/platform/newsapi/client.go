// Package newsapi fetches headlines from a NewsAPI-compatible endpoint for
// the news classifier.
package newsapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/knoxfield/regimebot/internal/domain"
)

// DefaultBaseURL is the hosted NewsAPI v2 endpoint.
const DefaultBaseURL = "https://newsapi.org/v2"

// DefaultQuery covers the macro and crypto topics the keyword tables know
// about.
const DefaultQuery = `bitcoin OR crypto OR "federal reserve" OR inflation OR "interest rate"`

// Client is a REST client for the NewsAPI "everything" endpoint.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a news client. An empty baseURL uses the hosted API.
func NewClient(baseURL, apiKey string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// article is one entry of the NewsAPI response.
type article struct {
	Source struct {
		Name string `json:"name"`
	} `json:"source"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	URL         string    `json:"url"`
	PublishedAt time.Time `json:"publishedAt"`
}

// newsResponse is the NewsAPI response envelope.
type newsResponse struct {
	Status   string    `json:"status"`
	Code     string    `json:"code"`
	Message  string    `json:"message"`
	Articles []article `json:"articles"`
}

// FetchHeadlines returns up to pageSize headlines published since the given
// time, newest first. The article URL doubles as the stable item ID the
// classifier dedups on.
func (c *Client) FetchHeadlines(ctx context.Context, query string, since time.Time, pageSize int) ([]domain.NewsItem, error) {
	if query == "" {
		query = DefaultQuery
	}
	if pageSize <= 0 {
		pageSize = 50
	}

	params := url.Values{}
	params.Set("q", query)
	params.Set("language", "en")
	params.Set("sortBy", "publishedAt")
	params.Set("pageSize", strconv.Itoa(pageSize))
	if !since.IsZero() {
		params.Set("from", since.UTC().Format(time.RFC3339))
	}

	fullURL := c.baseURL + "/everything?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("newsapi: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-Api-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("newsapi: http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("newsapi: read response: %w", err)
	}

	var decoded newsResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, fmt.Errorf("newsapi: decode response: %w", err)
	}
	if decoded.Status != "ok" {
		return nil, fmt.Errorf("newsapi: API error %s: %s", decoded.Code, decoded.Message)
	}

	items := make([]domain.NewsItem, 0, len(decoded.Articles))
	for _, a := range decoded.Articles {
		if a.Title == "" || a.URL == "" {
			continue
		}
		items = append(items, domain.NewsItem{
			ID:          a.URL,
			Title:       a.Title,
			Description: a.Description,
			Source:      a.Source.Name,
			PublishedAt: a.PublishedAt.UTC(),
		})
	}
	return items, nil
}
