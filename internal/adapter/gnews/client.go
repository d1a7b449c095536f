// Package gnews searches GNews for regional herding and conflict coverage and
// scores each article for relevance.
package gnews

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"time"

	"github.com/0verdr1v3/bovine/internal/adapter/httputil"
	"github.com/0verdr1v3/bovine/internal/domain"
)

// SourceID is the cache key of the news source.
const SourceID = "news"

// DefaultQueries are the searches run each cycle.
var DefaultQueries = []string{
	"South Sudan cattle",
	"South Sudan conflict",
	"South Sudan herders",
	"Jonglei violence",
}

const perQuery = 10

// Client implements source.Collaborator for the news category.
type Client struct {
	baseURL    string
	apiKey     string
	queries    []string
	keywords   []string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a GNews client running DefaultQueries.
func NewClient(baseURL, apiKey string, httpClient *http.Client, logger *slog.Logger) *Client {
	return &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		queries:    DefaultQueries,
		keywords:   domain.DefaultNewsKeywords,
		httpClient: httpClient,
		logger:     logger,
	}
}

func (c *Client) ID() string                { return SourceID }
func (c *Client) Category() domain.Category { return domain.CategoryNews }

// Fetch runs every query and merges the results, newest first. A query that
// fails is skipped as long as another one succeeds. Rate limiting on any
// query fails the fetch so the executor backs off.
func (c *Client) Fetch(ctx context.Context) (domain.Payload, error) {
	byID := make(map[string]domain.Article)
	var firstErr error
	succeeded := 0

	for _, q := range c.queries {
		articles, err := c.search(ctx, q)
		if err != nil {
			if errors.Is(err, domain.ErrSourceRateLimited) || ctx.Err() != nil {
				return domain.Payload{}, err
			}
			c.logger.Warn("news query failed", "source", SourceID, "query", q, "error", err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		succeeded++
		for _, a := range articles {
			byID[a.ID] = a
		}
	}
	if succeeded == 0 && firstErr != nil {
		return domain.Payload{}, firstErr
	}

	out := make([]domain.Article, 0, len(byID))
	for _, a := range byID {
		out = append(out, a)
	}
	slices.SortFunc(out, func(a, b domain.Article) int {
		if c := b.PublishedAt.Compare(a.PublishedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return domain.NewsPayload(domain.NewsData{Articles: out}), nil
}

func (c *Client) search(ctx context.Context, query string) ([]domain.Article, error) {
	params := url.Values{
		"q":      {query},
		"lang":   {"en"},
		"max":    {strconv.Itoa(perQuery)},
		"apikey": {c.apiKey},
	}
	var resp searchResponse
	if err := httputil.GetJSON(ctx, c.httpClient, c.baseURL+"?"+params.Encode(), nil, &resp); err != nil {
		return nil, fmt.Errorf("search %q: %w", query, err)
	}

	articles := make([]domain.Article, 0, len(resp.Articles))
	for _, a := range resp.Articles {
		if a.Title == "" {
			continue
		}
		relevance, hits := domain.ScoreArticle(a.Title, a.Description, c.keywords)
		// GNews may return a zero or unparseable publishedAt.
		published, _ := time.Parse(time.RFC3339, a.PublishedAt)
		articles = append(articles, domain.Article{
			ID:          articleID(a),
			Title:       a.Title,
			Summary:     a.Description,
			URL:         a.URL,
			Source:      a.Source.Name,
			PublishedAt: published.UTC(),
			Relevance:   relevance,
			Keywords:    hits,
		})
	}
	return articles, nil
}

// articleID keys an article by URL so the same story found by two queries
// upserts once.
func articleID(a article) string {
	if a.URL != "" {
		return domain.StableID("news", a.URL)
	}
	return domain.StableID("news", a.Title)
}

// GNews response types.

type searchResponse struct {
	TotalArticles int       `json:"totalArticles"`
	Articles      []article `json:"articles"`
}

type article struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	URL         string `json:"url"`
	PublishedAt string `json:"publishedAt"`
	Source      struct {
		Name string `json:"name"`
	} `json:"source"`
}
