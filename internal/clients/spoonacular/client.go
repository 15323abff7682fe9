package spoonacular

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/feastline/feastline-backend/internal/platform/envutil"
	"github.com/feastline/feastline-backend/internal/platform/httpx"
	"github.com/feastline/feastline-backend/internal/platform/logger"
)

// Client is the recipe catalog collaborator: ranked search plus full detail
// lookup by id.
type Client interface {
	Search(ctx context.Context, filters SearchFilters) (*SearchResult, error)
	GetRecipe(ctx context.Context, id int64) (*Recipe, error)
	GetRecipes(ctx context.Context, ids []int64) ([]*Recipe, error)
}

type SearchFilters struct {
	Query        string
	Diet         string
	Intolerances []string
	MealType     string
	MaxReadyTime int
	Number       int
}

type Ingredient struct {
	Name   string  `json:"name"`
	Amount float64 `json:"amount"`
	Unit   string  `json:"unit"`
	Aisle  string  `json:"aisle,omitempty"`
}

type Recipe struct {
	ID             int64        `json:"id"`
	Title          string       `json:"title"`
	ReadyInMinutes int          `json:"readyInMinutes"`
	Servings       int          `json:"servings"`
	Ingredients    []Ingredient `json:"extendedIngredients"`
}

// HasDetail reports whether the row carries enough information to scale
// quantities without a follow-up detail fetch.
func (r *Recipe) HasDetail() bool {
	return r != nil && r.Servings > 0 && len(r.Ingredients) > 0
}

type SearchResult struct {
	Recipes      []*Recipe `json:"results"`
	TotalResults int       `json:"totalResults"`
}

type Config struct {
	BaseURL    string
	APIKey     string
	MaxRetries int
	Timeout    time.Duration
}

func ConfigFromEnv() Config {
	return Config{
		BaseURL:    strings.TrimRight(envutil.Str("SPOONACULAR_BASE_URL", "https://api.spoonacular.com"), "/"),
		APIKey:     envutil.Str("SPOONACULAR_API_KEY", ""),
		MaxRetries: envutil.Int("SPOONACULAR_MAX_RETRIES", 3),
		Timeout:    time.Duration(envutil.Int("SPOONACULAR_TIMEOUT_SECONDS", 30)) * time.Second,
	}
}

type client struct {
	log        *logger.Logger
	cfg        Config
	httpClient *http.Client
}

func NewClient(log *logger.Logger, cfg Config) (Client, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("missing SPOONACULAR_API_KEY")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.spoonacular.com"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &client{
		log:        log.With("service", "SpoonacularClient"),
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

type httpError struct {
	StatusCode int
	Body       string
}

func (e *httpError) Error() string {
	return fmt.Sprintf("spoonacular http %d: %s", e.StatusCode, e.Body)
}

func (e *httpError) HTTPStatusCode() int {
	if e == nil {
		return 0
	}
	return e.StatusCode
}

func (c *client) doOnce(ctx context.Context, path string, query url.Values) (*http.Response, []byte, error) {
	u := c.cfg.BaseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("x-api-key", c.cfg.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, err
	}
	raw, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return resp, nil, readErr
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp, raw, &httpError{StatusCode: resp.StatusCode, Body: string(raw)}
	}
	return resp, raw, nil
}

func (c *client) get(ctx context.Context, path string, query url.Values, out any) error {
	backoff := 1 * time.Second
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		resp, raw, err := c.doOnce(ctx, path, query)
		if err == nil {
			if uErr := json.Unmarshal(raw, out); uErr != nil {
				return fmt.Errorf("spoonacular decode error: %w; raw=%s", uErr, string(raw))
			}
			return nil
		}
		if !httpx.IsRetryableError(err) || attempt == c.cfg.MaxRetries {
			return err
		}
		sleepFor := httpx.JitterSleep(httpx.RetryAfterDuration(resp, backoff, 10*time.Second))
		c.log.Warn("Spoonacular request retrying",
			"path", path,
			"attempt", attempt+1,
			"sleep", sleepFor.String(),
			"error", err.Error(),
		)
		time.Sleep(sleepFor)
		backoff *= 2
	}
	return fmt.Errorf("unreachable retry loop")
}

func (c *client) Search(ctx context.Context, filters SearchFilters) (*SearchResult, error) {
	q := url.Values{}
	if filters.Query != "" {
		q.Set("query", filters.Query)
	}
	if filters.Diet != "" {
		q.Set("diet", filters.Diet)
	}
	if len(filters.Intolerances) > 0 {
		q.Set("intolerances", strings.Join(filters.Intolerances, ","))
	}
	if filters.MealType != "" {
		q.Set("type", filters.MealType)
	}
	if filters.MaxReadyTime > 0 {
		q.Set("maxReadyTime", strconv.Itoa(filters.MaxReadyTime))
	}
	number := filters.Number
	if number <= 0 {
		number = 10
	}
	q.Set("number", strconv.Itoa(number))
	q.Set("addRecipeInformation", "true")
	q.Set("fillIngredients", "true")

	var out SearchResult
	if err := c.get(ctx, "/recipes/complexSearch", q, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *client) GetRecipe(ctx context.Context, id int64) (*Recipe, error) {
	if id <= 0 {
		return nil, fmt.Errorf("invalid recipe id %d", id)
	}
	q := url.Values{}
	q.Set("includeNutrition", "false")

	var out Recipe
	if err := c.get(ctx, fmt.Sprintf("/recipes/%d/information", id), q, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *client) GetRecipes(ctx context.Context, ids []int64) ([]*Recipe, error) {
	if len(ids) == 0 {
		return []*Recipe{}, nil
	}
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, strconv.FormatInt(id, 10))
	}
	q := url.Values{}
	q.Set("ids", strings.Join(parts, ","))

	var out []*Recipe
	if err := c.get(ctx, "/recipes/informationBulk", q, &out); err != nil {
		return nil, err
	}
	return out, nil
}
