package hubspot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	defaultBaseURL   = "https://api.hubapi.com"
	defaultPageSize  = 100
	maxResponseBytes = 8 << 20
)

type Config struct {
	APIKey       string        `envconfig:"API_KEY" split_words:"true" required:"true"`
	BaseURL      string        `envconfig:"BASE_URL" split_words:"true" default:"https://api.hubapi.com"`
	Timeout      time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"30s"`
	MaxRetries   int           `envconfig:"MAX_RETRIES" split_words:"true" default:"3"`
	RetryBackoff time.Duration `envconfig:"RETRY_BACKOFF" split_words:"true" default:"500ms"`
}

// Client talks to the HubSpot CRM v3 REST API with bearer auth, cursor
// pagination, and bounded retry on transient failures.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	maxRetries int
	backoff    time.Duration
}

func NewClient(cfg Config) (*Client, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errors.New("hubspot api key is required")
	}

	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("invalid hubspot base url: %w", err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	retries := cfg.MaxRetries
	if retries <= 0 {
		retries = 3
	}
	backoff := cfg.RetryBackoff
	if backoff <= 0 {
		backoff = 500 * time.Millisecond
	}

	return &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
		maxRetries: retries,
		backoff:    backoff,
	}, nil
}

func MustNew(cfg Config) *Client {
	client, err := NewClient(cfg)
	if err != nil {
		panic(err)
	}
	return client
}

/* -------------------------------- deals --------------------------------- */

var defaultDealProperties = []string{
	"dealname", "amount", "dealstage", "pipeline", "closedate",
	"createdate", "hs_lastmodifieddate", "hubspot_owner_id", "industry",
}

// AllDeals fetches every deal, following paging.next.after cursors.
func (c *Client) AllDeals(ctx context.Context) ([]Deal, error) {
	var deals []Deal
	after := ""
	for {
		page, next, err := c.DealsPage(ctx, after, defaultPageSize)
		if err != nil {
			return nil, err
		}
		deals = append(deals, page...)
		if next == "" {
			break
		}
		after = next
		log.Debug().Int("fetched", len(deals)).Msg("hubspot: fetching next deals page")
	}
	return deals, nil
}

// DealsPage fetches a single page of deals and returns the next cursor.
func (c *Client) DealsPage(ctx context.Context, after string, limit int) ([]Deal, string, error) {
	if limit <= 0 {
		limit = defaultPageSize
	}
	params := url.Values{}
	params.Set("limit", strconv.Itoa(limit))
	params.Set("properties", strings.Join(defaultDealProperties, ","))
	params.Set("associations", "contacts,companies")
	if after != "" {
		params.Set("after", after)
	}

	var resp pagedResponse
	if err := c.get(ctx, "deals_page", "/crm/v3/objects/deals", params, &resp); err != nil {
		return nil, "", err
	}

	deals := make([]Deal, 0, len(resp.Results))
	for _, env := range resp.Results {
		deals = append(deals, parseDeal(env))
	}
	next := ""
	if resp.Paging != nil && resp.Paging.Next != nil {
		next = resp.Paging.Next.After
	}
	return deals, next, nil
}

func parseDeal(env objectEnvelope) Deal {
	props := env.Properties
	deal := Deal{
		ID:               env.ID,
		Name:             props["dealname"],
		Stage:            props["dealstage"],
		Pipeline:         props["pipeline"],
		OwnerID:          props["hubspot_owner_id"],
		Industry:         props["industry"],
		CreateDate:       parseTime(props["createdate"]),
		LastModifiedDate: parseTime(props["hs_lastmodifieddate"]),
		CloseDate:        parseTime(props["closedate"]),
	}
	if raw := strings.TrimSpace(props["amount"]); raw != "" {
		if v, err := strconv.ParseFloat(raw, 64); err == nil {
			deal.Amount = &v
		}
	}
	deal.ContactIDs = associationIDs(env, "contacts")
	deal.CompanyIDs = associationIDs(env, "companies")
	return deal
}

func associationIDs(env objectEnvelope, kind string) []string {
	list, ok := env.Associations[kind]
	if !ok || len(list.Results) == 0 {
		return nil
	}
	ids := make([]string, 0, len(list.Results))
	for _, ref := range list.Results {
		if ref.ID != "" {
			ids = append(ids, ref.ID)
		}
	}
	return ids
}

/* ------------------------------- pipelines ------------------------------ */

// Pipelines fetches all deal pipelines with per-stage probability metadata.
func (c *Client) Pipelines(ctx context.Context) ([]Pipeline, error) {
	var resp pipelinesResponse
	if err := c.get(ctx, "pipelines", "/crm/v3/pipelines/deals", nil, &resp); err != nil {
		return nil, err
	}

	pipelines := make([]Pipeline, 0, len(resp.Results))
	for _, env := range resp.Results {
		p := Pipeline{
			ID:           env.ID,
			Label:        env.Label,
			DisplayOrder: env.DisplayOrder,
		}
		for _, st := range env.Stages {
			isClosed := strings.EqualFold(st.Metadata.IsClosed, "true")
			probability, err := strconv.ParseFloat(st.Metadata.Probability, 64)
			if err != nil {
				probability = 0
			}
			p.Stages = append(p.Stages, PipelineStage{
				ID:           st.ID,
				Label:        st.Label,
				DisplayOrder: st.DisplayOrder,
				Probability:  probability,
				ClosedWon:    isClosed && probability == 1.0,
				ClosedLost:   isClosed && probability == 0.0,
			})
		}
		pipelines = append(pipelines, p)
	}
	return pipelines, nil
}

/* ------------------------------- contacts ------------------------------- */

var defaultContactProperties = []string{
	"email", "createdate", "lastmodifieddate", "lifecyclestage",
	"company_size", "industry",
}

func (c *Client) AllContacts(ctx context.Context) ([]Contact, error) {
	var contacts []Contact
	after := ""
	for {
		params := url.Values{}
		params.Set("limit", strconv.Itoa(defaultPageSize))
		params.Set("properties", strings.Join(defaultContactProperties, ","))
		if after != "" {
			params.Set("after", after)
		}

		var resp pagedResponse
		if err := c.get(ctx, "contacts_page", "/crm/v3/objects/contacts", params, &resp); err != nil {
			return nil, err
		}
		for _, env := range resp.Results {
			props := env.Properties
			contacts = append(contacts, Contact{
				ID:               env.ID,
				Email:            props["email"],
				LifecycleStage:   props["lifecyclestage"],
				CompanySize:      props["company_size"],
				Industry:         props["industry"],
				CreateDate:       parseTime(props["createdate"]),
				LastModifiedDate: parseTime(props["lastmodifieddate"]),
			})
		}
		if resp.Paging == nil || resp.Paging.Next == nil || resp.Paging.Next.After == "" {
			return contacts, nil
		}
		after = resp.Paging.Next.After
	}
}

/* ------------------------------ engagements ----------------------------- */

func (c *Client) AllEngagements(ctx context.Context) ([]Engagement, error) {
	var engagements []Engagement
	after := ""
	for {
		params := url.Values{}
		params.Set("limit", strconv.Itoa(defaultPageSize))
		params.Set("properties", "hs_engagement_type,hs_timestamp,hubspot_owner_id")
		if after != "" {
			params.Set("after", after)
		}

		var resp pagedResponse
		if err := c.get(ctx, "engagements_page", "/crm/v3/objects/engagements", params, &resp); err != nil {
			return nil, err
		}
		for _, env := range resp.Results {
			props := env.Properties
			engagements = append(engagements, Engagement{
				ID:        env.ID,
				Type:      props["hs_engagement_type"],
				Timestamp: parseTime(props["hs_timestamp"]),
				OwnerID:   props["hubspot_owner_id"],
			})
		}
		if resp.Paging == nil || resp.Paging.Next == nil || resp.Paging.Next.After == "" {
			return engagements, nil
		}
		after = resp.Paging.Next.After
	}
}

/* ------------------------------- transport ------------------------------ */

func (c *Client) get(ctx context.Context, operation, path string, params url.Values, out any) error {
	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			if err := sleepContext(ctx, c.retryDelay(attempt, lastErr)); err != nil {
				return err
			}
			log.Warn().Str("operation", operation).Int("attempt", attempt).
				Err(lastErr).Msg("hubspot: retrying request")
		}

		lastErr = c.doOnce(ctx, operation, u, out)
		if lastErr == nil {
			return nil
		}
		if !retryable(lastErr) {
			return lastErr
		}
	}
	return lastErr
}

func (c *Client) doOnce(ctx context.Context, operation, u string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return &APIError{Sentinel: ErrUnavailable, Operation: operation, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &APIError{Sentinel: ErrUnavailable, Operation: operation, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return &APIError{Sentinel: ErrBadResponse, Operation: operation, Err: err}
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		apiErr := &APIError{
			Sentinel:  sentinelForStatus(resp.StatusCode),
			Operation: operation,
			Status:    resp.StatusCode,
			Body:      excerptBody(raw),
		}
		if resp.StatusCode == http.StatusTooManyRequests {
			apiErr.Err = retryAfterHint(resp.Header)
		}
		return apiErr
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return &APIError{Sentinel: ErrBadResponse, Operation: operation, Err: err}
	}
	return nil
}

// retryDelay doubles per attempt; a 429 Retry-After hint wins when larger.
func (c *Client) retryDelay(attempt int, lastErr error) time.Duration {
	delay := c.backoff << (attempt - 1)
	var apiErr *APIError
	if errors.As(lastErr, &apiErr) && apiErr.Err != nil {
		var hint retryAfter
		if errors.As(apiErr.Err, &hint) && time.Duration(hint) > delay {
			delay = time.Duration(hint)
		}
	}
	return delay
}

type retryAfter time.Duration

func (r retryAfter) Error() string {
	return fmt.Sprintf("retry after %s", time.Duration(r))
}

func retryAfterHint(h http.Header) error {
	raw := strings.TrimSpace(h.Get("Retry-After"))
	if raw == "" {
		return nil
	}
	if secs, err := strconv.Atoi(raw); err == nil && secs > 0 {
		return retryAfter(time.Duration(secs) * time.Second)
	}
	return nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func excerptBody(raw []byte) string {
	const max = 256
	s := strings.TrimSpace(string(raw))
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}

func parseTime(raw string) *time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, raw); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}
