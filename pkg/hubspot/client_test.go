package hubspot

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(Config{
		APIKey:       "test-key",
		BaseURL:      server.URL,
		Timeout:      5 * time.Second,
		MaxRetries:   3,
		RetryBackoff: time.Millisecond,
	})
	require.NoError(t, err)
	return client
}

func TestNewClientRequiresAPIKey(t *testing.T) {
	t.Parallel()

	_, err := NewClient(Config{})
	require.Error(t, err)
}

func TestAllDealsFollowsCursor(t *testing.T) {
	t.Parallel()

	var gotAuth string
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("after") == "" {
			fmt.Fprint(w, `{
				"results":[{"id":"1","properties":{"dealname":"Acme","amount":"1200.50","dealstage":"qualified","pipeline":"default"}}],
				"paging":{"next":{"after":"cursor-2"}}
			}`)
			return
		}
		fmt.Fprint(w, `{
			"results":[{"id":"2","properties":{"dealname":"Globex","dealstage":"contract","pipeline":"default","closedate":"2026-03-15"},
				"associations":{"contacts":{"results":[{"id":"c1"},{"id":"c2"}]}}}]
		}`)
	})

	client := testClient(t, handler)
	deals, err := client.AllDeals(context.Background())
	require.NoError(t, err)
	require.Len(t, deals, 2)

	assert.Equal(t, "Bearer test-key", gotAuth)
	assert.Equal(t, "Acme", deals[0].Name)
	require.NotNil(t, deals[0].Amount)
	assert.InDelta(t, 1200.50, *deals[0].Amount, 1e-9)
	assert.Nil(t, deals[1].Amount)
	require.NotNil(t, deals[1].CloseDate)
	assert.Equal(t, []string{"c1", "c2"}, deals[1].ContactIDs)
}

func TestGetRetriesOnRateLimit(t *testing.T) {
	t.Parallel()

	attempts := 0
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, `{"results":[]}`)
	})

	client := testClient(t, handler)
	deals, err := client.AllDeals(context.Background())
	require.NoError(t, err)
	assert.Empty(t, deals)
	assert.Equal(t, 3, attempts)
}

func TestGetGivesUpAfterMaxRetries(t *testing.T) {
	t.Parallel()

	attempts := 0
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusBadGateway)
	})

	client := testClient(t, handler)
	_, err := client.AllDeals(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUpstreamError)
	assert.Equal(t, 4, attempts) // initial try plus three retries
}

func TestGetDoesNotRetryAuthFailure(t *testing.T) {
	t.Parallel()

	attempts := 0
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusUnauthorized)
	})

	client := testClient(t, handler)
	_, err := client.AllDeals(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.Equal(t, 1, attempts)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
	assert.Equal(t, "deals_page", apiErr.Operation)
}

func TestPipelinesParsesStageMetadata(t *testing.T) {
	t.Parallel()

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/crm/v3/pipelines/deals", r.URL.Path)
		fmt.Fprint(w, `{"results":[{
			"id":"default","label":"Sales Pipeline","displayOrder":0,
			"stages":[
				{"id":"qualified","label":"Qualified","displayOrder":0,"metadata":{"isClosed":"false","probability":"0.2"}},
				{"id":"won","label":"Closed Won","displayOrder":1,"metadata":{"isClosed":"true","probability":"1.0"}},
				{"id":"lost","label":"Closed Lost","displayOrder":2,"metadata":{"isClosed":"true","probability":"0.0"}}
			]
		}]}`)
	})

	client := testClient(t, handler)
	pipelines, err := client.Pipelines(context.Background())
	require.NoError(t, err)
	require.Len(t, pipelines, 1)

	p := pipelines[0]
	assert.Equal(t, "Sales Pipeline", p.Label)
	require.Len(t, p.Stages, 3)

	qualified, ok := p.StageByID("qualified")
	require.True(t, ok)
	assert.InDelta(t, 0.2, qualified.Probability, 1e-9)
	assert.False(t, qualified.ClosedWon)

	won, _ := p.StageByID("won")
	assert.True(t, won.ClosedWon)
	assert.False(t, won.ClosedLost)

	lost, _ := p.StageByID("lost")
	assert.True(t, lost.ClosedLost)
}

func TestGetHonorsContextCancel(t *testing.T) {
	t.Parallel()

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	client := testClient(t, handler)
	client.backoff = time.Minute

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := client.AllDeals(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestParseTimeFormats(t *testing.T) {
	t.Parallel()

	assert.Nil(t, parseTime(""))
	assert.Nil(t, parseTime("not a date"))

	got := parseTime("2026-03-15T10:00:00Z")
	require.NotNil(t, got)
	assert.Equal(t, 2026, got.Year())

	dateOnly := parseTime("2026-03-15")
	require.NotNil(t, dateOnly)
	assert.Equal(t, time.March, dateOnly.Month())
}
