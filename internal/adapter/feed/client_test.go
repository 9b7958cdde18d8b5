package feed

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/couchcryptid/lake-forcing-etl/internal/domain"
	"github.com/couchcryptid/lake-forcing-etl/internal/observability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	contentTypeJSON   = "application/json"
	headerContentType = "Content-Type"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testClient(baseURL string) *Client {
	return NewClient(baseURL, 5*time.Second, observability.NewMetricsForTesting(), discardLogger())
}

func jsonServer(t *testing.T, body string, check func(r *http.Request)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if check != nil {
			check(r)
		}
		w.Header().Set(headerContentType, contentTypeJSON)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func day(d int) time.Time {
	return time.Date(2022, 1, d, 0, 0, 0, 0, time.UTC)
}

func TestClient_Fetch_Success(t *testing.T) {
	srv := jsonServer(t, `[
		{"ID":"4","TmStamp":"2022-01-22 00:00:00","AirTemp_1":"1.5","AirTemp_2":"1.9"},
		{"ID":"4","TmStamp":"2022-01-22 00:10:00","AirTemp_1":"1.6","AirTemp_2":null}
	]`, func(r *http.Request) {
		assert.Equal(t, "/report/nasa-tb", r.URL.Path)
		assert.Equal(t, "4", r.URL.Query().Get("id"))
		assert.Equal(t, "20220122", r.URL.Query().Get("rptdate"))
		assert.Equal(t, "20220123", r.URL.Query().Get("rptend"))
	})

	end := day(23)
	samples, err := testClient(srv.URL).Fetch(context.Background(), Query{Endpoint: Buoy, StationID: 4, Start: day(22), End: &end})
	require.NoError(t, err)
	require.Len(t, samples, 2)

	ts, err := samples[1].Time()
	require.NoError(t, err)
	assert.Equal(t, time.Date(2022, 1, 22, 0, 10, 0, 0, time.UTC), ts)

	v, err := samples[0].Float("AirTemp_2")
	require.NoError(t, err)
	assert.Equal(t, 1.9, v)

	_, ok, err := samples[1].OptionalFloat("AirTemp_2")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestClient_Fetch_OmitsEndDate(t *testing.T) {
	srv := jsonServer(t, `[{"TmStamp":"2022-01-22 00:00:00"}]`, func(r *http.Request) {
		assert.False(t, r.URL.Query().Has("rptend"))
	})

	_, err := testClient(srv.URL).Fetch(context.Background(), Query{Endpoint: USCG, StationID: 1, Start: day(22)})
	require.NoError(t, err)
}

func TestClient_Fetch_InvalidStation(t *testing.T) {
	called := false
	srv := jsonServer(t, `[]`, func(*http.Request) { called = true })
	c := testClient(srv.URL)

	for _, q := range []Query{
		{Endpoint: USCG, StationID: 2},
		{Endpoint: Buoy, StationID: 0},
		{Endpoint: Buoy, StationID: 5},
		{Endpoint: Nearshore, StationID: 10},
	} {
		_, err := c.Fetch(context.Background(), q)
		assert.ErrorIs(t, err, domain.ErrInvalidStation, "%s id %d", q.Endpoint.Name, q.StationID)
	}
	assert.False(t, called, "no request for invalid ids")
}

func TestClient_Fetch_Unavailable(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"empty array", http.StatusOK, `[]`},
		{"null", http.StatusOK, `null`},
		{"object", http.StatusOK, `{"message":"Internal server error"}`},
		{"array of scalars", http.StatusOK, `[1,2]`},
		{"malformed", http.StatusOK, `[{"TmStamp":`},
		{"server error", http.StatusBadGateway, `[]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			_, err := testClient(srv.URL).Fetch(context.Background(), Query{Endpoint: Nearshore, StationID: 9, Start: day(22)})
			assert.ErrorIs(t, err, domain.ErrFeedUnavailable)
		})
	}
}

func TestClient_Fetch_BreakerOpens(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	q := Query{Endpoint: USCG, StationID: 1, Start: day(22)}
	for range 10 {
		_, err := c.Fetch(context.Background(), q)
		assert.ErrorIs(t, err, domain.ErrFeedUnavailable)
	}
	// default breaker trips after more than five consecutive failures
	assert.Equal(t, 6, calls)
}

func TestQueryKey(t *testing.T) {
	end := day(23)
	a := Query{Endpoint: Buoy, StationID: 4, Start: day(22)}
	b := Query{Endpoint: Buoy, StationID: 4, Start: day(22), End: &end}
	c := Query{Endpoint: Buoy, StationID: 3, Start: day(22)}

	assert.Equal(t, "buoy|4|20220122|-", a.key())
	assert.NotEqual(t, a.key(), b.key())
	assert.NotEqual(t, a.key(), c.key())
}
