package macro

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDXYCSV(t *testing.T) {
	csv := "Symbol,Date,Time,Open,High,Low,Close,Volume\n" +
		"DX.F,2026-08-28,14:00:04,97.85,98.12,97.60,98.02,12345\n"

	point, err := parseDXYCSV(csv, time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, 98.02, point.Value)
	assert.Equal(t, time.Date(2026, 8, 28, 14, 0, 4, 0, time.UTC), point.Timestamp)
}

func TestParseDXYCSVBadTimestampFallsBack(t *testing.T) {
	now := time.Date(2026, 8, 28, 15, 0, 0, 0, time.UTC)
	csv := "Symbol,Date,Time,Open,High,Low,Close,Volume\n" +
		"DX.F,N/D,N/D,97.85,98.12,97.60,98.02,0\n"

	point, err := parseDXYCSV(csv, now)
	require.NoError(t, err)
	assert.Equal(t, 98.02, point.Value)
	assert.Equal(t, now, point.Timestamp)
}

func TestParseDXYCSVNoQuote(t *testing.T) {
	csv := "Symbol,Date,Time,Open,High,Low,Close,Volume\n" +
		"DX.F,N/D,N/D,N/D,N/D,N/D,N/D,N/D\n"

	_, err := parseDXYCSV(csv, time.Now().UTC())
	assert.Error(t, err)

	_, err = parseDXYCSV("Symbol,Date,Time\n", time.Now().UTC())
	assert.Error(t, err)
}

func TestFetchDXY(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("Symbol,Date,Time,Open,High,Low,Close,Volume\nDX.F,2026-08-28,14:00:04,97.85,98.12,97.60,98.02,0\n"))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "")
	point, err := c.FetchDXY(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 98.02, point.Value)
}

func TestFetchBTCDominance(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":{"market_cap_percentage":{"btc":54.3,"eth":17.1},"updated_at":1788012000}}`))
	}))
	defer srv.Close()

	c := NewClient("", srv.URL)
	point, err := c.FetchBTCDominance(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 54.3, point.Value)
	assert.Equal(t, time.Unix(1788012000, 0).UTC(), point.Timestamp)
}

func TestFetchBTCDominanceMissingKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":{"market_cap_percentage":{}}}`))
	}))
	defer srv.Close()

	c := NewClient("", srv.URL)
	_, err := c.FetchBTCDominance(context.Background())
	assert.Error(t, err)
}

func TestFetchHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, srv.URL)
	_, err := c.FetchDXY(context.Background())
	assert.Error(t, err)
	_, err = c.FetchBTCDominance(context.Background())
	assert.Error(t, err)
}
