package repository

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAlpacaRepository(t *testing.T) {
	barCalls := atomic.Int32{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasSuffix(r.URL.Path, "/stocks/bars"):
			barCalls.Add(1)
			require.Equal(t, "AAPL", r.URL.Query().Get("symbols"))
			require.Equal(t, "iex", r.URL.Query().Get("feed"))
			json.NewEncoder(w).Encode(map[string]any{
				"bars": map[string]any{
					"AAPL": []map[string]any{
						{"t": "2024-03-04T05:00:00Z", "o": 176.1, "h": 176.9, "l": 173.8, "c": 175.1, "v": 81510101, "n": 1000, "vw": 175.2},
						{"t": "2024-03-05T05:00:00Z", "o": 170.8, "h": 172.0, "l": 169.6, "c": 170.1, "v": 95132355, "n": 1200, "vw": 170.6},
					},
				},
				"next_page_token": nil,
			})
		case strings.HasSuffix(r.URL.Path, "/news"):
			json.NewEncoder(w).Encode(map[string]any{
				"news": []map[string]any{
					{
						"id":         1,
						"headline":   "Apple cuts prices in China",
						"summary":    "discounts",
						"source":     "benzinga",
						"url":        "https://example.com/1",
						"created_at": "2024-03-04T13:00:00Z",
						"updated_at": "2024-03-04T13:00:00Z",
						"symbols":    []string{"AAPL"},
					},
				},
				"next_page_token": nil,
			})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	ctx := context.Background()
	repo := NewAlpacaRepository("key", "secret", server.URL)
	require.Equal(t, "alpaca", repo.Name())

	day := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)
	bar, err := repo.GetPriceData(ctx, "AAPL", day)
	require.NoError(t, err)
	require.NotNil(t, bar)
	require.Equal(t, 170.1, bar.Close)
	require.Equal(t, int64(95132355), bar.Volume)
	require.Equal(t, 170.6, bar.Indicators["vwap"])
	require.True(t, bar.Date.Equal(day))

	bar, err = repo.GetPriceData(ctx, "AAPL", day.AddDate(0, 0, -1))
	require.NoError(t, err)
	require.Equal(t, 175.1, bar.Close)

	bar, err = repo.GetPriceData(ctx, "AAPL", day.AddDate(0, 0, 3))
	require.NoError(t, err)
	require.Nil(t, bar)
	require.Equal(t, int32(1), barCalls.Load())

	news, err := repo.GetNews(ctx, "AAPL", day.AddDate(0, 0, -7), day)
	require.NoError(t, err)
	require.Len(t, news, 1)
	require.Equal(t, "Apple cuts prices in China", news[0].Headline)
	require.Equal(t, "alpaca", news[0].Source)

	_, err = repo.GetFundamentals(ctx, "AAPL", day)
	require.ErrorIs(t, err, ErrNotSupported)
}
