package gen

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func candidateBody(text string) string {
	b, _ := json.Marshal(map[string]any{
		"candidates": []map[string]any{
			{"content": map[string]any{"parts": []map[string]any{{"text": text}}}},
		},
	})
	return string(b)
}

func testClient(srv *httptest.Server) *Client {
	c := NewClient("key", "test-model")
	c.BaseURL = srv.URL
	return c
}

func TestGenerate_NoKey(t *testing.T) {
	c := NewClient("", "model")
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := c.KindSuggestion(ctx, nil); err == nil {
		t.Fatalf("expected error with missing key")
	}
}

func TestGenerate_HTTPFailures(t *testing.T) {
	cases := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"status_non_2xx", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(500); _, _ = w.Write([]byte("oops")) }},
		{"bad_json", func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte("not-json")) }},
		{"empty_candidates", func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte(`{"candidates":[]}`)) }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(tc.handler)
			defer srv.Close()
			_, err := testClient(srv).WateringTip(context.Background(), "weed the garden")
			require.Error(t, err)
		})
	}
}

func TestBreakdown_ParsesSteps(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Contains(t, req, "generationConfig")
		_, _ = w.Write([]byte(candidateBody(`{"steps":["Open the doc","Write one line","Celebrate"]}`)))
	}))
	defer srv.Close()

	steps, err := testClient(srv).Breakdown(context.Background(), "Write report")
	require.NoError(t, err)
	assert.Equal(t, []string{"Open the doc", "Write one line", "Celebrate"}, steps)
}

func TestCategorize_ParsesEnums(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(candidateBody(`{"zone":"work","energy":"high"}`)))
	}))
	defer srv.Close()

	zone, energy, err := testClient(srv).Categorize(context.Background(), "Prepare slides")
	require.NoError(t, err)
	assert.Equal(t, "work", zone)
	assert.Equal(t, "high", energy)
}

func TestKindSuggestion_ReturnsText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(candidateBody("  Start with the smallest one. \n")))
	}))
	defer srv.Close()

	text, err := testClient(srv).KindSuggestion(context.Background(), []string{"water plants"})
	require.NoError(t, err)
	assert.Equal(t, "Start with the smallest one.", text)
}
