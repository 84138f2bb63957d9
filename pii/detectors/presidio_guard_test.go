package pii

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPresidioGuard_Detect(t *testing.T) {
	var received map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/analyze", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[
			{"entity_type":"PERSON","start":8,"end":18,"score":0.85},
			{"entity_type":"EMAIL_ADDRESS","start":22,"end":38,"score":1.0}
		]`))
	}))
	defer server.Close()

	guard, err := NewPresidioGuard(Options{
		"base_url":        server.URL,
		"language":        "de",
		"score_threshold": 0.4,
	})
	require.NoError(t, err)

	res, err := guard.Detect(context.Background(), contactText)
	require.NoError(t, err)

	require.Len(t, res.Matches, 2)
	assert.Equal(t, "John Smith", res.Matches[0].Value)
	assert.Equal(t, 0.85, res.Matches[0].Confidence)
	assert.Equal(t, PIITypeEmail, res.Matches[1].Type)
	assert.Equal(t, "presidio", res.ModelUsed)

	assert.Equal(t, contactText, received["text"])
	assert.Equal(t, "de", received["language"])
	assert.Equal(t, 0.4, received["score_threshold"])
}

func TestPresidioGuard_Detect_ServiceError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	guard, err := NewPresidioGuard(Options{"base_url": server.URL})
	require.NoError(t, err)

	_, err = guard.Detect(context.Background(), contactText)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
}

func TestPresidioGuard_Detect_EmptyResult(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	}))
	defer server.Close()

	guard, err := NewPresidioGuard(Options{"base_url": server.URL})
	require.NoError(t, err)

	res, err := guard.Detect(context.Background(), "nothing to see here")
	require.NoError(t, err)
	assert.NotNil(t, res.Matches)
	assert.Empty(t, res.Matches)
}
