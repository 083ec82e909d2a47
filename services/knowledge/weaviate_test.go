// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package knowledge

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/weaviate/weaviate/entities/models"
)

func TestNewWeaviateLookup_RejectsBadURL(t *testing.T) {
	_, err := NewWeaviateLookup(WeaviateConfig{URL: "not a url"})
	assert.Error(t, err)
}

func TestParseHits(t *testing.T) {
	cfg := withDefaults(WeaviateConfig{})

	result := &models.GraphQLResponse{
		Data: map[string]models.JSONObject{
			"Get": map[string]interface{}{
				DefaultClassName: []interface{}{
					map[string]interface{}{"source": "resume.pdf", "content": "Led the platform team."},
					map[string]interface{}{"content": "  "},
					"garbage",
					map[string]interface{}{"content": "Speaks at meetups."},
				},
			},
		},
	}

	hits, err := parseHits(result, cfg)
	require.NoError(t, err)
	assert.Equal(t, []string{"[resume.pdf] Led the platform team.", "Speaks at meetups."}, hits)
}

func TestParseHits_EmptyAndErrors(t *testing.T) {
	cfg := withDefaults(WeaviateConfig{})

	hits, err := parseHits(nil, cfg)
	assert.NoError(t, err)
	assert.Empty(t, hits)

	hits, err = parseHits(&models.GraphQLResponse{Data: map[string]models.JSONObject{}}, cfg)
	assert.NoError(t, err)
	assert.Empty(t, hits)

	_, err = parseHits(&models.GraphQLResponse{
		Errors: []*models.GraphQLError{{Message: "no such class"}},
	}, cfg)
	assert.ErrorContains(t, err, "no such class")
}

func TestBoundQuery(t *testing.T) {
	w, err := NewWeaviateLookup(WeaviateConfig{URL: "http://localhost:8080", QueryChars: 20})
	require.NoError(t, err)

	assert.Equal(t, "short", w.boundQuery("  short  "))

	long := strings.Repeat("word ", 40)
	got := w.boundQuery(long)
	assert.LessOrEqual(t, len(got), 20)
	assert.NotEmpty(t, got)
}

func TestWeaviateLookup_Search(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Path == "/v1/meta" {
			_, _ = w.Write([]byte(`{"version":"1.35.2"}`))
			return
		}
		assert.Equal(t, "/v1/graphql", r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		var req map[string]any
		_ = json.Unmarshal(body, &req)
		gotQuery, _ = req["query"].(string)

		_, _ = w.Write([]byte(`{"data":{"Get":{"PortfolioDocument":[{"source":"bio.md","content":"Ten years of Go."}]}}}`))
	}))
	defer srv.Close()

	w, err := NewWeaviateLookup(WeaviateConfig{URL: srv.URL})
	require.NoError(t, err)

	text, found, err := w.Search(context.Background(), "How much Go experience?", "thread_1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "[bio.md] Ten years of Go.", text)
	assert.Contains(t, gotQuery, "bm25")
	assert.Contains(t, gotQuery, "PortfolioDocument")
}

func TestWeaviateLookup_BlankQuery(t *testing.T) {
	w, err := NewWeaviateLookup(WeaviateConfig{URL: "http://localhost:8080"})
	require.NoError(t, err)

	_, found, err := w.Search(context.Background(), "   ", "thread_1")
	assert.NoError(t, err)
	assert.False(t, found)
}
