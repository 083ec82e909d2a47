// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package knowledge provides KnowledgeLookup backends.
package knowledge

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/tmc/langchaingo/textsplitter"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/AleutianAI/AleutianPortfolio/pkg/extensions"
)

var tracer = otel.Tracer("aleutian.portfolio.knowledge")

// Defaults for WeaviateConfig.
const (
	DefaultClassName    = "PortfolioDocument"
	DefaultContentField = "content"
	DefaultSourceField  = "source"
	DefaultLimit        = 3
	// DefaultQueryChars bounds the query text sent to BM25.
	DefaultQueryChars = 512
)

// WeaviateConfig configures WeaviateLookup.
type WeaviateConfig struct {
	// URL is the Weaviate base URL, e.g. http://weaviate:8080.
	URL          string
	ClassName    string
	ContentField string
	SourceField  string
	Limit        int
	QueryChars   int
}

// WeaviateLookup searches a Weaviate class with BM25.
//
// # Description
//
// The message is cut to its first QueryChars-sized chunk, searched with
// BM25, and the hits are rendered as "[source] content" blocks separated by
// blank lines.
//
// # Thread Safety
//
// Safe for concurrent use.
type WeaviateLookup struct {
	client   *weaviate.Client
	config   WeaviateConfig
	splitter textsplitter.RecursiveCharacter
}

// NewWeaviateLookup connects a lookup to the Weaviate at cfg.URL.
func NewWeaviateLookup(cfg WeaviateConfig) (*WeaviateLookup, error) {
	parsed, err := url.Parse(cfg.URL)
	if err != nil || parsed.Host == "" {
		return nil, fmt.Errorf("invalid weaviate url %q", cfg.URL)
	}
	cfg = withDefaults(cfg)

	client, err := weaviate.NewClient(weaviate.Config{
		Host:   parsed.Host,
		Scheme: parsed.Scheme,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create weaviate client: %w", err)
	}
	slog.Info("Knowledge lookup enabled", "weaviate_host", parsed.Host, "class", cfg.ClassName)

	return &WeaviateLookup{
		client: client,
		config: cfg,
		splitter: textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(cfg.QueryChars),
			textsplitter.WithChunkOverlap(0),
		),
	}, nil
}

func withDefaults(cfg WeaviateConfig) WeaviateConfig {
	if cfg.ClassName == "" {
		cfg.ClassName = DefaultClassName
	}
	if cfg.ContentField == "" {
		cfg.ContentField = DefaultContentField
	}
	if cfg.SourceField == "" {
		cfg.SourceField = DefaultSourceField
	}
	if cfg.Limit <= 0 {
		cfg.Limit = DefaultLimit
	}
	if cfg.QueryChars <= 0 {
		cfg.QueryChars = DefaultQueryChars
	}
	return cfg
}

// Search implements extensions.KnowledgeLookup.
func (w *WeaviateLookup) Search(ctx context.Context, query, conversationID string) (string, bool, error) {
	ctx, span := tracer.Start(ctx, "WeaviateLookup.Search")
	defer span.End()
	span.SetAttributes(
		attribute.String("conversation.id", conversationID),
		attribute.String("weaviate.class", w.config.ClassName),
	)

	q := w.boundQuery(query)
	if q == "" {
		return "", false, nil
	}

	result, err := w.client.GraphQL().Get().
		WithClassName(w.config.ClassName).
		WithFields(
			graphql.Field{Name: w.config.SourceField},
			graphql.Field{Name: w.config.ContentField},
		).
		WithBM25(w.client.GraphQL().Bm25ArgBuilder().WithQuery(q)).
		WithLimit(w.config.Limit).
		Do(ctx)
	if err != nil {
		span.RecordError(err)
		return "", false, fmt.Errorf("knowledge search failed: %w", err)
	}

	hits, err := parseHits(result, w.config)
	if err != nil {
		span.RecordError(err)
		return "", false, err
	}
	span.SetAttributes(attribute.Int("knowledge.hits", len(hits)))
	if len(hits) == 0 {
		return "", false, nil
	}
	return strings.Join(hits, "\n\n"), true, nil
}

// boundQuery keeps the first chunk of the message.
func (w *WeaviateLookup) boundQuery(query string) string {
	query = strings.TrimSpace(query)
	if len(query) <= w.config.QueryChars {
		return query
	}
	chunks, err := w.splitter.SplitText(query)
	if err != nil || len(chunks) == 0 {
		return query[:w.config.QueryChars]
	}
	return chunks[0]
}

// parseHits renders the objects of a Get response.
func parseHits(result *models.GraphQLResponse, cfg WeaviateConfig) ([]string, error) {
	if result == nil {
		return nil, nil
	}
	if len(result.Errors) > 0 {
		return nil, fmt.Errorf("knowledge search error: %s", result.Errors[0].Message)
	}

	data, ok := result.Data["Get"].(map[string]interface{})
	if !ok {
		return nil, nil
	}
	objects, ok := data[cfg.ClassName].([]interface{})
	if !ok {
		return nil, nil
	}

	hits := make([]string, 0, len(objects))
	for _, obj := range objects {
		m, ok := obj.(map[string]interface{})
		if !ok {
			continue
		}
		content := strings.TrimSpace(getString(m, cfg.ContentField))
		if content == "" {
			continue
		}
		if source := getString(m, cfg.SourceField); source != "" {
			content = "[" + source + "] " + content
		}
		hits = append(hits, content)
	}
	return hits, nil
}

func getString(m map[string]interface{}, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

var _ extensions.KnowledgeLookup = (*WeaviateLookup)(nil)
