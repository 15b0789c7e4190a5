// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package retrieval

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
)

type stubEmbedder struct {
	vector  []float32
	err     error
	gotText string
}

func (e *stubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.gotText = text
	return e.vector, e.err
}

// newGraphQLServer answers every GraphQL POST with the given data payload and
// records the raw query sent by the client.
func newGraphQLServer(t *testing.T, data string, lastQuery *string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if strings.HasSuffix(r.URL.Path, "/graphql") {
			body, _ := io.ReadAll(r.Body)
			*lastQuery = string(body)
			w.Write([]byte(`{"data":` + data + `}`))
			return
		}
		w.Write([]byte(`{}`))
	}))
}

func newTestClient(t *testing.T, serverURL string) *weaviate.Client {
	t.Helper()
	parsed, err := url.Parse(serverURL)
	if err != nil {
		t.Fatal(err)
	}
	client, err := weaviate.NewClient(weaviate.Config{
		Host:   parsed.Host,
		Scheme: parsed.Scheme,
	})
	if err != nil {
		t.Fatal(err)
	}
	return client
}

const productDocsData = `{"Get":{"ProductDocs":[` +
	`{"content":"doc-one","source":"guide","_additional":{"score":"0.91"}},` +
	`{"content":"doc-two","source":"faq","_additional":{"score":"0.42"}}]}}`

// Without an embedding backend the searcher must still answer from the BM25
// arm alone instead of failing the turn.
func TestSearch_KeywordOnlyWithoutEmbedder(t *testing.T) {
	var lastQuery string
	server := newGraphQLServer(t, productDocsData, &lastQuery)
	defer server.Close()

	searcher := NewWeaviateCorpusSearcher(newTestClient(t, server.URL), nil,
		SearchConfig{})

	snippets, err := searcher.Search(context.Background(), "ProductDocs",
		"how do I reset the device", 5)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(snippets) != 2 {
		t.Fatalf("got %d snippets, want 2", len(snippets))
	}
	if snippets[0].Text != "doc-one" || snippets[0].Source != "guide" {
		t.Errorf("unexpected first snippet: %+v", snippets[0])
	}
	if strings.Contains(lastQuery, "vector") {
		t.Errorf("query carries a vector arm without an embedder: %s", lastQuery)
	}
}

func TestSearch_EmbedderFailureDegradesToKeywordOnly(t *testing.T) {
	var lastQuery string
	server := newGraphQLServer(t, productDocsData, &lastQuery)
	defer server.Close()

	embedder := &stubEmbedder{err: errors.New("embedding sidecar down")}
	searcher := NewWeaviateCorpusSearcher(newTestClient(t, server.URL), embedder,
		SearchConfig{})

	snippets, err := searcher.Search(context.Background(), "ProductDocs",
		"reset instructions", 5)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(snippets) != 2 {
		t.Errorf("got %d snippets, want 2", len(snippets))
	}
	if strings.Contains(lastQuery, "vector") {
		t.Errorf("query carries a vector arm after a failed embedding: %s", lastQuery)
	}
}

func TestSearch_TruncatesQueryBeforeEmbedding(t *testing.T) {
	var lastQuery string
	server := newGraphQLServer(t, productDocsData, &lastQuery)
	defer server.Close()

	embedder := &stubEmbedder{vector: []float32{0.1, 0.2}}
	searcher := NewWeaviateCorpusSearcher(newTestClient(t, server.URL), embedder,
		SearchConfig{MaxEmbedLength: 10})

	// Each rune is three bytes; a byte-boundary cut at 10 would split one.
	query := "突突突突突"
	if _, err := searcher.Search(context.Background(), "ProductDocs",
		query, 5); err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(embedder.gotText) > 10 {
		t.Errorf("embedded %d bytes, want <= 10", len(embedder.gotText))
	}
	if !utf8.ValidString(embedder.gotText) {
		t.Errorf("embedder received invalid UTF-8: %q", embedder.gotText)
	}
}

func TestTruncateForEmbedding(t *testing.T) {
	tests := []struct {
		name  string
		query string
		max   int
		want  string
	}{
		{"under the cap", "short query", 100, "short query"},
		{"exact cap", "abcde", 5, "abcde"},
		{"ascii cut", "abcdef", 4, "abcd"},
		{"multibyte cut backs up to the rune start", "ab突cd", 4, "ab"},
		{"multibyte kept whole", "ab突cd", 5, "ab突"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := truncateForEmbedding(tt.query, tt.max)
			if got != tt.want {
				t.Errorf("truncateForEmbedding(%q, %d) = %q, want %q",
					tt.query, tt.max, got, tt.want)
			}
			if !utf8.ValidString(got) {
				t.Errorf("result %q is not valid UTF-8", got)
			}
		})
	}
}
