package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go-style-scout/pkg/models"
)

// SupabaseSearcher calls the match function through Supabase's PostgREST RPC
// endpoint.
type SupabaseSearcher struct {
	endpoint string
	key      string
	client   *http.Client
}

// NewSupabaseSearcher creates a searcher for the project at baseURL.
func NewSupabaseSearcher(baseURL, key, matchFunction string) *SupabaseSearcher {
	return &SupabaseSearcher{
		endpoint: strings.TrimRight(baseURL, "/") + "/rest/v1/rpc/" + matchFunction,
		key:      key,
		client:   &http.Client{Timeout: 30 * time.Second},
	}
}

type matchRequest struct {
	QueryEmbedding []float32 `json:"query_embedding"`
	MatchThreshold float64   `json:"match_threshold"`
	MatchCount     int       `json:"match_count"`
}

// Search implements Searcher.
func (s *SupabaseSearcher) Search(ctx context.Context, vector []float32, threshold float64, count int) ([]models.MatchCandidate, error) {
	payload, err := json.Marshal(matchRequest{
		QueryEmbedding: vector,
		MatchThreshold: threshold,
		MatchCount:     count,
	})
	if err != nil {
		return nil, fmt.Errorf("encode rpc payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("apikey", s.key)
	req.Header.Set("Authorization", "Bearer "+s.key)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send rpc: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("rpc failed with status %d: %s", resp.StatusCode, bytes.TrimSpace(snippet))
	}

	var rows []models.MatchCandidate
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		return nil, fmt.Errorf("decode rpc response: %w", err)
	}
	return Rank(rows, threshold, count), nil
}
