package models

import (
	"bytes"
	"encoding/json"
)

// CategoryResults maps a clothing category to its matched products. Keys keep
// the order in which they were first inserted and a key, once present, is
// never replaced.
type CategoryResults struct {
	labels []string
	items  map[string][]MatchCandidate
}

// NewCategoryResults returns an empty result set.
func NewCategoryResults() *CategoryResults {
	return &CategoryResults{items: make(map[string][]MatchCandidate)}
}

// InsertIfAbsent stores candidates under label unless the label is already
// present or candidates is empty. It reports whether the set changed.
func (r *CategoryResults) InsertIfAbsent(label string, candidates []MatchCandidate) bool {
	if len(candidates) == 0 {
		return false
	}
	if _, ok := r.items[label]; ok {
		return false
	}
	r.labels = append(r.labels, label)
	r.items[label] = append([]MatchCandidate(nil), candidates...)
	return true
}

// Has reports whether label already has results.
func (r *CategoryResults) Has(label string) bool {
	_, ok := r.items[label]
	return ok
}

// Get returns the candidates stored for label.
func (r *CategoryResults) Get(label string) []MatchCandidate {
	return r.items[label]
}

// Labels returns categories in insertion order.
func (r *CategoryResults) Labels() []string {
	return append([]string(nil), r.labels...)
}

// Len returns the number of categories.
func (r *CategoryResults) Len() int {
	return len(r.labels)
}

// IsEmpty reports whether no category produced matches.
func (r *CategoryResults) IsEmpty() bool {
	return len(r.labels) == 0
}

// MarshalJSON writes {"label": [product, ...], ...} in insertion order. An
// empty set is written as {}.
func (r *CategoryResults) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, label := range r.labels {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(label)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')

		products := make([]Product, 0, len(r.items[label]))
		for _, c := range r.items[label] {
			products = append(products, c.Product)
		}
		value, err := json.Marshal(products)
		if err != nil {
			return nil, err
		}
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// SearchOutcome is what the pipeline hands back to the transport layer.
type SearchOutcome struct {
	Results           *CategoryResults
	RegionsDetected   int
	RegionsSearched   int
	SearchFailures    int
	ProcessingTimeSec float64
}

// NoMatches is the informational "no relevant items detected or matched" signal.
func (o *SearchOutcome) NoMatches() bool {
	return o.Results == nil || o.Results.IsEmpty()
}
