// Package search queries the product catalog for items similar to an
// embedding. Both backends call the catalog's match function, which takes the
// query vector, a minimum similarity and a result cap.
package search

import (
	"context"
	"sort"
	"strconv"
	"strings"

	"go-style-scout/pkg/models"
)

// Searcher returns candidates with similarity >= threshold, best first, at most
// count of them.
type Searcher interface {
	Search(ctx context.Context, vector []float32, threshold float64, count int) ([]models.MatchCandidate, error)
}

// Rank enforces the Searcher contract on raw backend rows: it drops rows below
// threshold, sorts by similarity descending keeping backend order among ties,
// and truncates to count.
func Rank(rows []models.MatchCandidate, threshold float64, count int) []models.MatchCandidate {
	out := make([]models.MatchCandidate, 0, len(rows))
	for _, r := range rows {
		if r.Similarity >= threshold {
			out = append(out, r)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Similarity > out[j].Similarity
	})

	if count >= 0 && len(out) > count {
		out = out[:count]
	}
	return out
}

// VectorLiteral renders v in pgvector's text input format, e.g. "[0.1,0.2]".
func VectorLiteral(v []float32) string {
	var b strings.Builder
	b.Grow(len(v) * 12)
	b.WriteByte('[')
	for i, x := range v {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(x), 'g', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
}
