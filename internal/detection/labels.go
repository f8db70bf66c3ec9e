package detection

import (
	"strings"
	"unicode"

	"github.com/arbovm/levenshtein"
)

// LabelSet is the closed allowlist of clothing categories, matched exactly.
type LabelSet struct {
	ordered []string
	index   map[string]struct{}
}

// NewLabelSet builds an allowlist; duplicates are dropped.
func NewLabelSet(labels []string) LabelSet {
	s := LabelSet{index: make(map[string]struct{}, len(labels))}
	for _, l := range labels {
		if _, ok := s.index[l]; ok {
			continue
		}
		s.index[l] = struct{}{}
		s.ordered = append(s.ordered, l)
	}
	return s
}

// Contains reports whether label is allowlisted. No normalization is applied.
func (s LabelSet) Contains(label string) bool {
	_, ok := s.index[label]
	return ok
}

// Labels returns the allowlist in configuration order.
func (s LabelSet) Labels() []string {
	return append([]string(nil), s.ordered...)
}

// minFuzzyKeyLength keeps short words like "skirt" from snapping to "shirt".
const minFuzzyKeyLength = 6

// LabelNormalizer maps free-form model labels ("T-Shirts", "tshirt",
// "Sweatr") onto a fixed vocabulary. Unknown labels come back lower-cased so
// the allowlist rejects them.
type LabelNormalizer struct {
	vocabulary []string
	keys       map[string]string
}

// NewLabelNormalizer creates a normalizer for the given vocabulary.
func NewLabelNormalizer(vocabulary []string) *LabelNormalizer {
	n := &LabelNormalizer{keys: make(map[string]string, len(vocabulary))}
	for _, v := range vocabulary {
		k := labelKey(v)
		if _, ok := n.keys[k]; ok {
			continue
		}
		n.keys[k] = v
		n.vocabulary = append(n.vocabulary, v)
	}
	return n
}

// Normalize returns the vocabulary entry raw refers to.
func (n *LabelNormalizer) Normalize(raw string) string {
	key := labelKey(raw)
	for _, candidate := range []string{key, strings.TrimSuffix(key, "s"), strings.TrimSuffix(key, "es")} {
		if v, ok := n.keys[candidate]; ok {
			return v
		}
	}

	if len(key) >= minFuzzyKeyLength {
		for _, v := range n.vocabulary {
			if levenshtein.Distance(key, labelKey(v)) <= 1 {
				return v
			}
		}
	}
	return strings.ToLower(strings.TrimSpace(raw))
}

func labelKey(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
