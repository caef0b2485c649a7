package kb

import (
	"context"
	"sort"
	"strings"
)

// SearchOptions tune a retrieval pass.
type SearchOptions struct {
	TopK     int     // results returned after filtering (default 3)
	MinScore float64 // results below this score are dropped (default 0.5)
}

func (o SearchOptions) withDefaults() SearchOptions {
	if o.TopK <= 0 {
		o.TopK = 3
	}
	if o.MinScore <= 0 {
		o.MinScore = 0.5
	}
	return o
}

// intentPrefixes sharpen the embedding query for known question intents.
var intentPrefixes = map[string]string{
	"ask_hours":         "business hours operating hours open close",
	"ask_pricing":       "pricing cost price fees charges",
	"ask_location":      "location address directions office",
	"ask_policy":        "policy terms conditions",
	"ask_services":      "services offerings products",
	"ask_business_info": "about company business",
}

// BuildQuery constructs the retrieval query from the user's message and the
// recognized intent.
func BuildQuery(message, intent string) string {
	message = strings.TrimSpace(message)
	if prefix, ok := intentPrefixes[intent]; ok {
		return prefix + ": " + message
	}
	return message
}

// Search retrieves the best-matching chunks from one collection. The store is
// over-queried at twice TopK so that score filtering still leaves enough
// candidates.
func (s *Store) Search(ctx context.Context, collection, query string, opts SearchOptions) ([]Result, error) {
	opts = opts.withDefaults()

	raw, err := s.query(ctx, collection, query, opts.TopK*2)
	if err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(raw))
	for _, r := range raw {
		score := scoreFromSimilarity(float64(r.Similarity))
		if score < opts.MinScore {
			continue
		}
		results = append(results, Result{
			ID:       r.ID,
			Content:  r.Content,
			Score:    score,
			Source:   r.Metadata["source"],
			Category: r.Metadata["category"],
		})
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if len(results) > opts.TopK {
		results = results[:opts.TopK]
	}
	return results, nil
}

// SearchAll retrieves across every collection and merges by score.
func (s *Store) SearchAll(ctx context.Context, query string, opts SearchOptions) ([]Result, error) {
	opts = opts.withDefaults()

	var merged []Result
	for _, collection := range s.Collections() {
		results, err := s.Search(ctx, collection, query, opts)
		if err != nil {
			s.log.Warn("search %s failed: %v", collection, err)
			continue
		}
		merged = append(merged, results...)
	}
	sort.SliceStable(merged, func(i, j int) bool { return merged[i].Score > merged[j].Score })
	if len(merged) > opts.TopK {
		merged = merged[:opts.TopK]
	}
	return merged, nil
}

// scoreFromSimilarity maps cosine similarity in [-1, 1] onto [0, 1], the
// same scale the guardrail thresholds are calibrated against.
func scoreFromSimilarity(similarity float64) float64 {
	score := (1 + similarity) / 2
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

// ComposeAnswer builds the reply text from ranked results. The top result is
// used verbatim when it stands alone or clears the high bar; a strong second
// result is appended unless it only repeats the first.
func ComposeAnswer(results []Result, highThreshold, mediumThreshold float64) string {
	if len(results) == 0 {
		return ""
	}
	top := strings.TrimSpace(results[0].Content)
	if len(results) == 1 || results[0].Score > highThreshold {
		return top
	}
	second := strings.TrimSpace(results[1].Content)
	if results[1].Score > mediumThreshold && !strings.Contains(top, second) {
		return top + "\n\n" + second
	}
	return top
}
