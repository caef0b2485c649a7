// Package guardrails gates retrieval-augmented answers: screens incoming
// queries, checks retrieval relevance, assigns confidence tiers and verifies
// that generated responses stay grounded in their sources.
package guardrails

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"concierge/internal/kb"
	"concierge/internal/logging"
)

// Sentinel errors carried by blocked queries.
var (
	ErrInjection = errors.New("guardrail:injection")
	ErrSensitive = errors.New("guardrail:sensitive")
)

// Tier is the confidence band assigned to a retrieval outcome.
type Tier string

const (
	TierHigh   Tier = "high"
	TierMedium Tier = "medium"
	TierLow    Tier = "low"
	TierNone   Tier = "none"
)

// Thresholds are the score cut-offs between tiers.
type Thresholds struct {
	High   float64
	Medium float64
	Low    float64
}

// DefaultThresholds returns the calibrated cut-offs.
func DefaultThresholds() Thresholds {
	return Thresholds{High: 0.85, Medium: 0.70, Low: 0.50}
}

// Decision is the outcome of evaluating retrieval results for a query.
// Exactly one of ShouldAnswer and NeedsClarification can be set; when both
// are false the query is refused.
type Decision struct {
	Tier               Tier
	Answer             string
	ShouldAnswer       bool
	NeedsClarification bool // score landed in the low band, ask the user to rephrase
	Reason             string
}

// Evaluator applies the guardrail policy.
type Evaluator struct {
	thresholds Thresholds
	log        logging.Logger
}

// NewEvaluator creates an evaluator with the given thresholds.
func NewEvaluator(thresholds Thresholds) *Evaluator {
	return &Evaluator{thresholds: thresholds, log: logging.NewComponentLogger("guardrails")}
}

var injectionPhrases = []string{
	"ignore previous",
	"ignore above",
	"disregard instructions",
	"new instructions",
	"forget everything",
	"system prompt",
	"you are now",
	"pretend to be",
	"act as if",
}

var sensitiveTerms = []string{
	"password",
	"api key",
	"secret",
	"credentials",
	"internal",
	"employee",
	"salary",
	"personal data",
}

// CheckQuery screens the raw user query before any retrieval happens.
func (e *Evaluator) CheckQuery(query string) error {
	lower := strings.ToLower(query)
	for _, phrase := range injectionPhrases {
		if strings.Contains(lower, phrase) {
			e.log.Warn("query blocked, injection phrase %q", phrase)
			return fmt.Errorf("%w: %q", ErrInjection, phrase)
		}
	}
	for _, term := range sensitiveTerms {
		if strings.Contains(lower, term) {
			e.log.Warn("query blocked, sensitive term %q", term)
			return fmt.Errorf("%w: %q", ErrSensitive, term)
		}
	}
	return nil
}

var stopWords = map[string]bool{
	"a": true, "an": true, "the": true, "is": true, "are": true, "was": true,
	"were": true, "be": true, "been": true, "do": true, "does": true, "did": true,
	"can": true, "could": true, "will": true, "would": true, "should": true,
	"i": true, "you": true, "we": true, "they": true, "it": true, "my": true,
	"your": true, "me": true, "us": true, "what": true, "when": true,
	"where": true, "who": true, "how": true, "why": true, "which": true,
	"to": true, "of": true, "in": true, "on": true, "at": true, "for": true,
	"with": true, "about": true, "and": true, "or": true, "not": true,
	"please": true, "tell": true,
}

var wordPattern = regexp.MustCompile(`[a-z0-9']+`)

// IsRelevant reports whether the top retrieval result actually addresses the
// query. At least a fifth of the query's content words must appear in it.
func (e *Evaluator) IsRelevant(query string, top kb.Result) bool {
	queryWords := contentWords(query)
	if len(queryWords) == 0 {
		return true
	}
	resultWords := make(map[string]bool)
	for _, w := range contentWords(top.Content) {
		resultWords[w] = true
	}
	matched := 0
	for _, w := range queryWords {
		if resultWords[w] {
			matched++
		}
	}
	return float64(matched)/float64(len(queryWords)) >= 0.2
}

func contentWords(text string) []string {
	var words []string
	for _, w := range wordPattern.FindAllString(strings.ToLower(text), -1) {
		if !stopWords[w] {
			words = append(words, w)
		}
	}
	return words
}

// Evaluate turns retrieval results into an answer decision.
func (e *Evaluator) Evaluate(query string, results []kb.Result) Decision {
	if len(results) == 0 {
		return Decision{Tier: TierNone, Reason: "no retrieval results"}
	}
	top := results[0]
	if !e.IsRelevant(query, top) {
		e.log.Debug("top result not relevant to query, refusing")
		return Decision{Tier: TierNone, Reason: "top result not relevant"}
	}

	answer := kb.ComposeAnswer(results, e.thresholds.High, e.thresholds.Medium)
	switch {
	case top.Score >= e.thresholds.High:
		return Decision{Tier: TierHigh, Answer: answer, ShouldAnswer: true}
	case top.Score >= e.thresholds.Medium:
		return Decision{Tier: TierMedium, Answer: answer, ShouldAnswer: true}
	case top.Score >= e.thresholds.Low:
		return Decision{Tier: TierLow, NeedsClarification: true, Reason: "low retrieval confidence"}
	default:
		return Decision{Tier: TierNone, Reason: "retrieval score below floor"}
	}
}

var numberPattern = regexp.MustCompile(`\d+(?:[.,]\d+)*%?`)

// ResponseCheck is the grounding verdict for a generated response. Warnings
// list the numbers the sources don't back up; Downgrade is set when there
// are two or more, dropping the response's confidence one level. The
// response is still delivered either way.
type ResponseCheck struct {
	Warnings  []string
	Downgrade bool
}

// ValidateResponse flags numbers in a generated response that appear in no
// source document. Prices, hours and quantities should come from the
// knowledge base, not the model.
func (e *Evaluator) ValidateResponse(response string, sources []string) ResponseCheck {
	var check ResponseCheck
	numbers := numberPattern.FindAllString(response, -1)
	if len(numbers) == 0 {
		return check
	}
	joined := strings.Join(sources, "\n")
	for _, number := range numbers {
		if !strings.Contains(joined, strings.TrimSuffix(number, "%")) {
			e.log.Warn("ungrounded number %q in response", number)
			check.Warnings = append(check.Warnings, fmt.Sprintf("number %q not found in sources", number))
		}
	}
	check.Downgrade = len(check.Warnings) >= 2
	return check
}
