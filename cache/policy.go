package cache

import "strings"

// Rejection reasons reported by Policy.Evaluate, used as metric labels.
const (
	RejectPersonalData  = "personal_data"
	RejectLowConfidence = "low_confidence"
	RejectTooShort      = "too_short"
)

// defaultPersonalMarkers flags queries that likely embed personal data.
// A cached answer is shared across callers, so anything personalized must
// never be stored.
var defaultPersonalMarkers = []string{
	"my name",
	"my phone",
	"my email",
	"personal",
	"private",
}

// Policy decides whether a freshly computed answer is worth caching.
// Rules are evaluated in order and the first failing rule rejects. The
// policy is intentionally conservative: a skipped cache write only costs a
// recomputation, while a wrongly cached answer can leak or go stale.
type Policy struct {
	// MinConfidence rejects answers below this generator confidence.
	MinConfidence float64 `yaml:"min_confidence" json:"min_confidence"`

	// MinQueryLength rejects queries shorter than this many characters;
	// short fragments collide semantically with unrelated future queries.
	MinQueryLength int `yaml:"min_query_length" json:"min_query_length"`

	// PersonalMarkers are substrings (matched case-insensitively) that
	// mark a query as personalized.
	PersonalMarkers []string `yaml:"personal_markers" json:"personal_markers"`
}

// DefaultPolicy returns the product-tuned policy.
func DefaultPolicy() Policy {
	return Policy{
		MinConfidence:   0.6,
		MinQueryLength:  10,
		PersonalMarkers: defaultPersonalMarkers,
	}
}

// Evaluate applies the rules in order. On rejection it returns false and
// the name of the failing rule. Pure predicate, no side effects.
func (p Policy) Evaluate(queryText string, answer Answer) (bool, string) {
	lowered := strings.ToLower(queryText)
	for _, marker := range p.PersonalMarkers {
		if strings.Contains(lowered, marker) {
			return false, RejectPersonalData
		}
	}

	if answer.Confidence < p.MinConfidence {
		return false, RejectLowConfidence
	}

	if len(strings.TrimSpace(queryText)) < p.MinQueryLength {
		return false, RejectTooShort
	}

	return true, ""
}

// ShouldCache reports whether the answer passes every rule.
func (p Policy) ShouldCache(queryText string, answer Answer) bool {
	ok, _ := p.Evaluate(queryText, answer)
	return ok
}
