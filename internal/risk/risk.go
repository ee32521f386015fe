// Package risk implements the intake-time screen for payment attempts.
//
// Every payment attempt's free-text message is checked against a configurable
// list of risk-indicator terms (case-insensitive substring match). A match
// flags the transaction for manual review and holds its funds in escrow.
// The screen is pure and deterministic: same message, same verdict.
package risk

import "strings"

// DefaultTerms are the risk-indicator substrings used when no override is
// configured. They target the common social-engineering vocabulary.
var DefaultTerms = []string{"otp", "urgent", "refund", "click"}

// Fixed explanation text attached to flagged transactions.
const (
	FlagReason = "AI detected suspicious pattern in message"

	FlagExplanation = "The payment message contains high-risk keywords commonly associated " +
		"with social engineering attacks (OTP, urgent requests, refund scams). " +
		"The transaction has been flagged for manual review."

	FlagSemanticContext = "Payment urgency + credential request = high fraud probability"
)

// Assessment is the result of screening a single payment message.
type Assessment struct {
	Flagged         bool   `json:"flagged"`
	Reason          string `json:"reason,omitempty"`
	Explanation     string `json:"explanation,omitempty"`
	SemanticContext string `json:"semanticContext,omitempty"`
}

// Classifier screens payment messages against risk-indicator terms.
type Classifier struct {
	terms []string // stored lowercased
}

// NewClassifier creates a classifier with the given terms.
// Empty or nil terms fall back to DefaultTerms.
func NewClassifier(terms []string) *Classifier {
	if len(terms) == 0 {
		terms = DefaultTerms
	}
	lowered := make([]string, 0, len(terms))
	for _, t := range terms {
		t = strings.ToLower(strings.TrimSpace(t))
		if t != "" {
			lowered = append(lowered, t)
		}
	}
	return &Classifier{terms: lowered}
}

// Flagged reports whether the message matches any risk-indicator term.
// An empty message never matches.
func (c *Classifier) Flagged(message string) bool {
	if message == "" {
		return false
	}
	lower := strings.ToLower(message)
	for _, term := range c.terms {
		if strings.Contains(lower, term) {
			return true
		}
	}
	return false
}

// Assess screens a message and, when flagged, attaches the fixed
// explanation text shown to operators.
func (c *Classifier) Assess(message string) Assessment {
	if !c.Flagged(message) {
		return Assessment{}
	}
	return Assessment{
		Flagged:         true,
		Reason:          FlagReason,
		Explanation:     FlagExplanation,
		SemanticContext: FlagSemanticContext,
	}
}
