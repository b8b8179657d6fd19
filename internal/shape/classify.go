package shape

import "strings"

// explanationTerms flag inputs that ask for reasoning rather than small talk.
// A hit forces the larger reply budget even when the input itself is short.
var explanationTerms = []string{
	"why", "how", "what if", "compare", "difference", "steps", "recommend",
	"explain", "should i",
	"為什麼", "为什么", "怎麼", "怎么", "如何", "比較", "比较",
	"差別", "差异", "步驟", "步骤", "推薦", "推荐", "建議", "建议", "解釋", "解释",
}

// BudgetPolicy holds the two-tier reply budget thresholds.
type BudgetPolicy struct {
	// ShortInputRunes is the rune length at or below which an input counts as
	// short, absent any complexity signal.
	ShortInputRunes int
	// ShortBudget and LongBudget are reply budgets in runes.
	ShortBudget int
	LongBudget  int
}

// DefaultBudgetPolicy mirrors the production tuning: chit-chat gets a one-liner,
// anything explanation-shaped gets room to breathe.
func DefaultBudgetPolicy() BudgetPolicy {
	return BudgetPolicy{
		ShortInputRunes: 12,
		ShortBudget:     20,
		LongBudget:      50,
	}
}

// IsComplex reports whether the input asks for an explanation: a known
// explanation-seeking keyword, a question mark, or sheer length.
func IsComplex(text string, shortInputRunes int) bool {
	lower := strings.ToLower(text)
	for _, term := range explanationTerms {
		if strings.Contains(lower, term) {
			return true
		}
	}
	if strings.ContainsAny(text, "?？") {
		return true
	}
	return len([]rune(text)) > shortInputRunes
}

// BudgetFor picks the reply budget for an input under the policy.
func (p BudgetPolicy) BudgetFor(text string) int {
	if IsComplex(text, p.ShortInputRunes) {
		return p.LongBudget
	}
	return p.ShortBudget
}
