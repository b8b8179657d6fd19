// Package shape holds the deterministic post-processing applied to generated
// replies before delivery: character-budget clamping at natural sentence
// boundaries, terminal-punctuation normalization, blocked-term scrubbing, and
// the keyword-based complexity classifier that picks the budget.
//
// Everything here is rune-based. Budgets count characters the way a reader
// sees them, so mixed zh/en text is measured in runes, never bytes.
package shape

import "strings"

// minBreakOffset is the earliest rune index at which a backward scan may cut.
// Cutting earlier produces degenerate fragments ("嗯，" and the like).
const minBreakOffset = 8

// defaultTerminal is appended when a shaped reply lacks a closing mark.
const defaultTerminal = '。'

// terminalMarks end a sentence. breakMarks are acceptable cut points when a
// reply overflows its budget; terminal marks are also break marks.
var (
	terminalMarks = map[rune]bool{
		'。': true, '！': true, '？': true,
		'.': true, '!': true, '?': true,
		'…': true, '～': true,
	}
	breakMarks = map[rune]bool{
		'，': true, '、': true, '；': true, '：': true,
		',': true, ';': true, ':': true,
	}
)

func isTerminal(r rune) bool { return terminalMarks[r] }

func isBreak(r rune) bool { return terminalMarks[r] || breakMarks[r] }

// Shape clamps text to at most budget runes, cutting at the rightmost
// acceptable punctuation when one exists at or past minBreakOffset, and
// guarantees the result ends with a terminal mark.
//
// For input within budget the result may be one rune longer than budget (a
// single appended mark). For input over budget the result never exceeds
// budget. Shape is idempotent: shaping an already-shaped string returns it
// unchanged.
func Shape(text string, budget int) string {
	runes := []rune(strings.TrimSpace(text))
	if len(runes) == 0 {
		return ""
	}
	if budget <= 0 {
		budget = len(runes)
	}

	// Within budget, or exactly one over and already closed (the output of a
	// previous Shape call). Only the closing mark may be missing.
	if len(runes) <= budget || (len(runes) == budget+1 && isTerminal(runes[len(runes)-1])) {
		if isTerminal(runes[len(runes)-1]) {
			return string(runes)
		}
		return string(append(runes, defaultTerminal))
	}

	cut := runes[:budget]
	for i := len(cut) - 1; i >= minBreakOffset; i-- {
		if isBreak(cut[i]) {
			cut = cut[:i+1]
			break
		}
	}

	last := cut[len(cut)-1]
	switch {
	case isTerminal(last):
		return string(cut)
	case len(cut) < budget:
		return string(append(cut, defaultTerminal))
	default:
		// Hard truncation filled the budget exactly; swap the final rune so
		// the reply still closes without exceeding the budget.
		cut[len(cut)-1] = defaultTerminal
		return string(cut)
	}
}
