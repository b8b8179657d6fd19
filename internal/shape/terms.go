package shape

import (
	"bufio"
	"fmt"
	"os"
	"regexp"
	"strings"
	"sync"
)

// defaultBlockedTerms covers the persona's hard rule: the bot never names the
// machinery behind it. Removal is literal and case-insensitive.
var defaultBlockedTerms = []string{
	"AI", "人工智慧", "語言模型", "大模型", "模型", "機器人",
	"ChatGPT", "Gemini", "GPT", "LLM", "chatbot",
}

// TermList is a scrub list of blocked terms compiled for case-insensitive
// literal removal. Safe for concurrent use; Reload swaps the compiled set
// atomically under the lock.
type TermList struct {
	mu       sync.RWMutex
	path     string
	patterns []*regexp.Regexp
}

// NewTermList compiles the built-in blocked terms.
func NewTermList() *TermList {
	t := &TermList{}
	t.set(defaultBlockedTerms)
	return t
}

// LoadTermList reads one term per line from path, ignoring blank lines and
// lines starting with '#'. A missing file yields the built-in defaults.
func LoadTermList(path string) (*TermList, error) {
	t := NewTermList()
	t.path = path
	if err := t.Reload(); err != nil {
		return nil, err
	}
	return t, nil
}

// Reload re-reads the backing file. No-op when the list has no file.
func (t *TermList) Reload() error {
	if t.path == "" {
		return nil
	}
	f, err := os.Open(t.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("open blocked terms: %w", err)
	}
	defer f.Close()

	var terms []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		terms = append(terms, line)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read blocked terms: %w", err)
	}
	if len(terms) == 0 {
		terms = defaultBlockedTerms
	}
	t.set(terms)
	return nil
}

func (t *TermList) set(terms []string) {
	patterns := make([]*regexp.Regexp, 0, len(terms))
	for _, term := range terms {
		patterns = append(patterns, regexp.MustCompile(`(?i)`+regexp.QuoteMeta(term)))
	}
	t.mu.Lock()
	t.patterns = patterns
	t.mu.Unlock()
}

// Len returns the number of compiled terms.
func (t *TermList) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.patterns)
}

// Scrub removes every occurrence of every blocked term from text. This is
// blunt text surgery: it can leave a fractured sentence behind, which the
// shaper then closes off. That is the accepted trade-off; we never refuse or
// regenerate over a blocked term.
func (t *TermList) Scrub(text string) string {
	t.mu.RLock()
	patterns := t.patterns
	t.mu.RUnlock()

	for _, p := range patterns {
		text = p.ReplaceAllString(text, "")
	}
	return text
}
