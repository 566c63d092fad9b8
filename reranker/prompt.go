package reranker

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"
)

const maxPromptDocument = 500

var indexPattern = regexp.MustCompile(`\d+`)

// Prompt asks a chat model to order documents by relevance to query.
func Prompt(query string, documents []string) string {
	var docs strings.Builder
	for i, d := range documents {
		fmt.Fprintf(&docs, "[%d] %s\n", i, truncate(d, maxPromptDocument))
	}

	return fmt.Sprintf(`You are a search relevance ranking system.
Query: %s

Documents:
%s
Rank the documents above by their relevance to the query.
Output ONLY the indices of the relevant documents in order of relevance, separated by commas.
Example: 0, 2, 1
Do not output any other text.`, query, docs.String())
}

// truncate cuts s to at most n characters, never inside a multi-byte one.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
}

// ParseRanking reads the indices out of a model answer. Out of range and
// repeated indices are dropped and at most topN results are kept. Scores fall
// linearly with rank so the first result scores 1.
func ParseRanking(answer string, n, topN int) []Result {
	if topN <= 0 || topN > n {
		topN = n
	}

	seen := map[int]bool{}
	var indices []int

	for _, m := range indexPattern.FindAllString(answer, -1) {
		i, err := strconv.Atoi(m)
		if err != nil || i < 0 || i >= n || seen[i] {
			continue
		}
		seen[i] = true
		indices = append(indices, i)
		if len(indices) == topN {
			break
		}
	}

	results := make([]Result, 0, len(indices))
	for rank, i := range indices {
		results = append(results, Result{Index: i, Score: 1 - float64(rank)/float64(n)})
	}

	return results
}
