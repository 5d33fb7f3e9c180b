// Package classifier assigns taxonomy topics to articles by counting keyword
// phrase occurrences in the article text.
package classifier

import (
	"strings"

	"github.com/Adda-Baaj/khobor-topics/internal/domain"
	"github.com/Adda-Baaj/khobor-topics/internal/taxonomy"
)

// Classify returns the topics whose score strictly exceeds threshold, sorted by
// name. The result depends only on the article text, the taxonomy and threshold.
// A phrase counts when it starts at a word boundary; it may end inside a word,
// so "network" matches "networks" but "ai" does not match "said".
func Classify(article domain.Article, tx *taxonomy.Taxonomy, threshold int) []string {
	if tx == nil {
		return []string{}
	}

	scores := Scores(Text(article), tx)

	topics := make([]string, 0, len(scores))
	for _, topic := range tx.Topics() {
		// Strictly greater: a score equal to the threshold is not enough.
		if scores[topic] > threshold {
			topics = append(topics, topic)
		}
	}
	return topics
}

// Text is the blob an article is scored on: title followed by content.
func Text(article domain.Article) string {
	return article.Title + " " + article.Content
}

// Scores computes the per-topic score of text. Every topic of tx is present in
// the result, including those that scored zero.
func Scores(text string, tx *taxonomy.Taxonomy) map[string]int {
	blob := taxonomy.Normalize(text)

	scores := make(map[string]int, tx.Len())
	for _, topic := range tx.Topics() {
		score := 0
		for _, phrase := range tx.Phrases(topic) {
			score += countPhrase(blob, phrase)
		}
		scores[topic] = score
	}
	return scores
}

// countPhrase counts non-overlapping occurrences of phrase in blob that begin at
// a word boundary. Both arguments must already be normalized.
func countPhrase(blob, phrase string) int {
	if phrase == "" || len(phrase) > len(blob) {
		return 0
	}

	count := 0
	for pos := 0; pos <= len(blob)-len(phrase); {
		i := strings.Index(blob[pos:], phrase)
		if i < 0 {
			break
		}
		start := pos + i
		if start == 0 || blob[start-1] == ' ' {
			count++
			pos = start + len(phrase)
			continue
		}
		pos = start + 1
	}
	return count
}
