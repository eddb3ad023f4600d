package taxonomy

import "strings"

const (
	MethodExplicit = "explicit"
	MethodKeyword  = "keyword"
	MethodDefault  = "default"
)

// Input is the classifier's view of a normalized lead.
type Input struct {
	// Hint is an explicit category identifier supplied with the submission.
	Hint string
	// Text holds free-text service descriptions.
	Text []string
}

// Classification is the classifier's verdict.
type Classification struct {
	Category        string   `json:"category"`
	Subcategories   []string `json:"subcategories"`
	Confidence      float64  `json:"confidence"`
	Method          string   `json:"method"`
	TaxonomyVersion string   `json:"taxonomyVersion"`
}

// Classifier maps a lead onto exactly one category.
type Classifier interface {
	Classify(in Input) Classification
}

// Source returns the taxonomy snapshot to classify against.
type Source interface {
	Current() *Taxonomy
}

// KeywordClassifier is a deterministic, rule-driven Classifier. Identical
// input against the same taxonomy version always yields the same result.
type KeywordClassifier struct {
	source Source
}

// NewKeywordClassifier creates a classifier over the given taxonomy source.
func NewKeywordClassifier(source Source) *KeywordClassifier {
	return &KeywordClassifier{source: source}
}

// Classify applies, in order: explicit hint, keyword scoring, default category.
func (k *KeywordClassifier) Classify(in Input) Classification {
	t := k.source.Current()

	if c, ok := classifyHint(t, in.Hint); ok {
		return c
	}

	text := strings.ToLower(strings.Join(append([]string{in.Hint}, in.Text...), " "))

	bestIdx, bestScore, total := -1, 0, 0
	for i, cat := range t.Categories {
		score := countMatches(text, cat.Keywords)
		total += score
		// strict > keeps the earliest declared category on ties
		if score > bestScore {
			bestIdx, bestScore = i, score
		}
	}

	if bestIdx < 0 {
		return Classification{
			Category:        t.DefaultCategory,
			Subcategories:   []string{},
			Confidence:      0,
			Method:          MethodDefault,
			TaxonomyVersion: t.Version,
		}
	}

	winner := t.Categories[bestIdx]
	return Classification{
		Category:        winner.Key,
		Subcategories:   matchSubcategories(text, winner.Subcategories),
		Confidence:      float64(bestScore) / float64(total),
		Method:          MethodKeyword,
		TaxonomyVersion: t.Version,
	}
}

func classifyHint(t *Taxonomy, hint string) (Classification, bool) {
	h := strings.ToLower(strings.TrimSpace(hint))
	if h == "" {
		return Classification{}, false
	}
	for _, cat := range t.Categories {
		if strings.ToLower(cat.Key) == h || strings.ToLower(strings.TrimSpace(cat.DisplayName)) == h {
			return Classification{
				Category:        cat.Key,
				Subcategories:   []string{},
				Confidence:      1.0,
				Method:          MethodExplicit,
				TaxonomyVersion: t.Version,
			}, true
		}
		for _, sub := range cat.Subcategories {
			if strings.ToLower(sub.Key) == h {
				return Classification{
					Category:        cat.Key,
					Subcategories:   []string{sub.Key},
					Confidence:      1.0,
					Method:          MethodExplicit,
					TaxonomyVersion: t.Version,
				}, true
			}
		}
	}
	return Classification{}, false
}

func countMatches(text string, keywords []string) int {
	n := 0
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			n++
		}
	}
	return n
}

func matchSubcategories(text string, subs []Subcategory) []string {
	out := make([]string, 0)
	for _, sub := range subs {
		if countMatches(text, sub.Keywords) > 0 {
			out = append(out, sub.Key)
		}
	}
	return out
}
