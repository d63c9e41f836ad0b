// Package categorize derives topical tags for publications. Two strategies
// exist: a deterministic keyword rule engine that is always available, and an
// optional external classifier reached over HTTP. When both are configured
// the external labels win and keyword matches fill the remaining slots.
package categorize

import (
	"context"
	"sort"
	"strings"

	"github.com/devicepubs/curator/internal/record"
)

const (
	// MaxTopics caps how many suggestions a single record receives.
	MaxTopics = 3
	// MaxConfidence caps heuristic keyword confidence; only a reviewer or
	// the external classifier can claim more certainty than this.
	MaxConfidence = 0.9

	baseConfidence   = 0.6
	phraseBonus      = 0.15
	multiMatchBonus  = 0.15
	sourceKeyword    = "keyword"
	sourceClassifier = "ml"
)

// Result is the outcome of classifying one publication.
type Result struct {
	Suggestions []record.Suggestion
	// Keywords are the matched terms that produced the suggestions.
	Keywords []string
}

// Classifier assigns confidence-scored topic labels to publication text.
type Classifier interface {
	Classify(ctx context.Context, title, abstract string) (*Result, error)
}

// Topic is one keyword rule: any required term matches the topic, a phrase
// match raises confidence, and any negative term vetoes the match outright.
// Negative terms guard the demographic topics against tagging studies that
// cover both sexes.
type Topic struct {
	Name     string
	Required []string
	Phrases  []string
	Negative []string
}

// DefaultTopics is the rule set used when no custom rules are configured.
var DefaultTopics = []Topic{
	{
		Name:     "Men's Health",
		Required: []string{"testosterone", "prostate", "erectile dysfunction", "male infertility", "andropause"},
		Phrases:  []string{"men's health", "hypogonadal men"},
		Negative: []string{"men and women", "both sexes", "male and female", "males and females"},
	},
	{
		Name:     "Women's Health",
		Required: []string{"menopause", "menstrual", "pregnancy", "postpartum", "endometriosis"},
		Phrases:  []string{"women's health", "postmenopausal women"},
		Negative: []string{"men and women", "both sexes", "male and female", "males and females"},
	},
	{
		Name:     "Cardiology",
		Required: []string{"coronary", "stent", "myocardial", "arrhythmia", "heart failure"},
		Phrases:  []string{"percutaneous coronary intervention", "drug-eluting stent"},
	},
	{
		Name:     "Clinical Trial",
		Required: []string{"randomized", "placebo", "double-blind", "clinical trial"},
		Phrases:  []string{"randomized controlled trial"},
	},
	{
		Name:     "Safety",
		Required: []string{"adverse event", "complication", "device failure", "recall"},
		Phrases:  []string{"serious adverse event"},
	},
	{
		Name:     "Rehabilitation",
		Required: []string{"rehabilitation", "physiotherapy", "physical therapy", "recovery protocol"},
		Phrases:  []string{"pulmonary rehabilitation"},
	},
}

// KeywordClassifier is the deterministic, local strategy.
type KeywordClassifier struct {
	topics []Topic
}

// NewKeywordClassifier builds a classifier over the given rules, falling
// back to DefaultTopics when none are supplied.
func NewKeywordClassifier(topics []Topic) *KeywordClassifier {
	if len(topics) == 0 {
		topics = DefaultTopics
	}
	return &KeywordClassifier{topics: topics}
}

// Classify matches the rule set against title plus abstract. The error
// return exists only to satisfy Classifier; it is always nil here.
func (k *KeywordClassifier) Classify(_ context.Context, title, abstract string) (*Result, error) {
	text := strings.ToLower(title + " " + abstract)
	res := &Result{}
	seen := make(map[string]bool)

	for _, topic := range k.topics {
		if matchesAny(text, topic.Negative) {
			continue
		}

		var matched []string
		for _, term := range topic.Required {
			if strings.Contains(text, strings.ToLower(term)) {
				matched = append(matched, term)
			}
		}
		if len(matched) == 0 {
			continue
		}

		confidence := baseConfidence
		if matchesAny(text, topic.Phrases) {
			confidence += phraseBonus
		}
		if len(matched) >= 2 {
			confidence += multiMatchBonus
		}
		if confidence > MaxConfidence {
			confidence = MaxConfidence
		}

		res.Suggestions = append(res.Suggestions, record.Suggestion{
			Category:   topic.Name,
			Confidence: confidence,
			Source:     sourceKeyword,
		})
		for _, term := range matched {
			if !seen[term] {
				seen[term] = true
				res.Keywords = append(res.Keywords, term)
			}
		}
	}

	sort.SliceStable(res.Suggestions, func(i, j int) bool {
		return res.Suggestions[i].Confidence > res.Suggestions[j].Confidence
	})
	if len(res.Suggestions) > MaxTopics {
		res.Suggestions = res.Suggestions[:MaxTopics]
	}
	return res, nil
}

func matchesAny(text string, terms []string) bool {
	for _, term := range terms {
		if strings.Contains(text, strings.ToLower(term)) {
			return true
		}
	}
	return false
}
