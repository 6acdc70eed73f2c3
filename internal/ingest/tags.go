package ingest

import (
	"sort"
	"strings"
)

type tagCategory struct {
	name     string
	keywords []string
}

// Keyword table for coarse message tagging. Matching is case-insensitive
// substring search; a category applies when any of its keywords appears.
var tagCategories = []tagCategory{
	{"travel", []string{"flight", "airport", "hotel", "trip", "vacation", "passport"}},
	{"family", []string{"mom", "dad", "sister", "brother", "grandma", "family"}},
	{"work", []string{"meeting", "deadline", "boss", "office", "work", "project"}},
	{"celebration", []string{"birthday", "party", "congrats", "anniversary", "wedding"}},
	{"food", []string{"dinner", "lunch", "breakfast", "restaurant", "cook"}},
}

// SuggestTags returns the sorted, deduplicated category names whose keywords
// occur in text. An empty result means the message stays untagged.
func SuggestTags(text string) []string {
	lower := strings.ToLower(text)
	var tags []string
	for _, cat := range tagCategories {
		for _, kw := range cat.keywords {
			if strings.Contains(lower, kw) {
				tags = append(tags, cat.name)
				break
			}
		}
	}
	sort.Strings(tags)
	return tags
}
