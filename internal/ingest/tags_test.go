package ingest

import (
	"reflect"
	"testing"
)

func TestSuggestTags(t *testing.T) {
	cases := []struct {
		text string
		want []string
	}{
		{"my flight to the airport leaves at 6", []string{"travel"}},
		{"dinner with mom for her birthday", []string{"celebration", "family", "food"}},
		{"big MEETING with the boss", []string{"work"}},
		{"nothing interesting here", nil},
	}
	for _, c := range cases {
		got := SuggestTags(c.text)
		if !reflect.DeepEqual(got, c.want) {
			t.Fatalf("SuggestTags(%q) = %v, want %v", c.text, got, c.want)
		}
	}
}

func TestSuggestTagsNoDuplicateCategory(t *testing.T) {
	got := SuggestTags("flight hotel trip vacation")
	if !reflect.DeepEqual(got, []string{"travel"}) {
		t.Fatalf("expected single travel tag, got %v", got)
	}
}
