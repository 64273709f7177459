package distill

import (
	"strings"
	"testing"
)

func TestExtractFacts(t *testing.T) {
	markdown := strings.Join([]string{
		"Here is what changed in this pass.",
		"",
		"- the scheduler now retries failed jobs with backoff",
		"- short",
		"- configuration is loaded once at process start",
		"",
		"Everything else stayed the same.",
	}, "\n")

	facts := ExtractFacts(markdown)
	want := []string{
		"the scheduler now retries failed jobs with backoff",
		"configuration is loaded once at process start",
	}
	if len(facts) != len(want) {
		t.Fatalf("facts = %v, want %v", facts, want)
	}
	for i := range want {
		if facts[i] != want[i] {
			t.Errorf("facts[%d] = %q, want %q", i, facts[i], want[i])
		}
	}
}

func TestExtractFacts_NumberedList(t *testing.T) {
	markdown := strings.Join([]string{
		"1. every write path validates the title first",
		"2. every read path bumps the access counter",
	}, "\n")

	facts := ExtractFacts(markdown)
	if len(facts) != 2 {
		t.Fatalf("facts = %v, want 2 numbered items", facts)
	}
	if facts[0] != "every write path validates the title first" {
		t.Errorf("facts[0] = %q", facts[0])
	}
}

func TestExtractFacts_CapsAtFive(t *testing.T) {
	var lines []string
	for _, suffix := range []string{"one", "two", "three", "four", "five", "six", "seven"} {
		lines = append(lines, "- a sufficiently long standalone fact number "+suffix)
	}

	facts := ExtractFacts(strings.Join(lines, "\n"))
	if len(facts) != maxFacts {
		t.Errorf("got %d facts, want cap of %d", len(facts), maxFacts)
	}
}

func TestExtractFacts_NestedItems(t *testing.T) {
	markdown := strings.Join([]string{
		"- the outer item describes the storage change",
		"  - the nested item describes the cache change",
	}, "\n")

	facts := ExtractFacts(markdown)
	want := []string{
		"the outer item describes the storage change",
		"the nested item describes the cache change",
	}
	if len(facts) != len(want) {
		t.Fatalf("facts = %v, want %v", facts, want)
	}
	for i := range want {
		if facts[i] != want[i] {
			t.Errorf("facts[%d] = %q, want %q", i, facts[i], want[i])
		}
	}
}

func TestExtractFacts_InlineMarkup(t *testing.T) {
	facts := ExtractFacts("- the `TouchMemories` call now batches **all** ids together")
	if len(facts) != 1 {
		t.Fatalf("facts = %v, want 1", facts)
	}
	if facts[0] != "the TouchMemories call now batches all ids together" {
		t.Errorf("fact = %q, markup not flattened", facts[0])
	}
}

func TestExtractFacts_FallbackBullets(t *testing.T) {
	markdown := strings.Join([]string{
		"• the unicode bullet style is still recognized",
		"• second line with the same bullet character",
	}, "\n")

	facts := ExtractFacts(markdown)
	if len(facts) != 2 {
		t.Fatalf("facts = %v, want 2 from the line fallback", facts)
	}
	if facts[0] != "the unicode bullet style is still recognized" {
		t.Errorf("facts[0] = %q", facts[0])
	}
}

func TestExtractFacts_NoLists(t *testing.T) {
	facts := ExtractFacts("Just a paragraph of prose without any list structure at all.")
	if len(facts) != 0 {
		t.Errorf("facts = %v, want none", facts)
	}
}
