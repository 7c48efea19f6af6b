package retrieve

import "testing"

func TestParseFilters_ExtractsTagsDocsAndDateRange(t *testing.T) {
	pf := ParseFilters("quarterly results #finance #q3 doc:report-42 date:2026-01-01..2026-03-31 for acme")
	if len(pf.Tags) != 2 || pf.Tags[0] != "finance" || pf.Tags[1] != "q3" {
		t.Fatalf("unexpected tags: %v", pf.Tags)
	}
	if len(pf.DocIDs) != 1 || pf.DocIDs[0] != "report-42" {
		t.Fatalf("unexpected doc ids: %v", pf.DocIDs)
	}
	if pf.DateFrom.IsZero() || pf.DateTo.IsZero() {
		t.Fatalf("expected date range to be parsed")
	}
	if pf.CleanText == "" {
		t.Fatalf("expected remaining clean text")
	}
}

func TestParseFilters_SingleDateDefaultsToOneDayWindow(t *testing.T) {
	pf := ParseFilters("events date:2026-05-01")
	if pf.DateTo.Sub(pf.DateFrom).Hours() != 24 {
		t.Fatalf("expected a 1-day window, got %v", pf.DateTo.Sub(pf.DateFrom))
	}
}

func TestParseFilters_NoFiltersLeavesTextUnchanged(t *testing.T) {
	pf := ParseFilters("plain query text")
	if pf.CleanText != "plain query text" {
		t.Fatalf("expected unchanged text, got %q", pf.CleanText)
	}
	if len(pf.Tags) != 0 || len(pf.DocIDs) != 0 {
		t.Fatalf("expected no tags/docs")
	}
}

func TestToMetadataFilter_MergesWithBase(t *testing.T) {
	pf := ParsedFilters{Tags: []string{"a", "b"}, DocIDs: []string{"d1"}}
	out := pf.ToMetadataFilter(map[string]string{"tenant": "acme"})
	if out["tenant"] != "acme" || out["tags"] != "a,b" || out["doc_ids"] != "d1" {
		t.Fatalf("unexpected merged filter: %#v", out)
	}
}
