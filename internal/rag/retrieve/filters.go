package retrieve

import (
	"regexp"
	"strings"
	"time"
)

// ParsedFilters is the structured form of inline query filters: #tags,
// date: ranges, and doc: references extracted from free-text queries so
// the routing and search-fan-out stages can apply them as constraints
// instead of treating them as search terms.
type ParsedFilters struct {
	Tags      []string
	DocIDs    []string
	DateFrom  time.Time
	DateTo    time.Time
	CleanText string
}

var (
	tagPattern  = regexp.MustCompile(`#([\w-]+)`)
	docPattern  = regexp.MustCompile(`doc:(\S+)`)
	datePattern = regexp.MustCompile(`date:(\d{4}-\d{2}-\d{2})(?:\.\.(\d{4}-\d{2}-\d{2}))?`)
)

// ParseFilters extracts #tags, doc: references, and date: ranges from q,
// returning the structured filters plus the remaining free text with those
// tokens stripped. Malformed date tokens are left in CleanText untouched
// rather than erroring, since filter parsing must never block a search.
func ParseFilters(q string) ParsedFilters {
	pf := ParsedFilters{}
	text := q

	for _, m := range tagPattern.FindAllStringSubmatch(text, -1) {
		pf.Tags = append(pf.Tags, m[1])
	}
	text = tagPattern.ReplaceAllString(text, "")

	for _, m := range docPattern.FindAllStringSubmatch(text, -1) {
		pf.DocIDs = append(pf.DocIDs, m[1])
	}
	text = docPattern.ReplaceAllString(text, "")

	if m := datePattern.FindStringSubmatch(text); m != nil {
		from, errFrom := time.Parse("2006-01-02", m[1])
		to := from.AddDate(0, 0, 1)
		var errTo error
		if m[2] != "" {
			to, errTo = time.Parse("2006-01-02", m[2])
		}
		if errFrom == nil && errTo == nil {
			pf.DateFrom, pf.DateTo = from, to
			text = datePattern.ReplaceAllString(text, "")
		}
	}

	pf.CleanText = strings.TrimSpace(collapseSpaces(text))
	return pf
}

func collapseSpaces(s string) string {
	var b strings.Builder
	prevSpace := false
	for _, r := range s {
		if r == ' ' || r == '\t' || r == '\n' || r == '\r' {
			if prevSpace {
				continue
			}
			prevSpace = true
			b.WriteRune(' ')
			continue
		}
		prevSpace = false
		b.WriteRune(r)
	}
	return b.String()
}

// ToMetadataFilter merges parsed tags/doc IDs into the plain
// key/value filter map the backends already accept, so callers that built
// ParsedFilters don't need a second constraint path.
func (pf ParsedFilters) ToMetadataFilter(base map[string]string) map[string]string {
	out := make(map[string]string, len(base)+2)
	for k, v := range base {
		out[k] = v
	}
	if len(pf.Tags) > 0 {
		out["tags"] = strings.Join(pf.Tags, ",")
	}
	if len(pf.DocIDs) > 0 {
		out["doc_ids"] = strings.Join(pf.DocIDs, ",")
	}
	return out
}
