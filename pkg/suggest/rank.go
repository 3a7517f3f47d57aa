package suggest

import (
	"sort"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/rxsuggest/rxsuggest/internal/utils"
	"golang.org/x/text/cases"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// collators are not safe for concurrent use, so sorts borrow one from the pool
var collatorPool = sync.Pool{
	New: func() any {
		return collate.New(language.English, collate.IgnoreCase)
	},
}

// Query is one input state of a search box.
type Query struct {
	Raw        string
	Normalized string
	Len        int
}

// NewQuery normalizes raw input: surrounding whitespace is trimmed and the text lower-cased.
func NewQuery(raw string) Query {
	norm := Normalize(raw)
	return Query{
		Raw:        raw,
		Normalized: norm,
		Len:        utf8.RuneCountInString(norm),
	}
}

// Prefix is the text sent to the remote lookup: the query as typed, minus surrounding spaces.
func (q Query) Prefix() string {
	return strings.TrimSpace(q.Raw)
}

// Normalize returns the comparison form of a name or query.
func Normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// TitleCase upper-cases the first letter of every word and lower-cases the rest,
// so "METFORMIN XR" becomes "Metformin Xr".
func TitleCase(term string) string {
	return cases.Title(language.English).String(strings.TrimSpace(term))
}

type rankEntry struct {
	name   string
	source Source
	prefix bool
	length int
}

func newRankEntry(name string, source Source, normQuery string) rankEntry {
	return rankEntry{
		name:   name,
		source: source,
		prefix: strings.HasPrefix(strings.ToLower(name), normQuery),
		length: utf8.RuneCountInString(name),
	}
}

// RankLocal orders dictionary matches for normQuery: names starting with the query come
// before names that merely contain it, then alphabetical order ignoring case.
// The result holds at most limit names; limit <= 0 keeps them all.
func RankLocal(names []string, normQuery string, limit int) []string {
	entries := make([]rankEntry, 0, len(names))
	for _, name := range names {
		entries = append(entries, newRankEntry(name, SourceLocal, normQuery))
	}

	coll := collatorPool.Get().(*collate.Collator)
	defer collatorPool.Put(coll)

	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.prefix != b.prefix {
			return a.prefix
		}
		return lessAlpha(coll, a.name, b.name)
	})

	entries = truncate(entries, limit)
	ranked := make([]string, len(entries))
	for i, e := range entries {
		ranked[i] = e.name
	}
	return ranked
}

// Merge blends local and remote names for normQuery.
// Names are unique by normalized form and the local spelling wins a collision.
// Ordering: starts-with tier first, then shorter names, then alphabetical.
// Entries present in local are tagged SourceLocal, the rest SourceRemote.
func Merge(normQuery string, local, remote []string, limit int) []Candidate {
	filter := utils.NewNameFilter(len(local) + len(remote))
	entries := make([]rankEntry, 0, len(local)+len(remote))
	for _, name := range local {
		if filter.ShouldInclude(name) {
			entries = append(entries, newRankEntry(name, SourceLocal, normQuery))
		}
	}
	for _, name := range remote {
		if filter.ShouldInclude(name) {
			entries = append(entries, newRankEntry(name, SourceRemote, normQuery))
		}
	}

	coll := collatorPool.Get().(*collate.Collator)
	defer collatorPool.Put(coll)

	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.prefix != b.prefix {
			return a.prefix
		}
		if a.length != b.length {
			return a.length < b.length
		}
		return lessAlpha(coll, a.name, b.name)
	})

	entries = truncate(entries, limit)
	merged := make([]Candidate, len(entries))
	for i, e := range entries {
		merged[i] = Candidate{Name: e.name, Source: e.source}
	}
	return merged
}

// lessAlpha compares with the collator and falls back to byte order on ties.
func lessAlpha(coll *collate.Collator, a, b string) bool {
	if c := coll.CompareString(a, b); c != 0 {
		return c < 0
	}
	return a < b
}

func truncate(entries []rankEntry, limit int) []rankEntry {
	if limit > 0 && len(entries) > limit {
		return entries[:limit]
	}
	return entries
}

func tagLocal(names []string) []Candidate {
	out := make([]Candidate, len(names))
	for i, name := range names {
		out[i] = Candidate{Name: name, Source: SourceLocal}
	}
	return out
}
