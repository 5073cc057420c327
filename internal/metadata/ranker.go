package metadata

import (
	"regexp"
	"strings"
)

// Candidate is one provider search result, carrying the fields the ranker
// needs to score it against a parsed title/year. Ported faithfully from
// ferrex-core's tmdb_match.rs candidate-ranking structure.
type Candidate struct {
	ID            string
	Title         string
	OriginalTitle string
	Year          *int
	PosterPath    string
	BackdropPath  string
	VoteAverage   float64
	VoteCount     int
	Popularity    float64
}

// Basis-point thresholds a title match must clear to be considered an
// acceptable (non-fuzzy) match at all.
const (
	titleAcceptMinOverlapBP = 650
	titleAcceptMinJaccardBP = 420
)

var stopwords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "to": {}, "of": {}, "and": {}, "or": {}, "for": {},
	"in": {}, "on": {}, "at": {}, "with": {}, "from": {}, "by": {},
}

var nonAlnum = regexp.MustCompile(`[^\p{L}\p{N}]+`)
var multiSpace = regexp.MustCompile(`\s+`)

// NormalizeTitle lowercases, replaces non-alphanumeric runs with a single
// space, and collapses repeated whitespace.
func NormalizeTitle(title string) string {
	lower := strings.ToLower(title)
	replaced := nonAlnum.ReplaceAllString(lower, " ")
	return strings.TrimSpace(multiSpace.ReplaceAllString(replaced, " "))
}

// TokenizeTitle splits a normalized title into stopword-filtered tokens.
func TokenizeTitle(normalized string) []string {
	if normalized == "" {
		return nil
	}
	fields := strings.Split(normalized, " ")
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if f == "" || len(f) == 1 {
			continue
		}
		if _, stop := stopwords[f]; stop {
			continue
		}
		out = append(out, f)
	}
	return out
}

// TitleMatch is the scored comparison between a query title and one
// candidate title.
type TitleMatch struct {
	ExactNormalized    bool
	ContainsNormalized bool
	OverlapBP          int
	JaccardBP          int
	IntersectionTokens int
}

// titleMatch scores normalizedQuery/queryTokens against one candidate
// title string.
func titleMatch(normalizedQuery string, queryTokens []string, candidateTitle string) TitleMatch {
	normCandidate := NormalizeTitle(candidateTitle)
	candTokens := TokenizeTitle(normCandidate)

	querySet := toSet(queryTokens)
	candSet := toSet(candTokens)

	intersection := 0
	for t := range querySet {
		if _, ok := candSet[t]; ok {
			intersection++
		}
	}
	union := len(querySet) + len(candSet) - intersection

	queryLen := len(querySet)
	if queryLen < 1 {
		queryLen = 1
	}
	overlapBP := intersection * 1000 / queryLen
	jaccardBP := 0
	if union > 0 {
		jaccardBP = intersection * 1000 / union
	}

	return TitleMatch{
		ExactNormalized:    normalizedQuery == normCandidate,
		ContainsNormalized: normCandidate != "" && strings.Contains(normalizedQuery, normCandidate) || (normalizedQuery != "" && strings.Contains(normCandidate, normalizedQuery)),
		OverlapBP:          overlapBP,
		JaccardBP:          jaccardBP,
		IntersectionTokens: intersection,
	}
}

// bestTitleMatch scores a candidate's Title and OriginalTitle and keeps
// whichever scores higher by the same comparison used for final ranking.
func bestTitleMatch(normalizedQuery string, queryTokens []string, c Candidate) TitleMatch {
	best := titleMatch(normalizedQuery, queryTokens, c.Title)
	if c.OriginalTitle != "" && c.OriginalTitle != c.Title {
		alt := titleMatch(normalizedQuery, queryTokens, c.OriginalTitle)
		if titleMatchLess(best, alt) {
			best = alt
		}
	}
	return best
}

func titleMatchLess(a, b TitleMatch) bool {
	if a.ExactNormalized != b.ExactNormalized {
		return !a.ExactNormalized
	}
	if a.OverlapBP != b.OverlapBP {
		return a.OverlapBP < b.OverlapBP
	}
	if a.JaccardBP != b.JaccardBP {
		return a.JaccardBP < b.JaccardBP
	}
	if a.ContainsNormalized != b.ContainsNormalized {
		return !a.ContainsNormalized
	}
	return a.IntersectionTokens < b.IntersectionTokens
}

func toSet(tokens []string) map[string]struct{} {
	s := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		s[t] = struct{}{}
	}
	return s
}

// yearRank scores proximity between the parsed year and a candidate's
// year: 0 is an exact match, increasing for each year of distance, and
// candidates missing a year rank worst.
func yearRank(queryYear *int, candidateYear *int) int {
	if queryYear == nil || candidateYear == nil {
		return 1 << 30
	}
	d := *queryYear - *candidateYear
	if d < 0 {
		d = -d
	}
	return d
}

func hasPoster(c Candidate) bool {
	return c.PosterPath != ""
}

func notNaNOrZero(f float64) float64 {
	if f != f { // NaN
		return 0
	}
	return f
}

// candidateRank is the full ordering key: has_poster > exact_normalized >
// overlap_bp > jaccard_bp > contains_normalized > intersection_token_count
// > year proximity (closer wins) > vote_count > popularity, matching
// spec.md §4.6 and tmdb_match.rs exactly.
type candidateRank struct {
	candidate Candidate
	match     TitleMatch
	yearDist  int
}

// less reports whether a ranks strictly worse than b (used to build a
// descending sort: the "best" candidate sorts first).
func (a candidateRank) less(b candidateRank) bool {
	ap, bp := hasPoster(a.candidate), hasPoster(b.candidate)
	if ap != bp {
		return !ap
	}
	if a.match.ExactNormalized != b.match.ExactNormalized {
		return !a.match.ExactNormalized
	}
	if a.match.OverlapBP != b.match.OverlapBP {
		return a.match.OverlapBP < b.match.OverlapBP
	}
	if a.match.JaccardBP != b.match.JaccardBP {
		return a.match.JaccardBP < b.match.JaccardBP
	}
	if a.match.ContainsNormalized != b.match.ContainsNormalized {
		return !a.match.ContainsNormalized
	}
	if a.match.IntersectionTokens != b.match.IntersectionTokens {
		return a.match.IntersectionTokens < b.match.IntersectionTokens
	}
	if a.yearDist != b.yearDist {
		return a.yearDist > b.yearDist // smaller distance is better
	}
	if a.candidate.VoteCount != b.candidate.VoteCount {
		return a.candidate.VoteCount < b.candidate.VoteCount
	}
	return notNaNOrZero(a.candidate.Popularity) < notNaNOrZero(b.candidate.Popularity)
}

// rankCandidates is shared by movie and series ranking: it scores every
// candidate, applies the "prefer-with-poster" filter (drop posterless
// candidates outright once any candidate has a poster), and sorts
// descending by candidateRank.less.
func rankCandidates(query string, year *int, candidates []Candidate) []Candidate {
	if len(candidates) == 0 {
		return nil
	}
	normalizedQuery := NormalizeTitle(query)
	queryTokens := TokenizeTitle(normalizedQuery)

	ranks := make([]candidateRank, 0, len(candidates))
	anyPoster := false
	for _, c := range candidates {
		if hasPoster(c) {
			anyPoster = true
		}
		ranks = append(ranks, candidateRank{
			candidate: c,
			match:     bestTitleMatch(normalizedQuery, queryTokens, c),
			yearDist:  yearRank(year, c.Year),
		})
	}

	if anyPoster {
		filtered := ranks[:0]
		for _, r := range ranks {
			if hasPoster(r.candidate) {
				filtered = append(filtered, r)
			}
		}
		ranks = filtered
	}

	// Insertion sort descending by rank (candidate lists are small; this
	// keeps the comparison logic — not big-O — front and center, and
	// mirrors the original's stable sort_by semantics).
	for i := 1; i < len(ranks); i++ {
		j := i
		for j > 0 && ranks[j-1].less(ranks[j]) {
			ranks[j-1], ranks[j] = ranks[j], ranks[j-1]
			j--
		}
	}

	out := make([]Candidate, len(ranks))
	for i, r := range ranks {
		out[i] = r.candidate
	}
	return out
}

// RankMovieCandidates orders movie search results best-match-first.
func RankMovieCandidates(query string, year *int, candidates []Candidate) []Candidate {
	return rankCandidates(query, year, candidates)
}

// RankSeriesCandidates orders series search results best-match-first. Series
// titles tend to carry more punctuation variance ("Show: Subtitle" vs
// "Show - Subtitle") which NormalizeTitle already collapses identically to
// movie titles, so the same ranking function applies unchanged.
func RankSeriesCandidates(query string, year *int, candidates []Candidate) []Candidate {
	return rankCandidates(query, year, candidates)
}

// Accept reports whether the top-ranked candidate clears the minimum
// confidence thresholds needed to auto-apply a match without human review.
func Accept(query string, top Candidate) bool {
	normalizedQuery := NormalizeTitle(query)
	queryTokens := TokenizeTitle(normalizedQuery)
	m := bestTitleMatch(normalizedQuery, queryTokens, top)
	return m.ExactNormalized ||
		(m.OverlapBP >= titleAcceptMinOverlapBP && m.JaccardBP >= titleAcceptMinJaccardBP)
}
