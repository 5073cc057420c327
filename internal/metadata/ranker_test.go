package metadata

import "testing"

func intPtr(v int) *int { return &v }

func TestMovieRankingPrefersYearWhenTitlesEqual(t *testing.T) {
	candidates := []Candidate{
		{ID: "far", Title: "Heat", Year: intPtr(1999), PosterPath: "/a.jpg"},
		{ID: "near", Title: "Heat", Year: intPtr(1995), PosterPath: "/b.jpg"},
	}
	ranked := RankMovieCandidates("Heat", intPtr(1995), candidates)
	if len(ranked) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(ranked))
	}
	if ranked[0].ID != "near" {
		t.Errorf("expected 'near' (exact year match) to rank first, got %s", ranked[0].ID)
	}
}

func TestMovieRankingPrefersPosterWhenAvailable(t *testing.T) {
	candidates := []Candidate{
		{ID: "no-poster", Title: "Heat", Year: intPtr(1995), VoteCount: 10000},
		{ID: "with-poster", Title: "Heat", Year: intPtr(1995), PosterPath: "/p.jpg", VoteCount: 1},
	}
	ranked := RankMovieCandidates("Heat", intPtr(1995), candidates)
	if len(ranked) != 1 {
		t.Fatalf("expected posterless candidate to be filtered out, got %d results", len(ranked))
	}
	if ranked[0].ID != "with-poster" {
		t.Errorf("expected 'with-poster' to survive the prefer-with-poster filter, got %s", ranked[0].ID)
	}
}

func TestSeriesRankingHandlesPunctuationDifferences(t *testing.T) {
	candidates := []Candidate{
		{ID: "colon", Title: "Show: Subtitle", Year: intPtr(2020), PosterPath: "/p.jpg"},
		{ID: "unrelated", Title: "Completely Different", Year: intPtr(2020), PosterPath: "/q.jpg"},
	}
	ranked := RankSeriesCandidates("Show - Subtitle", intPtr(2020), candidates)
	if len(ranked) != 2 {
		t.Fatalf("expected both candidates to survive ranking, got %d", len(ranked))
	}
	if ranked[0].ID != "colon" {
		t.Errorf("expected punctuation-insensitive match 'colon' to rank first, got %s", ranked[0].ID)
	}
}

func TestNormalizeTitleCollapsesPunctuationAndWhitespace(t *testing.T) {
	got := NormalizeTitle("  The Matrix: Reloaded!! ")
	want := "the matrix reloaded"
	if got != want {
		t.Errorf("NormalizeTitle() = %q, want %q", got, want)
	}
}

func TestTokenizeTitleDropsStopwords(t *testing.T) {
	tokens := TokenizeTitle(NormalizeTitle("The Lord of the Rings"))
	want := []string{"lord", "rings"}
	if len(tokens) != len(want) {
		t.Fatalf("got %v, want %v", tokens, want)
	}
	for i, tok := range tokens {
		if tok != want[i] {
			t.Errorf("token[%d] = %q, want %q", i, tok, want[i])
		}
	}
}

func TestTokenizeTitleDropsLengthOneTokens(t *testing.T) {
	tokens := TokenizeTitle(NormalizeTitle("X Men"))
	want := []string{"men"}
	if len(tokens) != len(want) || tokens[0] != want[0] {
		t.Errorf("TokenizeTitle(%q) = %v, want %v (single-letter token should be dropped)", "X Men", tokens, want)
	}
}

func TestTokenizeTitleStopwordSetMatchesClosedList(t *testing.T) {
	// from/by were previously missing, is/are were previously (wrongly) included.
	for _, stop := range []string{"the", "a", "an", "to", "of", "and", "or", "for", "in", "on", "at", "with", "from", "by"} {
		if _, ok := stopwords[stop]; !ok {
			t.Errorf("expected %q to be a stopword", stop)
		}
	}
	for _, notStop := range []string{"is", "are"} {
		if _, ok := stopwords[notStop]; ok {
			t.Errorf("%q should not be a stopword", notStop)
		}
	}
}

func TestOverlapBPDividesByQueryTokenCountNotMin(t *testing.T) {
	// query has 3 tokens, candidate only 1 ("nova"); intersection is 1.
	// Dividing by the query length (3) gives 333bp; dividing by min(3,1)=1
	// would wrongly inflate this to 1000bp.
	m := titleMatch(NormalizeTitle("nova zorro quark"), TokenizeTitle(NormalizeTitle("nova zorro quark")), "nova")
	if m.OverlapBP != 333 {
		t.Errorf("OverlapBP = %d, want 333 (intersection*1000/len(querySet))", m.OverlapBP)
	}
}

func TestAcceptRequiresBothOverlapAndJaccard(t *testing.T) {
	// "heat" overlaps fully with the 1-token query (overlap_bp=1000) but the
	// candidate carries many extra tokens, so jaccard_bp is low (200). Under
	// the correct AND-gated rule this must be rejected even though the old
	// OR-based check would have accepted it on overlap alone.
	rejected := Candidate{Title: "heat underground vault network storage"}
	if Accept("heat", rejected) {
		t.Error("expected high-overlap/low-jaccard candidate to be rejected")
	}

	// "blade runner 2049" clears both thresholds against the 2-token query
	// without being an exact normalized match.
	accepted := Candidate{Title: "blade runner 2049"}
	if !Accept("blade runner", accepted) {
		t.Error("expected candidate clearing both overlap and jaccard thresholds to be accepted")
	}
}

func TestAcceptAllowsExactNormalizedMatchRegardlessOfScores(t *testing.T) {
	exact := Candidate{Title: "The Matrix"}
	if !Accept("The Matrix", exact) {
		t.Error("expected exact normalized match to be accepted")
	}
}
