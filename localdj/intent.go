package localdj

import "strings"

// trimCutset is the set of surrounding whitespace and trailing
// CJK/ASCII punctuation stripped by Normalize, matching the
// original music_search.normalize_keyword cutset.
const trimCutset = "：:，,。！？!?"

// Normalize strips surrounding whitespace, then trailing characters
// from trimCutset.
func Normalize(text string) string {
	return strings.TrimRight(strings.TrimSpace(text), trimCutset)
}

// NormalizeCompact normalizes text and additionally removes all
// interior spaces, used for exact-match keyword comparisons.
func NormalizeCompact(text string) string {
	return strings.ReplaceAll(Normalize(text), " ", "")
}

// IntentKind classifies a final ASR utterance.
type IntentKind int

const (
	// IntentUnmatched is the utterance classification when no
	// configured command keyword applies.
	IntentUnmatched IntentKind = iota
	IntentStop
	IntentRefresh
	IntentRandom
	IntentPlay
)

// Intent is the result of classifying a final ASR utterance. Keyword
// is populated only for IntentPlay. Whitelisted reports whether the
// utterance also matches the barge-in whitelist (checked in parallel
// to the exclusive classes above, per spec.md §4.E).
type Intent struct {
	Kind        IntentKind
	Keyword     string
	Whitelisted bool
}

// KeywordSets holds the pre-normalized-compact keyword sets used by
// Classify. Construct with NewKeywordSets.
type KeywordSets struct {
	PlayPrefixes     []string
	Stop             map[string]struct{}
	Refresh          map[string]struct{}
	Random           map[string]struct{}
	InterruptWhitelist map[string]struct{}
}

// NewKeywordSets builds a KeywordSets from raw (unnormalized)
// configuration keyword lists. Play prefixes are normalized but kept
// in order (not compacted) because play-keyword matching is a raw
// prefix check against the original text, per spec.md §4.E class 5.
func NewKeywordSets(playPrefixes, stop, refresh, random, whitelist []string) KeywordSets {
	return KeywordSets{
		PlayPrefixes:       normalizeAll(playPrefixes),
		Stop:               toCompactSet(stop),
		Refresh:            toCompactSet(refresh),
		Random:             toCompactSet(random),
		InterruptWhitelist: toCompactSet(whitelist),
	}
}

func normalizeAll(keywords []string) []string {
	out := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		if n := Normalize(kw); n != "" {
			out = append(out, n)
		}
	}
	return out
}

func toCompactSet(keywords []string) map[string]struct{} {
	set := make(map[string]struct{}, len(keywords))
	for _, kw := range keywords {
		if n := NormalizeCompact(kw); n != "" {
			set[n] = struct{}{}
		}
	}
	return set
}

// matchesAny reports whether normalized (already NormalizeCompact'd)
// equals, or contains as a substring, any keyword in set. This is the
// documented open-question resolution: containment as well as exact
// match (spec.md §9), applied here to whitelist matching only.
func matchesAny(normalized string, set map[string]struct{}) bool {
	if normalized == "" {
		return false
	}
	for kw := range set {
		if kw == "" {
			continue
		}
		if normalized == kw || strings.Contains(normalized, kw) {
			return true
		}
	}
	return false
}

func exactMatch(normalized string, set map[string]struct{}) bool {
	if normalized == "" {
		return false
	}
	_, ok := set[normalized]
	return ok
}

// Classify classifies a final ASR text per spec.md §4.E. Stop,
// refresh and random are mutually-exclusive exact-match classes
// checked before play; whitelist is evaluated independently and
// attached to whatever class was found (including unmatched), since
// a barge-in can coincide with, e.g., an otherwise-unrecognized
// utterance.
func Classify(text string, sets KeywordSets) Intent {
	normalized := NormalizeCompact(text)
	whitelisted := matchesAny(normalized, sets.InterruptWhitelist)

	switch {
	case exactMatch(normalized, sets.Stop):
		return Intent{Kind: IntentStop, Whitelisted: whitelisted}
	case exactMatch(normalized, sets.Refresh):
		return Intent{Kind: IntentRefresh, Whitelisted: whitelisted}
	case exactMatch(normalized, sets.Random):
		return Intent{Kind: IntentRandom, Whitelisted: whitelisted}
	}

	for _, prefix := range sets.PlayPrefixes {
		if strings.HasPrefix(text, prefix) {
			keyword := Normalize(text[len(prefix):])
			if keyword == "" {
				continue
			}
			return Intent{Kind: IntentPlay, Keyword: keyword, Whitelisted: whitelisted}
		}
	}

	return Intent{Kind: IntentUnmatched, Whitelisted: whitelisted}
}
