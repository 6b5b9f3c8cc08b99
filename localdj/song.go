package localdj

import "strings"

// Song is an immutable record describing one indexed audio file.
// Equality of two songs for change-detection purposes is by Path,
// Size and ModTimeNS together: the same path with a different
// (Size, ModTimeNS) pair is considered a different version and is
// re-extracted on the next refresh.
type Song struct {
	Path       string
	NameLower  string
	TitleLower string
	ArtistLower string
	AlbumLower  string
	Size        int64
	ModTimeNS   int64
}

// SameVersion reports whether other is the same file version as s:
// same path, size and modification time.
func (s Song) SameVersion(other Song) bool {
	return s.Path == other.Path && s.Size == other.Size && s.ModTimeNS == other.ModTimeNS
}

// matches reports whether needle (already lowercased) is a substring
// of any of the four searchable fields.
func (s Song) matches(needleLower string) bool {
	return strings.Contains(s.NameLower, needleLower) ||
		strings.Contains(s.TitleLower, needleLower) ||
		strings.Contains(s.ArtistLower, needleLower) ||
		strings.Contains(s.AlbumLower, needleLower)
}

// Snapshot is an ordered, immutable index of Song records sorted by
// Path ascending. It is replaced atomically on each refresh.
type Snapshot struct {
	Songs []Song
}

// Len returns the number of songs in the snapshot.
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Songs)
}

// SongItem is a single entry built from a search/random result,
// carrying the minted playback URL and probed duration. Position is
// the 1-based index within the original search result, stable for
// logging purposes; the queue itself is a plain FIFO of these.
type SongItem struct {
	Position    int
	Path        string
	Name        string
	URL         string
	DurationSec float64
}

