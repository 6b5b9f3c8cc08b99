package localdj

import "math/rand"

// Search returns up to limit paths from snapshot whose filename,
// title, artist or album (lowercased) contains needleLower as a
// substring, shuffled uniformly at random before truncation so that
// repeated searches for a broad keyword surface varied results. An
// empty needle or non-positive limit yields an empty result.
func Search(snapshot *Snapshot, needleLower string, limit int) []string {
	if needleLower == "" || limit <= 0 || snapshot == nil {
		return nil
	}

	matched := make([]string, 0, limit)
	for _, song := range snapshot.Songs {
		if song.matches(needleLower) {
			matched = append(matched, song.Path)
		}
	}

	rand.Shuffle(len(matched), func(i, j int) {
		matched[i], matched[j] = matched[j], matched[i]
	})

	if len(matched) > limit {
		matched = matched[:limit]
	}
	return matched
}

// RandomPick returns up to limit paths from snapshot in uniformly
// shuffled order.
func RandomPick(snapshot *Snapshot, limit int) []string {
	if limit <= 0 || snapshot.Len() == 0 {
		return nil
	}

	paths := make([]string, len(snapshot.Songs))
	for i, song := range snapshot.Songs {
		paths[i] = song.Path
	}
	rand.Shuffle(len(paths), func(i, j int) {
		paths[i], paths[j] = paths[j], paths[i]
	})

	if len(paths) > limit {
		paths = paths[:limit]
	}
	return paths
}
