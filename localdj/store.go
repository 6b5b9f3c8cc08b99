package localdj

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
)

// songRecord is the on-disk JSON shape for a Song, matching spec.md
// §6's persisted schema exactly so that external tooling reading the
// index file sees stable field names independent of Go's internal
// struct layout.
type songRecord struct {
	Path        string `json:"path"`
	NameLower   string `json:"name_lower"`
	TitleLower  string `json:"title_lower"`
	ArtistLower string `json:"artist_lower"`
	AlbumLower  string `json:"album_lower"`
	Size        int64  `json:"size"`
	ModTimeNS   int64  `json:"mtime_ns"`
}

func toRecord(s Song) songRecord {
	return songRecord{
		Path:        s.Path,
		NameLower:   s.NameLower,
		TitleLower:  s.TitleLower,
		ArtistLower: s.ArtistLower,
		AlbumLower:  s.AlbumLower,
		Size:        s.Size,
		ModTimeNS:   s.ModTimeNS,
	}
}

func fromRecord(r songRecord) Song {
	return Song{
		Path:        r.Path,
		NameLower:   r.NameLower,
		TitleLower:  r.TitleLower,
		ArtistLower: r.ArtistLower,
		AlbumLower:  r.AlbumLower,
		Size:        r.Size,
		ModTimeNS:   r.ModTimeNS,
	}
}

// IndexStore persists a Snapshot's songs to a single JSON file. It
// never returns errors to the caller: I/O and decode failures are
// logged and treated as an empty index, per spec.md §4.C.
type IndexStore struct {
	path string
	log  *logrus.Entry
}

// NewIndexStore returns a store writing/reading the given file path.
// An empty path disables persistence: Load always returns nil and
// Save is a no-op.
func NewIndexStore(path string) *IndexStore {
	return &IndexStore{
		path: path,
		log:  logrus.WithField("component", "index_store"),
	}
}

// Load reads and decodes the index file. A missing file, malformed
// JSON, or a non-array top-level value all yield an empty slice.
func (s *IndexStore) Load() []Song {
	if s.path == "" {
		return nil
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.log.WithError(err).Warn("failed to read index file")
		}
		return nil
	}

	var records []songRecord
	if err := json.Unmarshal(data, &records); err != nil {
		s.log.WithError(err).Warn("index file contains malformed JSON, treating as empty")
		return nil
	}

	songs := make([]Song, len(records))
	for i, r := range records {
		songs[i] = fromRecord(r)
	}
	s.log.WithField("count", len(songs)).Info("loaded index from disk")
	return songs
}

// Save writes songs as a UTF-8 JSON array, creating the parent
// directory if missing. Failures are logged and swallowed.
func (s *IndexStore) Save(songs []Song) {
	if s.path == "" {
		return
	}

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			s.log.WithError(err).Warn("failed to create index directory")
			return
		}
	}

	records := make([]songRecord, len(songs))
	for i, song := range songs {
		records[i] = toRecord(song)
	}

	data, err := json.Marshal(records)
	if err != nil {
		s.log.WithError(err).Warn("failed to marshal index")
		return
	}

	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		s.log.WithError(err).Warn("failed to write index file")
	}
}
