package localdj

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dhowden/tag"
	"github.com/sirupsen/logrus"
)

const (
	extractTimeout    = 2 * time.Second
	defaultMaxWorkers = 8
)

// candidate is a stat'd file awaiting reuse-check or extraction.
type candidate struct {
	path      string
	name      string
	size      int64
	modTimeNS int64
}

// Indexer walks a set of configured directories, extracts audio tags
// for new or changed files, and produces a sorted Snapshot. It reuses
// previously-extracted records verbatim when a candidate's (size,
// mtime) is unchanged from the prior snapshot, per spec.md §4.A.
//
// Refresh is idempotent and safe to call repeatedly; concurrent
// refreshes must be serialized by the caller (the orchestrator does
// this via its refresh mutex R).
type Indexer struct {
	Dirs       []string
	Extensions map[string]struct{}
	Workers    int

	log *logrus.Entry

	mu       sync.RWMutex
	previous map[string]Song // path -> last-known record, for reuse
}

// NewIndexer constructs an Indexer over dirs, restricting candidates
// to the given lowercased, dotted extensions.
func NewIndexer(dirs []string, extensions []string) *Indexer {
	extSet := make(map[string]struct{}, len(extensions))
	for _, ext := range extensions {
		e := strings.ToLower(strings.TrimSpace(ext))
		if e != "" {
			extSet[e] = struct{}{}
		}
	}

	workers := min(defaultMaxWorkers, runtime.NumCPU())
	if workers < 1 {
		workers = 1
	}

	return &Indexer{
		Dirs:       dirs,
		Extensions: extSet,
		Workers:    workers,
		log:        logrus.WithField("component", "indexer"),
		previous:   make(map[string]Song),
	}
}

// Refresh walks all configured directories, reuses unchanged records
// from the previous refresh, extracts metadata for new/changed files
// in parallel, and returns a sorted Snapshot plus the total song
// count. Invalid directories are logged and skipped; unreadable files
// are skipped silently. Neither is fatal (spec.md §4.A/§7).
func (idx *Indexer) Refresh() (*Snapshot, int) {
	start := time.Now()
	idx.log.WithField("dirs", idx.Dirs).Info("starting library refresh")

	candidates := idx.walk()
	if len(candidates) == 0 {
		idx.log.Info("library refresh complete: 0 songs")
		idx.mu.Lock()
		idx.previous = make(map[string]Song)
		idx.mu.Unlock()
		return &Snapshot{}, 0
	}

	idx.mu.RLock()
	prev := idx.previous
	idx.mu.RUnlock()

	toExtract := make([]candidate, 0, len(candidates))
	songs := make([]Song, 0, len(candidates))
	reused := 0

	for _, c := range candidates {
		if old, ok := prev[c.path]; ok && old.Size == c.size && old.ModTimeNS == c.modTimeNS {
			songs = append(songs, old)
			reused++
			continue
		}
		toExtract = append(toExtract, c)
	}

	if len(toExtract) > 0 {
		songs = append(songs, idx.extractParallel(toExtract)...)
	}

	sort.Slice(songs, func(i, j int) bool { return songs[i].Path < songs[j].Path })

	next := make(map[string]Song, len(songs))
	for _, s := range songs {
		next[s.Path] = s
	}
	idx.mu.Lock()
	idx.previous = next
	idx.mu.Unlock()

	idx.log.WithFields(logrus.Fields{
		"total":      len(songs),
		"reused":     reused,
		"extracted":  len(toExtract),
		"duration_ms": time.Since(start).Milliseconds(),
	}).Info("library refresh complete")

	return &Snapshot{Songs: songs}, len(songs)
}

// walk recursively scans all configured directories for files whose
// extension is in the allow-set, stat'ing each one. Entries that
// can't be stat'd are skipped silently.
func (idx *Indexer) walk() []candidate {
	var candidates []candidate

	for _, dir := range idx.Dirs {
		abs := expandPath(dir)
		info, err := os.Stat(abs)
		if err != nil || !info.IsDir() {
			idx.log.WithField("dir", abs).Warn("skipping invalid music directory")
			continue
		}

		_ = filepath.WalkDir(abs, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return nil // unreadable entry: skip, not fatal
			}
			if d.IsDir() {
				return nil
			}
			ext := strings.ToLower(filepath.Ext(d.Name()))
			if len(idx.Extensions) > 0 {
				if _, ok := idx.Extensions[ext]; !ok {
					return nil
				}
			}
			fi, err := d.Info()
			if err != nil {
				return nil
			}
			candidates = append(candidates, candidate{
				path:      path,
				name:      d.Name(),
				size:      fi.Size(),
				modTimeNS: fi.ModTime().UnixNano(),
			})
			return nil
		})
	}

	return candidates
}

// extractParallel runs tag extraction across a bounded worker pool
// and returns one Song per candidate, in input order (sorted later).
func (idx *Indexer) extractParallel(candidates []candidate) []Song {
	results := make([]Song, len(candidates))
	jobs := make(chan int)

	var wg sync.WaitGroup
	for w := 0; w < idx.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				results[i] = idx.buildSong(candidates[i])
			}
		}()
	}

	for i := range candidates {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	return results
}

// buildSong extracts metadata for one candidate, with empty
// title/artist/album on any extraction failure or timeout — the
// record is still emitted (spec.md §4.A).
func (idx *Indexer) buildSong(c candidate) Song {
	meta := idx.safeExtract(c.path)
	return Song{
		Path:        c.path,
		NameLower:   strings.ToLower(c.name),
		TitleLower:  strings.ToLower(meta.title),
		ArtistLower: strings.ToLower(meta.artist),
		AlbumLower:  strings.ToLower(meta.album),
		Size:        c.size,
		ModTimeNS:   c.modTimeNS,
	}
}

type extractedTags struct {
	title, artist, album string
}

// safeExtract runs dhowden/tag against a 2s deadline. Because
// dhowden/tag's Read is synchronous, a timed-out extraction still
// runs to completion in its own goroutine; only the caller gives up
// waiting for it, so Refresh's total latency is never unbounded.
func (idx *Indexer) safeExtract(path string) extractedTags {
	ctx, cancel := context.WithTimeout(context.Background(), extractTimeout)
	defer cancel()

	done := make(chan extractedTags, 1)
	go func() {
		done <- extractTags(path)
	}()

	select {
	case tags := <-done:
		return tags
	case <-ctx.Done():
		idx.log.WithField("path", path).Warn("metadata extraction timed out")
		return extractedTags{}
	}
}

func extractTags(path string) extractedTags {
	f, err := os.Open(path)
	if err != nil {
		return extractedTags{}
	}
	defer f.Close()

	m, err := tag.ReadFrom(f)
	if err != nil {
		return extractedTags{}
	}
	return extractedTags{
		title:  strings.TrimSpace(m.Title()),
		artist: strings.TrimSpace(m.Artist()),
		album:  strings.TrimSpace(m.Album()),
	}
}

func expandPath(dir string) string {
	if dir == "~" || strings.HasPrefix(dir, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			if dir == "~" {
				return home
			}
			return filepath.Join(home, dir[2:])
		}
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return dir
	}
	return abs
}
