package localdj

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFixture(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("failed to write fixture %s: %v", name, err)
	}
	return path
}

func TestIndexerRefreshWalksExtensions(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, dir, "song.mp3", []byte("not real audio"))
	writeFixture(t, dir, "notes.txt", []byte("ignore me"))
	writeFixture(t, dir, "SONG2.FLAC", []byte("not real audio either"))

	idx := NewIndexer([]string{dir}, []string{".mp3", ".flac"})
	snap, total := idx.Refresh()

	if total != 2 {
		t.Fatalf("Refresh() returned %d songs, want 2", total)
	}
	if snap.Len() != 2 {
		t.Fatalf("snapshot.Len() = %d, want 2", snap.Len())
	}
	// Songs are sorted by path.
	if snap.Songs[0].Path > snap.Songs[1].Path {
		t.Errorf("songs not sorted by path: %v", snap.Songs)
	}
}

func TestIndexerRefreshReusesUnchangedRecords(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, dir, "song.mp3", []byte("content"))

	idx := NewIndexer([]string{dir}, []string{".mp3"})
	first, _ := idx.Refresh()
	second, _ := idx.Refresh()

	if first.Songs[0] != second.Songs[0] {
		t.Errorf("unchanged file produced a different record across refreshes: %+v vs %+v", first.Songs[0], second.Songs[0])
	}
}

func TestIndexerRefreshDropsDeletedFiles(t *testing.T) {
	dir := t.TempDir()
	path := writeFixture(t, dir, "song.mp3", []byte("content"))

	idx := NewIndexer([]string{dir}, []string{".mp3"})
	if _, total := idx.Refresh(); total != 1 {
		t.Fatalf("first Refresh() returned %d songs, want 1", total)
	}

	if err := os.Remove(path); err != nil {
		t.Fatalf("failed to remove fixture: %v", err)
	}

	if _, total := idx.Refresh(); total != 0 {
		t.Fatalf("second Refresh() returned %d songs, want 0", total)
	}
}

func TestIndexerRefreshSkipsInvalidDirectory(t *testing.T) {
	idx := NewIndexer([]string{filepath.Join(t.TempDir(), "does-not-exist")}, []string{".mp3"})
	snap, total := idx.Refresh()
	if total != 0 || snap.Len() != 0 {
		t.Errorf("Refresh() over invalid directory = (%v, %d), want (empty, 0)", snap, total)
	}
}

func TestExpandPathTilde(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory available")
	}
	if got := expandPath("~"); got != home {
		t.Errorf("expandPath(~) = %q, want %q", got, home)
	}
	if got := expandPath("~/music"); got != filepath.Join(home, "music") {
		t.Errorf("expandPath(~/music) = %q, want %q", got, filepath.Join(home, "music"))
	}
}
