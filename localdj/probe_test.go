package localdj

import (
	"bytes"
	"context"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
)

func writeWAVFixture(t *testing.T, dir, name string, sampleRate, byteRate uint32, dataBytes int) string {
	t.Helper()
	path := filepath.Join(dir, name)

	var buf bytes.Buffer
	buf.WriteString("RIFF")
	var sizeField [4]byte
	binary.LittleEndian.PutUint32(sizeField[:], uint32(36+dataBytes))
	buf.Write(sizeField[:])
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	var fmtSize [4]byte
	binary.LittleEndian.PutUint32(fmtSize[:], 16)
	buf.Write(fmtSize[:])
	fmtBody := make([]byte, 16)
	binary.LittleEndian.PutUint16(fmtBody[0:2], 1) // PCM
	binary.LittleEndian.PutUint16(fmtBody[2:4], 1) // mono
	binary.LittleEndian.PutUint32(fmtBody[4:8], sampleRate)
	binary.LittleEndian.PutUint32(fmtBody[8:12], byteRate)
	binary.LittleEndian.PutUint16(fmtBody[12:14], 2)
	binary.LittleEndian.PutUint16(fmtBody[14:16], 16)
	buf.Write(fmtBody)

	buf.WriteString("data")
	var dataSize [4]byte
	binary.LittleEndian.PutUint32(dataSize[:], uint32(dataBytes))
	buf.Write(dataSize[:])
	buf.Write(make([]byte, dataBytes))

	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("failed to write WAV fixture: %v", err)
	}
	return path
}

func TestTagDurationProbeWAV(t *testing.T) {
	dir := t.TempDir()
	// 44100 Hz, 16-bit mono => byteRate = 88200; 5s of data.
	path := writeWAVFixture(t, dir, "song.wav", 44100, 88200, 88200*5)

	dur, ok := TagDurationProbe{}.Probe(context.Background(), path)
	if !ok {
		t.Fatalf("Probe() on WAV fixture returned ok=false")
	}
	if got := dur.Seconds(); got < 4.99 || got > 5.01 {
		t.Errorf("Probe() duration = %v, want ~5s", dur)
	}
}

// writeFLACFixture builds a minimal FLAC file containing only the
// "fLaC" marker and a STREAMINFO metadata block encoding sampleRate
// and totalSamples, per the bit layout parsed by probeFLACDuration.
func writeFLACFixture(t *testing.T, dir, name string, sampleRate uint32, totalSamples int64) string {
	t.Helper()
	path := filepath.Join(dir, name)

	buf := make([]byte, 42)
	copy(buf[0:4], "fLaC")
	buf[4] = 0x80 // last-metadata-block flag set, block type 0 (STREAMINFO)
	buf[5], buf[6], buf[7] = 0, 0, 34

	si := buf[8:42]
	si[10] = byte((sampleRate >> 12) & 0xFF)
	si[11] = byte((sampleRate >> 4) & 0xFF)
	si[12] = byte((sampleRate & 0x0F) << 4)
	si[13] = byte((totalSamples >> 32) & 0x0F)
	si[14] = byte((totalSamples >> 24) & 0xFF)
	si[15] = byte((totalSamples >> 16) & 0xFF)
	si[16] = byte((totalSamples >> 8) & 0xFF)
	si[17] = byte(totalSamples & 0xFF)

	if err := os.WriteFile(path, buf, 0o644); err != nil {
		t.Fatalf("failed to write FLAC fixture: %v", err)
	}
	return path
}

func TestTagDurationProbeFLAC(t *testing.T) {
	dir := t.TempDir()
	path := writeFLACFixture(t, dir, "song.flac", 44100, 44100*5)

	dur, ok := TagDurationProbe{}.Probe(context.Background(), path)
	if !ok {
		t.Fatalf("Probe() on FLAC fixture returned ok=false")
	}
	if got := dur.Seconds(); got < 4.99 || got > 5.01 {
		t.Errorf("Probe() duration = %v, want ~5s", dur)
	}
}

// writeMP3Fixture builds a minimal MP3 file: one MPEG1 Layer III
// frame header (128kbps, 44100Hz, stereo, no Xing/Info VBR header)
// followed by fillerBytes of padding, so probeMP3Duration falls back
// to its constant-bitrate estimate over the whole file.
func writeMP3Fixture(t *testing.T, dir, name string, fillerBytes int) string {
	t.Helper()
	path := filepath.Join(dir, name)

	header := []byte{0xFF, 0xFB, 0x90, 0x00}
	data := append(append([]byte{}, header...), make([]byte, fillerBytes)...)

	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("failed to write MP3 fixture: %v", err)
	}
	return path
}

func TestTagDurationProbeMP3ConstantBitrate(t *testing.T) {
	dir := t.TempDir()
	// 128kbps CBR: remaining*8/128000 seconds. For exactly 10s,
	// remaining (header+filler) must be 160000 bytes.
	const totalBytes = 160000
	path := writeMP3Fixture(t, dir, "song.mp3", totalBytes-4)

	dur, ok := TagDurationProbe{}.Probe(context.Background(), path)
	if !ok {
		t.Fatalf("Probe() on MP3 fixture returned ok=false")
	}
	if got := dur.Seconds(); got < 9.9 || got > 10.1 {
		t.Errorf("Probe() duration = %v, want ~10s", dur)
	}
}

func TestTagDurationProbeRespectsContextDeadline(t *testing.T) {
	dir := t.TempDir()
	path := writeWAVFixture(t, dir, "song.wav", 44100, 88200, 88200*5)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, ok := TagDurationProbe{}.Probe(ctx, path); ok {
		t.Errorf("Probe() with an already-cancelled context = ok, want false")
	}
}

func TestTagDurationProbeUnknownFormatFallsBackToTagRead(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(path, []byte("not audio"), 0o644); err != nil {
		t.Fatalf("failed to write fixture: %v", err)
	}

	if _, ok := TagDurationProbe{}.Probe(context.Background(), path); ok {
		t.Errorf("Probe() on non-audio file = ok, want false")
	}
}
