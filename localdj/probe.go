package localdj

import (
	"context"
	"encoding/binary"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dhowden/tag"
)

// DurationProbe resolves the playable duration of a file. It is the
// out-of-scope, pluggable seam named in spec.md §6: production
// deployments may inject a probe backed by ffprobe or a vendor SDK.
// Implementations must respect ctx's deadline and return ok=false
// rather than block indefinitely.
type DurationProbe interface {
	Probe(ctx context.Context, path string) (dur time.Duration, ok bool)
}

// TagDurationProbe is the default DurationProbe: it parses container
// headers directly for ".wav" (RIFF fmt/data chunks, mirroring the
// original's wave.open-based probe), ".flac" (STREAMINFO) and ".mp3"
// (first Layer III frame, Xing/Info or constant bitrate). Any other
// file, or one whose header can't be parsed, goes through
// probeTagDuration, which reports the duration as unknown.
type TagDurationProbe struct{}

// Probe implements DurationProbe.
func (TagDurationProbe) Probe(ctx context.Context, path string) (time.Duration, bool) {
	if err := ctx.Err(); err != nil {
		return 0, false
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav":
		if dur, ok := probeWAVDuration(path); ok {
			return dur, true
		}
	case ".flac":
		if dur, ok := probeFLACDuration(path); ok {
			return dur, true
		}
	case ".mp3":
		if dur, ok := probeMP3Duration(path); ok {
			return dur, true
		}
	}

	return probeTagDuration(path)
}

// probeWAVDuration parses the RIFF/fmt /data chunk headers of a WAV
// file to compute frames/sampleRate without decoding any audio.
func probeWAVDuration(path string) (time.Duration, bool) {
	f, err := os.Open(path)
	if err != nil {
		return 0, false
	}
	defer f.Close()

	var riffHeader [12]byte
	if _, err := io.ReadFull(f, riffHeader[:]); err != nil {
		return 0, false
	}
	if string(riffHeader[0:4]) != "RIFF" || string(riffHeader[8:12]) != "WAVE" {
		return 0, false
	}

	var byteRate uint32
	var dataSize uint32
	haveFmt, haveData := false, false

chunks:
	for {
		var chunkHeader [8]byte
		if _, err := io.ReadFull(f, chunkHeader[:]); err != nil {
			break
		}
		chunkID := string(chunkHeader[0:4])
		chunkSize := binary.LittleEndian.Uint32(chunkHeader[4:8])

		switch chunkID {
		case "fmt ":
			body := make([]byte, chunkSize)
			if _, err := io.ReadFull(f, body); err != nil || len(body) < 16 {
				return 0, false
			}
			byteRate = binary.LittleEndian.Uint32(body[8:12])
			haveFmt = true
		case "data":
			dataSize = chunkSize
			haveData = true
			if _, err := f.Seek(int64(chunkSize), io.SeekCurrent); err != nil {
				break chunks
			}
		default:
			if _, err := f.Seek(int64(chunkSize), io.SeekCurrent); err != nil {
				break chunks
			}
		}
		if chunkSize%2 == 1 {
			_, _ = f.Seek(1, io.SeekCurrent)
		}
		if haveFmt && haveData {
			break
		}
	}

	if !haveFmt || !haveData || byteRate == 0 {
		return 0, false
	}

	seconds := float64(dataSize) / float64(byteRate)
	if seconds <= 0 {
		return 0, false
	}
	return time.Duration(seconds * float64(time.Second)), true
}

// probeFLACDuration reads the FLAC STREAMINFO metadata block to
// compute duration from total-samples/sample-rate, without decoding
// any audio. Grounded on alexander-bruun-Orb/cmd/ingest's
// readFLACInfo (same "fLaC" marker, 34-byte STREAMINFO payload, and
// big-endian bit layout for sample rate / total samples).
func probeFLACDuration(path string) (time.Duration, bool) {
	f, err := os.Open(path)
	if err != nil {
		return 0, false
	}
	defer f.Close()

	// 4-byte "fLaC" marker + 4-byte block header + 34-byte STREAMINFO.
	buf := make([]byte, 42)
	if _, err := io.ReadFull(f, buf); err != nil {
		return 0, false
	}
	if string(buf[0:4]) != "fLaC" || buf[4]&0x7F != 0 {
		return 0, false
	}
	if binary.BigEndian.Uint32([]byte{0, buf[5], buf[6], buf[7]}) != 34 {
		return 0, false
	}

	si := buf[8:] // 34-byte STREAMINFO payload
	// Bit layout (FLAC spec, big-endian):
	//   bits  80–99:  sample rate (20 bits)
	//   bits 108–143: total samples (36 bits)
	sampleRate := uint32(si[10])<<12 | uint32(si[11])<<4 | uint32(si[12])>>4
	totalSamples := int64(si[13]&0x0F)<<32 |
		int64(si[14])<<24 | int64(si[15])<<16 |
		int64(si[16])<<8 | int64(si[17])

	if sampleRate == 0 || totalSamples == 0 {
		return 0, false
	}
	seconds := float64(totalSamples) / float64(sampleRate)
	return time.Duration(seconds * float64(time.Second)), true
}

// mpegBitrateTableV1L3 (MPEG1) and mpegBitrateTableV2L3 (MPEG2 and
// MPEG2.5) map a Layer III bitrate index to kbps; index 0 is "free"
// (unsupported) and 15 is reserved. Layer III only — the only MPEG
// layer this probe needs to support.
var mpegBitrateTableV1L3 = [16]int{0, 32, 40, 48, 56, 64, 80, 96, 112, 128, 160, 192, 224, 256, 320, 0}
var mpegBitrateTableV2L3 = [16]int{0, 8, 16, 24, 32, 40, 48, 56, 64, 80, 96, 112, 128, 144, 160, 0}

var mpegSampleRateTableV1 = [4]int{44100, 48000, 32000, 0}
var mpegSampleRateTableV2 = [4]int{22050, 24000, 16000, 0}
var mpegSampleRateTableV25 = [4]int{11025, 12000, 8000, 0}

// mp3Frame is a parsed MPEG audio frame header relevant to duration
// estimation.
type mp3Frame struct {
	isMPEG1     bool
	sampleRate  int
	bitrateKbps int
	channels    int // 1 = mono, 2 = stereo/joint/dual
	padding     int
	frameSize   int
}

// parseMP3FrameHeader decodes a 4-byte MPEG audio frame header
// starting at header[0]. Only Layer III (MP3) frames are supported;
// anything else is rejected so the caller can resync.
func parseMP3FrameHeader(header []byte) (mp3Frame, bool) {
	if len(header) < 4 {
		return mp3Frame{}, false
	}
	if header[0] != 0xFF || header[1]&0xE0 != 0xE0 {
		return mp3Frame{}, false
	}
	versionBits := (header[1] >> 3) & 0x03
	layerBits := (header[1] >> 1) & 0x03
	if layerBits != 0x01 { // 01 == Layer III
		return mp3Frame{}, false
	}
	bitrateIdx := (header[2] >> 4) & 0x0F
	sampleRateIdx := (header[2] >> 2) & 0x03
	padding := int((header[2] >> 1) & 0x01)
	channelMode := (header[3] >> 6) & 0x03

	var bitrateKbps, sampleRate int
	isMPEG1 := versionBits == 0x03
	switch versionBits {
	case 0x03: // MPEG1
		bitrateKbps = mpegBitrateTableV1L3[bitrateIdx]
		sampleRate = mpegSampleRateTableV1[sampleRateIdx]
	case 0x02: // MPEG2
		bitrateKbps = mpegBitrateTableV2L3[bitrateIdx]
		sampleRate = mpegSampleRateTableV2[sampleRateIdx]
	case 0x00: // MPEG2.5
		bitrateKbps = mpegBitrateTableV2L3[bitrateIdx]
		sampleRate = mpegSampleRateTableV25[sampleRateIdx]
	default: // reserved
		return mp3Frame{}, false
	}
	if bitrateKbps == 0 || sampleRate == 0 {
		return mp3Frame{}, false
	}

	channels := 2
	if channelMode == 0x03 {
		channels = 1
	}

	samplesPerFrame := 1152
	if !isMPEG1 {
		samplesPerFrame = 576
	}
	frameSize := (samplesPerFrame/8)*bitrateKbps*1000/sampleRate + padding

	return mp3Frame{
		isMPEG1:     isMPEG1,
		sampleRate:  sampleRate,
		bitrateKbps: bitrateKbps,
		channels:    channels,
		padding:     padding,
		frameSize:   frameSize,
	}, true
}

// xingFrameCount looks for a Xing/Info (VBR) header immediately
// following frame's side info and returns the stream's total frame
// count, if present. body is the frame payload starting right after
// the 4-byte frame header.
func xingFrameCount(body []byte, frame mp3Frame) (int64, bool) {
	var sideInfoLen int
	switch {
	case frame.isMPEG1 && frame.channels > 1:
		sideInfoLen = 32
	case frame.isMPEG1:
		sideInfoLen = 17
	case frame.channels > 1:
		sideInfoLen = 17
	default:
		sideInfoLen = 9
	}
	if len(body) < sideInfoLen+8 {
		return 0, false
	}
	marker := string(body[sideInfoLen : sideInfoLen+4])
	if marker != "Xing" && marker != "Info" {
		return 0, false
	}
	flags := binary.BigEndian.Uint32(body[sideInfoLen+4 : sideInfoLen+8])
	if flags&0x01 == 0 { // frames-count field absent
		return 0, false
	}
	offset := sideInfoLen + 8
	if len(body) < offset+4 {
		return 0, false
	}
	frames := binary.BigEndian.Uint32(body[offset : offset+4])
	if frames == 0 {
		return 0, false
	}
	return int64(frames), true
}

// probeMP3Duration locates the first valid MPEG Layer III frame, then
// prefers an embedded Xing/Info VBR frame count for duration if
// present, otherwise estimates duration from the frame's bitrate and
// the remaining file size (constant-bitrate assumption). ID3v2 tags
// at the start of the file are skipped.
func probeMP3Duration(path string) (time.Duration, bool) {
	f, err := os.Open(path)
	if err != nil {
		return 0, false
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return 0, false
	}
	size := info.Size()

	start, ok := skipID3v2(f)
	if !ok {
		return 0, false
	}

	// Scan for the first valid frame sync within a bounded window;
	// real encoders place it within the first few KB after any tag.
	const scanWindow = 16 * 1024
	window := make([]byte, scanWindow)
	n, _ := f.ReadAt(window, start)
	window = window[:n]

	for i := 0; i+4 <= len(window); i++ {
		frame, ok := parseMP3FrameHeader(window[i : i+4])
		if !ok {
			continue
		}
		body := window[i+4:]
		if frames, ok := xingFrameCount(body, frame); ok {
			samplesPerFrame := int64(1152)
			if !frame.isMPEG1 {
				samplesPerFrame = 576
			}
			totalSamples := frames * samplesPerFrame
			seconds := float64(totalSamples) / float64(frame.sampleRate)
			if seconds > 0 {
				return time.Duration(seconds * float64(time.Second)), true
			}
		}

		// No VBR header: assume constant bitrate across the rest of
		// the file (from this frame to EOF).
		remaining := size - (start + int64(i))
		if remaining <= 0 || frame.bitrateKbps <= 0 {
			return 0, false
		}
		seconds := float64(remaining*8) / float64(frame.bitrateKbps*1000)
		return time.Duration(seconds * float64(time.Second)), true
	}

	return 0, false
}

// skipID3v2 returns the byte offset immediately after an ID3v2 tag at
// the start of f, or 0 if none is present.
func skipID3v2(f *os.File) (int64, bool) {
	var header [10]byte
	if _, err := f.ReadAt(header[:], 0); err != nil {
		return 0, false
	}
	if string(header[0:3]) != "ID3" {
		return 0, true
	}
	// Tag size is a 28-bit "synchsafe" integer: 7 usable bits per byte.
	size := int64(header[6])<<21 | int64(header[7])<<14 | int64(header[8])<<7 | int64(header[9])
	return 10 + size, true
}

// probeTagDuration reads the file's tags with dhowden/tag, but the
// metadata it returns carries no duration, so this always returns
// false; callers must treat that as "unknown", not an error.
func probeTagDuration(path string) (time.Duration, bool) {
	f, err := os.Open(path)
	if err != nil {
		return 0, false
	}
	defer f.Close()

	_, err = tag.ReadFrom(f)
	if err != nil {
		return 0, false
	}
	// dhowden/tag's Metadata interface does not expose a duration
	// field across formats; absent a reliable cross-format source we
	// report unknown and let the caller drop the song per spec.md §4.F.
	return 0, false
}
