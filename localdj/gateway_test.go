package localdj

import (
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"testing"
)

func newTestGateway() *Gateway {
	return NewGateway("127.0.0.1:0", "http://127.0.0.1:18080")
}

func mustURLPath(t *testing.T, rawURL string) string {
	t.Helper()
	u, err := url.Parse(rawURL)
	if err != nil {
		t.Fatalf("failed to parse gateway URL %q: %v", rawURL, err)
	}
	return u.Path
}

func hexEncode(path string) string {
	return hex.EncodeToString([]byte(path))
}

func TestGatewayCreateFileURLRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "song.mp3")
	if err := os.WriteFile(path, []byte("0123456789"), 0o644); err != nil {
		t.Fatalf("failed to write fixture: %v", err)
	}

	gw := newTestGateway()
	url := gw.CreateFileURL(path)

	req := httptest.NewRequest(http.MethodGet, mustURLPath(t, url), nil)
	rr := httptest.NewRecorder()
	gw.handleFile(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("GET full file: status = %d, want 200", rr.Code)
	}
	if rr.Body.String() != "0123456789" {
		t.Errorf("GET full file body = %q, want %q", rr.Body.String(), "0123456789")
	}
}

func TestGatewayRejectsUnlistedPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "song.mp3")
	if err := os.WriteFile(path, []byte("data"), 0o644); err != nil {
		t.Fatalf("failed to write fixture: %v", err)
	}

	gw := newTestGateway()
	// Never call CreateFileURL, so the path is not allow-listed, but
	// build the same encoded form to hit the handler directly.
	req := httptest.NewRequest(http.MethodGet, "/file/"+hexEncode(path)+"/song.mp3", nil)
	rr := httptest.NewRecorder()
	gw.handleFile(rr, req)

	if rr.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", rr.Code)
	}
}

func TestGatewayMalformedSegment(t *testing.T) {
	gw := newTestGateway()
	req := httptest.NewRequest(http.MethodGet, "/file/not-hex/song.mp3", nil)
	rr := httptest.NewRecorder()
	gw.handleFile(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rr.Code)
	}
}

func TestGatewayRangeRequests(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "song.mp3")
	if err := os.WriteFile(path, []byte("0123456789"), 0o644); err != nil {
		t.Fatalf("failed to write fixture: %v", err)
	}

	gw := newTestGateway()
	url := gw.CreateFileURL(path)
	urlPath := mustURLPath(t, url)

	tests := []struct {
		name       string
		rangeHdr   string
		wantStatus int
		wantBody   string
	}{
		{"prefix range", "bytes=0-3", http.StatusPartialContent, "0123"},
		{"open-ended range", "bytes=5-", http.StatusPartialContent, "56789"},
		{"suffix range", "bytes=-3", http.StatusPartialContent, "789"},
		{"suffix exceeds size", "bytes=-100", http.StatusPartialContent, "0123456789"},
		{"unsatisfiable range", "bytes=100-200", http.StatusRequestedRangeNotSatisfiable, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, urlPath, nil)
			req.Header.Set("Range", tt.rangeHdr)
			rr := httptest.NewRecorder()
			gw.handleFile(rr, req)

			if rr.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rr.Code, tt.wantStatus)
			}
			if tt.wantStatus == http.StatusPartialContent && rr.Body.String() != tt.wantBody {
				t.Errorf("body = %q, want %q", rr.Body.String(), tt.wantBody)
			}
			if tt.wantStatus == http.StatusRequestedRangeNotSatisfiable {
				if got := rr.Header().Get("Content-Range"); got != "bytes */10" {
					t.Errorf("Content-Range = %q, want %q", got, "bytes */10")
				}
			}
		})
	}
}

func TestGatewayHeadRequestOmitsBody(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "song.mp3")
	if err := os.WriteFile(path, []byte("0123456789"), 0o644); err != nil {
		t.Fatalf("failed to write fixture: %v", err)
	}

	gw := newTestGateway()
	url := gw.CreateFileURL(path)

	req := httptest.NewRequest(http.MethodHead, mustURLPath(t, url), nil)
	rr := httptest.NewRecorder()
	gw.handleFile(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	if rr.Body.Len() != 0 {
		t.Errorf("HEAD response body length = %d, want 0", rr.Body.Len())
	}
	if got := rr.Header().Get("Content-Length"); got != "10" {
		t.Errorf("Content-Length = %q, want %q", got, "10")
	}
}

func TestParseRangeHeader(t *testing.T) {
	const size = int64(100)
	tests := []struct {
		name      string
		header    string
		wantStart int64
		wantEnd   int64
		wantOK    bool
	}{
		{"simple range", "bytes=0-9", 0, 9, true},
		{"open-ended", "bytes=50-", 50, 99, true},
		{"suffix", "bytes=-10", 90, 99, true},
		{"suffix exceeds size", "bytes=-1000", 0, 99, true},
		{"single byte", "bytes=0-0", 0, 0, true},
		{"start beyond size", "bytes=100-", 0, 0, false},
		{"malformed unit", "items=0-9", 0, 0, false},
		{"malformed no dash", "bytes=abc", 0, 0, false},
		{"end before start", "bytes=10-5", 0, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := parseRangeHeader(tt.header, size)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if got.start != tt.wantStart || got.end != tt.wantEnd {
				t.Errorf("range = [%d,%d], want [%d,%d]", got.start, got.end, tt.wantStart, tt.wantEnd)
			}
		})
	}
}
