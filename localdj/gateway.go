package localdj

import (
	"container/list"
	"encoding/hex"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

const (
	streamChunkSize  = 64 * 1024
	defaultAllowSize = 10_000
)

// byteRange is an inclusive [start, end] window into a file.
type byteRange struct {
	start, end int64
}

// allowSet is an LRU-bounded set of absolute paths the gateway will
// serve, per spec.md §9's resolution of the allow-set-growth open
// question. Eviction only affects future requests; a URL minted
// before an entry's eviction simply gets a 403 and the caller must
// ask for a fresh one (createFileURL is idempotent).
type allowSet struct {
	mu       sync.Mutex
	capacity int
	order    *list.List
	index    map[string]*list.Element
}

func newAllowSet(capacity int) *allowSet {
	if capacity <= 0 {
		capacity = defaultAllowSize
	}
	return &allowSet{
		capacity: capacity,
		order:    list.New(),
		index:    make(map[string]*list.Element),
	}
}

func (a *allowSet) add(path string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if el, ok := a.index[path]; ok {
		a.order.MoveToFront(el)
		return
	}
	el := a.order.PushFront(path)
	a.index[path] = el

	for a.order.Len() > a.capacity {
		oldest := a.order.Back()
		if oldest == nil {
			break
		}
		a.order.Remove(oldest)
		delete(a.index, oldest.Value.(string))
	}
}

func (a *allowSet) contains(path string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.index[path]
	return ok
}

// Gateway is the range-capable HTTP server that serves only files
// explicitly whitelisted via CreateFileURL, per spec.md §4.D.
type Gateway struct {
	BaseURL string

	allow  *allowSet
	server *http.Server
	log    *logrus.Entry
}

// NewGateway constructs a Gateway that will listen on addr (host:port)
// and mint URLs rooted at baseURL.
func NewGateway(addr, baseURL string) *Gateway {
	g := &Gateway{
		BaseURL: strings.TrimRight(baseURL, "/"),
		allow:   newAllowSet(defaultAllowSize),
		log:     logrus.WithField("component", "gateway"),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/file/", g.handleFile)
	g.server = &http.Server{Addr: addr, Handler: mux}
	return g
}

// Start begins serving in the background. It returns once the
// listener goroutine has been launched; ListenAndServe errors other
// than http.ErrServerClosed are logged.
func (g *Gateway) Start() {
	g.log.WithField("addr", g.server.Addr).Info("starting file gateway")
	go func() {
		if err := g.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			g.log.WithError(err).Error("file gateway stopped unexpectedly")
		}
	}()
}

// Stop closes the gateway's listener and any active connections
// immediately; in-flight responses are not waited for.
func (g *Gateway) Stop() {
	g.log.Info("stopping file gateway")
	_ = g.server.Close()
}

// CreateFileURL absolutizes path, adds it to the allow-set, and
// returns the hex-encoded URL the speaker should fetch.
func (g *Gateway) CreateFileURL(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	g.allow.add(abs)
	encoded := hex.EncodeToString([]byte(abs))
	return fmt.Sprintf("%s/file/%s/%s", g.BaseURL, encoded, filepath.Base(abs))
}

func (g *Gateway) handleFile(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.NotFound(w, r)
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/file/")
	encoded, _, _ := strings.Cut(rest, "/")

	decoded, err := hex.DecodeString(encoded)
	if err != nil || len(decoded) == 0 {
		g.log.WithError(ErrMalformedPath).WithField("segment", encoded).Warn("rejecting file request")
		http.Error(w, "malformed path", http.StatusBadRequest)
		return
	}
	path := string(decoded)

	if !g.allow.contains(path) {
		g.log.WithError(ErrPathNotAllowed).WithField("path", path).Warn("rejecting file request")
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		g.log.WithError(ErrFileNotFound).WithField("path", path).Warn("rejecting file request")
		http.NotFound(w, r)
		return
	}

	contentType := mime.TypeByExtension(filepath.Ext(path))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	size := info.Size()

	rng := r.Header.Get("Range")
	status := http.StatusOK
	window := byteRange{start: 0, end: size - 1}

	if rng != "" {
		parsed, ok := parseRangeHeader(rng, size)
		if !ok {
			g.log.WithError(ErrRangeNotSatisfiable).WithField("range", rng).Warn("rejecting file request")
			w.Header().Set("Content-Range", fmt.Sprintf("bytes */%d", size))
			w.WriteHeader(http.StatusRequestedRangeNotSatisfiable)
			return
		}
		window = parsed
		status = http.StatusPartialContent
	}

	contentLength := window.end - window.start + 1
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Accept-Ranges", "bytes")
	w.Header().Set("Content-Length", strconv.FormatInt(contentLength, 10))
	if status == http.StatusPartialContent {
		w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", window.start, window.end, size))
	}
	w.WriteHeader(status)

	if r.Method == http.MethodHead {
		return
	}

	f, err := os.Open(path)
	if err != nil {
		return // headers already sent; nothing more we can do
	}
	defer f.Close()

	if _, err := f.Seek(window.start, io.SeekStart); err != nil {
		return
	}

	remaining := contentLength
	buf := make([]byte, streamChunkSize)
	for remaining > 0 {
		n := int64(len(buf))
		if remaining < n {
			n = remaining
		}
		read, err := f.Read(buf[:n])
		if read > 0 {
			if _, werr := w.Write(buf[:read]); werr != nil {
				return // client disconnected mid-stream: terminate quietly
			}
			remaining -= int64(read)
		}
		if err != nil {
			return
		}
	}
}

// parseRangeHeader parses exactly one byte range of the forms
// "bytes=S-E", "bytes=S-" or "bytes=-N" against fileSize, per
// spec.md §4.D step 5.
func parseRangeHeader(header string, fileSize int64) (byteRange, bool) {
	value := strings.ToLower(strings.TrimSpace(header))
	if !strings.HasPrefix(value, "bytes=") {
		return byteRange{}, false
	}
	spec := value[len("bytes="):]
	if idx := strings.Index(spec, ","); idx >= 0 {
		spec = spec[:idx]
	}
	spec = strings.TrimSpace(spec)

	startText, endText, ok := strings.Cut(spec, "-")
	if !ok {
		return byteRange{}, false
	}

	if startText == "" {
		suffixLen, err := strconv.ParseInt(endText, 10, 64)
		if err != nil || suffixLen <= 0 {
			return byteRange{}, false
		}
		start := fileSize - suffixLen
		if start < 0 {
			start = 0
		}
		return byteRange{start: start, end: fileSize - 1}, true
	}

	start, err := strconv.ParseInt(startText, 10, 64)
	if err != nil || start < 0 || start >= fileSize {
		return byteRange{}, false
	}

	end := fileSize - 1
	if endText != "" {
		parsedEnd, err := strconv.ParseInt(endText, 10, 64)
		if err != nil || parsedEnd < start {
			return byteRange{}, false
		}
		end = parsedEnd
	}
	if end > fileSize-1 {
		end = fileSize - 1
	}
	return byteRange{start: start, end: end}, true
}
