package localdj

import (
	"context"
	"sync"
	"time"
)

// fakeDeviceControl records calls instead of shelling out, for use
// across orchestrator_test.go and dispatcher_test.go.
type fakeDeviceControl struct {
	mu       sync.Mutex
	speaks   []string
	asks     []string
	playURLs []string
	stops    int
}

func (f *fakeDeviceControl) Speak(_ context.Context, text string) (any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.speaks = append(f.speaks, text)
	return nil, nil
}

func (f *fakeDeviceControl) Ask(_ context.Context, text string) (any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.asks = append(f.asks, text)
	return nil, nil
}

func (f *fakeDeviceControl) PlayURL(_ context.Context, url string) (any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.playURLs = append(f.playURLs, url)
	return nil, nil
}

func (f *fakeDeviceControl) Stop(_ context.Context) (any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	return nil, nil
}

func (f *fakeDeviceControl) stopCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stops
}

func (f *fakeDeviceControl) playURLCalls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.playURLs))
	copy(out, f.playURLs)
	return out
}

func (f *fakeDeviceControl) speakCalls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.speaks))
	copy(out, f.speaks)
	return out
}

// fakeDurationProbe returns a short fixed duration for every path, so
// orchestrator tests don't depend on real audio files or wait long for
// auto-advance timers to fire.
type fakeDurationProbe struct{}

func (fakeDurationProbe) Probe(_ context.Context, _ string) (time.Duration, bool) {
	return 50 * time.Millisecond, true
}

// unplayableDurationProbe always fails to determine a duration.
type unplayableDurationProbe struct{}

func (unplayableDurationProbe) Probe(_ context.Context, _ string) (time.Duration, bool) {
	return 0, false
}
