package localdj

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// DeviceControl is the out-of-scope transport contract between the
// orchestrator and the speaker's own command interface, per spec.md
// §1/§6. All methods are asynchronous from the orchestrator's point of
// view: it does not await playback completion, and a DeviceControl
// failure is logged but never mutates orchestrator state (spec.md
// §4.F "Failure semantics").
type DeviceControl interface {
	Speak(ctx context.Context, text string) (any, error)
	Ask(ctx context.Context, text string) (any, error)
	PlayURL(ctx context.Context, url string) (any, error)
	Stop(ctx context.Context) (any, error)
}

// ShellDeviceControl implements DeviceControl by shelling out to the
// same four command shapes the original implementation used,
// grounded directly on player_control.py: a TTS helper script for
// Speak, a ubus mibrain ai_service call for Ask, a ubus mediaplayer
// player_play_url call for PlayURL, and mphelper pause for Stop.
type ShellDeviceControl struct {
	// ShellTimeout bounds each command's execution. Defaults to 10s
	// if zero, matching the original's run_shell default.
	ShellTimeout time.Duration
}

const defaultShellTimeout = 10 * time.Second

func (d ShellDeviceControl) timeout() time.Duration {
	if d.ShellTimeout > 0 {
		return d.ShellTimeout
	}
	return defaultShellTimeout
}

// escapeShellSingleQuote escapes a string for safe embedding inside
// single quotes in a POSIX shell command, matching
// player_control.py's _escape_shell_single_quote.
func escapeShellSingleQuote(text string) string {
	return strings.ReplaceAll(text, "'", `'"'"'`)
}

func (d ShellDeviceControl) runShell(ctx context.Context, script string) (any, error) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout())
	defer cancel()

	cmd := exec.CommandContext(ctx, "/bin/sh", "-c", script)
	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("shell command failed: %w", err)
	}

	var parsed any
	if err := json.Unmarshal(output, &parsed); err != nil {
		return map[string]string{"raw": string(output)}, nil
	}
	return parsed, nil
}

// Speak asks the device to synthesize and play text immediately.
func (d ShellDeviceControl) Speak(ctx context.Context, text string) (any, error) {
	script := fmt.Sprintf("/usr/sbin/tts_play.sh '%s'", escapeShellSingleQuote(text))
	return d.runShell(ctx, script)
}

// Ask routes text through the device's own NLP/dialog pipeline.
func (d ShellDeviceControl) Ask(ctx context.Context, text string) (any, error) {
	payload, err := json.Marshal(map[string]any{"tts": 1, "nlp": 1, "nlp_text": text})
	if err != nil {
		return nil, err
	}
	script := fmt.Sprintf("ubus call mibrain ai_service '%s'", payload)
	return d.runShell(ctx, script)
}

// PlayURL instructs the device's media player to fetch and play url.
func (d ShellDeviceControl) PlayURL(ctx context.Context, url string) (any, error) {
	payload, err := json.Marshal(map[string]any{"url": url, "type": 1})
	if err != nil {
		return nil, err
	}
	script := fmt.Sprintf("ubus call mediaplayer player_play_url '%s'", payload)
	return d.runShell(ctx, script)
}

// Stop halts whatever the device is currently playing.
func (d ShellDeviceControl) Stop(ctx context.Context) (any, error) {
	return d.runShell(ctx, "mphelper pause")
}
