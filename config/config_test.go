package config

import "testing"

func TestResolveBaseURLPrecedence(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{
			name: "explicit base_url wins",
			cfg:  Config{HTTP: HTTP{BaseURL: "http://example.com:9000/", DeviceIP: "10.0.0.5", Port: 18080}},
			want: "http://example.com:9000",
		},
		{
			name: "device_ip used when base_url absent",
			cfg:  Config{HTTP: HTTP{DeviceIP: "10.0.0.5", Port: 9090}},
			want: "http://10.0.0.5:9090",
		},
		{
			name: "falls back to default port when unset",
			cfg:  Config{HTTP: HTTP{DeviceIP: "10.0.0.5"}},
			want: "http://10.0.0.5:18080",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cfg.ResolveBaseURL(); got != tt.want {
				t.Errorf("ResolveBaseURL() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDurationHelpers(t *testing.T) {
	cfg := Config{TimerBufferSec: 1.5}
	cfg.Search.RefreshIntervalSec = 300
	cfg.Commands.ReplyInterruptTimeoutSec = 20
	cfg.Commands.ReplyInterruptCooldownSec = 1.2
	cfg.Commands.AutoResumeDelaySec = 1.8

	if got := cfg.TimerBuffer().Seconds(); got != 1.5 {
		t.Errorf("TimerBuffer() = %v seconds, want 1.5", got)
	}
	if got := cfg.RefreshInterval().Seconds(); got != 300 {
		t.Errorf("RefreshInterval() = %v seconds, want 300", got)
	}
	if got := cfg.ReplyInterruptTimeout().Seconds(); got != 20 {
		t.Errorf("ReplyInterruptTimeout() = %v seconds, want 20", got)
	}
	if got := cfg.ReplyInterruptCooldown().Seconds(); got != 1.2 {
		t.Errorf("ReplyInterruptCooldown() = %v seconds, want 1.2", got)
	}
	if got := cfg.AutoResumeDelay().Seconds(); got != 1.8 {
		t.Errorf("AutoResumeDelay() = %v seconds, want 1.8", got)
	}
}

func TestRefreshIntervalZeroDisablesPeriodicRefresh(t *testing.T) {
	cfg := Config{}
	if got := cfg.RefreshInterval(); got != 0 {
		t.Errorf("RefreshInterval() with unset config = %v, want 0", got)
	}
}
