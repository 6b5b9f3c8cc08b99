package cmd

import (
	"fmt"

	"github.com/hilligsoe/localdj/localdj"
)

// buildOrchestrator wires the indexer, index store, duration probe,
// device control, file gateway and keyword sets from the loaded
// config into a ready-to-use Orchestrator, per SPEC_FULL.md's
// component wiring. watcher is nil when search.watch_filesystem is
// false or no directory could be watched.
func buildOrchestrator() (*localdj.Orchestrator, *localdj.Gateway, *localdj.DirWatcher, error) {
	if len(cfg.MusicDirs) == 0 {
		return nil, nil, nil, fmt.Errorf("no music directories configured (set music_dirs)")
	}

	idx := localdj.NewIndexer(cfg.MusicDirs, cfg.SupportedAudioExtensions)
	store := localdj.NewIndexStore(cfg.Search.IndexFile)
	probe := localdj.TagDurationProbe{}

	baseURL := cfg.ResolveBaseURL()
	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	gw := localdj.NewGateway(addr, baseURL)

	device := localdj.ShellDeviceControl{}

	sets := localdj.NewKeywordSets(
		cfg.Commands.PlayKeywords,
		cfg.Commands.StopKeywords,
		cfg.Commands.RefreshKeywords,
		cfg.Commands.RandomPlayKeywords,
		cfg.Commands.InterruptWhitelistKeywords,
	)

	orchCfg := localdj.OrchestratorConfig{
		MaxResults:             cfg.Search.MaxResults,
		TimerBuffer:            cfg.TimerBuffer(),
		ReplyInterruptTimeout:  cfg.ReplyInterruptTimeout(),
		ReplyInterruptCooldown: cfg.ReplyInterruptCooldown(),
		AutoResumeDelay:        cfg.AutoResumeDelay(),
	}
	orch := localdj.NewOrchestrator(cfg.MusicDirs, idx, store, probe, device, gw, sets, orchCfg)

	var watcher *localdj.DirWatcher
	if cfg.Search.WatchFilesystem {
		w, err := localdj.NewDirWatcher(cfg.MusicDirs, 0)
		if err != nil {
			fmt.Printf("filesystem watch disabled: %v\n", err)
		} else {
			watcher = w
		}
	}

	return orch, gw, watcher, nil
}
