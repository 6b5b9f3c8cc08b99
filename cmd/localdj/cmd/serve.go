package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/hilligsoe/localdj/localdj"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the gateway, load the index, and process speaker events from stdin",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(_ *cobra.Command, _ []string) error {
	orch, gw, watcher, err := buildOrchestrator()
	if err != nil {
		return err
	}
	if watcher != nil {
		defer watcher.Close()
	}

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		signal.Stop(sigCh)
		cancel()
	}()

	gw.Start()
	defer gw.Stop()

	orch.LoadCachedIndex()
	orch.RefreshAndReply(ctx, "startup refresh")

	var watchTriggers <-chan struct{}
	if watcher != nil {
		watchTriggers = watcher.Triggers
	}
	go orch.RunBackgroundRefresh(ctx, cfg.RefreshInterval(), watchTriggers)

	dispatcher := localdj.NewDispatcher(orch)
	source := localdj.NewStdinEventSource(dispatcher)

	log.Info("localdj serving; reading events from stdin")
	source.Run(ctx, os.Stdin)
	return nil
}
