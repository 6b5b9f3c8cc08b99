package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fatih/color"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	headerPrinter  = color.New(color.FgCyan)
	contentPrinter = color.New(color.FgYellow).Add(color.Bold)
	okPrinter      = color.New(color.FgGreen).Add(color.Bold)
	errorPrinter   = color.New(color.FgRed).Add(color.Bold)
)

var replCmd = &cobra.Command{
	Use:   "repl",
	Short: "Interactively drive the orchestrator from the terminal",
	RunE:  runRepl,
}

func init() {
	rootCmd.AddCommand(replCmd)
}

func runRepl(_ *cobra.Command, _ []string) error {
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
		cancel()
	}()

	gw.Start()
	defer gw.Stop()

	orch.LoadCachedIndex()
	var watchTriggers <-chan struct{}
	if watcher != nil {
		watchTriggers = watcher.Triggers
	}
	go orch.RunBackgroundRefresh(ctx, cfg.RefreshInterval(), watchTriggers)

	orch.RefreshAndReply(ctx, "startup refresh")

	headerPrinter.Println(`
Commands:
  say <text>   - speak text immediately
  ask <text>   - route text through the device's own dialog pipeline
  music <url>  - play an arbitrary URL
  local <kw>   - search the local library and play matches
  stop         - stop playback and clear the queue
  refresh      - refresh the library index
  quit         - exit`)

	scanner := bufio.NewScanner(os.Stdin)
	for {
		contentPrinter.Print(">>> ")
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil && err != io.EOF {
				log.WithError(err).Warn("stdin read error")
			}
			break
		}

		fields := strings.Fields(strings.TrimSpace(scanner.Text()))
		if len(fields) == 0 {
			continue
		}

		command := strings.ToLower(fields[0])
		if command == "quit" || command == "exit" {
			break
		}

		switch command {
		case "stop":
			count := orch.Stop(ctx)
			okPrinter.Printf("stopped, cleared %d entries\n", count)
			continue
		case "refresh":
			orch.RefreshAndReply(ctx, "manual refresh")
			continue
		}

		if len(fields) < 2 {
			errorPrinter.Println("missing argument")
			continue
		}
		content := strings.Join(fields[1:], " ")

		switch command {
		case "say":
			orch.Say(ctx, content)
		case "ask":
			orch.Ask(ctx, content)
		case "music":
			orch.Music(ctx, content)
		case "local":
			orch.PlayByKeyword(ctx, content)
		default:
			errorPrinter.Printf("unknown command: %s\n", command)
			continue
		}
		okPrinter.Println("ok")
	}

	fmt.Println("bye")
	return nil
}
