package cmd

import (
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/hilligsoe/localdj/localdj"
)

var reindexCmd = &cobra.Command{
	Use:   "reindex",
	Short: "Walk the configured music directories and rebuild the cached index once",
	RunE:  runReindex,
}

func init() {
	rootCmd.AddCommand(reindexCmd)
}

func runReindex(_ *cobra.Command, _ []string) error {
	if len(cfg.MusicDirs) == 0 {
		log.Fatal("no music directories configured (set music_dirs)")
	}

	idx := localdj.NewIndexer(cfg.MusicDirs, cfg.SupportedAudioExtensions)
	store := localdj.NewIndexStore(cfg.Search.IndexFile)

	snapshot, total := idx.Refresh()
	store.Save(snapshot.Songs)

	log.WithField("songs", total).Info("reindex complete")
	return nil
}
