package cmd

import (
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/hilligsoe/localdj/config"
)

var (
	cfgFile string
	cfg     *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "localdj",
	Short: "localdj bridges a smart speaker's ASR events to a local music library",
	Long: `localdj indexes local audio files, listens for the speaker's
automatic-speech-recognition events, and instructs the speaker to fetch
and play matching songs over a short-lived local HTTP gateway.`,
}

// Execute adds all child commands to the root command and runs it.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default ~/.config/localdj/localdj.yaml)")
}

func initConfig() {
	loaded, err := config.Load(cfgFile)
	if err != nil {
		log.WithError(err).Fatal("failed to load configuration")
	}
	cfg = loaded

	level, err := log.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = log.InfoLevel
	}
	log.SetLevel(level)
}
