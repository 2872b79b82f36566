package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/glefebvre/vodharvest/internal/config"
	"github.com/glefebvre/vodharvest/internal/errors"
	"github.com/glefebvre/vodharvest/internal/logger"
	"github.com/spf13/cobra"
)

// Version is set at build time
var Version = "v0.1.0"

// payloadLimit caps the upstream payload printed with a fatal error
const payloadLimit = 2000

var rootCmd = &cobra.Command{
	Use:   "vodharvest",
	Short: "vodharvest exports an IPTV provider's VOD catalog",
	Long: `vodharvest walks the VOD catalog of an IPTV provider module, writes the
shows, episodes and stream URLs as JSON/CSV artifacts, builds a
category -> kind -> show -> season -> episode library, and can remux
episodes to local MP4 files with ffmpeg.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// version works without a valid configuration
		if cmd.Name() == versionCmd.Name() {
			return nil
		}
		return initConfig()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of vodharvest",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "vodharvest %s\n", Version)
	},
}

var (
	configFile string
	logCloser  io.Closer
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (default is ./config.yml)")
	rootCmd.AddCommand(versionCmd)
}

func initConfig() error {
	if err := config.Load(configFile); err != nil {
		return errors.ConfigError("failed to load configuration", err)
	}
	cfg := config.Get()

	out, closer, err := logger.OpenOutput(logger.FileOptions{
		Path:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
		Compress:   cfg.Logging.Compress,
	})
	if err != nil {
		return errors.ConfigError("failed to open log file", err)
	}
	logCloser = closer

	logger.InitializeLoggersWithFormat(cfg.GetAppLogLevel(), cfg.GetDatabaseLogLevel(), cfg.Logging.Format, out)
	return nil
}

func main() {
	err := rootCmd.Execute()
	if logCloser != nil {
		logCloser.Close()
	}
	os.Exit(exitCode(err, os.Stderr))
}

// exitCode prints the diagnostic for err and returns the process status:
// 0 on success, 2 for harvest failures, 3 for anything else
func exitCode(err error, w io.Writer) int {
	if err == nil {
		return 0
	}

	fmt.Fprintf(w, "ERROR: %v\n", err)
	if !errors.IsHarvestError(err) {
		return 3
	}

	if payload := errors.GetPayload(err); len(payload) > 0 {
		fmt.Fprintln(w, formatPayload(payload))
	}
	return 2
}

// formatPayload pretty-prints a JSON payload and cuts it to payloadLimit characters
func formatPayload(payload json.RawMessage) string {
	var buf bytes.Buffer
	text := string(payload)
	if err := json.Indent(&buf, payload, "", "  "); err == nil {
		text = buf.String()
	}

	if runes := []rune(text); len(runes) > payloadLimit {
		text = string(runes[:payloadLimit])
	}
	return text
}
