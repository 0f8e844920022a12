package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"audiodump/internal/monitor"
	"audiodump/pkg/adb"
	"audiodump/pkg/config"
	"audiodump/pkg/logger"
)

var (
	configPath string
	outputDir  string
)

var rootCmd = &cobra.Command{
	Use:   "audiodump-monitor",
	Short: "Pull finalized audio dump files from a connected device",
	Long: "Monitors a connected Android device for finalized audio dump files and " +
		"pulls them to local storage. Discovery uses a live logcat tail plus a " +
		"periodic poll of the on-device queue file; files are deleted from the " +
		"device after a verified copy.",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMonitor()
	},
}

var initConfigCmd = &cobra.Command{
	Use:   "init-config [path]",
	Short: "Write a default configuration file",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := configPath
		if len(args) == 1 {
			path = args[0]
		}
		if err := config.GenerateDefaultConfig(path); err != nil {
			return fmt.Errorf("failed to write config file: %w", err)
		}
		fmt.Printf("Wrote default configuration to %s\n", path)
		return nil
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml",
		"Path to configuration file")
	rootCmd.Flags().StringVarP(&outputDir, "output", "o", "",
		"Override local save directory")

	rootCmd.AddCommand(initConfigCmd)
}

func runMonitor() error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if outputDir != "" {
		cfg.Monitor.LocalDir = outputDir
	}

	log := setupLogging(cfg)

	dev := adb.New(cfg.Device.AdbPath, cfg.Device.CmdTimeout, log)
	mon := monitor.New(cfg, dev, log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Printf("Monitor running, saving to %s. Press Ctrl+C to stop.\n", cfg.Monitor.LocalDir)

	if err := mon.Run(ctx); err != nil {
		return err
	}

	fmt.Println()
	fmt.Println(mon.Summary())
	return nil
}

// setupLogging wires the configured level plus a rotating log file alongside
// stdout.
func setupLogging(cfg *config.Config) *logger.Logger {
	log := logger.Default()

	level, err := logger.ParseLevel(cfg.Logging.Level)
	if err != nil {
		log.Warn("invalid log level, using INFO", "level", cfg.Logging.Level)
		level = logger.INFO
	}
	log.SetLevel(level)

	if cfg.Logging.File != "" {
		file := &lumberjack.Logger{
			Filename:   cfg.Logging.File,
			MaxSize:    32, // MB
			MaxBackups: 3,
		}
		log.SetOutput(io.MultiWriter(os.Stdout, file))
	}
	return log
}
