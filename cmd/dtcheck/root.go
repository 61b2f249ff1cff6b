package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/joshuapare/dtcheck/internal/logger"
	"github.com/spf13/cobra"
)

var (
	// Global flags
	verbose  bool
	quiet    bool
	jsonOut  bool
	logLevel string
	logFile  string
	logDir   string
	logJSON  bool
)

var rootCmd = &cobra.Command{
	Use:   "dtcheck",
	Short: "Write and verify self-describing data patterns on files and block devices",
	Long: `dtcheck writes deterministic data patterns (fixed, ASCII, incrementing,
IOT, prefix, timestamp, lbdata and block tags) to a file or device and proves
on read-back that every byte returned is the byte written. A miscompare is
localized, analyzed, reread to separate read from write failures, and saved
as EXPECT/CORRUPT/REREAD artifacts with the command lines that reproduce it.`,
	Version:           "0.1.0",
	SilenceUsage:      true,
	PersistentPreRunE: setupLogging,
	PersistentPostRun: func(*cobra.Command, []string) { logger.Close() },
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().
		BoolVarP(&quiet, "quiet", "q", false, "Suppress all output except errors")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "",
		"Enable logging at this level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "Append log records to this file instead of stderr")
	rootCmd.PersistentFlags().StringVar(&logDir, "log-dir", "", "Write dated log files to this directory")
	rootCmd.PersistentFlags().BoolVar(&logJSON, "log-json", false, "Write log records as JSON")
}

func setupLogging(*cobra.Command, []string) error {
	if logLevel == "" && logFile == "" && logDir == "" {
		return logger.Init(logger.Options{})
	}
	name := logLevel
	if name == "" {
		name = "info"
	}
	level, err := logger.ParseLevel(name)
	if err != nil {
		return err
	}
	return logger.Init(logger.Options{
		Enabled: true,
		File:    logFile,
		LogDir:  logDir,
		Level:   level,
		JSON:    logJSON,
	})
}

func execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// printInfo prints an info message if not in quiet mode
func printInfo(format string, args ...interface{}) {
	if !quiet {
		fmt.Fprintf(os.Stdout, format, args...)
	}
}

// printVerbose prints a verbose message if verbose mode is enabled
func printVerbose(format string, args ...interface{}) {
	if verbose && !quiet {
		fmt.Fprintf(os.Stdout, format, args...)
	}
}

// printJSON outputs data as JSON
func printJSON(v interface{}) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
