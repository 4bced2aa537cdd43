package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/andresmejia3/facegate/internal/config"
	"github.com/andresmejia3/facegate/internal/gallery"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// Options holds the values of the persistent flags. They override the configuration
// file and environment only when set explicitly.
type Options struct {
	ConfigPath   string
	Root         string
	Device       string
	Python       string
	EngineScript string
	MatchModel   string
	Preview      string
	PreviewFile  string
	Replay       string
	Staged       bool
	Debug        bool
}

var (
	opts Options

	// Cfg is the resolved configuration shared by subcommands
	Cfg *config.Config
	// Gallery is the identity store under Cfg.Root
	Gallery *gallery.Gallery
)

// Version is the application version.
const Version = "0.1.0"

var rootCmd = &cobra.Command{
	Use:     "facegate",
	Short:   "Webcam face enrollment and verification",
	Long:    "Enroll identities from five head poses and verify live captures against every enrolled identity.\nRun without a subcommand for the interactive menu.",
	Version: Version, // This enables the --version flag
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(opts.ConfigPath)
		if err != nil {
			return err
		}
		applyFlags(cmd.Flags(), &opts, cfg)
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
		Cfg = cfg
		setupLogging(cfg.Debug)

		Gallery, err = gallery.New(cfg.Root)
		if err != nil {
			return fmt.Errorf("failed to open gallery: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		closeEngine()
	},
	Run: func(cmd *cobra.Command, args []string) {
		runMenu(cmd.Context(), os.Stdin, os.Stdout)
	},
}

func Execute() {
	// Create a context that listens for Ctrl+C (SIGINT) or Kill (SIGTERM)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// This tells Cobra not to print the version in the help text, which is cleaner.
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		closeEngine()
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	f := rootCmd.PersistentFlags()
	f.StringVar(&opts.ConfigPath, "config", "", "YAML configuration file (default: $FACEGATE_CONFIG)")
	f.StringVar(&opts.Root, "root", "", "Storage root holding faces/ and tmp/ (default: ./data)")
	f.StringVar(&opts.Device, "device", "", "V4L2 camera device (default: /dev/video0)")
	f.StringVar(&opts.Python, "python", "", "Python interpreter running the engine (default: python3)")
	f.StringVar(&opts.EngineScript, "engine-script", "", "Path to engine.py (default: python/engine.py)")
	f.StringVar(&opts.MatchModel, "model", "", "DeepFace model used for matching (default: Facenet)")
	f.StringVar(&opts.Preview, "preview", "", "Live preview: none, file or window (default: none)")
	f.StringVar(&opts.PreviewFile, "preview-file", "", "JPEG written by --preview file (default: <root>/preview.jpg)")
	f.StringVar(&opts.Replay, "replay", "", "Read frames from a directory, .mjpeg file or image instead of the camera; the first aligned frame is accepted")
	f.BoolVar(&opts.Staged, "staged", false, "Keep poses in tmp/ until enrollment completes")
	f.BoolVar(&opts.Debug, "debug", false, "Verbose diagnostics on stderr")
}

// applyFlags copies every flag the user set onto cfg.
func applyFlags(flags *pflag.FlagSet, o *Options, cfg *config.Config) {
	set := func(name string, src string, dst *string) {
		if flags.Changed(name) {
			*dst = src
		}
	}
	set("root", o.Root, &cfg.Root)
	set("device", o.Device, &cfg.Camera.Device)
	set("python", o.Python, &cfg.Engine.Python)
	set("engine-script", o.EngineScript, &cfg.Engine.Script)
	set("model", o.MatchModel, &cfg.Engine.MatchModel)
	set("preview", o.Preview, &cfg.Preview.Mode)
	set("preview-file", o.PreviewFile, &cfg.Preview.File)
	set("replay", o.Replay, &cfg.Replay)
	if flags.Changed("staged") {
		cfg.Staged = o.Staged
	}
	if flags.Changed("debug") {
		cfg.Debug = o.Debug
	}
}

func setupLogging(debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}
