package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"beatlock/internal/config"
	"beatlock/internal/ffmpeg"
	"beatlock/internal/logging"
	"beatlock/internal/pipeline"
	"beatlock/internal/reconcile"
	"beatlock/internal/timeline"
)

var (
	cfgFile string
	verbose bool
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "beatlock",
	Short: "beatlock - beat-locked video composition engine",
	Long:  "Assembles generated video clips and an audio track into a single beat-synced output video.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Initialize logging
		logging.Init(verbose)

		// Load config
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}

		// Store config in context
		ctx := config.WithConfig(cmd.Context(), cfg)
		cmd.SetContext(ctx)

		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./beatlock.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(composeCmd)
	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}

var version = "dev"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("beatlock " + version)
	},
}

var composeCmd = &cobra.Command{
	Use:   "compose [manifest file] [output file]",
	Short: "Compose a manifest into the final synced video",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.FromContext(cmd.Context())

		manifest, err := timeline.LoadManifest(args[0])
		if err != nil {
			return err
		}

		exec, err := ffmpeg.New(log.Logger, ffmpeg.Options{
			Threads:       cfg.FFmpeg.Threads,
			ClipTimeout:   cfg.FFmpeg.ClipTimeout,
			EncodeTimeout: cfg.FFmpeg.EncodeTimeout,
			RetryBackoff:  cfg.FFmpeg.RetryBackoff,
		})
		if err != nil {
			return err
		}

		pipe := pipeline.New(log.Logger, cfg, exec)

		events := make(chan pipeline.Event, 64)
		done := make(chan struct{})
		go func() {
			defer close(done)
			for e := range events {
				ev := log.Debug()
				if e.Status == pipeline.EventDemoted || e.Status == pipeline.EventDegraded {
					ev = log.Warn()
				}
				ev.Str("stage", string(e.Stage)).
					Str("status", string(e.Status)).
					Int("clip", e.ClipIndex).
					Msg("progress")
			}
		}()
		pipe.SetEvents(events)

		result, err := pipe.Run(cmd.Context(), manifest, args[1])
		close(events)
		<-done
		if err != nil {
			return err
		}

		log.Info().
			Str("output", result.OutputPath).
			Float64("duration", result.TotalDuration).
			Msg("composition complete")

		return nil
	},
}

var inspectCmd = &cobra.Command{
	Use:   "inspect [manifest file]",
	Short: "Validate a manifest and print the reconciliation plan",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.FromContext(cmd.Context())

		manifest, err := timeline.LoadManifest(args[0])
		if err != nil {
			return err
		}
		if err := manifest.Validate(); err != nil {
			return fmt.Errorf("manifest invalid: %w", err)
		}

		survivors := manifest.Survivors()
		fmt.Printf("audio: %s (%.3fs)\n", manifest.AudioPath, manifest.AudioDuration)
		fmt.Printf("clips: %d usable of %d\n", len(survivors), len(manifest.Clips))

		for _, c := range survivors {
			boundary, _ := manifest.BoundaryFor(c.Index)
			decision, err := reconcile.Plan(c.Duration, boundary.Target(), cfg.Output.FPS)
			if err != nil {
				fmt.Printf("  clip %d: unplannable: %v\n", c.Index, err)
				continue
			}
			fmt.Printf("  clip %d: %.3fs -> %.3fs (%s, delta %+.3fs)\n",
				c.Index, c.Duration, boundary.Target(), decision.Strategy, decision.Delta)
		}

		transitions := timeline.RekeyTransitions(survivors, manifest.Transitions, cfg.Compose.TransitionDuration)
		for _, t := range transitions {
			fmt.Printf("  junction %d->%d: %s (%.2fs)\n", t.FromIndex, t.ToIndex, t.Kind, t.Duration)
		}

		return nil
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Config management commands",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default config file",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.FromContext(cmd.Context())

		path := cfgFile
		if path == "" {
			path = "./beatlock.yaml"
		}
		if err := cfg.Save(path); err != nil {
			return err
		}

		log.Info().Str("path", path).Msg("config written")
		return nil
	},
}

func init() {
	configCmd.AddCommand(configInitCmd)
}
