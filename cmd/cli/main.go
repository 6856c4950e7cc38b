package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"neuropeaks/adapters/excel"
	"neuropeaks/adapters/imotions"
	"neuropeaks/app"
	"neuropeaks/domain/core"
	"neuropeaks/internal/config"
	"neuropeaks/internal/container"
	"neuropeaks/internal/session"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "neuropeaks",
		Short:         "Align biometric exports with video, web and image stimuli",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().String("profiles-file", "", "YAML experiment profiles (overrides PROFILES_FILE)")
	rootCmd.PersistentFlags().String("output", "", "experiments root (overrides OUTPUT_DIR)")

	rootCmd.AddCommand(
		newCleanCmd(),
		newVideoCmd(),
		newWebsiteCmd(),
		newImagesCmd(),
		newWorkbookCmd(),
		newProbeCmd(),
		newServeCmd(),
	)
	return rootCmd
}

// bootstrap loads .env and the environment configuration, applies the
// persistent flags and builds the container.
func bootstrap(cmd *cobra.Command) (*container.Container, error) {
	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if v, _ := cmd.Flags().GetString("profiles-file"); v != "" {
		cfg.Paths.ProfilesFile = v
	}
	if v, _ := cmd.Flags().GetString("output"); v != "" {
		cfg.Paths.OutputDir = v
	}
	return container.New(cfg)
}

func newCleanCmd() *cobra.Command {
	var profile string
	var workers int64

	cmd := &cobra.Command{
		Use:   "clean [in-dir] [out-dir]",
		Short: "Clean every export in a folder",
		Long: `Clean every CSV export in a folder against one profile: the metadata
preamble is skipped, only StartMedia rows of the profile's stimulus are kept
and the profile's columns are written to one cleaned file per participant.

Example: neuropeaks clean raw/ cleaned/ --profile emotion --workers 8`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := bootstrap(cmd)
			if err != nil {
				return err
			}
			p, ok := c.Profiles[profile]
			if !ok {
				return fmt.Errorf("unknown profile %q", profile)
			}
			if workers <= 0 {
				workers = c.Config.Clean.Workers
			}
			results, err := imotions.NewCleaner(c.Logger).CleanDir(cmd.Context(), args[0], args[1], imotions.SchemaFromProfile(p), workers)
			if err != nil {
				return err
			}
			failed := 0
			for _, r := range results {
				if r.Err != nil {
					failed++
					fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", r.Path, r.Err)
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s -> %s (%d samples)\n", r.Participant, r.Output, r.Stream.Len())
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d exports failed", failed, len(results))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&profile, "profile", "emotion", "profile selecting the columns to keep")
	cmd.Flags().Int64Var(&workers, "workers", 0, "files cleaned at once (default CLEAN_WORKERS)")
	return cmd
}

func newVideoCmd() *cobra.Command {
	var req app.VideoPeaksRequest
	var profiles string

	cmd := &cobra.Command{
		Use:   "video",
		Short: "Find the video frames shown at each signal's peaks",
		Long: `Clean an export once per signal group, align every group with the
video's frames and save the frames shown at the strongest moments.

Example: neuropeaks video --experiment ads --export exports/001_P01.csv --video ad.mp4 --signal Joy`,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := bootstrap(cmd)
			if err != nil {
				return err
			}
			req.Profiles = splitList(profiles)
			sess, err := c.VideoPeaks.Run(cmd.Context(), req)
			return report(cmd, sess, err)
		},
	}

	cmd.Flags().StringVar(&req.Experiment, "experiment", "", "experiment name")
	cmd.Flags().StringVar(&req.Participant, "participant", "", "participant id (default from the export name)")
	cmd.Flags().StringVar(&req.ExportPath, "export", "", "biometric export (.csv or .xlsx)")
	cmd.Flags().StringVar(&req.VideoPath, "video", "", "stimulus video")
	cmd.Flags().StringVar(&profiles, "groups", strings.Join(app.DefaultVideoProfiles, ","), "comma separated signal groups")
	cmd.Flags().StringVar(&req.Stimulus, "stimulus", "", "stimulus to keep (default from the profiles)")
	cmd.Flags().StringVar(&req.Signal, "signal", "", "only organize frames of this signal")
	markRequired(cmd, "experiment", "export", "video")
	return cmd
}

func newWebsiteCmd() *cobra.Command {
	var req app.WebsiteRequest

	cmd := &cobra.Command{
		Use:   "website",
		Short: "Render gaze heatmaps over every visited page",
		Long: `Merge a browsing log with a gaze export, screenshot every visited URL
and render one gaze heatmap per page.

Example: neuropeaks website --experiment shop --log logs/P07.csv --export exports/001_P07.csv`,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := bootstrap(cmd)
			if err != nil {
				return err
			}
			sess, err := c.Website.Run(cmd.Context(), req)
			return report(cmd, sess, err)
		},
	}

	cmd.Flags().StringVar(&req.Experiment, "experiment", "", "experiment name")
	cmd.Flags().StringVar(&req.Participant, "participant", "", "participant id (default from the export name)")
	cmd.Flags().StringVar(&req.LogPath, "log", "", "browsing log")
	cmd.Flags().StringVar(&req.ExportPath, "export", "", "gaze export")
	cmd.Flags().StringVar(&req.Profile, "profile", app.DefaultWebsiteProfile, "website profile")
	markRequired(cmd, "experiment", "log", "export")
	return cmd
}

func newImagesCmd() *cobra.Command {
	var req app.ImageRequest
	var signals string

	cmd := &cobra.Command{
		Use:   "images",
		Short: "Render signal-weighted gaze heatmaps per stimulus picture",
		Long: `Clean every stimulus of an export, write the participant workbook and
render, per stimulus and signal, the gaze weighted by the signal.

Example: neuropeaks images --experiment pictures --export exports/001_P03.csv --image-dir stimuli/`,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := bootstrap(cmd)
			if err != nil {
				return err
			}
			req.Signals = splitList(signals)
			sess, err := c.Images.Run(cmd.Context(), req)
			return report(cmd, sess, err)
		},
	}

	cmd.Flags().StringVar(&req.Experiment, "experiment", "", "experiment name")
	cmd.Flags().StringVar(&req.Participant, "participant", "", "participant id (default from the export name)")
	cmd.Flags().StringVar(&req.ExportPath, "export", "", "biometric export")
	cmd.Flags().StringVar(&req.ImageDir, "image-dir", "", "folder of stimulus pictures named after the stimuli")
	cmd.Flags().StringVar(&req.DefaultImage, "default-image", "", "picture used for stimuli without one")
	cmd.Flags().StringVar(&req.Profile, "profile", app.DefaultImageProfile, "image profile")
	cmd.Flags().StringVar(&signals, "signals", "", "comma separated signals (default from the profile)")
	markRequired(cmd, "experiment", "export")
	return cmd
}

func newWorkbookCmd() *cobra.Command {
	var profile string

	cmd := &cobra.Command{
		Use:   "workbook [export] [out-dir]",
		Short: "Write one workbook sheet per stimulus",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := bootstrap(cmd)
			if err != nil {
				return err
			}
			p, ok := c.Profiles[profile]
			if !ok {
				return fmt.Errorf("unknown profile %q", profile)
			}
			raw, err := imotions.NewDataReader(args[0]).ReadRaw()
			if err != nil {
				return err
			}
			schema := imotions.SchemaFromProfile(p)
			schema.AllStimuli = true
			cleaned, err := imotions.NewCleaner(c.Logger).Clean(raw, core.ParticipantFromFilename(args[0]), schema)
			if err != nil {
				return err
			}
			extra := append(append([]string{}, p.Optional...), p.Gaze.Columns()...)
			path, err := excel.WriteWorkbook(args[1], cleaned, excel.DefaultWorkbookConfig(p.Signals, extra))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}

	cmd.Flags().StringVar(&profile, "profile", app.DefaultImageProfile, "profile selecting the columns")
	return cmd
}

func newProbeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "probe [video]",
		Short: "Print a video's size, frame rate and frame count",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := bootstrap(cmd)
			if err != nil {
				return err
			}
			info, err := c.VideoTools.Probe(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd, info)
		},
	}
}

func newServeCmd() *cobra.Command {
	var port string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := bootstrap(cmd)
			if err != nil {
				return err
			}
			defer c.Shutdown(context.Background())
			if port == "" {
				port = c.Config.Server.Port
			}
			srv, err := c.Server()
			if err != nil {
				return err
			}
			return srv.Serve(cmd.Context(), ":"+port)
		},
	}

	cmd.Flags().StringVar(&port, "port", "", "listen port (default PORT)")
	return cmd
}

// report prints the run summary. A failed run still prints what it produced.
func report(cmd *cobra.Command, sess *session.Session, err error) error {
	if sess != nil {
		if perr := printJSON(cmd, sess.Summary()); perr != nil && err == nil {
			err = perr
		}
	}
	return err
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}

func markRequired(cmd *cobra.Command, names ...string) {
	for _, name := range names {
		_ = cmd.MarkFlagRequired(name)
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
