package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"

	"github.com/himanishpuri/DeepQuery/pkg/deepquery"
	"github.com/himanishpuri/DeepQuery/pkg/deepquery/fetch"
	"github.com/himanishpuri/DeepQuery/pkg/models"
	"github.com/himanishpuri/DeepQuery/pkg/utils"
)

type queryFlags struct {
	segment     float64
	overlap     float64
	minSegments int
	details     bool
	noProgress  bool
	youtubeURL  string
}

func (f *queryFlags) register(cmd *cobra.Command) {
	fl := cmd.Flags()
	fl.Float64Var(&f.segment, "segment", 0, "Window length in seconds (default from config, 15)")
	fl.Float64Var(&f.overlap, "overlap", -1, "Overlap between windows in seconds (default from config, 2)")
	fl.IntVar(&f.minSegments, "min-segments", -1, "Minimum matching windows to report a candidate (default from config, 1)")
	fl.BoolVar(&f.details, "details", false, "Print the matches of every window")
	fl.BoolVar(&f.noProgress, "no-progress", false, "Disable the progress bar")
}

// params overlays explicitly given flags on the configured defaults.
func (f *queryFlags) params(base models.Params) models.Params {
	p := base
	if f.segment > 0 {
		p.SegmentLength = f.segment
	}
	if f.overlap >= 0 {
		p.Overlap = f.overlap
	}
	if f.minSegments >= 0 {
		p.MinSegments = f.minSegments
	}
	return p
}

func newQueryCommand(c *cli) *cobra.Command {
	var f queryFlags
	cmd := &cobra.Command{
		Use:     "query [audio_file]",
		Aliases: []string{"deep-query"},
		Short:   "Deep query one recording window by window",
		Args:    cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			var audioPath string
			switch {
			case f.youtubeURL != "" && len(args) > 0:
				return errors.New("cannot specify both audio file and --youtube-url")
			case f.youtubeURL != "":
				fmt.Fprintln(c.out, "📥 Downloading audio...")
				path, err := fetch.NewDownloader(c.cfg.DownloadDir).Download(ctx, f.youtubeURL)
				if err != nil {
					return fmt.Errorf("failed to download %s: %w", f.youtubeURL, err)
				}
				audioPath = path
			case len(args) == 1:
				audioPath = args[0]
			default:
				return errors.New("audio file path or --youtube-url required")
			}

			printBanner(c.out)
			report, err := c.runDeepQuery(ctx, audioPath, f)
			if err != nil {
				return err
			}
			printReport(c.out, report)
			return nil
		},
	}
	f.register(cmd)
	cmd.Flags().StringVar(&f.youtubeURL, "youtube-url", "", "Download and query a YouTube video instead of a local file")
	return cmd
}

func newBatchCommand(c *cli) *cobra.Command {
	var f queryFlags
	cmd := &cobra.Command{
		Use:   "batch <directory>",
		Short: "Deep query every audio file under a directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			dir, err := utils.ExpandPath(args[0])
			if err != nil {
				return err
			}
			files, err := utils.FindAudioFiles(dir)
			if err != nil {
				return fmt.Errorf("scanning %s: %w", dir, err)
			}
			if len(files) == 0 {
				fmt.Fprintf(c.out, "\n📭 No audio files in %s\n", dir)
				return nil
			}

			printBanner(c.out)
			fmt.Fprintf(c.out, "📂 %d file(s) to query\n", len(files))

			failed := 0
			for i, file := range files {
				fmt.Fprintf(c.out, "\n[%d/%d] %s\n", i+1, len(files), filepath.Base(file))
				report, err := c.runDeepQuery(ctx, file, f)
				if err != nil {
					if ctx.Err() != nil {
						return ctx.Err()
					}
					failed++
					fmt.Fprintf(c.out, "❌ %v\n", err)
					c.log.Warnf("Deep query of %s failed: %v", file, err)
					continue
				}
				printReport(c.out, report)
			}

			fmt.Fprintf(c.out, "\n✅ Batch finished: %d ok, %d failed\n", len(files)-failed, failed)
			return nil
		},
	}
	f.register(cmd)
	return cmd
}

func (c *cli) runDeepQuery(ctx context.Context, audioPath string, f queryFlags) (*models.Report, error) {
	params := f.params(c.cfg.Params())

	var (
		progress *mpb.Progress
		bar      *mpb.Bar
	)
	onWindow := func(wr models.WindowReport) {
		if f.details {
			printWindow(c.out, wr)
			return
		}
		if f.noProgress {
			return
		}
		if bar == nil {
			progress = mpb.New(mpb.WithWidth(64), mpb.WithOutput(os.Stderr))
			bar = progress.AddBar(int64(wr.Total),
				mpb.PrependDecorators(
					decor.Name("Querying: "),
					decor.CountersNoUnit("%d / %d"),
				),
				mpb.AppendDecorators(
					decor.Percentage(),
					decor.Elapsed(decor.ET_STYLE_GO),
				),
			)
		}
		bar.Increment()
	}

	svc, err := c.createService(deepquery.WithProgress(onWindow))
	if err != nil {
		return nil, err
	}
	defer svc.Close()

	fmt.Fprintf(c.out, "🔍 Deep query: %s (%.0fs windows, %.0fs overlap)\n",
		filepath.Base(audioPath), params.SegmentLength, params.Overlap)

	report, err := svc.DeepQuery(ctx, audioPath, params)

	if progress != nil {
		if !bar.Completed() {
			bar.Abort(false)
		}
		progress.Wait()
	}

	if err != nil {
		c.log.Errorf("Deep query failed: %v", err)
		return nil, fmt.Errorf("deep query failed: %w", err)
	}
	return report, nil
}
