package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/himanishpuri/DeepQuery/pkg/deepquery/fetch"
	"github.com/himanishpuri/DeepQuery/pkg/deepquery/storage"
	"github.com/himanishpuri/DeepQuery/pkg/models"
	"github.com/himanishpuri/DeepQuery/pkg/utils"
)

func newStoreCommand(c *cli) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "store <audio_file>...",
		Short: "Add files to the engine's index and record them in the manifest",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			db, err := c.openStore()
			if err != nil {
				return err
			}
			defer db.Close()

			q := c.engine()
			stored, skipped, failed := 0, 0, 0
			for _, arg := range args {
				path, err := absPath(arg)
				if err != nil {
					failed++
					fmt.Fprintf(c.out, "❌ %s: %v\n", arg, err)
					continue
				}

				if !force {
					indexed, err := db.IsIndexed(ctx, path)
					if err != nil {
						return err
					}
					if indexed {
						skipped++
						fmt.Fprintf(c.out, "⏭️  %s already indexed (use --force to re-store)\n", filepath.Base(path))
						continue
					}
				}

				fmt.Fprintf(c.out, "🎵 Storing %s...\n", filepath.Base(path))
				if _, err := q.Store(ctx, path); err != nil {
					if ctx.Err() != nil {
						return ctx.Err()
					}
					failed++
					fmt.Fprintf(c.out, "❌ %s: %v\n", filepath.Base(path), err)
					c.log.Errorf("Store failed for %s: %v", path, err)
					continue
				}
				if err := recordIndexed(ctx, db, path); err != nil {
					return err
				}
				stored++
			}

			fmt.Fprintf(c.out, "\n✅ %d stored, %d skipped, %d failed\n", stored, skipped, failed)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Store files even if the manifest already lists them")
	return cmd
}

func newManifestCommand(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "manifest",
		Short: "Inspect or edit the list of indexed library files",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List indexed files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, err := c.openStore()
			if err != nil {
				return err
			}
			defer db.Close()

			entries, err := db.ListIndexed(cmd.Context())
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Fprintln(c.out, "\n📭 Manifest is empty")
				return nil
			}
			fmt.Fprintf(c.out, "\n📚 %d indexed file(s):\n\n", len(entries))
			for i, e := range entries {
				fmt.Fprintf(c.out, "%d. %s\n", i+1, e.Path)
				fmt.Fprintf(c.out, "   Digest: %s | Size: %d bytes | Indexed: %s\n\n",
					e.Digest, e.SizeBytes, e.IndexedAt.Format("2006-01-02 15:04"))
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "add <audio_file>...",
		Short: "Record files as indexed without storing them",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := c.openStore()
			if err != nil {
				return err
			}
			defer db.Close()

			for _, arg := range args {
				path, err := absPath(arg)
				if err != nil {
					return fmt.Errorf("%s: %w", arg, err)
				}
				if err := recordIndexed(cmd.Context(), db, path); err != nil {
					return err
				}
				fmt.Fprintf(c.out, "✅ %s\n", path)
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "remove <audio_file>...",
		Short: "Forget manifest entries",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := c.openStore()
			if err != nil {
				return err
			}
			defer db.Close()

			for _, arg := range args {
				path, err := utils.ExpandPath(arg)
				if err != nil {
					return fmt.Errorf("%s: %w", arg, err)
				}
				if err := db.UnmarkIndexed(cmd.Context(), path); err != nil {
					return err
				}
				fmt.Fprintf(c.out, "🗑️  %s\n", path)
			}
			return nil
		},
	})

	return cmd
}

func recordIndexed(ctx context.Context, db *storage.DBClient, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	digest, err := fetch.Digest(path)
	if err != nil {
		return err
	}
	return db.MarkIndexed(ctx, models.IndexedFile{
		Path:      path,
		StoredAs:  path,
		Digest:    digest,
		SizeBytes: info.Size(),
	})
}

func absPath(arg string) (string, error) {
	path, err := utils.ExpandPath(arg)
	if err != nil {
		return "", err
	}
	if !utils.IsAudioFile(path) {
		return "", fmt.Errorf("not a supported audio file")
	}
	if _, err := os.Stat(path); err != nil {
		return "", err
	}
	return path, nil
}
