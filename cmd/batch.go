package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var batchLimit int

var batchCmd = &cobra.Command{
	Use:   "batch <dir>",
	Short: "Scan every card image in a directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("batch"); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		images, err := listImages(args[0])
		if err != nil {
			return err
		}
		if batchLimit > 0 && len(images) > batchLimit {
			images = images[:batchLimit]
		}
		if len(images) == 0 {
			return eris.Errorf("no card images found in %s", args[0])
		}

		snapshots, err := initStore(ctx)
		if err != nil {
			return err
		}
		if snapshots != nil {
			defer snapshots.Close()
		}
		client := initClient()

		var done, failed atomic.Int32

		g, ctx := errgroup.WithContext(ctx)
		g.SetLimit(cfg.Batch.MaxConcurrent)
		for _, path := range images {
			path := path
			g.Go(func() error {
				sess, err := runScan(ctx, client, snapshots, path)
				if err != nil {
					failed.Add(1)
					zap.L().Error("batch scan failed", zap.String("image", path), zap.Error(err))
					return nil // keep scanning the rest
				}
				done.Add(1)
				zap.L().Info("batch scan complete",
					zap.String("image", path),
					zap.String("session", sess.ID),
					zap.String("contact", sess.Contact.Name),
				)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "scanned %d card(s), %d failed\n", done.Load(), failed.Load())
		return nil
	},
}

func init() {
	batchCmd.Flags().IntVar(&batchLimit, "limit", 0, "max number of images to process (0 = all)")
	rootCmd.AddCommand(batchCmd)
}

var imageExts = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".webp": true,
}

func listImages(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, eris.Wrapf(err, "read dir %s", dir)
	}

	var images []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if imageExts[strings.ToLower(filepath.Ext(e.Name()))] {
			images = append(images, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(images)
	return images, nil
}
