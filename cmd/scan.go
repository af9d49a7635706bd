package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/syndy/cardscan/internal/model"
	"github.com/syndy/cardscan/internal/session"
	"github.com/syndy/cardscan/internal/store"
	"github.com/syndy/cardscan/pkg/scanium"
)

var scanOutput string

var scanCmd = &cobra.Command{
	Use:   "scan <image>",
	Short: "Scan a single card image and wait for enrichment",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("scan"); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		snapshots, err := initStore(ctx)
		if err != nil {
			return err
		}
		if snapshots != nil {
			defer snapshots.Close()
		}

		sess, err := runScan(ctx, initClient(), snapshots, args[0])
		if err != nil {
			return err
		}
		return printSession(cmd.OutOrStdout().Write, *sess, scanOutput)
	},
}

func init() {
	scanCmd.Flags().StringVarP(&scanOutput, "output", "o", "json", "output format: json or yaml")
	rootCmd.AddCommand(scanCmd)
}

// runScan drives one card image through upload and enrichment, returning the
// final session snapshot.
func runScan(ctx context.Context, client scanium.Client, snapshots store.Store, path string) (*model.Session, error) {
	image, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "read image %s", path)
	}

	opts := []session.ControllerOption{}
	if snapshots != nil {
		opts = append(opts, session.WithSnapshots(snapshots))
	}
	ctl := session.NewController(uuid.New().String(), client, session.LogNotifier{}, sessionConfig(), opts...)

	if err := ctl.StartScan(); err != nil {
		return nil, err
	}
	if err := ctl.SubmitCapture(ctx, image); err != nil {
		return nil, err
	}

	zap.L().Info("card uploaded, waiting for enrichment",
		zap.String("image", path),
		zap.String("transaction", ctl.Snapshot().TransactionID),
	)
	if err := ctl.AwaitEnrichment(ctx); err != nil {
		return nil, eris.Wrap(err, "await enrichment")
	}

	sess := ctl.Snapshot()
	return &sess, nil
}

func printSession(write func([]byte) (int, error), sess model.Session, format string) error {
	var (
		out []byte
		err error
	)
	switch format {
	case "yaml":
		out, err = yaml.Marshal(sess)
	default:
		out, err = json.MarshalIndent(sess, "", "  ")
		out = append(out, '\n')
	}
	if err != nil {
		return eris.Wrap(err, "marshal session")
	}
	_, err = write(out)
	return err
}
