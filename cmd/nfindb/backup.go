package main

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nfinity/nfindb/internal/config"
	nfsync "github.com/nfinity/nfindb/internal/sync"
)

var exportCmd = &cobra.Command{
	Use:     "export",
	Short:   "Write every document as JSONL",
	GroupID: "backup",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		out, _ := cmd.Flags().GetString("out")
		if out == "" || out == "-" {
			return nfsync.ExportJSONL(cmd.Context(), docStore, cmd.OutOrStdout())
		}

		var buf bytes.Buffer
		if err := nfsync.ExportJSONL(cmd.Context(), docStore, &buf); err != nil {
			return err
		}
		if err := os.WriteFile(out, buf.Bytes(), 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", out, err)
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Exported to %s (%d bytes)\n", out, buf.Len())
		return nil
	},
}

var importCmd = &cobra.Command{
	Use:   "import [file]",
	Short: "Restore documents from a JSONL export",
	Long: `Restore documents from a JSONL export, keeping their original creation
times. Reads the file argument, standard input when it is "-" or omitted,
or the configured S3 object or git file with --from.`,
	GroupID: "backup",
	Args:    cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		from, _ := cmd.Flags().GetString("from")

		var r io.Reader
		switch {
		case from != "" && len(args) > 0:
			return errors.New("pass either a file or --from, not both")
		case from != "":
			src, err := backupSource(cmd.Context(), cfg, from)
			if err != nil {
				return err
			}
			data, err := src.Read(cmd.Context())
			if errors.Is(err, nfsync.ErrNoBackup) {
				return fmt.Errorf("nothing to import: %w", err)
			}
			if err != nil {
				return err
			}
			r = bytes.NewReader(data)
		case len(args) == 0 || args[0] == "-":
			r = bufio.NewReader(cmd.InOrStdin())
		default:
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			r = bufio.NewReader(f)
		}

		n, err := nfsync.ImportJSONL(cmd.Context(), docStore, r)
		if err != nil {
			return fmt.Errorf("import stopped after %d documents: %w", n, err)
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), map[string]int{"imported": n})
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Imported %d documents\n", n)
		return nil
	},
}

func s3Config(c *config.Config) nfsync.S3Config {
	return nfsync.S3Config{
		Bucket:   c.SyncS3Bucket,
		Key:      c.SyncS3Key,
		Region:   c.SyncS3Region,
		Endpoint: c.SyncS3Endpoint,
	}
}

// backupSource builds the destination named by --from so it can be read.
func backupSource(ctx context.Context, c *config.Config, from string) (nfsync.Source, error) {
	switch from {
	case "s3":
		if c.SyncS3Bucket == "" {
			return nil, errors.New("NFINDB_SYNC_S3_BUCKET is not set")
		}
		d, err := nfsync.NewS3Destination(ctx, s3Config(c))
		if err != nil {
			return nil, err
		}
		return d, nil
	case "git":
		if c.SyncGitRepo == "" {
			return nil, errors.New("NFINDB_SYNC_GIT_REPO is not set")
		}
		return nfsync.NewGitDestination(c.SyncGitRepo, c.SyncGitFile, c.SyncGitBranch), nil
	}
	return nil, fmt.Errorf("unknown backup source %q (must be s3 or git)", from)
}

// backupDestinations builds every destination the configuration enables.
func backupDestinations(ctx context.Context, c *config.Config) ([]nfsync.Destination, error) {
	var dests []nfsync.Destination
	if c.SyncS3Bucket != "" {
		s3Dest, err := nfsync.NewS3Destination(ctx, s3Config(c))
		if err != nil {
			return nil, fmt.Errorf("failed to create S3 sync destination: %w", err)
		}
		dests = append(dests, s3Dest)
		logger.Info("sync S3 destination enabled", "bucket", c.SyncS3Bucket, "key", c.SyncS3Key)
	}
	if c.SyncGitRepo != "" {
		dests = append(dests, nfsync.NewGitDestination(c.SyncGitRepo, c.SyncGitFile, c.SyncGitBranch))
		logger.Info("sync git destination enabled", "repo", c.SyncGitRepo, "file", c.SyncGitFile)
	}
	if len(dests) == 0 {
		return nil, errors.New("no backup destination configured (set NFINDB_SYNC_S3_BUCKET or NFINDB_SYNC_GIT_REPO)")
	}
	return dests, nil
}

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Periodically export every document to S3 and/or git",
	Long: `Export every document to the configured destinations once, then every
NFINDB_SYNC_INTERVAL until interrupted. With --once, export a single time
and exit non-zero if any destination failed.`,
	GroupID: "backup",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		once, _ := cmd.Flags().GetBool("once")

		dests, err := backupDestinations(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		scheduler := nfsync.NewScheduler(docStore, dests, cfg.SyncInterval, logger)

		if once {
			rep := scheduler.SyncOnce(cmd.Context())
			if rep.Err != nil {
				return fmt.Errorf("export failed: %w", rep.Err)
			}
			if !rep.OK() {
				return fmt.Errorf("%d of %d destinations failed: %s", len(rep.Failed), len(dests), strings.Join(rep.Failed, ", "))
			}
			if jsonOutput {
				return printJSON(cmd.OutOrStdout(), rep)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Backed up %d bytes to %s\n", rep.Bytes, strings.Join(rep.Written, ", "))
			return nil
		}

		scheduler.Start()
		logger.Info("sync scheduler started", "interval", cfg.SyncInterval)

		// Wait for SIGINT or SIGTERM.
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigCh)
		sig := <-sigCh
		logger.Info("received signal, shutting down", "signal", sig)

		scheduler.Stop()
		logger.Info("sync scheduler stopped")
		return nil
	},
}

func init() {
	exportCmd.Flags().StringP("out", "o", "", "write to this file instead of stdout")
	importCmd.Flags().String("from", "", "read the configured backup instead of a file (s3 or git)")
	backupCmd.Flags().Bool("once", false, "export once and exit")
}
