package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/ProjectPAIE/sovereign-file-tracker/internal/app"
	"github.com/ProjectPAIE/sovereign-file-tracker/internal/config"
	"github.com/ProjectPAIE/sovereign-file-tracker/internal/sft"
)

var rootCmd = &cobra.Command{
	Use:           "sft",
	Short:         "Sovereign File Tracker: file lineage, links and archive integrity",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// init command
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create config, folder structure and schema",
	Args:  usageArgs(cobra.NoArgs),
	RunE: func(cmd *cobra.Command, _ []string) (err error) {
		paths, err := app.ResolvePaths()
		if err != nil {
			return err
		}

		configPath := paths.ConfigFile
		if _, statErr := os.Stat(configPath); errors.Is(statErr, os.ErrNotExist) {
			cfg := config.NewConfig(uuid.New().String(), paths.Home)
			if err := config.Init(configPath, cfg); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Configuration initialized at %s\n", configPath)
		}

		a, err := newApp(cmd, "Init", app.Options{Migrate: true})
		if err != nil {
			return err
		}
		defer closeApp(a, &err)

		if err := a.Init(); err != nil {
			return fmt.Errorf("creating folder structure: %w", err)
		}
		cfg := a.Config()
		fmt.Fprintf(cmd.OutOrStdout(), "Host ID:  %s\nBase Dir: %s\nIngest:   %s\n", cfg.HostID, cfg.BaseDir, cfg.Layout.IngestDir)
		return nil
	},
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "Show the effective configuration",
	Args:  usageArgs(cobra.NoArgs),
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, path, err := loadConfig()
		if err != nil {
			return err
		}
		if err := config.ApplyEnv(cfg); err != nil {
			return err
		}
		p, err := out(cmd)
		if err != nil {
			return err
		}
		return p.print(cfg, func(w io.Writer) error {
			fmt.Fprintf(w, "# %s\n", path)
			return (&config.Manager{}).Write(w, cfg)
		})
	},
}

var ingestCmd = &cobra.Command{
	Use:   "ingest FILE",
	Short: "Run the ingest pipeline on one file",
	Args:  usageArgs(cobra.ExactArgs(1)),
	RunE: func(cmd *cobra.Command, a []string) (err error) {
		update, _ := cmd.Flags().GetBool("update")
		p, err := out(cmd)
		if err != nil {
			return err
		}
		sa, err := newApp(cmd, "Ingest", app.Options{})
		if err != nil {
			return err
		}
		defer closeApp(sa, &err)

		rev, err := sa.Ingest(a[0], update)
		if err != nil {
			return err
		}
		return p.print(rev, func(w io.Writer) error { return writeRevision(w, "Ingested", rev) })
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch the ingest and update folders until interrupted",
	Args:  usageArgs(cobra.NoArgs),
	RunE: func(cmd *cobra.Command, _ []string) (err error) {
		sa, err := newAppAt(cmd, "Watch", app.Options{}, slog.LevelInfo)
		if err != nil {
			return err
		}
		defer closeApp(sa, &err)

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return sa.Watch(ctx)
	},
}

var findCmd = &cobra.Command{
	Use:   "find ID",
	Short: "Find files by identity or filename substring",
	Args:  usageArgs(cobra.ExactArgs(1)),
	RunE: func(cmd *cobra.Command, a []string) (err error) {
		limit, _ := cmd.Flags().GetInt("limit")
		offset, _ := cmd.Flags().GetInt("offset")
		p, err := out(cmd)
		if err != nil {
			return err
		}
		sa, err := newApp(cmd, "Find", app.Options{})
		if err != nil {
			return err
		}
		defer closeApp(sa, &err)

		revs, err := sa.Find(a[0], limit, offset)
		if err != nil {
			return err
		}
		return p.print(revs, func(w io.Writer) error { return writeRevisions(w, revs) })
	},
}

var lsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List recently touched files",
	Args:  usageArgs(cobra.NoArgs),
	RunE: func(cmd *cobra.Command, _ []string) (err error) {
		limit, _ := cmd.Flags().GetInt("limit")
		p, err := out(cmd)
		if err != nil {
			return err
		}
		sa, err := newApp(cmd, "Recent", app.Options{})
		if err != nil {
			return err
		}
		defer closeApp(sa, &err)

		revs, err := sa.Recent(limit)
		if err != nil {
			return err
		}
		return p.print(revs, func(w io.Writer) error { return writeRevisions(w, revs) })
	},
}

var viewCmd = &cobra.Command{
	Use:   "view ID",
	Short: "Show every matching revision in full",
	Args:  usageArgs(cobra.ExactArgs(1)),
	RunE: func(cmd *cobra.Command, a []string) (err error) {
		p, err := out(cmd)
		if err != nil {
			return err
		}
		sa, err := newApp(cmd, "View", app.Options{})
		if err != nil {
			return err
		}
		defer closeApp(sa, &err)

		revs, err := sa.Find(a[0], 0, 0)
		if err != nil {
			return err
		}
		if len(revs) == 0 {
			return fmt.Errorf("%q: %w", a[0], sft.ErrNotFound)
		}
		return p.print(revs, func(w io.Writer) error { return writeRevisionDetails(w, revs) })
	},
}

var historyCmd = &cobra.Command{
	Use:   "history ID",
	Short: "Show every revision of one file",
	Args:  usageArgs(cobra.ExactArgs(1)),
	RunE: func(cmd *cobra.Command, a []string) (err error) {
		p, err := out(cmd)
		if err != nil {
			return err
		}
		sa, err := newApp(cmd, "History", app.Options{})
		if err != nil {
			return err
		}
		defer closeApp(sa, &err)

		revs, err := sa.History(a[0])
		if err != nil {
			return err
		}
		return p.print(revs, func(w io.Writer) error { return writeRevisionDetails(w, revs) })
	},
}

var diffCmd = &cobra.Command{
	Use:   "diff ID",
	Short: "Show a unified diff between two revisions",
	Args:  usageArgs(cobra.ExactArgs(1)),
	RunE: func(cmd *cobra.Command, a []string) (err error) {
		from, _ := cmd.Flags().GetInt("from")
		to, _ := cmd.Flags().GetInt("to")
		p, err := out(cmd)
		if err != nil {
			return err
		}
		sa, err := newApp(cmd, "Diff", app.Options{})
		if err != nil {
			return err
		}
		defer closeApp(sa, &err)

		d, err := sa.Diff(a[0], from, to)
		if err != nil {
			return err
		}
		return p.print(d, func(w io.Writer) error { return writeDiff(w, d) })
	},
}

var checkoutCmd = &cobra.Command{
	Use:   "checkout ID",
	Short: "Copy the latest revision out for editing",
	Args:  usageArgs(cobra.ExactArgs(1)),
	RunE: func(cmd *cobra.Command, a []string) (err error) {
		dest, _ := cmd.Flags().GetString("dest")
		sa, err := newApp(cmd, "Checkout", app.Options{})
		if err != nil {
			return err
		}
		defer closeApp(sa, &err)

		path, err := sa.Checkout(a[0], dest)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Checked out to %s\n", path)
		return nil
	},
}

// tagCommand builds tag and untag, which differ only in op.
func tagCommand(use, short, operation string, op sft.TagOp) *cobra.Command {
	return &cobra.Command{
		Use:   use + " ID TAG...",
		Short: short,
		Args:  usageArgs(cobra.MinimumNArgs(2)),
		RunE: func(cmd *cobra.Command, a []string) (err error) {
			p, err := out(cmd)
			if err != nil {
				return err
			}
			sa, err := newApp(cmd, operation, app.Options{})
			if err != nil {
				return err
			}
			defer closeApp(sa, &err)

			rev, err := sa.Tag(a[0], op, a[1:])
			if err != nil {
				return err
			}
			return p.print(rev, func(w io.Writer) error { return writeRevision(w, "Updated", rev) })
		},
	}
}

var noteCmd = &cobra.Command{
	Use:   "note ID [TEXT]",
	Short: "Replace the notes of the latest revision",
	Long:  "Replace the notes of the latest revision. Without TEXT the note is read from stdin.",
	Args:  usageArgs(cobra.MinimumNArgs(1)),
	RunE: func(cmd *cobra.Command, a []string) (err error) {
		text, err := noteText(a[1:], cmd.InOrStdin())
		if err != nil {
			return err
		}
		p, err := out(cmd)
		if err != nil {
			return err
		}
		sa, err := newApp(cmd, "Note", app.Options{})
		if err != nil {
			return err
		}
		defer closeApp(sa, &err)

		rev, err := sa.Note(a[0], text)
		if err != nil {
			return err
		}
		return p.print(rev, func(w io.Writer) error { return writeRevision(w, "Updated", rev) })
	},
}

var linkCmd = &cobra.Command{
	Use:   "link SRC DST",
	Short: "Link two files",
	Args:  usageArgs(cobra.ExactArgs(2)),
	RunE: func(cmd *cobra.Command, a []string) (err error) {
		notes, _ := cmd.Flags().GetString("notes")
		p, err := out(cmd)
		if err != nil {
			return err
		}
		sa, err := newApp(cmd, "Link", app.Options{})
		if err != nil {
			return err
		}
		defer closeApp(sa, &err)

		edge, err := sa.Link(a[0], a[1], notes)
		if err != nil {
			return err
		}
		return p.print(edge, func(w io.Writer) error { return writeEdge(w, "Linked", edge) })
	},
}

var unlinkCmd = &cobra.Command{
	Use:   "unlink SRC DST",
	Short: "Remove the link between two files",
	Args:  usageArgs(cobra.ExactArgs(2)),
	RunE: func(cmd *cobra.Command, a []string) (err error) {
		sa, err := newApp(cmd, "Unlink", app.Options{})
		if err != nil {
			return err
		}
		defer closeApp(sa, &err)

		removed, err := sa.Unlink(a[0], a[1])
		if err != nil {
			return err
		}
		if !removed {
			return fmt.Errorf("link %s -> %s: %w", a[0], a[1], sft.ErrNotFound)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Unlinked %s -> %s\n", a[0], a[1])
		return nil
	},
}

func linkTagCommand(use, short, operation string, op sft.TagOp) *cobra.Command {
	return &cobra.Command{
		Use:   use + " SRC DST TAG...",
		Short: short,
		Args:  usageArgs(cobra.MinimumNArgs(3)),
		RunE: func(cmd *cobra.Command, a []string) (err error) {
			p, err := out(cmd)
			if err != nil {
				return err
			}
			sa, err := newApp(cmd, operation, app.Options{})
			if err != nil {
				return err
			}
			defer closeApp(sa, &err)

			edge, err := sa.LinkTags(a[0], a[1], op, a[2:])
			if err != nil {
				return err
			}
			return p.print(edge, func(w io.Writer) error { return writeEdge(w, "Updated", edge) })
		},
	}
}

var showLinksCmd = &cobra.Command{
	Use:   "show-links ID",
	Short: "List links leaving a file",
	Args:  usageArgs(cobra.ExactArgs(1)),
	RunE: func(cmd *cobra.Command, a []string) (err error) {
		p, err := out(cmd)
		if err != nil {
			return err
		}
		sa, err := newApp(cmd, "ShowLinks", app.Options{})
		if err != nil {
			return err
		}
		defer closeApp(sa, &err)

		links, err := sa.Outgoing(a[0])
		if err != nil {
			return err
		}
		return p.print(links, func(w io.Writer) error { return writeLinked(w, "->", links) })
	},
}

var backlinksCmd = &cobra.Command{
	Use:   "backlinks ID",
	Short: "List links arriving at a file",
	Args:  usageArgs(cobra.ExactArgs(1)),
	RunE: func(cmd *cobra.Command, a []string) (err error) {
		p, err := out(cmd)
		if err != nil {
			return err
		}
		sa, err := newApp(cmd, "Backlinks", app.Options{})
		if err != nil {
			return err
		}
		defer closeApp(sa, &err)

		links, err := sa.Incoming(a[0])
		if err != nil {
			return err
		}
		return p.print(links, func(w io.Writer) error { return writeLinked(w, "<-", links) })
	},
}

var allLinksCmd = &cobra.Command{
	Use:   "all-links",
	Short: "List every link",
	Args:  usageArgs(cobra.NoArgs),
	RunE: func(cmd *cobra.Command, _ []string) (err error) {
		p, err := out(cmd)
		if err != nil {
			return err
		}
		sa, err := newApp(cmd, "AllLinks", app.Options{})
		if err != nil {
			return err
		}
		defer closeApp(sa, &err)

		pairs, err := sa.AllLinks()
		if err != nil {
			return err
		}
		return p.print(pairs, func(w io.Writer) error { return writeLinkPairs(w, pairs) })
	},
}

var traceCmd = &cobra.Command{
	Use:   "trace SRC DST",
	Short: "Find the shortest link path between two files",
	Args:  usageArgs(cobra.ExactArgs(2)),
	RunE: func(cmd *cobra.Command, a []string) (err error) {
		p, err := out(cmd)
		if err != nil {
			return err
		}
		sa, err := newApp(cmd, "Trace", app.Options{})
		if err != nil {
			return err
		}
		defer closeApp(sa, &err)

		steps, err := sa.Trace(a[0], a[1])
		if err != nil {
			return err
		}
		return p.print(steps, func(w io.Writer) error { return writeTrace(w, steps) })
	},
}

var repairCmd = &cobra.Command{
	Use:   "repair",
	Short: "Audit the symlink projection, optionally fixing drift",
	Args:  usageArgs(cobra.NoArgs),
	RunE: func(cmd *cobra.Command, _ []string) (err error) {
		fix, _ := cmd.Flags().GetBool("fix")
		p, err := out(cmd)
		if err != nil {
			return err
		}
		sa, err := newApp(cmd, "Repair", app.Options{})
		if err != nil {
			return err
		}
		defer closeApp(sa, &err)

		report, err := sa.Audit(fix)
		if err != nil {
			return err
		}
		if err := p.print(report, func(w io.Writer) error { return writeAudit(w, report) }); err != nil {
			return err
		}
		if report.FixFailed > 0 {
			return fmt.Errorf("%d link(s) could not be repaired: %w", report.FixFailed, sft.ErrIntegrityDrift)
		}
		return nil
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete ID",
	Short: "Mark a file deleted and move its revisions to the trash",
	Args:  usageArgs(cobra.ExactArgs(1)),
	RunE: func(cmd *cobra.Command, a []string) (err error) {
		p, err := out(cmd)
		if err != nil {
			return err
		}
		sa, err := newApp(cmd, "Delete", app.Options{})
		if err != nil {
			return err
		}
		defer closeApp(sa, &err)

		res, err := sa.Delete(a[0])
		if err != nil {
			return err
		}
		return p.print(res, func(w io.Writer) error { return writeDelete(w, res) })
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarize the store",
	Args:  usageArgs(cobra.NoArgs),
	RunE: func(cmd *cobra.Command, _ []string) (err error) {
		p, err := out(cmd)
		if err != nil {
			return err
		}
		sa, err := newApp(cmd, "Stats", app.Options{})
		if err != nil {
			return err
		}
		defer closeApp(sa, &err)

		s, err := sa.Stats()
		if err != nil {
			return err
		}
		return p.print(s, func(w io.Writer) error { return writeStats(w, s) })
	},
}

var oplogCmd = &cobra.Command{
	Use:   "oplog",
	Short: "Show the operation log",
	Args:  usageArgs(cobra.NoArgs),
	RunE: func(cmd *cobra.Command, _ []string) (err error) {
		limit, _ := cmd.Flags().GetInt("limit")
		p, err := out(cmd)
		if err != nil {
			return err
		}
		sa, err := newApp(cmd, "Oplog", app.Options{})
		if err != nil {
			return err
		}
		defer closeApp(sa, &err)

		ops, err := sa.Operations(limit)
		if err != nil {
			return err
		}
		return p.print(ops, func(w io.Writer) error { return writeOperations(w, ops) })
	},
}

// snapshot command
var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Manage metadata snapshots",
}

var snapshotKeygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate the snapshot key pair",
	Args:  usageArgs(cobra.NoArgs),
	RunE: func(cmd *cobra.Command, _ []string) (err error) {
		sa, err := newApp(cmd, "SnapshotKeygen", app.Options{SkipVersionCheck: true})
		if err != nil {
			return err
		}
		defer closeApp(sa, &err)

		if !sa.EncryptionEnabled() {
			return app.ErrEncryptionDisabled
		}
		passphrase, err := readNewPassphrase(cmd.InOrStdin(), cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		if err := sa.GenerateKeys(passphrase); err != nil {
			return err
		}
		enc := sa.Config().Encryption
		fmt.Fprintf(cmd.OutOrStdout(), "Public key:  %s\nPrivate key: %s\n", enc.PublicKeyPath, enc.PrivateKeyPath)
		return nil
	},
}

var snapshotPushCmd = &cobra.Command{
	Use:   "push",
	Short: "Push a snapshot of the store to every vault",
	Args:  usageArgs(cobra.NoArgs),
	RunE: func(cmd *cobra.Command, _ []string) (err error) {
		sa, err := newApp(cmd, "SnapshotPush", app.Options{})
		if err != nil {
			return err
		}

		version, err := sa.PushSnapshot()
		if err != nil {
			sa.Close()
			return err
		}
		// The snapshot is taken when the app closes.
		if err := sa.Close(); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Pushed snapshot version %d\n", version)
		return nil
	},
}

var snapshotRestoreCmd = &cobra.Command{
	Use:   "restore",
	Short: "Restore the newest snapshot to a file",
	Args:  usageArgs(cobra.NoArgs),
	RunE: func(cmd *cobra.Command, _ []string) (err error) {
		dest, _ := cmd.Flags().GetString("out")
		if dest == "" {
			return usagef("--out is required")
		}
		dest, err = filepath.Abs(dest)
		if err != nil {
			return fmt.Errorf("resolving path: %w", err)
		}
		p, err := out(cmd)
		if err != nil {
			return err
		}
		sa, err := newApp(cmd, "SnapshotRestore", app.Options{SkipVersionCheck: true})
		if err != nil {
			return err
		}
		defer closeApp(sa, &err)

		var passphrase string
		if sa.EncryptionEnabled() {
			if passphrase, err = readPassphrase(cmd.InOrStdin(), cmd.ErrOrStderr(), "Passphrase: "); err != nil {
				return err
			}
		}
		res, err := sa.RestoreSnapshot(passphrase, dest)
		if err != nil {
			return err
		}
		return p.print(res, func(w io.Writer) error { return writeRestore(w, res) })
	},
}

func init() {
	rootCmd.PersistentFlags().StringP("format", "f", "text", "Output format: text, json or yaml")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Log debug output to stderr")
	rootCmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &usageError{err: err}
	})

	// config subcommands
	configCmd.AddCommand(configListCmd)

	// snapshot subcommands
	snapshotCmd.AddCommand(snapshotKeygenCmd)
	snapshotCmd.AddCommand(snapshotPushCmd)
	snapshotCmd.AddCommand(snapshotRestoreCmd)
	snapshotRestoreCmd.Flags().StringP("out", "o", "", "Write the restored store to this file")

	// root commands
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(ingestCmd)
	ingestCmd.Flags().BoolP("update", "u", false, "Append a revision to the file with the same name")
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(findCmd)
	findCmd.Flags().IntP("limit", "n", 25, "Maximum number of revisions to show")
	findCmd.Flags().Int("offset", 0, "Number of revisions to skip")
	rootCmd.AddCommand(lsCmd)
	lsCmd.Flags().IntP("limit", "n", 20, "Maximum number of files to show")
	rootCmd.AddCommand(viewCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(diffCmd)
	diffCmd.Flags().Int("from", 0, "Older revision (default: second newest)")
	diffCmd.Flags().Int("to", 0, "Newer revision (default: newest)")
	rootCmd.AddCommand(checkoutCmd)
	checkoutCmd.Flags().StringP("dest", "d", "", "Destination directory (default: layout.checkout_dir)")
	rootCmd.AddCommand(tagCommand("tag", "Add tags to the latest revision", "Tag", sft.TagAdd))
	rootCmd.AddCommand(tagCommand("untag", "Remove tags from the latest revision", "Untag", sft.TagRemove))
	rootCmd.AddCommand(noteCmd)
	rootCmd.AddCommand(linkCmd)
	linkCmd.Flags().String("notes", "", "Notes describing the link")
	rootCmd.AddCommand(unlinkCmd)
	rootCmd.AddCommand(linkTagCommand("link-tag", "Add tags to a link", "LinkTag", sft.TagAdd))
	rootCmd.AddCommand(linkTagCommand("link-untag", "Remove tags from a link", "LinkUntag", sft.TagRemove))
	rootCmd.AddCommand(showLinksCmd)
	rootCmd.AddCommand(backlinksCmd)
	rootCmd.AddCommand(allLinksCmd)
	rootCmd.AddCommand(traceCmd)
	rootCmd.AddCommand(repairCmd)
	repairCmd.Flags().Bool("fix", false, "Repair missing and incorrect links")
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(oplogCmd)
	oplogCmd.Flags().IntP("limit", "n", 50, "Maximum number of operations to show")
	rootCmd.AddCommand(snapshotCmd)
}
