package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"dshnews.game/internal/persistence/archive"
	"dshnews.game/internal/persistence/indexdb"
	persistlog "dshnews.game/internal/persistence/log"
	"dshnews.game/internal/persistence/savedata"
	"dshnews.game/internal/persistence/snapshot"
	"dshnews.game/internal/sim/tuning"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "savetool",
		Short:         "Inspect, validate and restore dshnews save data",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().String("data", defaultDataDir(), "runtime data directory")

	rootCmd.AddCommand(
		showCmd(),
		validateCmd(),
		historyCmd(),
		logCmd(),
		indexCmd(),
		stateCmd(),
		saveNowCmd(),
	)
	return rootCmd
}

func defaultDataDir() string {
	if v := strings.TrimSpace(os.Getenv("DSH_DATA_DIR")); v != "" {
		return v
	}
	if d, err := os.UserConfigDir(); err == nil && d != "" {
		return filepath.Join(d, "dshnews")
	}
	return "./data"
}

func dataDir(cmd *cobra.Command) string {
	return cmd.Flag("data").Value.String()
}

func saveDir(cmd *cobra.Command) string {
	return filepath.Join(dataDir(cmd), tuning.Defaults().SaveDir)
}

func savePath(cmd *cobra.Command) string {
	return filepath.Join(saveDir(cmd), tuning.Defaults().SaveFile)
}

func showCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show [file]",
		Short: "Print a save file or an archived .sav.zst snapshot",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := savePath(cmd)
			if len(args) == 1 {
				path = args[0]
			}
			asJSON, _ := cmd.Flags().GetBool("json")

			var rec *savedata.Record
			if strings.HasSuffix(path, ".zst") {
				snap, err := snapshot.Read(path)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "snapshot v%d save=%s seq=%d saved_at=%s\n",
					snap.Header.Version, snap.Header.SaveID, snap.Header.Seq, snap.Header.SavedAt)
				rec = snap.Record
			} else {
				r, err := savedata.ReadFile(path)
				if err != nil {
					return err
				}
				rec = r
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(rec)
			}
			printRecord(cmd.OutOrStdout(), rec)
			return nil
		},
	}
	cmd.Flags().Bool("json", false, "print the record as JSON")
	return cmd
}

func printRecord(w io.Writer, rec *savedata.Record) {
	fmt.Fprintf(w, "version=%d location=%q digest=%s\n", rec.Version, rec.SceneToSave, savedata.Digest(rec))
	for _, k := range sortedKeys(rec.Positions) {
		p := rec.Positions[k]
		fmt.Fprintf(w, "  position %-24s (%g, %g, %g)\n", k, p.X, p.Y, p.Z)
	}
	for _, k := range sortedKeys(rec.Floats) {
		fmt.Fprintf(w, "  float    %-24s %g\n", k, rec.Floats[k])
	}
	for _, k := range sortedKeys(rec.Bools) {
		fmt.Fprintf(w, "  bool     %-24s %v\n", k, rec.Bools[k])
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func validateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate [file]",
		Short: "Check a save file against the save data schema",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := savePath(cmd)
			if len(args) == 1 {
				path = args[0]
			}
			b, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			if err := savedata.Validate(b); err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			if _, err := savedata.Decode(b); err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: ok\n", path)
			return nil
		},
	}
}

func historyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List or restore archived saves",
	}
	cmd.PersistentFlags().String("dir", "", "history directory (default: <data>/SAVE DATA/history)")

	open := func(cmd *cobra.Command) (*archive.History, error) {
		dir, _ := cmd.Flags().GetString("dir")
		if dir == "" {
			dir = filepath.Join(saveDir(cmd), "history")
		}
		return archive.OpenHistory(dir, 0, nil)
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List archived saves, oldest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := open(cmd)
			if err != nil {
				return err
			}
			metas, err := h.List()
			if err != nil {
				return err
			}
			for _, m := range metas {
				fmt.Fprintf(cmd.OutOrStdout(), "%6d  %s  %-12s  participants=%d  %s\n",
					m.Seq, m.SaveID, m.Location, m.Participants, m.CreatedAt)
			}
			return nil
		},
	}

	restore := &cobra.Command{
		Use:   "restore <seq|save id prefix>",
		Short: "Write an archived save back as the live save file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := open(cmd)
			if err != nil {
				return err
			}
			target, _ := cmd.Flags().GetString("save")
			if target == "" {
				target = savePath(cmd)
			}
			m, err := h.Restore(args[0], target)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "restored seq=%d save=%s to %s\n", m.Seq, m.SaveID, target)
			return nil
		},
	}
	restore.Flags().String("save", "", "save file to overwrite (default: <data>/SAVE DATA/data.sav)")

	cmd.AddCommand(list, restore)
	return cmd
}

func logCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "log <transitions|saves>",
		Short: "Print the rotated JSONL logs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind := args[0]
			if kind != "transitions" && kind != "saves" {
				return fmt.Errorf("unknown log %q", kind)
			}
			limit, _ := cmd.Flags().GetInt("limit")
			files, err := persistlog.Files(filepath.Join(dataDir(cmd), "logs", kind))
			if err != nil {
				return err
			}
			var lines []json.RawMessage
			for _, f := range files {
				ls, err := persistlog.ReadLines(f)
				if err != nil {
					return fmt.Errorf("%s: %w", filepath.Base(f), err)
				}
				lines = append(lines, ls...)
			}
			if limit > 0 && len(lines) > limit {
				lines = lines[len(lines)-limit:]
			}
			for _, l := range lines {
				fmt.Fprintln(cmd.OutOrStdout(), string(l))
			}
			return nil
		},
	}
	cmd.Flags().Int("limit", 0, "print only the newest n entries")
	return cmd
}

func indexCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index <transitions|saves>",
		Short: "Query the sqlite index",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			path := filepath.Join(dataDir(cmd), "index", "dshnews.sqlite")
			if _, err := os.Stat(path); err != nil {
				return fmt.Errorf("index: %w", err)
			}
			idx, err := indexdb.OpenSQLite(path)
			if err != nil {
				return err
			}
			defer idx.Close()

			ctx := context.Background()
			out := cmd.OutOrStdout()
			switch args[0] {
			case "transitions":
				rows, err := idx.RecentTransitions(ctx, limit)
				if err != nil {
					return err
				}
				for _, r := range rows {
					fmt.Fprintf(out, "%6d  %-12s -> %-12s  %-8s faded=%v  %dms\n",
						r.Seq, r.From, r.To, r.Category, r.Faded, r.EndedMs-r.StartedMs)
				}
			case "saves":
				rows, err := idx.RecentSaves(ctx, limit)
				if err != nil {
					return err
				}
				for _, r := range rows {
					fmt.Fprintf(out, "%s  %-12s  participants=%d  %s\n", r.SaveID, r.Location, r.Participants, r.Digest)
				}
			default:
				return fmt.Errorf("unknown table %q", args[0])
			}
			return nil
		},
	}
	cmd.Flags().Int("limit", 20, "number of rows")
	return cmd
}
