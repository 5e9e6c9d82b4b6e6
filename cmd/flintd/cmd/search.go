package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/flint-notes/flint/internal/config"
	"github.com/flint-notes/flint/internal/errors"
	"github.com/flint-notes/flint/internal/index"
	"github.com/flint-notes/flint/internal/store"
)

// searchResult is one hit in CLI output.
type searchResult struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Path  string `json:"path"`
}

func newSearchCmd() *cobra.Command {
	var limit int
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Full-text search over vault notes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd, args[0], limit, jsonOutput)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum results (default: config index.max_results)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output results as JSON")

	return cmd
}

func runSearch(cmd *cobra.Command, query string, limit int, jsonOutput bool) error {
	vault, err := resolveVault()
	if err != nil {
		return err
	}
	logStartup("search")

	cfg, err := config.Load(vault)
	if err != nil {
		return err
	}
	if !cfg.Index.Enabled {
		return fmt.Errorf("search index is disabled for this vault")
	}
	if limit <= 0 {
		limit = cfg.Index.MaxResults
	}

	idx, err := index.Open(cfg.ResolveIndexPath(vault))
	if err != nil {
		return err
	}
	defer func() { _ = idx.Close() }()

	st, err := store.OpenWithCache(cfg.ResolveDBPath(vault), cfg.Storage.CacheSize)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	ids, err := idx.Search(query, limit)
	if err != nil {
		return err
	}

	results := make([]searchResult, 0, len(ids))
	for _, id := range ids {
		rec, err := st.Get(cmd.Context(), id)
		if err != nil {
			// Index can lag the store briefly; skip stale hits.
			if errors.IsNotFound(err) {
				continue
			}
			return err
		}
		results = append(results, searchResult{ID: rec.ID, Title: rec.Title, Path: rec.Path})
	}

	if jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}

	if len(results) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No matches.")
		return nil
	}
	for _, r := range results {
		fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", r.Title, r.Path)
	}
	return nil
}
