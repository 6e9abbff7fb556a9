package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nhle/onebox/internal/model"
	"github.com/nhle/onebox/internal/store"
)

var (
	searchAccount  string
	searchCategory string
	searchUnread   bool
	searchLimit    int
	searchStats    bool
	searchJSON     bool
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Query stored messages",
	Long:  "Search synchronized messages by text, account, and category.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		st, err := store.NewSQLiteStore(cfg.Storage.Path)
		if err != nil {
			return err
		}
		defer st.Close()

		ctx := context.Background()

		if searchStats {
			return printStats(ctx, cmd, st)
		}

		filter := store.MessageFilter{
			AccountID: searchAccount,
			Unread:    searchUnread,
			Limit:     searchLimit,
		}
		if len(args) > 0 {
			filter.Query = args[0]
		}
		if searchCategory != "" {
			category, ok := model.ParseCategory(searchCategory)
			if !ok {
				return fmt.Errorf("unknown category %q", searchCategory)
			}
			filter.Category = &category
		}

		messages, err := st.ListMessages(ctx, filter)
		if err != nil {
			return err
		}

		if searchJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(messages)
		}

		if len(messages) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No messages found.")
			return nil
		}
		for _, msg := range messages {
			read := " "
			if !msg.Read {
				read = "*"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %-16s %-14s %-30s %s\n",
				read,
				msg.Date.Format("2006-01-02 15:04"),
				msg.Category,
				clip(msg.From, 30),
				clip(msg.Subject, 60),
			)
		}
		return nil
	},
}

func printStats(ctx context.Context, cmd *cobra.Command, st *store.SQLiteStore) error {
	counts, err := st.CountByCategory(ctx, searchAccount)
	if err != nil {
		return err
	}

	if searchJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(counts)
	}

	total := 0
	for _, category := range model.Categories() {
		n := counts[category]
		total += n
		fmt.Fprintf(cmd.OutOrStdout(), "%-16s %d\n", category, n)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%-16s %d\n", "Total", total)
	return nil
}

func clip(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n-1]) + "…"
}

func init() {
	searchCmd.Flags().StringVar(&searchAccount, "account", "", "Restrict to one account id")
	searchCmd.Flags().StringVar(&searchCategory, "category", "", "Restrict to one category")
	searchCmd.Flags().BoolVar(&searchUnread, "unread", false, "Only unread messages")
	searchCmd.Flags().IntVar(&searchLimit, "limit", 50, "Maximum results")
	searchCmd.Flags().BoolVar(&searchStats, "stats", false, "Print message counts per category")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "Output in JSON format")
}
