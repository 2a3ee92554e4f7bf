package main

import (
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/example/pagemark/services/reader/internal/client"
	"github.com/example/pagemark/services/reader/internal/session"
)

var recentLimit int

type recentEntry struct {
	BookID      string    `json:"book_id" yaml:"book_id"`
	Title       string    `json:"title,omitempty" yaml:"title,omitempty"`
	CurrentPage int       `json:"current_page" yaml:"current_page"`
	TotalPages  int       `json:"total_pages,omitempty" yaml:"total_pages,omitempty"`
	ZoomLevel   float64   `json:"zoom_level" yaml:"zoom_level"`
	LastReadAt  time.Time `json:"last_read_at" yaml:"last_read_at"`
}

var recentCmd = &cobra.Command{
	Use:   "recent",
	Short: "Show recently read books and where you stopped",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		items, err := current.client.Recent(ctx, recentLimit)
		if err != nil {
			return err
		}
		books, err := current.client.Books(ctx)
		if err != nil {
			current.log.Warn("list books for titles failed", zap.Error(err))
		}
		return writeOutput(cmd.OutOrStdout(), outputFormat, joinRecent(items, books))
	},
}

func init() {
	recentCmd.Flags().IntVarP(&recentLimit, "limit", "n", 10, "number of books to show (max 100)")
}

func joinRecent(items []session.Progress, books []client.Book) []recentEntry {
	byID := make(map[string]client.Book, len(books))
	for _, b := range books {
		byID[b.ID] = b
	}
	out := make([]recentEntry, 0, len(items))
	for _, p := range items {
		e := recentEntry{
			BookID:      p.BookID,
			CurrentPage: p.CurrentPage,
			ZoomLevel:   p.ZoomLevel,
			LastReadAt:  p.LastReadAt,
		}
		if b, ok := byID[p.BookID]; ok {
			e.Title = b.Title
			if b.TotalPages != nil {
				e.TotalPages = *b.TotalPages
			}
		}
		out = append(out, e)
	}
	return out
}
