package main

import (
	"github.com/spf13/cobra"

	"github.com/example/pagemark/services/reader/internal/client"
)

var booksCmd = &cobra.Command{
	Use:   "books",
	Short: "List the books in your library",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		books, err := current.client.Books(cmd.Context())
		if err != nil {
			return err
		}
		if books == nil {
			books = []client.Book{}
		}
		return writeOutput(cmd.OutOrStdout(), outputFormat, books)
	},
}
