package main

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/example/pagemark/services/reader/internal/document"
	"github.com/example/pagemark/services/reader/internal/prefs"
	"github.com/example/pagemark/services/reader/internal/session"
	"github.com/example/pagemark/services/reader/internal/tui"
)

var openCmd = &cobra.Command{
	Use:   "open <book-id>",
	Short: "Open a book and resume where you left off",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		bookID := args[0]
		if _, err := uuid.Parse(bookID); err != nil {
			return fmt.Errorf("book id must be a UUID: %w", err)
		}
		ctx := cmd.Context()
		a := current
		log := a.log.With(zap.String("book_id", bookID))

		title := bookID
		if b, err := a.client.Book(ctx, bookID); err == nil {
			title = b.Title
		} else {
			log.Warn("book lookup failed", zap.Error(err))
		}

		loader := document.NewLoader(log)
		loader.MaxBytes = a.cfg.MaxDocumentBytes

		sess, err := session.New(session.Options{
			BookID:   bookID,
			Auth:     a.client,
			Objects:  a.client,
			Renderer: loader,
			Progress: a.client,
			Library:  a.client,
			Debounce: a.cfg.Debounce,
			Logger:   log,
		})
		if err != nil {
			return err
		}
		defer sess.Close()

		prefsPath := a.cfg.PrefsPath
		if prefsPath == "" {
			if prefsPath, err = prefs.DefaultPath(); err != nil {
				log.Warn("prefs path", zap.Error(err))
			}
		}
		p := prefs.Default()
		if prefsPath != "" {
			if p, err = prefs.Load(prefsPath); err != nil {
				log.Warn("load prefs", zap.Error(err))
			}
		}

		if err := sess.Start(ctx); err != nil {
			return err
		}
		m := tui.New(tui.Options{
			Context:   ctx,
			Reader:    sess,
			Title:     title,
			Theme:     p.Theme,
			PrefsPath: prefsPath,
			Logger:    log,
		})
		prog := tea.NewProgram(m, tea.WithAltScreen(), tea.WithMouseCellMotion(), tea.WithContext(ctx))
		if _, err := prog.Run(); err != nil {
			return fmt.Errorf("reader: %w", err)
		}
		return nil
	},
}
