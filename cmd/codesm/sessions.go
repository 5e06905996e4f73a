package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"codesm/internal/agent/ports"
	"codesm/internal/session/filestore"
	"codesm/internal/shared/logging"
)

func newSessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List and manage stored sessions",
	}
	cmd.AddCommand(newSessionsListCmd(), newSessionsDeleteCmd())
	return cmd
}

func openStore() (ports.SessionStore, error) {
	cfg, _, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return filestore.New(cfg.SessionDir, nil, logging.NewComponentLogger("sessions"))
}

func newSessionsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}
			ctx := context.Background()
			ids, err := store.List(ctx)
			if err != nil {
				return err
			}
			if len(ids) == 0 {
				fmt.Println("No sessions")
				return nil
			}
			for _, id := range ids {
				session, err := store.Get(ctx, id)
				if err != nil {
					fmt.Printf("%s  (unreadable: %v)\n", id, err)
					continue
				}
				fmt.Printf("%s  %s  %d messages  %s\n",
					id,
					session.UpdatedAt.Format("2006-01-02 15:04"),
					len(session.Messages),
					session.Title,
				)
			}
			return nil
		},
	}
}

func newSessionsDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <session-id>...",
		Short: "Delete stored sessions",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}
			ctx := context.Background()
			for _, id := range args {
				if err := store.Delete(ctx, id); err != nil {
					return fmt.Errorf("delete %s: %w", id, err)
				}
				fmt.Println("deleted", id)
			}
			return nil
		},
	}
}
