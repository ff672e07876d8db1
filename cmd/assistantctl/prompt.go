package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ashureev/mutuelle-assistant/internal/assistant"
	"github.com/ashureev/mutuelle-assistant/internal/store"
)

func promptCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prompt",
		Short: "Print the system prompt compiled for a user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, _ := cmd.Flags().GetString("user")
			dbPath, _ := cmd.Flags().GetString("db")

			repo, err := store.NewSQLite(dbPath)
			if err != nil {
				return err
			}
			defer repo.Close()

			agg := assistant.NewAggregator(assistant.NewStoreSources(repo, userID), nil)
			cc := agg.Refresh(cmd.Context())
			if !cc.HasIdentity() {
				return fmt.Errorf("user %q: %w", userID, assistant.ErrNoIdentity)
			}

			prompt, err := assistant.NewCompiler().Compile(cc)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), prompt)
			return nil
		},
	}

	cmd.Flags().StringP("user", "u", "", "User ID")
	_ = cmd.MarkFlagRequired("user")

	return cmd
}
