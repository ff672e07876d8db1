package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ashureev/mutuelle-assistant/internal/store"
)

func seedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load users, members, sessions and parameters from a YAML file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			file, _ := cmd.Flags().GetString("file")
			dbPath, _ := cmd.Flags().GetString("db")

			f, err := os.Open(file)
			if err != nil {
				return fmt.Errorf("open fixtures: %w", err)
			}
			defer f.Close()

			fx, err := store.DecodeFixtures(f)
			if err != nil {
				return err
			}

			repo, err := store.NewSQLite(dbPath)
			if err != nil {
				return err
			}
			defer repo.Close()

			if err := fx.Apply(cmd.Context(), repo); err != nil {
				return fmt.Errorf("seed %s: %w", dbPath, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Seeded %s: %d users, %d members, %d exercises, %d sessions\n",
				dbPath, len(fx.Users), len(fx.Members), len(fx.Exercises), len(fx.Sessions))
			return nil
		},
	}

	cmd.Flags().StringP("file", "f", "", "Fixtures YAML file")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}
