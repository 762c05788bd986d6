package app

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newSeedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Insert fake contacts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			n, err := cmd.Flags().GetInt("count")
			if err != nil {
				return err
			}
			if n < 1 {
				return fmt.Errorf("--count must be at least 1, got %d", n)
			}

			rt, err := bootstrap(cmd.Context(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer rt.close()

			_, err = rt.service.Contacts.Seed(cmd.Context(), n)
			return err
		},
	}
	cmd.Flags().IntP("count", "n", 10, "Number of contacts to insert")
	return cmd
}
