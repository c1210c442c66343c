package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newSweepCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Delete expired sessions and blacklist entries once",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := a.bootstrap(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer rt.close()

			res, err := rt.engine.Sweep(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "removed %d sessions, %d blacklist entries\n", res.Sessions, res.Blacklist)
			return nil
		},
	}
}
