package main

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	"github.com/MrEthical07/authcore/internal/directory"
	"github.com/spf13/cobra"
)

func newHashPasswordCmd(a *app) *cobra.Command {
	var cost int
	cmd := &cobra.Command{
		Use:   "hash-password [password]",
		Short: "Print a bcrypt hash for an AUTHCORE_USERS entry",
		Long: `Print a bcrypt hash for an AUTHCORE_USERS entry. The password is read from
the first argument, or from the first line of stdin when no argument is given.

Examples:
  authcore hash-password 'correct-horse'
  echo 'correct-horse' | authcore hash-password`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var password string
			if len(args) == 1 {
				password = args[0]
			} else {
				line, err := bufio.NewReader(a.stdin).ReadString('\n')
				if err != nil && line == "" {
					return errors.New("no password given")
				}
				password = strings.TrimRight(line, "\r\n")
			}

			hash, err := directory.HashPassword(password, cost)
			if err != nil {
				return err
			}
			fmt.Fprintln(a.stdout, hash)
			return nil
		},
	}
	cmd.Flags().IntVar(&cost, "cost", 0, "bcrypt cost (default 10)")
	return cmd
}
