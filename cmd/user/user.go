// Package user implements the user lookup subcommand.
package user

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/citizenbirds/birdlist/internal/app"
	"github.com/citizenbirds/birdlist/internal/buildinfo"
)

// Command returns the user subcommand, which prints the iNaturalist id of a
// login name.
func Command(build *buildinfo.Context) *cobra.Command {
	var avatar bool

	cmd := &cobra.Command{
		Use:   "user <username>",
		Short: "Look up the iNaturalist user id of a login name",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := app.FromGlobal(cmd.Context(), build)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			if avatar {
				url, err := a.INat.AvatarURL(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), url)
				return err
			}

			id, err := a.INat.UserID(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), id)
			return err
		},
	}

	cmd.Flags().BoolVar(&avatar, "avatar", false, "Print the avatar URL instead of the id")
	return cmd
}
