package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ppiankov/approvedrevs/internal/engine"
)

var userGroups []string

func init() {
	rootCmd.AddCommand(userCmd)
	userCmd.AddCommand(userAddCmd, userListCmd)
	userAddCmd.Flags().StringSliceVarP(&userGroups, "group", "g", nil, "Group to add the user to (repeatable)")
}

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage wiki users and their groups",
}

var userAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Register a user, optionally adding groups",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRequest(cmd, func(ctx context.Context, s *session, _ *engine.Request) error {
			if err := s.engine.Wiki().AddUser(ctx, args[0], userGroups...); err != nil {
				return err
			}
			a, err := s.engine.Wiki().Actor(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", a.Name, groupList(a.Groups))
			return nil
		})
	},
}

var userListCmd = &cobra.Command{
	Use:   "list",
	Short: "List users and their groups",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRequest(cmd, func(ctx context.Context, s *session, _ *engine.Request) error {
			users, err := s.engine.Wiki().Users(ctx)
			if err != nil {
				return err
			}
			for _, a := range users {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", a.Name, groupList(a.Groups))
			}
			return nil
		})
	},
}

func groupList(groups []string) string {
	if len(groups) == 0 {
		return "(no groups)"
	}
	return strings.Join(groups, ", ")
}
