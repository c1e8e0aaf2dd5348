package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mind-engage/quizdesk/internal/users"
)

var addUserCmd = &cobra.Command{
	Use:   "adduser <username> <password>",
	Short: "Create a user",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		role, _ := cmd.Flags().GetString("role")
		if !users.ValidRole(role) {
			return fmt.Errorf("unknown role %q", role)
		}
		name, _ := cmd.Flags().GetString("name")
		email, _ := cmd.Flags().GetString("email")
		if name == "" {
			name = args[0]
		}
		a, err := setup(cmd)
		if err != nil {
			return err
		}
		defer a.close()
		u, err := users.NewStore(a.db).Create(cmd.Context(), args[0], name, email, role, args[1])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "created %s (%s) id=%s\n", u.Username, u.Role, u.ID)
		return nil
	},
}

var resetPasswordCmd = &cobra.Command{
	Use:   "resetpassword <username> <password>",
	Short: "Set a user's password",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := setup(cmd)
		if err != nil {
			return err
		}
		defer a.close()
		if err := users.NewStore(a.db).SetPassword(cmd.Context(), args[0], args[1]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "password updated for %s\n", args[0])
		return nil
	},
}

func init() {
	addUserCmd.Flags().String("role", users.RoleStudent, "student|manager|admin")
	addUserCmd.Flags().String("name", "", "display name (defaults to username)")
	addUserCmd.Flags().String("email", "", "email address")
}
