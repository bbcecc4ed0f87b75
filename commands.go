package main

import (
	"errors"
	"fmt"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"messageboard/common"
	"messageboard/users"
	"messageboard/validation"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create tables and indexes, then exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := common.ConnectStore(cmd.Context(), cfg)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer s.Close(cmd.Context())

		return s.Migrate(cmd.Context())
	},
}

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "Manage users",
}

var (
	newUserName  string
	newUserEmail string
)

var usersCreateCmd = &cobra.Command{
	Use:   "create <username>",
	Short: "Create a user, prompting for the password",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		fmt.Print("Enter password: ")
		password, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Println()
		if err != nil {
			return fmt.Errorf("failed to read password: %w", err)
		}

		fmt.Print("Confirm password: ")
		confirmation, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Println()
		if err != nil {
			return fmt.Errorf("failed to read password: %w", err)
		}

		s, err := common.ConnectStore(ctx, cfg)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer s.Close(ctx)

		if err := s.Migrate(ctx); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}

		name := newUserName
		if name == "" {
			name = args[0]
		}
		user, err := users.Register(ctx, s, validation.UserCandidate{
			Username:             args[0],
			Name:                 name,
			Email:                newUserEmail,
			Password:             string(password),
			PasswordConfirmation: string(confirmation),
		})
		if err != nil {
			var fieldErrs validation.FieldErrors
			if errors.As(err, &fieldErrs) {
				for _, fe := range fieldErrs {
					fmt.Printf("  %s: %s\n", fe.Field, fe.Message)
				}
				return fmt.Errorf("user not created")
			}
			return fmt.Errorf("failed to create user: %w", err)
		}

		fmt.Printf("User '%s' created successfully\n", user.Username)
		return nil
	},
}

func init() {
	usersCreateCmd.Flags().StringVar(&newUserName, "name", "", "display name (defaults to the username)")
	usersCreateCmd.Flags().StringVar(&newUserEmail, "email", "", "email address")

	usersCmd.AddCommand(usersCreateCmd)
	rootCmd.AddCommand(migrateCmd, usersCmd)
}
