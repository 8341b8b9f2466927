package main

import (
	"context"
	"fmt"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/rcdvgn/copypitch/internal/auth"
	"github.com/rcdvgn/copypitch/internal/store"
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "User management commands",
}

var userCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a new user account",
	RunE:  runUserCreate,
}

var userSetPlanCmd = &cobra.Command{
	Use:   "set-plan [email] [plan]",
	Short: "Set a user's plan tier",
	Args:  cobra.ExactArgs(2),
	RunE:  runUserSetPlan,
}

var (
	userEmail    string
	userPassword string
	userName     string
)

func init() {
	userCreateCmd.Flags().StringVar(&userEmail, "email", "", "User email")
	userCreateCmd.Flags().StringVar(&userPassword, "password", "", "User password (will prompt if not provided)")
	userCreateCmd.Flags().StringVar(&userName, "name", "", "User name")
	userCreateCmd.MarkFlagRequired("email")

	userCmd.AddCommand(userCreateCmd)
	userCmd.AddCommand(userSetPlanCmd)
}

func openStore() (*store.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return store.Open(cfg.Storage.Path)
}

func runUserCreate(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	// Prompt for password if not provided
	password := userPassword
	if password == "" {
		fmt.Print("Enter password: ")
		pwBytes, err := term.ReadPassword(int(syscall.Stdin))
		if err != nil {
			return fmt.Errorf("failed to read password: %w", err)
		}
		fmt.Println()
		password = string(pwBytes)

		fmt.Print("Confirm password: ")
		pwBytes2, err := term.ReadPassword(int(syscall.Stdin))
		if err != nil {
			return fmt.Errorf("failed to read password: %w", err)
		}
		fmt.Println()

		if password != string(pwBytes2) {
			return fmt.Errorf("passwords do not match")
		}
	}

	if len(password) < 10 {
		return fmt.Errorf("password must be at least 10 characters")
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}

	user, err := st.CreateUser(context.Background(), userEmail, hash, userName)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}

	fmt.Printf("User %s created (id %s)\n", user.Email, user.ID)
	return nil
}

func runUserSetPlan(cmd *cobra.Command, args []string) error {
	email, plan := args[0], args[1]

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if _, ok := cfg.Plans()[plan]; !ok {
		return fmt.Errorf("unknown plan %q", plan)
	}

	st, err := store.Open(cfg.Storage.Path)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx := context.Background()
	user, err := st.GetUserByEmail(ctx, email)
	if err != nil {
		return fmt.Errorf("user %s not found", email)
	}

	if err := st.UpdateUserPlan(ctx, user.ID, plan); err != nil {
		return fmt.Errorf("failed to update plan: %w", err)
	}

	fmt.Printf("Plan for %s set to %s\n", email, plan)
	return nil
}
