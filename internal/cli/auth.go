package cli

import (
	"github.com/spf13/cobra"
	"github.com/yapper-space/core/internal/client"
)

func newRegisterCommand(app *App) *cobra.Command {
	var in client.RegisterInput

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if in.Email == "" {
				if in.Email, err = app.promptLine("Email"); err != nil {
					return err
				}
			}
			if in.Password, err = app.promptPassword(); err != nil {
				return err
			}
			userID, err := app.API.Register(cmd.Context(), in)
			if err != nil {
				return err
			}
			app.printf("Registered %s (user %s). Run `yapper login` to start a session.\n", in.Email, userID)
			return nil
		},
	}

	cmd.Flags().StringVar(&in.Email, "email", "", "account email")
	cmd.Flags().StringVar(&in.FullName, "full-name", "", "display name")
	cmd.Flags().StringVar(&in.Username, "username", "", "unique username")
	return cmd
}

func newLoginCommand(app *App) *cobra.Command {
	var email string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Start a session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if email == "" {
				if email, err = app.promptLine("Email"); err != nil {
					return err
				}
			}
			password, err := app.promptPassword()
			if err != nil {
				return err
			}
			res, err := app.API.Login(cmd.Context(), email, password)
			if err != nil {
				return err
			}
			app.printf("Logged in as %s. Session valid for %dh.\n", res.Email, res.ExpiresInHours)
			return nil
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "account email")
	return cmd
}

func newLogoutCommand(app *App) *cobra.Command {
	var forget bool

	cmd := &cobra.Command{
		Use:   "logout",
		Short: "End the session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			err := app.API.Logout(cmd.Context())
			if forget {
				if clearErr := app.Creds.Clear(); clearErr != nil {
					return clearErr
				}
			}
			if err != nil {
				return err
			}
			app.printf("Logged out.\n")
			return nil
		},
	}

	cmd.Flags().BoolVar(&forget, "forget", false, "also remove the stored Twitter token and server URL")
	return cmd
}

func newWhoamiCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the logged-in user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := app.API.Session(cmd.Context())
			if err != nil {
				return err
			}
			app.printf("%s (%s)\nuser id: %s\n", id.Email, id.Role, id.UserID)
			return nil
		},
	}
}
