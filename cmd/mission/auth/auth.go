// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package auth implements the account commands: signup, login, logout,
// whoami and profile.
package auth

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/zaibaki/ResilientTask-Mission-Control/cmd/mission/app"
	"github.com/zaibaki/ResilientTask-Mission-Control/cmd/mission/cli"
	"github.com/zaibaki/ResilientTask-Mission-Control/lib/secret"
)

type credentialParams struct {
	app.Params
	cli.JSONOutput
	PasswordFile string `json:"-" flag:"password-file" desc:"read the password from this file instead of prompting (- prompts)"`
}

// sessionResult is the --json shape of login and whoami.
type sessionResult struct {
	Username string `json:"username"`
	IsAdmin  bool   `json:"is_admin"`
	Service  string `json:"service"`
}

// LoginCommand returns the "login" command.
func LoginCommand() *cli.Command {
	var params credentialParams
	return &cli.Command{
		Name:    "login",
		Summary: "Log in and save the session",
		Description: `Log in to the task service and save the session in the local state
database. Later commands reuse it until you log out or the service
rejects the token.

The password is prompted for with echo disabled unless --password-file
is given.`,
		Usage: "mission login <username> [flags]",
		Examples: []cli.Example{
			{Description: "Log in interactively", Command: "mission login ada"},
			{Description: "Log in from a script", Command: "mission login ada --password-file ~/.mission-password"},
		},
		Params: func() any { return &params },
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			if err := cli.RequireArgs(args, "username"); err != nil {
				return err
			}
			password, err := cli.ReadPassword("Password", params.PasswordFile)
			if err != nil {
				return err
			}
			defer password.Close()

			return app.With(ctx, params.Params, logger, func(a *app.App) error {
				current, err := a.Dashboard.Login(ctx, args[0], password)
				if err != nil {
					return err
				}
				result := sessionResult{Username: current.Username, IsAdmin: current.IsAdmin, Service: a.Config.API.BaseURL}
				if done, err := params.EmitJSON(result); done {
					return err
				}
				fmt.Printf("Logged in to %s as %s%s.\n", result.Service, result.Username, adminSuffix(result.IsAdmin))
				return nil
			})
		},
	}
}

type signupParams struct {
	credentialParams
	Login bool `json:"-" flag:"login" desc:"log in with the new account afterwards"`
}

// SignupCommand returns the "signup" command.
func SignupCommand() *cli.Command {
	var params signupParams
	return &cli.Command{
		Name:    "signup",
		Summary: "Create an account",
		Description: `Create an account on the task service. Signing up does not log in
unless --login is given.`,
		Usage: "mission signup <username> [flags]",
		Examples: []cli.Example{
			{Description: "Create an account and start a session", Command: "mission signup ada --login"},
		},
		Params: func() any { return &params },
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			if err := cli.RequireArgs(args, "username"); err != nil {
				return err
			}
			password, err := cli.ReadPassword("Choose a password", params.PasswordFile)
			if err != nil {
				return err
			}
			defer password.Close()

			return app.With(ctx, params.Params, logger, func(a *app.App) error {
				if err := a.Dashboard.Signup(ctx, args[0], password); err != nil {
					return err
				}
				if !params.Login {
					fmt.Printf("Account %s created. Run 'mission login %s' to start a session.\n", args[0], args[0])
					return nil
				}
				current, err := a.Dashboard.Login(ctx, args[0], password)
				if err != nil {
					return err
				}
				fmt.Printf("Account %s created and logged in%s.\n", current.Username, adminSuffix(current.IsAdmin))
				return nil
			})
		},
	}
}

// LogoutCommand returns the "logout" command.
func LogoutCommand() *cli.Command {
	var params app.Params
	return &cli.Command{
		Name:    "logout",
		Summary: "Forget the saved session",
		Description: `Remove the saved session for the configured service. Logging out
while logged out does nothing.`,
		Params: func() any { return &params },
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			if err := cli.RequireArgs(args); err != nil {
				return err
			}
			return app.With(ctx, params, logger, func(a *app.App) error {
				if _, err := a.Dashboard.Resume(ctx); err != nil {
					logger.Warn("reading saved session", "error", err)
				}
				if err := a.Dashboard.Logout(ctx); err != nil {
					return err
				}
				fmt.Println("Logged out.")
				return nil
			})
		},
	}
}

type whoamiParams struct {
	app.Params
	cli.JSONOutput
}

// WhoAmICommand returns the "whoami" command.
func WhoAmICommand() *cli.Command {
	var params whoamiParams
	return &cli.Command{
		Name:    "whoami",
		Summary: "Show the logged-in account",
		Description: `Show the account of the saved session. This reads local state only; a
token the service has since revoked is detected by the next command
that talks to it.`,
		Params: func() any { return &params },
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			if err := cli.RequireArgs(args); err != nil {
				return err
			}
			return app.WithSession(ctx, params.Params, logger, func(a *app.App) error {
				current, _ := a.Dashboard.Session()
				result := sessionResult{Username: current.Username, IsAdmin: current.IsAdmin, Service: a.Config.API.BaseURL}
				if done, err := params.EmitJSON(result); done {
					return err
				}
				fmt.Printf("%s%s on %s\n", result.Username, adminSuffix(result.IsAdmin), result.Service)
				return nil
			})
		},
	}
}

type profileParams struct {
	app.Params
	Username     string `json:"-" flag:"username" desc:"new username"`
	Password     bool   `json:"-" flag:"password" desc:"prompt for a new password"`
	PasswordFile string `json:"-" flag:"password-file" desc:"read the new password from this file"`
}

// ProfileCommand returns the "profile" command.
func ProfileCommand() *cli.Command {
	var params profileParams
	return &cli.Command{
		Name:    "profile",
		Summary: "Change your username or password",
		Description: `Rename the logged-in account, change its password, or both. The saved
session keeps working after a rename.`,
		Examples: []cli.Example{
			{Description: "Rename the account", Command: "mission profile --username countess"},
			{Description: "Change the password interactively", Command: "mission profile --password"},
		},
		Params: func() any { return &params },
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			if err := cli.RequireArgs(args); err != nil {
				return err
			}
			if params.Username == "" && !params.Password && params.PasswordFile == "" {
				return cli.Validation("nothing to change: pass --username, --password or --password-file")
			}

			var password *secret.Buffer
			if params.Password || params.PasswordFile != "" {
				var err error
				password, err = cli.ReadPassword("New password", params.PasswordFile)
				if err != nil {
					return err
				}
				defer password.Close()
			}

			return app.WithSession(ctx, params.Params, logger, func(a *app.App) error {
				result, err := a.Dashboard.UpdateProfile(ctx, params.Username, password)
				if err != nil {
					return err
				}
				fmt.Println(result.Message)
				return nil
			})
		},
	}
}

func adminSuffix(isAdmin bool) string {
	if isAdmin {
		return " (admin)"
	}
	return ""
}
