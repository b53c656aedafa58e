package main

import (
	"bufio"
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/target/webfront-auth/config"
	"github.com/target/webfront-auth/internal/bootstrap"
	"github.com/target/webfront-auth/internal/core"
	"github.com/target/webfront-auth/internal/domain/model"
	"github.com/target/webfront-auth/internal/service"
)

type userOptions struct {
	Name          string
	PasswordStdin bool
	Scheme        string
	Key           string
}

func parseUserFlags(name string, args []string, needPassword, needExternal bool) (userOptions, error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var opts userOptions
	fs.StringVar(&opts.Name, "name", "", "User name")
	if !needPassword {
		fs.BoolVar(&opts.PasswordStdin, "password-stdin", false, "Read an initial password from stdin")
	}
	if needExternal {
		fs.StringVar(&opts.Scheme, "scheme", "", "Login scheme, e.g. Oidc")
		fs.StringVar(&opts.Key, "key", "", "External key returned by the scheme")
	}
	if err := fs.Parse(args); err != nil {
		return userOptions{}, err
	}

	opts.Name = strings.TrimSpace(opts.Name)
	if opts.Name == "" {
		return userOptions{}, errors.New("--name is required")
	}
	if needPassword {
		opts.PasswordStdin = true
	}
	if needExternal {
		opts.Scheme = strings.TrimSpace(opts.Scheme)
		opts.Key = strings.TrimSpace(opts.Key)
		if opts.Scheme == "" || opts.Key == "" {
			return userOptions{}, errors.New("--scheme and --key are required")
		}
	}
	return opts, nil
}

// withUsers opens the configured user store for the duration of f.
func withUsers(cmdCtx *commandContext, f func(context.Context, core.UserRepository) error) error {
	ctx, cancel := commandContextWithTimeout(cmdCtx.Ctx, defaultCommandTimeout)
	defer cancel()

	var db *sql.DB
	if cmdCtx.Config.Auth.Users.Source != config.UserSourceFile {
		var err error
		db, err = bootstrap.ConnectDB(ctx, bootstrap.DatabaseConfig{
			DBConfig: cmdCtx.Config.Postgres,
			Logger:   cmdCtx.Logger,
		})
		if err != nil {
			return fmt.Errorf("connect db: %w", err)
		}
		defer func() {
			if cerr := db.Close(); cerr != nil {
				cmdCtx.Logger.Warn("db close failed", "error", cerr)
			}
		}()
	}

	users, err := bootstrap.BuildUserStore(cmdCtx.Config.Auth.Users, db)
	if err != nil {
		return err
	}
	return f(ctx, users)
}

// readPassword reads the first line of r.
func readPassword(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func runCreateUser(cmdCtx *commandContext, args []string) error {
	opts, err := parseUserFlags("create-user", args, false, false)
	if err != nil {
		return err
	}

	req := &model.CreateUserRequest{Name: opts.Name}
	if opts.PasswordStdin {
		password, perr := readPassword(cmdCtx.In)
		if perr != nil {
			return perr
		}
		if req.PasswordHash, perr = service.HashPassword(password); perr != nil {
			return perr
		}
	}

	return withUsers(cmdCtx, func(ctx context.Context, users core.UserRepository) error {
		user, cerr := users.Create(ctx, req)
		if cerr != nil {
			return fmt.Errorf("create user: %w", cerr)
		}
		return writef(cmdCtx.Out, "created user %d %s\n", user.ID, user.Name)
	})
}

func runSetPassword(cmdCtx *commandContext, args []string) error {
	opts, err := parseUserFlags("set-password", args, true, false)
	if err != nil {
		return err
	}
	password, err := readPassword(cmdCtx.In)
	if err != nil {
		return err
	}
	hash, err := service.HashPassword(password)
	if err != nil {
		return err
	}

	return withUsers(cmdCtx, func(ctx context.Context, users core.UserRepository) error {
		user, gerr := users.GetByName(ctx, opts.Name)
		if gerr != nil {
			return fmt.Errorf("find user %q: %w", opts.Name, gerr)
		}
		if serr := users.SetPassword(ctx, user.ID, hash); serr != nil {
			return fmt.Errorf("set password: %w", serr)
		}
		return writef(cmdCtx.Out, "password updated for %s\n", user.Name)
	})
}

func runLinkExternal(cmdCtx *commandContext, args []string) error {
	opts, err := parseUserFlags("link-external", args, false, true)
	if err != nil {
		return err
	}

	return withUsers(cmdCtx, func(ctx context.Context, users core.UserRepository) error {
		user, gerr := users.GetByName(ctx, opts.Name)
		if gerr != nil {
			return fmt.Errorf("find user %q: %w", opts.Name, gerr)
		}
		login := &model.ExternalLogin{UserID: user.ID, Scheme: opts.Scheme, Key: opts.Key}
		if verr := login.Validate(); verr != nil {
			return verr
		}
		if lerr := users.LinkExternal(ctx, login); lerr != nil {
			return fmt.Errorf("link external login: %w", lerr)
		}
		return writef(cmdCtx.Out, "linked %s key %s to %s\n", opts.Scheme, opts.Key, user.Name)
	})
}
