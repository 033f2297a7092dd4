// Command admin manages accounts and inspects the highlighter tables of a
// snippet-share database. It reads the same configuration as the server.
//
//	admin createuser -username alice [-password secret]
//	admin deleteuser -username alice
//	admin users
//	admin languages
//	admin styles
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"text/tabwriter"

	"golang.org/x/term"

	"github.com/sakif/snippet-share/internal/auth"
	"github.com/sakif/snippet-share/internal/config"
	"github.com/sakif/snippet-share/internal/highlight"
	"github.com/sakif/snippet-share/internal/server"
	"github.com/sakif/snippet-share/internal/service"
)

// readPassword is a test seam for term.ReadPassword.
var readPassword = term.ReadPassword

var errUsage = errors.New("usage: admin <createuser|deleteuser|users|languages|styles> [flags]")

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "admin:", err)
		if errors.Is(err, errUsage) || errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	if len(args) == 0 {
		return errUsage
	}

	switch cmd, rest := args[0], args[1:]; cmd {
	case "languages":
		return printChoices(out, highlight.Default().Languages())
	case "styles":
		return printChoices(out, highlight.Default().Styles())
	case "createuser", "deleteuser", "users":
		return withAuthService(ctx, func(svc *service.AuthService) error {
			switch cmd {
			case "createuser":
				return createUser(ctx, svc, rest, out)
			case "deleteuser":
				return deleteUser(ctx, svc, rest, out)
			default:
				return listUsers(ctx, svc, out)
			}
		})
	default:
		return fmt.Errorf("unknown command %q: %w", cmd, errUsage)
	}
}

// withAuthService opens the configured store for the duration of fn. Sessions
// are never issued from the CLI, so the service has no token service.
func withAuthService(ctx context.Context, fn func(*service.AuthService) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := cfg.Log.NewLogger(os.Stderr)

	store, err := server.OpenStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("closing database", slog.String("error", err.Error()))
		}
	}()

	return fn(service.NewAuthService(store, nil, auth.NewPasswordService(), logger))
}

func createUser(ctx context.Context, svc *service.AuthService, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("createuser", flag.ContinueOnError)
	username := fs.String("username", "", "name of the new account")
	password := fs.String("password", "", "password (prompted without echo when omitted)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *username == "" {
		return fmt.Errorf("createuser: -username is required: %w", errUsage)
	}

	if *password == "" {
		pw, err := promptPassword(out)
		if err != nil {
			return err
		}
		*password = pw
	}

	user, err := svc.CreateAccount(ctx, *username, *password)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(out, "created user %s (id %d)\n", user.Username, user.ID)
	return err
}

// promptPassword reads the password twice from the terminal without echo.
func promptPassword(out io.Writer) (string, error) {
	fd := int(os.Stdin.Fd())

	fmt.Fprint(out, "Password: ")
	first, err := readPassword(fd)
	fmt.Fprintln(out)
	if err != nil {
		return "", fmt.Errorf("reading password: %w", err)
	}

	fmt.Fprint(out, "Password (again): ")
	second, err := readPassword(fd)
	fmt.Fprintln(out)
	if err != nil {
		return "", fmt.Errorf("reading password: %w", err)
	}

	if string(first) != string(second) {
		return "", errors.New("passwords do not match")
	}
	return string(first), nil
}

func deleteUser(ctx context.Context, svc *service.AuthService, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("deleteuser", flag.ContinueOnError)
	username := fs.String("username", "", "account to delete together with its snippets")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *username == "" {
		return fmt.Errorf("deleteuser: -username is required: %w", errUsage)
	}

	if err := svc.DeleteUser(ctx, *username); err != nil {
		return err
	}
	_, err := fmt.Fprintf(out, "deleted user %s\n", *username)
	return err
}

func listUsers(ctx context.Context, svc *service.AuthService, out io.Writer) error {
	users, err := svc.ListUsers(ctx)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tUSERNAME\tSNIPPETS")
	for _, u := range users {
		fmt.Fprintf(tw, "%d\t%s\t%d\n", u.ID, u.Username, len(u.Snippets))
	}
	return tw.Flush()
}

func printChoices(out io.Writer, choices []highlight.Choice) error {
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	for _, c := range choices {
		fmt.Fprintf(tw, "%s\t%s\n", c.Key, c.Label)
	}
	return tw.Flush()
}
