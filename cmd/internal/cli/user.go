package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"devtree/cmd/identity"
	"devtree/cmd/internal/app"
)

const userCmdTimeout = 30 * time.Second

func newUserCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "User management",
	}
	cmd.AddCommand(newUserCreateCmd())
	return cmd
}

func newUserCreateCmd() *cobra.Command {
	var (
		sf            storeFlags
		in            identity.RegisterInput
		passwordStdin bool
	)
	c := &cobra.Command{
		Use:   "create",
		Short: "Register a user directly through the identity service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := app.ParseConfig()
			if err != nil {
				return err
			}
			sf.apply(cmd, &cfg)

			in.Password, err = readPassword(cmd, passwordStdin)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), userCmdTimeout)
			defer cancel()

			a, err := app.New(ctx, cfg, stderrLogger(cmd.ErrOrStderr()))
			if err != nil {
				return err
			}
			defer func() { _ = a.Close(context.Background()) }()

			u, err := a.Service().Register(ctx, in)
			if err != nil {
				return describeRegisterErr(err)
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "created user %s (%s)\n", u.Handle, u.ID)
			return nil
		},
	}
	sf.bind(c)
	c.Flags().StringVar(&in.Handle, "handle", "", "public handle")
	c.Flags().StringVar(&in.Name, "name", "", "display name")
	c.Flags().StringVar(&in.Email, "email", "", "login email")
	c.Flags().BoolVar(&passwordStdin, "password-stdin", false, "read the password from stdin instead of prompting")
	_ = c.MarkFlagRequired("handle")
	_ = c.MarkFlagRequired("name")
	_ = c.MarkFlagRequired("email")
	return c
}

// readPassword takes the first stdin line with --password-stdin, otherwise
// prompts without echo. Non-interactive stdin without the flag is an error.
func readPassword(cmd *cobra.Command, fromStdin bool) (string, error) {
	if fromStdin {
		line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return "", fmt.Errorf("read password: %w", err)
		}
		return strings.TrimRight(line, "\r\n"), nil
	}

	f, ok := cmd.InOrStdin().(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return "", errors.New("stdin is not a terminal: use --password-stdin")
	}
	_, _ = fmt.Fprint(cmd.ErrOrStderr(), "Password: ")
	b, err := term.ReadPassword(int(f.Fd()))
	_, _ = fmt.Fprintln(cmd.ErrOrStderr())
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return string(b), nil
}

func describeRegisterErr(err error) error {
	if v, ok := identity.AsValidation(err); ok {
		msgs := make([]string, 0, len(v.Fields))
		for _, f := range v.Fields {
			msgs = append(msgs, f.Field+": "+f.Msg)
		}
		return fmt.Errorf("invalid user: %s", strings.Join(msgs, "; "))
	}
	return err
}
