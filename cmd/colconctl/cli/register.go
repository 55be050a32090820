package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/colcon/colcon-site/internal/signup"
)

// readPassword is a test seam for term.ReadPassword.
var readPassword = term.ReadPassword

// isTerminal is a test seam for term.IsTerminal.
var isTerminal = term.IsTerminal

// ErrReported marks failures whose details were already printed.
var ErrReported = errors.New("registration failed")

type registerOptions struct {
	email           string
	password        string
	confirmPassword string
	apiURL          string
	localDB         string
}

func newRegisterCmd(cfg clientConfig) *cobra.Command {
	opts := registerOptions{apiURL: cfg.APIURL, localDB: cfg.LocalDB}

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Register a user through the API",
		Long: `Validate the form, send it to the registration API and, when the
service is unreachable, keep it in the local pending list.

The password is prompted without echo when --password is omitted on a
terminal.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := opts.promptMissing(cmd.ErrOrStderr()); err != nil {
				return err
			}
			return runRegister(cmd, opts, cfg)
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&opts.email, "email", "", "email address")
	flags.StringVar(&opts.password, "password", "", "password (prompted when omitted)")
	flags.StringVar(&opts.confirmPassword, "confirm-password", "", "password confirmation (prompted when omitted)")
	flags.StringVar(&opts.apiURL, "api-url", opts.apiURL, "registration API base URL")
	flags.StringVar(&opts.localDB, "local-db", opts.localDB, "sqlite file holding registrations saved offline")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func (o *registerOptions) promptMissing(w io.Writer) error {
	if o.password != "" && o.confirmPassword != "" {
		return nil
	}
	fd := int(os.Stdin.Fd())
	if !isTerminal(fd) {
		if o.password != "" && o.confirmPassword == "" {
			// Scripts pass the password once.
			o.confirmPassword = o.password
			return nil
		}
		return errors.New("--password is required when stdin is not a terminal")
	}
	if o.password == "" {
		pw, err := prompt(w, "Password: ", fd)
		if err != nil {
			return err
		}
		o.password = pw
	}
	if o.confirmPassword == "" {
		pw, err := prompt(w, "Confirm password: ", fd)
		if err != nil {
			return err
		}
		o.confirmPassword = pw
	}
	return nil
}

func prompt(w io.Writer, label string, fd int) (string, error) {
	if _, err := fmt.Fprint(w, label); err != nil {
		return "", err
	}
	pw, err := readPassword(fd)
	_, _ = fmt.Fprintln(w)
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return string(pw), nil
}

func runRegister(cmd *cobra.Command, opts registerOptions, cfg clientConfig) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	errOut := cmd.ErrOrStderr()
	logger := slog.New(slog.NewTextHandler(errOut, &slog.HandlerOptions{Level: slog.LevelWarn}))

	local, err := signup.OpenLocalStore(ctx, opts.localDB)
	if err != nil {
		return err
	}
	defer func() {
		_ = local.Close()
	}()

	flow := signup.NewFlow(signup.NewClient(opts.apiURL, cfg.Timeout), local, signup.WithLogger(logger))
	outcome := flow.Submit(ctx, signup.Form{
		Email:           opts.email,
		Password:        opts.password,
		ConfirmPassword: opts.confirmPassword,
	})

	switch outcome.Result {
	case signup.ResultRemote:
		_, _ = fmt.Fprintf(out, "Registration successful. Check %s to confirm your email.\nuser id: %s\n", outcome.Record.Email, outcome.Record.ID)
		return nil
	case signup.ResultLocal:
		var apiErr *signup.APIError
		if errors.As(outcome.Err, &apiErr) && apiErr.Message != "" {
			_, _ = fmt.Fprintf(errOut, "server: %s\n", apiErr.Message)
		}
		_, _ = fmt.Fprintf(out, "Registration saved locally. It will be sent when the server is reachable.\nuser id: %s\n", outcome.Record.ID)
		return nil
	default:
		printFieldErrors(errOut, outcome.Errors)
		return ErrReported
	}
}

func printFieldErrors(w io.Writer, errs signup.FieldErrors) {
	fields := make([]string, 0, len(errs))
	for field := range errs {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	for _, field := range fields {
		_, _ = fmt.Fprintf(w, "%s: %s\n", field, errs[field])
	}
}
