package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/practiceline/handoff"
	"github.com/practiceline/handoff/config"
)

func issueCmd() *cobra.Command {
	var (
		opts     runtimeOptions
		id       handoff.Identity
		logLevel string
	)

	cmd := &cobra.Command{
		Use:   "issue",
		Short: "Issue a handoff code and print the tenant URL",
		Long: "Issue a handoff code for a user and tenant and print the URL that redeems it.\n" +
			"Intended for support staff reproducing a login; the code is single use.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			cfg.LogLevel = logLevel

			svc, err := buildRuntime(cmd.Context(), cfg, opts, newLogger(cfg))
			if err != nil {
				return err
			}
			defer svc.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
			defer cancel()
			target, err := svc.engine.Start(ctx, id)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), target)
			return nil
		},
	}
	addRuntimeFlags(cmd, &opts)
	cmd.Flags().StringVar(&id.UserID, "user", "", "user ID")
	cmd.Flags().StringVar(&id.TenantID, "tenant", "", "tenant ID")
	cmd.Flags().StringVar(&id.Email, "email", "", "email carried to the tenant")
	cmd.Flags().StringVar(&id.IntendedPath, "intended", "", "path to open on the tenant after login")
	cmd.Flags().StringVar(&logLevel, "log-level", "warn", "log level")
	_ = cmd.MarkFlagRequired("user")
	_ = cmd.MarkFlagRequired("tenant")
	return cmd
}

func inspectCmd() *cobra.Command {
	var opts runtimeOptions

	cmd := &cobra.Command{
		Use:   "inspect <code>",
		Short: "Show whether a handoff code is still pending without consuming it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			cfg.LogLevel = "warn"

			svc, err := buildRuntime(cmd.Context(), cfg, opts, newLogger(cfg))
			if err != nil {
				return err
			}
			defer svc.Close()

			pending, ok, err := svc.engine.Pending(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printPending(cmd.OutOrStdout(), pending, ok)
			return nil
		},
	}
	addRuntimeFlags(cmd, &opts)
	return cmd
}

// printPending never prints the code itself, only its fingerprint.
func printPending(w io.Writer, p handoff.PendingCode, ok bool) {
	if !ok {
		fmt.Fprintln(w, "not pending (unknown, consumed, expired or malformed)")
		return
	}
	fmt.Fprintf(w, "fingerprint: %s\n", p.Fingerprint)
	fmt.Fprintf(w, "user:        %s\n", p.UserID)
	fmt.Fprintf(w, "tenant:      %s\n", p.TenantID)
	fmt.Fprintf(w, "issued:      %s\n", p.IssuedAt.UTC().Format(time.RFC3339))
	fmt.Fprintf(w, "expires:     %s\n", p.ExpiresAt.UTC().Format(time.RFC3339))
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration tools",
	}

	var strict bool
	checkCmd := &cobra.Command{
		Use:   "check",
		Short: "Validate the configuration and report risky settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			return checkConfig(cmd.OutOrStdout(), cfg, strict)
		},
	}
	checkCmd.Flags().BoolVar(&strict, "strict", false, "fail on HIGH severity warnings")
	cmd.AddCommand(checkCmd)

	return cmd
}

var errLintFailed = errors.New("configuration has high severity warnings")

func checkConfig(w io.Writer, cfg *config.Config, strict bool) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	engine := cfg.Engine()
	result := engine.Lint()
	if len(result) == 0 {
		fmt.Fprintln(w, "configuration OK")
		return nil
	}
	for _, warning := range result {
		fmt.Fprintf(w, "%-5s %-28s %s\n", warning.Severity, warning.Code, warning.Message)
	}
	if strict && result.AsError(handoff.LintHigh) != nil {
		return errLintFailed
	}
	return nil
}

