// Package cli implements ledgerctl, the operator CLI for the ledger.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"io"

	"github.com/spf13/cobra"

	"github.com/odyssey-erp/ledger/internal/accounting/coa"
	"github.com/odyssey-erp/ledger/jobs"
)

// Env carries the services a command needs. The Opener owns their lifetime.
type Env struct {
	CoA       *coa.Service
	Integrity *jobs.GLIntegrityJob
	Jobs      *JobsCLI
}

// Opener builds an Env on first use so --help never dials a database.
type Opener func(ctx context.Context) (*Env, error)

// ErrFindings is returned by check when the audit found problems.
var ErrFindings = errors.New("ledgerctl: integrity findings present")

type rootOptions struct {
	clientID int64
	actorID  int64
	json     bool
}

type runner struct {
	open Opener
	opts rootOptions
	env  *Env
}

func (r *runner) load(ctx context.Context) (*Env, error) {
	if r.env != nil {
		return r.env, nil
	}
	if r.open == nil {
		return nil, errors.New("ledgerctl: no environment configured")
	}
	env, err := r.open(ctx)
	if err != nil {
		return nil, err
	}
	r.env = env
	return env, nil
}

func (r *runner) requireClient() error {
	if r.opts.clientID <= 0 {
		return errors.New("--client is required")
	}
	return nil
}

// NewRootCommand creates the root CLI command with all subcommands registered.
func NewRootCommand(open Opener) *cobra.Command {
	r := &runner{open: open}
	rootCmd := &cobra.Command{
		Use:   "ledgerctl",
		Short: "Operate the general ledger: chart of accounts and integrity checks",
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	flags := rootCmd.PersistentFlags()
	flags.Int64Var(&r.opts.clientID, "client", 0, "tenant (client) id")
	flags.Int64Var(&r.opts.actorID, "actor", 0, "actor id recorded in the audit log")
	flags.BoolVar(&r.opts.json, "json", false, "print JSON output")

	rootCmd.AddCommand(newCoACommand(r), newCheckCommand(r), newJobsCommand(r))
	return rootCmd
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
