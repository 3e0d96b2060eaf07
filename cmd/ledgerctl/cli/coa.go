package cli

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/odyssey-erp/ledger/internal/accounting/coa"
)

func newCoACommand(r *runner) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "coa",
		Short: "Import, export and seed a tenant chart of accounts",
	}
	cmd.AddCommand(newCoAImportCommand(r), newCoAExportCommand(r), newCoASeedCommand(r))
	return cmd
}

func newCoAImportCommand(r *runner) *cobra.Command {
	var opts coa.ImportOptions
	cmd := &cobra.Command{
		Use:   "import FILE",
		Short: "Reconcile a CSV or XLSX chart against the stored accounts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := r.requireClient(); err != nil {
				return err
			}
			set, err := readChartFile(args[0])
			if err != nil {
				return err
			}
			env, err := r.load(cmd.Context())
			if err != nil {
				return err
			}
			opts.ActorID = r.opts.actorID
			summary, err := env.CoA.Import(cmd.Context(), r.opts.clientID, set, opts)
			if err != nil {
				return err
			}
			return r.printSummary(cmd.OutOrStdout(), summary)
		},
	}
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "compute the changes without writing")
	cmd.Flags().BoolVar(&opts.SkipRetire, "skip-retire", false, "keep accounts missing from the file active")
	return cmd
}

func newCoAExportCommand(r *runner) *cobra.Command {
	var format, output string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the tenant chart in the import layout",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := r.requireClient(); err != nil {
				return err
			}
			env, err := r.load(cmd.Context())
			if err != nil {
				return err
			}
			set, err := env.CoA.Export(cmd.Context(), r.opts.clientID)
			if err != nil {
				return err
			}
			var buf bytes.Buffer
			switch strings.ToLower(format) {
			case "csv":
				err = coa.WriteCSV(&buf, set)
			case "xlsx":
				err = coa.WriteXLSX(&buf, set)
			default:
				return fmt.Errorf("unsupported format %q (csv, xlsx)", format)
			}
			if err != nil {
				return err
			}
			if output == "" || output == "-" {
				_, err = cmd.OutOrStdout().Write(buf.Bytes())
				return err
			}
			return os.WriteFile(output, buf.Bytes(), 0o644)
		},
	}
	cmd.Flags().StringVar(&format, "format", "csv", "csv or xlsx")
	cmd.Flags().StringVarP(&output, "output", "o", "", "destination file (stdout when empty)")
	return cmd
}

func newCoASeedCommand(r *runner) *cobra.Command {
	var template string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load a chart template into an empty tenant",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := r.requireClient(); err != nil {
				return err
			}
			env, err := r.load(cmd.Context())
			if err != nil {
				return err
			}
			summary, err := env.CoA.SeedStandardChart(cmd.Context(), r.opts.clientID, template, r.opts.actorID)
			if err != nil {
				return err
			}
			return r.printSummary(cmd.OutOrStdout(), summary)
		},
	}
	cmd.Flags().StringVar(&template, "template", "standard", "template name ("+strings.Join(coa.TemplateNames(), ", ")+")")
	return cmd
}

func readChartFile(path string) (coa.RowSet, error) {
	f, err := os.Open(path)
	if err != nil {
		return coa.RowSet{}, err
	}
	defer f.Close()
	if strings.EqualFold(filepath.Ext(path), ".xlsx") {
		return coa.ReadXLSX(f)
	}
	return coa.ReadCSV(f)
}

func (r *runner) printSummary(w io.Writer, s coa.Summary) error {
	if r.opts.json {
		return writeJSON(w, s)
	}
	mode := "applied"
	if s.DryRun {
		mode = "dry run"
	}
	fmt.Fprintf(w, "%s: created=%d updated=%d retired=%d unchanged=%d skipped=%d\n",
		mode, s.Created, s.Updated, s.Retired, s.Unchanged, s.Skipped)
	for _, warn := range s.Warnings {
		fmt.Fprintf(w, "warning: row %d (%s) %s: %s\n", warn.Row, warn.Code, warn.Field, warn.Message)
	}
	return nil
}
