package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/odyssey-erp/ledger/jobs"
)

func newCheckCommand(r *runner) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Run the GL integrity audit now (all tenants unless --client is set)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := r.load(cmd.Context())
			if err != nil {
				return err
			}
			var clients []int64
			if r.opts.clientID > 0 {
				clients = []int64{r.opts.clientID}
			}
			results, err := env.Integrity.Run(cmd.Context(), clients)
			if err != nil {
				return err
			}
			if r.opts.json {
				if err := writeJSON(cmd.OutOrStdout(), results); err != nil {
					return err
				}
			} else {
				printResults(cmd.OutOrStdout(), results)
			}
			for _, res := range results {
				if !res.Clean() {
					return ErrFindings
				}
			}
			return nil
		},
	}
}

func printResults(w io.Writer, results []jobs.TenantResult) {
	for _, res := range results {
		if res.Clean() {
			fmt.Fprintf(w, "client %d: ok (%d posted entries)\n", res.ClientID, res.Entries.Checked)
			continue
		}
		fmt.Fprintf(w, "client %d: %d entry findings, %d tree anomalies\n",
			res.ClientID, len(res.Entries.Findings), len(res.Anomalies))
		for _, f := range res.Entries.Findings {
			fmt.Fprintf(w, "  entity %d JE #%d %s: %s\n", f.EntityID, f.Number, f.Kind, f.Detail)
		}
		for _, a := range res.Anomalies {
			fmt.Fprintf(w, "  account %s %s\n", a.Code, a.Kind)
		}
	}
}
