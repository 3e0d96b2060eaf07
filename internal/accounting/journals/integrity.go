package journals

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/odyssey-erp/ledger/internal/accounting/shared"
)

// Finding is one posted entry that no longer satisfies the balance rules.
type Finding struct {
	EntryID  uuid.UUID             `json:"entryId"`
	EntityID int64                 `json:"entityId"`
	Number   int64                 `json:"number"`
	Kind     shared.ValidationKind `json:"kind"`
	Detail   string                `json:"detail"`
}

// IntegrityReport summarises AuditBalances for one tenant.
type IntegrityReport struct {
	ClientID int64     `json:"clientId"`
	Checked  int       `json:"checked"`
	Findings []Finding `json:"findings"`
}

// AuditBalances re-validates every posted entry of the tenant. Rows written
// around the service, by migrations or manual fixes, show up here.
func (s *Service) AuditBalances(ctx context.Context, clientID int64) (IntegrityReport, error) {
	entries, err := s.repo.PostedEntries(ctx, clientID)
	if err != nil {
		return IntegrityReport{}, fmt.Errorf("audit balances: %w", err)
	}
	report := IntegrityReport{ClientID: clientID, Checked: len(entries), Findings: []Finding{}}
	for _, e := range entries {
		in := e.input()
		var verr *shared.ValidationError
		if err := Validate(in); errors.As(err, &verr) {
			report.Findings = append(report.Findings, Finding{
				EntryID:  e.ID,
				EntityID: e.EntityID,
				Number:   e.Number,
				Kind:     verr.Kind,
				Detail:   findingDetail(verr),
			})
		}
	}
	return report, nil
}

func findingDetail(verr *shared.ValidationError) string {
	if verr.Kind != shared.KindEntityUnbalanced {
		return verr.Error()
	}
	parts := make([]string, 0, len(verr.Entities))
	for _, ent := range verr.Entities {
		code := ent.EntityCode
		if code == "" {
			code = "(none)"
		}
		parts = append(parts, fmt.Sprintf("%s off by %s", code, ent.Delta))
	}
	return strings.Join(parts, ", ")
}

// ClientIDs lists tenants for the integrity sweep.
func (s *Service) ClientIDs(ctx context.Context) ([]int64, error) {
	return s.repo.ClientIDs(ctx)
}
