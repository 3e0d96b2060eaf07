package journals

import (
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/odyssey-erp/ledger/internal/platform/httpx"
	internalShared "github.com/odyssey-erp/ledger/internal/shared"
	"github.com/shopspring/decimal"
)

const dateLayout = "2006-01-02"

type lineRequest struct {
	ID          *uuid.UUID      `json:"id"`
	AccountID   uuid.UUID       `json:"accountId"`
	EntityCode  string          `json:"entityCode" validate:"max=64"`
	Type        string          `json:"type"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description" validate:"max=1000"`
}

type createEntryRequest struct {
	Date            string        `json:"date" validate:"required,datetime=2006-01-02"`
	Description     string        `json:"description" validate:"max=1000"`
	ReferenceNumber string        `json:"referenceNumber" validate:"max=128"`
	JournalType     string        `json:"journalType" validate:"max=64"`
	ReversalDate    string        `json:"reversalDate" validate:"omitempty,datetime=2006-01-02"`
	Lines           []lineRequest `json:"lines" validate:"dive"`
}

type updateEntryRequest struct {
	Date            *string        `json:"date" validate:"omitempty,datetime=2006-01-02"`
	Description     *string        `json:"description" validate:"omitempty,max=1000"`
	ReferenceNumber *string        `json:"referenceNumber" validate:"omitempty,max=128"`
	JournalType     *string        `json:"journalType" validate:"omitempty,max=64"`
	ReversalDate    *string        `json:"reversalDate" validate:"omitempty,datetime=2006-01-02"`
	ClearReversal   bool           `json:"clearReversalDate"`
	Lines           *[]lineRequest `json:"lines" validate:"omitempty,dive"`
}

type voidEntryRequest struct {
	Reason string `json:"reason" validate:"max=1000"`
}

type reverseEntryRequest struct {
	Date        string `json:"date" validate:"omitempty,datetime=2006-01-02"`
	Description string `json:"description" validate:"max=1000"`
}

func toLineInputs(in []lineRequest) []LineInput {
	out := make([]LineInput, 0, len(in))
	for _, l := range in {
		side, _ := ParseSide(l.Type)
		out = append(out, LineInput{
			ID:          l.ID,
			AccountID:   l.AccountID,
			EntityCode:  l.EntityCode,
			Side:        side,
			Amount:      l.Amount,
			Description: l.Description,
		})
	}
	return out
}

func (req createEntryRequest) toInput(clientID, entityID, actorID int64) (EntryInput, error) {
	date, err := time.Parse(dateLayout, req.Date)
	if err != nil {
		return EntryInput{}, fmt.Errorf("%w: date must be YYYY-MM-DD", httpx.ErrValidation)
	}
	reversal, err := optionalDate(req.ReversalDate)
	if err != nil {
		return EntryInput{}, err
	}
	return EntryInput{
		ClientID:        clientID,
		EntityID:        entityID,
		Date:            date,
		Description:     req.Description,
		ReferenceNumber: req.ReferenceNumber,
		JournalType:     req.JournalType,
		ReversalDate:    reversal,
		ActorID:         actorID,
		Lines:           toLineInputs(req.Lines),
	}, nil
}

func (req updateEntryRequest) toInput(actorID int64) (UpdateInput, error) {
	in := UpdateInput{
		Description:     req.Description,
		ReferenceNumber: req.ReferenceNumber,
		JournalType:     req.JournalType,
		ClearReversal:   req.ClearReversal,
		ActorID:         actorID,
	}
	if req.Date != nil {
		d, err := optionalDate(*req.Date)
		if err != nil {
			return UpdateInput{}, err
		}
		in.Date = d
	}
	if req.ReversalDate != nil {
		d, err := optionalDate(*req.ReversalDate)
		if err != nil {
			return UpdateInput{}, err
		}
		in.ReversalDate = d
	}
	if req.Lines != nil {
		lines := toLineInputs(*req.Lines)
		in.Lines = &lines
	}
	return in, nil
}

func optionalDate(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	d, err := time.Parse(dateLayout, raw)
	if err != nil {
		return nil, fmt.Errorf("%w: dates must be YYYY-MM-DD", httpx.ErrValidation)
	}
	return &d, nil
}

// filterFromQuery reads from, to, status, page and per_page.
func filterFromQuery(q url.Values) (ListFilter, error) {
	var f ListFilter
	var err error
	f.Page, f.PerPage = internalShared.PageFromQuery(q)
	if f.From, err = optionalDate(q.Get("from")); err != nil {
		return ListFilter{}, err
	}
	if f.To, err = optionalDate(q.Get("to")); err != nil {
		return ListFilter{}, err
	}
	if raw := q.Get("status"); raw != "" {
		status, ok := ParseStatus(raw)
		if !ok {
			return ListFilter{}, fmt.Errorf("%w: unknown status %q", httpx.ErrValidation, raw)
		}
		f.Status = status
	}
	return f, nil
}
