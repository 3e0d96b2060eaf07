package journals

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/odyssey-erp/ledger/internal/accounting/shared"
	"github.com/odyssey-erp/ledger/internal/events"
	internalShared "github.com/odyssey-erp/ledger/internal/shared"
)

type AuditPort interface {
	Record(ctx context.Context, log internalShared.AuditLog) error
}

// Recorder receives lifecycle and validation outcomes.
type Recorder interface {
	EntryTransition(status string)
	ValidationRejected(kind string)
}

// Options wires optional collaborators. Nil members are skipped.
type Options struct {
	Audit     AuditPort
	Publisher events.Publisher
	Metrics   Recorder
	Logger    *slog.Logger
}

type Service struct {
	repo      Repository
	audit     AuditPort
	publisher events.Publisher
	metrics   Recorder
	logger    *slog.Logger
	now       func() time.Time
}

func NewService(repo Repository, opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	publisher := opts.Publisher
	if publisher == nil {
		publisher = events.Nop{}
	}
	return &Service{
		repo:      repo,
		audit:     opts.Audit,
		publisher: publisher,
		metrics:   opts.Metrics,
		logger:    logger,
		now:       time.Now,
	}
}

func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// GetEntry loads an entry with its lines.
func (s *Service) GetEntry(ctx context.Context, clientID, entityID int64, id uuid.UUID) (Entry, error) {
	return s.repo.GetEntry(ctx, clientID, entityID, id)
}

// ListEntries returns one page of headers plus the paging metadata.
func (s *Service) ListEntries(ctx context.Context, clientID int64, filter ListFilter) ([]Entry, internalShared.Pagination, error) {
	p := internalShared.NewPagination(filter.Page, filter.PerPage, 0)
	filter.Page, filter.PerPage = p.Page, p.PerPage
	entries, total, err := s.repo.ListEntries(ctx, clientID, filter)
	if err != nil {
		return nil, internalShared.Pagination{}, fmt.Errorf("list entries: %w", err)
	}
	if entries == nil {
		entries = []Entry{}
	}
	return entries, internalShared.NewPagination(filter.Page, filter.PerPage, total), nil
}

// CreateEntry validates the proposal and stores it as a draft.
func (s *Service) CreateEntry(ctx context.Context, in EntryInput) (Entry, error) {
	if in.JournalType == "" {
		in.JournalType = JournalTypeStandard
	}
	if err := s.validate(in); err != nil {
		return Entry{}, err
	}
	var created Entry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := s.checkAccounts(ctx, tx, in.ClientID, in.Lines); err != nil {
			return err
		}
		if err := tx.LockEntity(ctx, in.ClientID, in.EntityID); err != nil {
			return err
		}
		number, err := tx.NextNumber(ctx, in.ClientID, in.EntityID)
		if err != nil {
			return err
		}
		entry, err := tx.InsertEntry(ctx, Entry{
			ID:              uuid.New(),
			ClientID:        in.ClientID,
			EntityID:        in.EntityID,
			Number:          number,
			Date:            in.Date,
			Description:     in.Description,
			ReferenceNumber: in.ReferenceNumber,
			JournalType:     in.JournalType,
			Status:          StatusDraft,
			ReversalDate:    in.ReversalDate,
			CreatedBy:       in.ActorID,
		})
		if err != nil {
			return err
		}
		entry.Lines = buildLines(entry.ID, in.Lines)
		if err := tx.InsertLines(ctx, in.ClientID, entry.Lines); err != nil {
			return err
		}
		if entry.Warnings, err = referenceWarnings(ctx, tx, entry); err != nil {
			return err
		}
		created = entry
		return nil
	})
	if err != nil {
		return Entry{}, fmt.Errorf("create entry: %w", err)
	}
	s.after(ctx, in.ActorID, "journal.create", events.TypeEntryCreated, created, nil)
	return created, nil
}

// UpdateEntry patches a draft freely. A posted entry only accepts description
// and reference number; a void entry accepts nothing.
func (s *Service) UpdateEntry(ctx context.Context, clientID, entityID int64, id uuid.UUID, in UpdateInput) (Entry, error) {
	var updated Entry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetEntryForUpdate(ctx, clientID, entityID, id)
		if err != nil {
			return err
		}
		switch current.Status {
		case StatusDraft:
		case StatusPosted:
			if !in.touchesOnlyMetadata() {
				return fmt.Errorf("%w: posted entries accept description and referenceNumber only", shared.ErrEntryLocked)
			}
		default:
			return fmt.Errorf("%w: entry is %s", shared.ErrEntryLocked, current.Status)
		}

		next := current
		applyHeader(&next, in)
		proposed := next.input()
		if in.Lines != nil {
			proposed.Lines = *in.Lines
		}
		if err := s.validate(proposed); err != nil {
			return err
		}
		if current.Status == StatusDraft {
			if in.Lines != nil {
				if err := s.checkAccounts(ctx, tx, clientID, proposed.Lines); err != nil {
					return err
				}
				if next.Lines, err = replaceLines(ctx, tx, current, proposed.Lines); err != nil {
					return err
				}
			}
		}
		if next.ReferenceNumber != current.ReferenceNumber {
			if err := tx.LockEntity(ctx, clientID, entityID); err != nil {
				return err
			}
		}
		saved, err := tx.UpdateEntry(ctx, next)
		if err != nil {
			return err
		}
		saved.Lines = next.Lines
		if saved.ReferenceNumber != current.ReferenceNumber {
			if saved.Warnings, err = referenceWarnings(ctx, tx, saved); err != nil {
				return err
			}
		}
		updated = saved
		return nil
	})
	if err != nil {
		return Entry{}, fmt.Errorf("update entry: %w", err)
	}
	s.record(ctx, in.ActorID, "journal.update", updated, nil)
	return updated, nil
}

// PostEntry moves a draft to posted after validating its stored lines again.
// A reversal posts only while the entry it reverses is still posted.
func (s *Service) PostEntry(ctx context.Context, clientID, entityID int64, id uuid.UUID, actorID int64) (Entry, error) {
	var posted Entry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetEntryForUpdate(ctx, clientID, entityID, id)
		if err != nil {
			return err
		}
		if err := ValidateTransition(current.Status, StatusPosted); err != nil {
			return err
		}
		in := current.input()
		if err := s.validate(in); err != nil {
			return err
		}
		if err := s.checkAccounts(ctx, tx, clientID, in.Lines); err != nil {
			return err
		}
		if current.ReversalOf != nil {
			target, err := tx.GetEntryForUpdate(ctx, clientID, entityID, *current.ReversalOf)
			if err != nil {
				return fmt.Errorf("reversal target: %w", err)
			}
			if target.Status != StatusPosted {
				return fmt.Errorf("%w: reversed entry #%d is %s", shared.ErrInvalidStatus, target.Number, target.Status)
			}
		}
		now := s.now()
		current.Status = StatusPosted
		current.PostedBy = actorID
		current.PostedAt = &now
		saved, err := tx.UpdateEntry(ctx, current)
		if err != nil {
			return err
		}
		saved.Lines = current.Lines
		posted = saved
		return nil
	})
	if err != nil {
		return Entry{}, fmt.Errorf("post entry: %w", err)
	}
	s.transitioned(StatusPosted)
	s.after(ctx, actorID, "journal.post", events.TypeEntryPosted, posted, nil)
	return posted, nil
}

// VoidEntry moves a posted entry to void, keeping its lines. It is refused
// while a posted entry reverses it.
func (s *Service) VoidEntry(ctx context.Context, clientID, entityID int64, id uuid.UUID, in VoidInput) (Entry, error) {
	var voided Entry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetEntryForUpdate(ctx, clientID, entityID, id)
		if err != nil {
			return err
		}
		if err := ValidateTransition(current.Status, StatusVoid); err != nil {
			return err
		}
		refs, err := tx.Referrers(ctx, clientID, id)
		if err != nil {
			return err
		}
		for _, ref := range refs {
			if ref.Status == StatusPosted {
				return fmt.Errorf("%w: referenced by posted entry #%d", shared.ErrReferenced, ref.Number)
			}
		}
		now := s.now()
		current.Status = StatusVoid
		current.VoidedBy = in.ActorID
		current.VoidedAt = &now
		saved, err := tx.UpdateEntry(ctx, current)
		if err != nil {
			return err
		}
		saved.Lines = current.Lines
		voided = saved
		return nil
	})
	if err != nil {
		return Entry{}, fmt.Errorf("void entry: %w", err)
	}
	s.transitioned(StatusVoid)
	s.after(ctx, in.ActorID, "journal.void", events.TypeEntryVoided, voided, map[string]any{"reason": in.Reason})
	return voided, nil
}

// DeleteEntry removes an unreferenced draft. Anything else must be voided.
func (s *Service) DeleteEntry(ctx context.Context, clientID, entityID int64, id uuid.UUID, actorID int64) error {
	var deleted Entry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetEntryForUpdate(ctx, clientID, entityID, id)
		if err != nil {
			return err
		}
		if current.Status != StatusDraft {
			return fmt.Errorf("%w: entry is %s", shared.ErrMustVoid, current.Status)
		}
		refs, err := tx.Referrers(ctx, clientID, id)
		if err != nil {
			return err
		}
		if len(refs) > 0 {
			return fmt.Errorf("%w: referenced by entry #%d", shared.ErrReferenced, refs[0].Number)
		}
		deleted = current
		return tx.DeleteEntry(ctx, clientID, id)
	})
	if err != nil {
		return fmt.Errorf("delete entry: %w", err)
	}
	s.after(ctx, actorID, "journal.delete", events.TypeEntryDeleted, deleted, nil)
	return nil
}

// ReverseEntry drafts the mirror image of a posted entry, debits and credits
// swapped, linked back through reversalOf. Voiding the original is refused
// once the reversal is posted.
func (s *Service) ReverseEntry(ctx context.Context, clientID, entityID int64, id uuid.UUID, in ReverseInput) (Entry, error) {
	var reversal Entry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		original, err := tx.GetEntryForUpdate(ctx, clientID, entityID, id)
		if err != nil {
			return err
		}
		if original.Status != StatusPosted {
			return fmt.Errorf("%w: only posted entries can be reversed, entry is %s", shared.ErrInvalidStatus, original.Status)
		}
		refs, err := tx.Referrers(ctx, clientID, id)
		if err != nil {
			return err
		}
		for _, ref := range refs {
			if ref.Status != StatusVoid {
				return fmt.Errorf("%w: by entry #%d", shared.ErrAlreadyReversed, ref.Number)
			}
		}
		date := original.Date
		if original.ReversalDate != nil {
			date = *original.ReversalDate
		}
		if in.Date != nil {
			date = *in.Date
		}
		if err := tx.LockEntity(ctx, clientID, entityID); err != nil {
			return err
		}
		number, err := tx.NextNumber(ctx, clientID, entityID)
		if err != nil {
			return err
		}
		origID := original.ID
		entry, err := tx.InsertEntry(ctx, Entry{
			ID:          uuid.New(),
			ClientID:    clientID,
			EntityID:    entityID,
			Number:      number,
			Date:        date,
			Description: defaultReversalMemo(in.Description, original.Number),
			JournalType: JournalTypeReversal,
			Status:      StatusDraft,
			ReversalOf:  &origID,
			CreatedBy:   in.ActorID,
		})
		if err != nil {
			return err
		}
		entry.Lines = buildLines(entry.ID, reverseLines(original.Lines))
		if err := tx.InsertLines(ctx, clientID, entry.Lines); err != nil {
			return err
		}
		reversal = entry
		return nil
	})
	if err != nil {
		return Entry{}, fmt.Errorf("reverse entry: %w", err)
	}
	s.after(ctx, in.ActorID, "journal.reverse", events.TypeEntryReversed, reversal, map[string]any{"reversal_of": id.String()})
	return reversal, nil
}

func (s *Service) validate(in EntryInput) error {
	err := Validate(in)
	var verr *shared.ValidationError
	if errors.As(err, &verr) && s.metrics != nil {
		s.metrics.ValidationRejected(string(verr.Kind))
	}
	return err
}

// checkAccounts requires every referenced account to exist in the tenant and be active.
func (s *Service) checkAccounts(ctx context.Context, tx TxRepository, clientID int64, lines []LineInput) error {
	ids := make([]uuid.UUID, 0, len(lines))
	seen := make(map[uuid.UUID]bool, len(lines))
	for _, l := range lines {
		if !seen[l.AccountID] {
			seen[l.AccountID] = true
			ids = append(ids, l.AccountID)
		}
	}
	states, err := tx.AccountStates(ctx, clientID, ids)
	if err != nil {
		return err
	}
	var fields []string
	for i, l := range lines {
		if active, ok := states[l.AccountID]; !ok || !active {
			fields = append(fields, fmt.Sprintf("lines[%d].accountId", i))
		}
	}
	if len(fields) > 0 {
		if s.metrics != nil {
			s.metrics.ValidationRejected(string(shared.KindInvalidAccount))
		}
		return &shared.ValidationError{Kind: shared.KindInvalidAccount, Fields: fields}
	}
	return nil
}

func applyHeader(e *Entry, in UpdateInput) {
	if in.Date != nil {
		e.Date = *in.Date
	}
	if in.Description != nil {
		e.Description = *in.Description
	}
	if in.ReferenceNumber != nil {
		e.ReferenceNumber = *in.ReferenceNumber
	}
	if in.JournalType != nil {
		e.JournalType = *in.JournalType
	}
	if in.ReversalDate != nil {
		d := *in.ReversalDate
		e.ReversalDate = &d
	}
	if in.ClearReversal {
		e.ReversalDate = nil
	}
}

// replaceLines diffs proposed against the stored lines by id: unknown ids are
// rejected, missing ones deleted, matched ones rewritten, new ones inserted.
func replaceLines(ctx context.Context, tx TxRepository, current Entry, proposed []LineInput) ([]Line, error) {
	existing := make(map[uuid.UUID]bool, len(current.Lines))
	for _, l := range current.Lines {
		existing[l.ID] = true
	}
	var unknown []string
	kept := make(map[uuid.UUID]bool, len(proposed))
	for i, l := range proposed {
		if l.ID == nil {
			continue
		}
		if !existing[*l.ID] || kept[*l.ID] {
			unknown = append(unknown, fmt.Sprintf("lines[%d].id", i))
			continue
		}
		kept[*l.ID] = true
	}
	if len(unknown) > 0 {
		return nil, shared.Incomplete(unknown...)
	}

	lines := buildLines(current.ID, proposed)
	var removed []uuid.UUID
	for _, l := range current.Lines {
		if !kept[l.ID] {
			removed = append(removed, l.ID)
		}
	}
	var updates, inserts []Line
	for i, l := range lines {
		if proposed[i].ID != nil {
			updates = append(updates, l)
		} else {
			inserts = append(inserts, l)
		}
	}
	if err := tx.DeleteLines(ctx, current.ID, removed); err != nil {
		return nil, err
	}
	if err := tx.UpdateLines(ctx, updates); err != nil {
		return nil, err
	}
	if err := tx.InsertLines(ctx, current.ClientID, inserts); err != nil {
		return nil, err
	}
	return lines, nil
}

func buildLines(entryID uuid.UUID, in []LineInput) []Line {
	out := make([]Line, 0, len(in))
	for i, l := range in {
		id := uuid.New()
		if l.ID != nil {
			id = *l.ID
		}
		out = append(out, Line{
			ID:          id,
			EntryID:     entryID,
			LineNo:      i + 1,
			AccountID:   l.AccountID,
			EntityCode:  l.EntityCode,
			Side:        l.Side,
			Amount:      l.Amount,
			Description: l.Description,
		})
	}
	return out
}

func reverseLines(lines []Line) []LineInput {
	out := make([]LineInput, 0, len(lines))
	for _, line := range lines {
		out = append(out, LineInput{
			AccountID:   line.AccountID,
			EntityCode:  line.EntityCode,
			Side:        line.Side.Opposite(),
			Amount:      line.Amount,
			Description: line.Description,
		})
	}
	return out
}

func defaultReversalMemo(memo string, number int64) string {
	if memo != "" {
		return memo
	}
	return fmt.Sprintf("Reversal of JE #%d", number)
}

func referenceWarnings(ctx context.Context, tx TxRepository, e Entry) ([]string, error) {
	if e.ReferenceNumber == "" {
		return nil, nil
	}
	dup, err := tx.ReferenceInUse(ctx, e.ClientID, e.EntityID, e.ReferenceNumber, e.ID)
	if err != nil || !dup {
		return nil, err
	}
	return []string{fmt.Sprintf("reference number %q is already used in this entity", e.ReferenceNumber)}, nil
}

func (s *Service) transitioned(status Status) {
	if s.metrics != nil {
		s.metrics.EntryTransition(string(status))
	}
}

func (s *Service) record(ctx context.Context, actorID int64, action string, e Entry, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if meta == nil {
		meta = map[string]any{}
	}
	meta["number"] = e.Number
	meta["entity_id"] = e.EntityID
	meta["status"] = string(e.Status)
	err := s.audit.Record(ctx, internalShared.AuditLog{
		ClientID: e.ClientID,
		ActorID:  actorID,
		Action:   action,
		Entity:   "journal_entry",
		EntityID: e.ID.String(),
		Meta:     meta,
		At:       s.now(),
	})
	if err != nil {
		s.logger.Warn("audit record", slog.String("action", action), slog.Any("error", err))
	}
}

// after writes the audit row and publishes the event once the tx committed.
func (s *Service) after(ctx context.Context, actorID int64, action, eventType string, e Entry, meta map[string]any) {
	s.record(ctx, actorID, action, e, meta)
	for _, w := range e.Warnings {
		s.logger.Warn("journal entry warning", slog.Int64("client_id", e.ClientID), slog.String("entry_id", e.ID.String()), slog.String("warning", w))
	}
	data := map[string]any{"number": e.Number, "status": string(e.Status)}
	if e.ReversalOf != nil {
		data["reversalOf"] = e.ReversalOf.String()
	}
	err := s.publisher.Publish(ctx, events.Event{
		Type:        eventType,
		ClientID:    e.ClientID,
		EntityID:    e.EntityID,
		AggregateID: e.ID.String(),
		ActorID:     actorID,
		OccurredAt:  s.now(),
		Data:        data,
	})
	if err != nil {
		s.logger.Warn("publish event", slog.String("type", eventType), slog.Any("error", err))
	}
}
