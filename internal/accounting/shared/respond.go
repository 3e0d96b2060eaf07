package shared

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/odyssey-erp/ledger/internal/platform/httpx"
)

// RespondError renders accounting errors as problem documents. Errors it does
// not recognise fall through to httpx.RespondError.
func RespondError(w http.ResponseWriter, err error) {
	var verr *ValidationError
	if errors.As(err, &verr) {
		status := http.StatusUnprocessableEntity
		if verr.Kind == KindIncomplete {
			status = http.StatusBadRequest
		}
		httpx.ProblemWithErrors(w, status, "Journal Entry Rejected", verr.Error(), verr)
		return
	}
	var ierr *ImportError
	if errors.As(err, &ierr) {
		httpx.ProblemWithErrors(w, http.StatusBadRequest, "Import Rejected", ErrInvalidImport.Error(), ierr.Issues)
		return
	}
	switch {
	case errors.Is(err, ErrAccountNotFound), errors.Is(err, ErrJournalNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrDuplicateCode),
		errors.Is(err, ErrHasDependents),
		errors.Is(err, ErrReferenced),
		errors.Is(err, ErrMustVoid),
		errors.Is(err, ErrAlreadyReversed),
		errors.Is(err, ErrAlreadySeeded),
		errors.Is(err, ErrConflict):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, ErrParentNotFound),
		errors.Is(err, ErrCycle),
		errors.Is(err, ErrAccountTypeInUse),
		errors.Is(err, ErrEntryLocked),
		errors.Is(err, ErrInvalidStatus),
		errors.Is(err, ErrUnbalanced),
		errors.Is(err, ErrInvalidAccount):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Unprocessable", err.Error())
	case errors.Is(err, ErrInvalidAccountType),
		errors.Is(err, ErrInvalidAccountInput),
		errors.Is(err, ErrIncomplete),
		errors.Is(err, ErrUnknownTemplate),
		errors.Is(err, ErrInvalidImport):
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
	default:
		httpx.RespondError(w, err)
	}
}

// Fail renders err and logs it when it turned into a server error. Expected
// domain rejections are not logged.
func Fail(w http.ResponseWriter, logger *slog.Logger, op string, err error) {
	rec := &statusCapture{ResponseWriter: w}
	RespondError(rec, err)
	if rec.status >= http.StatusInternalServerError && logger != nil {
		logger.Error(op, slog.Any("error", err))
	}
}

type statusCapture struct {
	http.ResponseWriter
	status int
}

func (s *statusCapture) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}
