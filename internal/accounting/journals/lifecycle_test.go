package journals_test

import (
	"errors"
	"testing"

	"github.com/odyssey-erp/ledger/internal/accounting/journals"
	"github.com/odyssey-erp/ledger/internal/accounting/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateTransition(t *testing.T) {
	cases := []struct {
		from, to journals.Status
		ok       bool
	}{
		{journals.StatusDraft, journals.StatusDraft, true},
		{journals.StatusDraft, journals.StatusPosted, true},
		{journals.StatusPosted, journals.StatusVoid, true},
		{journals.StatusDraft, journals.StatusVoid, false},
		{journals.StatusPosted, journals.StatusDraft, false},
		{journals.StatusPosted, journals.StatusPosted, false},
		{journals.StatusVoid, journals.StatusPosted, false},
		{journals.StatusVoid, journals.StatusDraft, false},
		{journals.StatusVoid, journals.StatusVoid, false},
	}
	for _, tc := range cases {
		t.Run(string(tc.from)+"->"+string(tc.to), func(t *testing.T) {
			err := journals.ValidateTransition(tc.from, tc.to)
			if tc.ok {
				assert.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, shared.ErrInvalidStatus)
			var verr *shared.ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Equal(t, shared.KindInvalidTransition, verr.Kind)
			assert.Equal(t, string(tc.from), verr.From)
			assert.Equal(t, string(tc.to), verr.To)
		})
	}
}

func TestParseStatusAndSide(t *testing.T) {
	s, ok := journals.ParseStatus(" posted ")
	assert.True(t, ok)
	assert.Equal(t, journals.StatusPosted, s)
	_, ok = journals.ParseStatus("reversed")
	assert.False(t, ok)

	side, ok := journals.ParseSide("Credit")
	assert.True(t, ok)
	assert.Equal(t, journals.SideDebit, side.Opposite())
}
