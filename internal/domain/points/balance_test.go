package points

import (
	"testing"
	"time"

	"github.com/dispatch-ledger/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRatio_Apply(t *testing.T) {
	tests := []struct {
		name    string
		percent float64
		fare    int64
		want    int64
	}{
		{"default ratio", 10, 50000, 5000},
		{"rounds half up", 10, 12345, 1235},
		{"rounds down", 10, 12344, 1234},
		{"fractional percent", 7.5, 10000, 750},
		{"zero fare", 10, 0, 0},
		{"full fare", 100, 3000, 3000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := NewRatio(tt.percent)
			require.NoError(t, err)
			assert.Equal(t, tt.want, r.Apply(tt.fare))
		})
	}
}

func TestNewRatio_Invalid(t *testing.T) {
	for _, p := range []float64{0, -5, 100.5} {
		_, err := NewRatio(p)
		assert.ErrorIs(t, err, shared.ErrValidation)
	}
	assert.Panics(t, func() { MustRatio(0) })
	assert.Equal(t, "10%", MustRatio(10).String())
}

func TestNewTransfer(t *testing.T) {
	tr, err := NewTransfer("suwon", "gangnam", 5000, ReasonClaim, time.Now())
	require.NoError(t, err)

	entries := tr.JournalEntries("evt-1")
	require.Len(t, entries, 2)
	assert.Equal(t, "suwon", entries[0].OfficeID)
	assert.Equal(t, int64(-5000), entries[0].Delta)
	assert.Equal(t, "gangnam", entries[1].OfficeID)
	assert.Equal(t, int64(5000), entries[1].Delta)
	assert.Zero(t, entries[0].Delta+entries[1].Delta)

	_, err = NewTransfer("a", "a", 1, ReasonAdminCharge, time.Now())
	assert.ErrorIs(t, err, shared.ErrValidation)
	_, err = NewTransfer("a", "b", -1, ReasonAdminCharge, time.Now())
	assert.ErrorIs(t, err, shared.ErrValidation)
	_, err = NewTransfer("a", "b", 1, "", time.Now())
	assert.ErrorIs(t, err, shared.ErrValidation)
}

func TestErrDuplicateJournalEntry_Is(t *testing.T) {
	err := ErrDuplicateJournalEntry{EventID: "e1", OfficeID: "o1"}
	assert.ErrorIs(t, err, ErrDuplicateJournalEntry{})
	assert.ErrorIs(t, err, ErrDuplicateJournalEntry{EventID: "e1", OfficeID: "o1"})
	assert.NotErrorIs(t, err, ErrDuplicateJournalEntry{EventID: "e2", OfficeID: "o1"})
}
