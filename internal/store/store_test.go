package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/einvoice-cli/internal/config"
	"github.com/sells-group/einvoice-cli/internal/model"
)

func newTestSQLite(t *testing.T) Store {
	t.Helper()
	s, err := Open(context.Background(), config.StoreConfig{
		Driver:      "sqlite",
		DatabaseURL: filepath.Join(t.TempDir(), "test.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() }) //nolint:errcheck
	return s
}

func TestStore_SQLite(t *testing.T) {
	storeTestSuite(t, newTestSQLite)
}

func storeTestSuite(t *testing.T, newStore func(t *testing.T) Store) {
	t.Run("CreateAndGetRun", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		run, err := s.CreateRun(ctx, "14-03-2026", model.StageFetch)
		require.NoError(t, err)
		assert.NotEmpty(t, run.ID)
		assert.Equal(t, model.RunStatusRunning, run.Status)

		got, err := s.GetRun(ctx, run.ID)
		require.NoError(t, err)
		assert.Equal(t, "14-03-2026", got.Date)
		assert.Equal(t, model.StageFetch, got.Stage)
		assert.Equal(t, model.RunStatusRunning, got.Status)
		assert.Nil(t, got.Summary)
		assert.Empty(t, got.Error)
	})

	t.Run("FinishRun", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		run, err := s.CreateRun(ctx, "14-03-2026", model.StageExtract)
		require.NoError(t, err)

		summary := struct {
			Rows   int `json:"rows"`
			WithPO int `json:"with_po"`
		}{Rows: 4, WithPO: 3}
		require.NoError(t, s.FinishRun(ctx, run.ID, model.RunStatusFailed, summary, errors.New("smtp down")))

		got, err := s.GetRun(ctx, run.ID)
		require.NoError(t, err)
		assert.Equal(t, model.RunStatusFailed, got.Status)
		assert.Equal(t, "smtp down", got.Error)
		assert.Equal(t, map[string]any{"rows": float64(4), "with_po": float64(3)}, got.Summary)
		assert.False(t, got.UpdatedAt.Before(got.CreatedAt))
	})

	t.Run("FinishRun_NotFound", func(t *testing.T) {
		s := newStore(t)
		err := s.FinishRun(context.Background(), "missing", model.RunStatusComplete, nil, nil)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("GetRun_NotFound", func(t *testing.T) {
		s := newStore(t)
		_, err := s.GetRun(context.Background(), "missing")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("ListRuns", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		for _, st := range []model.Stage{model.StageFetch, model.StageExtract, model.StageSend} {
			_, err := s.CreateRun(ctx, "14-03-2026", st)
			require.NoError(t, err)
			time.Sleep(2 * time.Millisecond)
		}
		other, err := s.CreateRun(ctx, "15-03-2026", model.StageFetch)
		require.NoError(t, err)
		require.NoError(t, s.FinishRun(ctx, other.ID, model.RunStatusComplete, nil, nil))

		all, err := s.ListRuns(ctx, RunFilter{})
		require.NoError(t, err)
		require.Len(t, all, 4)
		assert.Equal(t, other.ID, all[0].ID)

		fetches, err := s.ListRuns(ctx, RunFilter{Stage: model.StageFetch})
		require.NoError(t, err)
		assert.Len(t, fetches, 2)

		byDate, err := s.ListRuns(ctx, RunFilter{Date: "14-03-2026", Status: model.RunStatusRunning})
		require.NoError(t, err)
		assert.Len(t, byDate, 3)

		page, err := s.ListRuns(ctx, RunFilter{Limit: 2, Offset: 1})
		require.NoError(t, err)
		require.Len(t, page, 2)
		assert.Equal(t, model.StageSend, page[0].Stage)
	})

	t.Run("RecordAndSeenInvoices", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		run, err := s.CreateRun(ctx, "14-03-2026", model.StageExtract)
		require.NoError(t, err)

		seen, err := s.SeenInvoice(ctx, "U1")
		require.NoError(t, err)
		assert.False(t, seen)

		require.NoError(t, s.RecordInvoices(ctx, run.ID, nil))
		require.NoError(t, s.RecordInvoices(ctx, run.ID, []model.InvoiceRecord{
			{UUID: "U1", Taxpayer: "3MP", Issuer: "Delta Medical", Reference: "45678", Outcome: "extracted"},
			{UUID: "U2", Taxpayer: "3MP", Outcome: "none"},
		}))
		require.NoError(t, s.RecordInvoices(ctx, run.ID, []model.InvoiceRecord{
			{UUID: "U1", Taxpayer: "3MP", Issuer: "Delta Medical", Reference: "45679", Outcome: "extracted"},
		}))

		seen, err = s.SeenInvoice(ctx, "U1")
		require.NoError(t, err)
		assert.True(t, seen)
		seen, err = s.SeenInvoice(ctx, "U3")
		require.NoError(t, err)
		assert.False(t, seen)
	})
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), config.StoreConfig{Driver: "mysql"})
	assert.ErrorContains(t, err, `unknown driver "mysql"`)
}

func TestListLimit(t *testing.T) {
	assert.Equal(t, defaultListLimit, listLimit(0))
	assert.Equal(t, defaultListLimit, listLimit(-3))
	assert.Equal(t, 7, listLimit(7))
}
