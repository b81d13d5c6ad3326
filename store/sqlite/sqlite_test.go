package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/ops-console/api"
	"github.com/warp/ops-console/core"
	"github.com/warp/ops-console/payments"
	"github.com/warp/ops-console/store/sqlite"
	"github.com/warp/ops-console/store/storetest"
)

var _ api.Store = (*sqlite.Store)(nil)

func TestConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) storetest.Store {
		s, err := sqlite.New(":memory:")
		require.NoError(t, err)
		t.Cleanup(func() { s.Close() })
		return s
	})
}

func TestFileDatabaseSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "console.db")
	ctx := context.Background()

	s, err := sqlite.New(path)
	require.NoError(t, err)
	require.NoError(t, s.SaveTransaction(ctx, payments.Transaction{
		ID: "txn-1", RideID: "ride-1", RiderID: "rdr-ana", Method: payments.MethodCash,
		Status: payments.StatusCaptured, Amount: core.PHP(150),
	}))
	require.NoError(t, s.Close())

	// reopening runs the migration again over the existing schema
	s, err = sqlite.New(path)
	require.NoError(t, err)
	defer s.Close()

	got, err := s.GetTransaction(ctx, "txn-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.Amount.Equal(core.PHP(150)))
}
