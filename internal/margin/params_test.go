package margin

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Aidin1998/marginx_unified/internal/database"
	"github.com/Aidin1998/marginx_unified/internal/margin/model"
)

func newParamStore(t *testing.T) ParameterStore {
	t.Helper()
	db, err := database.NewSQLiteDB(filepath.Join(t.TempDir(), "params_test.db"))
	require.NoError(t, err)
	require.NoError(t, NewStore(db).Migrate())
	return NewParameterStore(zaptest.NewLogger(t), db)
}

func TestParameterStoreRoundTrip(t *testing.T) {
	store := newParamStore(t)
	ctx := context.Background()

	set := &model.ParameterSet{
		VersionName:   "SIMM_2.6",
		EffectiveDate: time.Date(2025, 12, 6, 0, 0, 0, 0, time.UTC),
		IsActive:      true,
		RiskWeights: []model.RiskWeight{
			{
				ProductClass: model.ProductCredit,
				RiskClass:    model.RiskClassCRQ,
				Bucket:       "2",
				Weight:       decimal.RequireFromString("0.0085"),
			},
		},
	}
	require.NoError(t, store.Create(ctx, set))

	byVersion, err := store.GetByVersion(ctx, "SIMM_2.6")
	require.NoError(t, err)
	require.Len(t, byVersion.RiskWeights, 1)
	assert.Equal(t, set.ID, byVersion.RiskWeights[0].ParameterSetRef)

	byID, err := store.GetByID(ctx, set.ID)
	require.NoError(t, err)
	assert.Equal(t, "SIMM_2.6", byID.VersionName)
}

func TestActiveForDate(t *testing.T) {
	store := newParamStore(t)
	ctx := context.Background()

	older := &model.ParameterSet{
		VersionName:   "SIMM_2.5",
		EffectiveDate: time.Date(2024, 12, 7, 0, 0, 0, 0, time.UTC),
		IsActive:      true,
	}
	require.NoError(t, store.Create(ctx, older))
	newer := &model.ParameterSet{
		VersionName:   "SIMM_2.6",
		EffectiveDate: time.Date(2025, 12, 6, 0, 0, 0, 0, time.UTC),
		IsActive:      true,
	}
	require.NoError(t, store.Create(ctx, newer))

	// The most recent effective set wins.
	active, err := store.ActiveForDate(ctx, time.Date(2025, 12, 10, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, "SIMM_2.6", active.VersionName)

	// Before the newer set takes effect the older one still applies.
	active, err = store.ActiveForDate(ctx, time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, "SIMM_2.5", active.VersionName)

	// No set covers dates before any effective date.
	_, err = store.ActiveForDate(ctx, time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC))
	require.Error(t, err)
}

func TestActiveForDateHonorsEndDate(t *testing.T) {
	store := newParamStore(t)
	ctx := context.Background()

	end := time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC)
	expired := &model.ParameterSet{
		VersionName:   "SIMM_EXPIRED",
		EffectiveDate: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDate:       &end,
		IsActive:      true,
	}
	require.NoError(t, store.Create(ctx, expired))

	_, err := store.ActiveForDate(ctx, time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC))
	require.Error(t, err)
}

const calibrationYAML = `version_name: SIMM_SEED
effective_date: "2025-01-01"
description: Seed calibration.
risk_weights:
  - product_class: Credit
    risk_class: CR_Q
    bucket: "2"
    weight: "0.0085"
  - product_class: Credit
    risk_class: CR_Q
    bucket: "13"
    weight: "0.0240"
correlations:
  - risk_class: CR_Q
    type: INTRA_BUCKET
    bucket_from: "2"
    bucket_to: "2"
    value: "0.93"
bucket_mappings:
  - risk_class: CR_Q
    risk_factor: JPMORGAN CHASE
    bucket: "2"
`

func TestSeedFromFile(t *testing.T) {
	store := newParamStore(t)
	logger := zaptest.NewLogger(t)
	ctx := context.Background()

	path := filepath.Join(t.TempDir(), "parameters.yaml")
	require.NoError(t, os.WriteFile(path, []byte(calibrationYAML), 0o644))

	set, err := SeedFromFile(ctx, logger, store, path)
	require.NoError(t, err)
	assert.Equal(t, "SIMM_SEED", set.VersionName)
	assert.True(t, set.IsActive)
	require.Len(t, set.RiskWeights, 2)
	require.Len(t, set.Correlations, 1)
	require.Len(t, set.BucketMappings, 1)

	// Seeding again returns the stored set instead of duplicating it.
	again, err := SeedFromFile(ctx, logger, store, path)
	require.NoError(t, err)
	assert.Equal(t, set.ID, again.ID)

	sets, err := store.List(ctx)
	require.NoError(t, err)
	assert.Len(t, sets, 1)
}

func TestSeedFromFileMissing(t *testing.T) {
	store := newParamStore(t)
	_, err := SeedFromFile(context.Background(), zaptest.NewLogger(t), store, "/nonexistent/parameters.yaml")
	require.Error(t, err)
}
