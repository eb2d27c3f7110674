package app

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marketpulse/backend/pkg/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		SQLite:      config.SQLiteConfig{Path: filepath.Join(t.TempDir(), "data", "app.db"), BusyTimeoutMS: 1000},
		LLM:         config.LLMConfig{Provider: "openai", Model: "gpt-4o-mini"},
		Pipeline:    config.PipelineConfig{IngestIntervalMinutes: 10, BatchSize: 10},
		Aggregation: config.AggregationConfig{WindowMinutes: 15},
	}
}

func TestNewSeedsSectorsAndRunsWithoutProviders(t *testing.T) {
	ctx := context.Background()
	a, err := New(ctx, testConfig(t))
	require.NoError(t, err)
	defer a.Close()

	assert.Nil(t, a.Cache)

	sectors, err := a.Store.ListSectors(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, sectors)

	report, err := a.Processor.RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Sources)
	assert.Equal(t, 0, report.Inserted)

	n, err := a.Aggregator.RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestStartSchedulerRegistersBothJobs(t *testing.T) {
	a, err := New(context.Background(), testConfig(t))
	require.NoError(t, err)

	require.NoError(t, a.StartScheduler())

	jobs := a.Scheduler.Jobs()
	require.Len(t, jobs, 2)
	assert.Equal(t, JobAggregate, jobs[0].Name)
	assert.Equal(t, (15 * time.Minute).String(), jobs[0].Interval)
	assert.Equal(t, JobIngest, jobs[1].Name)
	assert.Equal(t, (10 * time.Minute).String(), jobs[1].Interval)

	require.NoError(t, a.Close())
}
