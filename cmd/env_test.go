package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/tender-intel/internal/config"
	"github.com/sells-group/tender-intel/internal/store"
)

func withConfig(t *testing.T, c *config.Config) {
	t.Helper()
	prev := cfg
	cfg = c
	t.Cleanup(func() { cfg = prev })
}

func TestInitStore_UnsupportedDriver(t *testing.T) {
	withConfig(t, &config.Config{Store: config.StoreConfig{Driver: "mysql"}})

	_, err := initStore(context.Background())
	assert.ErrorContains(t, err, "unsupported store driver")
}

func TestOpenStore_SQLiteMigrates(t *testing.T) {
	withConfig(t, &config.Config{Store: config.StoreConfig{
		Driver:      "sqlite",
		DatabaseURL: filepath.Join(t.TempDir(), "test.db"),
	}})

	ctx := context.Background()
	st, err := openStore(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck

	sources, err := st.ListSources(ctx, store.SourceFilter{})
	require.NoError(t, err)
	assert.Empty(t, sources)
}

func TestOpenStore_InvalidConfig(t *testing.T) {
	withConfig(t, &config.Config{Store: config.StoreConfig{Driver: "postgres"}})

	_, err := openStore(context.Background())
	assert.ErrorContains(t, err, "store.database_url is required")
}

func TestInitLLM_WithoutKey(t *testing.T) {
	withConfig(t, &config.Config{})

	classifier, reasoner := initLLM(nil)
	assert.False(t, classifier.Available())
	assert.False(t, reasoner.Available())
}

func TestInitPipeline_WiresEveryStage(t *testing.T) {
	withConfig(t, &config.Config{
		Store: config.StoreConfig{
			Driver:      "sqlite",
			DatabaseURL: filepath.Join(t.TempDir(), "test.db"),
		},
		Fetch:  config.FetchConfig{TimeoutSecs: 5, PageCap: 2, TempDir: t.TempDir()},
		Digest: config.DigestConfig{TopN: 10},
	})

	ctx := context.Background()
	env, err := initPipeline(ctx, "digest", nil)
	require.NoError(t, err)
	t.Cleanup(env.Close)

	engine, err := env.Engine()
	require.NoError(t, err)
	require.NotNil(t, engine)

	assert.NotNil(t, env.Spend)
	assert.Zero(t, env.Spend.Total())

	names := make([]string, 0)
	for _, s := range env.Pipeline.Stages(env.Location) {
		names = append(names, s.Name())
	}
	assert.Equal(t, []string{"discovery", "ingest", "normalize", "dedup", "evaluate", "digest", "feedback"}, names)
}
