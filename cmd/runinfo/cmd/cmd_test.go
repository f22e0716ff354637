package cmd

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beamkit/runindex/blobstore"
	"github.com/beamkit/runindex/model"
	"github.com/beamkit/runindex/shardfile"
)

func writeTestRun(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	store := blobstore.NewLocalStore(dir)
	src := model.SourceInfo{ID: "SPB/DET/MOD0", Kind: model.KindInstrument}

	w := shardfile.NewWriter(shardfile.CodecZstd)
	for _, train := range []model.TrainID{100, 101} {
		require.NoError(t, w.Append(src, train, 0, []byte{byte(train)}))
	}
	require.NoError(t, w.Put(context.Background(), store, "r0001-s00.rshard"))
	return dir
}

func TestInfoCommand(t *testing.T) {
	dir := writeTestRun(t)

	rootCmd.SetArgs([]string{"info", dir})
	assert.NoError(t, rootCmd.Execute())
}

func TestInfoCommand_JSON(t *testing.T) {
	dir := writeTestRun(t)

	rootCmd.SetArgs([]string{"info", dir, "--json"})
	assert.NoError(t, rootCmd.Execute())
}

func TestInfoCommand_MissingRun(t *testing.T) {
	rootCmd.SetArgs([]string{"info", filepath.Join(t.TempDir(), "empty")})
	assert.Error(t, rootCmd.Execute())
}

func TestValidateCommand_Clean(t *testing.T) {
	dir := writeTestRun(t)

	rootCmd.SetArgs([]string{"validate", dir})
	assert.NoError(t, rootCmd.Execute())
}

func TestValidateCommand_FanOutMismatch(t *testing.T) {
	dir := writeTestRun(t)
	cfgPath := filepath.Join(t.TempDir(), "runinfo.yaml")
	cfg := "fan_out:\n  - pattern: \"*/DET/*\"\n    n: 16\n"
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfg), 0o644))

	rootCmd.SetArgs([]string{"validate", dir, "-c", cfgPath})
	err := rootCmd.Execute()
	assert.Error(t, err)

	cfgFile = ""
}

func TestLoadConfig_Overrides(t *testing.T) {
	t.Cleanup(func() {
		logLevel = ""
		maxOpenShards = 0
		maxReads = 0
	})

	logLevel = "debug"
	maxOpenShards = 8
	maxReads = 2

	cfg, err := loadConfig()
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 8, cfg.MaxOpenShards)
	assert.Equal(t, int64(2), cfg.Limits.MaxConcurrentReads)

	opts, err := cfg.options()
	require.NoError(t, err)
	assert.NotEmpty(t, opts)
}

func TestParseLevel(t *testing.T) {
	_, err := parseLevel("verbose")
	assert.Error(t, err)
}
