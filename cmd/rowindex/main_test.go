package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/fyrsmithlabs/rowindex/internal/inspect"
	"github.com/fyrsmithlabs/rowindex/internal/vectorstore"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// execute runs rootCmd with args after resetting every flag variable, since
// cobra only writes the flags it sees.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	configPath, logLevel = "", ""
	rebuildCollection, rebuildBatchSize, metricsTextfile = "", 0, ""
	inspectCollection, inspectLimit = "", inspect.DefaultLimit

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

// embedServer answers /embed like a TEI server with 4-dimensional vectors.
type embedServer struct {
	calls atomic.Int32
}

func (s *embedServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Inputs []string `json:"inputs"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.calls.Add(1)
	out := make([][]float32, len(req.Inputs))
	for i, text := range req.Inputs {
		out[i] = []float32{float32(len(text)), 1, 0, 0.5}
	}
	_ = json.NewEncoder(w).Encode(out)
}

// writeFixture seeds a SQLite table, starts an embedding server and writes a
// config file pointing at both. It returns the config path and the chromem
// directory.
func writeFixture(t *testing.T) (cfgPath, storeDir string, srv *embedServer) {
	t.Helper()
	dir := t.TempDir()

	dbPath := filepath.Join(dir, "rows.db")
	seed, err := sqlx.Open("sqlite", dbPath)
	require.NoError(t, err)
	seed.MustExec(`CREATE TABLE ALMTable (subReferenceID INTEGER, datetime DATETIME)`)
	seed.MustExec(`INSERT INTO ALMTable VALUES
		(1001, '2024-01-15 10:30:00'),
		(1002, '2024-01-16 08:00:00'),
		(1003, NULL)`)
	require.NoError(t, seed.Close())

	srv = &embedServer{}
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)

	storeDir = filepath.Join(dir, "store")
	cfg := fmt.Sprintf(`source:
  driver: sqlite
  database: %s
  query: SELECT subReferenceID, datetime FROM ALMTable ORDER BY subReferenceID
embeddings:
  provider: tei
  model: test-model
  base_url: %s
  dimension: 4
vectorstore:
  provider: chromem
  collection: powerbi
  batch_size: 2
  chromem:
    path: %s
logging:
  level: error
`, dbPath, ts.URL, storeDir)

	cfgPath = filepath.Join(dir, "rowindex.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfg), 0o600))
	return cfgPath, storeDir, srv
}

func TestRootCmd_Subcommands(t *testing.T) {
	names := map[string]bool{}
	for _, cmd := range rootCmd.Commands() {
		names[cmd.Name()] = true
		assert.NotEmpty(t, cmd.Short, "command %s should have a Short description", cmd.Name())
		assert.NotEmpty(t, cmd.Long, "command %s should have a Long description", cmd.Name())
	}
	for _, want := range []string{"rebuild", "inspect", "init"} {
		assert.True(t, names[want], "missing subcommand %s", want)
	}
}

func TestInspectCmd_LimitFlagDefault(t *testing.T) {
	flag := inspectCmd.Flags().Lookup("limit")
	require.NotNil(t, flag)
	assert.Equal(t, "3", flag.DefValue)
	assert.Equal(t, "n", flag.Shorthand)
}

func TestRebuildThenInspect(t *testing.T) {
	cfgPath, _, srv := writeFixture(t)
	promPath := filepath.Join(t.TempDir(), "rowindex.prom")

	out, err := execute(t, "rebuild", "--config", cfgPath, "--metrics-textfile", promPath)
	require.NoError(t, err)
	assert.Contains(t, out, `collection "powerbi": 3 documents in 2 batches, 4-dimensional vectors`)
	assert.Equal(t, int32(1), srv.calls.Load())

	prom, err := os.ReadFile(promPath)
	require.NoError(t, err)
	assert.Contains(t, string(prom), "rowindex_rebuild_documents_written_total 3")
	assert.Contains(t, string(prom), "rowindex_rebuild_last_run_success 1")

	out, err = execute(t, "inspect", "--config", cfgPath, "--limit", "5")
	require.NoError(t, err)
	assert.Contains(t, out, "Total documents in collection: 3\n")
	assert.Contains(t, out, "Document: Reference ID: 1001, Datetime: 2024-01-15T10:30:00\n")
	assert.Contains(t, out, "Document: Reference ID: 1002, Datetime: 2024-01-16T08:00:00\n")
	assert.Contains(t, out, "Document: Reference ID: 1003, Datetime: \n")
	assert.Contains(t, out, "Metadata: {Datetime: 2024-01-15T10:30:00, Reference ID: 1001}\n")
	assert.Contains(t, out, "--- Document 3 ---")
	assert.NotContains(t, out, "--- Document 4 ---")
}

func TestRebuild_ReplacesPreviousContents(t *testing.T) {
	cfgPath, _, _ := writeFixture(t)

	_, err := execute(t, "rebuild", "--config", cfgPath)
	require.NoError(t, err)
	_, err = execute(t, "rebuild", "--config", cfgPath)
	require.NoError(t, err)

	out, err := execute(t, "inspect", "--config", cfgPath, "--limit", "0")
	require.NoError(t, err)
	assert.Equal(t, "Total documents in collection: 3\n", out)
}

func TestRebuild_CollectionOverride(t *testing.T) {
	cfgPath, _, _ := writeFixture(t)

	out, err := execute(t, "rebuild", "--config", cfgPath, "--collection", "powerbi_staging", "--batch-size", "3")
	require.NoError(t, err)
	assert.Contains(t, out, `collection "powerbi_staging": 3 documents in 1 batches`)

	out, err = execute(t, "inspect", "--config", cfgPath, "--collection", "powerbi_staging", "-n", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "Total documents in collection: 3\n")
	assert.Contains(t, out, "--- Document 1 ---")
	assert.NotContains(t, out, "--- Document 2 ---")

	_, err = execute(t, "inspect", "--config", cfgPath)
	assert.ErrorIs(t, err, vectorstore.ErrCollectionNotFound)
}

func TestRebuild_BatchSizeAboveStoreLimit(t *testing.T) {
	cfgPath, _, srv := writeFixture(t)

	_, err := execute(t, "rebuild", "--config", cfgPath, "--batch-size", "6000")
	require.Error(t, err)
	assert.ErrorIs(t, err, vectorstore.ErrBatchTooLarge)
	assert.Zero(t, srv.calls.Load(), "nothing should be embedded when the batch size is rejected")
}

func TestRebuild_MissingConfig(t *testing.T) {
	_, err := execute(t, "rebuild", "--config", filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load config")
}
