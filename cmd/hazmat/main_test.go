package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opensource-finance/hazmat/internal/api"
	"github.com/opensource-finance/hazmat/internal/domain"
)

const fixture = "testdata/lexicon.yaml"

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeBookings(t *testing.T, bookings []domain.Booking) string {
	t.Helper()
	data, err := json.Marshal(bookings)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "bookings.json")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestVersion(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "hazmat dev")
}

func TestClassifyFailFast(t *testing.T) {
	path := writeBookings(t, []domain.Booking{
		{ID: "a", Description: "Old paint thinner and asbestos sheets", Products: []string{}},
		{ID: "b", Description: "Books", Products: []string{"Books"}},
	})

	out, err := run(t, "--lexicon", fixture, "classify", "--file", path)
	require.NoError(t, err)

	var results []domain.ClassificationResult
	require.NoError(t, json.Unmarshal([]byte(out), &results))
	require.Len(t, results, 2)
	assert.Equal(t, "a", results[0].BookingID)
	assert.True(t, results[0].IsHazardous)
	assert.Equal(t, []string{"Bigram: paint thinner", "Keyword: asbestos", "Keyword: paint"}, results[0].Reasons)
	assert.False(t, results[1].IsHazardous)
}

func TestClassifyFailFastError(t *testing.T) {
	path := writeBookings(t, []domain.Booking{
		{ID: "a", Description: "fine"},
		{ID: "b"},
	})

	_, err := run(t, "--lexicon", fixture, "classify", "--file", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "record 1")
}

func TestClassifyBestEffort(t *testing.T) {
	path := writeBookings(t, []domain.Booking{
		{ID: "a", Description: "un1263 drums"},
		{ID: "b"},
	})
	outFile := filepath.Join(t.TempDir(), "out.json")

	_, err := run(t, "--lexicon", fixture, "classify", "--file", path, "--mode", "best-effort", "--out", outFile)
	require.NoError(t, err)

	data, err := os.ReadFile(outFile)
	require.NoError(t, err)
	var resp api.BestEffortResponse
	require.NoError(t, json.Unmarshal(data, &resp))

	assert.Equal(t, "cli-test", resp.LexiconVersion)
	require.Len(t, resp.Items, 2)
	assert.True(t, resp.Items[0].Result.IsHazardous)
	assert.True(t, resp.Items[1].Failed())
	assert.Equal(t, 1, resp.Summary.Hazardous)
	assert.Equal(t, 1, resp.Summary.Failed)
}

func TestClassifyUnknownMode(t *testing.T) {
	path := writeBookings(t, []domain.Booking{{ID: "a", Description: "x"}})
	_, err := run(t, "--lexicon", fixture, "classify", "--file", path, "--mode", "sometimes")
	assert.Error(t, err)
}

func TestProducts(t *testing.T) {
	out, err := run(t, "--lexicon", fixture, "products", "--json")
	require.NoError(t, err)

	var products []domain.ProductSummary
	require.NoError(t, json.Unmarshal([]byte(out), &products))
	assert.Equal(t, []domain.ProductSummary{
		{ID: "p-solvent", DisplayName: "Industrial Solvent", IsHazardous: true},
		{ID: "p-books", DisplayName: "Books", IsHazardous: false},
	}, products)

	out, err = run(t, "--lexicon", fixture, "products")
	require.NoError(t, err)
	assert.Contains(t, out, "Industrial Solvent")
}

func TestGenerateThenEvaluate(t *testing.T) {
	dir := t.TempDir()
	generated := filepath.Join(dir, "generated.json")

	_, err := run(t, "--lexicon", fixture, "generate", "--count", "40", "--hazard-rate", "0.5", "--seed", "3", "--out", generated)
	require.NoError(t, err)

	data, err := os.ReadFile(generated)
	require.NoError(t, err)
	var bookings []domain.Booking
	require.NoError(t, json.Unmarshal(data, &bookings))
	require.Len(t, bookings, 40)

	yes := true
	bookings[0].ExpectedIsHazardous = &yes
	labelled := writeBookings(t, bookings)

	out, err := run(t, "--lexicon", fixture, "evaluate", "--file", labelled, "--json")
	require.NoError(t, err)

	var ev struct {
		LexiconVersion string `json:"lexiconVersion"`
		Unlabeled      int    `json:"unlabeled"`
		TruePositives  int    `json:"truePositives"`
		FalseNegatives int    `json:"falseNegatives"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &ev))
	assert.Equal(t, "cli-test", ev.LexiconVersion)
	assert.Equal(t, 39, ev.Unlabeled)
	assert.Equal(t, 1, ev.TruePositives+ev.FalseNegatives)

	out, err = run(t, "--lexicon", fixture, "evaluate", "--file", labelled)
	require.NoError(t, err)
	assert.Contains(t, out, "CONFUSION MATRIX")
}

func TestLexiconCommands(t *testing.T) {
	t.Setenv("HAZMAT_REPOSITORY_SQLITEPATH", filepath.Join(t.TempDir(), "hazmat.db"))

	out, err := run(t, "lexicon", "validate", fixture)
	require.NoError(t, err)
	assert.Contains(t, out, "version:   cli-test")
	assert.Contains(t, out, "regex:     1")

	out, err = run(t, "lexicon", "import", fixture)
	require.NoError(t, err)
	assert.Contains(t, out, "lexicon cli-test stored")

	_, err = run(t, "lexicon", "import", fixture, "--version", "cli-test-2", "--activate")
	require.NoError(t, err)

	out, err = run(t, "lexicon", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "cli-test-2")
	assert.Contains(t, out, "yaml")

	_, err = run(t, "lexicon", "activate", "cli-test")
	require.NoError(t, err)

	_, err = run(t, "lexicon", "activate", "missing")
	assert.Error(t, err)

	// The repository source now serves the activated version.
	t.Setenv("HAZMAT_LEXICON_SOURCE", "repository")
	out, err = run(t, "products", "--json")
	require.NoError(t, err)
	assert.Contains(t, out, "Industrial Solvent")
}

func TestLexiconValidateRejectsBrokenDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"weights": {"threshold": 5}}`), 0o644))

	_, err := run(t, "lexicon", "validate", path)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}
