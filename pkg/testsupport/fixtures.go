package testsupport

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/sebdah/goldie/v2"
)

// LoadFixture reads testdata/<name> relative to the test package directory.
func LoadFixture(t *testing.T, name string) []byte {
	t.Helper()

	data, err := os.ReadFile(FixturePath(name))
	if err != nil {
		t.Fatalf("failed to load fixture %s: %v", name, err)
	}
	return data
}

// LoadFixtureJSON loads testdata/<name> and unmarshals it into dest.
func LoadFixtureJSON(t *testing.T, name string, dest any) {
	t.Helper()

	if err := json.Unmarshal(LoadFixture(t, name), dest); err != nil {
		t.Fatalf("failed to unmarshal JSON fixture %s: %v", name, err)
	}
}

// LoadRows loads a JSON array fixture as raw result rows.
func LoadRows(t *testing.T, name string) []json.RawMessage {
	t.Helper()

	var rows []json.RawMessage
	LoadFixtureJSON(t, name, &rows)
	return rows
}

// FixturePath constructs a path to a fixture file relative to the testdata directory.
func FixturePath(filename string) string {
	return filepath.Join("testdata", filename)
}

// GoldenPath constructs a path to a golden file relative to the testdata directory.
func GoldenPath(filename string) string {
	return filepath.Join("testdata", "golden", filename+".golden")
}

// Golden returns a goldie instance rooted at testdata/golden. Run tests with -update to
// rewrite the files.
func Golden(t *testing.T) *goldie.Goldie {
	t.Helper()

	return goldie.New(t,
		goldie.WithFixtureDir(filepath.Join("testdata", "golden")),
		goldie.WithNameSuffix(".golden"),
	)
}
