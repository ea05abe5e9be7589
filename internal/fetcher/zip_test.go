package fetcher

import (
	"archive/zip"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTestZIP(t *testing.T, files map[string]string) string {
	t.Helper()
	zipPath := filepath.Join(t.TempDir(), "test.zip")
	f, err := os.Create(zipPath)
	require.NoError(t, err)
	defer f.Close() //nolint:errcheck

	w := zip.NewWriter(f)
	for name, content := range files {
		fw, err := w.Create(name)
		require.NoError(t, err)
		_, err = fw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return zipPath
}

func TestExtractZIPData(t *testing.T) {
	zipPath := createTestZIP(t, map[string]string{
		"README.txt":         "metadata",
		"data/tenders.csv":   "ref,title\nA-1,Signage",
		"data/tenders.xlsx":  "not really xlsx",
	})

	destDir := t.TempDir()
	path, err := ExtractZIPData(zipPath, destDir, ".csv", ".xlsx")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(destDir, "data", "tenders.csv"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "ref,title\nA-1,Signage", string(data))
}

func TestExtractZIPData_NoMatch(t *testing.T) {
	zipPath := createTestZIP(t, map[string]string{"notes.txt": "x"})
	_, err := ExtractZIPData(zipPath, t.TempDir(), ".csv")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no .csv file")
}

func TestExtractZIPData_ZipSlip(t *testing.T) {
	zipPath := createTestZIP(t, map[string]string{"../evil.csv": "x"})
	_, err := ExtractZIPData(zipPath, t.TempDir(), ".csv")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "zip slip")
}

func TestExtractZIPData_BadArchive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.zip")
	require.NoError(t, os.WriteFile(path, []byte("not a zip"), 0o644))
	_, err := ExtractZIPData(path, t.TempDir(), ".csv")
	require.Error(t, err)
}
