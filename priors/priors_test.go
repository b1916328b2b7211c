package priors

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/jsphweid/metalign/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "priors.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadFile(t *testing.T) {
	path := writeFile(t, `
piece: bach.mid
priors:
  - onset: 2000000
    prior: 0.7
  - onset: 0
    prior: 0.9
`)

	table, err := LoadFile(path)
	require.NoError(t, err)

	assert := assert.New(t)
	assert.Equal("bach.mid", table.Piece)
	assert.Equal(2, table.Len())
	assert.Equal(int64(0), table.Entries[0].Onset)

	p, ok := table.Prior(model.NoteEvent{Onset: 2_000_000})
	assert.True(ok)
	assert.Equal(0.7, p)
	_, ok = table.Prior(model.NoteEvent{Onset: 500_000})
	assert.False(ok)
}

func TestLoadFileRejectsBadTables(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"no piece", "priors:\n  - onset: 0\n    prior: 0.5\n"},
		{"prior above one", "piece: a\npriors:\n  - onset: 0\n    prior: 1.5\n"},
		{"negative onset", "piece: a\npriors:\n  - onset: -1\n    prior: 0.5\n"},
		{"repeated onset", "piece: a\npriors:\n  - onset: 0\n    prior: 0.5\n  - onset: 0\n    prior: 0.6\n"},
		{"not yaml", "piece: [a"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFile(writeFile(t, tt.content))
			assert.Error(t, err)
		})
	}
}

func TestLoadFileMissing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.True(t, errors.Is(err, ErrNotFound))
}
