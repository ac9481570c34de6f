package utils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vctt94/pokertablesync/pkg/table"
)

func TestFormatCards(t *testing.T) {
	assert.Equal(t, "None", FormatCards(nil))
	assert.Equal(t, "A♠ 10♥", FormatCards([]table.Card{
		table.NewCard(table.Spades, table.Ace),
		table.NewCard(table.Hearts, table.Ten),
	}))
}

func TestFormatSeconds(t *testing.T) {
	assert.Equal(t, "0:00", FormatSeconds(-3))
	assert.Equal(t, "0:07", FormatSeconds(7))
	assert.Equal(t, "2:05", FormatSeconds(125))
}

func TestEnsureDataDirExists(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b")
	require.NoError(t, EnsureDataDirExists(dir))
	fi, err := os.Stat(filepath.Join(dir, "logs"))
	require.NoError(t, err)
	assert.True(t, fi.IsDir())
}
