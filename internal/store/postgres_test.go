package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlaceholders(t *testing.T) {
	assert.Equal(t, "$1", placeholders(1, 1))
	assert.Equal(t, "$2,$3,$4", placeholders(3, 2))
}

func TestDecodeRow(t *testing.T) {
	row, err := decodeRow([]byte(`{"min_price": 100, "name": "Aurora"}`))
	require.NoError(t, err)
	assert.Equal(t, 100.0, row["min_price"])
	assert.Equal(t, "Aurora", row["name"])

	row, err = decodeRow(nil)
	require.NoError(t, err)
	assert.Nil(t, row)

	_, err = decodeRow([]byte(`{broken`))
	assert.Error(t, err)
}
