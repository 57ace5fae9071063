package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDriverName(t *testing.T) {
	for input, expected := range map[string]string{"": "postgres", "pq": "postgres", "postgres": "postgres", "pgx": "pgx"} {
		got, err := DriverName(input)
		require.NoError(t, err)
		assert.Equal(t, expected, got)
	}

	_, err := DriverName("mysql")
	assert.Error(t, err)
}
