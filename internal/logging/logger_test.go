package logging

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, DEBUG, ParseLevel("DEBUG"))
	assert.Equal(t, WARN, ParseLevel("WARNING"))
	assert.Equal(t, WARN, ParseLevel("WARN"))
	assert.Equal(t, ERROR, ParseLevel("ERROR"))
	assert.Equal(t, INFO, ParseLevel("INFO"))
	assert.Equal(t, INFO, ParseLevel("anything else"))
}

func TestWithSharesFileHandle(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.log")
	logger, err := NewLogger(Config{Level: INFO, OutputFile: path})
	require.NoError(t, err)

	derived := logger.With("investigation_id", "inv-1")
	derived.Info("derived context attached")
	logger.Info("base logger still writes")

	// one underlying handle: closing the derived logger closes it for both
	require.NoError(t, derived.Close())
	assert.Nil(t, logger.file.file)
	assert.NoError(t, logger.Close())
}
