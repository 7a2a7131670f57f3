package ui

import (
	"bytes"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfirm(t *testing.T) {
	tests := map[string]bool{
		"y\n":   true,
		"YES\n": true,
		" yes ": true,
		"n\n":   false,
		"\n":    false,
		"":      false,
		"maybe": false,
	}

	for answer, expected := range tests {
		var out bytes.Buffer
		ok, err := confirm(strings.NewReader(answer), &out, "Destroy cluster 'demo'?")
		require.NoError(t, err)
		assert.Equal(t, expected, ok, "answer %q", answer)
		assert.Equal(t, "Destroy cluster 'demo'? [y/N] ", out.String())
	}
}

func TestConfirmWithoutTerminal(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "stdin")
	require.NoError(t, err)
	defer f.Close()

	var out bytes.Buffer
	ok, err := Confirm(f, &out, "Destroy?")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, out.String())
}
