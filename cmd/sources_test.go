package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/market-ingest/internal/source"
)

func TestPrintSources(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printSources(&buf, source.List()))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, len(source.IDs())+1)
	assert.True(t, strings.HasPrefix(lines[0], "ID"))
	for _, id := range source.DefaultIDs {
		assert.Contains(t, buf.String(), id)
	}
}
