package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}

	for _, name := range []string{"run", "serve", "sources", "dedup"} {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "market-ingest", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestRunCommand_Flags(t *testing.T) {
	format := runCmd.Flags().Lookup("format")
	require.NotNil(t, format)
	assert.Equal(t, "json", format.DefValue)

	require.NotNil(t, runCmd.Flags().Lookup("sources"))
	summarize := runCmd.Flags().Lookup("summarize")
	require.NotNil(t, summarize)
	assert.Equal(t, "false", summarize.DefValue)
}

func TestServeCommand_Flags(t *testing.T) {
	flag := serveCmd.Flags().Lookup("port")
	require.NotNil(t, flag, "serve command should have --port flag")
	assert.Equal(t, "0", flag.DefValue)
}

func TestDedupCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range dedupCmd.Commands() {
		names[c.Name()] = true
	}
	assert.True(t, names["stats"])
	assert.True(t, names["check"])

	for _, f := range []string{"title", "url", "published"} {
		assert.NotNil(t, dedupCheckCmd.Flags().Lookup(f), "dedup check should have --%s flag", f)
	}
}
