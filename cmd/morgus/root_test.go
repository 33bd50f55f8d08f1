package main

import (
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"morgus/internal/config"
)

// The --server default must point at the port serve listens on out of the
// box, so the task subcommands work against a default-config server.
func TestServerFlagDefaultMatchesServePort(t *testing.T) {
	cfg, err := config.Load(
		config.WithEnvLookup(func(string) (string, bool) { return "", false }),
		config.WithFileReader(func(string) ([]byte, error) { return nil, os.ErrNotExist }),
		config.WithHomeDir(func() (string, error) { return "/home/test", nil }),
	)
	require.NoError(t, err)

	flag := rootCmd.PersistentFlags().Lookup("server")
	require.NotNil(t, flag)
	assert.Equal(t, fmt.Sprintf("http://localhost:%d", cfg.ServerPort), flag.DefValue)
}
