package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewResolveCmd_Structure(t *testing.T) {
	t.Parallel()

	cmd := newResolveCmd()
	assert.Equal(t, "resolve-conflict <conflict-id> <local|remote|both|manual>", cmd.Use)
}

func TestRunResolve_RejectsUnknownResolution(t *testing.T) {
	t.Parallel()

	cmd := newResolveCmd()
	err := runResolve(cmd, []string{"c1", "sideways"})
	assert.ErrorContains(t, err, "unknown resolution")
}

func TestNewConflictsCmd_Structure(t *testing.T) {
	t.Parallel()

	cmd := newConflictsCmd()
	assert.Equal(t, "conflicts [folder]", cmd.Use)
}

func TestNewStatusCmd_Structure(t *testing.T) {
	t.Parallel()

	cmd := newStatusCmd()
	assert.Equal(t, "status [folder]", cmd.Use)
}

func TestNewDaemonCmd_Structure(t *testing.T) {
	t.Parallel()

	cmd := newDaemonCmd()
	assert.Equal(t, "daemon", cmd.Use)
}

func TestRootCmd_HasAllSubcommands(t *testing.T) {
	t.Parallel()

	root := newRootCmd()

	want := []string{"daemon", "sync", "status", "pause", "resume", "conflicts", "resolve-conflict", "config"}
	for _, name := range want {
		cmd, _, err := root.Find([]string{name})
		assert.NoError(t, err, "expected subcommand %q", name)
		assert.Equal(t, name, cmd.Name())
	}
}
