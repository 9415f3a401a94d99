package cmd

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExecute_Help(t *testing.T) {
	oldArgs := os.Args
	defer func() { os.Args = oldArgs }()

	os.Args = []string{"claude-orchestrator", "--help"}
	assert.NoError(t, Execute())
}

func TestExecute_UnknownSubcommand(t *testing.T) {
	oldArgs := os.Args
	defer func() { os.Args = oldArgs }()

	os.Args = []string{"claude-orchestrator", "bogus-subcommand"}
	assert.Error(t, Execute())
}
