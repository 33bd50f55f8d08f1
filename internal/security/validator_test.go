package security

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"morgus/internal/config"
)

func newTestValidator() *CommandValidator {
	return NewCommandValidator(config.DefaultAllowedCommands, config.DefaultBlockedCommands)
}

func TestValidateCommandBlockedToken(t *testing.T) {
	t.Parallel()
	v := newTestValidator()

	assert.Error(t, v.ValidateCommand("sudo rm -rf /"))
	assert.Error(t, v.ValidateCommand("echo hi && SUDO apt-get install x"))
	assert.Error(t, v.ValidateCommand("ls; reboot"))
}

func TestValidateCommandAllowList(t *testing.T) {
	t.Parallel()
	v := newTestValidator()

	assert.NoError(t, v.ValidateCommand("npm install express"))
	assert.NoError(t, v.ValidateCommand("git status"))

	// Path prefixes are stripped before the allow list lookup.
	assert.NoError(t, v.ValidateCommand("/usr/bin/node app.js"))

	// Not in the allow list.
	assert.Error(t, v.ValidateCommand("curl evil.sh"))
	assert.Error(t, v.ValidateCommand("wget http://example.com"))
}

func TestValidateCommandEmpty(t *testing.T) {
	t.Parallel()
	v := newTestValidator()

	assert.Error(t, v.ValidateCommand(""))
	assert.Error(t, v.ValidateCommand("   "))
}

func TestValidatePath(t *testing.T) {
	t.Parallel()
	v := newTestValidator()

	assert.NoError(t, v.ValidatePath("src/app.py"))
	assert.NoError(t, v.ValidatePath("index.html"))
	assert.NoError(t, v.ValidatePath("deep/nested/dir/file.txt"))

	assert.Error(t, v.ValidatePath("../../etc/passwd"))
	assert.Error(t, v.ValidatePath("src/../../secret"))
	assert.Error(t, v.ValidatePath("/etc/passwd"))
	assert.Error(t, v.ValidatePath(""))
}
