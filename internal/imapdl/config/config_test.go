package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hkdb/imapdl/internal/imapdl/logging"
)

func TestParseRequiresHostUsernameMaildir(t *testing.T) {
	_, err := Parse([]string{"--username=u", "--maildir=/tmp/m", "--password=p"})
	assert.Error(t, err)

	_, err = Parse([]string{"--host=h", "--maildir=/tmp/m", "--password=p"})
	assert.Error(t, err)

	_, err = Parse([]string{"--host=h", "--username=u", "--password=p"})
	assert.Error(t, err)
}

func TestParseAppliesDefaults(t *testing.T) {
	cfg, err := Parse([]string{"--host=h", "--username=u", "--maildir=/tmp/m", "--password=p"})
	require.NoError(t, err)
	assert.Equal(t, 993, cfg.Port)
	assert.Equal(t, "INBOX", cfg.Mailbox)
	assert.Equal(t, "imapdl.journal", cfg.JournalFile)
	assert.False(t, cfg.Delete)
	assert.Equal(t, logging.SeverityMsg, cfg.Severity)
	assert.Equal(t, logging.SeverityFatal, cfg.FileSeverity)
}

func TestParseFlagPasswordWinsOverEnv(t *testing.T) {
	t.Setenv("IMAPDL_PASSWORD", "env-password")
	cfg, err := Parse([]string{"--host=h", "--username=u", "--maildir=/tmp/m", "--password=flag-password"})
	require.NoError(t, err)
	assert.Equal(t, "flag-password", cfg.Password)
}

func TestParseFallsBackToEnvPassword(t *testing.T) {
	t.Setenv("IMAPDL_PASSWORD", "env-password")
	cfg, err := Parse([]string{"--host=h", "--username=u", "--maildir=/tmp/m"})
	require.NoError(t, err)
	assert.Equal(t, "env-password", cfg.Password)
}

func TestParseRejectsUnknownSeverity(t *testing.T) {
	_, err := Parse([]string{"--host=h", "--username=u", "--maildir=/tmp/m", "--password=p", "--severity=loud"})
	assert.Error(t, err)
}
