package logging

import (
	"os"
	"path/filepath"
	"testing"

	"FlowGuard/internal/config"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigureWritesToFile(t *testing.T) {
	logger := log.New()
	path := filepath.Join(t.TempDir(), "logs", "flowguard.log")

	closer, err := Configure(logger, config.LogConfig{Level: "debug", Format: "json", File: path})
	require.NoError(t, err)

	logger.WithField("iface", "eth0").Debug("capture started")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"iface":"eth0"`)
	assert.Contains(t, string(data), `"msg":"capture started"`)
	assert.Equal(t, log.DebugLevel, logger.GetLevel())
}

func TestConfigureRejectsBadValues(t *testing.T) {
	_, err := Configure(log.New(), config.LogConfig{Level: "loud"})
	assert.Error(t, err)

	_, err = Configure(log.New(), config.LogConfig{Level: "info", Format: "xml"})
	assert.Error(t, err)
}
