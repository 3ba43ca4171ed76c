package config

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaults(t *testing.T) {
	assert.Equal(t, 0, GetCameraIndex())
	assert.Equal(t, 0, GetCameraWidth())
	assert.Equal(t, 0, GetCameraHeight())
	assert.Equal(t, 0.0, GetCameraFPS())
	assert.Equal(t, 85, GetRecordQuality())
	assert.True(t, GetDisplayEnabled())
	assert.True(t, strings.HasSuffix(GetRecordPath(), "camcord.mkv"))
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("CAMCORD_CAMERA_INDEX", "2")
	t.Setenv("CAMCORD_CAMERA_FPS", "24")
	t.Setenv("CAMCORD_RECORD_QUALITY", "60")
	t.Setenv("CAMCORD_DISPLAY_ENABLED", "false")

	assert.Equal(t, 2, GetCameraIndex())
	assert.Equal(t, 24.0, GetCameraFPS())
	assert.Equal(t, 60, GetRecordQuality())
	assert.False(t, GetDisplayEnabled())
}
