package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
	"github.com/spf13/viper"
)

var v *viper.Viper

func init() {
	v = viper.New()

	// Set default values
	v.SetDefault("camera.index", 0)
	v.SetDefault("camera.width", 0)  // 0 = use the device's current mode
	v.SetDefault("camera.height", 0) // 0 = use the device's current mode
	v.SetDefault("camera.fps", 0.0)  // 0 = use the device's current rate

	// Default recording location under the user's Videos directory
	videosDir := xdg.UserDirs.Videos
	if videosDir == "" {
		videosDir = "."
	}
	v.SetDefault("record.path", filepath.Join(videosDir, "camcord.mkv"))
	v.SetDefault("record.quality", 85)

	v.SetDefault("display.enabled", true)

	// Environment variables
	v.AutomaticEnv()
	v.BindEnv("camera.index", "CAMCORD_CAMERA_INDEX")
	v.BindEnv("camera.width", "CAMCORD_CAMERA_WIDTH")
	v.BindEnv("camera.height", "CAMCORD_CAMERA_HEIGHT")
	v.BindEnv("camera.fps", "CAMCORD_CAMERA_FPS")
	v.BindEnv("record.path", "CAMCORD_RECORD_PATH")
	v.BindEnv("record.quality", "CAMCORD_RECORD_QUALITY")
	v.BindEnv("display.enabled", "CAMCORD_DISPLAY_ENABLED")

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	// Look for config in the following paths
	configPaths := []string{
		".",
		"$HOME/.camcord",
		"/etc/camcord",
	}

	for _, path := range configPaths {
		expandedPath := os.ExpandEnv(path)
		v.AddConfigPath(expandedPath)
	}

	// Read config file if it exists
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			// Config file was found but another error was produced
			panic(fmt.Sprintf("Fatal error reading config file: %s", err))
		}
		// Config file not found; ignore error and use defaults
	}
}

// GetCameraIndex returns the capture device index (/dev/video<index>)
func GetCameraIndex() int {
	return v.GetInt("camera.index")
}

// GetCameraWidth returns the requested capture width, 0 for device default
func GetCameraWidth() int {
	return v.GetInt("camera.width")
}

// GetCameraHeight returns the requested capture height, 0 for device default
func GetCameraHeight() int {
	return v.GetInt("camera.height")
}

// GetCameraFPS returns the requested frame rate, 0 for device default
func GetCameraFPS() float64 {
	return v.GetFloat64("camera.fps")
}

// GetRecordPath returns the output container file path
func GetRecordPath() string {
	return v.GetString("record.path")
}

// GetRecordQuality returns the JPEG quality used by the sink (1-100)
func GetRecordQuality() int {
	return v.GetInt("record.quality")
}

// GetDisplayEnabled reports whether the presentation pump should run
func GetDisplayEnabled() bool {
	return v.GetBool("display.enabled")
}
