package player

import (
	"os"
	"runtime"
)

// EnvironmentDetector probes the running platform for audio
// capabilities. Mobile targets and anything with FUAIM_REQUIRE_UNLOCK
// set are treated as requiring an explicit unlock gesture.
type EnvironmentDetector struct{}

func NewEnvironmentDetector() *EnvironmentDetector { return &EnvironmentDetector{} }

func (d *EnvironmentDetector) Detect() Capabilities {
	needsUnlock := runtime.GOOS == "android" || runtime.GOOS == "ios"
	switch os.Getenv("FUAIM_REQUIRE_UNLOCK") {
	case "1", "true", "yes":
		needsUnlock = true
	}

	return Capabilities{
		NativePlayback: true,
		OutputDevice:   true,
		MediaCapture:   false,
		NeedsUnlock:    needsUnlock,
	}
}
