package internal

import (
	"fmt"
	"runtime"
)

// Version is the current version of timekeeper
// This should be updated with each release
const Version = "0.4.0"

const AppName = "timekeeper"

// BuildInfo is served on /info and shown in the client footer.
type BuildInfo struct {
	Name      string `json:"name"`
	Version   string `json:"version"`
	GoVersion string `json:"goVersion"`
	Platform  string `json:"platform"`
}

func CurrentBuild() BuildInfo {
	return BuildInfo{
		Name:      AppName,
		Version:   Version,
		GoVersion: runtime.Version(),
		Platform:  GetPlatform(),
	}
}

// GetPlatform returns the release binary name for the current platform
func GetPlatform() string {
	osName := runtime.GOOS
	arch := runtime.GOARCH

	switch osName {
	case "darwin":
		if arch == "arm64" {
			return AppName + "-macos-arm64"
		}
		return AppName + "-macos-amd64"
	case "linux":
		if arch == "arm64" {
			return AppName + "-linux-arm64"
		}
		return AppName + "-linux-amd64"
	case "windows":
		return AppName + "-windows-amd64.exe"
	default:
		return fmt.Sprintf("%s-%s-%s", AppName, osName, arch)
	}
}
