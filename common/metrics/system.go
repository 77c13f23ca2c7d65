// Package metrics captures host facts once at startup and cheap runtime
// snapshots for health reporting.
package metrics

import (
	"os"
	"runtime"
	"strings"
	"sync"
)

// SystemInfo holds static system information captured once at startup
type SystemInfo struct {
	OS               string `json:"os"`
	Arch             string `json:"arch"`
	Hostname         string `json:"hostname"`
	CPULogical       int    `json:"cpu_logical"`
	GoVersion        string `json:"go_version"`
	InContainer      bool   `json:"in_container"`
	ContainerRuntime string `json:"container_runtime,omitempty"`
}

var (
	systemInfo     *SystemInfo
	systemInfoOnce sync.Once
)

// GetSystemInfo returns cached system information (captured once)
func GetSystemInfo() *SystemInfo {
	systemInfoOnce.Do(func() {
		systemInfo = captureSystemInfo()
	})
	return systemInfo
}

func captureSystemInfo() *SystemInfo {
	info := &SystemInfo{
		OS:         runtime.GOOS,
		Arch:       runtime.GOARCH,
		CPULogical: runtime.NumCPU(),
		GoVersion:  runtime.Version(),
	}

	if hostname, err := os.Hostname(); err == nil {
		info.Hostname = hostname
	} else {
		info.Hostname = "unknown"
	}

	info.InContainer, info.ContainerRuntime = detectContainer()
	return info
}

// detectContainer checks if running in a container
func detectContainer() (bool, string) {
	if _, err := os.Stat("/.dockerenv"); err == nil {
		return true, "docker"
	}
	if _, err := os.Stat("/var/run/secrets/kubernetes.io"); err == nil {
		return true, "kubernetes"
	}

	// Check cgroup for container indicators
	if data, err := os.ReadFile("/proc/1/cgroup"); err == nil {
		return containerFromCgroup(string(data))
	}
	return false, ""
}

func containerFromCgroup(content string) (bool, string) {
	switch {
	case strings.Contains(content, "kubepods"):
		return true, "kubernetes"
	case strings.Contains(content, "docker"):
		return true, "docker"
	case strings.Contains(content, "containerd"):
		return true, "containerd"
	default:
		return false, ""
	}
}

// LogArgs flattens the info into slog key/value pairs
func (s *SystemInfo) LogArgs() []any {
	args := []any{
		"os", s.OS,
		"arch", s.Arch,
		"hostname", s.Hostname,
		"cpus", s.CPULogical,
		"go_version", s.GoVersion,
	}
	if s.InContainer {
		args = append(args, "container", s.ContainerRuntime)
	}
	return args
}
