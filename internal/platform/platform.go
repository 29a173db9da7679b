// Package platform reports what the host process can rely on.
package platform

import (
	"os"
	"path/filepath"

	"fieldcapture/internal/config"
)

// Capabilities describes the environment the service runs in.
type Capabilities struct {
	// NativeShell is true when a native mobile shell hosts the service and owns a writable data directory.
	NativeShell bool
}

// Detect reads capabilities once at startup.
func Detect(cfg *config.Config) Capabilities {
	return Capabilities{NativeShell: cfg.NativeShell}
}

// DiskAvailable reports free bytes on the volume holding path. The nearest existing
// parent is checked so it can be called before the data directory is created.
func DiskAvailable(path string) (int64, bool) {
	dir := filepath.Clean(path)
	for {
		if _, err := os.Stat(dir); err == nil {
			break
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return 0, false
		}
		dir = parent
	}
	return diskAvailable(dir)
}
