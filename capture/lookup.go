package capture

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// VIDEO4LINUX_DIR is where the kernel lists video device nodes.
const VIDEO4LINUX_DIR = "/sys/class/video4linux"

// ListDevices maps device node paths to driver-reported names for every
// video node under dir.
func ListDevices(dir string) (map[string]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	devices := make(map[string]string)
	for _, e := range entries {
		if !strings.HasPrefix(e.Name(), "video") {
			continue
		}
		name, err := os.ReadFile(filepath.Join(dir, e.Name(), "name"))
		if err != nil {
			continue
		}
		devices[filepath.Join("/dev", e.Name())] = strings.TrimSpace(string(name))
	}
	return devices, nil
}

// Lookup returns the node path of the device named name. When more than
// one node matches, the lowest path wins.
func Lookup(dir, name string) (string, error) {
	devices, err := ListDevices(dir)
	if err != nil {
		return "", errors.Wrap(err, "list video devices")
	}
	var matches []string
	for path, n := range devices {
		if n == name {
			matches = append(matches, path)
		}
	}
	if len(matches) == 0 {
		return "", errors.Errorf("no video device named %q in %s", name, dir)
	}
	sort.Strings(matches)
	return matches[0], nil
}

// ModuleName is the sysfs name of instance module of a capture block, such
// as "nx-decimator0".
func ModuleName(block string, module int) string {
	return fmt.Sprintf("%s%d", block, module)
}
