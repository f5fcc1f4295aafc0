package configfs

import (
	"bufio"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"golang.org/x/sys/unix"
)

// LinuxHost prepares the host-global prerequisites of gadget composition:
// the composite-gadget kernel module and the configfs mount. Both
// operations are guarded by a check so repeated invocation is safe.
type LinuxHost struct{}

// EnsureModule loads the kernel module via modprobe unless
// /sys/module/<name> shows it is already loaded.
func (LinuxHost) EnsureModule(name string) error {
	if _, err := os.Stat("/sys/module/" + name); err == nil {
		return nil
	}

	out, err := exec.Command("modprobe", name).CombinedOutput()
	if err != nil {
		return fmt.Errorf("modprobe %s failed: %s: %w", name, strings.TrimSpace(string(out)), err)
	}
	return nil
}

// EnsureMounted mounts configfs at mountpoint unless /proc/mounts already
// lists a configfs mount there.
func (LinuxHost) EnsureMounted(mountpoint string) error {
	mounted, err := isMounted("/proc/mounts", mountpoint)
	if err != nil {
		return err
	}
	if mounted {
		return nil
	}

	if err := unix.Mount("none", mountpoint, "configfs", 0, ""); err != nil {
		return fmt.Errorf("failed to mount configfs at %s: %w", mountpoint, err)
	}
	return nil
}

// isMounted scans a mounts table in /proc/mounts format for a configfs
// entry at the given mountpoint.
func isMounted(mountsFile, mountpoint string) (bool, error) {
	f, err := os.Open(mountsFile)
	if err != nil {
		return false, fmt.Errorf("failed to read mount table: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		// Fields: device mountpoint fstype options dump pass
		fields := strings.Fields(scanner.Text())
		if len(fields) < 3 {
			continue
		}
		if fields[1] == mountpoint && fields[2] == "configfs" {
			return true, nil
		}
	}
	return false, scanner.Err()
}
