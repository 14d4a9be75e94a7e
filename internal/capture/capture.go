// Package capture finds V4L2 capture devices for the stock pipeline source.
package capture

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// ErrNotCapture is returned for a device node that cannot capture video.
var ErrNotCapture = errors.New("not a video capture device")

// Device describes one capture node.
type Device struct {
	Path    string `json:"path" example:"/dev/video0"`
	Name    string `json:"name" example:"USB Camera"`
	Driver  string `json:"driver" example:"uvcvideo"`
	BusInfo string `json:"bus_info" example:"usb-ci_hdrc.0-1"`
	// ID is the /dev/v4l/by-id name, stable across reboots and replugs.
	ID string `json:"id,omitempty"`
}

const (
	sysfsRoot = "/sys/class/video4linux"
	byIDRoot  = "/dev/v4l/by-id"
)

// stableID returns the by-id link in dir that points at node for the given
// capture index, or "".
func stableID(dir, node string, index int) string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}

	suffix := "-video-index" + strconv.Itoa(index)
	for _, entry := range entries {
		if entry.Type()&os.ModeSymlink == 0 || !strings.HasSuffix(entry.Name(), suffix) {
			continue
		}
		target, err := os.Readlink(filepath.Join(dir, entry.Name()))
		if err != nil {
			continue
		}
		if filepath.Base(target) == node {
			return entry.Name()
		}
	}
	return ""
}

func readInt(path string) int {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0
	}
	v, _ := strconv.Atoi(strings.TrimSpace(string(data)))
	return v
}

// cstr converts a NUL-terminated kernel string.
func cstr(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		return string(b[:i])
	}
	return string(b)
}
