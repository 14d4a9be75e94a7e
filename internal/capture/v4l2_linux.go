//go:build linux

package capture

import (
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"unsafe"
)

const (
	vidiocQueryCap = 0x80685600

	capVideoCapture      = 0x00000001
	capVideoCaptureMPlan = 0x00001000
	capDeviceCaps        = 0x80000000
)

// v4l2Capability mirrors struct v4l2_capability; its layout is the same on
// 32 and 64 bit ARM.
type v4l2Capability struct {
	driver       [16]byte
	card         [32]byte
	busInfo      [32]byte
	version      uint32
	capabilities uint32
	deviceCaps   uint32
	reserved     [3]uint32
}

var _ [104]byte = [unsafe.Sizeof(v4l2Capability{})]byte{}

// Probe queries the node at path and fails with ErrNotCapture when it has
// no capture capability.
func Probe(path string) (Device, error) {
	fd, err := syscall.Open(path, syscall.O_RDWR|syscall.O_NONBLOCK, 0)
	if err != nil {
		return Device{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer syscall.Close(fd)

	var c v4l2Capability
	if _, _, errno := syscall.Syscall(syscall.SYS_IOCTL, uintptr(fd), vidiocQueryCap, uintptr(unsafe.Pointer(&c))); errno != 0 {
		if errno == syscall.ENOTTY {
			return Device{}, fmt.Errorf("%s: %w", path, ErrNotCapture)
		}
		return Device{}, fmt.Errorf("query %s: %w", path, errno)
	}

	caps := c.capabilities
	if caps&capDeviceCaps != 0 {
		caps = c.deviceCaps
	}
	if caps&(capVideoCapture|capVideoCaptureMPlan) == 0 {
		return Device{}, fmt.Errorf("%s: %w", path, ErrNotCapture)
	}

	return Device{
		Path:    path,
		Name:    cstr(c.card[:]),
		Driver:  cstr(c.driver[:]),
		BusInfo: cstr(c.busInfo[:]),
	}, nil
}

// List returns every capture node registered in sysfs. Nodes that fail to
// open or only output video are skipped.
func List() ([]Device, error) {
	entries, err := os.ReadDir(sysfsRoot)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read %s: %w", sysfsRoot, err)
	}

	var devices []Device
	for _, entry := range entries {
		dev, err := Probe("/dev/" + entry.Name())
		if err != nil {
			continue
		}
		index := readInt(filepath.Join(sysfsRoot, entry.Name(), "index"))
		dev.ID = stableID(byIDRoot, entry.Name(), index)
		devices = append(devices, dev)
	}
	return devices, nil
}
