//go:build !linux

package capture

import "errors"

var errUnsupported = errors.New("V4L2 is only available on Linux")

// Probe is not supported off Linux.
func Probe(string) (Device, error) {
	return Device{}, errUnsupported
}

// List is not supported off Linux.
func List() ([]Device, error) {
	return nil, errUnsupported
}
