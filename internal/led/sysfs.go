package led

import (
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
)

const sysfsLEDPath = "/sys/class/leds"

// triggers maps a pattern to the trigger writes that produce it. The
// last write leaves the LED under brightness control. Names not listed
// are written as raw trigger names.
var triggers = map[string][]string{
	"solid":     {"default-on", "none"},
	"blink":     {"heartbeat"},
	"heartbeat": {"heartbeat"},
}

var patternOrder = []string{"solid", "blink", "heartbeat"}

// sysfs drives LEDs through /sys/class/leds/<name>/{trigger,brightness}.
type sysfs struct {
	root string
	dirs map[string]string // LED name -> sysfs directory name
}

func newSysfs(root string, dirs map[string]string) *sysfs {
	return &sysfs{root: root, dirs: dirs}
}

func (s *sysfs) Set(name string, enabled bool, pattern string) error {
	dir, ok := s.dirs[name]
	if !ok {
		return fmt.Errorf("LED %q not supported on this board", name)
	}
	path := filepath.Join(s.root, dir)
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("LED %q: %w", name, err)
	}

	if pattern != "" {
		writes, ok := triggers[pattern]
		if !ok {
			writes = []string{pattern}
		}
		for _, trigger := range writes {
			if err := writeAttr(path, "trigger", trigger); err != nil {
				return err
			}
		}
	}

	brightness := "0"
	if enabled {
		brightness = "1"
	}
	return writeAttr(path, "brightness", brightness)
}

func writeAttr(dir, attr, value string) error {
	if err := os.WriteFile(filepath.Join(dir, attr), []byte(value), 0o644); err != nil {
		return fmt.Errorf("set LED %s to %q: %w", attr, value, err)
	}
	return nil
}

func (s *sysfs) Available() []string {
	return slices.Sorted(maps.Keys(s.dirs))
}

func (s *sysfs) Patterns() []string {
	return slices.Clone(patternOrder)
}
