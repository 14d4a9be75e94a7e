package led

import (
	"os"
	"strings"

	"github.com/Gateworks/gst-gateworks-apps/internal/logging"
)

const deviceTreeModelPath = "/proc/device-tree/model"

// gateworksFamilies are the board families whose user LEDs are exposed
// under /sys/class/leds as user1 (green) and user2 (red).
var gateworksFamilies = []string{"Ventana", "Newport", "Venice"}

// New returns a controller for the running board, or a no-op controller
// when the board has no known LEDs.
func New(logger logging.Logger) Controller {
	return newForModel(boardModel(), logger)
}

func newForModel(model string, logger logging.Logger) Controller {
	for _, family := range gateworksFamilies {
		if strings.Contains(model, "Gateworks "+family) {
			if logger != nil {
				logger.Info("Using sysfs LEDs", "board", model)
			}
			return newSysfs(sysfsLEDPath, map[string]string{"user1": "user1", "user2": "user2"})
		}
	}
	if logger != nil {
		logger.Info("No controllable LEDs on this board", "board", model)
	}
	return newNoop(logger)
}

// boardModel reads the device tree model, "unknown" when absent.
func boardModel() string {
	data, err := os.ReadFile(deviceTreeModelPath)
	if err != nil {
		return "unknown"
	}
	return strings.TrimRight(string(data), "\x00")
}
