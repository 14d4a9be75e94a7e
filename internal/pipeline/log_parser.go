package pipeline

import "strings"

// ParseLogLevel extracts a log level from gst-launch-1.0 output. Two shapes
// are recognized: gst-launch's own "ERROR: ..." / "WARNING: ..." lines, and
// GST_DEBUG lines such as
//
//	0:00:00.123456789 4242 0x55d0c0 WARN  v4l2src gstv4l2src.c:812:func:<source0> msg
//
// For debug lines the timestamp, pid and thread columns are dropped.
func ParseLogLevel(line string) (level, msg string) {
	line = stripANSI(line)

	switch {
	case strings.HasPrefix(line, "ERROR: "):
		return "error", line[len("ERROR: "):]
	case strings.HasPrefix(line, "WARNING: erroneous pipeline"):
		return "error", line[len("WARNING: "):]
	case strings.HasPrefix(line, "WARNING: "):
		return "warning", line[len("WARNING: "):]
	}

	fields := strings.Fields(line)
	if len(fields) >= 5 && strings.Count(fields[0], ":") == 2 && strings.HasPrefix(fields[2], "0x") {
		if lvl, ok := debugLevel(fields[3]); ok {
			idx := strings.Index(line, fields[3]) + len(fields[3])
			return lvl, strings.TrimSpace(line[idx:])
		}
	}

	return "info", line
}

func debugLevel(s string) (string, bool) {
	switch s {
	case "ERROR":
		return "error", true
	case "WARN", "FIXME":
		return "warning", true
	case "INFO":
		return "info", true
	case "DEBUG", "LOG", "TRACE", "MEMDUMP":
		return "debug", true
	}
	return "", false
}

// stripANSI removes terminal color sequences that GST_DEBUG emits by default.
func stripANSI(s string) string {
	if !strings.Contains(s, "\x1b[") {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == 0x1b && i+1 < len(s) && s[i+1] == '[' {
			j := i + 2
			for j < len(s) && s[j] != 'm' {
				j++
			}
			i = j
			continue
		}
		b.WriteByte(s[i])
	}
	return b.String()
}
