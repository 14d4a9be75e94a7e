// Package logging configures log/slog for the server.
//
// Every component asks for a module logger:
//
//	logger := logging.GetLogger("session")
//	logger.Info("Viewer joined", "clients", 3)
//
// Records go to stdout (text or json) and, when journald is reachable, to
// the journal with one field per attribute:
//
//	journalctl -t gst-variable-rtsp-server MODULE=session
//
// Levels are set per module from the [logging] table and can be changed
// while running with SetLevel:
//
//	[logging]
//	level = "info"
//	format = "text"
//
//	[logging.modules]
//	session = "debug"
//	gst = "warn"
package logging
