// Package process runs gst-launch-1.0 as a child process.
//
// A Process is a single run: output goes to a logger line by line, and
// Interrupt sends SIGINT so gst-launch -e can push end-of-stream before
// exiting. A Supervisor keeps at most one Process alive, rebuilding the
// command on every start so a restart picks up new element properties.
package process
