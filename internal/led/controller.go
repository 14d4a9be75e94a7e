// Package led shows the shared pipeline's state on a board LED.
package led

// Controller sets board LEDs by name.
type Controller interface {
	// Set switches the named LED on or off. A non-empty pattern
	// ("solid", "blink", "heartbeat" or a raw kernel trigger) is applied
	// first.
	Set(name string, enabled bool, pattern string) error

	// Available lists the LED names Set accepts.
	Available() []string

	// Patterns lists the named patterns Set understands.
	Patterns() []string
}
