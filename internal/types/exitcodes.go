package types

// Process exit statuses. The numbering is kept stable for init scripts that
// already branch on it.
const (
	ExitOK       = 0
	ExitArgs     = 1 // invalid options or quality bounds
	ExitElement  = 2 // pipeline description could not be parsed
	ExitPipeline = 3 // a required pipeline element is missing
	ExitPlay     = 4 // pipeline failed to start
	ExitQuit     = 5 // shutdown failure
	ExitRTSP     = 6 // transport server failure
)
