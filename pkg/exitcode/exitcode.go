// Package exitcode provides standardized exit codes for bundlepress
package exitcode

// Exit codes for the bundlepress CLI
const (
	Success         = 0
	GeneralError    = 1
	ConfigError     = 2
	ValidationError = 3
	FileSystemError = 4
	NetworkError    = 5
	// Incomplete means a phase stopped with work remaining; re-running the same command resumes it.
	Incomplete = 10
	// ConsistencyError means verification found the store, ledger or hosted content disagree.
	ConsistencyError = 11
)

// String returns a human-readable description of the exit code
func String(code int) string {
	switch code {
	case Success:
		return "Success"
	case GeneralError:
		return "General error"
	case ConfigError:
		return "Configuration error"
	case ValidationError:
		return "Validation error"
	case FileSystemError:
		return "File system error"
	case NetworkError:
		return "Network error"
	case Incomplete:
		return "Incomplete run"
	case ConsistencyError:
		return "Consistency error"
	default:
		return "Unknown error"
	}
}
