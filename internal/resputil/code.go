package resputil

type ErrorCode int

const (
	OK ErrorCode = 0

	// General
	InvalidRequest ErrorCode = 40001
	// Entity failed schema or business-rule checks.
	ValidationFailed ErrorCode = 40002
	// Migration run already finished; reset before re-running.
	MigrationCompleted ErrorCode = 40003

	// Requested entity or route target does not exist.
	NotFound ErrorCode = 40401

	// Migration run already in flight.
	AlreadyRunning ErrorCode = 40901

	// Key-value backend failed its health check.
	StoreUnavailable ErrorCode = 50301

	// Indicates laziness of the developer
	// Frontend will directly print the message without any translation
	NotSpecified ErrorCode = 99999
)
