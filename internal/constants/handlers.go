package constants

// Handler constants
const (
	// MaxRequestBodySize is the maximum JSON request body accepted by API handlers (1MB)
	MaxRequestBodySize = 1 << 20

	// StatsLogLimit is the number of activity lines returned by the stats endpoint
	StatsLogLimit = 10

	// NotAvailable is rendered for missing login/logout times
	NotAvailable = "N/A"
)

// Event channel constants
const (
	// EventChannelBuffer is the buffer size for dashboard event listener channels
	EventChannelBuffer = 100
)
