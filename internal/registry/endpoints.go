package registry

const (
	// DefaultQuoteBaseURL is the routing service queried for swap and bridge
	// quotes when configuration does not override it.
	DefaultQuoteBaseURL = "https://li.quest/v1"
)
