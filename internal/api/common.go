package api

import "time"

// parseTimestamp accepts RFC3339 timestamps, the wire format used throughout
// the API for started_on and the handshake challenge.
func parseTimestamp(s string) (time.Time, error) {
	return time.Parse(time.RFC3339, s)
}
