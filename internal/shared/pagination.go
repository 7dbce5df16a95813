package shared

// MaxListLimit caps every list endpoint.
const MaxListLimit = 1000

// ClampLimit returns def when limit is unset or above MaxListLimit.
func ClampLimit(limit, def int) int {
	if limit <= 0 || limit > MaxListLimit {
		return def
	}
	return limit
}
