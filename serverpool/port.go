package serverpool

import "github.com/cespare/xxhash/v2"

// PortFor returns the stable port for modelID. The base model always gets
// basePort; other models hash into (basePort, basePort+span].
func PortFor(modelID, baseModelID string, basePort, span int) int {
	if modelID == baseModelID || span <= 0 {
		return basePort
	}
	return basePort + 1 + int(xxhash.Sum64String(modelID)%uint64(span))
}

// nextFree walks forward from port until it finds one not in used,
// wrapping within (basePort, basePort+span]. It reports false when every
// port in the span is used.
func nextFree(port, basePort, span int, used map[int]bool) (int, bool) {
	for range span {
		if !used[port] {
			return port, true
		}
		port++
		if port > basePort+span {
			port = basePort + 1
		}
	}
	return 0, false
}
