package domain

// BytesSavedPerBlock is the estimated payload avoided per blocked request.
const BytesSavedPerBlock = 50 * 1024

// EstimatedBytesSaved returns the estimated traffic avoided by count blocked
// requests.
func EstimatedBytesSaved(count uint64) uint64 {
	return count * BytesSavedPerBlock
}

// EstimatedMegabytesSaved returns EstimatedBytesSaved in MiB.
func EstimatedMegabytesSaved(count uint64) float64 {
	return float64(count) * 50.0 / 1024.0
}
