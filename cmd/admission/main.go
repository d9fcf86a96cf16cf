// Admission runs named quota pools with optional permit gates.
//
// A pool hands out a fixed number of slots. Each slot is either confirmed,
// cancelled or expires after a TTL, in which case it returns to the pool.
// A permit gate throttles how quickly slots may be taken.
//
// Usage:
//
//	# Check a configuration file
//	admission validate --config admission.yaml
//
//	# Drive the configured pools with a synthetic load and print a summary
//	admission run --config admission.yaml --requests 5000 --concurrency 16
//
//	# Keep serving /metrics after the load finishes
//	admission run --serve
//
//	# Inspect the slot event journal
//	admission journal query --pool api --kind expired
//
//	# Show version information
//	admission version
package main

func main() {
	Execute()
}
