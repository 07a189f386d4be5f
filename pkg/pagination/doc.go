// Package pagination provides parallel batch fetching of the complete
// listing collection.
//
// The listing API pages with n/skip and reports no total, so the batch
// fetcher requests rounds of consecutive windows in parallel and stops at
// the first window that comes back empty. A short window shrinks the window
// size to what the server returned, so a server-side cap on n does not
// truncate the collection.
//
// Example usage:
//
//	config := pagination.DefaultConfig()
//	fetcher := pagination.NewBatchFetcher(apiClient, config)
//	listings, err := fetcher.FetchAll(ctx)
//
// The batch fetcher:
//   - Issues up to MaxConcurrency windows per round
//   - Concatenates pages strictly in offset order
//   - Stops after the first empty page or MaxPages windows
//   - Returns the contiguous prefix fetched before a failing window
//
// It is intended for warm-up and export tools. Interactive feeds should use
// package feed, which never has more than one request in flight.
package pagination
