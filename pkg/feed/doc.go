// Package feed implements the incremental listing feed behind an
// infinite-scroll view.
//
// A Controller owns the loaded listings and the offset of the next page.
// Each call to NextPage issues at most one page request; a call made while
// another is in flight returns false without touching the network, so two
// pages can never be fetched concurrently and appended out of order.
//
// Example usage:
//
//	api, _ := client.New(client.DefaultConfig("http://localhost:8080"))
//	ctrl, _ := feed.New(api, feed.DefaultConfig())
//	defer ctrl.Close()
//
//	// on scroll-reaches-bottom
//	go ctrl.NextPage(ctx)
//
//	// on render
//	state := ctrl.State()
//
// Failed page loads are logged and reported to the optional Observer; they
// are never returned, and the next trigger retries from the same offset.
// A successful page with no items marks the feed exhausted.
package feed
