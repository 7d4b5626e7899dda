// Package pagination drives a transport-specific page fetcher across every
// page of a resource and accumulates the parsed records in page order.
//
// Example usage:
//
//	fetcher := pagination.NewBatchFetcher(restFetcher, record.ParseCharacter, pagination.DefaultConfig())
//	result, err := fetcher.FetchAll(ctx, model.ResourceCharacters)
//
// The batch fetcher:
//   - fetches page 1 to learn the page count
//   - returns immediately when there is at most one page
//   - fetches pages 2..N sequentially, or through a worker pool when
//     MaxConcurrency > 1
//   - keeps records in page-ascending, within-page order either way
//   - aborts on the first failed page and discards everything fetched so far
package pagination
