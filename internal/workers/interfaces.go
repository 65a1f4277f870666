// Package workers runs the background jobs of the sync engine next to the
// HTTP server.
package workers

import "context"

// Worker is a background job. Run blocks until ctx is cancelled or the job
// fails.
type Worker interface {
	Run(ctx context.Context) error
}
