package rate

import (
	"context"

	"github.com/wesleyorama2/groomload/internal/http"
)

// Requester caps the request rate of the requester it wraps across every
// VU sharing it. Waiting for a slot is not part of the measured latency.
type Requester struct {
	next   http.Requester
	bucket *LeakyBucket
}

// Limit wraps next so at most rps requests per second go out. A
// non-positive rps returns next unchanged.
func Limit(next http.Requester, rps float64) http.Requester {
	if rps <= 0 {
		return next
	}
	return &Requester{next: next, bucket: NewLeakyBucket(rps)}
}

// Do waits for a slot, then sends req.
func (r *Requester) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	if err := r.bucket.Wait(ctx); err != nil {
		return nil, err
	}
	return r.next.Do(ctx, req)
}

// Stats returns the limiter's bucket stats.
func (r *Requester) Stats() LeakyBucketStats {
	return r.bucket.Stats()
}

var _ http.Requester = (*Requester)(nil)
