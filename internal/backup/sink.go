// Package backup snapshots the store to an external blob sink, restores
// from it, and schedules daily automatic runs.
package backup

import (
	"context"
	"errors"
	"sort"
)

// Sink errors. Implementations wrap these so the service can map them
// onto stable codes.
var (
	ErrInvalidResponse = errors.New("sink response is not valid")
	ErrRejected        = errors.New("sink rejected the request")
	ErrBlobNotFound    = errors.New("blob not found")
)

// BlobInfo describes one stored backup. Timestamp is Unix milliseconds.
type BlobInfo struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Timestamp int64  `json:"ts"`
	Size      int64  `json:"size"`
}

// CreateResult is the sink's acknowledgement of a new blob.
type CreateResult struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Sink stores whole backup blobs.
type Sink interface {
	// Kind names the sink for logs and metrics.
	Kind() string
	// List returns every blob, newest first.
	List(ctx context.Context) ([]BlobInfo, error)
	Create(ctx context.Context, name string, payload []byte) (CreateResult, error)
	Fetch(ctx context.Context, name string) ([]byte, error)
	Delete(ctx context.Context, id string) error
}

// SortNewestFirst orders blobs by timestamp descending, then by name
// descending so equal timestamps still have a fixed order.
func SortNewestFirst(blobs []BlobInfo) {
	sort.SliceStable(blobs, func(i, j int) bool {
		if blobs[i].Timestamp != blobs[j].Timestamp {
			return blobs[i].Timestamp > blobs[j].Timestamp
		}
		return blobs[i].Name > blobs[j].Name
	})
}
