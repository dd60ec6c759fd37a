package catalog

import "context"

// Item is one media entry in a favorite list.
type Item struct {
	Bvid string
	Aid  int64
}

// Source enumerates the items of external favorite lists. One list's failure
// is independent of the others: callers log and move on.
type Source interface {
	// ListItems returns the items currently in a favorite list.
	ListItems(ctx context.Context, favid string) ([]Item, error)

	// VideoInfo fetches metadata for one item.
	VideoInfo(ctx context.Context, bvid string) (*VideoInfo, error)
}

// Mutator performs postprocess mutations against the catalog after a
// successful download.
type Mutator interface {
	// Move relocates an item from one favorite list to another.
	Move(ctx context.Context, aid int64, fromFid, toFid string) error

	// Remove drops an item from a favorite list.
	Remove(ctx context.Context, aid int64, fid string) error

	// ResolveAid maps an item's bvid onto the numeric id the mutation
	// endpoints require.
	ResolveAid(ctx context.Context, bvid string) (int64, error)
}

// VideoInfo is the subset of item metadata the executor cares about.
type VideoInfo struct {
	Aid   int64
	Title string
	// Parts is the number of sub-items; more than one switches the download
	// into batch mode.
	Parts int
}
