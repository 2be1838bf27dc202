package client

import (
	"context"
	"sync"

	"github.com/cloudbox/cloudbox/pkg/drive"
)

// Navigator tracks which folder a view is looking at and keeps the
// breadcrumb chain for it resolved.
//
// Navigation is idempotent (re-navigating to the current folder just
// refreshes the chain) and guarded by the same generation technique as
// ListStore: a breadcrumb response that arrives after the user has
// already moved on is discarded, so the trail always describes the
// folder actually on screen.
type Navigator struct {
	svc drive.Service

	mu         sync.Mutex
	generation uint64
	folderID   *string
	chain      []drive.Entry
}

// NewNavigator creates a navigator positioned at the root.
func NewNavigator(svc drive.Service) *Navigator {
	return &Navigator{svc: svc}
}

// Navigate moves to the given folder (nil = root) and resolves its
// breadcrumb chain. The root has an empty chain and resolves without a
// service call. A resolution failure leaves the position set but the
// chain empty; the error is returned for display.
func (n *Navigator) Navigate(ctx context.Context, folderID *string) error {
	n.mu.Lock()
	n.generation++
	gen := n.generation
	n.folderID = folderID
	if folderID == nil {
		n.chain = nil
		n.mu.Unlock()
		return nil
	}
	n.mu.Unlock()

	chain, err := n.svc.FolderPath(ctx, *folderID)

	n.mu.Lock()
	defer n.mu.Unlock()
	if n.generation != gen {
		return nil
	}
	if err != nil {
		n.chain = nil
		return err
	}
	n.chain = chain
	return nil
}

// CurrentFolderID returns the folder the navigator points at, nil for
// root.
func (n *Navigator) CurrentFolderID() *string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.folderID
}

// Chain returns a copy of the current breadcrumb chain, root-first and
// ending with the current folder. Empty at the root.
func (n *Navigator) Chain() []drive.Entry {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]drive.Entry, len(n.chain))
	copy(out, n.chain)
	return out
}

// RefreshChain re-resolves the chain for the current folder, picking up
// renames of ancestors.
func (n *Navigator) RefreshChain(ctx context.Context) error {
	n.mu.Lock()
	folderID := n.folderID
	n.mu.Unlock()
	return n.Navigate(ctx, folderID)
}

// Reset returns the navigator to the root and clears the chain.
func (n *Navigator) Reset() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.generation++
	n.folderID = nil
	n.chain = nil
}
