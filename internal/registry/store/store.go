// Package store persists registry entities. Implementations must provide
// read-modify-write safety on Update via a version check: two concurrent
// updates from the same read must not both succeed, or concurrent votes on one
// request could silently drop each other.
package store

import (
	"context"

	"landchain/internal/registry/models"
)

// RequestStore persists citizen requests.
//
// Update compares the record's Version against the stored row and returns
// sentinel.ErrConflict when they diverge; on success the persisted version is
// incremented and reflected on the passed record.
type RequestStore interface {
	Create(ctx context.Context, req *models.Request) error
	FindByID(ctx context.Context, id string) (*models.Request, error)
	Update(ctx context.Context, req *models.Request) error
}

// ParcelStore persists parcels. FindByIDOrTokenID resolves the weak reference
// a request carries: a parcel id first, then a numeric token id.
type ParcelStore interface {
	Create(ctx context.Context, parcel *models.Parcel) error
	FindByIDOrTokenID(ctx context.Context, idOrTokenID string) (*models.Parcel, error)
	Update(ctx context.Context, parcel *models.Parcel) error
	Count(ctx context.Context) (uint64, error)
}
