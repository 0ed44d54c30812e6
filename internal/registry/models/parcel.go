package models

import (
	"time"

	"github.com/google/uuid"
)

// ParcelStatus is the lifecycle state of a registered parcel.
type ParcelStatus string

const (
	ParcelRegistered ParcelStatus = "registered"
	ParcelFrozen     ParcelStatus = "frozen"
)

// Location identifies a parcel within the administrative hierarchy.
type Location struct {
	Province     string `json:"province"`
	District     string `json:"district"`
	Municipality string `json:"municipality"`
	Ward         string `json:"ward"`
	Tole         string `json:"tole"`
}

// Size is the parcel area in traditional land units.
type Size struct {
	Bigha  int `json:"bigha"`
	Kattha int `json:"kattha"`
	Dhur   int `json:"dhur"`
}

// Parcel is a registered unit of land. TokenID is assigned once at mint time
// and is monotonic across the registry; MintAddress is immutable once set.
type Parcel struct {
	ID              string       `json:"id"`
	TokenID         uint64       `json:"tokenId"`
	OwnerName       string       `json:"ownerName"`
	OwnerWallet     string       `json:"ownerWallet"`
	Location        Location     `json:"location"`
	Size            Size         `json:"size"`
	DocumentHash    string       `json:"documentHash"`
	TransactionHash string       `json:"transactionHash"`
	MintAddress     string       `json:"mintAddress"`
	Status          ParcelStatus `json:"status"`
	CreatedAt       time.Time    `json:"createdAt"`
	UpdatedAt       time.Time    `json:"updatedAt"`

	// Version backs the store's conditional update. Zero means not yet persisted.
	Version int64 `json:"version"`
}

// NewParcel mints a parcel from an approved registration request.
func NewParcel(tokenID uint64, req *Request, mintAddress, transactionHash string, now time.Time) *Parcel {
	return &Parcel{
		ID:              uuid.NewString(),
		TokenID:         tokenID,
		OwnerName:       req.OwnerName,
		OwnerWallet:     req.WalletAddress,
		Location:        req.Location,
		Size:            req.Size,
		DocumentHash:    req.DocumentHash,
		TransactionHash: transactionHash,
		MintAddress:     mintAddress,
		Status:          ParcelRegistered,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// Frozen reports whether the parcel is blocked from transfer.
func (p *Parcel) Frozen() bool {
	return p.Status == ParcelFrozen
}

// Clone returns a deep copy so stores never hand out aliased records.
func (p *Parcel) Clone() *Parcel {
	if p == nil {
		return nil
	}
	cp := *p
	return &cp
}
