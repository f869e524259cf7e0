package catalog

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-settlement/pkg/db/models"
	"github.com/angelmondragon/storefront-settlement/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-settlement/pkg/errors"
)

// PurchaseLine is one requested offer and quantity.
type PurchaseLine struct {
	OfferID  uuid.UUID
	Quantity int
}

// Rejection explains why an offer cannot be bought right now.
type Rejection struct {
	OfferID   uuid.UUID `json:"offer_id"`
	Reason    string    `json:"reason"`
	Requested int       `json:"requested,omitempty"`
	Available int       `json:"available,omitempty"`
}

const (
	ReasonNotFound     = "offer_not_found"
	ReasonNotApproved  = "offer_not_approved"
	ReasonInsufficient = "insufficient_stock"
)

// Gate confirms offers are purchasable. It never mutates state.
type Gate interface {
	CheckPurchasable(ctx context.Context, tx *gorm.DB, lines []PurchaseLine) (map[uuid.UUID]models.VendorOffer, error)
}

type gate struct {
	repo Repository
}

// NewGate builds a Gate over the catalog repository.
func NewGate(repo Repository) (Gate, error) {
	if repo == nil {
		return nil, fmt.Errorf("catalog repository required")
	}
	return &gate{repo: repo}, nil
}

// CheckPurchasable returns the offers keyed by ID when every line passes.
// Missing or unapproved offers yield a validation error; short stock on a
// managed offer yields StockUnavailable. Quantities for a repeated offer are
// summed before the stock comparison.
func (g *gate) CheckPurchasable(ctx context.Context, tx *gorm.DB, lines []PurchaseLine) (map[uuid.UUID]models.VendorOffer, error) {
	if len(lines) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one item is required")
	}
	requested := make(map[uuid.UUID]int, len(lines))
	ids := make([]uuid.UUID, 0, len(lines))
	for _, line := range lines {
		if line.OfferID == uuid.Nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "offer id is required")
		}
		if line.Quantity <= 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
		}
		if _, seen := requested[line.OfferID]; !seen {
			ids = append(ids, line.OfferID)
		}
		requested[line.OfferID] += line.Quantity
	}

	offers, err := g.repo.WithTx(tx).FindOffers(ctx, ids)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load offers")
	}
	byID := make(map[uuid.UUID]models.VendorOffer, len(offers))
	for _, offer := range offers {
		byID[offer.ID] = offer
	}

	var invalid, short []Rejection
	for _, id := range ids {
		offer, ok := byID[id]
		switch {
		case !ok:
			invalid = append(invalid, Rejection{OfferID: id, Reason: ReasonNotFound})
		case offer.Status != enums.OfferStatusApproved:
			invalid = append(invalid, Rejection{OfferID: id, Reason: ReasonNotApproved})
		case offer.ManageStock && offer.StockQuantity < requested[id]:
			short = append(short, Rejection{
				OfferID:   id,
				Reason:    ReasonInsufficient,
				Requested: requested[id],
				Available: offer.StockQuantity,
			})
		}
	}
	if len(invalid) > 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "one or more offers are not purchasable").WithDetails(append(invalid, short...))
	}
	if len(short) > 0 {
		return nil, pkgerrors.New(pkgerrors.CodeStockUnavailable, "insufficient stock").WithDetails(short)
	}
	return byID, nil
}
