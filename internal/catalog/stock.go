package catalog

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"gorm.io/gorm"

	pkgerrors "github.com/angelmondragon/storefront-settlement/pkg/errors"
)

// StockReserver applies conditional stock movements inside a caller's tx.
type StockReserver interface {
	Reserve(ctx context.Context, tx *gorm.DB, lines []PurchaseLine) error
	Release(ctx context.Context, tx *gorm.DB, lines []PurchaseLine) error
}

type stockReserver struct {
	repo Repository
}

// NewStockReserver builds a StockReserver over the catalog repository.
func NewStockReserver(repo Repository) (StockReserver, error) {
	if repo == nil {
		return nil, fmt.Errorf("catalog repository required")
	}
	return &stockReserver{repo: repo}, nil
}

// Reserve decrements every managed offer or fails with StockUnavailable. The
// caller must roll back its transaction on error; earlier decrements in the
// same call are not undone here.
func (s *stockReserver) Reserve(ctx context.Context, tx *gorm.DB, lines []PurchaseLine) error {
	repo := s.repo.WithTx(tx)
	merged := mergeLines(lines)
	var unmanagedCheck []uuid.UUID
	for _, line := range merged {
		ok, err := repo.DecrementStock(ctx, line.OfferID, line.Quantity)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decrement stock")
		}
		if !ok {
			unmanagedCheck = append(unmanagedCheck, line.OfferID)
		}
	}
	if len(unmanagedCheck) == 0 {
		return nil
	}

	offers, err := repo.FindOffers(ctx, unmanagedCheck)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load offers")
	}
	found := make(map[uuid.UUID]bool, len(offers))
	var short []Rejection
	for _, offer := range offers {
		found[offer.ID] = true
		if offer.ManageStock {
			short = append(short, Rejection{OfferID: offer.ID, Reason: ReasonInsufficient, Available: offer.StockQuantity})
		}
	}
	for _, id := range unmanagedCheck {
		if !found[id] {
			short = append(short, Rejection{OfferID: id, Reason: ReasonNotFound})
		}
	}
	if len(short) > 0 {
		return pkgerrors.New(pkgerrors.CodeStockUnavailable, "insufficient stock").WithDetails(short)
	}
	return nil
}

// Release returns stock taken by Reserve. Unmanaged offers are skipped.
func (s *stockReserver) Release(ctx context.Context, tx *gorm.DB, lines []PurchaseLine) error {
	repo := s.repo.WithTx(tx)
	for _, line := range mergeLines(lines) {
		if _, err := repo.IncrementStock(ctx, line.OfferID, line.Quantity); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "restore stock")
		}
	}
	return nil
}

// mergeLines sums quantities per offer and orders by offer ID so concurrent
// reservations touch rows in the same order.
func mergeLines(lines []PurchaseLine) []PurchaseLine {
	totals := make(map[uuid.UUID]int, len(lines))
	for _, line := range lines {
		totals[line.OfferID] += line.Quantity
	}
	out := make([]PurchaseLine, 0, len(totals))
	for id, qty := range totals {
		out = append(out, PurchaseLine{OfferID: id, Quantity: qty})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].OfferID.String() < out[j].OfferID.String()
	})
	return out
}
