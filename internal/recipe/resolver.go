// Package recipe resolves multi-level bills of materials and prices them.
// Resolution is a pure function of a catalog snapshot, a product id and a
// quantity; nothing here mutates state.
package recipe

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"pasteleria/backend/internal/domain"
	"pasteleria/backend/internal/store"
	"pasteleria/backend/internal/units"
)

var (
	ErrMissingComponent = errors.New("recipe references a missing component")
	ErrCyclicRecipe     = errors.New("cyclic recipe")
	// Sub-product recipe lines are batch multiples of the sub-recipe; a
	// weight or volume there has no defined yield to scale by.
	ErrSubProductUnit = errors.New("sub-product quantity must be a batch multiple")
)

// Catalog is the read-only lookup the resolver walks. store.Repository
// satisfies it.
type Catalog interface {
	GetIngredient(ctx context.Context, id string) (*domain.Ingredient, error)
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
}

// ResolveUsage flattens the recipe tree rooted at productID into a single
// ingredient usage map for the given product quantity. On any error no
// partial map is returned.
func ResolveUsage(ctx context.Context, cat Catalog, productID string, quantity float64) (store.Usage, error) {
	usage := make(store.Usage)
	if err := resolve(ctx, cat, productID, quantity, usage, map[string]bool{}, nil); err != nil {
		return nil, err
	}
	return usage, nil
}

// ResolveOrderUsage resolves each line item independently and merges the
// maps, summing overlapping ingredient keys.
func ResolveOrderUsage(ctx context.Context, cat Catalog, items []domain.OrderItem) (store.Usage, error) {
	total := make(store.Usage)
	for _, item := range items {
		usage, err := ResolveUsage(ctx, cat, item.ProductID, float64(item.Quantity))
		if err != nil {
			return nil, err
		}
		MergeUsage(total, usage)
	}
	return total, nil
}

// MergeUsage adds every entry of src into dst.
func MergeUsage(dst store.Usage, src store.Usage) {
	for id, qty := range src {
		dst[id] += qty
	}
}

func resolve(ctx context.Context, cat Catalog, productID string, quantity float64, acc store.Usage, onPath map[string]bool, path []string) error {
	// The path check runs before any lookup or accumulation so a cycle can
	// never recurse unboundedly or leave partial sums behind.
	if onPath[productID] {
		return fmt.Errorf("%w: %s", ErrCyclicRecipe, strings.Join(append(path, productID), " -> "))
	}

	product, err := cat.GetProduct(ctx, productID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("%w: product %s", ErrMissingComponent, productID)
		}
		return err
	}

	onPath[productID] = true
	path = append(path, productID)
	defer delete(onPath, productID)

	for _, item := range product.Recipe {
		switch item.ComponentType {
		case domain.ComponentProduct:
			if item.Unit != "" && item.Unit != domain.UnitCount {
				return fmt.Errorf("%w: %s uses %q in recipe of %s", ErrSubProductUnit, item.ComponentID, item.Unit, productID)
			}
			if err := resolve(ctx, cat, item.ComponentID, item.Quantity*quantity, acc, onPath, path); err != nil {
				return err
			}
		default:
			ing, err := cat.GetIngredient(ctx, item.ComponentID)
			if err != nil {
				if errors.Is(err, store.ErrNotFound) {
					return fmt.Errorf("%w: ingredient %s in recipe of %s", ErrMissingComponent, item.ComponentID, productID)
				}
				return err
			}
			base, err := units.ToBase(item.Quantity*quantity, item.Unit)
			if err != nil {
				return fmt.Errorf("recipe of %s: %w", productID, err)
			}
			acc[ing.ID] += base
		}
	}

	return nil
}

// UnitCost prices one unit of a product: ingredient lines at the
// ingredient's weighted-average display-unit cost, sub-product lines at
// quantity times the sub-product's own unit cost. The result is rounded to
// the smallest monetary unit once, after the whole tree is summed.
func UnitCost(ctx context.Context, cat Catalog, productID string) (int64, error) {
	cost, err := unitCost(ctx, cat, productID, map[string]bool{}, nil)
	if err != nil {
		return 0, err
	}
	return int64(math.Round(cost)), nil
}

func unitCost(ctx context.Context, cat Catalog, productID string, onPath map[string]bool, path []string) (float64, error) {
	if onPath[productID] {
		return 0, fmt.Errorf("%w: %s", ErrCyclicRecipe, strings.Join(append(path, productID), " -> "))
	}

	product, err := cat.GetProduct(ctx, productID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return 0, fmt.Errorf("%w: product %s", ErrMissingComponent, productID)
		}
		return 0, err
	}

	onPath[productID] = true
	path = append(path, productID)
	defer delete(onPath, productID)

	total := 0.0
	for _, item := range product.Recipe {
		switch item.ComponentType {
		case domain.ComponentProduct:
			if item.Unit != "" && item.Unit != domain.UnitCount {
				return 0, fmt.Errorf("%w: %s uses %q in recipe of %s", ErrSubProductUnit, item.ComponentID, item.Unit, productID)
			}
			sub, err := unitCost(ctx, cat, item.ComponentID, onPath, path)
			if err != nil {
				return 0, err
			}
			total += item.Quantity * sub
		default:
			ing, err := cat.GetIngredient(ctx, item.ComponentID)
			if err != nil {
				if errors.Is(err, store.ErrNotFound) {
					return 0, fmt.Errorf("%w: ingredient %s in recipe of %s", ErrMissingComponent, item.ComponentID, productID)
				}
				return 0, err
			}
			// Cost is kept per display unit, so the line quantity has to be
			// expressed in that unit first.
			qtyInDisplay, err := units.Convert(item.Quantity, item.Unit, ing.DisplayUnit)
			if err != nil {
				return 0, fmt.Errorf("recipe of %s, ingredient %s: %w", productID, ing.ID, err)
			}
			total += qtyInDisplay * float64(ing.CostPerDisplayUnit)
		}
	}

	return total, nil
}

// WeightedAverageCost recomputes an ingredient's display-unit cost after
// adding stock at a purchase price: (S0*C0 + dS*Cn) / (S0 + dS), rounded to
// the smallest monetary unit after the formula is applied. A zero resulting
// stock keeps the previous cost.
func WeightedAverageCost(currentDisplayQty float64, currentCost int64, addedDisplayQty float64, purchasePrice int64) int64 {
	total := currentDisplayQty + addedDisplayQty
	if total <= 0 {
		return currentCost
	}
	avg := (currentDisplayQty*float64(currentCost) + addedDisplayQty*float64(purchasePrice)) / total
	return int64(math.Round(avg))
}
