package memory

import (
	"context"
	"sort"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

type promotionRepo struct {
	tx *memTx
}

func (r *promotionRepo) Create(_ context.Context, promotion domain.Promotion) error {
	if err := r.tx.writable(); err != nil {
		return err
	}
	code := domain.NormalizeCode(promotion.Code)
	if _, exists := r.tx.s.promoCodes[code]; exists {
		return errors.Wrapf(domain.ErrDuplicate, "promotion code %s", code)
	}
	if _, exists := r.tx.s.promotions[promotion.ID]; exists {
		return errors.Wrapf(domain.ErrDuplicate, "promotion %s", promotion.ID)
	}
	promotion.Code = code
	put(r.tx, r.tx.s.promotions, promotion.ID, clonePromotion(promotion))
	put(r.tx, r.tx.s.promoCodes, code, promotion.ID)
	return nil
}

func (r *promotionRepo) Get(_ context.Context, id string) (domain.Promotion, error) {
	promotion, ok := r.tx.s.promotions[id]
	if !ok {
		return domain.Promotion{}, errors.Wrapf(domain.ErrPromotionNotFound, "promotion %s", id)
	}
	return clonePromotion(promotion), nil
}

func (r *promotionRepo) GetByCode(ctx context.Context, code string) (domain.Promotion, error) {
	id, ok := r.tx.s.promoCodes[domain.NormalizeCode(code)]
	if !ok {
		return domain.Promotion{}, errors.Wrapf(domain.ErrPromotionNotFound, "promotion code %q", code)
	}
	return r.Get(ctx, id)
}

func (r *promotionRepo) IncrementUsage(_ context.Context, id string) (domain.Promotion, error) {
	if err := r.tx.writable(); err != nil {
		return domain.Promotion{}, err
	}
	promotion, ok := r.tx.s.promotions[id]
	if !ok {
		return domain.Promotion{}, errors.Wrapf(domain.ErrPromotionNotFound, "promotion %s", id)
	}
	if promotion.UsageLimit > 0 && promotion.UsedCount >= promotion.UsageLimit {
		return clonePromotion(promotion), domain.Reject(domain.ErrGlobalLimitReached,
			"promotion %s used %d of %d", promotion.Code, promotion.UsedCount, promotion.UsageLimit)
	}
	promotion.UsedCount++
	promotion.UpdatedAt = time.Now().UTC()
	put(r.tx, r.tx.s.promotions, id, promotion)
	return clonePromotion(promotion), nil
}

func (r *promotionRepo) DecrementUsage(_ context.Context, id string) error {
	if err := r.tx.writable(); err != nil {
		return err
	}
	promotion, ok := r.tx.s.promotions[id]
	if !ok {
		return errors.Wrapf(domain.ErrPromotionNotFound, "promotion %s", id)
	}
	if promotion.UsedCount == 0 {
		return nil
	}
	promotion.UsedCount--
	promotion.UpdatedAt = time.Now().UTC()
	put(r.tx, r.tx.s.promotions, id, promotion)
	return nil
}

func (r *promotionRepo) CountUsages(_ context.Context, promotionID, customerID string) (int64, error) {
	var count int64
	for _, usage := range r.tx.s.usages {
		if usage.PromotionID == promotionID && usage.CustomerID == customerID && usage.VoidedAt == nil {
			count++
		}
	}
	return count, nil
}

func (r *promotionRepo) AddUsage(_ context.Context, usage domain.PromotionUsage) error {
	if err := r.tx.writable(); err != nil {
		return err
	}
	if _, exists := r.tx.s.usages[usage.ID]; exists {
		return errors.Wrapf(domain.ErrDuplicate, "promotion usage %s", usage.ID)
	}
	put(r.tx, r.tx.s.usages, usage.ID, usage)
	return nil
}

func (r *promotionRepo) ListUsagesByOrder(_ context.Context, orderID string) ([]domain.PromotionUsage, error) {
	result := make([]domain.PromotionUsage, 0)
	for _, usage := range r.tx.s.usages {
		if usage.OrderID == orderID {
			usage.VoidedAt = cloneTime(usage.VoidedAt)
			result = append(result, usage)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].UsedAt.Before(result[j].UsedAt)
	})
	return result, nil
}

func (r *promotionRepo) VoidUsage(_ context.Context, usageID string, at time.Time) (bool, error) {
	if err := r.tx.writable(); err != nil {
		return false, err
	}
	usage, ok := r.tx.s.usages[usageID]
	if !ok {
		return false, errors.Wrapf(domain.ErrPromotionNotFound, "promotion usage %s", usageID)
	}
	if usage.VoidedAt != nil {
		return false, nil
	}
	voided := at
	usage.VoidedAt = &voided
	put(r.tx, r.tx.s.usages, usageID, usage)
	return true, nil
}

func clonePromotion(p domain.Promotion) domain.Promotion {
	p.CategoryIDs = append([]string(nil), p.CategoryIDs...)
	p.ProductIDs = append([]string(nil), p.ProductIDs...)
	p.StartsAt = cloneTime(p.StartsAt)
	p.EndsAt = cloneTime(p.EndsAt)
	return p
}

var _ domain.PromotionRepository = (*promotionRepo)(nil)
