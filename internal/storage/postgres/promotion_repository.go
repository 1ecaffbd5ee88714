package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

const promotionColumns = `
	id, code, name, kind, value, min_order_minor, max_discount_minor,
	usage_limit, used_count, per_customer_limit, customer_tier, scope,
	category_ids, product_ids, starts_at, ends_at, active, created_at, updated_at`

type promotionRepository struct {
	q queryer
}

func (r *promotionRepository) Create(ctx context.Context, promotion domain.Promotion) error {
	categories, err := json.Marshal(nonNilStrings(promotion.CategoryIDs))
	if err != nil {
		return errors.Wrap(err, "marshal promotion categories")
	}
	products, err := json.Marshal(nonNilStrings(promotion.ProductIDs))
	if err != nil {
		return errors.Wrap(err, "marshal promotion products")
	}

	now := time.Now().UTC()
	if promotion.CreatedAt.IsZero() {
		promotion.CreatedAt = now
	}
	if promotion.UpdatedAt.IsZero() {
		promotion.UpdatedAt = now
	}
	code := domain.NormalizeCode(promotion.Code)

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	_, err = r.q.ExecContext(ctx, `
		INSERT INTO promotions (`+promotionColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)
	`,
		promotion.ID, code, promotion.Name, string(promotion.Kind), promotion.Value,
		promotion.MinOrderMinor, promotion.MaxDiscountMinor,
		promotion.UsageLimit, promotion.UsedCount, promotion.PerCustomerLimit,
		string(promotion.CustomerTier), string(promotion.Scope),
		categories, products,
		nullTime(promotion.StartsAt), nullTime(promotion.EndsAt),
		promotion.Active, promotion.CreatedAt.UTC(), promotion.UpdatedAt.UTC(),
	)
	if isUniqueViolation(err) {
		return errors.Wrapf(domain.ErrDuplicate, "promotion %s (%s)", promotion.ID, code)
	}
	if err != nil {
		return errors.Wrap(err, "insert promotion")
	}
	return nil
}

func (r *promotionRepository) Get(ctx context.Context, id string) (domain.Promotion, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	promotion, err := scanPromotion(r.q.QueryRowContext(ctx,
		`SELECT `+promotionColumns+` FROM promotions WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Promotion{}, errors.Wrapf(domain.ErrPromotionNotFound, "promotion %s", id)
	}
	if err != nil {
		return domain.Promotion{}, errors.Wrap(err, "get promotion")
	}
	return promotion, nil
}

func (r *promotionRepository) GetByCode(ctx context.Context, code string) (domain.Promotion, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	promotion, err := scanPromotion(r.q.QueryRowContext(ctx,
		`SELECT `+promotionColumns+` FROM promotions WHERE code = $1`, domain.NormalizeCode(code)))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Promotion{}, errors.Wrapf(domain.ErrPromotionNotFound, "promotion code %q", code)
	}
	if err != nil {
		return domain.Promotion{}, errors.Wrap(err, "get promotion by code")
	}
	return promotion, nil
}

// IncrementUsage резервирует одно применение условным UPDATE; строка промокода остаётся
// заблокированной до конца транзакции, поэтому конкурентные checkout-ы проверяют лимиты по очереди.
func (r *promotionRepository) IncrementUsage(ctx context.Context, id string) (domain.Promotion, error) {
	queryCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	promotion, err := scanPromotion(r.q.QueryRowContext(queryCtx, `
		UPDATE promotions
		SET used_count = used_count + 1,
		    updated_at = $2
		WHERE id = $1
		  AND (usage_limit = 0 OR used_count < usage_limit)
		RETURNING `+promotionColumns, id, time.Now().UTC()))
	if err == nil {
		return promotion, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return domain.Promotion{}, errors.Wrap(err, "increment promotion usage")
	}

	current, getErr := r.Get(ctx, id)
	if getErr != nil {
		return domain.Promotion{}, getErr
	}
	return current, domain.Reject(domain.ErrGlobalLimitReached,
		"promotion %s used %d of %d", current.Code, current.UsedCount, current.UsageLimit)
}

func (r *promotionRepository) DecrementUsage(ctx context.Context, id string) error {
	queryCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.q.ExecContext(queryCtx, `
		UPDATE promotions
		SET used_count = used_count - 1,
		    updated_at = $2
		WHERE id = $1
		  AND used_count > 0
	`, id, time.Now().UTC())
	if err != nil {
		return errors.Wrap(err, "decrement promotion usage")
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "rows affected for promotion")
	}
	if affected > 0 {
		return nil
	}

	// Счётчик уже нулевой: ошибка только если промокода нет совсем.
	_, err = r.Get(ctx, id)
	return err
}

func (r *promotionRepository) CountUsages(ctx context.Context, promotionID, customerID string) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var count int64
	if err := r.q.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM promotion_usages
		WHERE promotion_id = $1
		  AND customer_id = $2
		  AND voided_at IS NULL
	`, promotionID, customerID).Scan(&count); err != nil {
		return 0, errors.Wrap(err, "count promotion usages")
	}
	return count, nil
}

func (r *promotionRepository) AddUsage(ctx context.Context, usage domain.PromotionUsage) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	_, err := r.q.ExecContext(ctx, `
		INSERT INTO promotion_usages (id, promotion_id, customer_id, order_id, discount_minor, used_at, voided_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`,
		usage.ID, usage.PromotionID, usage.CustomerID, usage.OrderID,
		usage.DiscountMinor, usage.UsedAt.UTC(), nullTime(usage.VoidedAt),
	)
	if isUniqueViolation(err) {
		return errors.Wrapf(domain.ErrDuplicate, "promotion usage %s", usage.ID)
	}
	if err != nil {
		return errors.Wrap(err, "insert promotion usage")
	}
	return nil
}

func (r *promotionRepository) ListUsagesByOrder(ctx context.Context, orderID string) ([]domain.PromotionUsage, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	rows, err := r.q.QueryContext(ctx, `
		SELECT id, promotion_id, customer_id, order_id, discount_minor, used_at, voided_at
		FROM promotion_usages
		WHERE order_id = $1
		ORDER BY used_at, id
	`, orderID)
	if err != nil {
		return nil, errors.Wrap(err, "list promotion usages")
	}
	defer rows.Close()

	result := make([]domain.PromotionUsage, 0)
	for rows.Next() {
		var (
			usage  domain.PromotionUsage
			voided sql.NullTime
		)
		if err := rows.Scan(
			&usage.ID, &usage.PromotionID, &usage.CustomerID, &usage.OrderID,
			&usage.DiscountMinor, &usage.UsedAt, &voided,
		); err != nil {
			return nil, errors.Wrap(err, "scan promotion usage")
		}
		usage.UsedAt = usage.UsedAt.UTC()
		usage.VoidedAt = timePtr(voided)
		result = append(result, usage)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate promotion usages")
	}
	return result, nil
}

func (r *promotionRepository) VoidUsage(ctx context.Context, usageID string, at time.Time) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.q.ExecContext(ctx, `
		UPDATE promotion_usages
		SET voided_at = $2
		WHERE id = $1
		  AND voided_at IS NULL
	`, usageID, at.UTC())
	if err != nil {
		return false, errors.Wrap(err, "void promotion usage")
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "rows affected for promotion usage")
	}
	if affected > 0 {
		return true, nil
	}

	var id string
	err = r.q.QueryRowContext(ctx, `SELECT id FROM promotion_usages WHERE id = $1`, usageID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return false, errors.Wrapf(domain.ErrPromotionNotFound, "promotion usage %s", usageID)
	}
	if err != nil {
		return false, errors.Wrap(err, "check promotion usage exists")
	}
	return false, nil
}

func scanPromotion(row *sql.Row) (domain.Promotion, error) {
	var (
		p                    domain.Promotion
		kind, tier, scope    string
		categories, products []byte
		startsAt, endsAt     sql.NullTime
	)
	if err := row.Scan(
		&p.ID, &p.Code, &p.Name, &kind, &p.Value, &p.MinOrderMinor, &p.MaxDiscountMinor,
		&p.UsageLimit, &p.UsedCount, &p.PerCustomerLimit, &tier, &scope,
		&categories, &products, &startsAt, &endsAt, &p.Active, &p.CreatedAt, &p.UpdatedAt,
	); err != nil {
		return domain.Promotion{}, err
	}

	if err := json.Unmarshal(categories, &p.CategoryIDs); err != nil {
		return domain.Promotion{}, errors.Wrap(err, "decode promotion categories")
	}
	if err := json.Unmarshal(products, &p.ProductIDs); err != nil {
		return domain.Promotion{}, errors.Wrap(err, "decode promotion products")
	}
	p.Kind = domain.DiscountKind(kind)
	p.CustomerTier = domain.Tier(tier)
	p.Scope = domain.PromotionScope(scope)
	p.StartsAt = timePtr(startsAt)
	p.EndsAt = timePtr(endsAt)
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	return p, nil
}

func nonNilStrings(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

var _ domain.PromotionRepository = (*promotionRepository)(nil)
