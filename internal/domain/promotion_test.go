package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func validPromotion() Promotion {
	return Promotion{
		ID:    "promo-1",
		Code:  "SALE10",
		Kind:  DiscountPercentage,
		Value: decimal.NewFromInt(10),
		Scope: ScopeAll,
	}
}

func TestPromotion_Validate(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(-time.Hour)

	tests := []struct {
		name    string
		mut     func(p *Promotion)
		wantErr bool
	}{
		{name: "valid", mut: func(*Promotion) {}},
		{name: "lowercase code", mut: func(p *Promotion) { p.Code = "sale10" }, wantErr: true},
		{name: "percentage above 100", mut: func(p *Promotion) { p.Value = decimal.NewFromInt(101) }, wantErr: true},
		{name: "fractional fixed amount", mut: func(p *Promotion) {
			p.Kind = DiscountFixedAmount
			p.Value = decimal.RequireFromString("10.5")
		}, wantErr: true},
		{name: "free shipping ignores value", mut: func(p *Promotion) {
			p.Kind = DiscountFreeShipping
			p.Value = decimal.Zero
		}},
		{name: "used above limit", mut: func(p *Promotion) {
			p.UsageLimit = 1
			p.UsedCount = 2
		}, wantErr: true},
		{name: "window inverted", mut: func(p *Promotion) {
			p.StartsAt = &start
			p.EndsAt = &end
		}, wantErr: true},
		{name: "category scope without categories", mut: func(p *Promotion) { p.Scope = ScopeCategories }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := validPromotion()
			tt.mut(&p)
			errs := p.Validate()
			if tt.wantErr && len(errs) == 0 {
				t.Fatal("expected validation errors, got none")
			}
			if !tt.wantErr && len(errs) > 0 {
				t.Fatalf("expected no errors, got %v", errs)
			}
		})
	}
}

func TestPromotion_Covers(t *testing.T) {
	p := validPromotion()
	if !p.Covers("any", "") {
		t.Error("scope all should cover every product")
	}

	p.Scope = ScopeCategories
	p.CategoryIDs = []string{"shoes"}
	if !p.Covers("p-1", "shoes") || p.Covers("p-2", "hats") {
		t.Error("category scope mismatch")
	}

	p.Scope = ScopeProducts
	p.ProductIDs = []string{"p-9"}
	if !p.Covers("p-9", "hats") || p.Covers("p-1", "shoes") {
		t.Error("product scope mismatch")
	}
}

func TestNormalizeCode(t *testing.T) {
	if got := NormalizeCode("  sale10 "); got != "SALE10" {
		t.Fatalf("NormalizeCode() = %q", got)
	}
}
