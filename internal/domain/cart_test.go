package domain_test

import (
	"errors"
	"math"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/shopcart/internal/domain"
)

func product(id, price string) domain.Product {
	return domain.Product{ID: id, Name: "product " + id, Price: domain.MustMoney(price)}
}

func newCart(t *testing.T) domain.Cart {
	t.Helper()
	cart, err := domain.NewCart("user-1")
	if err != nil {
		t.Fatalf("new cart: %v", err)
	}
	return cart
}

func TestNewCart_RequiresOwner(t *testing.T) {
	for _, owner := range []string{"", "   "} {
		if _, err := domain.NewCart(owner); !errors.Is(err, domain.ErrOwnerRequired) {
			t.Fatalf("owner %q: expected ErrOwnerRequired, got %v", owner, err)
		}
	}
}

func TestNewCart_GeneratesID(t *testing.T) {
	a := newCart(t)
	b := newCart(t)
	if a.ID == "" || a.ID == b.ID {
		t.Fatalf("expected unique non-empty ids, got %q and %q", a.ID, b.ID)
	}
	if len(a.Items()) != 0 {
		t.Fatal("new cart must be empty")
	}
}

func TestCart_AddItemMergesQuantity(t *testing.T) {
	cases := [][2]int{{1, 1}, {2, 3}, {10, 7}, {1, 99}}
	for _, qs := range cases {
		cart := newCart(t)
		p := product("p-1", "10.00")
		if err := cart.AddItem(p, qs[0]); err != nil {
			t.Fatalf("add first: %v", err)
		}
		if err := cart.AddItem(p, qs[1]); err != nil {
			t.Fatalf("add second: %v", err)
		}

		items := cart.Items()
		if len(items) != 1 {
			t.Fatalf("expected exactly one line, got %d", len(items))
		}
		if items[0].Quantity != qs[0]+qs[1] {
			t.Fatalf("expected qty %d, got %d", qs[0]+qs[1], items[0].Quantity)
		}
	}
}

func TestCart_AddItemRejectsNonPositiveQuantity(t *testing.T) {
	cart := newCart(t)
	p := product("p-1", "10.00")
	if err := cart.AddItem(p, 2); err != nil {
		t.Fatalf("seed: %v", err)
	}

	for _, qty := range []int{0, -1} {
		err := cart.AddItem(p, qty)
		if !errors.Is(err, domain.ErrQuantityInvalid) || !domain.IsInvalidArgument(err) {
			t.Fatalf("qty %d: expected invalid argument, got %v", qty, err)
		}
	}

	item, ok := cart.Item("p-1")
	if !ok || item.Quantity != 2 {
		t.Fatalf("cart must be unchanged, got %+v", item)
	}
	if len(cart.Items()) != 1 {
		t.Fatalf("expected 1 line, got %d", len(cart.Items()))
	}
}

func TestCart_AddItemRejectsQuantityOverflow(t *testing.T) {
	cart := newCart(t)
	p := product("p-1", "1.00")
	if err := cart.AddItem(p, 1); err != nil {
		t.Fatalf("seed: %v", err)
	}

	err := cart.AddItem(p, math.MaxInt)
	if !errors.Is(err, domain.ErrQuantityInvalid) || !domain.IsInvalidArgument(err) {
		t.Fatalf("expected invalid quantity, got %v", err)
	}
	if err := cart.AddItem(p, domain.MaxQuantity); !errors.Is(err, domain.ErrQuantityInvalid) {
		t.Fatalf("merged sum above limit must be rejected, got %v", err)
	}

	item, ok := cart.Item("p-1")
	if !ok || item.Quantity != 1 {
		t.Fatalf("line must be unchanged, got %+v (ok=%v)", item, ok)
	}

	if err := cart.AddItem(p, domain.MaxQuantity-1); err != nil {
		t.Fatalf("sum equal to limit must be accepted: %v", err)
	}
	if item, _ := cart.Item("p-1"); item.Quantity != domain.MaxQuantity {
		t.Fatalf("expected %d, got %d", domain.MaxQuantity, item.Quantity)
	}
}

func TestCart_UpdateQuantityRejectsOverflow(t *testing.T) {
	cart := newCart(t)
	_ = cart.AddItem(product("p-1", "1.00"), 5)

	if err := cart.UpdateQuantity("p-1", math.MaxInt); !errors.Is(err, domain.ErrQuantityInvalid) {
		t.Fatalf("expected invalid quantity, got %v", err)
	}
	if item, ok := cart.Item("p-1"); !ok || item.Quantity != 5 {
		t.Fatalf("line must be unchanged, got %+v (ok=%v)", item, ok)
	}

	if err := cart.UpdateQuantity("p-1", math.MinInt); err != nil {
		t.Fatalf("large negative delta removes the line: %v", err)
	}
	if cart.HasItem("p-1") {
		t.Fatal("line must be removed")
	}
}

func TestCart_UpdateQuantity(t *testing.T) {
	t.Run("increase existing", func(t *testing.T) {
		cart := newCart(t)
		_ = cart.AddItem(product("p-1", "1.00"), 2)
		if err := cart.UpdateQuantity("p-1", 3); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		item, _ := cart.Item("p-1")
		if item.Quantity != 5 {
			t.Fatalf("expected 5, got %d", item.Quantity)
		}
	})

	t.Run("missing line is a no-op", func(t *testing.T) {
		cart := newCart(t)
		_ = cart.AddItem(product("p-1", "1.00"), 2)
		if err := cart.UpdateQuantity("p-404", 3); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(cart.Items()) != 1 || cart.HasItem("p-404") {
			t.Fatalf("missing line must not be added, got %+v", cart.Items())
		}
	})

	t.Run("drop to zero removes line", func(t *testing.T) {
		cart := newCart(t)
		_ = cart.AddItem(product("p-1", "1.00"), 2)
		if err := cart.UpdateQuantity("p-1", -2); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cart.HasItem("p-1") {
			t.Fatal("line with zero quantity must be removed")
		}
	})

	t.Run("drop below zero removes line", func(t *testing.T) {
		cart := newCart(t)
		_ = cart.AddItem(product("p-1", "1.00"), 2)
		if err := cart.UpdateQuantity("p-1", -5); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(cart.Items()) != 0 {
			t.Fatalf("expected empty cart, got %+v", cart.Items())
		}
	})
}

func TestCart_RemoveItem(t *testing.T) {
	cart := newCart(t)
	_ = cart.AddItem(product("p-1", "1.00"), 1)
	_ = cart.AddItem(product("p-2", "2.00"), 1)

	cart.RemoveItem("p-404")
	if len(cart.Items()) != 2 {
		t.Fatalf("removing absent line must be a no-op, got %d lines", len(cart.Items()))
	}

	cart.RemoveItem("p-1")
	items := cart.Items()
	if len(items) != 1 || items[0].Product.ID != "p-2" {
		t.Fatalf("expected only p-2 to remain, got %+v", items)
	}
}

func TestCart_ApplyDiscountReplaces(t *testing.T) {
	cart := newCart(t)
	cart.ApplyDiscount(domain.Discount{Code: "A", Value: decimal.NewFromInt(10), Kind: domain.DiscountPercentage})
	cart.ApplyDiscount(domain.Discount{Code: "B", Value: decimal.NewFromInt(5), Kind: domain.DiscountFixedAmount})

	d, ok := cart.Discount()
	if !ok || d.Code != "B" {
		t.Fatalf("expected discount B, got %+v (ok=%v)", d, ok)
	}
}

func TestCart_CalculateTotal(t *testing.T) {
	cases := []struct {
		name     string
		items    []domain.CartItem
		discount *domain.Discount
		want     string
	}{
		{
			name: "empty cart without discount",
			want: "0",
		},
		{
			name: "quantity multiplies unit price",
			items: []domain.CartItem{
				{Product: product("p-1", "99.90"), Quantity: 2},
				{Product: product("p-2", "0.20"), Quantity: 1},
			},
			want: "200.00",
		},
		{
			name:     "percentage 10 of 100",
			items:    []domain.CartItem{{Product: product("p-1", "100.00"), Quantity: 1}},
			discount: &domain.Discount{Code: "P10", Value: decimal.NewFromInt(10), Kind: domain.DiscountPercentage},
			want:     "90.00",
		},
		{
			name:     "fixed 50 of 100",
			items:    []domain.CartItem{{Product: product("p-1", "50.00"), Quantity: 2}},
			discount: &domain.Discount{Code: "F50", Value: decimal.NewFromInt(50), Kind: domain.DiscountFixedAmount},
			want:     "50.00",
		},
		{
			name:     "fixed 50 of 30 floors at zero",
			items:    []domain.CartItem{{Product: product("p-1", "30.00"), Quantity: 1}},
			discount: &domain.Discount{Code: "F50", Value: decimal.NewFromInt(50), Kind: domain.DiscountFixedAmount},
			want:     "0",
		},
		{
			name:     "fixed equal to subtotal",
			items:    []domain.CartItem{{Product: product("p-1", "50.00"), Quantity: 1}},
			discount: &domain.Discount{Code: "F50", Value: decimal.NewFromInt(50), Kind: domain.DiscountFixedAmount},
			want:     "0",
		},
		{
			name:     "unknown kind deducts nothing",
			items:    []domain.CartItem{{Product: product("p-1", "40.00"), Quantity: 1}},
			discount: &domain.Discount{Code: "X", Value: decimal.NewFromInt(10), Kind: domain.DiscountKind("bogo")},
			want:     "40.00",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cart := newCart(t)
			for _, item := range tc.items {
				if err := cart.AddItem(item.Product, item.Quantity); err != nil {
					t.Fatalf("add item: %v", err)
				}
			}
			if tc.discount != nil {
				cart.ApplyDiscount(*tc.discount)
			}

			got := cart.CalculateTotal()
			if !got.Equal(domain.MustMoney(tc.want)) {
				t.Fatalf("expected total %s, got %s", tc.want, got)
			}
			if got.IsNegative() {
				t.Fatal("total must never be negative")
			}
		})
	}
}

func TestCart_DiscountAmountCapped(t *testing.T) {
	cart := newCart(t)
	_ = cart.AddItem(product("p-1", "30.00"), 1)
	cart.ApplyDiscount(domain.Discount{Code: "F50", Value: decimal.NewFromInt(50), Kind: domain.DiscountFixedAmount})

	if !cart.DiscountAmount().Equal(domain.MustMoney("30")) {
		t.Fatalf("expected capped deduction 30, got %s", cart.DiscountAmount())
	}
}

func TestCart_CloneIsIndependent(t *testing.T) {
	cart := newCart(t)
	_ = cart.AddItem(product("p-1", "1.00"), 1)
	cart.ApplyDiscount(domain.Discount{Code: "A", Value: decimal.NewFromInt(1), Kind: domain.DiscountFixedAmount})

	clone := cart.Clone()
	clone.RemoveItem("p-1")
	_ = clone.AddItem(product("p-2", "2.00"), 4)
	clone.ApplyDiscount(domain.Discount{Code: "B", Value: decimal.NewFromInt(2), Kind: domain.DiscountFixedAmount})

	if !cart.HasItem("p-1") || cart.HasItem("p-2") {
		t.Fatalf("original items changed: %+v", cart.Items())
	}
	if d, _ := cart.Discount(); d.Code != "A" {
		t.Fatalf("original discount changed: %+v", d)
	}
}

func TestRestoreCart_Validates(t *testing.T) {
	if _, err := domain.RestoreCart("", "user"); !errors.Is(err, domain.ErrCartIDRequired) {
		t.Fatalf("expected ErrCartIDRequired, got %v", err)
	}
	cart, err := domain.RestoreCart("cart-1", "user")
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if cart.ID != "cart-1" || cart.UserID != "user" {
		t.Fatalf("unexpected cart %+v", cart)
	}
}
