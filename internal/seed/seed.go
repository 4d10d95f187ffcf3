// Package seed holds the demo branch used by the seeder and by the server
// when it runs on the in-memory store.
package seed

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode"

	"github.com/dumu-tech/cafe-orders/internal/core"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MenuItem is one catalog entry in MenuData
type MenuItem struct {
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	Category string          `json:"category"`
}

// MenuData holds the catalog to be seeded
var MenuData = []byte(`[
  { "name": "Espresso", "price": 150, "category": "Coffee" },
  { "name": "Americano", "price": 180, "category": "Coffee" },
  { "name": "Cappuccino", "price": 250, "category": "Coffee" },
  { "name": "Cafe Latte", "price": 250, "category": "Coffee" },
  { "name": "Flat White", "price": 280, "category": "Coffee" },
  { "name": "Mocha", "price": 300, "category": "Coffee" },
  { "name": "Iced Latte", "price": 300, "category": "Cold Drinks" },
  { "name": "Fresh Passion Juice", "price": 200, "category": "Cold Drinks" },
  { "name": "Mango Smoothie", "price": 350, "category": "Cold Drinks" },
  { "name": "Kenyan Chai", "price": 120, "category": "Tea" },
  { "name": "Masala Chai", "price": 150, "category": "Tea" },
  { "name": "Dawa", "price": 200, "category": "Tea" },
  { "name": "Mandazi (2 pcs)", "price": 80, "category": "Bakery" },
  { "name": "Blueberry Muffin", "price": 220, "category": "Bakery" },
  { "name": "Croissant", "price": 200, "category": "Bakery" },
  { "name": "Samosa (Beef)", "price": 100, "category": "Snacks" },
  { "name": "Chicken Wrap", "price": 550, "category": "Meals" },
  { "name": "Full Breakfast", "price": 750, "category": "Meals" }
]`)

// StaffMember is a seeded staff account with its plain PIN
type StaffMember struct {
	Name  string
	Phone string
	Role  string
	PIN   string
}

// DefaultStaff are the accounts created for a fresh branch
var DefaultStaff = []StaffMember{
	{Name: "Branch Manager", Phone: "254700000001", Role: core.StaffRoleManager, PIN: "1234"},
	{Name: "Front Cashier", Phone: "254700000002", Role: core.StaffRoleCashier, PIN: "2345"},
	{Name: "Floor Waiter", Phone: "254700000003", Role: core.StaffRoleWaiter, PIN: "3456"},
}

// Catalog parses MenuData into catalog items. IDs are derived from names
// so reseeding updates rather than duplicates.
func Catalog(branchID string) ([]*core.CatalogItem, error) {
	var menu []MenuItem
	if err := json.Unmarshal(MenuData, &menu); err != nil {
		return nil, fmt.Errorf("failed to parse menu data: %w", err)
	}

	items := make([]*core.CatalogItem, 0, len(menu))
	for _, m := range menu {
		items = append(items, &core.CatalogItem{
			ID:          slug(m.Name),
			BranchID:    branchID,
			Name:        m.Name,
			Category:    m.Category,
			Price:       m.Price,
			IsAvailable: true,
		})
	}
	return items, nil
}

// Tables returns n empty tables numbered T1..Tn
func Tables(branchID string, n int) []*core.Table {
	out := make([]*core.Table, 0, n)
	for i := 1; i <= n; i++ {
		capacity := 4
		if i%3 == 0 {
			capacity = 6
		}
		out = append(out, &core.Table{
			ID:       fmt.Sprintf("%s-t%d", branchID, i),
			BranchID: branchID,
			Number:   fmt.Sprintf("T%d", i),
			Capacity: capacity,
			Status:   core.TableStatusAvailable,
		})
	}
	return out
}

// Coupons returns the launch promotions
func Coupons() []*core.Coupon {
	return []*core.Coupon{
		{Code: "WELCOME10", Type: core.CouponTypePercentage, Value: decimal.NewFromInt(10), MaxDiscount: decimal.NewFromInt(200), IsActive: true},
		{Code: "FLAT50", Type: core.CouponTypeFlat, Value: decimal.NewFromInt(50), MinOrderAmount: decimal.NewFromInt(500), IsActive: true},
		{Code: "CHAI3FOR2", Type: core.CouponTypeBuyXGetY, BuyQuantity: 2, GetQuantity: 1, CatalogItemID: slug("Kenyan Chai"), IsActive: true},
		{Code: "BAKERY15", Type: core.CouponTypeCategoryPercentage, Value: decimal.NewFromInt(15), Category: "Bakery", IsActive: true},
	}
}

// StaffID derives a stable staff ID from branch and phone number
func StaffID(branchID, phone string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(branchID+"/"+phone)).String()
}

func slug(name string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(name) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
