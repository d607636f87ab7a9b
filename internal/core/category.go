package core

import "strings"

// Category is the single authoritative expense category enumeration.
// Codes are stable and stored as-is; names are for display.
type Category string

const (
	CategoryGroceries          Category = "GROCERIES"
	CategoryHouseholdBills     Category = "HOUSEHOLD_BILLS"
	CategoryHouseholdPurchases Category = "HOUSEHOLD_PURCHASES"
	CategoryTravel             Category = "TRAVEL"
	CategoryLeisure            Category = "LEISURE"
	CategoryOther              Category = "OTHER"
)

// Categories lists every category in display order.
var Categories = []Category{
	CategoryGroceries,
	CategoryHouseholdBills,
	CategoryHouseholdPurchases,
	CategoryTravel,
	CategoryLeisure,
	CategoryOther,
}

var categoryNames = map[Category]string{
	CategoryGroceries:          "Groceries",
	CategoryHouseholdBills:     "Household bills",
	CategoryHouseholdPurchases: "Household purchases",
	CategoryTravel:             "Travel",
	CategoryLeisure:            "Leisure",
	CategoryOther:              "Other",
}

// legacyCategories maps free-text names from the old categories table.
var legacyCategories = map[string]Category{
	"supermercado":   CategoryGroceries,
	"comida":         CategoryGroceries,
	"facturas":       CategoryHouseholdBills,
	"facturas hogar": CategoryHouseholdBills,
	"compras hogar":  CategoryHouseholdPurchases,
	"hogar":          CategoryHouseholdPurchases,
	"viajes":         CategoryTravel,
	"viaje":          CategoryTravel,
	"ocio":           CategoryLeisure,
	"otros":          CategoryOther,
	"otro":           CategoryOther,
}

// categoryFunds is the fixed category to fund-kind routing table.
var categoryFunds = map[Category]FundKind{
	CategoryGroceries:          FundGroceries,
	CategoryHouseholdBills:     FundHouseholdBills,
	CategoryHouseholdPurchases: FundHouseholdPurchases,
	CategoryTravel:             FundTravel,
}

// Name returns the display name, or the raw code for unknown values.
func (c Category) Name() string {
	if n, ok := categoryNames[c]; ok {
		return n
	}
	return string(c)
}

func (c Category) Valid() bool {
	_, ok := categoryNames[c]
	return ok
}

// FundKind returns the fund kind expenses of this category are charged to.
func (c Category) FundKind() (FundKind, bool) {
	k, ok := categoryFunds[c]
	return k, ok
}

// ParseCategory accepts a code, a display name or a legacy free-text name,
// case-insensitively.
func ParseCategory(s string) (Category, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", ErrInvalidCategory
	}
	if c := Category(strings.ToUpper(s)); c.Valid() {
		return c, nil
	}
	lower := strings.ToLower(s)
	for c, name := range categoryNames {
		if strings.ToLower(name) == lower {
			return c, nil
		}
	}
	if c, ok := legacyCategories[lower]; ok {
		return c, nil
	}
	return "", ErrInvalidCategory
}
