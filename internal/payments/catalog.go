package payments

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Package is a purchasable bundle of credits.
type Package struct {
	Code    string
	Credits int64
	Price   decimal.Decimal
}

// Label is the button text shown in the top-up menu.
func (p Package) Label() string {
	return fmt.Sprintf("%d ген. — %s₽", p.Credits, p.Price.StringFixedBank(0))
}

var packages = []Package{
	{Code: "pay_10_149", Credits: 10, Price: decimal.NewFromInt(149)},
	{Code: "pay_25_375", Credits: 25, Price: decimal.NewFromInt(375)},
	{Code: "pay_45_675", Credits: 45, Price: decimal.NewFromInt(675)},
	{Code: "pay_60_900", Credits: 60, Price: decimal.NewFromInt(900)},
}

// Packages returns the top-up menu in display order.
func Packages() []Package {
	out := make([]Package, len(packages))
	copy(out, packages)
	return out
}

func PackageByCode(code string) (Package, bool) {
	for _, p := range packages {
		if p.Code == code {
			return p, true
		}
	}
	return Package{}, false
}

func PackageForCredits(credits int64) (Package, bool) {
	for _, p := range packages {
		if p.Credits == credits {
			return p, true
		}
	}
	return Package{}, false
}

// LinkBuilder renders payment form links whose order id encodes the user and
// the credits to grant.
type LinkBuilder struct {
	baseURL string
}

func NewLinkBuilder(baseURL string) LinkBuilder {
	return LinkBuilder{baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/")}
}

func (b LinkBuilder) Link(userID int64, pkg Package) string {
	params := url.Values{}
	params.Set("do", "pay")
	params.Set("order_id", OrderReference(userID, pkg.Credits))
	params.Set("products[0][name]", fmt.Sprintf("Пакет %d генераций", pkg.Credits))
	params.Set("products[0][price]", pkg.Price.String())
	params.Set("products[0][quantity]", "1")
	params.Set("sys", "telegram_bot")
	return b.baseURL + "/?" + params.Encode()
}

// OrderReference encodes a user and credit amount as "<user>_<amount>".
func OrderReference(userID, credits int64) string {
	return strconv.FormatInt(userID, 10) + "_" + strconv.FormatInt(credits, 10)
}

// ParseOrderReference decodes "<user>_<amount>". Trailing segments are ignored.
func ParseOrderReference(ref string) (int64, int64, error) {
	parts := strings.Split(strings.TrimSpace(ref), "_")
	if len(parts) < 2 {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidOrderReference, ref)
	}
	userID, err := strconv.ParseInt(strings.TrimSpace(parts[0]), 10, 64)
	if err != nil || userID <= 0 {
		return 0, 0, fmt.Errorf("%w: bad user id in %q", ErrInvalidOrderReference, ref)
	}
	amount, err := strconv.ParseInt(strings.TrimSpace(parts[1]), 10, 64)
	if err != nil || amount <= 0 {
		return 0, 0, fmt.Errorf("%w: bad amount in %q", ErrInvalidOrderReference, ref)
	}
	return userID, amount, nil
}
