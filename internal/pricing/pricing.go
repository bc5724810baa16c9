package pricing

import (
	"errors"
	"math/rand"

	"github.com/shopspring/decimal"

	"doc-courier/internal/model"
)

var (
	ErrBelowMinimumQuantity = errors.New("document count below the minimum")
	ErrUnknownServiceType   = errors.New("unknown service type")
)

// Rates is the fixed price table. Document orders are priced per document,
// everything else per order.
type Rates struct {
	Standard     decimal.Decimal
	Express      decimal.Decimal
	SameDay      decimal.Decimal
	PerDocument  decimal.Decimal
	PerLabel     decimal.Decimal
	MinDocuments int

	// Distance fee bounds, inclusive.
	MinDistanceFee decimal.Decimal
	MaxDistanceFee decimal.Decimal
}

func DefaultRates() Rates {
	return Rates{
		Standard:       decimal.NewFromInt(20),
		Express:        decimal.NewFromInt(35),
		SameDay:        decimal.NewFromInt(50),
		PerDocument:    decimal.NewFromInt(16),
		PerLabel:       decimal.NewFromInt(11),
		MinDocuments:   3,
		MinDistanceFee: decimal.NewFromInt(5),
		MaxDistanceFee: decimal.NewFromInt(15),
	}
}

type Request struct {
	Service         model.ServiceType
	DocumentCount   int
	ShippingLabels  int
	PickupAddress   string
	DeliveryAddress string
}

type Breakdown struct {
	BaseCost    decimal.Decimal `json:"base_cost"`
	AddOnCost   decimal.Decimal `json:"add_on_cost"`
	DistanceFee decimal.Decimal `json:"distance_fee"`
	TotalCost   decimal.Decimal `json:"total_cost"`
}

// DistanceFunc prices the leg between two addresses. The fee must be
// non-negative.
type DistanceFunc func(pickup, delivery string) decimal.Decimal

type Calculator struct {
	rates    Rates
	distance DistanceFunc
}

func NewCalculator(rates Rates, distance DistanceFunc) *Calculator {
	c := &Calculator{rates: rates, distance: distance}
	if c.distance == nil {
		c.distance = c.randomDistanceFee
	}
	return c
}

// randomDistanceFee is a placeholder surcharge until real geolocation pricing
// lands: uniform in [MinDistanceFee, MaxDistanceFee].
func (c *Calculator) randomDistanceFee(_, _ string) decimal.Decimal {
	lo, _ := c.rates.MinDistanceFee.Float64()
	hi, _ := c.rates.MaxDistanceFee.Float64()
	return decimal.NewFromFloat(lo + rand.Float64()*(hi-lo)).Round(2)
}

// Quote computes the cost breakdown for a service request. All amounts are
// rounded to 2 decimal places and the total is never negative.
func (c *Calculator) Quote(req Request) (Breakdown, error) {
	var base decimal.Decimal

	switch req.Service {
	case model.ServiceStandard:
		base = c.rates.Standard
	case model.ServiceExpress:
		base = c.rates.Express
	case model.ServiceSameDay:
		base = c.rates.SameDay
	case model.ServiceDocument:
		if req.DocumentCount < c.rates.MinDocuments {
			return Breakdown{}, ErrBelowMinimumQuantity
		}
		base = c.rates.PerDocument.Mul(decimal.NewFromInt(int64(req.DocumentCount)))
	default:
		return Breakdown{}, ErrUnknownServiceType
	}

	addOn := decimal.Zero
	if req.ShippingLabels > 0 {
		addOn = c.rates.PerLabel.Mul(decimal.NewFromInt(int64(req.ShippingLabels)))
	}

	fee := c.distance(req.PickupAddress, req.DeliveryAddress)
	if fee.IsNegative() {
		fee = decimal.Zero
	}

	b := Breakdown{
		BaseCost:    base.Round(2),
		AddOnCost:   addOn.Round(2),
		DistanceFee: fee.Round(2),
	}
	b.TotalCost = b.BaseCost.Add(b.AddOnCost).Add(b.DistanceFee)
	return b, nil
}
