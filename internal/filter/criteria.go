package filter

import (
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/opensource-finance/riskview/internal/domain"
)

// Query parameter names understood by ParseCriteria.
const (
	ParamDateFrom    = "dateFrom"
	ParamDateTo      = "dateTo"
	ParamMinAmount   = "minAmount"
	ParamMaxAmount   = "maxAmount"
	ParamFraudStatus = "fraudStatus"
	ParamDevice      = "deviceModel"
	ParamCustomerID  = "customerId"
	ParamSortBy      = "sortBy"
	ParamExpression  = "expr"
)

// ParseCriteria builds criteria from raw view parameters. It never fails:
// a bound that cannot be parsed is left unset and logged at debug level.
// Date-only bounds resolve to midnight in loc.
func ParseCriteria(values url.Values, loc *time.Location) domain.FilterCriteria {
	if loc == nil {
		loc = time.Local
	}

	c := domain.FilterCriteria{
		FraudStatus: domain.FraudStatus(strings.ToLower(strings.TrimSpace(values.Get(ParamFraudStatus)))),
		Device:      strings.TrimSpace(values.Get(ParamDevice)),
		CustomerID:  strings.TrimSpace(values.Get(ParamCustomerID)),
		SortBy:      domain.SortKey(strings.ToLower(strings.TrimSpace(values.Get(ParamSortBy)))),
		Expression:  strings.TrimSpace(values.Get(ParamExpression)),
	}
	c.FraudStatus = c.NormalizedFraudStatus()
	c.SortBy = c.NormalizedSortKey()

	c.DateFrom = parseTime(values, ParamDateFrom, loc)
	c.DateTo = parseTime(values, ParamDateTo, loc)
	c.MinAmount = parseAmount(values, ParamMinAmount)
	c.MaxAmount = parseAmount(values, ParamMaxAmount)

	return c
}

// Encode writes criteria back into query parameters, omitting unset predicates.
func Encode(c domain.FilterCriteria) url.Values {
	v := url.Values{}
	if c.DateFrom != nil {
		v.Set(ParamDateFrom, c.DateFrom.Format(time.RFC3339))
	}
	if c.DateTo != nil {
		v.Set(ParamDateTo, c.DateTo.Format(time.RFC3339))
	}
	if c.MinAmount != nil {
		v.Set(ParamMinAmount, c.MinAmount.String())
	}
	if c.MaxAmount != nil {
		v.Set(ParamMaxAmount, c.MaxAmount.String())
	}
	if s := c.NormalizedFraudStatus(); s != domain.FraudStatusAll {
		v.Set(ParamFraudStatus, string(s))
	}
	if c.Device != "" {
		v.Set(ParamDevice, c.Device)
	}
	if c.CustomerID != "" {
		v.Set(ParamCustomerID, c.CustomerID)
	}
	if k := c.NormalizedSortKey(); k != domain.SortByDate {
		v.Set(ParamSortBy, string(k))
	}
	if c.Expression != "" {
		v.Set(ParamExpression, c.Expression)
	}
	return v
}

func parseTime(values url.Values, key string, loc *time.Location) *time.Time {
	raw := strings.TrimSpace(values.Get(key))
	if raw == "" {
		return nil
	}
	t, err := domain.ParseTimestamp(raw, loc)
	if err != nil {
		slog.Debug("ignoring malformed date bound", "param", key, "value", raw, "error", err)
		return nil
	}
	return &t
}

func parseAmount(values url.Values, key string) *decimal.Decimal {
	raw := strings.TrimSpace(values.Get(key))
	if raw == "" {
		return nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		slog.Debug("ignoring malformed amount bound", "param", key, "value", raw, "error", err)
		return nil
	}
	return &d
}
