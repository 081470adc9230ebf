package domain

import (
	"fmt"

	"github.com/cockroachdb/apd/v3"
)

var decimalCtx = apd.BaseContext.WithPrecision(34)

// Decimal is an exact decimal value with value semantics. Meter totals are
// accumulated with Decimal to avoid drift from repeated float addition.
type Decimal struct {
	value apd.Decimal
}

func NewDecimal(s string) (Decimal, error) {
	var d apd.Decimal
	if _, _, err := d.SetString(s); err != nil {
		return Decimal{}, fmt.Errorf("invalid decimal %q: %w", s, err)
	}
	if d.Form != apd.Finite {
		return Decimal{}, fmt.Errorf("invalid decimal %q: not a finite number", s)
	}
	return Decimal{value: d}, nil
}

func DecimalZero() Decimal {
	var d apd.Decimal
	d.SetInt64(0)
	return Decimal{value: d}
}

func NewDecimalFromInt64(i int64) Decimal {
	var d apd.Decimal
	d.SetInt64(i)
	return Decimal{value: d}
}

func (d Decimal) Add(other Decimal) Decimal {
	var result apd.Decimal
	decimalCtx.Add(&result, &d.value, &other.value)
	return Decimal{value: result}
}

func (d Decimal) Sub(other Decimal) Decimal {
	var result apd.Decimal
	decimalCtx.Sub(&result, &d.value, &other.value)
	return Decimal{value: result}
}

func (d Decimal) Cmp(other Decimal) int {
	return d.value.Cmp(&other.value)
}

func (d Decimal) IsZero() bool {
	return d.value.IsZero()
}

func (d Decimal) IsNegative() bool {
	return d.value.Sign() < 0
}

func (d Decimal) String() string {
	return d.value.String()
}
