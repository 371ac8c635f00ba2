package num

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Places is the fixed-point scale shared by every monetary and ratio value
// in the engine: 18 fractional digits. Multiply and divide truncate toward
// zero at this scale so repeated derivations stay bit-stable.
const Places int32 = 18

// ErrNegativeUnsigned is returned when an unsigned value would go negative.
var ErrNegativeUnsigned = fmt.Errorf("unsigned decimal would be negative")

// ErrDivisionByZero is returned by Div on a zero divisor.
var ErrDivisionByZero = fmt.Errorf("division by zero")

// Dec is a signed fixed-point decimal.
type Dec struct {
	d decimal.Decimal
}

// UDec is an unsigned fixed-point decimal. The zero value is zero.
// Constructors and operations never let a UDec hold a negative value.
type UDec struct {
	d decimal.Decimal
}

func Zero() Dec   { return Dec{} }
func UZero() UDec { return UDec{} }
func One() Dec    { return Dec{d: decimal.New(1, 0)} }
func UOne() UDec  { return UDec{d: decimal.New(1, 0)} }

func FromInt64(v int64) Dec { return Dec{d: decimal.NewFromInt(v)} }

func UFromInt64(v uint64) UDec { return UDec{d: decimal.NewFromUint64(v)} }

func FromString(s string) (Dec, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Dec{}, err
	}
	return Dec{d: d.Truncate(Places)}, nil
}

func MustFromString(s string) Dec {
	d, err := FromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func UFromString(s string) (UDec, error) {
	d, err := FromString(s)
	if err != nil {
		return UDec{}, err
	}
	return d.ToUnsigned()
}

func MustUFromString(s string) UDec {
	u, err := UFromString(s)
	if err != nil {
		panic(err)
	}
	return u
}

// --- Signed operations ---

func (a Dec) Add(b Dec) Dec { return Dec{d: a.d.Add(b.d)} }
func (a Dec) Sub(b Dec) Dec { return Dec{d: a.d.Sub(b.d)} }
func (a Dec) Neg() Dec      { return Dec{d: a.d.Neg()} }

// Mul multiplies and truncates the product back to the working scale.
func (a Dec) Mul(b Dec) Dec { return Dec{d: a.d.Mul(b.d).Truncate(Places)} }

// Div divides with truncation toward zero at the working scale.
func (a Dec) Div(b Dec) (Dec, error) {
	if b.d.IsZero() {
		return Dec{}, ErrDivisionByZero
	}
	q, _ := a.d.QuoRem(b.d, Places)
	return Dec{d: q}, nil
}

func (a Dec) Abs() UDec              { return UDec{d: a.d.Abs()} }
func (a Dec) IsZero() bool           { return a.d.IsZero() }
func (a Dec) IsNegative() bool       { return a.d.IsNegative() }
func (a Dec) IsPositive() bool       { return a.d.IsPositive() }
func (a Dec) Cmp(b Dec) int          { return a.d.Cmp(b.d) }
func (a Dec) Equal(b Dec) bool       { return a.d.Equal(b.d) }
func (a Dec) GreaterThan(b Dec) bool { return a.d.GreaterThan(b.d) }
func (a Dec) LessThan(b Dec) bool    { return a.d.LessThan(b.d) }

// ToUnsigned down-casts to UDec, failing on a negative value.
func (a Dec) ToUnsigned() (UDec, error) {
	if a.d.IsNegative() {
		return UDec{}, fmt.Errorf("%w: %s", ErrNegativeUnsigned, a.d)
	}
	return UDec{d: a.d}, nil
}

func (a Dec) String() string { return a.d.String() }

// Float64 returns the nearest float64. Lossy; metrics and logs only.
func (a Dec) Float64() float64 {
	f, _ := a.d.Float64()
	return f
}

func (a Dec) MarshalJSON() ([]byte, error) { return a.d.MarshalJSON() }

func (a *Dec) UnmarshalJSON(b []byte) error {
	if err := a.d.UnmarshalJSON(b); err != nil {
		return err
	}
	a.d = a.d.Truncate(Places)
	return nil
}

// --- Unsigned operations ---

func (a UDec) Add(b UDec) UDec { return UDec{d: a.d.Add(b.d)} }

// Sub fails instead of going negative.
func (a UDec) Sub(b UDec) (UDec, error) {
	r := a.d.Sub(b.d)
	if r.IsNegative() {
		return UDec{}, fmt.Errorf("%w: %s - %s", ErrNegativeUnsigned, a.d, b.d)
	}
	return UDec{d: r}, nil
}

func (a UDec) Mul(b UDec) UDec { return UDec{d: a.d.Mul(b.d).Truncate(Places)} }

func (a UDec) Div(b UDec) (UDec, error) {
	if b.d.IsZero() {
		return UDec{}, ErrDivisionByZero
	}
	q, _ := a.d.QuoRem(b.d, Places)
	return UDec{d: q}, nil
}

func (a UDec) IsZero() bool            { return a.d.IsZero() }
func (a UDec) Cmp(b UDec) int          { return a.d.Cmp(b.d) }
func (a UDec) Equal(b UDec) bool       { return a.d.Equal(b.d) }
func (a UDec) GreaterThan(b UDec) bool { return a.d.GreaterThan(b.d) }
func (a UDec) LessThan(b UDec) bool    { return a.d.LessThan(b.d) }

// Dec up-casts to the signed representation. Always safe.
func (a UDec) Dec() Dec { return Dec{d: a.d} }

func (a UDec) String() string { return a.d.String() }

// Float64 returns the nearest float64. Lossy; metrics and logs only.
func (a UDec) Float64() float64 {
	f, _ := a.d.Float64()
	return f
}

func (a UDec) MarshalJSON() ([]byte, error) { return a.d.MarshalJSON() }
func (a *UDec) UnmarshalJSON(b []byte) error {
	if err := a.d.UnmarshalJSON(b); err != nil {
		return err
	}
	if a.d.IsNegative() {
		return fmt.Errorf("%w: %s", ErrNegativeUnsigned, a.d)
	}
	a.d = a.d.Truncate(Places)
	return nil
}

// MinU returns the smaller of two unsigned values.
func MinU(a, b UDec) UDec {
	if a.LessThan(b) {
		return a
	}
	return b
}

// MaxU returns the larger of two unsigned values.
func MaxU(a, b UDec) UDec {
	if a.GreaterThan(b) {
		return a
	}
	return b
}
