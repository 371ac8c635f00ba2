package num_test

import (
	"errors"
	"testing"

	"clearinghouse/internal/num"
)

func TestMulTruncates(t *testing.T) {
	// 1e-10 * 1e-10 = 1e-20, below the working scale, truncates to zero.
	a := num.MustFromString("0.0000000001")
	if got := a.Mul(a); !got.IsZero() {
		t.Errorf("Mul below scale = %s, want 0", got)
	}

	b := num.MustFromString("1.000000000000000001")
	if got := b.Mul(num.One()); !got.Equal(b) {
		t.Errorf("Mul identity = %s, want %s", got, b)
	}
}

func TestDivTruncatesTowardZero(t *testing.T) {
	cases := []struct {
		a, b, want string
	}{
		{"1", "3", "0.333333333333333333"},
		{"-1", "3", "-0.333333333333333333"},
		{"2", "3", "0.666666666666666666"},
		{"10", "2", "5"},
	}
	for _, tc := range cases {
		a := num.MustFromString(tc.a)
		b := num.MustFromString(tc.b)
		got, err := a.Div(b)
		if err != nil {
			t.Fatalf("Div(%s, %s): %v", tc.a, tc.b, err)
		}
		if got.String() != tc.want {
			t.Errorf("Div(%s, %s) = %s, want %s", tc.a, tc.b, got, tc.want)
		}
	}
}

func TestDivByZero(t *testing.T) {
	_, err := num.One().Div(num.Zero())
	if !errors.Is(err, num.ErrDivisionByZero) {
		t.Errorf("Div by zero error = %v, want ErrDivisionByZero", err)
	}
	_, err = num.UOne().Div(num.UZero())
	if !errors.Is(err, num.ErrDivisionByZero) {
		t.Errorf("UDec Div by zero error = %v, want ErrDivisionByZero", err)
	}
}

func TestUnsignedSubUnderflow(t *testing.T) {
	small := num.MustUFromString("1")
	big := num.MustUFromString("2")

	if _, err := big.Sub(small); err != nil {
		t.Errorf("2 - 1 errored: %v", err)
	}
	if _, err := small.Sub(big); !errors.Is(err, num.ErrNegativeUnsigned) {
		t.Errorf("1 - 2 error = %v, want ErrNegativeUnsigned", err)
	}
}

func TestToUnsigned(t *testing.T) {
	if _, err := num.MustFromString("-1").ToUnsigned(); !errors.Is(err, num.ErrNegativeUnsigned) {
		t.Errorf("negative downcast error = %v, want ErrNegativeUnsigned", err)
	}
	u, err := num.MustFromString("1.5").ToUnsigned()
	if err != nil {
		t.Fatalf("positive downcast: %v", err)
	}
	if u.String() != "1.5" {
		t.Errorf("downcast = %s, want 1.5", u)
	}
}

func TestUFromStringRejectsNegative(t *testing.T) {
	if _, err := num.UFromString("-0.1"); !errors.Is(err, num.ErrNegativeUnsigned) {
		t.Errorf("UFromString(-0.1) error = %v, want ErrNegativeUnsigned", err)
	}
}

func TestAbsAndNeg(t *testing.T) {
	n := num.MustFromString("-3.25")
	if got := n.Abs(); got.String() != "3.25" {
		t.Errorf("Abs = %s, want 3.25", got)
	}
	if got := n.Neg(); got.String() != "3.25" {
		t.Errorf("Neg = %s, want 3.25", got)
	}
}

func TestUnmarshalJSONTruncatesToScale(t *testing.T) {
	// 20 fractional digits in, 18 out: JSON input gets the same scale as
	// FromString.
	var d num.Dec
	if err := d.UnmarshalJSON([]byte(`"0.12345678901234567891"`)); err != nil {
		t.Fatalf("Dec unmarshal: %v", err)
	}
	if got := d.String(); got != "0.123456789012345678" {
		t.Errorf("Dec = %s, want 0.123456789012345678", got)
	}

	var u num.UDec
	if err := u.UnmarshalJSON([]byte(`"1.00000000000000000009"`)); err != nil {
		t.Fatalf("UDec unmarshal: %v", err)
	}
	if !u.Equal(num.UOne()) {
		t.Errorf("UDec = %s, want 1", u)
	}

	if err := u.UnmarshalJSON([]byte(`"-0.5"`)); !errors.Is(err, num.ErrNegativeUnsigned) {
		t.Errorf("negative UDec unmarshal error = %v, want ErrNegativeUnsigned", err)
	}
}

func TestMinMaxU(t *testing.T) {
	a := num.MustUFromString("1")
	b := num.MustUFromString("2")
	if got := num.MinU(a, b); !got.Equal(a) {
		t.Errorf("MinU = %s, want %s", got, a)
	}
	if got := num.MaxU(a, b); !got.Equal(b) {
		t.Errorf("MaxU = %s, want %s", got, b)
	}
}
