package types

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
)

func TestMoneyArithmetic(t *testing.T) {
	tests := []struct {
		name     string
		op       func() Money
		expected Money
	}{
		{"Add", func() Money { return Cents(100).Add(Cents(200)) }, Cents(300)},
		{"Subtract", func() Money { return Cents(500).Subtract(Cents(200)) }, Cents(300)},
		{"Negate", func() Money { return Cents(100).Negate() }, Cents(-100)},
		{"Abs positive", func() Money { return Cents(100).Abs() }, Cents(100)},
		{"Abs negative", func() Money { return Cents(-100).Abs() }, Cents(100)},
		{"Sum", func() Money { return Sum(Cents(1), Cents(2), Cents(-3), Cents(10)) }, Cents(10)},
		{"Sum empty", func() Money { return Sum() }, Zero()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.op(); !got.Equal(tt.expected) {
				t.Errorf("got %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestMoneyPercent(t *testing.T) {
	tests := []struct {
		name   string
		amount Money
		pct    string
		want   int64
	}{
		{"even split", Cents(1000), "40", 400},
		{"thirty three percent of ten", Cents(1000), "33", 330},
		{"thirty four percent of ten", Cents(1000), "34", 340},
		{"rounds half away from zero", Cents(5), "50", 3},
		{"fractional percent", Cents(10000), "12.5", 1250},
		{"zero percent", Cents(10000), "0", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.amount.Percent(decimal.RequireFromString(tt.pct))
			if got.Amount != tt.want {
				t.Errorf("Percent(%s) of %v = %d cents, want %d", tt.pct, tt.amount, got.Amount, tt.want)
			}
		})
	}
}

func TestParseMoney(t *testing.T) {
	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{"12.50", 1250, false},
		{" 3 ", 300, false},
		{"-0.07", -7, false},
		{"1.005", 101, false},
		{"abc", 0, true},
		{"", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseMoney(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseMoney(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if err == nil && got.Amount != tt.want {
				t.Errorf("ParseMoney(%q) = %d, want %d", tt.in, got.Amount, tt.want)
			}
		})
	}
}

func TestMoneyFormatting(t *testing.T) {
	tests := []struct {
		money Money
		major string
		str   string
	}{
		{Cents(4900), "49.00", "$49.00"},
		{Cents(5), "0.05", "$0.05"},
		{Cents(-310), "-3.10", "-$3.10"},
		{Zero(), "0.00", "$0.00"},
	}

	for _, tt := range tests {
		t.Run(tt.str, func(t *testing.T) {
			if got := tt.money.FormatMajor(); got != tt.major {
				t.Errorf("FormatMajor() = %q, want %q", got, tt.major)
			}
			if got := tt.money.String(); got != tt.str {
				t.Errorf("String() = %q, want %q", got, tt.str)
			}
		})
	}
}

func TestMoneyJSON(t *testing.T) {
	data, err := json.Marshal(Cents(1234))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `{"amount":1234,"display":"$12.34"}` {
		t.Errorf("unexpected JSON: %s", data)
	}

	inputs := map[string]int64{
		`{"amount":1234,"display":"$12.34"}`: 1234,
		`250`:                                 250,
		`"7.25"`:                              725,
	}
	for in, want := range inputs {
		var m Money
		if err := json.Unmarshal([]byte(in), &m); err != nil {
			t.Fatalf("unmarshal %s: %v", in, err)
		}
		if m.Amount != want {
			t.Errorf("unmarshal %s = %d, want %d", in, m.Amount, want)
		}
	}
}

func TestFromDecimal(t *testing.T) {
	// 55.55 at 2.5% a year: 55.55 * 2.5 / 100 / 12 = 0.11572916...
	d := decimal.RequireFromString("55.55").
		Mul(decimal.RequireFromString("2.5")).
		Div(decimal.NewFromInt(100)).
		Div(decimal.NewFromInt(12))
	if got := FromDecimal(d); got.Amount != 12 {
		t.Errorf("FromDecimal(%s) = %d, want 12", d, got.Amount)
	}
}
