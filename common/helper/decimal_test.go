package helper

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestTrimDecimal(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"123.4", "123.40"},
		{"0", "0.00"},
		{"10.005", "10.01"}, // 四舍五入
		{"10.004", "10.00"},
		{"-1.005", "-1.01"},
	}
	for _, c := range cases {
		d, err := decimal.NewFromString(c.in)
		if err != nil {
			t.Fatalf("bad case input %q: %v", c.in, err)
		}
		if got := TrimDecimal(d); got != c.want {
			t.Fatalf("TrimDecimal(%s) = %s, want %s", c.in, got, c.want)
		}
	}
}

func TestBankFixed(t *testing.T) {
	// 半数位向偶数舍入
	cases := []struct {
		in   string
		want string
	}{
		{"0.005", "0.00"},
		{"0.015", "0.02"},
		{"0.025", "0.02"},
		{"0.035", "0.04"},
		{"1.005", "1.00"},
		{"2.675", "2.68"},
		{"100", "100.00"},
	}
	for _, c := range cases {
		d, err := decimal.NewFromString(c.in)
		if err != nil {
			t.Fatalf("bad case input %q: %v", c.in, err)
		}
		if got := BankFixed(d); got != c.want {
			t.Fatalf("BankFixed(%s) = %s, want %s", c.in, got, c.want)
		}
	}
}
