package helper

import "testing"

func TestGenerateRandNum(t *testing.T) {
	for i := 0; i < 1000; i++ {
		n := GenerateRandNum(10, 20)
		if n < 10 || n >= 20 {
			t.Fatalf("out of range: %d", n)
		}
	}
	// 区间退化时返回下界
	if n := GenerateRandNum(5, 5); n != 5 {
		t.Fatalf("min==max should return min, got %d", n)
	}
	if n := GenerateRandNum(9, 3); n != 9 {
		t.Fatalf("max<min should return min, got %d", n)
	}
}
