package helper

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestCtypeDigitAndAlnum(t *testing.T) {
	if !CtypeDigit("0123456789") {
		t.Fatalf("digits should pass")
	}
	for _, s := range []string{"", "12a", "-1", "1.5", " 1"} {
		if CtypeDigit(s) {
			t.Fatalf("CtypeDigit(%q) should fail", s)
		}
	}

	if !CtypeAlnum("abc123XYZ") {
		t.Fatalf("alnum should pass")
	}
	for _, s := range []string{"", "a_b", "a-b", "a b", "中文"} {
		if CtypeAlnum(s) {
			t.Fatalf("CtypeAlnum(%q) should fail", s)
		}
	}
}

func TestFilterInjection(t *testing.T) {
	out := FilterInjection(`<script>alert("x")</script>`)
	if strings.ContainsAny(out, "<>\"") {
		t.Fatalf("tags should be escaped: %s", out)
	}
	// 多个空白折叠为单个
	out = FilterInjection("a  \t b")
	if strings.Contains(out, "  ") {
		t.Fatalf("whitespaces should be joined: %q", out)
	}
}

func TestHashAndCheckPassword(t *testing.T) {
	hash, err := HashPassword("s3cret-token")
	if err != nil {
		t.Fatalf("hash error: %v", err)
	}
	if !strings.HasPrefix(hash, "$2") {
		t.Fatalf("unexpected hash format: %s", hash)
	}
	if !CheckPassword("s3cret-token", hash) {
		t.Fatalf("correct password should match")
	}
	if CheckPassword("wrong", hash) {
		t.Fatalf("wrong password should not match")
	}
}

func TestIsNoRows(t *testing.T) {
	if !IsNoRows(sql.ErrNoRows) {
		t.Fatalf("sql.ErrNoRows should match")
	}
	if !IsNoRows(fmt.Errorf("query: %w", sql.ErrNoRows)) {
		t.Fatalf("wrapped ErrNoRows should match")
	}
	if IsNoRows(errors.New("other")) {
		t.Fatalf("other errors should not match")
	}
	if IsNoRows(nil) {
		t.Fatalf("nil should not match")
	}
}

func TestIsEmptyString(t *testing.T) {
	for _, s := range []string{"", " ", "\t\n"} {
		if !IsEmptyString(s) {
			t.Fatalf("IsEmptyString(%q) should be true", s)
		}
	}
	if IsEmptyString("x") {
		t.Fatalf("non-empty should be false")
	}
}
