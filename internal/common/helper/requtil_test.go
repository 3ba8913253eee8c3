package helper

import (
	"net/http/httptest"
	"strings"
	"testing"

	beegocontext "github.com/beego/beego/v2/server/web/context"
)

func TestIsMoneyFormat(t *testing.T) {
	valid := []string{"0", "1", "100", "0.5", "0.55", "123.40", " 100 "}
	for _, s := range valid {
		if !IsMoneyFormat(s) {
			t.Fatalf("should be valid money: %q", s)
		}
	}
	invalid := []string{"", "-1", "1.234", "01", ".5", "1.", "abc", "1e3", "+1"}
	for _, s := range invalid {
		if IsMoneyFormat(s) {
			t.Fatalf("should be invalid money: %q", s)
		}
	}
}

func TestIsPercentFormat(t *testing.T) {
	valid := []string{"0", "10", "99.99", "100", "100.0", "100.00", "0.01"}
	for _, s := range valid {
		if !IsPercentFormat(s) {
			t.Fatalf("should be valid percent: %q", s)
		}
	}
	invalid := []string{"", "-1", "100.01", "101", "100.001", "5.123", "x"}
	for _, s := range invalid {
		if IsPercentFormat(s) {
			t.Fatalf("should be invalid percent: %q", s)
		}
	}
}

func TestIsJSONContentType(t *testing.T) {
	for _, ct := range []string{"application/json", "application/json; charset=utf-8", "APPLICATION/JSON"} {
		if !IsJSONContentType(ct) {
			t.Fatalf("should be json: %q", ct)
		}
	}
	for _, ct := range []string{"", "application/x-www-form-urlencoded", "text/plain"} {
		if IsJSONContentType(ct) {
			t.Fatalf("should not be json: %q", ct)
		}
	}
}

func TestParseCreateGameFromJSON(t *testing.T) {
	in, ok, msg := ParseCreateGameFromJSON(strings.NewReader(
		`{"player1_id":1,"entry_fee":"100","owner_cut":"10"}`))
	if !ok {
		t.Fatalf("parse fail: %s", msg)
	}
	if in.Player1Id != 1 || in.EntryFee != "100" || in.OwnerCut != "10" {
		t.Fatalf("bad parse result: %+v", in)
	}

	if _, ok, _ := ParseCreateGameFromJSON(strings.NewReader(`{bad`)); ok {
		t.Fatalf("broken json should fail")
	}
}

func TestValidateCreateGame(t *testing.T) {
	good := CreateGameParsed{Player1Id: 1, EntryFee: "100", OwnerCut: "10"}
	if ok, msg := ValidateCreateGame(&good); !ok {
		t.Fatalf("should pass: %s", msg)
	}

	cases := []CreateGameParsed{
		{Player1Id: 0, EntryFee: "100", OwnerCut: "10"},
		{Player1Id: 1, EntryFee: "", OwnerCut: "10"},
		{Player1Id: 1, EntryFee: "-1", OwnerCut: "10"},
		{Player1Id: 1, EntryFee: "1.234", OwnerCut: "10"},
		{Player1Id: 1, EntryFee: "100", OwnerCut: ""},
		{Player1Id: 1, EntryFee: "100", OwnerCut: "101"},
		{Player1Id: 1, EntryFee: "100", OwnerCut: "-5"},
	}
	for i := range cases {
		if ok, _ := ValidateCreateGame(&cases[i]); ok {
			t.Fatalf("case %d should fail: %+v", i, cases[i])
		}
	}
}

func TestValidateJoinAndSettle(t *testing.T) {
	j := JoinGameParsed{GameId: 1, Player2Id: 2}
	if ok, msg := ValidateJoinGame(&j); !ok {
		t.Fatalf("join should pass: %s", msg)
	}
	j = JoinGameParsed{GameId: 0, Player2Id: 2}
	if ok, _ := ValidateJoinGame(&j); ok {
		t.Fatalf("game_id=0 should fail")
	}
	j = JoinGameParsed{GameId: 1, Player2Id: 0}
	if ok, _ := ValidateJoinGame(&j); ok {
		t.Fatalf("player2_id=0 should fail")
	}

	s := SettleGameParsed{GameId: 1, WinnerId: 2, IdempotencyKey: "req-1"}
	if ok, msg := ValidateSettleGame(&s); !ok {
		t.Fatalf("settle should pass: %s", msg)
	}
	s.IdempotencyKey = strings.Repeat("x", 65)
	if ok, _ := ValidateSettleGame(&s); ok {
		t.Fatalf("oversized idempotency key should fail")
	}
	s = SettleGameParsed{GameId: 1, WinnerId: 0}
	if ok, _ := ValidateSettleGame(&s); ok {
		t.Fatalf("winner_id=0 should fail")
	}
}

// settleContext 构造带请求体的 beego 上下文
func settleContext(body string, headers map[string]string) *beegocontext.Context {
	req := httptest.NewRequest("POST", "/api/games/settle", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	ctx := beegocontext.NewContext()
	ctx.Reset(httptest.NewRecorder(), req)
	return ctx
}

func TestSettleIdempotencyKeyFromHeader(t *testing.T) {
	// 请求头优先于报文字段
	ctx := settleContext(`{"game_id":1,"winner_id":2,"idempotency_key":"body-key"}`,
		map[string]string{"Idempotency-Key": " header-key "})
	sp, ok, msg := ParseAndValidateSettleGame(ctx)
	if !ok {
		t.Fatalf("parse fail: %s", msg)
	}
	if sp.IdempotencyKey != "header-key" {
		t.Fatalf("header key should win: %q", sp.IdempotencyKey)
	}

	// 无请求头时回退报文字段
	ctx = settleContext(`{"game_id":1,"winner_id":2,"idempotency_key":"body-key"}`, nil)
	sp, ok, _ = ParseAndValidateSettleGame(ctx)
	if !ok || sp.IdempotencyKey != "body-key" {
		t.Fatalf("body key fallback broken: %+v", sp)
	}

	// 超长请求头键同样被长度校验拦截
	ctx = settleContext(`{"game_id":1,"winner_id":2}`,
		map[string]string{"Idempotency-Key": strings.Repeat("x", 65)})
	if _, ok, _ := ParseAndValidateSettleGame(ctx); ok {
		t.Fatalf("oversized header key should fail")
	}
}

func TestValidateRegisterUser(t *testing.T) {
	u := RegisterUserParsed{Username: "  alice_01  "}
	if ok, msg := ValidateRegisterUser(&u); !ok {
		t.Fatalf("should pass: %s", msg)
	}
	if u.Username != "alice_01" {
		t.Fatalf("username should be trimmed: %q", u.Username)
	}

	for _, name := range []string{"", "有中文", "a b", strings.Repeat("a", 33), "a-b", "a@b"} {
		u := RegisterUserParsed{Username: name}
		if ok, _ := ValidateRegisterUser(&u); ok {
			t.Fatalf("should fail: %q", name)
		}
	}
}
