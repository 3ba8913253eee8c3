package helper

import (
	"encoding/json"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"time"

	beegocontext "github.com/beego/beego/v2/server/web/context"
)

// IsJSONContentType 判断是否为 JSON 请求
func IsJSONContentType(ct string) bool {
	ct = strings.ToLower(strings.TrimSpace(ct))
	return strings.Contains(ct, "json")
}

// 金额格式校验：非负，最多两位小数（预编译正则）
var moneyRe = regexp.MustCompile(`^(?:0|[1-9]\d*)(?:\.\d{1,2})?$`)

// IsMoneyFormat 判断金额格式
func IsMoneyFormat(s string) bool {
	return moneyRe.MatchString(strings.TrimSpace(s))
}

// 百分比格式校验：0-100，最多两位小数
var percentRe = regexp.MustCompile(`^(?:100(?:\.0{1,2})?|(?:0|[1-9]?\d)(?:\.\d{1,2})?)$`)

// IsPercentFormat 判断百分比格式（0-100）
func IsPercentFormat(s string) bool {
	return percentRe.MatchString(strings.TrimSpace(s))
}

// 默认输入保护参数
const (
	defaultJSONMaxBytes int64         = 1 << 20 // 1MB
	defaultParseTimeout time.Duration = 1 * time.Second
)

type deadlineReader struct {
	r        io.Reader
	deadline time.Time
}

func (dr *deadlineReader) Read(p []byte) (int, error) {
	if time.Now().After(dr.deadline) {
		return 0, fmt.Errorf("read timeout")
	}
	return dr.r.Read(p)
}

// jsonBodyReader 在 JSON 分支下为请求体增加大小限制与解析超时保护
func jsonBodyReader(ctx *beegocontext.Context) io.Reader {
	lr := io.LimitReader(ctx.Request.Body, defaultJSONMaxBytes)
	return &deadlineReader{r: lr, deadline: time.Now().Add(defaultParseTimeout)}
}

// GetTraceID 统一提取 trace_id：优先从中间件注入的数据取，其次从常见请求头降级
func GetTraceID(ctx *beegocontext.Context) string {
	if v := ctx.Input.GetData("trace_id"); v != nil {
		return fmt.Sprint(v)
	}
	if h := strings.TrimSpace(ctx.Input.Header("X-Trace-ID")); h != "" {
		return h
	}
	if h := strings.TrimSpace(ctx.Input.Header("Trace-Id")); h != "" {
		return h
	}
	return ""
}

// parseByContentType 按 Content-Type 选择解析函数，减少重复 if/else 分支
func parseByContentType[T any](ctx *beegocontext.Context,
	jsonParser func(io.Reader) (T, bool, string),
	formParser func(*beegocontext.Context) (T, bool, string),
) (T, bool, string) {
	ct := ctx.Input.Header("Content-Type")
	if IsJSONContentType(ct) {
		return jsonParser(jsonBodyReader(ctx))
	}
	return formParser(ctx)
}

// queryInt64 从表单读取 int64 字段；空串返回 0
func queryInt64(ctx *beegocontext.Context, key string) (int64, bool) {
	s := strings.TrimSpace(ctx.Input.Query(key))
	if s == "" {
		return 0, true
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// -------- CreateGame helpers --------

// CreateGameParsed 为解析后的创建对局入参（与控制器/服务层解耦）
type CreateGameParsed struct {
	Player1Id int64  `json:"player1_id"`
	EntryFee  string `json:"entry_fee"`
	OwnerCut  string `json:"owner_cut"`
}

func ParseCreateGameFromJSON(r io.Reader) (CreateGameParsed, bool, string) {
	var out CreateGameParsed
	if err := json.NewDecoder(r).Decode(&out); err != nil {
		return CreateGameParsed{}, false, "invalid json body"
	}
	return out, true, ""
}

func ParseCreateGameFromForm(ctx *beegocontext.Context) (CreateGameParsed, bool, string) {
	var out CreateGameParsed
	v, ok := queryInt64(ctx, "player1_id")
	if !ok {
		return CreateGameParsed{}, false, "player1_id must be integer"
	}
	out.Player1Id = v
	out.EntryFee = strings.TrimSpace(ctx.Input.Query("entry_fee"))
	out.OwnerCut = strings.TrimSpace(ctx.Input.Query("owner_cut"))
	return out, true, ""
}

// ValidateCreateGame 对通用字段做二次校验（适用于 JSON 与 FORM）
func ValidateCreateGame(in *CreateGameParsed) (bool, string) {
	if in.Player1Id <= 0 {
		return false, "player1_id required"
	}
	if strings.TrimSpace(in.EntryFee) == "" || !IsMoneyFormat(in.EntryFee) {
		return false, "entry_fee must be numeric with up to 2 decimals"
	}
	if strings.TrimSpace(in.OwnerCut) == "" || !IsPercentFormat(in.OwnerCut) {
		return false, "owner_cut must be within [0,100]"
	}
	// 额外长度保护，避免异常超长输入
	if len(in.EntryFee) > 32 || len(in.OwnerCut) > 16 {
		return false, "invalid request"
	}
	return true, ""
}

// ParseAndValidateCreateGame 按 Content-Type 自动解析并做统一校验
func ParseAndValidateCreateGame(ctx *beegocontext.Context) (CreateGameParsed, bool, string) {
	out, ok, msg := parseByContentType(ctx, ParseCreateGameFromJSON, ParseCreateGameFromForm)
	if !ok {
		return CreateGameParsed{}, false, msg
	}
	if ok, msg := ValidateCreateGame(&out); !ok {
		return CreateGameParsed{}, false, msg
	}
	return out, true, ""
}

// -------- JoinGame / StartGame helpers --------

type JoinGameParsed struct {
	GameId    int64 `json:"game_id"`
	Player2Id int64 `json:"player2_id"`
}

func ParseJoinGameFromJSON(r io.Reader) (JoinGameParsed, bool, string) {
	var out JoinGameParsed
	if err := json.NewDecoder(r).Decode(&out); err != nil {
		return JoinGameParsed{}, false, "invalid json body"
	}
	return out, true, ""
}

func ParseJoinGameFromForm(ctx *beegocontext.Context) (JoinGameParsed, bool, string) {
	var out JoinGameParsed
	g, ok := queryInt64(ctx, "game_id")
	if !ok {
		return JoinGameParsed{}, false, "game_id must be integer"
	}
	p, ok := queryInt64(ctx, "player2_id")
	if !ok {
		return JoinGameParsed{}, false, "player2_id must be integer"
	}
	out.GameId = g
	out.Player2Id = p
	return out, true, ""
}

func ValidateJoinGame(in *JoinGameParsed) (bool, string) {
	if in.GameId <= 0 {
		return false, "game_id required"
	}
	if in.Player2Id <= 0 {
		return false, "player2_id required"
	}
	return true, ""
}

func ParseAndValidateJoinGame(ctx *beegocontext.Context) (JoinGameParsed, bool, string) {
	out, ok, msg := parseByContentType(ctx, ParseJoinGameFromJSON, ParseJoinGameFromForm)
	if !ok {
		return JoinGameParsed{}, false, msg
	}
	if ok, msg := ValidateJoinGame(&out); !ok {
		return JoinGameParsed{}, false, msg
	}
	return out, true, ""
}

// -------- SettleGame helpers --------

type SettleGameParsed struct {
	GameId         int64  `json:"game_id"`
	WinnerId       int64  `json:"winner_id"`
	IdempotencyKey string `json:"idempotency_key"`
}

func ParseSettleGameFromJSON(r io.Reader) (SettleGameParsed, bool, string) {
	var out SettleGameParsed
	if err := json.NewDecoder(r).Decode(&out); err != nil {
		return SettleGameParsed{}, false, "invalid json body"
	}
	return out, true, ""
}

func ParseSettleGameFromForm(ctx *beegocontext.Context) (SettleGameParsed, bool, string) {
	var out SettleGameParsed
	g, ok := queryInt64(ctx, "game_id")
	if !ok {
		return SettleGameParsed{}, false, "game_id must be integer"
	}
	w, ok := queryInt64(ctx, "winner_id")
	if !ok {
		return SettleGameParsed{}, false, "winner_id must be integer"
	}
	out.GameId = g
	out.WinnerId = w
	out.IdempotencyKey = strings.TrimSpace(ctx.Input.Query("idempotency_key"))
	return out, true, ""
}

func ValidateSettleGame(in *SettleGameParsed) (bool, string) {
	if in.GameId <= 0 {
		return false, "game_id required"
	}
	if in.WinnerId <= 0 {
		return false, "winner_id required"
	}
	if len(in.IdempotencyKey) > 64 {
		return false, "invalid request"
	}
	return true, ""
}

func ParseAndValidateSettleGame(ctx *beegocontext.Context) (SettleGameParsed, bool, string) {
	out, ok, msg := parseByContentType(ctx, ParseSettleGameFromJSON, ParseSettleGameFromForm)
	if !ok {
		return SettleGameParsed{}, false, msg
	}
	// 幂等键优先取 Idempotency-Key 请求头，报文字段作为兼容回退
	if h := strings.TrimSpace(ctx.Input.Header("Idempotency-Key")); h != "" {
		out.IdempotencyKey = h
	}
	if ok, msg := ValidateSettleGame(&out); !ok {
		return SettleGameParsed{}, false, msg
	}
	return out, true, ""
}

// -------- RegisterUser helpers --------

type RegisterUserParsed struct {
	Username string `json:"username"`
}

func ParseRegisterUserFromJSON(r io.Reader) (RegisterUserParsed, bool, string) {
	var out RegisterUserParsed
	if err := json.NewDecoder(r).Decode(&out); err != nil {
		return RegisterUserParsed{}, false, "invalid json body"
	}
	return out, true, ""
}

func ParseRegisterUserFromForm(ctx *beegocontext.Context) (RegisterUserParsed, bool, string) {
	var out RegisterUserParsed
	out.Username = strings.TrimSpace(ctx.Input.Query("username"))
	return out, true, ""
}

// usernameRe 用户名仅允许字母数字下划线，1~32位
var usernameRe = regexp.MustCompile(`^[A-Za-z0-9_]{1,32}$`)

func ValidateRegisterUser(in *RegisterUserParsed) (bool, string) {
	in.Username = strings.TrimSpace(in.Username)
	if !usernameRe.MatchString(in.Username) {
		return false, "invalid username"
	}
	return true, ""
}

// -------- UserToken helpers --------

type UserTokenParsed struct {
	UserId   int64  `json:"user_id"`
	Username string `json:"username"`
}

func ParseUserTokenFromJSON(r io.Reader) (UserTokenParsed, bool, string) {
	var out UserTokenParsed
	if err := json.NewDecoder(r).Decode(&out); err != nil {
		return UserTokenParsed{}, false, "invalid json body"
	}
	return out, true, ""
}

func ParseUserTokenFromForm(ctx *beegocontext.Context) (UserTokenParsed, bool, string) {
	var out UserTokenParsed
	v, ok := queryInt64(ctx, "user_id")
	if !ok {
		return UserTokenParsed{}, false, "user_id must be integer"
	}
	out.UserId = v
	out.Username = strings.TrimSpace(ctx.Input.Query("username"))
	return out, true, ""
}

func ValidateUserToken(in *UserTokenParsed) (bool, string) {
	if in.UserId <= 0 {
		return false, "user_id required"
	}
	in.Username = strings.TrimSpace(in.Username)
	if !usernameRe.MatchString(in.Username) {
		return false, "invalid username"
	}
	return true, ""
}

func ParseAndValidateUserToken(ctx *beegocontext.Context) (UserTokenParsed, bool, string) {
	out, ok, msg := parseByContentType(ctx, ParseUserTokenFromJSON, ParseUserTokenFromForm)
	if !ok {
		return UserTokenParsed{}, false, msg
	}
	if ok, msg := ValidateUserToken(&out); !ok {
		return UserTokenParsed{}, false, msg
	}
	return out, true, ""
}

func ParseAndValidateRegisterUser(ctx *beegocontext.Context) (RegisterUserParsed, bool, string) {
	out, ok, msg := parseByContentType(ctx, ParseRegisterUserFromJSON, ParseRegisterUserFromForm)
	if !ok {
		return RegisterUserParsed{}, false, msg
	}
	if ok, msg := ValidateRegisterUser(&out); !ok {
		return RegisterUserParsed{}, false, msg
	}
	return out, true, ""
}
