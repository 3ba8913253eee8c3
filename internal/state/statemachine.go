package state

import "fmt"

// State 对局状态
const (
	StateWaiting = "waiting" // 等待第二位玩家加入
	StateActive  = "active"  // 双方已入局，押金托管中
	StateSettled = "settled" // 已结算（终态）
)

// Event 对局事件
const (
	EvtJoin   = "join"   // 玩家2加入
	EvtStart  = "start"  // 显式激活（join/start 解耦部署时使用）
	EvtSettle = "settle" // 结算
)

// NextState 根据当前状态与事件计算下一个状态，非法转换报错
// 状态只能单向前进：waiting -> active -> settled，不可跳跃、不可回退
func NextState(cur, evt string) (string, error) {
	switch cur {
	case StateWaiting:
		if evt == EvtJoin || evt == EvtStart {
			return StateActive, nil
		}
	case StateActive:
		if evt == EvtSettle {
			return StateSettled, nil
		}
	case StateSettled:
		// 终态：任何事件均非法
	}
	return cur, fmt.Errorf("invalid transition: %s --%s--> ?", cur, evt)
}

// IsTerminal 是否为终态
func IsTerminal(s string) bool { return s == StateSettled }
