package helper

import (
	"github.com/shopspring/decimal"
)

var (
	OneDecimal = decimal.NewFromInt(1)
)

/*
* @Description: decimal对像四舍五入到2位小数
* @Author: awen
* @Date: 2021/10/17 10:08
* @LastEditTime: 2025/08/28 16:00
* @LastEditors: bruce
* @Fixed: 修复截断BUG，改为四舍五入
 */
func TrimDecimal(val decimal.Decimal) string {
	// 直接使用 StringFixed(2) 进行四舍五入到2位小数
	// 这样可以避免截断导致的精度丢失问题
	return val.StringFixed(2)
}

// BankFixed 银行家舍入到2位小数后输出字符串
// 分账金额统一使用该口径，避免长期单向舍入造成亏损
func BankFixed(val decimal.Decimal) string {
	return val.RoundBank(2).StringFixed(2)
}
