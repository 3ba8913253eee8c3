package helper

import (
	"database/sql"
	"errors"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/crypto/bcrypt"
)

// 判断字符是否为数字
func isDigit(r rune) bool {
	return '0' <= r && r <= '9'
}

// 判断字符是否为英文字符
func isAlpha(r rune) bool {

	if r >= 'A' && r <= 'Z' {
		return true
	} else if r >= 'a' && r <= 'z' {
		return true
	}
	return false
}

// 判断字符串是不是数字
func CtypeDigit(s string) bool {

	if s == "" {
		return false
	}
	for _, r := range s {
		if !isDigit(r) {
			return false
		}
	}
	return true
}

// 判断字符串是不是字母+数字
func CtypeAlnum(s string) bool {

	if s == "" {
		return false
	}
	for _, r := range s {
		if !isDigit(r) && !isAlpha(r) {
			return false
		}
	}
	return true
}

func strReplace(str string, original []string, replacement []string) string {

	for i, replace := range original {
		r := strings.NewReplacer(replace, replacement[i])
		str = r.Replace(str)
	}

	return str
}

var regexJoinWhitespaces = regexp.MustCompile(`[　\s]+`)

func FilterInjection(s string) string {
	empty := []rune(" ")
	r := []rune(s) // 转成unicode
	for index, c := range r {
		if unicode.IsSpace(c) {
			r[index] = empty[0]
		}
	}
	s = string(r)
	s = strings.TrimSpace(regexJoinWhitespaces.ReplaceAllString(s, " "))
	original := []string{"<", ">", "\"", " ", "'", "\\", "\t", "\n", " "}
	replacement := []string{"&lt;", "&gt;", "&quot;", "&nbsp;", "&apos;", "", "&nbsp;", "<br/>", "&nbsp;"}

	return strReplace(s, original, replacement)
}

func IsEmptyString(str string) bool {

	s := strings.TrimSpace(str)
	if len(s) == 0 {
		return true
	}

	return false
}

func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(hash), err
}

func CheckPassword(input string, hashed string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hashed), []byte(input))
	return err == nil
}

func IsNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
