package model

import (
	"errors"
	"strconv"
)

// ErrInvalidXuid XUIDとして解釈できない文字列
var ErrInvalidXuid = errors.New("invalid xuid")

// ParseXuid 10進数文字列のXUIDをパースします
//
// 0は有効なXUIDではないためエラーになります。
func ParseXuid(s string) (uint64, error) {
	xuid, err := strconv.ParseUint(s, 10, 64)
	if err != nil || xuid == 0 {
		return 0, ErrInvalidXuid
	}
	return xuid, nil
}

// FormatXuid XUIDを10進数文字列にします
func FormatXuid(xuid uint64) string {
	return strconv.FormatUint(xuid, 10)
}
