package service

import (
	"math/rand/v2"
	"strings"
)

// Room codes are short enough to read out loud; the alphabet drops the
// characters people confuse (0/O, 1/I).
const (
	roomCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	roomCodeLength   = 4
)

func MakeRoomCode() string {
	var b strings.Builder
	b.Grow(roomCodeLength)

	for i := 0; i < roomCodeLength; i++ {
		b.WriteByte(roomCodeAlphabet[rand.IntN(len(roomCodeAlphabet))])
	}

	return b.String()
}

func NormalizeRoomCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
