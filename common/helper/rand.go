package helper

import (
	"sync"
	"time"

	"golang.org/x/exp/rand"
)

var (
	rngOnce sync.Once
	rng     *rand.Rand
	rngMu   sync.Mutex
)

// GenerateRandNum 返回 [min, max) 区间内的随机整数
func GenerateRandNum(min, max int) int {
	if max <= min {
		return min
	}
	rngOnce.Do(func() {
		rng = rand.New(rand.NewSource(uint64(time.Now().UnixNano())))
	})
	rngMu.Lock()
	n := rng.Intn(max - min)
	rngMu.Unlock()
	return min + n
}
