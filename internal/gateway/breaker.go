package gateway

import (
	"sync/atomic"
	"time"
)

// Breaker はプロセス内のサーキットブレーカー。
// 連続失敗がしきい値に達したらopenになり、cooldown経過後に試行1回だけ通す。
// 状態はatomicカウンタのみで、ドメインデータには一切触らない。
type Breaker struct {
	threshold int64
	cooldown  time.Duration

	failures atomic.Int64
	openedAt atomic.Int64 // unixnano。0ならclosed。
	probing  atomic.Bool  // half-openの試行中フラグ
}

func NewBreaker(threshold int, cooldown time.Duration) *Breaker {
	return &Breaker{threshold: int64(threshold), cooldown: cooldown}
}

// Allow は呼び出してよいかどうか。openの間はfalse。
// cooldown経過後は1本だけ試行を通す（half-open）。
func (b *Breaker) Allow() bool {
	opened := b.openedAt.Load()
	if opened == 0 {
		return true
	}
	if time.Since(time.Unix(0, opened)) < b.cooldown {
		return false
	}
	//試行は同時に1本だけ
	return b.probing.CompareAndSwap(false, true)
}

// Success は成功を記録してブレーカーを閉じる
func (b *Breaker) Success() {
	b.failures.Store(0)
	b.openedAt.Store(0)
	b.probing.Store(false)
}

// Failure は失敗を記録する。しきい値に達したらopenにする。
func (b *Breaker) Failure() {
	if b.failures.Add(1) >= b.threshold {
		b.openedAt.Store(time.Now().UnixNano())
	}
	b.probing.Store(false)
}

// Open は現在openかどうか（メトリクス/テスト用）
func (b *Breaker) Open() bool {
	opened := b.openedAt.Load()
	return opened != 0 && time.Since(time.Unix(0, opened)) < b.cooldown
}
