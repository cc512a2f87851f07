// Package callbuffer 短時間に連続する同種のリモート呼び出し要求を1回の
// バッチ呼び出しにまとめるタイマーを提供します
package callbuffer

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// CompletionContext バッチ追加要求の完了通知コンテキスト
//
// 複数の要求が1ウィンドウにまとめられた場合、最後に渡されたコンテキストが
// ハンドラに渡ります。
type CompletionContext struct {
	// Context 要求の識別子
	Context uint32
	// NumObjects この要求で解決されるべきオブジェクト数
	NumObjects int
	// Done 解決時にエラー値を1度だけ受け取るチャンネル
	Done chan<- error
}

// Resolve 完了通知を発火します。Doneがnilの場合は何もしません
func (c *CompletionContext) Resolve(err error) {
	if c == nil || c.Done == nil {
		return
	}
	select {
	case c.Done <- err:
	default: // 受信側が既に居ない場合は破棄
	}
}

// Handler ウィンドウ満了時にキー集合と完了コンテキストを受け取る関数
type Handler[K comparable] func(keys []K, completion *CompletionContext)

// Timer コールバッファタイマー
//
// Fireされたキーをウィンドウ(window)の間蓄積し、満了時にハンドラを
// ちょうど1回、キーの和集合で呼び出します。ウィンドウ中の再Fireは
// マージされ、ハンドラの再起動は行いません。
type Timer[K comparable] struct {
	window  time.Duration
	handler Handler[K]
	logger  *zap.Logger

	mu         sync.Mutex
	keys       map[K]struct{}
	completion *CompletionContext
	timer      *time.Timer
	armed      bool
	stopped    bool
}

// NewTimer コールバッファタイマーを生成します
//
// windowが0の場合(テスト用)は即時にハンドラが呼ばれます。
func NewTimer[K comparable](window time.Duration, logger *zap.Logger, handler Handler[K]) *Timer[K] {
	return &Timer[K]{
		window:  window,
		handler: handler,
		logger:  logger,
		keys:    make(map[K]struct{}),
	}
}

// Fire キー集合をバッファに積み、バッチ呼び出しを予約します
func (t *Timer[K]) Fire(keys ...K) {
	t.FireWithCompletion(keys, nil)
}

// FireWithCompletion 完了コンテキスト付きでバッチ呼び出しを予約します
//
// 同一ウィンドウ内で複数回呼ばれた場合、キーはマージされ完了コンテキストは
// 最後のものが採用されます。
func (t *Timer[K]) FireWithCompletion(keys []K, completion *CompletionContext) {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return
	}
	for _, k := range keys {
		t.keys[k] = struct{}{}
	}
	if completion != nil {
		t.completion = completion
	}
	if !t.armed {
		t.armed = true
		t.timer = time.AfterFunc(t.window, t.flush)
	}
	t.mu.Unlock()
}

func (t *Timer[K]) flush() {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return
	}
	keys := make([]K, 0, len(t.keys))
	for k := range t.keys {
		keys = append(keys, k)
	}
	completion := t.completion
	clear(t.keys)
	t.completion = nil
	t.armed = false
	t.mu.Unlock()

	t.handler(keys, completion)
}

// Stop タイマーを停止します
//
// 予約済みで未発火のバッチ呼び出しは破棄され、ハンドラは呼ばれません。
func (t *Timer[K]) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return
	}
	t.stopped = true
	if t.timer != nil {
		t.timer.Stop()
	}
	clear(t.keys)
	t.completion = nil
}
