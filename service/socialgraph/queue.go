package socialgraph

import "sync"

// internalEventQueue 適用待ち内部イベントのFIFO
//
// プッシュ通知・ポーリング結果・ユーザー要求を積み、グラフワーカーだけが
// 取り出します。
type internalEventQueue struct {
	mu     sync.Mutex
	events []*internalEvent
}

func newInternalEventQueue() *internalEventQueue {
	return &internalEventQueue{}
}

func (q *internalEventQueue) push(evt *internalEvent) {
	q.mu.Lock()
	q.events = append(q.events, evt)
	q.mu.Unlock()
}

func (q *internalEventQueue) pop() *internalEvent {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.events) == 0 {
		return nil
	}
	evt := q.events[0]
	q.events = q.events[1:]
	return evt
}

func (q *internalEventQueue) empty() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events) == 0
}

func (q *internalEventQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}

// bufferEventQueue バッファ面ごとの再適用ログ
type bufferEventQueue struct {
	mu     sync.Mutex
	events []*internalEvent
}

func newBufferEventQueue() *bufferEventQueue {
	return &bufferEventQueue{}
}

func (q *bufferEventQueue) push(evt *internalEvent) {
	q.mu.Lock()
	q.events = append(q.events, evt)
	q.mu.Unlock()
}

func (q *bufferEventQueue) pop() *internalEvent {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.events) == 0 {
		return nil
	}
	evt := q.events[0]
	q.events = q.events[1:]
	return evt
}

func (q *bufferEventQueue) empty() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events) == 0
}

// eventState ユーザー向けイベントキューの状態
type eventState int

const (
	eventStateClear eventState = iota
	eventStateReadyToRead
	eventStateRead
)

// eventQueue コンシューマが1フレームごとに回収するイベントのキュー
//
// listは読み取り済み(read)のマークを付けるだけで中身を消しません。
// 回収側がコピーを終えた後に明示的にclearすること。
type eventQueue struct {
	mu        sync.Mutex
	localUser uint64
	events    []SocialEvent
	state     eventState
}

func newEventQueue(localUser uint64) *eventQueue {
	return &eventQueue{localUser: localUser}
}

// push 内部イベントをユーザー向けイベントに写して積みます
//
// eventTypeがunknownのものは捨てられます。
func (q *eventQueue) push(evt *internalEvent, eventType EventType, err error) {
	q.pushAffected(eventType, evt.affectedXuidStrings(), err)
}

// pushAffected 影響ユーザーを明示してイベントを積みます
func (q *eventQueue) pushAffected(eventType EventType, affected []string, err error) {
	if eventType == EventTypeUnknown {
		return
	}

	q.mu.Lock()
	q.events = append(q.events, SocialEvent{
		LocalUser:     q.localUser,
		Type:          eventType,
		AffectedUsers: affected,
		Err:           err,
	})
	q.state = eventStateReadyToRead
	q.mu.Unlock()
}

func (q *eventQueue) list() []SocialEvent {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.state = eventStateRead
	return q.events
}

func (q *eventQueue) clear() {
	q.mu.Lock()
	q.events = nil
	q.state = eventStateClear
	q.mu.Unlock()
}

func (q *eventQueue) empty() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events) == 0
}
