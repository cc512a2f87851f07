// Package socialgraph ローカルユーザー1人分のソーシャルグラフレプリカを提供します
//
// リモートのPeopleHubを正とするグラフのインメモリ複製を2面バッファで保持し、
// プッシュ通知・ポーリング・ユーザー要求をフレーム境界で安全に適用します。
// コンシューマはDoWorkを自分のペースで呼び、スナップショットと差分イベントを
// 受け取ります。
package socialgraph

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/leandro-lugaresi/hub"
	jitterbug "github.com/lthibault/jitterbug/v2"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/xlivekit/xlivekit/event"
	"github.com/xlivekit/xlivekit/model"
	"github.com/xlivekit/xlivekit/utils/callbuffer"
)

const (
	// NumEventsPerFrame DoWork間に適用する内部イベント数の上限
	NumEventsPerFrame = 5
	// DefaultTimerWindow コールバッファタイマーの集約ウィンドウ
	DefaultTimerWindow = 30 * time.Second
	// DefaultRefreshInterval 定期リコンシリエーションの間隔
	DefaultRefreshInterval = 20 * time.Minute

	defaultWorkerIdleSleep = 30 * time.Millisecond
	refreshJitterStdev     = time.Minute
)

// graphState グラフの処理状態。normal以外はインアクティブ面への書き込み中
type graphState int32

const (
	graphStateNormal graphState = iota
	graphStateEventProcessing
	graphStateRefresh
	graphStateDiff
)

// Config グラフの設定
type Config struct {
	// LocalUser このグラフが属するローカルユーザーのXUID
	LocalUser uint64
	// TitleID タイトルプレゼンス購読に使うタイトルID
	TitleID uint32
	// DetailLevel PeopleHubへ透過的に渡す詳細レベル
	DetailLevel model.ExtraDetailLevel
	// TimerWindow コールバッファタイマーのウィンドウ。0で即時発火(テスト用)
	TimerWindow time.Duration
	// RefreshInterval 定期リコンシリエーションの間隔。0以下で無効
	RefreshInterval time.Duration
	// WorkerIdleSleep ワーカーのアイドルスリープ。0以下で既定値
	WorkerIdleSleep time.Duration
	// OnDestroyed 破棄完了時に1度だけ呼ばれるコールバック
	OnDestroyed func()
}

// Graph ローカルユーザー1人分のソーシャルグラフ
type Graph struct {
	cfg    Config
	logger *zap.Logger
	hub    *hub.Hub

	peopleHub PeopleHubService
	presence  PresenceService
	social    SocialService
	rta       RTAService

	// ロック順: stateMu → priorityMu → dataMu
	stateMu    sync.Mutex
	priorityMu sync.Mutex
	dataMu     sync.Mutex

	state       atomic.Int32
	initialized atomic.Bool
	closed      atomic.Bool

	buffers       userBufferPair
	internalQueue *internalEventQueue
	events        *eventQueue
	registry      *subscriptionRegistry

	socialGraphRefreshTimer *callbuffer.Timer[string]
	presenceRefreshTimer    *callbuffer.Timer[uint64]
	presencePollingTimer    *callbuffer.Timer[uint64]
	resyncTimer             *callbuffer.Timer[struct{}]

	numEventsThisFrame atomic.Int32
	userAddedContext   atomic.Uint32
	wasDisconnected    atomic.Bool

	pollingMu     sync.Mutex
	isPolling     bool
	pollingCancel *atomic.Bool

	metrics *graphMetrics

	hubSub        hub.Subscription
	hasHubSub     bool
	workerStarted bool
	done          chan struct{}
	workerDone    chan struct{}
}

// New グラフを生成します。InitializeするまでイベントはQueueに溜まるだけです
func New(cfg Config, peopleHub PeopleHubService, presence PresenceService, social SocialService, rta RTAService, h *hub.Hub, logger *zap.Logger) *Graph {
	if cfg.WorkerIdleSleep <= 0 {
		cfg.WorkerIdleSleep = defaultWorkerIdleSleep
	}

	g := &Graph{
		cfg:           cfg,
		logger:        logger.Named("socialgraph"),
		hub:           h,
		peopleHub:     peopleHub,
		presence:      presence,
		social:        social,
		rta:           rta,
		internalQueue: newInternalEventQueue(),
		events:        newEventQueue(cfg.LocalUser),
		done:          make(chan struct{}),
		workerDone:    make(chan struct{}),
	}
	g.registry = newSubscriptionRegistry(presence, cfg.TitleID, g.logger)

	g.socialGraphRefreshTimer = callbuffer.NewTimer(cfg.TimerWindow, g.logger, g.socialGraphTimerCallback)
	g.presenceRefreshTimer = callbuffer.NewTimer(cfg.TimerWindow, g.logger, g.presenceTimerCallback)
	g.presencePollingTimer = callbuffer.NewTimer(cfg.TimerWindow, g.logger, g.presenceTimerCallback)
	g.resyncTimer = callbuffer.NewTimer(cfg.TimerWindow, g.logger, func(_ []struct{}, _ *callbuffer.CompletionContext) {
		if g.alive() {
			g.refreshGraph(context.Background())
		}
	})

	g.metrics = newGraphMetrics(cfg.LocalUser, g.collectMetrics)
	return g
}

// Initialize ロスターを取得してグラフを稼働状態にします
//
// PeopleHubの424(依存先なし)は空ロスターとして許容します。それ以外の
// フェッチ失敗、およびプレゼンス購読の確立失敗はエラーで、グラフは
// 未初期化のままです。
func (g *Graph) Initialize(ctx context.Context) error {
	if g.initialized.Load() {
		return nil
	}

	if err := g.rta.Activate(); err != nil {
		return fmt.Errorf("%w: failed to activate rta: %s", ErrRuntime, err)
	}
	if err := g.social.SubscribeToSocialRelationshipChange(g.cfg.LocalUser); err != nil {
		g.logger.Error("failed to subscribe to social relationship change", zap.Error(err))
	}
	g.listenHub()
	g.startWorker()

	users, err := g.peopleHub.GetSocialGraph(ctx, g.cfg.LocalUser, g.cfg.DetailLevel)
	if err != nil {
		if !errors.Is(err, ErrFailedDependency) {
			return err
		}
		users = nil
	}

	g.dataMu.Lock()
	g.buffers.initialize(users)
	g.dataMu.Unlock()

	for i := range users {
		if err := g.registry.subscribe(users[i].XboxUserID); err != nil {
			return fmt.Errorf("%w: subscription initialization failed: %s", ErrRuntime, err)
		}
	}

	if len(users) > 0 {
		g.events.pushAffected(EventTypeUsersAddedToGraph, lo.Map(users, func(u model.SocialUser, _ int) string {
			return model.FormatXuid(u.XboxUserID)
		}), nil)
	}

	g.initialized.Store(true)

	if g.cfg.RefreshInterval > 0 {
		go g.runRefreshLoop()
	}

	g.logger.Info("social graph initialized",
		zap.Uint64("localUser", g.cfg.LocalUser), zap.Int("users", len(users)))
	return nil
}

// Close グラフを破棄します
//
// RTAを切断し、タイマーとワーカーを止めてから破棄完了コールバックを
// 1度だけ呼びます。
func (g *Graph) Close() {
	if g.closed.Swap(true) {
		return
	}
	close(g.done)

	g.rta.Deactivate()

	g.socialGraphRefreshTimer.Stop()
	g.presenceRefreshTimer.Stop()
	g.presencePollingTimer.Stop()
	g.resyncTimer.Stop()

	g.pollingMu.Lock()
	if g.pollingCancel != nil {
		g.pollingCancel.Store(true)
	}
	g.isPolling = false
	g.pollingMu.Unlock()

	if g.hasHubSub {
		g.hub.Unsubscribe(g.hubSub)
	}
	if g.workerStarted {
		<-g.workerDone
	}
	g.metrics.stop()

	if g.cfg.OnDestroyed != nil {
		g.cfg.OnDestroyed()
	}
	g.logger.Info("social graph destroyed", zap.Uint64("localUser", g.cfg.LocalUser))
}

// alive 破棄済みかどうか。タイマー・フック系コールバックのガードに使います
func (g *Graph) alive() bool {
	select {
	case <-g.done:
		return false
	default:
		return true
	}
}

// caller must hold stateMu
func (g *Graph) setState(s graphState) {
	g.state.Store(int32(s))
}

func (g *Graph) currentState() graphState {
	return graphState(g.state.Load())
}

// ---- コンシューマAPI ----

// DoWork スナップショットと溜まったイベントを引き渡します
//
// state == normal かつインアクティブ面の再適用ログが空のときだけバッファを
// 入れ替えます。返したスナップショットは次のDoWorkまで有効です。
func (g *Graph) DoWork() (map[uint64]*UserContext, []SocialEvent) {
	g.priorityMu.Lock()
	defer g.priorityMu.Unlock()

	g.numEventsThisFrame.Store(0)

	// 面ポインタの読み書きはdataMu下に揃える
	g.dataMu.Lock()
	if g.currentState() == graphStateNormal && g.buffers.initialized() && g.buffers.inactive.pending.empty() {
		g.buffers.swap()
	}
	var snapshot map[uint64]*UserContext
	if g.buffers.active != nil {
		snapshot = g.buffers.active.graph
	}
	g.dataMu.Unlock()

	var events []SocialEvent
	if g.currentState() == graphStateNormal && !g.events.empty() {
		events = append(events, g.events.list()...)
		g.events.clear()
	}
	return snapshot, events
}

// AddUsers 追加要求をキューに積みます
//
// 返すチャンネルはバッチ解決時にエラー値を1度だけ受け取ります。
func (g *Graph) AddUsers(users []string) <-chan error {
	done := make(chan error, 1)
	g.internalQueue.push(&internalEvent{
		kind:        internalEventUsersAdded,
		userStrings: users,
		done:        done,
	})
	return done
}

// RemoveUsers 削除要求をキューに積みます
func (g *Graph) RemoveUsers(xuids []uint64) {
	g.internalQueue.push(&internalEvent{
		kind:  internalEventUsersRemoved,
		xuids: xuids,
	})
}

// ActiveBufferSocialGraph アクティブ面のグラフ(デバッグ用)
func (g *Graph) ActiveBufferSocialGraph() map[uint64]*UserContext {
	g.dataMu.Lock()
	defer g.dataMu.Unlock()
	if g.buffers.active == nil {
		return nil
	}
	return g.buffers.active.graph
}

// IsInitialized 初期化済みかどうか
func (g *Graph) IsInitialized() bool {
	return g.initialized.Load()
}

// AreEventsEmpty 両面の再適用ログが空かどうか
func (g *Graph) AreEventsEmpty() bool {
	g.dataMu.Lock()
	defer g.dataMu.Unlock()
	if !g.buffers.initialized() {
		return true
	}
	return g.buffers.bufferA.pending.empty() && g.buffers.bufferB.pending.empty()
}

// TitleID タイトルID
func (g *Graph) TitleID() uint32 {
	return g.cfg.TitleID
}

// EnableRichPresencePolling リッチプレゼンスの定期ポーリングを切り替えます
//
// 有効化でウィンドウ間隔のポーリングループが走り、無効化はキャンセルフラグを
// 立てるだけで次のティックが観測して抜けます。再有効化はフラグを新しくして
// やり直します。
func (g *Graph) EnableRichPresencePolling(enable bool) {
	g.pollingMu.Lock()
	was := g.isPolling
	g.isPolling = enable

	if enable && !was {
		cancel := &atomic.Bool{}
		g.pollingCancel = cancel
		g.pollingMu.Unlock()
		go g.pollPresenceLoop(cancel)
		return
	}
	if !enable && g.pollingCancel != nil {
		g.pollingCancel.Store(true)
	}
	g.pollingMu.Unlock()
}

// ---- ワーカー ----

func (g *Graph) startWorker() {
	if g.workerStarted {
		return
	}
	g.workerStarted = true
	go g.runWorker()
}

func (g *Graph) runWorker() {
	defer close(g.workerDone)
	for {
		select {
		case <-g.done:
			return
		default:
		}
		if g.doEventWork() {
			continue
		}
		select {
		case <-g.done:
			return
		case <-time.After(g.cfg.WorkerIdleSleep):
		}
	}
}

// doEventWork ワーカー1イテレーション分の処理
//
// 再適用ログが残っていればそれを全て先に消化し、なければ内部キューから
// フレーム上限までイベントを適用します。
func (g *Graph) doEventWork() bool {
	g.stateMu.Lock()
	defer g.stateMu.Unlock()

	// 面ポインタを触る判定はdataMu下で済ませ、処理本体に入る前に放す
	g.dataMu.Lock()
	ready := g.initialized.Load() && g.buffers.initialized()
	replay := ready && !g.buffers.inactive.pending.empty()
	g.dataMu.Unlock()

	if !ready {
		g.setState(graphStateNormal)
		return false
	}

	if replay {
		g.setState(graphStateEventProcessing)
		g.processCachedEvents()
		g.setState(graphStateNormal)
		return true
	}

	g.setState(graphStateNormal)
	return g.processEvents()
}

// caller must hold stateMu
func (g *Graph) processCachedEvents() {
	g.priorityMu.Lock()
	defer g.priorityMu.Unlock()
	g.dataMu.Lock()
	defer g.dataMu.Unlock()

	for evt := g.buffers.inactive.pending.pop(); evt != nil; evt = g.buffers.inactive.pending.pop() {
		g.applyEvent(evt, false)
	}
}

// caller must hold stateMu
func (g *Graph) processEvents() bool {
	if g.numEventsThisFrame.Load() >= NumEventsPerFrame {
		return false
	}
	evt := g.internalQueue.pop()
	if evt == nil {
		return false
	}
	g.numEventsThisFrame.Add(1)

	g.priorityMu.Lock()
	g.dataMu.Lock()
	g.applyEvent(evt, true)
	g.buffers.recordEvent(evt)
	g.dataMu.Unlock()
	g.priorityMu.Unlock()

	g.metrics.trigger()
	return true
}

// ---- イベント適用 ----

// applyEvent 内部イベントをインアクティブ面に適用します
//
// isFreshが真のときだけユーザー向けイベントの発行とタイマー・購読の
// 副作用を起こします。再適用(スワップ後のログ消化)では起こしません。
// caller must hold dataMu
func (g *Graph) applyEvent(evt *internalEvent, isFresh bool) {
	inactive := g.buffers.inactive
	if inactive == nil {
		g.logger.Error("inactive buffer missing during event processing")
		return
	}

	eventType := EventTypeUnknown
	switch evt.kind {
	case internalEventUsersAdded:
		g.applyUsersAdded(evt, inactive, isFresh)
	case internalEventUsersChanged:
		g.applyUsersChanged(evt, inactive, isFresh)
	case internalEventUsersRemoved:
		eventType = g.applyUsersRemoved(evt, inactive, isFresh)
	case internalEventDevicePresenceChanged:
		eventType = g.applyDevicePresenceChanged(evt, inactive, isFresh)
	case internalEventTitlePresenceChanged:
		eventType = g.applyTitlePresenceChanged(evt, inactive)
	case internalEventPresenceChanged:
		g.applyPresenceChanged(evt, inactive, isFresh)
	case internalEventProfilesChanged, internalEventSocialRelationshipsChanged:
		for i := range evt.users {
			u := &evt.users[i]
			ctx, ok := inactive.graph[u.XboxUserID]
			if !ok || ctx.User == nil {
				g.logger.Error("user missing during profile overwrite", zap.Uint64("xuid", u.XboxUserID))
				continue
			}
			*ctx.User = *u
		}
		if evt.kind == internalEventSocialRelationshipsChanged {
			eventType = EventTypeSocialRelationshipsChanged
		} else {
			eventType = EventTypeProfilesChanged
		}
	default:
		g.logger.Error("unknown internal event", zap.Stringer("kind", evt.kind))
	}

	if isFresh {
		g.events.push(evt, eventType, nil)
	}
}

// caller must hold dataMu
func (g *Graph) applyUsersAdded(evt *internalEvent, inactive *userBuffer, isFresh bool) {
	var usersToAdd []string
	for _, s := range evt.userStrings {
		xuid, err := model.ParseXuid(s)
		if err != nil {
			g.logger.Error("invalid xuid in add request", zap.String("xuid", s), zap.Error(err))
			continue
		}
		if ctx, ok := inactive.graph[xuid]; ok {
			ctx.RefCount++
		} else {
			usersToAdd = append(usersToAdd, s)
		}
	}

	if len(usersToAdd) == 0 {
		(&callbuffer.CompletionContext{Done: evt.done}).Resolve(nil)
		return
	}

	completion := &callbuffer.CompletionContext{
		Context:    g.userAddedContext.Add(1),
		NumObjects: len(usersToAdd),
		Done:       evt.done,
	}
	if isFresh {
		g.socialGraphRefreshTimer.FireWithCompletion(usersToAdd, completion)
	}

	for _, s := range usersToAdd {
		xuid, _ := model.ParseXuid(s)
		inactive.addPlaceholder(xuid)
	}
}

// caller must hold dataMu
func (g *Graph) applyUsersChanged(evt *internalEvent, inactive *userBuffer, isFresh bool) {
	if isFresh {
		evt.completion.Resolve(evt.err)
	}
	if evt.err != nil {
		if isFresh {
			g.events.push(evt, EventTypeUsersAddedToGraph, evt.err)
		}
		return
	}

	var usersToAdd []model.SocialUser
	var usersChanged []model.SocialUser
	for i := range evt.users {
		u := &evt.users[i]
		ctx, ok := inactive.graph[u.XboxUserID]
		if !ok {
			// フェッチ中に削除された
			continue
		}
		if ctx.User == nil {
			usersToAdd = append(usersToAdd, *u)
		} else {
			*ctx.User = *u
			usersChanged = append(usersChanged, *u)
		}
	}

	if len(usersToAdd) > 0 {
		expected := len(usersToAdd)
		if evt.completion != nil {
			expected = evt.completion.NumObjects
		}
		inactive.addUsers(usersToAdd, expected)

		if isFresh {
			xuids := lo.Map(usersToAdd, func(u model.SocialUser, _ int) uint64 { return u.XboxUserID })
			g.subscribeUsersAsync(xuids)
			g.events.pushAffected(EventTypeUsersAddedToGraph, lo.Map(xuids, func(x uint64, _ int) string {
				return model.FormatXuid(x)
			}), nil)
		}
	}

	if len(usersChanged) > 0 && isFresh {
		g.events.pushAffected(EventTypeProfilesChanged, lo.Map(usersChanged, func(u model.SocialUser, _ int) string {
			return model.FormatXuid(u.XboxUserID)
		}), nil)
	}
}

// caller must hold dataMu
func (g *Graph) applyUsersRemoved(evt *internalEvent, inactive *userBuffer, isFresh bool) EventType {
	eventType := EventTypeUnknown
	var removeUsers []uint64
	for _, xuid := range evt.xuids {
		ctx, ok := inactive.graph[xuid]
		if !ok {
			continue
		}
		ctx.RefCount--
		if ctx.RefCount > 0 {
			continue
		}
		if ctx.User != nil {
			removeUsers = append(removeUsers, xuid)
		} else {
			delete(inactive.graph, xuid)
		}
		eventType = EventTypeUsersRemovedFromGraph
	}

	inactive.removeUsers(removeUsers)
	if isFresh && len(removeUsers) > 0 {
		g.unsubscribeUsersAsync(removeUsers)
	}
	return eventType
}

// caller must hold dataMu
func (g *Graph) applyDevicePresenceChanged(evt *internalEvent, inactive *userBuffer, isFresh bool) EventType {
	args := evt.devicePresence
	xuid, err := model.ParseXuid(args.XboxUserID)
	if err != nil {
		g.logger.Error("invalid xuid in device presence change", zap.String("xuid", args.XboxUserID), zap.Error(err))
		return EventTypeUnknown
	}

	ctx, ok := inactive.graph[xuid]
	if !ok || ctx.User == nil {
		g.logger.Error("device presence change received for user not in graph", zap.Uint64("xuid", xuid))
		return EventTypeUnknown
	}

	// 複数タイトルが絡むかログインが来たときは部分更新せず全体を取り直す
	fireTimer := len(ctx.User.Presence.TitleRecords) > 1 || args.IsUserLoggedOnDevice
	if fireTimer {
		if isFresh {
			g.presenceRefreshTimer.Fire(xuid)
		}
		return EventTypeUnknown
	}

	ctx.User.Presence.UpdateDevice(args.DeviceType, args.IsUserLoggedOnDevice)
	return EventTypePresenceChanged
}

// caller must hold dataMu
func (g *Graph) applyTitlePresenceChanged(evt *internalEvent, inactive *userBuffer) EventType {
	args := evt.titlePresence
	xuid, err := model.ParseXuid(args.XboxUserID)
	if err != nil {
		g.logger.Error("invalid xuid in title presence change", zap.String("xuid", args.XboxUserID), zap.Error(err))
		return EventTypeUnknown
	}

	ctx, ok := inactive.graph[xuid]
	if !ok || ctx.User == nil {
		g.logger.Error("title presence change received for user not in graph", zap.Uint64("xuid", xuid))
		return EventTypeUnknown
	}

	if args.TitleState == model.TitlePresenceStateEnded {
		ctx.User.Presence.RemoveTitle(args.TitleID)
	}
	return EventTypePresenceChanged
}

// caller must hold dataMu
func (g *Graph) applyPresenceChanged(evt *internalEvent, inactive *userBuffer, isFresh bool) {
	var changed []uint64
	for i := range evt.presenceRecords {
		record := &evt.presenceRecords[i]
		if record.XboxUserID == 0 {
			g.logger.Error("invalid user in presence change")
			continue
		}
		ctx, ok := inactive.graph[record.XboxUserID]
		if !ok || ctx.User == nil {
			continue
		}
		if ctx.User.Presence.Compare(record) {
			ctx.User.Presence = *record
			changed = append(changed, record.XboxUserID)
		}
	}

	if isFresh && len(changed) > 0 {
		g.events.pushAffected(EventTypePresenceChanged, lo.Map(changed, func(x uint64, _ int) string {
			return model.FormatXuid(x)
		}), nil)
	}
}

// ---- 購読 ----

func (g *Graph) subscribeUsersAsync(xuids []uint64) {
	go func() {
		if !g.alive() {
			return
		}
		g.registry.subscribeMany(xuids)
	}()
}

func (g *Graph) unsubscribeUsersAsync(xuids []uint64) {
	go func() {
		if !g.alive() {
			return
		}
		g.registry.unsubscribeMany(xuids)
	}()
}

// ---- hubリスナー ----

func (g *Graph) listenHub() {
	if g.hasHubSub {
		return
	}
	g.hubSub = g.hub.Subscribe(100,
		event.DevicePresenceChanged,
		event.TitlePresenceChanged,
		event.SocialRelationshipChanged,
		event.RTAResync,
		event.RTASubscriptionError,
		event.RTAConnectionStateChanged,
	)
	g.hasHubSub = true
	go func() {
		for msg := range g.hubSub.Receiver {
			g.handleHubMessage(msg)
		}
	}()
}

func (g *Graph) handleHubMessage(msg hub.Message) {
	switch msg.Topic() {
	case event.DevicePresenceChanged:
		args := msg.Fields["args"].(model.DevicePresenceChangeEventArgs)
		if _, err := model.ParseXuid(args.XboxUserID); err != nil {
			g.logger.Error("invalid xuid in device presence push", zap.String("xuid", args.XboxUserID))
			return
		}
		g.internalQueue.push(&internalEvent{kind: internalEventDevicePresenceChanged, devicePresence: args})

	case event.TitlePresenceChanged:
		args := msg.Fields["args"].(model.TitlePresenceChangeEventArgs)
		if args.TitleState == model.TitlePresenceStateStarted {
			xuid, err := model.ParseXuid(args.XboxUserID)
			if err != nil {
				g.logger.Error("invalid xuid in title presence push", zap.String("xuid", args.XboxUserID))
				return
			}
			g.presenceRefreshTimer.Fire(xuid)
			return
		}
		g.internalQueue.push(&internalEvent{kind: internalEventTitlePresenceChanged, titlePresence: args})

	case event.SocialRelationshipChanged:
		g.handleSocialRelationshipChange(msg.Fields["args"].(model.SocialRelationshipChangeEventArgs))

	case event.RTAResync:
		g.resyncTimer.Fire()

	case event.RTASubscriptionError:
		g.logger.Error("rta subscription error",
			zap.Any("subscriptionId", msg.Fields["subscription_id"]),
			zap.Any("error", msg.Fields["error"]))

	case event.RTAConnectionStateChanged:
		g.handleConnectionStateChange(msg.Fields["state"].(model.RTAConnectionState))
	}
}

func (g *Graph) handleSocialRelationshipChange(args model.SocialRelationshipChangeEventArgs) {
	switch args.Notification {
	case model.SocialNotificationAdded:
		g.internalQueue.push(&internalEvent{kind: internalEventUsersAdded, userStrings: args.XboxUserIDs})
	case model.SocialNotificationChanged:
		g.socialGraphRefreshTimer.Fire(args.XboxUserIDs...)
	case model.SocialNotificationRemoved:
		var xuids []uint64
		for _, s := range args.XboxUserIDs {
			xuid, err := model.ParseXuid(s)
			if err != nil {
				g.logger.Error("invalid xuid in relationship removal", zap.String("xuid", s))
				continue
			}
			xuids = append(xuids, xuid)
		}
		g.RemoveUsers(xuids)
	}
}

// handleConnectionStateChange 切断→再接続で全ユーザーの購読を張り直します
func (g *Graph) handleConnectionStateChange(state model.RTAConnectionState) {
	if state == model.RTAConnectionStateDisconnected {
		g.wasDisconnected.Store(true)
		return
	}
	if state != model.RTAConnectionStateConnected || !g.wasDisconnected.Swap(false) {
		return
	}

	if err := g.social.SubscribeToSocialRelationshipChange(g.cfg.LocalUser); err != nil {
		g.logger.Error("failed to re-subscribe to social relationship change", zap.Error(err))
	}

	// 切断で旧接続のハンドルは全て無効。台帳を引き継いで張り直す
	xuids := g.registry.knownUsers()
	g.registry.clear()
	g.registry.subscribeMany(xuids)
}

// ---- タイマーコールバック ----

// socialGraphTimerCallback バッチ追加・更新要求の実体
//
// PeopleHubへ対象ユーザーのフェッチを投げ、結果をusers_changedとして
// キューに積みます。失敗時は要求したXUIDとエラーを載せたイベントになります。
func (g *Graph) socialGraphTimerCallback(users []string, completion *callbuffer.CompletionContext) {
	if !g.alive() || len(users) == 0 {
		return
	}

	result, err := g.peopleHub.GetSocialGraphForUsers(context.Background(), g.cfg.LocalUser, g.cfg.DetailLevel, users)
	if err != nil {
		g.internalQueue.push(&internalEvent{
			kind:        internalEventUsersChanged,
			userStrings: users,
			err:         err,
			completion:  completion,
		})
		return
	}
	g.internalQueue.push(&internalEvent{
		kind:       internalEventUsersChanged,
		users:      result,
		completion: completion,
	})
}

// presenceTimerCallback バッチプレゼンス取得の実体
func (g *Graph) presenceTimerCallback(xuids []uint64, _ *callbuffer.CompletionContext) {
	if !g.alive() || len(xuids) == 0 {
		return
	}

	records, err := g.presence.GetPresenceForMultipleUsers(context.Background(), xuids)
	if err != nil {
		g.logger.Error("presence record update failed", zap.Error(err))
		return
	}
	g.internalQueue.push(&internalEvent{kind: internalEventPresenceChanged, presenceRecords: records})
}

// ---- リコンシリエーション ----

func (g *Graph) runRefreshLoop() {
	t := jitterbug.New(g.cfg.RefreshInterval, &jitterbug.Norm{Stdev: refreshJitterStdev})
	defer t.Stop()
	for {
		select {
		case <-g.done:
			return
		case <-t.C:
			g.refreshGraph(context.Background())
		}
	}
}

// refreshGraph フルフェッチと差分適用でリモートとの乖離を解消します
//
// フォローされていないユーザーはロスターから消えても通知が来ないため、
// 先に更新タイマーへ積んで個別に取り直します。
func (g *Graph) refreshGraph(ctx context.Context) {
	if !g.initialized.Load() {
		return
	}

	g.stateMu.Lock()
	g.setState(graphStateRefresh)
	g.dataMu.Lock()
	var refreshList []string
	if g.buffers.inactive != nil {
		for xuid, uc := range g.buffers.inactive.graph {
			if uc.User == nil {
				continue
			}
			if !uc.User.IsFollowedByCaller {
				refreshList = append(refreshList, model.FormatXuid(xuid))
			}
		}
	}
	g.dataMu.Unlock()
	g.setState(graphStateNormal)
	g.stateMu.Unlock()

	g.socialGraphRefreshTimer.Fire(refreshList...)

	users, err := g.peopleHub.GetSocialGraph(ctx, g.cfg.LocalUser, g.cfg.DetailLevel)
	if err != nil {
		g.logger.Error("graph refresh fetch failed", zap.Error(err))
		return
	}

	userMap := make(map[uint64]model.SocialUser, len(users))
	for i := range users {
		userMap[users[i].XboxUserID] = users[i]
	}
	g.performDiff(userMap)
}

// performDiff フェッチ結果と現グラフの差分を内部イベントに変換します
//
// 生成順は users_added, users_removed, presence_changed, profiles_changed,
// social_relationships_changed で固定です。
func (g *Graph) performDiff(newUsers map[uint64]model.SocialUser) {
	g.stateMu.Lock()
	if !g.buffers.initialized() {
		g.logger.Error("diff cannot happen with uninitialized buffers")
		g.stateMu.Unlock()
		return
	}
	g.setState(graphStateDiff)

	g.dataMu.Lock()
	inactive := g.buffers.inactive

	var usersAdded []string
	var usersRemoved []uint64
	var presenceChanges []model.PresenceRecord
	var profileChanges []model.SocialUser
	var relationshipChanges []model.SocialUser

	for xuid, next := range newUsers {
		uc, ok := inactive.graph[xuid]
		if !ok {
			usersAdded = append(usersAdded, model.FormatXuid(xuid))
			continue
		}
		if uc.User == nil {
			continue
		}
		change := model.Diff(uc.User, &next)
		if change.Has(model.PresenceChange) {
			presenceChanges = append(presenceChanges, next.Presence)
		}
		if change.Has(model.ProfileChange) {
			profileChanges = append(profileChanges, next)
		}
		if change.Has(model.SocialRelationshipChange) {
			relationshipChanges = append(relationshipChanges, next)
		}
	}

	for xuid, uc := range inactive.graph {
		if _, ok := newUsers[xuid]; ok {
			continue
		}
		if uc.User != nil && uc.User.IsFollowingUser {
			usersRemoved = append(usersRemoved, xuid)
		}
	}
	g.dataMu.Unlock()

	// 新規ユーザーは通常の追加経路に乗せる。プレースホルダー挿入が再適用ログに
	// 残るため、両面のどちらでフェッチ結果を受けても整合する
	if len(usersAdded) > 0 {
		g.internalQueue.push(&internalEvent{kind: internalEventUsersAdded, userStrings: usersAdded})
	}
	if len(usersRemoved) > 0 {
		g.internalQueue.push(&internalEvent{kind: internalEventUsersRemoved, xuids: usersRemoved})
	}
	if len(presenceChanges) > 0 {
		g.internalQueue.push(&internalEvent{kind: internalEventPresenceChanged, presenceRecords: presenceChanges})
	}
	if len(profileChanges) > 0 {
		g.internalQueue.push(&internalEvent{kind: internalEventProfilesChanged, users: profileChanges})
	}
	if len(relationshipChanges) > 0 {
		g.internalQueue.push(&internalEvent{kind: internalEventSocialRelationshipsChanged, users: relationshipChanges})
	}

	g.setState(graphStateNormal)
	g.stateMu.Unlock()
}

// ---- プレゼンスポーリング ----

func (g *Graph) pollPresenceLoop(cancel *atomic.Bool) {
	interval := g.cfg.TimerWindow
	if interval <= 0 {
		interval = 10 * time.Millisecond
	}
	for {
		if cancel.Load() || !g.alive() {
			return
		}

		g.dataMu.Lock()
		var xuids []uint64
		if g.buffers.inactive != nil {
			for xuid, uc := range g.buffers.inactive.graph {
				if uc.User != nil {
					xuids = append(xuids, xuid)
				}
			}
		}
		g.dataMu.Unlock()

		g.presencePollingTimer.Fire(xuids...)

		select {
		case <-g.done:
			return
		case <-time.After(interval):
		}
	}
}

// collectMetrics ゲージ更新用の現在値
func (g *Graph) collectMetrics() (int, int) {
	g.dataMu.Lock()
	users := 0
	if g.buffers.active != nil {
		users = len(g.buffers.active.graph)
	}
	g.dataMu.Unlock()
	return users, g.internalQueue.len()
}
