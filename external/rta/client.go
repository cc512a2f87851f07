// Package rta RTA(リアルタイムアクティビティ)のWebSocketクライアントを提供します
//
// 購読リソースへのイベントをhubのイベントトピックに変換して流します。
// 切断時は自動で再接続し、接続状態の遷移もhubに流れます。購読の張り直しは
// クライアントの仕事ではなく、接続状態の変化を観測した側が行います。
package rta

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gofrs/uuid"
	"github.com/gorilla/websocket"
	json "github.com/json-iterator/go"
	"github.com/leandro-lugaresi/hub"
	"go.uber.org/zap"

	"github.com/xlivekit/xlivekit/event"
	"github.com/xlivekit/xlivekit/model"
)

const (
	defaultURL = "wss://rta.xboxlive.com/connect"

	writeWait          = 10 * time.Second
	pongWait           = 60 * time.Second
	pingPeriod         = (pongWait * 9) / 10
	maxReadMessageSize = 1 << 20
	subscribeTimeout   = 30 * time.Second

	// ワイヤ上のメッセージ種別
	messageTypeSubscribe   = 1
	messageTypeUnsubscribe = 2
	messageTypeEvent       = 3
	messageTypeResync      = 4
)

// ErrNotActivated 接続前に購読操作が行われた
var ErrNotActivated = errors.New("rta: not activated")

// subscriptionKind 購読リソースの種類
type subscriptionKind int

const (
	kindUnknown subscriptionKind = iota
	kindDevicePresence
	kindTitlePresence
	kindSocialRelationship
)

type subscription struct {
	handle      uuid.UUID
	subID       uint32
	resourceURI string
	kind        subscriptionKind
	xuid        string
	titleID     uint32
}

// Config RTAクライアントの設定
type Config struct {
	// URL 接続先。空で既定値
	URL string
	// AuthToken Authorizationヘッダに載せるトークン
	AuthToken string
}

// Client RTAクライアント
type Client struct {
	cfg    Config
	hub    *hub.Hub
	logger *zap.Logger

	mu       sync.Mutex
	conn     *websocket.Conn
	active   bool
	seq      uint32
	pending  map[uint32]chan subscribeResponse
	byHandle map[uuid.UUID]*subscription
	bySubID  map[uint32]*subscription
	send     chan []byte
	done     chan struct{}
}

type subscribeResponse struct {
	errCode int
	subID   uint32
}

// NewClient RTAクライアントを生成します
func NewClient(cfg Config, h *hub.Hub, logger *zap.Logger) *Client {
	if cfg.URL == "" {
		cfg.URL = defaultURL
	}
	return &Client{
		cfg:      cfg,
		hub:      h,
		logger:   logger.Named("rta"),
		pending:  make(map[uint32]chan subscribeResponse),
		byHandle: make(map[uuid.UUID]*subscription),
		bySubID:  make(map[uint32]*subscription),
	}
}

// Activate 接続を確立してポンプを開始します
func (c *Client) Activate() error {
	c.mu.Lock()
	if c.active {
		c.mu.Unlock()
		return nil
	}

	conn, err := c.dial()
	if err != nil {
		c.mu.Unlock()
		return err
	}
	c.conn = conn
	c.active = true
	c.send = make(chan []byte, 64)
	c.done = make(chan struct{})
	c.mu.Unlock()

	go c.readLoop(conn)
	go c.writeLoop(conn, c.send, c.done)

	c.publishConnectionState(model.RTAConnectionStateConnected)
	return nil
}

// Deactivate 接続を切断して全購読を破棄します
func (c *Client) Deactivate() {
	c.mu.Lock()
	if !c.active {
		c.mu.Unlock()
		return
	}
	c.active = false
	if c.done != nil {
		close(c.done)
		c.done = nil
	}
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.byHandle = make(map[uuid.UUID]*subscription)
	c.bySubID = make(map[uint32]*subscription)
	c.mu.Unlock()

	c.publishConnectionState(model.RTAConnectionStateDisconnected)
}

// SubscribeToSocialRelationshipChange ローカルユーザーの関係変化を購読します
func (c *Client) SubscribeToSocialRelationshipChange(xuid uint64) error {
	uri := fmt.Sprintf("https://social.xboxlive.com/users/xuid(%s)/friends", model.FormatXuid(xuid))
	_, err := c.Subscribe(uri)
	return err
}

// Subscribe リソースURIの購読を確立してハンドルを返します
func (c *Client) Subscribe(resourceURI string) (uuid.UUID, error) {
	c.mu.Lock()
	if !c.active || c.conn == nil {
		c.mu.Unlock()
		return uuid.Nil, ErrNotActivated
	}
	c.seq++
	seq := c.seq
	respCh := make(chan subscribeResponse, 1)
	c.pending[seq] = respCh
	send := c.send
	c.mu.Unlock()

	payload, err := json.ConfigFastest.Marshal([]interface{}{messageTypeSubscribe, seq, resourceURI})
	if err != nil {
		return uuid.Nil, err
	}
	select {
	case send <- payload:
	case <-time.After(writeWait):
		c.dropPending(seq)
		return uuid.Nil, fmt.Errorf("rta: send buffer full for %s", resourceURI)
	}

	select {
	case resp := <-respCh:
		if resp.errCode != 0 {
			return uuid.Nil, fmt.Errorf("rta: subscribe failed with code %d for %s", resp.errCode, resourceURI)
		}
		sub := newSubscription(resp.subID, resourceURI)
		c.mu.Lock()
		c.byHandle[sub.handle] = sub
		c.bySubID[sub.subID] = sub
		c.mu.Unlock()
		return sub.handle, nil
	case <-time.After(subscribeTimeout):
		c.dropPending(seq)
		return uuid.Nil, fmt.Errorf("rta: subscribe timed out for %s", resourceURI)
	}
}

// Unsubscribe 購読を解除します
func (c *Client) Unsubscribe(handle uuid.UUID) error {
	c.mu.Lock()
	sub, ok := c.byHandle[handle]
	if !ok {
		c.mu.Unlock()
		return nil
	}
	delete(c.byHandle, handle)
	delete(c.bySubID, sub.subID)
	if !c.active || c.conn == nil {
		c.mu.Unlock()
		return nil
	}
	c.seq++
	seq := c.seq
	send := c.send
	c.mu.Unlock()

	payload, err := json.ConfigFastest.Marshal([]interface{}{messageTypeUnsubscribe, seq, sub.subID})
	if err != nil {
		return err
	}
	select {
	case send <- payload:
		return nil
	case <-time.After(writeWait):
		return fmt.Errorf("rta: send buffer full on unsubscribe")
	}
}

func newSubscription(subID uint32, resourceURI string) *subscription {
	sub := &subscription{
		handle:      uuid.Must(uuid.NewV4()),
		subID:       subID,
		resourceURI: resourceURI,
	}
	sub.kind, sub.xuid, sub.titleID = parseResourceURI(resourceURI)
	return sub
}

// parseResourceURI リソースURIから購読の種類と対象を取り出します
func parseResourceURI(uri string) (subscriptionKind, string, uint32) {
	xuid := ""
	if i := strings.Index(uri, "xuid("); i >= 0 {
		if j := strings.Index(uri[i:], ")"); j >= 0 {
			xuid = uri[i+len("xuid(") : i+j]
		}
	}

	switch {
	case strings.Contains(uri, "userpresence.xboxlive.com") && strings.Contains(uri, "/devices"):
		return kindDevicePresence, xuid, 0
	case strings.Contains(uri, "userpresence.xboxlive.com") && strings.Contains(uri, "/titles/"):
		var titleID uint32
		if i := strings.LastIndex(uri, "/titles/"); i >= 0 {
			fmt.Sscanf(uri[i+len("/titles/"):], "%d", &titleID)
		}
		return kindTitlePresence, xuid, titleID
	case strings.Contains(uri, "social.xboxlive.com"):
		return kindSocialRelationship, xuid, 0
	default:
		return kindUnknown, xuid, 0
	}
}

func (c *Client) dial() (*websocket.Conn, error) {
	header := map[string][]string{}
	if c.cfg.AuthToken != "" {
		header["Authorization"] = []string{c.cfg.AuthToken}
	}
	conn, _, err := websocket.DefaultDialer.Dial(c.cfg.URL, header)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

func (c *Client) dropPending(seq uint32) {
	c.mu.Lock()
	delete(c.pending, seq)
	c.mu.Unlock()
}

func (c *Client) readLoop(conn *websocket.Conn) {
	conn.SetReadLimit(maxReadMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.handleDisconnect(conn)
			return
		}
		c.handleMessage(data)
	}
}

func (c *Client) writeLoop(conn *websocket.Conn, send chan []byte, done chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case msg := <-send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = conn.WriteMessage(websocket.PingMessage, []byte{})
		}
	}
}

// handleDisconnect 読み取りエラー後の再接続
//
// 意図的なDeactivateなら何もしません。それ以外は切断を通知し、バックオフ
// しながら繋ぎ直します。再接続後の購読テーブルは空で、張り直しは
// 接続状態イベントを受けた側が行います。
func (c *Client) handleDisconnect(conn *websocket.Conn) {
	c.mu.Lock()
	if !c.active || c.conn != conn {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	if c.done != nil {
		close(c.done)
		c.done = nil
	}
	c.byHandle = make(map[uuid.UUID]*subscription)
	c.bySubID = make(map[uint32]*subscription)
	c.mu.Unlock()

	c.publishConnectionState(model.RTAConnectionStateDisconnected)
	c.publishConnectionState(model.RTAConnectionStateConnecting)

	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = 0
	for {
		c.mu.Lock()
		if !c.active {
			c.mu.Unlock()
			return
		}
		c.mu.Unlock()

		newConn, err := c.dial()
		if err != nil {
			c.logger.Warn("rta reconnect failed", zap.Error(err))
			time.Sleep(b.NextBackOff())
			continue
		}

		c.mu.Lock()
		if !c.active {
			c.mu.Unlock()
			newConn.Close()
			return
		}
		c.conn = newConn
		c.send = make(chan []byte, 64)
		c.done = make(chan struct{})
		send, done := c.send, c.done
		c.mu.Unlock()

		go c.readLoop(newConn)
		go c.writeLoop(newConn, send, done)

		c.publishConnectionState(model.RTAConnectionStateConnected)
		return
	}
}

func (c *Client) handleMessage(data []byte) {
	var raw []json.RawMessage
	if err := json.ConfigFastest.Unmarshal(data, &raw); err != nil || len(raw) == 0 {
		c.logger.Warn("malformed rta message", zap.ByteString("data", data))
		return
	}

	var msgType int
	if err := json.ConfigFastest.Unmarshal(raw[0], &msgType); err != nil {
		return
	}

	switch msgType {
	case messageTypeSubscribe:
		// [1, seq, errCode, subId]
		if len(raw) < 4 {
			return
		}
		var seq uint32
		var resp subscribeResponse
		_ = json.ConfigFastest.Unmarshal(raw[1], &seq)
		_ = json.ConfigFastest.Unmarshal(raw[2], &resp.errCode)
		_ = json.ConfigFastest.Unmarshal(raw[3], &resp.subID)

		c.mu.Lock()
		ch, ok := c.pending[seq]
		delete(c.pending, seq)
		c.mu.Unlock()
		if ok {
			ch <- resp
		}

	case messageTypeEvent:
		// [3, subId, payload]
		if len(raw) < 3 {
			return
		}
		var subID uint32
		_ = json.ConfigFastest.Unmarshal(raw[1], &subID)

		c.mu.Lock()
		sub, ok := c.bySubID[subID]
		c.mu.Unlock()
		if !ok {
			c.publishSubscriptionError(uuid.Nil, fmt.Errorf("rta: event for unknown subscription %d", subID))
			return
		}
		c.dispatchEvent(sub, raw[2])

	case messageTypeResync:
		c.hub.Publish(hub.Message{Name: event.RTAResync})

	default:
		c.logger.Warn("unknown rta message type", zap.Int("type", msgType))
	}
}

// dispatchEvent 購読の種類に応じてペイロードをhubイベントに変換します
func (c *Client) dispatchEvent(sub *subscription, payload json.RawMessage) {
	switch sub.kind {
	case kindDevicePresence:
		var p struct {
			Device     string `json:"device"`
			IsLoggedOn bool   `json:"isLoggedOn"`
		}
		if err := json.ConfigFastest.Unmarshal(payload, &p); err != nil {
			c.publishSubscriptionError(sub.handle, err)
			return
		}
		c.hub.Publish(hub.Message{
			Name: event.DevicePresenceChanged,
			Fields: hub.Fields{"args": model.DevicePresenceChangeEventArgs{
				XboxUserID:           sub.xuid,
				DeviceType:           deviceTypeFromString(p.Device),
				IsUserLoggedOnDevice: p.IsLoggedOn,
			}},
		})

	case kindTitlePresence:
		var state string
		if err := json.ConfigFastest.Unmarshal(payload, &state); err != nil {
			c.publishSubscriptionError(sub.handle, err)
			return
		}
		c.hub.Publish(hub.Message{
			Name: event.TitlePresenceChanged,
			Fields: hub.Fields{"args": model.TitlePresenceChangeEventArgs{
				XboxUserID: sub.xuid,
				TitleID:    sub.titleID,
				TitleState: titleStateFromString(state),
			}},
		})

	case kindSocialRelationship:
		var p struct {
			NotificationType string   `json:"NotificationType"`
			Xuids            []string `json:"Xuids"`
		}
		if err := json.ConfigFastest.Unmarshal(payload, &p); err != nil {
			c.publishSubscriptionError(sub.handle, err)
			return
		}
		c.hub.Publish(hub.Message{
			Name: event.SocialRelationshipChanged,
			Fields: hub.Fields{"args": model.SocialRelationshipChangeEventArgs{
				CallerXboxUserID: sub.xuid,
				Notification:     model.SocialNotificationType(p.NotificationType),
				XboxUserIDs:      p.Xuids,
			}},
		})

	default:
		c.logger.Warn("event for unroutable subscription", zap.String("resource", sub.resourceURI))
	}
}

func (c *Client) publishConnectionState(state model.RTAConnectionState) {
	c.hub.Publish(hub.Message{
		Name:   event.RTAConnectionStateChanged,
		Fields: hub.Fields{"state": state},
	})
}

func (c *Client) publishSubscriptionError(handle uuid.UUID, err error) {
	c.logger.Error("rta subscription error", zap.Error(err))
	c.hub.Publish(hub.Message{
		Name:   event.RTASubscriptionError,
		Fields: hub.Fields{"subscription_id": handle, "error": err},
	})
}

func deviceTypeFromString(s string) model.DeviceType {
	switch strings.ToLower(s) {
	case "pc", "win32":
		return model.DeviceTypePC
	case "xbox360":
		return model.DeviceTypeXbox360
	case "xboxone", "xboxones", "xboxonex":
		return model.DeviceTypeXboxOne
	case "scarlett", "xboxseriess", "xboxseriesx":
		return model.DeviceTypeScarlett
	case "ios":
		return model.DeviceTypeIOS
	case "android":
		return model.DeviceTypeAndroid
	default:
		return model.DeviceTypeUnknown
	}
}

func titleStateFromString(s string) model.TitlePresenceState {
	switch strings.ToLower(s) {
	case "started":
		return model.TitlePresenceStateStarted
	case "ended":
		return model.TitlePresenceStateEnded
	default:
		return model.TitlePresenceStateUnknown
	}
}
