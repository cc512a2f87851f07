// Package presence プレゼンスAPIのHTTPクライアントを提供します
//
// バッチ取得はHTTP、変化の購読はRTAクライアントへの委譲です。
package presence

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gofrs/uuid"
	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xlivekit/xlivekit/external/rta"
	"github.com/xlivekit/xlivekit/model"
	"github.com/xlivekit/xlivekit/service/socialgraph"
)

const (
	defaultBaseURL = "https://userpresence.xboxlive.com"
	defaultTimeout = 30 * time.Second

	contractVersion = "3"
)

// Config プレゼンスクライアントの設定
type Config struct {
	// BaseURL エンドポイントのベースURL。空で既定値
	BaseURL string
	// AuthToken Authorizationヘッダに載せるXBL3.0トークン
	AuthToken string
	// Timeout HTTPタイムアウト。0で既定値
	Timeout time.Duration
	// MaxRetries リトライ回数の上限
	MaxRetries uint64
}

// Client プレゼンスクライアント
type Client struct {
	cfg    Config
	http   *http.Client
	rta    *rta.Client
	logger *zap.Logger
}

// NewClient プレゼンスクライアントを生成します
func NewClient(cfg Config, rtaClient *rta.Client, logger *zap.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		rta:    rtaClient,
		logger: logger.Named("presence"),
	}
}

type batchRequest struct {
	Users []string `json:"users"`
	Level string   `json:"level"`
}

type presenceWire struct {
	XUID    string       `json:"xuid"`
	State   string       `json:"state"`
	Devices []deviceWire `json:"devices"`
}

type deviceWire struct {
	Type   string      `json:"type"`
	Titles []titleWire `json:"titles"`
}

type titleWire struct {
	ID           uint32        `json:"id,string"`
	State        string        `json:"state"`
	Placement    string        `json:"placement"`
	LastModified time.Time     `json:"lastModified"`
	Activity     *activityWire `json:"activity"`
}

type activityWire struct {
	IsBroadcasting bool   `json:"isBroadcasting"`
	RichPresence   string `json:"richPresence"`
}

// GetPresenceForMultipleUsers 複数ユーザーのプレゼンスを一括取得します
func (c *Client) GetPresenceForMultipleUsers(ctx context.Context, xuids []uint64) ([]model.PresenceRecord, error) {
	users := make([]string, 0, len(xuids))
	for _, xuid := range xuids {
		users = append(users, model.FormatXuid(xuid))
	}
	body, err := json.ConfigFastest.Marshal(batchRequest{Users: users, Level: "all"})
	if err != nil {
		return nil, err
	}

	var wires []presenceWire
	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/users/batch", bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-XBL-Contract-Version", contractVersion)
		if c.cfg.AuthToken != "" {
			req.Header.Set("Authorization", c.cfg.AuthToken)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return fmt.Errorf("%w: %s", socialgraph.ErrNetwork, err)
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusOK:
		case resp.StatusCode >= 500:
			return fmt.Errorf("%w: presence status %d", socialgraph.ErrNetwork, resp.StatusCode)
		default:
			return backoff.Permanent(fmt.Errorf("%w: presence status %d", socialgraph.ErrNetwork, resp.StatusCode))
		}

		if err := json.ConfigFastest.NewDecoder(resp.Body).Decode(&wires); err != nil {
			return backoff.Permanent(fmt.Errorf("%w: decode failed: %s", socialgraph.ErrNetwork, err))
		}
		return nil
	}

	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), c.cfg.MaxRetries), ctx)
	if err := backoff.Retry(operation, b); err != nil {
		return nil, err
	}

	records := make([]model.PresenceRecord, 0, len(wires))
	for i := range wires {
		record, err := wires[i].toRecord()
		if err != nil {
			c.logger.Warn("dropping presence record with invalid xuid", zap.String("xuid", wires[i].XUID))
			continue
		}
		records = append(records, record)
	}
	return records, nil
}

func (w *presenceWire) toRecord() (model.PresenceRecord, error) {
	xuid, err := model.ParseXuid(w.XUID)
	if err != nil {
		return model.PresenceRecord{}, err
	}

	var titleRecords []model.TitleRecord
	for _, device := range w.Devices {
		for _, title := range device.Titles {
			tr := model.TitleRecord{
				TitleID:       title.ID,
				IsTitleActive: strings.EqualFold(title.State, "active") && strings.EqualFold(title.Placement, "full"),
				DeviceType:    deviceTypeFromString(device.Type),
				LastModified:  title.LastModified,
			}
			if title.Activity != nil {
				tr.IsBroadcasting = title.Activity.IsBroadcasting
				tr.PresenceText = title.Activity.RichPresence
			}
			titleRecords = append(titleRecords, tr)
		}
	}

	return model.PresenceRecord{
		XboxUserID:   xuid,
		UserState:    presenceStateFromString(w.State),
		TitleRecords: titleRecords,
	}, nil
}

// SubscribeToDevicePresenceChange デバイスプレゼンス変化を購読します
func (c *Client) SubscribeToDevicePresenceChange(xuid uint64) (uuid.UUID, error) {
	uri := fmt.Sprintf("%s/users/xuid(%s)/devices", defaultBaseURL, model.FormatXuid(xuid))
	return c.rta.Subscribe(uri)
}

// UnsubscribeFromDevicePresenceChange デバイスプレゼンス変化の購読を解除します
func (c *Client) UnsubscribeFromDevicePresenceChange(_ uint64, handle uuid.UUID) error {
	return c.rta.Unsubscribe(handle)
}

// SubscribeToTitlePresenceChange タイトルプレゼンス変化を購読します
func (c *Client) SubscribeToTitlePresenceChange(xuid uint64, titleID uint32) (uuid.UUID, error) {
	uri := fmt.Sprintf("%s/users/xuid(%s)/titles/%d", defaultBaseURL, model.FormatXuid(xuid), titleID)
	return c.rta.Subscribe(uri)
}

// UnsubscribeFromTitlePresenceChange タイトルプレゼンス変化の購読を解除します
func (c *Client) UnsubscribeFromTitlePresenceChange(_ uint64, handle uuid.UUID) error {
	return c.rta.Unsubscribe(handle)
}

func presenceStateFromString(s string) model.UserPresenceState {
	switch strings.ToLower(s) {
	case "online":
		return model.UserPresenceStateOnline
	case "away":
		return model.UserPresenceStateAway
	case "offline":
		return model.UserPresenceStateOffline
	default:
		return model.UserPresenceStateUnknown
	}
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
