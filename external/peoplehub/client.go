// Package peoplehub PeopleHubのHTTPクライアントを提供します
package peoplehub

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xlivekit/xlivekit/model"
	"github.com/xlivekit/xlivekit/service/socialgraph"
)

const (
	defaultBaseURL = "https://peoplehub.xboxlive.com"
	defaultTimeout = 30 * time.Second

	contractVersion = "3"
)

// Config PeopleHubクライアントの設定
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

// Client PeopleHubクライアント
type Client struct {
	cfg    Config
	http   *http.Client
	logger *zap.Logger
}

// NewClient PeopleHubクライアントを生成します
func NewClient(cfg Config, logger *zap.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		logger: logger.Named("peoplehub"),
	}
}

// GetSocialGraph xuidのソーシャルグラフ全体を取得します
func (c *Client) GetSocialGraph(ctx context.Context, xuid uint64, detail model.ExtraDetailLevel) ([]model.SocialUser, error) {
	url := fmt.Sprintf("%s/users/xuid(%s)/people/social%s", c.cfg.BaseURL, model.FormatXuid(xuid), decorations(detail))
	return c.fetchPeople(ctx, http.MethodGet, url, nil)
}

// GetSocialGraphForUsers filterで指定したユーザーに絞って取得します
func (c *Client) GetSocialGraphForUsers(ctx context.Context, xuid uint64, detail model.ExtraDetailLevel, filter []string) ([]model.SocialUser, error) {
	url := fmt.Sprintf("%s/users/xuid(%s)/people/batch%s", c.cfg.BaseURL, model.FormatXuid(xuid), decorations(detail))
	body, err := json.ConfigFastest.Marshal(map[string][]string{"xuids": filter})
	if err != nil {
		return nil, err
	}
	return c.fetchPeople(ctx, http.MethodPost, url, body)
}

// decorations 詳細レベルをURLのdecorationセグメントに変換します
func decorations(detail model.ExtraDetailLevel) string {
	var parts []string
	if detail&model.PreferredColorDetail != 0 {
		parts = append(parts, "preferredcolor")
	}
	if detail&model.PresenceDetail != 0 {
		parts = append(parts, "presencedetail")
	}
	if len(parts) == 0 {
		return ""
	}
	return "/decoration/" + strings.Join(parts, ",")
}

type personList struct {
	People []person `json:"people"`
}

type person struct {
	XUID               string               `json:"xuid"`
	IsFavorite         bool                 `json:"isFavorite"`
	IsFollowingCaller  bool                 `json:"isFollowingCaller"`
	IsFollowedByCaller bool                 `json:"isFollowedByCaller"`
	DisplayName        string               `json:"displayName"`
	RealName           string               `json:"realName"`
	DisplayPicRaw      string               `json:"displayPicRaw"`
	UseAvatar          bool                 `json:"useAvatar"`
	Gamertag           string               `json:"gamertag"`
	GamerScore         string               `json:"gamerScore"`
	PreferredColor     model.PreferredColor `json:"preferredColor"`
	TitleHistory       model.TitleHistory   `json:"titleHistory"`
	PresenceState      string               `json:"presenceState"`
	PresenceDetails    []presenceDetail     `json:"presenceDetails"`
}

type presenceDetail struct {
	TitleID        uint32 `json:"titleId,string"`
	IsPrimary      bool   `json:"isPrimary"`
	IsBroadcasting bool   `json:"isBroadcasting"`
	Device         string `json:"device"`
	PresenceText   string `json:"presenceText"`
}

func (c *Client) fetchPeople(ctx context.Context, method, url string, body []byte) ([]model.SocialUser, error) {
	var list personList

	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
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
		case resp.StatusCode == http.StatusFailedDependency:
			return backoff.Permanent(fmt.Errorf("%w: peoplehub returned 424", socialgraph.ErrFailedDependency))
		case resp.StatusCode >= 500:
			return fmt.Errorf("%w: peoplehub status %d", socialgraph.ErrNetwork, resp.StatusCode)
		default:
			return backoff.Permanent(fmt.Errorf("%w: peoplehub status %d", socialgraph.ErrNetwork, resp.StatusCode))
		}

		if err := json.ConfigFastest.NewDecoder(resp.Body).Decode(&list); err != nil {
			return backoff.Permanent(fmt.Errorf("%w: decode failed: %s", socialgraph.ErrNetwork, err))
		}
		return nil
	}

	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), c.cfg.MaxRetries), ctx)
	if err := backoff.Retry(operation, b); err != nil {
		return nil, err
	}

	users := make([]model.SocialUser, 0, len(list.People))
	for i := range list.People {
		u, err := list.People[i].toSocialUser()
		if err != nil {
			c.logger.Warn("dropping person with invalid xuid", zap.String("xuid", list.People[i].XUID))
			continue
		}
		users = append(users, u)
	}
	return users, nil
}

func (p *person) toSocialUser() (model.SocialUser, error) {
	xuid, err := model.ParseXuid(p.XUID)
	if err != nil {
		return model.SocialUser{}, err
	}

	titleRecords := make([]model.TitleRecord, 0, len(p.PresenceDetails))
	for _, d := range p.PresenceDetails {
		titleRecords = append(titleRecords, model.TitleRecord{
			TitleID:        d.TitleID,
			IsTitleActive:  d.IsPrimary,
			IsBroadcasting: d.IsBroadcasting,
			DeviceType:     deviceTypeFromString(d.Device),
			PresenceText:   d.PresenceText,
		})
	}

	return model.SocialUser{
		XboxUserID:         xuid,
		IsFavorite:         p.IsFavorite,
		IsFollowingUser:    p.IsFollowingCaller,
		IsFollowedByCaller: p.IsFollowedByCaller,
		DisplayName:        p.DisplayName,
		RealName:           p.RealName,
		DisplayPicURLRaw:   p.DisplayPicRaw,
		UseAvatar:          p.UseAvatar,
		Gamertag:           p.Gamertag,
		Gamerscore:         p.GamerScore,
		PreferredColor:     p.PreferredColor,
		TitleHistory:       p.TitleHistory,
		Presence: model.PresenceRecord{
			XboxUserID:   xuid,
			UserState:    presenceStateFromString(p.PresenceState),
			TitleRecords: titleRecords,
		},
	}, nil
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
