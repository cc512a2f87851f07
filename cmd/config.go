package cmd

import (
	"time"

	"github.com/spf13/viper"

	"github.com/xlivekit/xlivekit/external/peoplehub"
	"github.com/xlivekit/xlivekit/external/presence"
	"github.com/xlivekit/xlivekit/external/rta"
	"github.com/xlivekit/xlivekit/model"
)

// Config 設定
type Config struct {
	// DevMode 開発モードかどうか (default: false)
	DevMode bool `mapstructure:"dev" yaml:"dev"`
	// Pprof pprofを有効にするかどうか (default: false)
	Pprof bool `mapstructure:"pprof" yaml:"pprof"`

	// LocalUser グラフを保持するローカルユーザーのXUID文字列
	LocalUser string `mapstructure:"localUser" yaml:"localUser"`
	// TitleID タイトルプレゼンス購読に使うタイトルID (default: 0)
	TitleID uint32 `mapstructure:"titleId" yaml:"titleId"`

	// Detail PeopleHubに要求する追加詳細
	Detail struct {
		// PreferredColor テーマカラーを取得するかどうか (default: true)
		PreferredColor bool `mapstructure:"preferredColor" yaml:"preferredColor"`
		// Presence プレゼンス詳細を取得するかどうか (default: true)
		Presence bool `mapstructure:"presence" yaml:"presence"`
	} `mapstructure:"detail" yaml:"detail"`

	// Graph グラフ動作設定
	Graph struct {
		// FrameInterval DoWorkを回すフレーム間隔 (default: 33ms)
		FrameInterval time.Duration `mapstructure:"frameInterval" yaml:"frameInterval"`
		// TimerWindow フェッチ合流ウィンドウ (default: 30s)
		TimerWindow time.Duration `mapstructure:"timerWindow" yaml:"timerWindow"`
		// RefreshInterval 定期リコンシリエーションの間隔。0以下で無効 (default: 20m)
		RefreshInterval time.Duration `mapstructure:"refreshInterval" yaml:"refreshInterval"`
		// RichPresencePolling リッチプレゼンスのポーリングを有効にするかどうか (default: false)
		RichPresencePolling bool `mapstructure:"richPresencePolling" yaml:"richPresencePolling"`
	} `mapstructure:"graph" yaml:"graph"`

	// Auth Xbox Live認可設定
	Auth struct {
		// Token Authorizationヘッダに載せるXBL3.0トークン
		Token string `mapstructure:"token" yaml:"token"`
	} `mapstructure:"auth" yaml:"auth"`

	// PeopleHub PeopleHub接続設定
	PeopleHub struct {
		// Origin エンドポイントのベースURL。空で既定値
		Origin string `mapstructure:"origin" yaml:"origin"`
		// Timeout HTTPタイムアウト (default: 30s)
		Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
		// MaxRetries リトライ回数の上限 (default: 3)
		MaxRetries uint64 `mapstructure:"maxRetries" yaml:"maxRetries"`
	} `mapstructure:"peoplehub" yaml:"peoplehub"`

	// Presence プレゼンスAPI接続設定
	Presence struct {
		// Origin エンドポイントのベースURL。空で既定値
		Origin string `mapstructure:"origin" yaml:"origin"`
		// Timeout HTTPタイムアウト (default: 30s)
		Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
		// MaxRetries リトライ回数の上限 (default: 3)
		MaxRetries uint64 `mapstructure:"maxRetries" yaml:"maxRetries"`
	} `mapstructure:"presence" yaml:"presence"`

	// RTA RTA WebSocket接続設定
	RTA struct {
		// URL 接続先。空で既定値
		URL string `mapstructure:"url" yaml:"url"`
	} `mapstructure:"rta" yaml:"rta"`

	// Metrics Prometheusエンドポイント設定
	Metrics struct {
		// Enabled 有効かどうか (default: true)
		Enabled bool `mapstructure:"enabled" yaml:"enabled"`
		// Port 待受ポート番号 (default: 9100)
		Port int `mapstructure:"port" yaml:"port"`
	} `mapstructure:"metrics" yaml:"metrics"`
}

func (c Config) localUserXuid() (uint64, error) {
	return model.ParseXuid(c.LocalUser)
}

func (c Config) detailLevel() model.ExtraDetailLevel {
	var detail model.ExtraDetailLevel
	if c.Detail.PreferredColor {
		detail |= model.PreferredColorDetail
	}
	if c.Detail.Presence {
		detail |= model.PresenceDetail
	}
	return detail
}

func (c Config) getPeopleHubConfig() peoplehub.Config {
	return peoplehub.Config{
		BaseURL:    c.PeopleHub.Origin,
		AuthToken:  c.Auth.Token,
		Timeout:    c.PeopleHub.Timeout,
		MaxRetries: c.PeopleHub.MaxRetries,
	}
}

func (c Config) getPresenceConfig() presence.Config {
	return presence.Config{
		BaseURL:    c.Presence.Origin,
		AuthToken:  c.Auth.Token,
		Timeout:    c.Presence.Timeout,
		MaxRetries: c.Presence.MaxRetries,
	}
}

func (c Config) getRTAConfig() rta.Config {
	return rta.Config{
		URL:       c.RTA.URL,
		AuthToken: c.Auth.Token,
	}
}

func init() {
	viper.SetDefault("dev", false)
	viper.SetDefault("pprof", false)
	viper.SetDefault("localUser", "")
	viper.SetDefault("titleId", 0)
	viper.SetDefault("detail.preferredColor", true)
	viper.SetDefault("detail.presence", true)
	viper.SetDefault("graph.frameInterval", "33ms")
	viper.SetDefault("graph.timerWindow", "30s")
	viper.SetDefault("graph.refreshInterval", "20m")
	viper.SetDefault("graph.richPresencePolling", false)
	viper.SetDefault("auth.token", "")
	viper.SetDefault("peoplehub.origin", "")
	viper.SetDefault("peoplehub.timeout", "30s")
	viper.SetDefault("peoplehub.maxRetries", 3)
	viper.SetDefault("presence.origin", "")
	viper.SetDefault("presence.timeout", "30s")
	viper.SetDefault("presence.maxRetries", 3)
	viper.SetDefault("rta.url", "")
	viper.SetDefault("metrics.enabled", true)
	viper.SetDefault("metrics.port", 9100)
}
