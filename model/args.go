package model

// SocialNotificationType ソーシャル関係変更通知の種類
type SocialNotificationType string

const (
	// SocialNotificationAdded 関係が追加された
	SocialNotificationAdded SocialNotificationType = "Added"
	// SocialNotificationChanged 関係が変更された
	SocialNotificationChanged SocialNotificationType = "Changed"
	// SocialNotificationRemoved 関係が削除された
	SocialNotificationRemoved SocialNotificationType = "Removed"
)

// RTAConnectionState RTA接続状態
type RTAConnectionState int

const (
	// RTAConnectionStateConnecting 接続試行中
	RTAConnectionStateConnecting RTAConnectionState = iota
	// RTAConnectionStateConnected 接続済み
	RTAConnectionStateConnected
	// RTAConnectionStateDisconnected 切断された
	RTAConnectionStateDisconnected
)

// DevicePresenceChangeEventArgs デバイスプレゼンス変更通知
type DevicePresenceChangeEventArgs struct {
	XboxUserID           string
	DeviceType           DeviceType
	IsUserLoggedOnDevice bool
}

// TitlePresenceChangeEventArgs タイトルプレゼンス変更通知
type TitlePresenceChangeEventArgs struct {
	XboxUserID string
	TitleID    uint32
	TitleState TitlePresenceState
}

// SocialRelationshipChangeEventArgs ソーシャル関係変更通知
type SocialRelationshipChangeEventArgs struct {
	CallerXboxUserID string
	Notification     SocialNotificationType
	XboxUserIDs      []string
}
