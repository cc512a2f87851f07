package event

const (
	// DevicePresenceChanged デバイスプレゼンスのプッシュ通知が届いた
	// 	Fields:
	// 		args: model.DevicePresenceChangeEventArgs
	DevicePresenceChanged = "presence.device.changed"
	// TitlePresenceChanged タイトルプレゼンスのプッシュ通知が届いた
	// 	Fields:
	// 		args: model.TitlePresenceChangeEventArgs
	TitlePresenceChanged = "presence.title.changed"
	// SocialRelationshipChanged ソーシャル関係のプッシュ通知が届いた
	// 	Fields:
	// 		args: model.SocialRelationshipChangeEventArgs
	SocialRelationshipChanged = "social.relationship.changed"

	// RTAResync RTAがフルリシンクを要求した
	// 	Fields: (なし)
	RTAResync = "rta.resync"
	// RTASubscriptionError RTA購読でエラーが発生した
	// 	Fields:
	// 		subscription_id: uuid.UUID
	// 		error: error
	RTASubscriptionError = "rta.subscription.error"
	// RTAConnectionStateChanged RTAの接続状態が変化した
	// 	Fields:
	// 		state: model.RTAConnectionState
	RTAConnectionStateChanged = "rta.connection.state_changed"
)
