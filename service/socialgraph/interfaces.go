package socialgraph

import (
	"context"

	"github.com/gofrs/uuid"

	"github.com/xlivekit/xlivekit/model"
)

// PeopleHubService ソーシャルロスターを取得する上流サービス
type PeopleHubService interface {
	// GetSocialGraph xuidのソーシャルグラフ全体を取得します
	GetSocialGraph(ctx context.Context, xuid uint64, detail model.ExtraDetailLevel) ([]model.SocialUser, error)
	// GetSocialGraphForUsers filterで指定したユーザーに絞って取得します
	GetSocialGraphForUsers(ctx context.Context, xuid uint64, detail model.ExtraDetailLevel, filter []string) ([]model.SocialUser, error)
}

// PresenceService プレゼンスの取得と変化購読を提供する上流サービス
type PresenceService interface {
	// GetPresenceForMultipleUsers 複数ユーザーのプレゼンスを一括取得します
	GetPresenceForMultipleUsers(ctx context.Context, xuids []uint64) ([]model.PresenceRecord, error)
	// SubscribeToDevicePresenceChange デバイスプレゼンス変化を購読します
	SubscribeToDevicePresenceChange(xuid uint64) (uuid.UUID, error)
	// UnsubscribeFromDevicePresenceChange デバイスプレゼンス変化の購読を解除します
	UnsubscribeFromDevicePresenceChange(xuid uint64, handle uuid.UUID) error
	// SubscribeToTitlePresenceChange タイトルプレゼンス変化を購読します
	SubscribeToTitlePresenceChange(xuid uint64, titleID uint32) (uuid.UUID, error)
	// UnsubscribeFromTitlePresenceChange タイトルプレゼンス変化の購読を解除します
	UnsubscribeFromTitlePresenceChange(xuid uint64, handle uuid.UUID) error
}

// SocialService ソーシャル関係変化の購読を提供する上流サービス
type SocialService interface {
	// SubscribeToSocialRelationshipChange ローカルユーザーの関係変化を購読します
	SubscribeToSocialRelationshipChange(xuid uint64) error
}

// RTAService リアルタイム購読トランスポート
//
// プッシュ本体はhub経由でevent/のトピックに届きます。
type RTAService interface {
	// Activate 接続を確立します
	Activate() error
	// Deactivate 接続を切断し全購読を破棄します
	Deactivate()
}
