package socialgraph

import (
	"github.com/samber/lo"

	"github.com/xlivekit/xlivekit/model"
	"github.com/xlivekit/xlivekit/utils/callbuffer"
)

// internalEventKind 内部イベントの種類
type internalEventKind int

const (
	internalEventUnknown internalEventKind = iota
	internalEventUsersAdded
	internalEventUsersChanged
	internalEventUsersRemoved
	internalEventDevicePresenceChanged
	internalEventTitlePresenceChanged
	internalEventPresenceChanged
	internalEventProfilesChanged
	internalEventSocialRelationshipsChanged
)

func (k internalEventKind) String() string {
	switch k {
	case internalEventUsersAdded:
		return "users_added"
	case internalEventUsersChanged:
		return "users_changed"
	case internalEventUsersRemoved:
		return "users_removed"
	case internalEventDevicePresenceChanged:
		return "device_presence_changed"
	case internalEventTitlePresenceChanged:
		return "title_presence_changed"
	case internalEventPresenceChanged:
		return "presence_changed"
	case internalEventProfilesChanged:
		return "profiles_changed"
	case internalEventSocialRelationshipsChanged:
		return "social_relationships_changed"
	default:
		return "unknown"
	}
}

// internalEvent グラフ適用待ちの生イベント
//
// kindに応じて使用するフィールドが決まるタグ付きバリアント。
type internalEvent struct {
	kind internalEventKind

	// userStrings users_added: 追加要求されたXUID文字列
	userStrings []string
	// users users_changed / profiles_changed / social_relationships_changed
	users []model.SocialUser
	// xuids users_removed、および合成presence_changedの影響ユーザー
	xuids []uint64
	// presenceRecords presence_changed
	presenceRecords []model.PresenceRecord

	devicePresence model.DevicePresenceChangeEventArgs
	titlePresence  model.TitlePresenceChangeEventArgs

	// err users_changedに乗るフェッチ結果のエラー
	err error
	// done users_addedの完了通知チャンネル
	done chan<- error
	// completion users_changedに乗るバッチ追加の完了コンテキスト
	completion *callbuffer.CompletionContext
}

// affectedXuidStrings ユーザー向けイベントに載せる影響XUIDの文字列表現
func (e *internalEvent) affectedXuidStrings() []string {
	switch e.kind {
	case internalEventUsersAdded:
		return e.userStrings
	case internalEventUsersChanged:
		if len(e.users) == 0 {
			// フェッチ失敗時は要求したXUIDがそのまま影響ユーザー
			return e.userStrings
		}
		return lo.Map(e.users, func(u model.SocialUser, _ int) string {
			return model.FormatXuid(u.XboxUserID)
		})
	case internalEventProfilesChanged, internalEventSocialRelationshipsChanged:
		return lo.Map(e.users, func(u model.SocialUser, _ int) string {
			return model.FormatXuid(u.XboxUserID)
		})
	case internalEventUsersRemoved:
		return lo.Map(e.xuids, func(x uint64, _ int) string {
			return model.FormatXuid(x)
		})
	case internalEventDevicePresenceChanged:
		return []string{e.devicePresence.XboxUserID}
	case internalEventTitlePresenceChanged:
		return []string{e.titlePresence.XboxUserID}
	case internalEventPresenceChanged:
		if len(e.xuids) > 0 {
			return lo.Map(e.xuids, func(x uint64, _ int) string {
				return model.FormatXuid(x)
			})
		}
		return lo.Map(e.presenceRecords, func(r model.PresenceRecord, _ int) string {
			return model.FormatXuid(r.XboxUserID)
		})
	default:
		return nil
	}
}
