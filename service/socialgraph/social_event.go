package socialgraph

// EventType コンシューマに見えるイベントの種類
type EventType int

const (
	// EventTypeUnknown 不明。キューに積まれる前に捨てられます
	EventTypeUnknown EventType = iota
	// EventTypeUsersAddedToGraph ユーザーがグラフに追加された
	EventTypeUsersAddedToGraph
	// EventTypeUsersRemovedFromGraph ユーザーがグラフから削除された
	EventTypeUsersRemovedFromGraph
	// EventTypePresenceChanged プレゼンスが変化した
	EventTypePresenceChanged
	// EventTypeProfilesChanged プロフィールが変化した
	EventTypeProfilesChanged
	// EventTypeSocialRelationshipsChanged ソーシャル関係が変化した
	EventTypeSocialRelationshipsChanged
)

func (t EventType) String() string {
	switch t {
	case EventTypeUsersAddedToGraph:
		return "users_added_to_graph"
	case EventTypeUsersRemovedFromGraph:
		return "users_removed_from_graph"
	case EventTypePresenceChanged:
		return "presence_changed"
	case EventTypeProfilesChanged:
		return "profiles_changed"
	case EventTypeSocialRelationshipsChanged:
		return "social_relationships_changed"
	default:
		return "unknown"
	}
}

// SocialEvent コンシューマに届くグラフ変化イベント
//
// AffectedUsersはAPI安定性のためXUIDの10進数文字列で保持します。
type SocialEvent struct {
	// LocalUser このイベントが属するローカルユーザーのXUID
	LocalUser uint64
	// Type イベントの種類
	Type EventType
	// AffectedUsers 影響を受けたユーザーのXUID文字列
	AffectedUsers []string
	// Err イベントに紐づくエラー(正常時はnil)
	Err error
}
