package model

// ChangeList ソーシャルユーザー差分のビットフラグ
type ChangeList uint8

const (
	// NoChange 差分なし
	NoChange ChangeList = 0
	// ProfileChange プロフィールに差分あり
	ProfileChange ChangeList = 1 << 0
	// SocialRelationshipChange ソーシャル関係に差分あり
	SocialRelationshipChange ChangeList = 1 << 1
	// PresenceChange プレゼンスに差分あり
	PresenceChange ChangeList = 1 << 2
)

// Has 指定したフラグが立っているかどうか
func (c ChangeList) Has(flag ChangeList) bool {
	return c&flag == flag
}

// PreferredColor ユーザーのテーマカラー
type PreferredColor struct {
	PrimaryColor   string `json:"primaryColor"`
	SecondaryColor string `json:"secondaryColor"`
	TertiaryColor  string `json:"tertiaryColor"`
}

// TitleHistory タイトルのプレイ履歴
type TitleHistory struct {
	HasUserPlayed      bool   `json:"hasUserPlayed"`
	LastTimeUserPlayed string `json:"lastTimePlayed"`
}

// SocialUser ソーシャルグラフ上のリモートアカウント1人分のレコード
//
// 値として扱う。バッファ間の受け渡しは常に値コピーで行い、ポインタの共有は
// 行わないこと。
type SocialUser struct {
	XboxUserID         uint64         `json:"-"`
	IsFavorite         bool           `json:"isFavorite"`
	IsFollowingUser    bool           `json:"isFollowingCaller"`
	IsFollowedByCaller bool           `json:"isFollowedByCaller"`
	DisplayName        string         `json:"displayName"`
	RealName           string         `json:"realName"`
	DisplayPicURLRaw   string         `json:"displayPicRaw"`
	UseAvatar          bool           `json:"useAvatar"`
	Gamertag           string         `json:"gamertag"`
	Gamerscore         string         `json:"gamerScore"`
	PreferredColor     PreferredColor `json:"preferredColor"`
	TitleHistory       TitleHistory   `json:"titleHistory"`
	Presence           PresenceRecord `json:"-"`
}

// Diff 2つのソーシャルユーザーの差分を計算します
//
// プロフィール・ソーシャル関係・プレゼンスのどこに変化があったかをフラグで
// 返します。プレゼンスの比較は PresenceRecord.Compare に従い、タイトルの
// 並び順と更新時刻を無視します。
func Diff(prev, next *SocialUser) ChangeList {
	change := NoChange
	if prev.DisplayName != next.DisplayName ||
		prev.RealName != next.RealName ||
		prev.DisplayPicURLRaw != next.DisplayPicURLRaw ||
		prev.UseAvatar != next.UseAvatar ||
		prev.Gamertag != next.Gamertag ||
		prev.Gamerscore != next.Gamerscore ||
		prev.PreferredColor != next.PreferredColor {
		change |= ProfileChange
	}
	if prev.IsFavorite != next.IsFavorite ||
		prev.IsFollowingUser != next.IsFollowingUser ||
		prev.IsFollowedByCaller != next.IsFollowedByCaller {
		change |= SocialRelationshipChange
	}
	if prev.Presence.Compare(&next.Presence) {
		change |= PresenceChange
	}
	return change
}
