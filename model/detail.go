package model

// ExtraDetailLevel PeopleHubに要求する追加詳細レベル
//
// 中身の解釈はPeopleHub側の仕事で、グラフ本体はこの値を素通しします。
type ExtraDetailLevel uint8

const (
	// NoExtraDetail 追加詳細なし
	NoExtraDetail ExtraDetailLevel = 0
	// PreferredColorDetail テーマカラーを含める
	PreferredColorDetail ExtraDetailLevel = 1 << 0
	// PresenceDetail プレゼンス詳細を含める
	PresenceDetail ExtraDetailLevel = 1 << 1
	// AllExtraDetail 全ての追加詳細を含める
	AllExtraDetail = PreferredColorDetail | PresenceDetail
)
