package model

import "time"

// UserPresenceState ユーザーのプレゼンス状態
type UserPresenceState int

const (
	// UserPresenceStateUnknown 不明
	UserPresenceStateUnknown UserPresenceState = iota
	// UserPresenceStateOnline オンライン
	UserPresenceStateOnline
	// UserPresenceStateAway 離席中
	UserPresenceStateAway
	// UserPresenceStateOffline オフライン
	UserPresenceStateOffline
)

// DeviceType プレゼンスを発しているデバイスの種類
type DeviceType int

const (
	// DeviceTypeUnknown 不明なデバイス
	DeviceTypeUnknown DeviceType = iota
	// DeviceTypePC Windows PC
	DeviceTypePC
	// DeviceTypeXbox360 Xbox 360
	DeviceTypeXbox360
	// DeviceTypeXboxOne Xbox One 世代の本体
	DeviceTypeXboxOne
	// DeviceTypeScarlett Xbox Series 世代の本体
	DeviceTypeScarlett
	// DeviceTypeIOS iOSデバイス
	DeviceTypeIOS
	// DeviceTypeAndroid Androidデバイス
	DeviceTypeAndroid
)

// TitlePresenceState タイトルプレゼンスの状態
type TitlePresenceState int

const (
	// TitlePresenceStateUnknown 不明
	TitlePresenceStateUnknown TitlePresenceState = iota
	// TitlePresenceStateStarted タイトルの起動を検知した
	TitlePresenceStateStarted
	// TitlePresenceStateEnded タイトルの終了を検知した
	TitlePresenceStateEnded
)

// TitleRecord タイトルごとのプレゼンスレコード
type TitleRecord struct {
	TitleID        uint32     `json:"titleId,string"`
	IsTitleActive  bool       `json:"isTitleActive"`
	IsBroadcasting bool       `json:"isBroadcasting"`
	DeviceType     DeviceType `json:"-"`
	PresenceText   string     `json:"presenceText"`
	LastModified   time.Time  `json:"lastModified"`
}

// PresenceRecord ユーザー1人分のプレゼンスレコード
//
// タイトルレコードの集合。並び順に意味はない。
type PresenceRecord struct {
	XboxUserID   uint64            `json:"-"`
	UserState    UserPresenceState `json:"-"`
	TitleRecords []TitleRecord     `json:"titleRecords"`
}

// IsUserPlayingTitle 指定したタイトルをアクティブにプレイ中かどうか
func (r *PresenceRecord) IsUserPlayingTitle(titleID uint32) bool {
	for i := range r.TitleRecords {
		if r.TitleRecords[i].TitleID == titleID && r.TitleRecords[i].IsTitleActive {
			return true
		}
	}
	return false
}

// UpdateDevice 指定したデバイスのログイン状態をレコードに反映します
func (r *PresenceRecord) UpdateDevice(deviceType DeviceType, isUserLoggedOnDevice bool) {
	for i := range r.TitleRecords {
		if r.TitleRecords[i].DeviceType == deviceType {
			r.TitleRecords[i].IsTitleActive = isUserLoggedOnDevice
		}
	}
	if isUserLoggedOnDevice {
		r.UserState = UserPresenceStateOnline
		return
	}
	for i := range r.TitleRecords {
		if r.TitleRecords[i].IsTitleActive {
			return
		}
	}
	r.UserState = UserPresenceStateOffline
}

// RemoveTitle 指定したタイトルのレコードを取り除きます
func (r *PresenceRecord) RemoveTitle(titleID uint32) {
	records := r.TitleRecords[:0]
	for _, tr := range r.TitleRecords {
		if tr.TitleID != titleID {
			records = append(records, tr)
		}
	}
	r.TitleRecords = records
}

// Compare 2つのプレゼンスレコードに意味上の差分があるかどうかを返します
//
// タイトルレコードの並び順と更新時刻(LastModified)は無視します。
// Compare(a, a) == false であり、対称です。
func (r *PresenceRecord) Compare(other *PresenceRecord) bool {
	if r.UserState != other.UserState {
		return true
	}
	if len(r.TitleRecords) != len(other.TitleRecords) {
		return true
	}
	for i := range r.TitleRecords {
		a := &r.TitleRecords[i]
		found := false
		for j := range other.TitleRecords {
			b := &other.TitleRecords[j]
			if a.TitleID != b.TitleID {
				continue
			}
			found = true
			if a.IsTitleActive != b.IsTitleActive ||
				a.IsBroadcasting != b.IsBroadcasting ||
				a.DeviceType != b.DeviceType ||
				a.PresenceText != b.PresenceText {
				return true
			}
			break
		}
		if !found {
			return true
		}
	}
	return false
}
