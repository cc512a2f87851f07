package socialgraph

import (
	"sync"

	"github.com/gofrs/uuid"
	"go.uber.org/zap"
)

// subscriptionHandles ユーザー1人分の購読ハンドル
type subscriptionHandles struct {
	device uuid.UUID
	title  uuid.UUID
}

// subscriptionRegistry ユーザーごとのプレゼンス購読ハンドルの台帳
type subscriptionRegistry struct {
	presence PresenceService
	titleID  uint32
	logger   *zap.Logger

	mu      sync.Mutex
	handles map[uint64]subscriptionHandles
}

func newSubscriptionRegistry(presence PresenceService, titleID uint32, logger *zap.Logger) *subscriptionRegistry {
	return &subscriptionRegistry{
		presence: presence,
		titleID:  titleID,
		logger:   logger,
		handles:  make(map[uint64]subscriptionHandles),
	}
}

// subscribe xuidのデバイス・タイトル両方の購読を張ります
//
// 片方が失敗してももう片方は巻き戻しません。再購読は上書きです。
func (r *subscriptionRegistry) subscribe(xuid uint64) error {
	var h subscriptionHandles
	var deviceErr, titleErr error

	h.device, deviceErr = r.presence.SubscribeToDevicePresenceChange(xuid)
	h.title, titleErr = r.presence.SubscribeToTitlePresenceChange(xuid, r.titleID)

	r.mu.Lock()
	r.handles[xuid] = h
	r.mu.Unlock()

	if deviceErr != nil {
		return deviceErr
	}
	return titleErr
}

// subscribeMany xuidごとに購読を張ります。失敗はログのみで続行します
func (r *subscriptionRegistry) subscribeMany(xuids []uint64) {
	for _, xuid := range xuids {
		if err := r.subscribe(xuid); err != nil {
			r.logger.Warn("presence subscription failed", zap.Uint64("xuid", xuid), zap.Error(err))
		}
	}
}

// unsubscribeMany xuidごとの購読を解除して台帳から外します
func (r *subscriptionRegistry) unsubscribeMany(xuids []uint64) {
	for _, xuid := range xuids {
		r.mu.Lock()
		h, ok := r.handles[xuid]
		if ok {
			delete(r.handles, xuid)
		}
		r.mu.Unlock()
		if !ok {
			continue
		}

		if h.device != uuid.Nil {
			if err := r.presence.UnsubscribeFromDevicePresenceChange(xuid, h.device); err != nil {
				r.logger.Warn("failed to unsubscribe from device presence change", zap.Uint64("xuid", xuid), zap.Error(err))
			}
		}
		if h.title != uuid.Nil {
			if err := r.presence.UnsubscribeFromTitlePresenceChange(xuid, h.title); err != nil {
				r.logger.Warn("failed to unsubscribe from title presence change", zap.Uint64("xuid", xuid), zap.Error(err))
			}
		}
	}
}

// knownUsers 現在購読中のxuid一覧
func (r *subscriptionRegistry) knownUsers() []uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	xuids := make([]uint64, 0, len(r.handles))
	for xuid := range r.handles {
		xuids = append(xuids, xuid)
	}
	return xuids
}

// clear 台帳を空にします。リモート側の解除は行いません
func (r *subscriptionRegistry) clear() {
	r.mu.Lock()
	r.handles = make(map[uint64]subscriptionHandles)
	r.mu.Unlock()
}
