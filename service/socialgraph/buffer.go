package socialgraph

import (
	"github.com/xlivekit/xlivekit/model"
)

// extraUserFreeSpace スラブ再確保なしで追加できる余裕ユーザー数
const extraUserFreeSpace = 5

// UserContext グラフ上のユーザー1人分のコンテキスト
//
// Userがnilの場合はプロフィール取得待ちのプレースホルダー。RefCountは
// 独立したadd要求がいくつこのエントリを共有しているかを表し、removeは
// 0になって初めてエントリを外します。
type UserContext struct {
	User     *model.SocialUser
	RefCount uint32

	slot int // スラブ内のスロット番号。プレースホルダーは-1
}

// userBuffer グラフレプリカ1面
//
// ユーザーレコードはスラブに連続配置され、graphの値はスラブ内を指します。
// スラブの再確保(rebuild)以外でレコードのアドレスが動くことはありません。
type userBuffer struct {
	slab    []model.SocialUser
	free    []int
	graph   map[uint64]*UserContext
	pending *bufferEventQueue
}

func newUserBuffer(users []model.SocialUser, freeSpaceRequired int) *userBuffer {
	b := &userBuffer{
		graph:   make(map[uint64]*UserContext, len(users)+freeSpaceRequired),
		pending: newBufferEventQueue(),
	}
	b.rebuild(users, freeSpaceRequired)
	return b
}

// rebuild スラブを確保し直してユーザーを詰め直します
//
// graphに既存のエントリ(プレースホルダー含む)がある場合はRefCountを
// 保ったままスロットだけ付け替えます。
func (b *userBuffer) rebuild(users []model.SocialUser, freeSpaceRequired int) {
	total := len(users) + freeSpaceRequired + extraUserFreeSpace
	b.slab = make([]model.SocialUser, total)
	b.free = b.free[:0]
	copy(b.slab, users)

	for i := range users {
		u := &b.slab[i]
		if ctx, ok := b.graph[u.XboxUserID]; ok {
			ctx.User = u
			ctx.slot = i
		} else {
			b.graph[u.XboxUserID] = &UserContext{User: u, RefCount: 1, slot: i}
		}
	}
	for i := len(users); i < total; i++ {
		b.free = append(b.free, i)
	}
}

// addUsers ユーザーを空きスロットに追加します
//
// 空きが足りない場合はmax(expectedFinalSize, 要求数)の余裕を持たせて
// スラブを再構築します。
func (b *userBuffer) addUsers(users []model.SocialUser, expectedFinalSize int) {
	need := max(expectedFinalSize, len(users))
	if need > len(b.free) {
		populated := make([]model.SocialUser, 0, len(b.graph))
		for _, ctx := range b.graph {
			if ctx.User != nil {
				populated = append(populated, *ctx.User)
			}
		}
		b.rebuild(populated, need)
	}

	for i := range users {
		slot := b.free[0]
		b.free = b.free[1:]
		b.slab[slot] = users[i]

		u := &b.slab[slot]
		if ctx, ok := b.graph[u.XboxUserID]; ok {
			ctx.User = u
			ctx.slot = slot
		} else {
			b.graph[u.XboxUserID] = &UserContext{User: u, RefCount: 1, slot: slot}
		}
	}
}

// removeUsers ユーザーをグラフから外しスロットを空きリストへ返します
func (b *userBuffer) removeUsers(xuids []uint64) {
	for _, xuid := range xuids {
		ctx, ok := b.graph[xuid]
		if !ok {
			continue
		}
		if ctx.slot >= 0 {
			b.slab[ctx.slot] = model.SocialUser{}
			b.free = append(b.free, ctx.slot)
		}
		delete(b.graph, xuid)
	}
}

// addPlaceholder プロフィール未取得のエントリを挿入します
func (b *userBuffer) addPlaceholder(xuid uint64) {
	b.graph[xuid] = &UserContext{User: nil, RefCount: 1, slot: -1}
}

// userBufferPair アクティブ/インアクティブの2面グラフレプリカ
//
// 書き込みは常にインアクティブ面に対して行い、swapで役割を入れ替えます。
// 適用済みイベントはアクティブ面(書き込まれなかった方)のpendingに記録され、
// swap後にその面へ再適用されることで両面の一貫性を保ちます。
type userBufferPair struct {
	bufferA  *userBuffer
	bufferB  *userBuffer
	active   *userBuffer
	inactive *userBuffer
}

// initialize 両面を同じ初期ロスターで構築します
func (p *userBufferPair) initialize(users []model.SocialUser) {
	p.bufferA = newUserBuffer(users, 0)
	p.bufferB = newUserBuffer(users, 0)
	p.active = p.bufferA
	p.inactive = p.bufferB
}

// swap アクティブ面とインアクティブ面を入れ替えます
//
// 呼び出し側がGraphState==normalかつ現インアクティブ面のpendingが空で
// あることを保証すること。
func (p *userBufferPair) swap() {
	p.active, p.inactive = p.inactive, p.active
}

// recordEvent 適用したイベントをアクティブ面の再適用ログに記録します
func (p *userBufferPair) recordEvent(evt *internalEvent) {
	p.active.pending.push(evt)
}

func (p *userBufferPair) initialized() bool {
	return p.active != nil && p.inactive != nil
}
