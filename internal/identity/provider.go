// Package identity はアイデンティティプロバイダーとの境界を提供する。
// セッション変化をプッシュ型で購読者に通知する。
package identity

import (
	"sync"

	"github.com/Vinay94278/postmate/internal/model"
)

// Listener はセッション変化の通知を受け取る関数。
// サインアウト状態ではnilが渡される。
type Listener func(identity *model.Identity)

// Provider はアイデンティティプロバイダーのインターフェース。
type Provider interface {
	// Subscribe はlistenerを登録し、現在のアイデンティティを直ちに1回通知する。
	// 以降はセッションが変化するたびに1回ずつ通知する。
	// 戻り値の関数を呼ぶと購読を解除する。
	Subscribe(listener Listener) (unsubscribe func())
}

// Broker はメモリ上でセッション状態を保持し、購読者に配信するProvider。
// FileProviderの配信部分としても使われる。
type Broker struct {
	// deliverMu は通知の順序を変化の順序と一致させる。
	// listener内からSignIn/SignOutを呼んではならない。
	deliverMu sync.Mutex

	mu        sync.Mutex
	current   *model.Identity
	listeners map[int]Listener
	nextID    int
}

// NewBroker はサインアウト状態のBrokerを生成する。
func NewBroker() *Broker {
	return &Broker{
		listeners: make(map[int]Listener),
	}
}

// Subscribe はlistenerを登録し、現在のアイデンティティを通知する。
func (b *Broker) Subscribe(listener Listener) func() {
	b.deliverMu.Lock()
	defer b.deliverMu.Unlock()

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.listeners[id] = listener
	current := copyIdentity(b.current)
	b.mu.Unlock()

	listener(current)

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.listeners, id)
			b.mu.Unlock()
		})
	}
}

// SignIn はアイデンティティを設定して購読者に通知する。
// 同じIDが既に設定されている場合は通知しない。
func (b *Broker) SignIn(userID string) {
	if userID == "" {
		b.SignOut()
		return
	}
	b.set(&model.Identity{ID: userID})
}

// SignOut はアイデンティティを消去して購読者に通知する。
// 既にサインアウト状態の場合は通知しない。
func (b *Broker) SignOut() {
	b.set(nil)
}

// Current は現在のアイデンティティのコピーを返す。
func (b *Broker) Current() *model.Identity {
	b.mu.Lock()
	defer b.mu.Unlock()
	return copyIdentity(b.current)
}

// set は状態が変化した場合のみ購読者へ通知する。
// 通知はmuの外で行い、listener内からCurrentを呼び出せるようにする。
func (b *Broker) set(identity *model.Identity) {
	b.deliverMu.Lock()
	defer b.deliverMu.Unlock()

	b.mu.Lock()
	if sameIdentity(b.current, identity) {
		b.mu.Unlock()
		return
	}
	b.current = identity
	listeners := make([]Listener, 0, len(b.listeners))
	for _, l := range b.listeners {
		listeners = append(listeners, l)
	}
	b.mu.Unlock()

	for _, l := range listeners {
		l(copyIdentity(identity))
	}
}

func sameIdentity(a, b *model.Identity) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.ID == b.ID
}

func copyIdentity(identity *model.Identity) *model.Identity {
	if identity == nil {
		return nil
	}
	c := *identity
	return &c
}

// compile-time interface check
var _ Provider = (*Broker)(nil)
