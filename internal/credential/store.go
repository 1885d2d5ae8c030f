// Package credential はクライアント側のCredentialSetキャッシュと
// クレデンシャルサービスとの通信を提供する。
package credential

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/Vinay94278/postmate/internal/model"
)

// Service はクレデンシャルサービスのインターフェース。
// Fetchはレコードが存在しない場合に空のCredentialSetを返し、エラーにしない。
type Service interface {
	Fetch(ctx context.Context, userID string) (model.CredentialSet, error)
	Save(ctx context.Context, userID string, set model.CredentialSet) error
}

// Store は1アイデンティティ分のCredentialSetを保持するキャッシュ。
// 別のアイデンティティを読み込むとキャッシュは置き換えられ、マージされない。
type Store struct {
	service Service

	mu      sync.Mutex
	ownerID string
	set     model.CredentialSet
	loaded  bool
}

// NewStore はStoreを生成する。
func NewStore(service Service) *Store {
	return &Store{service: service}
}

// Load はサービスからCredentialSetを取得してキャッシュを置き換える。
// 取得に失敗した場合、そのアイデンティティのキャッシュは空になる。
func (s *Store) Load(ctx context.Context, identity model.Identity) (model.CredentialSet, error) {
	if identity.ID == "" {
		return model.CredentialSet{}, model.NewAuthRequiredError()
	}

	set, err := s.service.Fetch(ctx, identity.ID)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.ownerID = identity.ID
	if err != nil {
		s.set = model.CredentialSet{}
		s.loaded = false
		return model.CredentialSet{}, fmt.Errorf("failed to load credentials: %w", err)
	}
	s.set = set
	s.loaded = true
	return set, nil
}

// Save はCredentialSetを全置換で保存し、保存後に再読み込みを行う。
// 空のフィールドがある場合はI/Oの前にInvalidInputを返す。
// 再読み込みが完了するまで戻らず、再読み込みの失敗はそのまま返す。
func (s *Store) Save(ctx context.Context, identity model.Identity, set model.CredentialSet) error {
	if identity.ID == "" {
		return model.NewAuthRequiredError()
	}
	if strings.TrimSpace(set.PrimaryKey) == "" {
		return model.NewInvalidInputError("groq_api_key", "must not be empty")
	}
	if strings.TrimSpace(set.SecondaryKey) == "" {
		return model.NewInvalidInputError("phi_agno_api_key", "must not be empty")
	}

	if err := s.service.Save(ctx, identity.ID, set); err != nil {
		return fmt.Errorf("failed to save credentials: %w", err)
	}

	// サービス側で正規化された値をキャッシュに反映する
	if _, err := s.Load(ctx, identity); err != nil {
		return err
	}
	return nil
}

// Cached はidentityのCredentialSetがキャッシュにあれば返す。
func (s *Store) Cached(identity model.Identity) (model.CredentialSet, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.loaded || s.ownerID != identity.ID {
		return model.CredentialSet{}, false
	}
	return s.set, true
}

// Clear はキャッシュを消去する。サインアウト時に呼ばれる。
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ownerID = ""
	s.set = model.CredentialSet{}
	s.loaded = false
}
