// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"

	"github.com/Vinay94278/postmate/internal/model"
)

// CredentialRepository はユーザーごとのCredentialSetの永続化インターフェース。
type CredentialRepository interface {
	// FindByUserID は指定ユーザーのクレデンシャルを取得する。見つからない場合はnilを返す。
	FindByUserID(ctx context.Context, userID string) (*model.StoredCredentials, error)

	// Upsert はCredentialSetを全置換で保存する。既存のレコードとはマージしない。
	Upsert(ctx context.Context, userID string, set model.CredentialSet) error

	// DeleteByUserID は指定ユーザーのクレデンシャルを削除する。
	DeleteByUserID(ctx context.Context, userID string) error
}
