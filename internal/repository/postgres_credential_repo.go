package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Vinay94278/postmate/internal/model"
)

// PostgresCredentialRepo はPostgreSQLを使用したクレデンシャルリポジトリ。
type PostgresCredentialRepo struct {
	db *sql.DB
}

// NewPostgresCredentialRepo はPostgresCredentialRepoを生成する。
func NewPostgresCredentialRepo(db *sql.DB) *PostgresCredentialRepo {
	return &PostgresCredentialRepo{db: db}
}

// FindByUserID は指定ユーザーのクレデンシャルを取得する。見つからない場合はnilを返す。
func (r *PostgresCredentialRepo) FindByUserID(ctx context.Context, userID string) (*model.StoredCredentials, error) {
	c := &model.StoredCredentials{}
	err := r.db.QueryRowContext(ctx,
		`SELECT user_id, groq_api_key, phi_agno_api_key, created_at, updated_at
		 FROM credentials WHERE user_id = $1`,
		userID,
	).Scan(&c.UserID, &c.Set.PrimaryKey, &c.Set.SecondaryKey, &c.CreatedAt, &c.UpdatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find credentials by user ID: %w", err)
	}

	return c, nil
}

// Upsert はCredentialSetを全置換で保存する。
// 既存レコードがある場合は両方のキーを上書きし、created_atは維持する。
func (r *PostgresCredentialRepo) Upsert(ctx context.Context, userID string, set model.CredentialSet) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO credentials (user_id, groq_api_key, phi_agno_api_key, created_at, updated_at)
		 VALUES ($1, $2, $3, now(), now())
		 ON CONFLICT (user_id) DO UPDATE
		 SET groq_api_key = EXCLUDED.groq_api_key,
		     phi_agno_api_key = EXCLUDED.phi_agno_api_key,
		     updated_at = now()`,
		userID, set.PrimaryKey, set.SecondaryKey,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert credentials: %w", err)
	}
	return nil
}

// DeleteByUserID は指定ユーザーのクレデンシャルを削除する。
// 存在しない場合もエラーにしない。
func (r *PostgresCredentialRepo) DeleteByUserID(ctx context.Context, userID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM credentials WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("failed to delete credentials: %w", err)
	}
	return nil
}
