// Package model はドメインモデルを定義する。
package model

import "time"

// Identity はアイデンティティプロバイダーが発行したユーザー参照を表す。
// IDは不透明な一意識別子で、サインインで生成されサインアウトで消える。
type Identity struct {
	ID string
}

// CredentialSet は生成リクエストに必要な2つのAPIキーの組を表す。
// PrimaryKeyはLLMプロバイダー（Groq）、SecondaryKeyはエージェント基盤（Agno）のキー。
// 更新は保存（全置換）と読み込みのみで、部分更新は行わない。
type CredentialSet struct {
	PrimaryKey   string
	SecondaryKey string
}

// Complete は両方のキーが空でない場合にtrueを返す。
// 生成はCompleteなCredentialSetがある場合のみ許可される。
func (c CredentialSet) Complete() bool {
	return c.PrimaryKey != "" && c.SecondaryKey != ""
}

// IsEmpty は両方のキーが空の場合にtrueを返す。
func (c CredentialSet) IsEmpty() bool {
	return c.PrimaryKey == "" && c.SecondaryKey == ""
}

// AccessState はアイデンティティとCredentialSetから導出されるゲート状態。
// 単独では保持せず、常にDeriveAccessStateで再計算する。
type AccessState string

const (
	AccessUnauthenticated    AccessState = "unauthenticated"
	AccessMissingCredentials AccessState = "missingCredentials"
	AccessReady              AccessState = "ready"
)

// DeriveAccessState はアイデンティティの有無とCredentialSetの充足からAccessStateを求める。
func DeriveAccessState(identity *Identity, creds CredentialSet) AccessState {
	if identity == nil || identity.ID == "" {
		return AccessUnauthenticated
	}
	if !creds.Complete() {
		return AccessMissingCredentials
	}
	return AccessReady
}

// NavigationIntent はワークフローが外部ルーターに要求する遷移先。
// ワークフロー自体は遷移を実行せず、値として出力するだけ。
type NavigationIntent string

const (
	// NavigateLogin はログイン入口への遷移を表す。
	NavigateLogin NavigationIntent = "login"
	// NavigateCredentials はAPIキー入力画面への遷移を表す。
	NavigateCredentials NavigationIntent = "credentials"
	// NavigateMain は生成ワークフロー画面への遷移を表す。
	NavigateMain NavigationIntent = "main"
)

// StoredCredentials はクレデンシャルサービスが永続化するユーザーごとのCredentialSet。
type StoredCredentials struct {
	UserID    string
	Set       CredentialSet
	CreatedAt time.Time
	UpdatedAt time.Time
}
