package identity

import (
	"bytes"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Vinay94278/postmate/internal/model"
)

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
}

// waitFor はcondがtrueになるまで待つ。fsnotifyの通知は非同期のため。
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("条件が時間内に満たされなかった")
}

func TestReadSession_MissingFile(t *testing.T) {
	identity, err := ReadSession(filepath.Join(t.TempDir(), "session.json"))
	if err != nil {
		t.Fatalf("存在しないファイルでエラーを返した: %v", err)
	}
	if identity != nil {
		t.Errorf("存在しないファイルではnilを返すべき: %v", identity)
	}
}

func TestWriteSession_ThenRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "session.json")

	if err := WriteSession(path, "  user-42  "); err != nil {
		t.Fatalf("WriteSession がエラーを返した: %v", err)
	}

	identity, err := ReadSession(path)
	if err != nil {
		t.Fatalf("ReadSession がエラーを返した: %v", err)
	}
	if identity == nil || identity.ID != "user-42" {
		t.Errorf("読み込んだID = %v, want user-42", identity)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat がエラーを返した: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("パーミッション = %o, want 600", perm)
	}
}

func TestWriteSession_EmptyIDRejected(t *testing.T) {
	err := WriteSession(filepath.Join(t.TempDir(), "session.json"), "   ")
	if !errors.Is(err, model.ErrInvalidInput) {
		t.Errorf("空IDはInvalidInputになるべき: %v", err)
	}
}

func TestReadSession_EmptyUserIDIsSignedOut(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	if err := os.WriteFile(path, []byte(`{"user_id":""}`), 0o600); err != nil {
		t.Fatal(err)
	}

	identity, err := ReadSession(path)
	if err != nil {
		t.Fatalf("ReadSession がエラーを返した: %v", err)
	}
	if identity != nil {
		t.Errorf("空のuser_idはnilとして扱うべき: %v", identity)
	}
}

func TestReadSession_InvalidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	if err := os.WriteFile(path, []byte(`not json`), 0o600); err != nil {
		t.Fatal(err)
	}

	if _, err := ReadSession(path); err == nil {
		t.Error("不正なJSONでエラーを返すべき")
	}
}

func TestRemoveSession_MissingFileIsNotError(t *testing.T) {
	if err := RemoveSession(filepath.Join(t.TempDir(), "session.json")); err != nil {
		t.Errorf("存在しないファイルの削除でエラーを返した: %v", err)
	}
}

func TestFileProvider_LoadsInitialSession(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	if err := WriteSession(path, "u1"); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	p, err := NewFileProvider(path, newTestLogger(&buf))
	if err != nil {
		t.Fatalf("NewFileProvider がエラーを返した: %v", err)
	}
	defer p.Close()

	rec := &recorder{}
	p.Subscribe(rec.listen)

	calls := rec.snapshot()
	if len(calls) != 1 || idOf(calls[0]) != "u1" {
		t.Errorf("初期通知 = %v, want [u1]", calls)
	}
}

func TestFileProvider_PushesSignInAndSignOut(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")

	var buf bytes.Buffer
	p, err := NewFileProvider(path, newTestLogger(&buf))
	if err != nil {
		t.Fatalf("NewFileProvider がエラーを返した: %v", err)
	}
	defer p.Close()

	rec := &recorder{}
	p.Subscribe(rec.listen)

	if err := WriteSession(path, "u1"); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool {
		c := p.Current()
		return c != nil && c.ID == "u1"
	})

	if err := RemoveSession(path); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { return p.Current() == nil })

	calls := rec.snapshot()
	if len(calls) < 3 {
		t.Fatalf("通知回数 = %d, want >= 3", len(calls))
	}
	if idOf(calls[0]) != "<none>" || idOf(calls[len(calls)-1]) != "<none>" {
		t.Errorf("通知列の先頭と末尾はサインアウトであるべき: %v", calls)
	}
}

func TestFileProvider_CloseIsIdempotent(t *testing.T) {
	var buf bytes.Buffer
	p, err := NewFileProvider(filepath.Join(t.TempDir(), "session.json"), newTestLogger(&buf))
	if err != nil {
		t.Fatalf("NewFileProvider がエラーを返した: %v", err)
	}

	if err := p.Close(); err != nil {
		t.Errorf("Close がエラーを返した: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Errorf("2回目のClose がエラーを返した: %v", err)
	}
}
