package identity

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"

	"github.com/Vinay94278/postmate/internal/model"
)

// sessionFile はセッションファイルのJSON形式。
type sessionFile struct {
	UserID string `json:"user_id"`
}

// FileProvider はセッションファイルを監視するProvider。
// ファイルの作成・更新・削除をfsnotifyで検知し、購読者にプッシュ通知する。
// ファイルが存在しない状態はサインアウトとして扱う。
type FileProvider struct {
	*Broker

	path    string
	logger  *slog.Logger
	watcher *fsnotify.Watcher
	done    chan struct{}
	stopped chan struct{}
}

// NewFileProvider はpathのセッションファイルを監視するFileProviderを生成する。
// 親ディレクトリが存在しない場合は作成する。
// 生成時点のファイル内容を初期状態として読み込む。
func NewFileProvider(path string, logger *slog.Logger) (*FileProvider, error) {
	path = filepath.Clean(path)
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create session directory: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	// ファイル自体は削除・再作成されるため、親ディレクトリを監視する
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("failed to watch session directory: %w", err)
	}

	p := &FileProvider{
		Broker:  NewBroker(),
		path:    path,
		logger:  logger,
		watcher: watcher,
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}

	p.reload()

	go p.run()

	return p, nil
}

// Close は監視を停止する。
func (p *FileProvider) Close() error {
	select {
	case <-p.done:
		return nil
	default:
	}
	close(p.done)
	err := p.watcher.Close()
	<-p.stopped
	return err
}

func (p *FileProvider) run() {
	defer close(p.stopped)

	for {
		select {
		case <-p.done:
			return
		case event, ok := <-p.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != p.path {
				continue
			}
			if event.Has(fsnotify.Create) || event.Has(fsnotify.Write) ||
				event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
				p.reload()
			}
		case err, ok := <-p.watcher.Errors:
			if !ok {
				return
			}
			p.logger.Warn("session watcher error", slog.String("error", err.Error()))
		}
	}
}

// reload はセッションファイルを読み直してBrokerに反映する。
// 読み取りに失敗した場合はサインアウトとして扱う。
func (p *FileProvider) reload() {
	identity, err := ReadSession(p.path)
	if err != nil {
		p.logger.Warn("failed to read session file",
			slog.String("path", p.path),
			slog.String("error", err.Error()),
		)
		p.SignOut()
		return
	}
	if identity == nil {
		p.SignOut()
		return
	}
	p.SignIn(identity.ID)
}

// ReadSession はセッションファイルを読み込む。
// ファイルが存在しない場合、またはuser_idが空の場合はnilを返す。
func ReadSession(path string) (*model.Identity, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session file: %w", err)
	}

	var sf sessionFile
	if err := json.Unmarshal(data, &sf); err != nil {
		return nil, fmt.Errorf("failed to parse session file: %w", err)
	}

	userID := strings.TrimSpace(sf.UserID)
	if userID == "" {
		return nil, nil
	}
	return &model.Identity{ID: userID}, nil
}

// WriteSession はセッションファイルを書き込む（サインイン）。
// 一時ファイルへ書いてからrenameし、監視側が途中状態を読まないようにする。
func WriteSession(path, userID string) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return model.NewInvalidInputError("user_id", "must not be empty")
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}

	data, err := json.Marshal(sessionFile{UserID: userID})
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".session-*")
	if err != nil {
		return fmt.Errorf("failed to create temp session file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write session file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close session file: %w", err)
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return fmt.Errorf("failed to chmod session file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to replace session file: %w", err)
	}
	return nil
}

// RemoveSession はセッションファイルを削除する（サインアウト）。
// 既に存在しない場合もエラーにしない。
func RemoveSession(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove session file: %w", err)
	}
	return nil
}
