package credential

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"

	"nox-wallpaper/common"

	"github.com/joho/godotenv"
)

// ErrNoCredential 当前没有可用的 API Key
var ErrNoCredential = errors.New("no API key selected")

// Selector 凭证选择能力：查询是否已选择可用凭证，以及请求用户选择一个。
type Selector interface {
	HasCredential(ctx context.Context) (bool, error)
	RequestCredential(ctx context.Context) error
}

// Source 为生成客户端提供当前选择的 API Key
type Source interface {
	APIKey(ctx context.Context) (string, error)
}

// Requester 从外部环境获取一个新的 API Key
type Requester func(ctx context.Context) (string, error)

// Store 进程内的凭证存储，同时实现 Selector 与 Source
type Store struct {
	mu        sync.RWMutex
	key       string
	offered   string
	requester Requester
}

// NewStore 创建凭证存储。initial 可以为空；requester 为 nil 时
// RequestCredential 只检查已通过 Set 写入的 Key。
func NewStore(initial string, requester Requester) *Store {
	return &Store{
		key:       strings.TrimSpace(initial),
		requester: requester,
	}
}

// Set 直接设置当前 API Key
func (s *Store) Set(key string) {
	s.mu.Lock()
	s.key = strings.TrimSpace(key)
	s.mu.Unlock()
}

// Offer 提交用户明确给出的 Key。下一次 RequestCredential 直接采用它，不再询问 requester。
func (s *Store) Offer(key string) {
	s.mu.Lock()
	s.offered = strings.TrimSpace(key)
	s.mu.Unlock()
}

// HasCredential 实现 Selector
func (s *Store) HasCredential(ctx context.Context) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.key != "", nil
}

// RequestCredential 实现 Selector：优先使用 Offer 提交的 Key，否则向 requester 请求新的 Key，
// 仍然没有时返回 ErrNoCredential
func (s *Store) RequestCredential(ctx context.Context) error {
	s.mu.Lock()
	offered := s.offered
	s.offered = ""
	if offered != "" {
		s.key = offered
	}
	s.mu.Unlock()

	if offered != "" {
		common.WithField("api_key", common.MaskAPIKey(offered)).Info("API key selected")
		return nil
	}

	if s.requester != nil {
		key, err := s.requester(ctx)
		if err != nil {
			return err
		}
		if key = strings.TrimSpace(key); key != "" {
			s.Set(key)
			common.WithField("api_key", common.MaskAPIKey(key)).Info("API key selected")
		}
	}

	if ok, _ := s.HasCredential(ctx); !ok {
		return ErrNoCredential
	}
	return nil
}

// APIKey 实现 Source
func (s *Store) APIKey(ctx context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.key == "" {
		return "", ErrNoCredential
	}
	return s.key, nil
}

// EnvRequester 重新读取 .env 文件（files 为空时读取 ./.env）与进程环境变量中的 Key，
// .env 中的值优先。
func EnvRequester(name string, files ...string) Requester {
	return func(ctx context.Context) (string, error) {
		if env, err := godotenv.Read(files...); err == nil {
			if value := env[name]; value != "" {
				return value, nil
			}
		}
		return os.Getenv(name), nil
	}
}
