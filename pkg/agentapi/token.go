package agentapi

import (
	"context"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// TokenProvider produces a bearer credential for the agent API. An empty
// token means "cannot authenticate": the caller aborts the agent call and
// falls through to its fallback path instead of failing hard.
type TokenProvider interface {
	GetAccessToken(ctx context.Context) (string, error)
}

type StaticTokenProvider struct {
	token string
}

func NewStaticTokenProvider(token string) *StaticTokenProvider {
	return &StaticTokenProvider{token: token}
}

func (s *StaticTokenProvider) GetAccessToken(_ context.Context) (string, error) {
	return s.token, nil
}

// EnvTokenProvider reads the token from an environment variable on every
// call, so token rotation by an external refresher is picked up.
type EnvTokenProvider struct {
	variable string
}

func NewEnvTokenProvider(variable string) *EnvTokenProvider {
	return &EnvTokenProvider{variable: variable}
}

func (e *EnvTokenProvider) GetAccessToken(_ context.Context) (string, error) {
	return strings.TrimSpace(os.Getenv(e.variable)), nil
}

// FileTokenProvider reads the token from a file, rereading it only when the
// file's mtime changed since the last read.
type FileTokenProvider struct {
	path   string
	mu     sync.Mutex
	cached string
	mtime  time.Time
}

func NewFileTokenProvider(path string) *FileTokenProvider {
	return &FileTokenProvider{path: path}
}

func (f *FileTokenProvider) GetAccessToken(_ context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	info, err := os.Stat(f.path)
	if err != nil {
		return "", errors.Wrapf(err, "could not stat token file %s", f.path)
	}
	if !info.ModTime().After(f.mtime) && f.cached != "" {
		return f.cached, nil
	}

	b, err := os.ReadFile(f.path)
	if err != nil {
		return "", errors.Wrapf(err, "could not read token file %s", f.path)
	}
	f.cached = strings.TrimSpace(string(b))
	f.mtime = info.ModTime()
	log.Debug().Str("path", f.path).Msg("Reloaded agent API token from file")

	return f.cached, nil
}

var (
	_ TokenProvider = (*StaticTokenProvider)(nil)
	_ TokenProvider = (*EnvTokenProvider)(nil)
	_ TokenProvider = (*FileTokenProvider)(nil)
)
