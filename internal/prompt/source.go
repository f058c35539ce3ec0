package prompt

import (
	"embed"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/Iron-Ham/consensus/internal/errors"
)

// Template names.
const (
	TemplateVerifyCode   = "verify-code.txt"
	TemplateVerifyDesign = "verify-design.txt"
	TemplateDebateRound  = "debate-round.txt"
)

// TemplateSource returns template text by name. A failed Load is fatal to
// the run that requested it.
type TemplateSource interface {
	Load(name string) (string, error)
}

//go:embed templates/*.txt
var embedded embed.FS

// EmbeddedSource serves the templates compiled into the binary.
type EmbeddedSource struct{}

// Load implements TemplateSource.
func (EmbeddedSource) Load(name string) (string, error) {
	data, err := fs.ReadFile(embedded, "templates/"+name)
	if err != nil {
		return "", errors.NewTemplateError(name, err)
	}
	return string(data), nil
}

// MapSource serves templates from memory. Useful for tests and for callers
// that assemble templates themselves.
type MapSource map[string]string

// Load implements TemplateSource.
func (m MapSource) Load(name string) (string, error) {
	text, ok := m[name]
	if !ok {
		return "", errors.NewTemplateError(name, errors.ErrTemplateNotFound)
	}
	return text, nil
}

const defaultDirCacheSize = 32

// DirSource reads templates from a directory, caching file contents. Names
// missing from the directory are served by the fallback source when one is
// set.
type DirSource struct {
	dir      string
	fallback TemplateSource
	cache    *lru.Cache[string, string]
	mu       sync.Mutex
}

// NewDirSource creates a DirSource rooted at dir. fallback may be nil.
func NewDirSource(dir string, fallback TemplateSource) *DirSource {
	cache, _ := lru.New[string, string](defaultDirCacheSize)
	return &DirSource{dir: dir, fallback: fallback, cache: cache}
}

// Load implements TemplateSource.
func (s *DirSource) Load(name string) (string, error) {
	if text, ok := s.cache.Get(name); ok {
		return text, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if text, ok := s.cache.Get(name); ok {
		return text, nil
	}

	if filepath.Base(name) != name {
		return "", errors.NewTemplateError(name,
			errors.NewValidationError("template name must be a bare file name").WithField("name").WithValue(name))
	}

	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) && s.fallback != nil {
			return s.fallback.Load(name)
		}
		return "", errors.NewTemplateError(name, err)
	}

	text := string(data)
	s.cache.Add(name, text)
	return text, nil
}

// Purge drops cached contents so the next Load re-reads the directory.
func (s *DirSource) Purge() {
	s.cache.Purge()
}
