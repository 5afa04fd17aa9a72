// Package workspace gerencia os diretórios temporários de cada documento.
package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Manager cria diretórios de trabalho sob uma raiz comum.
type Manager struct {
	root string
	log  zerolog.Logger
}

func NewManager(root string, log zerolog.Logger) (*Manager, error) {
	if root == "" {
		return nil, fmt.Errorf("workspace: root directory is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("workspace: create root %s: %w", root, err)
	}
	return &Manager{root: root, log: log}, nil
}

// Workspace é o diretório de um único processamento.
type Workspace struct {
	dir  string
	once sync.Once
	err  error
}

// Acquire cria <root>/<docID>-<run>. Cada chamada gera um diretório novo.
func (m *Manager) Acquire(docID string) (*Workspace, error) {
	name := sanitize(docID) + "-" + uuid.NewString()[:8]
	dir := filepath.Join(m.root, name)
	if err := os.Mkdir(dir, 0o700); err != nil {
		return nil, fmt.Errorf("workspace: create %s: %w", dir, err)
	}
	return &Workspace{dir: dir}, nil
}

// Sweep remove diretórios esquecidos por execuções interrompidas.
func (m *Manager) Sweep(olderThan time.Duration) (int, error) {
	entries, err := os.ReadDir(m.root)
	if err != nil {
		return 0, fmt.Errorf("workspace: read root: %w", err)
	}

	cutoff := time.Now().Add(-olderThan)
	removed := 0
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		path := filepath.Join(m.root, e.Name())
		if err := os.RemoveAll(path); err != nil {
			m.log.Warn().Err(err).Str("path", path).Msg("falha ao remover workspace antigo")
			continue
		}
		removed++
	}
	return removed, nil
}

func (w *Workspace) Dir() string { return w.dir }

// Path devolve um caminho dentro do workspace, sem permitir escapar dele.
func (w *Workspace) Path(name string) string {
	return filepath.Join(w.dir, filepath.Base(filepath.Clean("/"+name)))
}

// Cleanup remove o diretório. Idempotente.
func (w *Workspace) Cleanup() error {
	w.once.Do(func() {
		w.err = os.RemoveAll(w.dir)
	})
	return w.err
}

func sanitize(id string) string {
	id = strings.Map(func(r rune) rune {
		if r == '/' || r == '\\' || r == os.PathSeparator {
			return '_'
		}
		return r
	}, id)
	if id == "" || id == "." || id == ".." {
		return "doc"
	}
	return id
}
