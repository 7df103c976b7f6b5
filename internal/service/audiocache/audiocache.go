package audiocache

import (
	"crypto/sha256"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Cache — дисковый кэш синтезированного аудио. Ключ — текст реплики,
// имя файла — sha256 от текста, чтобы повторные загрузки ленты
// не синтезировали одно и то же заново.
type Cache struct {
	dir string
	ext string // расширение файлов, напр. "mp3"
	mu  sync.Mutex
}

// New создаёт кэш в dir (пусто — подпапка в os.TempDir()) и гарантирует её наличие.
func New(dir, ext string) (*Cache, error) {
	if strings.TrimSpace(dir) == "" {
		dir = filepath.Join(os.TempDir(), "rss-voice-reader")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("audiocache: не удалось создать папку %s: %w", dir, err)
	}
	ext = strings.TrimPrefix(strings.TrimSpace(ext), ".")
	if ext == "" {
		ext = "mp3"
	}
	return &Cache{dir: dir, ext: ext}, nil
}

// Key возвращает ключ кэша для текста.
func Key(text string) string {
	h := sha256.Sum256([]byte(text))
	return fmt.Sprintf("%x", h[:16])
}

func (c *Cache) pathFor(key string) string {
	return filepath.Join(c.dir, key+"."+c.ext)
}

// Get возвращает путь к закэшированному файлу, если он есть.
func (c *Cache) Get(key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p := c.pathFor(key)
	if _, err := os.Stat(p); err != nil {
		return "", false
	}
	return p, true
}

// Put сохраняет содержимое r в кэш и возвращает путь к файлу.
// Запись идёт во временный файл с последующим rename, чтобы
// параллельный Get не увидел недописанный файл.
func (c *Cache) Put(key string, r io.Reader) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	p := c.pathFor(key)
	tmp, err := os.CreateTemp(c.dir, key+".*.part")
	if err != nil {
		return "", fmt.Errorf("audiocache: не удалось создать временный файл: %w", err)
	}
	if _, err := io.Copy(tmp, r); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return "", fmt.Errorf("audiocache: не удалось записать аудио: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return "", err
	}
	if err := os.Rename(tmp.Name(), p); err != nil {
		_ = os.Remove(tmp.Name())
		return "", fmt.Errorf("audiocache: не удалось переименовать файл: %w", err)
	}
	return p, nil
}

// Clear удаляет все файлы кэша (вспомогательное, для отладки и тестов).
func (c *Cache) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		_ = os.Remove(filepath.Join(c.dir, e.Name()))
	}
	return nil
}

// Dir возвращает рабочую папку кэша.
func (c *Cache) Dir() string { return c.dir }
