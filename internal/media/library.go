package media

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"
)

// Library は保存ディレクトリのキャプチャ済みファイルを扱う
type Library struct {
	dir    string
	config Config
	cache  *cache.Cache
	log    logrus.FieldLogger
}

// NewLibrary は新しいLibraryを作成する
func NewLibrary(dir string, config Config, log logrus.FieldLogger) *Library {
	def := DefaultConfig()
	if config.DefaultWidth <= 0 {
		config.DefaultWidth = def.DefaultWidth
	}
	if config.MaxWidth <= 0 {
		config.MaxWidth = def.MaxWidth
	}
	if config.CacheTTL <= 0 {
		config.CacheTTL = def.CacheTTL
	}

	return &Library{
		dir:    dir,
		config: config,
		cache:  cache.New(config.CacheTTL, 2*config.CacheTTL),
		log:    log,
	}
}

// List は保存ディレクトリのファイル一覧を新しい順に返す
func (l *Library) List() ([]Item, error) {
	items := []Item{}

	entries, err := os.ReadDir(l.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return items, nil // まだ一度も撮影していない
		}
		return nil, fmt.Errorf("ディレクトリの読み取りに失敗: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		kind, ok := kindByExt[strings.ToLower(filepath.Ext(entry.Name()))]
		if !ok {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			l.log.WithError(err).WithField("name", entry.Name()).Warn("ファイル情報の取得に失敗")
			continue
		}
		if info.Size() == 0 {
			continue
		}

		items = append(items, Item{
			Name:       entry.Name(),
			Kind:       kind,
			SizeBytes:  info.Size(),
			ModifiedAt: info.ModTime(),
		})
	}

	sort.SliceStable(items, func(i, j int) bool {
		if items[i].ModifiedAt.Equal(items[j].ModifiedAt) {
			return items[i].Name > items[j].Name
		}
		return items[i].ModifiedAt.After(items[j].ModifiedAt)
	})

	return items, nil
}

// Thumbnail は静止画を指定幅に縮小したJPEGを返す
// width が0の場合は既定幅を使う
func (l *Library) Thumbnail(name string, width int) ([]byte, error) {
	if width == 0 {
		width = l.config.DefaultWidth
	}
	if width < 0 || width > l.config.MaxWidth {
		return nil, fmt.Errorf("%w: %d (1-%d)", ErrInvalidWidth, width, l.config.MaxWidth)
	}

	path, err := l.resolve(name)
	if err != nil {
		return nil, err
	}
	if kindByExt[strings.ToLower(filepath.Ext(name))] != KindPhoto {
		return nil, fmt.Errorf("%w: %s", ErrNotImage, name)
	}

	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}

	// 同名ファイルが上書きされた場合に備えて更新日時をキーに含める
	key := fmt.Sprintf("%s:%d:%d", name, width, info.ModTime().UnixNano())
	if cached, ok := l.cache.Get(key); ok {
		return cached.([]byte), nil
	}

	data, err := l.render(path, width)
	if err != nil {
		return nil, err
	}

	l.cache.SetDefault(key, data)
	return data, nil
}

func (l *Library) render(path string, width int) ([]byte, error) {
	start := time.Now()

	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("画像のデコードに失敗: %w", err)
	}

	// 元画像より大きくはしない
	if img.Bounds().Dx() > width {
		img = imaging.Resize(img, width, 0, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(80)); err != nil {
		return nil, fmt.Errorf("JPEG エンコードに失敗: %w", err)
	}

	l.log.WithFields(logrus.Fields{
		"path":    path,
		"width":   width,
		"elapsed": time.Since(start),
		"size":    buf.Len(),
	}).Debug("サムネイルを生成しました")

	return buf.Bytes(), nil
}

// resolve はファイル名を保存ディレクトリ内のパスに変換する
// ディレクトリ区切りや相対指定を含む名前は受け付けない
func (l *Library) resolve(name string) (string, error) {
	if name == "" || name == "." || name == ".." ||
		strings.ContainsAny(name, `/\`) || filepath.Base(name) != name || strings.HasPrefix(name, ".") {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return filepath.Join(l.dir, name), nil
}
