package build

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"git.home.luguber.info/inful/mdsite/internal/markdown"
)

// fingerprintLen is the number of hex digits of an asset hash used in URLs.
const fingerprintLen = 10

type assetInfo struct {
	Hash    string
	Size    int64
	ModTime time.Time
}

// AssetSet maps asset source paths (relative to the assets root) to their
// content fingerprints and public URLs.
type AssetSet struct {
	dir     string
	relBase string
	baseURL string

	mu    sync.RWMutex
	files map[string]assetInfo
}

// ScanAssets hashes every file under dir. A missing directory yields an
// empty set. relBase is dir's project-relative path, used for source paths.
func ScanAssets(dir, relBase, baseURL string) (*AssetSet, error) {
	a := &AssetSet{dir: dir, relBase: relBase, baseURL: baseURL, files: make(map[string]assetInfo)}
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == dir && errors.Is(err, fs.ErrNotExist) {
				return filepath.SkipDir
			}
			return err
		}
		if d.IsDir() {
			if p != dir && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") {
			return nil
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		info, err := hashFile(p)
		if err != nil {
			return err
		}
		a.files[filepath.ToSlash(rel)] = info
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan assets: %w", err)
	}
	return a, nil
}

func hashFile(path string) (assetInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return assetInfo{}, err
	}
	defer f.Close()
	st, err := f.Stat()
	if err != nil {
		return assetInfo{}, err
	}
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return assetInfo{}, err
	}
	return assetInfo{
		Hash:    hex.EncodeToString(h.Sum(nil))[:fingerprintLen],
		Size:    st.Size(),
		ModTime: st.ModTime(),
	}, nil
}

// URL returns the public URL of an asset with a ?v= fingerprint.
func (a *AssetSet) URL(p string) (string, bool) {
	a.mu.RLock()
	info, ok := a.files[p]
	a.mu.RUnlock()
	if !ok {
		return "", false
	}
	u := "/" + p
	if a.baseURL != "" {
		u = markdown.RelativeURL(a.baseURL, p)
	}
	return u + "?v=" + info.Hash, true
}

// Has reports whether p is a known asset.
func (a *AssetSet) Has(p string) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	_, ok := a.files[p]
	return ok
}

// SourcePath returns the project-relative source path of asset p.
func (a *AssetSet) SourcePath(p string) string {
	if a.relBase == "" || a.relBase == "." {
		return p
	}
	return a.relBase + "/" + p
}

// Paths lists known assets, sorted.
func (a *AssetSet) Paths() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]string, 0, len(a.files))
	for p := range a.files {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Refresh re-hashes asset p after a change. It reports whether the
// fingerprint changed; a deleted file is dropped from the set.
func (a *AssetSet) Refresh(p string) (bool, error) {
	info, err := hashFile(filepath.Join(a.dir, filepath.FromSlash(p)))
	a.mu.Lock()
	defer a.mu.Unlock()
	old, had := a.files[p]
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			delete(a.files, p)
			return had, nil
		}
		return false, err
	}
	a.files[p] = info
	return !had || old.Hash != info.Hash, nil
}

// Copy copies every asset into dst, skipping files whose size and
// modification time already match. It returns the number of files copied.
func (a *AssetSet) Copy(dst string) (int, error) {
	copied := 0
	for _, p := range a.Paths() {
		ok, err := a.CopyOne(p, dst)
		if err != nil {
			return copied, err
		}
		if ok {
			copied++
		}
	}
	return copied, nil
}

// CopyOne copies asset p into dst unless the target is up to date. A
// removed asset deletes its copy.
func (a *AssetSet) CopyOne(p, dst string) (bool, error) {
	a.mu.RLock()
	info, ok := a.files[p]
	a.mu.RUnlock()
	target := filepath.Join(dst, filepath.FromSlash(p))
	if !ok {
		return false, removeOutput(dst, target)
	}
	if st, err := os.Stat(target); err == nil && st.Size() == info.Size && st.ModTime().Equal(info.ModTime) {
		return false, nil
	}
	data, err := os.ReadFile(filepath.Join(a.dir, filepath.FromSlash(p)))
	if err != nil {
		return false, fmt.Errorf("read asset %s: %w", p, err)
	}
	if err := writeAtomic(target, data); err != nil {
		return false, fmt.Errorf("copy asset %s: %w", p, err)
	}
	if err := os.Chtimes(target, info.ModTime, info.ModTime); err != nil {
		return false, fmt.Errorf("set asset times %s: %w", p, err)
	}
	return true, nil
}
