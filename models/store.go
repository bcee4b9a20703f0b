// Package models manages WhisperKit CoreML model folders: locating them on
// disk, downloading them from Hugging Face, and removing them.
package models

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/dustin/go-humanize"
)

const (
	appDirName  = "Dawn"
	modelSubdir = "whisperkit-coreml"

	// DefaultHubURL is the Hugging Face endpoint.
	DefaultHubURL = "https://huggingface.co"
)

var (
	// ErrNotInstalled is returned when a model has no local files.
	ErrNotInstalled = errors.New("model not installed")
	// ErrBundled is returned when deleting a model shipped with the app.
	ErrBundled = errors.New("model is bundled with the app")
	// ErrDownloadInProgress is returned for a second concurrent download of
	// the same model.
	ErrDownloadInProgress = errors.New("download already in progress")
)

// ValidateID rejects ids that could escape the model directory.
func ValidateID(id string) error {
	if id == "" || id == "." || id == ".." || strings.ContainsAny(id, `/\`) {
		return fmt.Errorf("invalid model id %q", id)
	}
	return nil
}

// DefaultUserDir returns the per-user model directory.
func DefaultUserDir() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("get config dir: %w", err)
	}
	return filepath.Join(dir, appDirName, "models", modelSubdir), nil
}

// Progress reports download progress.
type Progress struct {
	ModelID        string `json:"modelId"`
	Percent        int    `json:"percent"`
	Downloaded     int64  `json:"downloaded"`
	Total          int64  `json:"total"`
	DownloadedText string `json:"downloadedText"`
	TotalText      string `json:"totalText"`
	CurrentFile    string `json:"currentFile"`
}

// Info describes a model and its install state.
type Info struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Size        int64  `json:"size"`
	SizeText    string `json:"sizeText"`
	Installed   bool   `json:"installed"`
	Bundled     bool   `json:"bundled"`
}

// Store locates, downloads and deletes model folders.
type Store struct {
	userDir    string
	bundledDir string
	catalog    *Catalog
	hubURL     string
	client     *http.Client

	mu          sync.Mutex
	downloading map[string]bool
}

// Option configures a Store.
type Option func(*Store)

// WithHubURL overrides the Hugging Face endpoint.
func WithHubURL(u string) Option {
	return func(s *Store) { s.hubURL = strings.TrimRight(u, "/") }
}

// WithHTTPClient sets the client used for downloads.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Store) { s.client = c }
}

// WithCatalog replaces the embedded catalog.
func WithCatalog(c *Catalog) Option {
	return func(s *Store) { s.catalog = c }
}

// NewStore creates a store. Models are looked up in userDir first, then in
// bundledDir, which may be empty.
func NewStore(userDir, bundledDir string, opts ...Option) *Store {
	s := &Store{
		userDir:     userDir,
		bundledDir:  bundledDir,
		catalog:     DefaultCatalog(),
		hubURL:      DefaultHubURL,
		client:      http.DefaultClient,
		downloading: make(map[string]bool),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Resolve returns the directory holding modelID's files.
func (s *Store) Resolve(modelID string) (string, bool) {
	if ValidateID(modelID) != nil {
		return "", false
	}
	for _, dir := range []string{s.userDir, s.bundledDir} {
		if dir == "" {
			continue
		}
		p := filepath.Join(dir, modelID)
		if nonEmptyDir(p) {
			return p, true
		}
	}
	return "", false
}

// ListInstalled returns the ids of all installed models, user and bundled.
func (s *Store) ListInstalled() ([]string, error) {
	var ids []string
	for _, dir := range []string{s.userDir, s.bundledDir} {
		if dir == "" {
			continue
		}
		entries, err := os.ReadDir(dir)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("read model dir: %w", err)
		}
		for _, e := range entries {
			if !e.IsDir() || strings.HasPrefix(e.Name(), ".") || strings.HasSuffix(e.Name(), partialSuffix) {
				continue
			}
			if !slices.Contains(ids, e.Name()) && nonEmptyDir(filepath.Join(dir, e.Name())) {
				ids = append(ids, e.Name())
			}
		}
	}
	slices.Sort(ids)
	return ids, nil
}

// Delete removes a downloaded model. Bundled models cannot be removed.
func (s *Store) Delete(modelID string) error {
	if err := ValidateID(modelID); err != nil {
		return err
	}
	p := filepath.Join(s.userDir, modelID)
	if !nonEmptyDir(p) {
		if s.bundledDir != "" && nonEmptyDir(filepath.Join(s.bundledDir, modelID)) {
			return fmt.Errorf("delete %s: %w", modelID, ErrBundled)
		}
		return fmt.Errorf("delete %s: %w", modelID, ErrNotInstalled)
	}
	if err := os.RemoveAll(p); err != nil {
		return fmt.Errorf("delete %s: %w", modelID, err)
	}
	slog.Info("model deleted", "model", modelID)
	return nil
}

// Info returns display information for a model. The size is measured on
// disk when installed, otherwise taken from the catalog.
func (s *Store) Info(modelID string) Info {
	info := Info{ID: modelID, Name: modelID}
	if e, ok := s.catalog.Lookup(modelID); ok {
		info.Name = e.Name
		info.Description = e.Description
		info.Size = e.SizeBytes()
	}

	if p, ok := s.Resolve(modelID); ok {
		info.Installed = true
		info.Bundled = s.bundledDir != "" && strings.HasPrefix(p, filepath.Clean(s.bundledDir)+string(filepath.Separator))
		if n, err := dirSize(p); err == nil {
			info.Size = n
		}
	}
	info.SizeText = humanize.Bytes(uint64(max(info.Size, 0)))
	return info
}

// Available returns info for every catalog model plus any installed model
// missing from the catalog.
func (s *Store) Available() []Info {
	var out []Info
	seen := map[string]bool{}
	for _, e := range s.catalog.Models {
		out = append(out, s.Info(e.ID))
		seen[e.ID] = true
	}
	installed, err := s.ListInstalled()
	if err != nil {
		slog.Warn("list installed models", "error", err)
	}
	for _, id := range installed {
		if !seen[id] {
			out = append(out, s.Info(id))
		}
	}
	return out
}

// ─────────────────────────────────────────────────────────────────────────────
// Download
// ─────────────────────────────────────────────────────────────────────────────

const partialSuffix = ".partial"

type treeEntry struct {
	Type string `json:"type"`
	Path string `json:"path"`
	Size int64  `json:"size"`
	LFS  *struct {
		Size int64 `json:"size"`
	} `json:"lfs,omitempty"`
}

func (e treeEntry) size() int64 {
	if e.LFS != nil && e.LFS.Size > 0 {
		return e.LFS.Size
	}
	return e.Size
}

// Download fetches every file of modelID from the catalog repository into
// the user directory. Files land in a staging directory that is renamed
// into place on success and removed on failure. An installed model is left
// alone.
func (s *Store) Download(ctx context.Context, modelID string, progress func(Progress)) error {
	if err := ValidateID(modelID); err != nil {
		return err
	}
	if _, ok := s.Resolve(modelID); ok {
		slog.Info("model already installed", "model", modelID)
		return nil
	}

	s.mu.Lock()
	if s.downloading[modelID] {
		s.mu.Unlock()
		return fmt.Errorf("download %s: %w", modelID, ErrDownloadInProgress)
	}
	s.downloading[modelID] = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.downloading, modelID)
		s.mu.Unlock()
	}()

	files, err := s.listFiles(ctx, modelID)
	if err != nil {
		return fmt.Errorf("list files: %w", err)
	}
	if len(files) == 0 {
		return fmt.Errorf("download %s: no files in repository", modelID)
	}

	var total int64
	for _, f := range files {
		total += f.size()
	}

	staging := filepath.Join(s.userDir, modelID+partialSuffix)
	if err := os.RemoveAll(staging); err != nil {
		return fmt.Errorf("clean staging dir: %w", err)
	}
	if err := os.MkdirAll(staging, 0755); err != nil {
		return fmt.Errorf("create staging dir: %w", err)
	}

	ok := false
	defer func() {
		if !ok {
			if err := os.RemoveAll(staging); err != nil {
				slog.Warn("remove partial download", "model", modelID, "error", err)
			}
		}
	}()

	tr := &tracker{modelID: modelID, total: total, report: progress}
	slog.Info("download model", "model", modelID, "files", len(files), "size", humanize.Bytes(uint64(total)))

	for _, f := range files {
		rel := strings.TrimPrefix(f.Path, modelID+"/")
		dst := filepath.Join(staging, filepath.FromSlash(rel))
		if !strings.HasPrefix(dst, staging+string(filepath.Separator)) {
			return fmt.Errorf("download %s: unsafe path %q", modelID, f.Path)
		}
		tr.file = rel
		if err := s.fetch(ctx, f.Path, dst, tr); err != nil {
			return fmt.Errorf("download %s: %w", f.Path, err)
		}
	}

	final := filepath.Join(s.userDir, modelID)
	if err := os.RemoveAll(final); err != nil {
		return fmt.Errorf("clear target dir: %w", err)
	}
	if err := os.Rename(staging, final); err != nil {
		return fmt.Errorf("rename staging dir: %w", err)
	}
	ok = true

	tr.finish()
	slog.Info("model downloaded", "model", modelID, "path", final)
	return nil
}

// listFiles walks the repository tree under modelID.
func (s *Store) listFiles(ctx context.Context, dir string) ([]treeEntry, error) {
	u := fmt.Sprintf("%s/api/models/%s/tree/main/%s", s.hubURL, s.catalog.Repo, escapePath(dir))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("tree %s: status %d: %s", dir, resp.StatusCode, body)
	}

	var entries []treeEntry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return nil, fmt.Errorf("decode tree: %w", err)
	}

	var files []treeEntry
	for _, e := range entries {
		switch e.Type {
		case "file":
			files = append(files, e)
		case "directory":
			sub, err := s.listFiles(ctx, e.Path)
			if err != nil {
				return nil, err
			}
			files = append(files, sub...)
		}
	}
	return files, nil
}

func (s *Store) fetch(ctx context.Context, repoPath, dst string, tr *tracker) error {
	u := fmt.Sprintf("%s/%s/resolve/main/%s", s.hubURL, s.catalog.Repo, escapePath(repoPath))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("http get: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("http status: %d", resp.StatusCode)
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return fmt.Errorf("create dir: %w", err)
	}
	f, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, io.TeeReader(resp.Body, tr)); err != nil {
		return fmt.Errorf("write file: %w", err)
	}
	return f.Close()
}

// tracker counts downloaded bytes and reports whole-percent changes.
type tracker struct {
	modelID    string
	file       string
	total      int64
	downloaded int64
	lastPct    int
	report     func(Progress)
}

func (t *tracker) Write(p []byte) (int, error) {
	t.downloaded += int64(len(p))
	pct := 0
	if t.total > 0 {
		pct = int(min(t.downloaded*100/t.total, 99))
	}
	if pct > t.lastPct {
		t.lastPct = pct
		t.emit(pct)
	}
	return len(p), nil
}

func (t *tracker) finish() {
	t.emit(100)
}

func (t *tracker) emit(pct int) {
	if t.report == nil {
		return
	}
	t.report(Progress{
		ModelID:        t.modelID,
		Percent:        pct,
		Downloaded:     t.downloaded,
		Total:          t.total,
		DownloadedText: humanize.Bytes(uint64(t.downloaded)),
		TotalText:      humanize.Bytes(uint64(t.total)),
		CurrentFile:    t.file,
	})
}

// ─────────────────────────────────────────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────────────────────────────────────────

func escapePath(p string) string {
	parts := strings.Split(path.Clean(p), "/")
	for i, s := range parts {
		parts[i] = url.PathEscape(s)
	}
	return strings.Join(parts, "/")
}

func nonEmptyDir(p string) bool {
	entries, err := os.ReadDir(p)
	return err == nil && len(entries) > 0
}

func dirSize(root string) (int64, error) {
	var n int64
	err := filepath.WalkDir(root, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		n += info.Size()
		return nil
	})
	return n, err
}
