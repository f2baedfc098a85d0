package packages

import (
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/mrlokans/campussync/internal/utils"
)

// Fetcher stores and removes the local files of packages.
type Fetcher interface {
	Fetch(ctx context.Context, siteID string, ref Ref, file File) error
	Remove(siteID string, ref Ref) error
}

// FileStore downloads package files over HTTP into a directory per package.
type FileStore struct {
	rootDir    string
	token      string
	httpClient *http.Client
}

// NewFileStore creates the store rooted at rootDir. token, when set, is sent
// as a bearer token with every download.
func NewFileStore(rootDir, token string, timeout time.Duration) (*FileStore, error) {
	if err := os.MkdirAll(rootDir, 0755); err != nil {
		return nil, fmt.Errorf("create download dir: %w", err)
	}
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &FileStore{
		rootDir:    rootDir,
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

func (s *FileStore) RootDir() string {
	return s.rootDir
}

// Dir returns the directory holding the files of ref.
func (s *FileStore) Dir(siteID string, ref Ref) string {
	hash := sha256.Sum256([]byte(siteID))
	return filepath.Join(s.rootDir, fmt.Sprintf("site_%x", hash[:8]), utils.SanitizePathSegment(ref.Component), utils.SanitizePathSegment(ref.ComponentID))
}

// Path returns where file is stored. Paths never escape the package directory.
func (s *FileStore) Path(siteID string, ref Ref, file File) string {
	rel := file.Path
	if rel == "" {
		rel = filepath.Base(file.URL)
	}
	return filepath.Join(s.Dir(siteID, ref), filepath.Clean("/"+rel))
}

func (s *FileStore) Fetch(ctx context.Context, siteID string, ref Ref, file File) error {
	if file.URL == "" {
		return fmt.Errorf("file %q of %s has no url", file.Path, ref)
	}
	dest := s.Path(siteID, ref, file)
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return fmt.Errorf("create package dir: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, file.URL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", "CampusSync/1.0")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("failed to fetch %s: status %d", file.URL, resp.StatusCode)
	}

	// Write to a temp file in the same directory and rename, so a failed
	// download never leaves a partial file under the final name.
	tmpFile, err := os.CreateTemp(filepath.Dir(dest), ".download_")
	if err != nil {
		return err
	}
	tmpPath := tmpFile.Name()
	defer func() {
		tmpFile.Close()
		os.Remove(tmpPath)
	}()

	written, err := io.Copy(tmpFile, resp.Body)
	if err != nil {
		return err
	}
	if file.Size > 0 && written != file.Size {
		return fmt.Errorf("short download of %s: got %d of %d bytes", file.URL, written, file.Size)
	}
	tmpFile.Close()

	return os.Rename(tmpPath, dest)
}

// Remove deletes every file of ref. Removing a package with no files is not an error.
func (s *FileStore) Remove(siteID string, ref Ref) error {
	return os.RemoveAll(s.Dir(siteID, ref))
}
