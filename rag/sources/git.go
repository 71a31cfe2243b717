package sources

import (
	"encoding/base64"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport/ssh"
	"github.com/mudler/xlog"
)

// maxGitFileSize skips generated or vendored blobs.
const maxGitFileSize = 1 << 20

var textExtensions = map[string]bool{
	".txt": true, ".md": true, ".rst": true, ".adoc": true, ".asciidoc": true,
	".wiki": true, ".html": true, ".htm": true, ".csv": true, ".tsv": true,
	".json": true, ".yaml": true, ".yml": true, ".toml": true, ".xml": true,
	".tex": true,
}

// GetGitRepositoryPages shallow clones a repository and returns one page per
// text file, located at <url>/<path>.
func GetGitRepositoryPages(url string, privateKey string) ([]Page, error) {
	tempDir, err := os.MkdirTemp("", "git-repo-*")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(tempDir)

	cloneOptions := &git.CloneOptions{
		URL:           url,
		Depth:         1,
		SingleBranch:  true,
		ReferenceName: plumbing.HEAD,
	}

	if privateKey != "" {
		keyBytes, err := base64.StdEncoding.DecodeString(privateKey)
		if err != nil {
			return nil, fmt.Errorf("invalid git private key: %w", err)
		}
		auth, err := ssh.NewPublicKeys("git", keyBytes, "")
		if err != nil {
			return nil, err
		}
		cloneOptions.Auth = auth
	}

	if _, err := git.PlainClone(tempDir, false, cloneOptions); err != nil {
		return nil, err
	}

	var pages []Page
	err = filepath.WalkDir(tempDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		if !isTextFile(path) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		if info.Size() > maxGitFileSize {
			xlog.Debug("Skipping large file", "path", path, "size", info.Size())
			return nil
		}

		content, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(tempDir, path)
		if err != nil {
			return err
		}
		pages = append(pages, Page{
			Location: strings.TrimSuffix(url, ".git") + "/" + filepath.ToSlash(rel),
			Type:     TypeGit,
			Text:     string(content),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	xlog.Info("Read repository", "url", url, "files", len(pages))
	return pages, nil
}

func isTextFile(path string) bool {
	return textExtensions[strings.ToLower(filepath.Ext(path))]
}
