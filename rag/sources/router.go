// Package sources loads the text of the documents to ingest.
package sources

import (
	"fmt"
	"strings"

	"github.com/mudler/xlog"
)

// Source types, stored as the "type" metadata of ingested chunks.
const (
	TypeWeb     = "web"
	TypeSitemap = "sitemap"
	TypeGit     = "git"
	TypePDF     = "pdf"
	TypeText    = "text"
)

// Page is the text of a single document.
type Page struct {
	// Location is the URL or path the text was read from.
	Location string
	Type     string
	Text     string
}

// Config holds the options of the loaders.
type Config struct {
	// GitPrivateKey is a base64 encoded SSH key used to clone private repositories.
	GitPrivateKey string
}

// SourceRouter picks a loader from the shape of uri:
//   - http(s) URLs ending in sitemap.xml are crawled page by page
//   - git+ URLs and URLs ending in .git are cloned
//   - other http(s) URLs are fetched as a single web page
//   - local .pdf, .txt and .md files are read from disk
func SourceRouter(uri string, config *Config) ([]Page, error) {
	if config == nil {
		config = &Config{}
	}

	xlog.Info("Downloading content from", "uri", uri)
	switch {
	case strings.HasPrefix(uri, "git+"):
		return gitPages(strings.TrimPrefix(uri, "git+"), config)
	case isRemote(uri) && strings.HasSuffix(uri, ".git"):
		return gitPages(uri, config)
	case isRemote(uri) && strings.HasSuffix(uri, "sitemap.xml"):
		pages, err := GetWebSitemapContent(uri)
		if err != nil {
			return nil, err
		}
		xlog.Info("Downloaded all content from sitemap", "url", uri, "pages", len(pages))
		return pages, nil
	case isRemote(uri):
		text, err := GetWebPage(uri)
		if err != nil {
			return nil, err
		}
		return []Page{{Location: uri, Type: TypeWeb, Text: text}}, nil
	}

	page, err := GetFileContent(uri)
	if err != nil {
		return nil, err
	}
	return []Page{page}, nil
}

func isRemote(uri string) bool {
	return strings.HasPrefix(uri, "http://") || strings.HasPrefix(uri, "https://")
}

func gitPages(url string, config *Config) ([]Page, error) {
	pages, err := GetGitRepositoryPages(url, config.GitPrivateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to clone %s: %w", url, err)
	}
	return pages, nil
}
