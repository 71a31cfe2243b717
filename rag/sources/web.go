package sources

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/mudler/xlog"
	sitemap "github.com/oxffaa/gopher-parse-sitemap"
	"jaytaylor.com/html2text"
)

var httpClient = &http.Client{Timeout: 30 * time.Second}

func GetWebPage(url string) (string, error) {
	resp, err := httpClient.Get(url)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return "", fmt.Errorf("failed to fetch %s: %s", url, resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	return html2text.FromString(string(body), html2text.Options{PrettyTables: true})
}

// GetWebSitemapContent fetches every page listed in a sitemap. Pages that
// cannot be fetched are skipped.
func GetWebSitemapContent(url string) (res []Page, err error) {
	err = sitemap.ParseFromSite(url, func(e sitemap.Entry) error {
		location := e.GetLocation()
		xlog.Info("Sitemap page", "url", location)
		content, err := GetWebPage(location)
		if err != nil {
			xlog.Warn("Skipping sitemap page", "url", location, "error", err)
			return nil
		}
		res = append(res, Page{Location: location, Type: TypeSitemap, Text: content})
		return nil
	})
	return
}
