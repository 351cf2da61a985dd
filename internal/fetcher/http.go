package fetcher

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"golang.org/x/net/html"
)

// HTTPTransport lists and downloads over plain HTTP(S), parsing
// directory-index pages by walking their anchor tags.
type HTTPTransport struct {
	BaseURL string
	Client  *http.Client
}

// NewHTTPTransport builds an HTTPTransport rooted at baseURL.
func NewHTTPTransport(baseURL string, timeout time.Duration) *HTTPTransport {
	return &HTTPTransport{BaseURL: strings.TrimSuffix(baseURL, "/"), Client: &http.Client{Timeout: timeout}}
}

func (t *HTTPTransport) List(ctx context.Context, directory string) ([]DirEntry, error) {
	u := t.resolve(directory)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := t.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, FetchNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &httpStatusError{url: u, status: resp.StatusCode}
	}

	entries, err := parseDirectoryListing(resp.Body)
	if err != nil {
		return nil, FetchProtocol
	}
	return entries, nil
}

func (t *HTTPTransport) Open(ctx context.Context, p string) (io.ReadCloser, error) {
	u := t.resolve(p)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := t.Client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusNotFound {
		resp.Body.Close()
		return nil, FetchNotFound
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, &httpStatusError{url: u, status: resp.StatusCode}
	}
	return resp.Body, nil
}

// httpStatusError carries the status code of a non-2xx HTTP response so
// the retry layer can tell a transient 503 from a permanent 403.
type httpStatusError struct {
	url    string
	status int
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("fetcher: http %s: status %d", e.url, e.status)
}

func (t *HTTPTransport) resolve(p string) string {
	if strings.HasPrefix(p, "http://") || strings.HasPrefix(p, "https://") {
		return p
	}
	return t.BaseURL + "/" + strings.TrimPrefix(p, "/")
}

// parseDirectoryListing walks an HTML directory-index page's anchor tags,
// the equivalent of a CSS `a[href]` selector, and returns one DirEntry per
// link that isn't a parent-directory or query-string link.
func parseDirectoryListing(r io.Reader) ([]DirEntry, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, err
	}

	var entries []DirEntry
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			for _, attr := range n.Attr {
				if attr.Key != "href" {
					continue
				}
				if name, isDir, ok := anchorEntryName(attr.Val); ok {
					entries = append(entries, DirEntry{Name: name, IsDir: isDir})
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return entries, nil
}

func anchorEntryName(href string) (name string, isDir bool, ok bool) {
	if href == "" || href == "../" || href == "/" || strings.HasPrefix(href, "?") || strings.HasPrefix(href, "#") {
		return "", false, false
	}
	if u, err := url.Parse(href); err == nil && u.IsAbs() {
		return "", false, false
	}
	isDir = strings.HasSuffix(href, "/")
	name = strings.TrimSuffix(path.Base(strings.TrimSuffix(href, "/")), "/")
	if name == "" || name == "." {
		return "", false, false
	}
	return name, isDir, true
}
