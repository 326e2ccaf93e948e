package confluence

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Client communicates with the Confluence REST API using basic auth.
type Client struct {
	baseURL    string
	username   string
	apiKey     string
	httpClient *http.Client
}

func NewClient(baseURL, username, apiKey string) *Client {
	return &Client{
		baseURL:  baseURL,
		username: username,
		apiKey:   apiKey,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// Page is a Confluence page with its storage-format body.
type Page struct {
	ID             string
	Title          string
	Body           string
	Version        int
	LastModified   string
	LastModifiedBy string
}

// Attachment describes a file attached to a page.
type Attachment struct {
	ID           string
	Title        string
	MediaType    string
	FileSize     int64
	DownloadLink string
}

type contentResponse struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Body  struct {
		Storage struct {
			Value string `json:"value"`
		} `json:"storage"`
	} `json:"body"`
	Version struct {
		Number int    `json:"number"`
		When   string `json:"when"`
		By     struct {
			DisplayName string `json:"displayName"`
		} `json:"by"`
	} `json:"version"`
}

func (r contentResponse) page() Page {
	return Page{
		ID:             r.ID,
		Title:          r.Title,
		Body:           r.Body.Storage.Value,
		Version:        r.Version.Number,
		LastModified:   r.Version.When,
		LastModifiedBy: r.Version.By.DisplayName,
	}
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.SetBasicAuth(c.username, c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("get %s: %w", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("get %s: status %d: %s", path, resp.StatusCode, string(respBody))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// GetPage fetches a single page with its storage body and version.
func (c *Client) GetPage(ctx context.Context, pageID string) (*Page, error) {
	var resp contentResponse
	q := url.Values{"expand": {"body.storage,version"}}
	if err := c.get(ctx, "/rest/api/content/"+pageID, q, &resp); err != nil {
		return nil, err
	}
	p := resp.page()
	return &p, nil
}

// ChildPages lists the direct child pages of a page, following
// pagination until the server runs out of results.
func (c *Client) ChildPages(ctx context.Context, pageID string) ([]Page, error) {
	var pages []Page
	start := 0
	const limit = 50
	for {
		var resp struct {
			Results []contentResponse `json:"results"`
			Size    int               `json:"size"`
		}
		q := url.Values{
			"expand": {"body.storage,version"},
			"limit":  {strconv.Itoa(limit)},
			"start":  {strconv.Itoa(start)},
		}
		if err := c.get(ctx, "/rest/api/content/"+pageID+"/child/page", q, &resp); err != nil {
			return nil, err
		}
		for _, r := range resp.Results {
			pages = append(pages, r.page())
		}
		if resp.Size < limit {
			return pages, nil
		}
		start += limit
	}
}

// PageTree fetches a page and all of its descendants, breadth first.
// The root page is always first in the result.
func (c *Client) PageTree(ctx context.Context, rootID string) ([]Page, error) {
	root, err := c.GetPage(ctx, rootID)
	if err != nil {
		return nil, fmt.Errorf("fetch root page: %w", err)
	}
	pages := []Page{*root}
	queue := []string{rootID}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		children, err := c.ChildPages(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("fetch children of %s: %w", id, err)
		}
		for _, ch := range children {
			pages = append(pages, ch)
			queue = append(queue, ch.ID)
		}
	}
	return pages, nil
}

// Search runs a CQL query and returns matching pages without bodies.
func (c *Client) Search(ctx context.Context, cql string, limit int) ([]Page, error) {
	var resp struct {
		Results []contentResponse `json:"results"`
	}
	q := url.Values{"cql": {cql}}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if err := c.get(ctx, "/rest/api/content/search", q, &resp); err != nil {
		return nil, err
	}
	pages := make([]Page, 0, len(resp.Results))
	for _, r := range resp.Results {
		pages = append(pages, r.page())
	}
	return pages, nil
}

// Attachments lists the files attached to a page.
func (c *Client) Attachments(ctx context.Context, pageID string) ([]Attachment, error) {
	var atts []Attachment
	start := 0
	const limit = 50
	for {
		var resp struct {
			Results []struct {
				ID       string `json:"id"`
				Title    string `json:"title"`
				Metadata struct {
					MediaType string `json:"mediaType"`
				} `json:"metadata"`
				Extensions struct {
					FileSize int64 `json:"fileSize"`
				} `json:"extensions"`
				Links struct {
					Download string `json:"download"`
				} `json:"_links"`
			} `json:"results"`
			Size int `json:"size"`
		}
		q := url.Values{
			"limit": {strconv.Itoa(limit)},
			"start": {strconv.Itoa(start)},
		}
		if err := c.get(ctx, "/rest/api/content/"+pageID+"/child/attachment", q, &resp); err != nil {
			return nil, err
		}
		for _, r := range resp.Results {
			atts = append(atts, Attachment{
				ID:           r.ID,
				Title:        r.Title,
				MediaType:    r.Metadata.MediaType,
				FileSize:     r.Extensions.FileSize,
				DownloadLink: r.Links.Download,
			})
		}
		if resp.Size < limit {
			return atts, nil
		}
		start += limit
	}
}

// Download fetches an attachment's bytes. maxBytes caps the read; a
// larger body is an error rather than a truncated result.
func (c *Client) Download(ctx context.Context, att Attachment, maxBytes int64) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+att.DownloadLink, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.SetBasicAuth(c.username, c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", att.Title, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("download %s: status %d: %s", att.Title, resp.StatusCode, string(respBody))
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", att.Title, err)
	}
	if int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("attachment %s exceeds %d bytes", att.Title, maxBytes)
	}
	return data, nil
}

// Close releases any resources (currently a no-op).
func (c *Client) Close() {
	c.httpClient.CloseIdleConnections()
}
