// Package stockvideo finds and downloads b-roll clips from the Pexels
// video search API.
package stockvideo

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/vibeacademy/vidarr/internal/httpclient"
)

// DefaultBaseURL is the Pexels API root.
const DefaultBaseURL = "https://api.pexels.com"

// Search request shape: few small results, the clips get scaled down to a
// letterboxed overlay anyway.
const (
	searchPerPage = 3
	searchSize    = "small"
)

// Clip is a downloadable stock video rendition.
type Clip struct {
	ID           int64  `json:"id"`
	URL          string `json:"url"`
	Width        int    `json:"width"`
	Height       int    `json:"height"`
	Duration     int    `json:"duration"`
	Photographer string `json:"photographer"`
}

// Client talks to the Pexels video API.
type Client struct {
	http    *httpclient.Client
	baseURL string
	apiKey  string
}

// New creates a Pexels client. A nil httpClient gets the default resilient
// client.
func New(httpClient *httpclient.Client, apiKey string) *Client {
	if httpClient == nil {
		httpClient = httpclient.NewWithDefaults()
	}
	return &Client{
		http:    httpClient,
		baseURL: DefaultBaseURL,
		apiKey:  apiKey,
	}
}

// WithBaseURL overrides the API root, used by tests.
func (c *Client) WithBaseURL(baseURL string) *Client {
	c.baseURL = strings.TrimSuffix(baseURL, "/")
	return c
}

// Configured reports whether an API key is present.
func (c *Client) Configured() bool {
	return c.apiKey != ""
}

type searchResponse struct {
	Videos []pexelsVideo `json:"videos"`
}

type pexelsVideo struct {
	ID       int64  `json:"id"`
	Duration int    `json:"duration"`
	User     struct {
		Name string `json:"name"`
	} `json:"user"`
	VideoFiles []videoFile `json:"video_files"`
}

type videoFile struct {
	Link     string `json:"link"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	Quality  string `json:"quality"`
	FileType string `json:"file_type"`
}

// Search queries Pexels for a keyword and returns the chosen clip, or nil
// when nothing matched. English keywords search far better than French.
func (c *Client) Search(ctx context.Context, query string) (*Clip, error) {
	if !c.Configured() {
		return nil, fmt.Errorf("stockvideo: api key not configured")
	}

	params := url.Values{}
	params.Set("query", query)
	params.Set("per_page", fmt.Sprintf("%d", searchPerPage))
	params.Set("size", searchSize)

	headers := http.Header{}
	headers.Set("Authorization", c.apiKey)

	var resp searchResponse
	searchURL := c.baseURL + "/videos/search?" + params.Encode()
	if err := c.http.GetJSON(ctx, searchURL, headers, &resp); err != nil {
		return nil, fmt.Errorf("stockvideo: searching %q: %w", query, err)
	}

	for _, video := range resp.Videos {
		if file := chooseRendition(video.VideoFiles); file != nil {
			return &Clip{
				ID:           video.ID,
				URL:          file.Link,
				Width:        file.Width,
				Height:       file.Height,
				Duration:     video.Duration,
				Photographer: video.User.Name,
			}, nil
		}
	}
	return nil, nil
}

// chooseRendition picks the second-smallest rendition by width: the
// smallest is often a preview-grade crop, anything larger wastes download
// time for an overlay that ends up letterboxed.
func chooseRendition(files []videoFile) *videoFile {
	if len(files) == 0 {
		return nil
	}
	sorted := make([]videoFile, len(files))
	copy(sorted, files)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Width < sorted[j].Width })

	pick := sorted[min(1, len(sorted)-1)]
	return &pick
}

// Download streams a clip URL into w.
func (c *Client) Download(ctx context.Context, clipURL string, w io.Writer) (int64, error) {
	n, err := c.http.Download(ctx, clipURL, w)
	if err != nil {
		return n, fmt.Errorf("stockvideo: downloading clip: %w", err)
	}
	return n, nil
}
