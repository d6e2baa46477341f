// Package videohost uploads finished videos and thumbnails to the hosting
// platform's data API, with optional scheduled publication.
package videohost

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"strings"
	"time"

	"github.com/vibeacademy/vidarr/internal/httpclient"
)

// DefaultUploadBaseURL is the resumable/media upload API root.
const DefaultUploadBaseURL = "https://www.googleapis.com"

// Platform limits enforced before upload.
const (
	maxTitleLen       = 100
	maxDescriptionLen = 5000
	maxTags           = 500
)

// DefaultCategoryID is "People & Blogs".
const DefaultCategoryID = "22"

// UploadRequest describes one video upload.
type UploadRequest struct {
	Title       string
	Description string
	Tags        []string
	CategoryID  string
	// Privacy is public, unlisted, or private.
	Privacy string
	// PublishAt schedules a public video. The upload itself always goes up
	// private when set; the platform flips it public at the given time.
	PublishAt *time.Time
	IsShort   bool
}

// UploadResult reports a completed upload.
type UploadResult struct {
	ID           string     `json:"id"`
	Title        string     `json:"title"`
	URL          string     `json:"url"`
	Status       string     `json:"status"`
	ScheduledFor *time.Time `json:"scheduled_for,omitempty"`
}

// Client talks to the video host's upload API with a bearer token.
type Client struct {
	http          *httpclient.Client
	uploadBaseURL string
	accessToken   string
}

// New creates an upload client. A nil httpClient gets the default resilient
// client.
func New(httpClient *httpclient.Client, accessToken string) *Client {
	if httpClient == nil {
		httpClient = httpclient.NewWithDefaults()
	}
	return &Client{
		http:          httpClient,
		uploadBaseURL: DefaultUploadBaseURL,
		accessToken:   accessToken,
	}
}

// WithUploadBaseURL overrides the upload API root, used by tests.
func (c *Client) WithUploadBaseURL(baseURL string) *Client {
	c.uploadBaseURL = strings.TrimSuffix(baseURL, "/")
	return c
}

// Configured reports whether an access token is present.
func (c *Client) Configured() bool {
	return c.accessToken != ""
}

type videoMetadata struct {
	Snippet struct {
		Title       string   `json:"title"`
		Description string   `json:"description"`
		Tags        []string `json:"tags,omitempty"`
		CategoryID  string   `json:"categoryId"`
	} `json:"snippet"`
	Status struct {
		PrivacyStatus           string `json:"privacyStatus"`
		PublishAt               string `json:"publishAt,omitempty"`
		SelfDeclaredMadeForKids bool   `json:"selfDeclaredMadeForKids"`
	} `json:"status"`
}

type uploadResponse struct {
	ID      string `json:"id"`
	Snippet struct {
		Title string `json:"title"`
	} `json:"snippet"`
	Status struct {
		PrivacyStatus string `json:"privacyStatus"`
	} `json:"status"`
}

// buildMetadata applies the platform limits and scheduling rules.
func buildMetadata(req UploadRequest) videoMetadata {
	title := strings.TrimSpace(req.Title)
	if req.IsShort && !strings.Contains(title, "#Shorts") && !strings.Contains(title, "#shorts") {
		title += " #Shorts"
	}

	var meta videoMetadata
	meta.Snippet.Title = truncate(title, maxTitleLen)
	meta.Snippet.Description = truncate(req.Description, maxDescriptionLen)
	if len(req.Tags) > maxTags {
		meta.Snippet.Tags = req.Tags[:maxTags]
	} else {
		meta.Snippet.Tags = req.Tags
	}
	meta.Snippet.CategoryID = req.CategoryID
	if meta.Snippet.CategoryID == "" {
		meta.Snippet.CategoryID = DefaultCategoryID
	}

	meta.Status.PrivacyStatus = req.Privacy
	if meta.Status.PrivacyStatus == "" {
		meta.Status.PrivacyStatus = "private"
	}
	if req.PublishAt != nil && req.Privacy == "public" {
		// Scheduled publication requires the video to sit private until
		// the platform flips it.
		meta.Status.PrivacyStatus = "private"
		meta.Status.PublishAt = req.PublishAt.UTC().Format("2006-01-02T15:04:05.000Z")
	}

	return meta
}

// Upload sends a video file with its metadata in one multipart request.
func (c *Client) Upload(ctx context.Context, videoPath string, req UploadRequest) (*UploadResult, error) {
	if !c.Configured() {
		return nil, fmt.Errorf("videohost: access token not configured")
	}

	video, err := os.Open(videoPath)
	if err != nil {
		return nil, fmt.Errorf("videohost: opening video: %w", err)
	}
	defer video.Close()

	meta := buildMetadata(req)
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("videohost: encoding metadata: %w", err)
	}

	body, contentType, err := buildRelatedBody(metaJSON, video)
	if err != nil {
		return nil, fmt.Errorf("videohost: building upload body: %w", err)
	}

	uploadURL := c.uploadBaseURL + "/upload/youtube/v3/videos?part=snippet%2Cstatus&uploadType=multipart"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, uploadURL, body)
	if err != nil {
		return nil, fmt.Errorf("videohost: %w", err)
	}
	httpReq.Header.Set("Content-Type", contentType)
	httpReq.Header.Set("Authorization", "Bearer "+c.accessToken)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("videohost: upload call: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("videohost: upload status %d: %s", resp.StatusCode, excerpt)
	}

	var uploaded uploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&uploaded); err != nil {
		return nil, fmt.Errorf("videohost: parsing upload response: %w", err)
	}

	result := &UploadResult{
		ID:     uploaded.ID,
		Title:  uploaded.Snippet.Title,
		URL:    "https://www.youtube.com/watch?v=" + uploaded.ID,
		Status: uploaded.Status.PrivacyStatus,
	}
	if meta.Status.PublishAt != "" {
		result.ScheduledFor = req.PublishAt
	}
	return result, nil
}

// SetThumbnail replaces a video's thumbnail with a local PNG.
func (c *Client) SetThumbnail(ctx context.Context, videoID, thumbnailPath string) error {
	if !c.Configured() {
		return fmt.Errorf("videohost: access token not configured")
	}

	image, err := os.ReadFile(thumbnailPath)
	if err != nil {
		return fmt.Errorf("videohost: reading thumbnail: %w", err)
	}

	setURL := c.uploadBaseURL + "/upload/youtube/v3/thumbnails/set?videoId=" + videoID
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, setURL, bytes.NewReader(image))
	if err != nil {
		return fmt.Errorf("videohost: %w", err)
	}
	httpReq.Header.Set("Content-Type", "image/png")
	httpReq.Header.Set("Authorization", "Bearer "+c.accessToken)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return fmt.Errorf("videohost: thumbnail call: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("videohost: thumbnail status %d: %s", resp.StatusCode, excerpt)
	}
	return nil
}

// buildRelatedBody assembles the multipart/related body: a JSON metadata
// part followed by the raw video part. The video is buffered so the
// resilient client can retry the request.
func buildRelatedBody(metaJSON []byte, video io.Reader) (io.Reader, string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	metaHeader := textproto.MIMEHeader{}
	metaHeader.Set("Content-Type", "application/json; charset=UTF-8")
	metaPart, err := mw.CreatePart(metaHeader)
	if err != nil {
		return nil, "", err
	}
	if _, err := metaPart.Write(metaJSON); err != nil {
		return nil, "", err
	}

	videoHeader := textproto.MIMEHeader{}
	videoHeader.Set("Content-Type", "video/mp4")
	videoPart, err := mw.CreatePart(videoHeader)
	if err != nil {
		return nil, "", err
	}
	if _, err := io.Copy(videoPart, video); err != nil {
		return nil, "", err
	}
	if err := mw.Close(); err != nil {
		return nil, "", err
	}

	contentType := "multipart/related; boundary=" + mw.Boundary()
	return &buf, contentType, nil
}

// truncate cuts s to at most n runes.
func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
