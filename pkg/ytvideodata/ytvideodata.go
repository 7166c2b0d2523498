package ytvideodata

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"time"
)

var (
	ErrInvalidURL         = errors.New("not a youtube video url")
	ErrVideoNotFound      = errors.New("video not found")
	ErrVideoNotEmbeddable = errors.New("video is not embeddable")
)

var videoURLRegexp = regexp.MustCompile(`^(?:https?://)?(?:www\.)?(?:youtu\.be/|youtube\.com/(?:embed/|v/|watch\?v=|watch\?.+&v=))([\w-]{11})(?:\S+)?$`)

// ParseVideoID extracts the 11 character video id from a youtube link.
func ParseVideoID(videoURL string) (string, error) {
	m := videoURLRegexp.FindStringSubmatch(videoURL)
	if m == nil {
		return "", ErrInvalidURL
	}

	return m[1], nil
}

func IsVideoURL(videoURL string) bool {
	return videoURLRegexp.MatchString(videoURL)
}

type VideoData struct {
	Title        string `json:"title"`
	AuthorName   string `json:"author_name"`
	ThumbnailUrl string `json:"thumbnail_url"`
}

type Client struct {
	http       *http.Client
	oembedBase string
	pageBase   string
}

func NewClient(timeout time.Duration) *Client {
	return &Client{
		http:       &http.Client{Timeout: timeout},
		oembedBase: "https://www.youtube.com/oembed",
		pageBase:   "https://youtu.be/",
	}
}

// Get fetches title, author and thumbnail. Videos that cannot be embedded
// fall back to scraping the watch page.
func (c *Client) Get(ctx context.Context, videoID string) (*VideoData, error) {
	videoData, err := c.getWithEmbed(ctx, videoID)
	if err != nil {
		if !errors.Is(err, ErrVideoNotEmbeddable) {
			return nil, fmt.Errorf("failed to get video data with embed: %w", err)
		}

		videoData, err = c.getFromPage(ctx, videoID)
		if err != nil {
			return nil, fmt.Errorf("failed to get video data from page: %w", err)
		}
	}

	return videoData, nil
}
