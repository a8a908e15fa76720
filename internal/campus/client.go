package campus

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// Client calls the campus directory microservice to resolve subjects,
// faculty and students. With Skip set (standalone deployments) every
// lookup answers positively, preserving the tolerate-missing behavior.
type Client struct {
	BaseURL string
	HTTP    *http.Client
	Skip    bool
}

// New creates a client with a short timeout; directory lookups sit on the
// request path and must not stall it.
func New(baseURL string, skip bool) *Client {
	return &Client{
		BaseURL: baseURL,
		Skip:    skip,
		HTTP: &http.Client{
			Timeout: 3 * time.Second,
		},
	}
}

// SubjectExists reports whether the directory knows the subject.
func (c *Client) SubjectExists(ctx context.Context, subjectID string) (bool, error) {
	return c.exists(ctx, "subjects", subjectID)
}

// FacultyExists reports whether the directory knows the faculty member.
func (c *Client) FacultyExists(ctx context.Context, facultyID string) (bool, error) {
	return c.exists(ctx, "faculty", facultyID)
}

func (c *Client) exists(ctx context.Context, kind, id string) (bool, error) {
	if c == nil || c.Skip {
		return true, nil
	}
	if id == "" {
		return false, nil
	}

	u := fmt.Sprintf("%s/v1/%s/%s", c.BaseURL, kind, url.PathEscape(id))
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, u, nil)
	if err != nil {
		return false, err
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return false, fmt.Errorf("campus directory request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return false, nil
	case resp.StatusCode >= 300:
		return false, fmt.Errorf("campus directory error: %s", resp.Status)
	}
	return true, nil
}

// Health checks if the directory service is available.
func (c *Client) Health(ctx context.Context) error {
	if c == nil || c.Skip {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/health", nil)
	if err != nil {
		return err
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("campus directory unavailable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("campus directory unhealthy: %s", resp.Status)
	}
	return nil
}
