package client

import (
	"fmt"
	"net/http"
	"time"
)

// HTTPClient issues side-effecting requests against the daemon's API.
type HTTPClient struct {
	baseURL string
	token   string
	client  *http.Client
}

func NewHTTPClient(baseURL, token string) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		token:   token,
		client:  &http.Client{Timeout: 5 * time.Second},
	}
}

// Kill requests termination of a session's process. The daemon fires the
// signal and forgets; a nil return means the request was accepted.
func (c *HTTPClient) Kill(pid int32, force bool) error {
	url := fmt.Sprintf("%s/api/sessions/%d/kill", c.baseURL, pid)
	if force {
		url += "?force=1"
	}
	req, err := http.NewRequest(http.MethodPost, url, nil)
	if err != nil {
		return err
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("kill request rejected: %s", resp.Status)
	}
	return nil
}
