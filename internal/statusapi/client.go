package statusapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Iron-Ham/sharedsave/internal/session"
)

// Client talks to a running daemon's status API.
type Client struct {
	base string
	http *http.Client
}

// NewClient creates a Client for the daemon listening on addr (host:port).
func NewClient(addr string) *Client {
	base := addr
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}
	return &Client{
		base: strings.TrimRight(base, "/"),
		http: &http.Client{Timeout: 5 * time.Second},
	}
}

// Status fetches the session snapshot.
func (c *Client) Status(ctx context.Context) (session.Snapshot, error) {
	var snap session.Snapshot
	err := c.do(ctx, http.MethodGet, "/status", http.StatusOK, &snap)
	return snap, err
}

// Respond sends a notification response token.
func (c *Client) Respond(ctx context.Context, token string) (RespondResult, error) {
	var res RespondResult
	err := c.do(ctx, http.MethodPost, "/respond/"+token, http.StatusAccepted, &res)
	return res, err
}

func (c *Client) do(ctx context.Context, method, path string, want int, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("daemon not reachable at %s: %w", c.base, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != want {
		var body errorBody
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		if json.Unmarshal(data, &body) == nil && body.Error != "" {
			return fmt.Errorf("%s %s: %s", method, path, body.Error)
		}
		return fmt.Errorf("%s %s: unexpected status %d", method, path, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
