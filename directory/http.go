package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// HTTPClient is the JSON/HTTP implementation of Client against the user
// service's internal API:
//
//	GET {base}/api/internal/users/email/{email}
//	GET {base}/api/internal/users/{id}
type HTTPClient struct {
	base   string
	client *http.Client
}

// NewHTTPClient builds a client against baseURL. When httpClient is nil,
// http.DefaultClient is used; deadlines come from the request context.
func NewHTTPClient(baseURL string, httpClient *http.Client) *HTTPClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &HTTPClient{
		base:   strings.TrimRight(baseURL, "/"),
		client: httpClient,
	}
}

func (c *HTTPClient) GetByEmail(ctx context.Context, email string) (*User, error) {
	return c.get(ctx, c.base+"/api/internal/users/email/"+url.PathEscape(email))
}

func (c *HTTPClient) GetByID(ctx context.Context, id int64) (*User, error) {
	return c.get(ctx, c.base+"/api/internal/users/"+strconv.FormatInt(id, 10))
}

func (c *HTTPClient) get(ctx context.Context, endpoint string) (*User, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrNotFound
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("%w: directory returned status %d", ErrUnavailable, resp.StatusCode)
	}

	var user User
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return nil, fmt.Errorf("%w: decoding directory response: %v", ErrUnavailable, err)
	}
	return &user, nil
}
