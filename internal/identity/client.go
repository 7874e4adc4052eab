package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
)

// UserClient queries the user service for registered display names.
type UserClient struct {
	baseURL string
	http    *fasthttp.Client
	timeout time.Duration
}

type ClientOption func(*UserClient)

func WithTimeout(d time.Duration) ClientOption {
	return func(c *UserClient) { c.timeout = d }
}

func NewUserClient(baseURL string, opts ...ClientOption) *UserClient {
	c := &UserClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &fasthttp.Client{ReadTimeout: 5 * time.Second, WriteTimeout: 5 * time.Second, MaxConnsPerHost: 32},
		timeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type displayNameResponse struct {
	DisplayName string `json:"displayName"`
}

// DisplayName fetches the registered display name for a player id. A 404 is
// not an error: registered lookup simply found nothing.
func (c *UserClient) DisplayName(ctx context.Context, playerID string) (string, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer func() {
		fasthttp.ReleaseRequest(req)
		fasthttp.ReleaseResponse(resp)
	}()

	req.Header.SetMethod(fasthttp.MethodGet)
	req.SetRequestURI(c.baseURL + "/users/" + strings.TrimSpace(playerID) + "/display-name")

	if err := c.http.DoDeadline(req, resp, c.computeDeadline(ctx)); err != nil {
		return "", fmt.Errorf("user service request: %w", err)
	}

	switch status := resp.StatusCode(); {
	case status == fasthttp.StatusNotFound:
		return "", nil
	case status < 200 || status >= 300:
		return "", fmt.Errorf("user service error: status=%d", status)
	}

	var out displayNameResponse
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return "", fmt.Errorf("decode user service response: %w", err)
	}
	return strings.TrimSpace(out.DisplayName), nil
}

func (c *UserClient) computeDeadline(ctx context.Context) time.Time {
	clientDL := time.Now().Add(c.timeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(clientDL) {
		return dl
	}
	return clientDL
}
