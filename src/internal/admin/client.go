// FILE: loglayer/src/internal/admin/client.go
package admin

import (
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"loglayer/src/internal/version"

	"github.com/valyala/fasthttp"
)

// FilterState is the /filter response body
type FilterState struct {
	Layer     string   `json:"layer"`
	Filter    string   `json:"filter"`
	Directive string   `json:"directive,omitempty"`
	Ignored   []string `json:"ignored,omitempty"`
}

// Client talks to a running admin server
type Client struct {
	baseURL string
	token   string
	timeout time.Duration
	client  *fasthttp.Client
}

// NewClient creates a client for the server at addr ("host:port")
func NewClient(addr, token string) *Client {
	return &Client{
		baseURL: "http://" + addr,
		token:   token,
		timeout: 5 * time.Second,
		client: &fasthttp.Client{
			Name:         version.UserAgent("cli"),
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 5 * time.Second,
		},
	}
}

// GetFilter reads the active filter of layerName, empty for the server default
func (c *Client) GetFilter(layerName string) (FilterState, error) {
	return c.filterRequest(fasthttp.MethodGet, layerName, "")
}

// SetFilter installs directive on layerName, empty for the server default
func (c *Client) SetFilter(layerName, directive string) (FilterState, error) {
	return c.filterRequest(fasthttp.MethodPut, layerName, directive)
}

func (c *Client) filterRequest(method, layerName, body string) (FilterState, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	uri := c.baseURL + FilterPath
	if layerName != "" {
		uri += "?layer=" + url.QueryEscape(layerName)
	}
	req.SetRequestURI(uri)
	req.Header.SetMethod(method)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if method != fasthttp.MethodGet {
		req.Header.SetContentType("text/plain")
		req.SetBodyString(body)
	}

	if err := c.client.DoTimeout(req, resp, c.timeout); err != nil {
		return FilterState{}, fmt.Errorf("admin request failed: %w", err)
	}

	if resp.StatusCode() != fasthttp.StatusOK {
		var apiErr struct {
			Error string `json:"error"`
		}
		_ = json.Unmarshal(resp.Body(), &apiErr)
		if apiErr.Error == "" {
			apiErr.Error = fasthttp.StatusMessage(resp.StatusCode())
		}
		return FilterState{}, fmt.Errorf("admin server returned %d: %s", resp.StatusCode(), apiErr.Error)
	}

	var state FilterState
	if err := json.Unmarshal(resp.Body(), &state); err != nil {
		return FilterState{}, fmt.Errorf("invalid admin response: %w", err)
	}
	return state, nil
}
