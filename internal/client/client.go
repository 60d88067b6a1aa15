package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	stdpath "path"
	"time"

	"github.com/devpilot-ai/devpilot/internal/proto"
	"github.com/devpilot-ai/devpilot/internal/server"
)

// DummyHost is used to satisfy the http.Client's requirement for a URL.
const DummyHost = "api.devpilot.localhost"

// Client talks to a devpilot server.
type Client struct {
	h       *http.Client
	network string
	addr    string
}

// APIError is a non-2xx response from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Message)
}

// DefaultClient creates a new [Client] connected to the default server address.
func DefaultClient() (*Client, error) {
	return FromHost(server.DefaultHost)
}

// FromHost creates a [Client] for a host URL such as tcp://127.0.0.1:7420 or
// unix:///run/devpilot.sock.
func FromHost(host string) (*Client, error) {
	u, err := server.ParseHostURL(host)
	if err != nil {
		return nil, err
	}
	return NewClient(u.Scheme, u.Host), nil
}

// NewClient creates a new [Client] connected to the server at the given
// network and address.
func NewClient(network, address string) *Client {
	c := new(Client)
	c.network = network
	c.addr = address
	p := &http.Protocols{}
	p.SetHTTP1(true)
	p.SetUnencryptedHTTP2(true)
	tr := http.DefaultTransport.(*http.Transport).Clone()
	tr.Protocols = p
	tr.DialContext = c.dialer
	if c.network == "unix" {
		// We don't need compression for local connections.
		tr.DisableCompression = true
	}
	c.h = &http.Client{
		Transport: tr,
		Timeout:   0, // we need this to be 0 for long-lived connections and SSE streams
	}
	return c
}

// Health checks the server's health status.
func (c *Client) Health(ctx context.Context) error {
	rsp, err := c.get(ctx, "/health", nil, nil)
	if err != nil {
		return err
	}
	defer rsp.Body.Close()
	return checkStatus(rsp)
}

// VersionInfo retrieves the server's version information.
func (c *Client) VersionInfo(ctx context.Context) (*proto.VersionInfo, error) {
	var vi proto.VersionInfo
	if err := c.getJSON(ctx, "/version", nil, &vi); err != nil {
		return nil, err
	}
	return &vi, nil
}

func (c *Client) dialer(ctx context.Context, network, address string) (net.Conn, error) {
	d := net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	// It's important to use the client's addr for unix sockets and not the
	// address param because the address param is always "localhost:port" for
	// HTTP clients and unix sockets don't have a concept of ports.
	switch c.network {
	case "unix":
		return d.DialContext(ctx, "unix", c.addr)
	default:
		return d.DialContext(ctx, network, address)
	}
}

func (c *Client) get(ctx context.Context, path string, query url.Values, headers http.Header) (*http.Response, error) {
	return c.sendReq(ctx, http.MethodGet, path, query, nil, headers)
}

func (c *Client) post(ctx context.Context, path string, query url.Values, body io.Reader, headers http.Header) (*http.Response, error) {
	return c.sendReq(ctx, http.MethodPost, path, query, body, headers)
}

func (c *Client) delete(ctx context.Context, path string, query url.Values, headers http.Header) (*http.Response, error) {
	return c.sendReq(ctx, http.MethodDelete, path, query, nil, headers)
}

// getJSON decodes a successful response into v.
func (c *Client) getJSON(ctx context.Context, path string, query url.Values, v any) error {
	rsp, err := c.get(ctx, path, query, nil)
	if err != nil {
		return err
	}
	defer rsp.Body.Close()
	if err := checkStatus(rsp); err != nil {
		return err
	}
	return json.NewDecoder(rsp.Body).Decode(v)
}

func (c *Client) sendReq(ctx context.Context, method, path string, query url.Values, body io.Reader, headers http.Header) (*http.Response, error) {
	url := (&url.URL{
		Path:     stdpath.Join("/v1", path), // Right now, we only have v1
		RawQuery: query.Encode(),
	}).String()
	req, err := c.buildReq(ctx, method, url, body, headers)
	if err != nil {
		return nil, err
	}

	rsp, err := c.doReq(req)
	if err != nil {
		return nil, err
	}
	return rsp, nil
}

func (c *Client) doReq(req *http.Request) (*http.Response, error) {
	rsp, err := c.h.Do(req)
	if err != nil {
		return nil, err
	}
	return rsp, nil
}

func (c *Client) buildReq(ctx context.Context, method, url string, body io.Reader, headers http.Header) (*http.Request, error) {
	r, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, err
	}

	for k, v := range headers {
		r.Header[http.CanonicalHeaderKey(k)] = v
	}

	r.URL.Scheme = "http" // This is always http because we don't use TLS
	r.URL.Host = c.addr
	if c.network == "unix" {
		// We use a dummy host for non-tcp connections.
		r.Host = DummyHost
	}

	if body != nil && r.Header.Get("Content-Type") == "" {
		r.Header.Set("Content-Type", "application/json")
	}

	return r, nil
}

// checkStatus turns a non-2xx response into an [APIError].
func checkStatus(rsp *http.Response) error {
	if rsp.StatusCode >= 200 && rsp.StatusCode < 300 {
		return nil
	}
	var perr proto.Error
	if err := json.NewDecoder(rsp.Body).Decode(&perr); err != nil || perr.Message == "" {
		perr.Message = rsp.Status
	}
	return &APIError{StatusCode: rsp.StatusCode, Message: perr.Message}
}

func jsonBody(v any) *bytes.Buffer {
	b := new(bytes.Buffer)
	m, _ := json.Marshal(v)
	b.Write(m)
	return b
}
