package chromedevtools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const DefaultHost = "127.0.0.1"
const DefaultPort = "9222"

var newHTTPClient = func(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout}
}

// Version is the subset of /json/version needed to attach over CDP.
type Version struct {
	Browser              string `json:"Browser"`
	ProtocolVersion      string `json:"Protocol-Version"`
	WebSocketDebuggerURL string `json:"webSocketDebuggerUrl"`
}

func VersionURL(host, port string) string {
	return versionURL("http", host, port)
}

func versionURL(scheme, host, port string) string {
	host = strings.TrimSpace(host)
	if host == "" {
		host = DefaultHost
	}
	port = strings.TrimSpace(port)
	if port == "" {
		port = DefaultPort
	}
	return fmt.Sprintf("%s://%s/json/version", scheme, net.JoinHostPort(host, port))
}

// VersionURLFromEndpoint maps a DevTools endpoint such as "http://10.0.0.5:9222" to its /json/version URL.
func VersionURLFromEndpoint(endpoint string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(endpoint))
	if err != nil {
		return "", fmt.Errorf("invalid devtools endpoint: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("devtools endpoint must be http(s), got %q", endpoint)
	}
	return versionURL(u.Scheme, u.Hostname(), u.Port()), nil
}

func CheckReachable(ctx context.Context, url string, timeout time.Duration) ([]byte, error) {
	if strings.TrimSpace(url) == "" {
		return nil, fmt.Errorf("missing url")
	}
	if timeout <= 0 {
		timeout = 3 * time.Second
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := newHTTPClient(timeout).Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("unexpected status %s from %s", resp.Status, url)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1024*32))
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, fmt.Errorf("empty response from %s", url)
	}

	return body, nil
}

// Discover fetches /json/version from endpoint and returns the browser websocket URL.
func Discover(ctx context.Context, endpoint string, timeout time.Duration) (Version, error) {
	versionURL, err := VersionURLFromEndpoint(endpoint)
	if err != nil {
		return Version{}, err
	}
	body, err := CheckReachable(ctx, versionURL, timeout)
	if err != nil {
		return Version{}, fmt.Errorf("chrome devtools not reachable at %s: %w", versionURL, err)
	}

	var v Version
	if err := json.Unmarshal(body, &v); err != nil {
		return Version{}, fmt.Errorf("decode %s: %w", versionURL, err)
	}
	if strings.TrimSpace(v.WebSocketDebuggerURL) == "" {
		return Version{}, fmt.Errorf("no webSocketDebuggerUrl in %s", versionURL)
	}
	return v, nil
}
