package dispatch

import (
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/hashicorp/go-retryablehttp"
)

// IPAllowList is the process-wide startup cache of allowed source
// addresses of §5 ("A module-level startup cache of allowed IP ranges,
// populated once on start"): the union of GitHub's published hook ranges
// and, optionally, Cloudflare's.
type IPAllowList struct {
	mu   sync.RWMutex
	nets []*net.IPNet
}

// Load fetches, if verifyGitHub, GitHub's /meta hooks ranges and, if
// verifyCloudflare, Cloudflare's published IPv4+IPv6 CIDR lists, populating
// the allow list.
// Meant to be called once at process startup.
func (a *IPAllowList) Load(verifyGitHub, verifyCloudflare bool) error {
	client := newMetaClient()
	var nets []*net.IPNet

	if verifyGitHub {
		ranges, err := fetchGitHubHookRanges(client)
		if err != nil {
			return fmt.Errorf("ip allow-list: fetch github meta: %w", err)
		}
		nets = append(nets, ranges...)
	}
	if verifyCloudflare {
		ranges, err := fetchCloudflareRanges(client)
		if err != nil {
			return fmt.Errorf("ip allow-list: fetch cloudflare ranges: %w", err)
		}
		nets = append(nets, ranges...)
	}

	a.mu.Lock()
	a.nets = nets
	a.mu.Unlock()
	return nil
}

// Allowed reports whether addr falls within the loaded ranges. An empty
// allow-list (neither source configured) allows everything — the gate is
// optional per §4.1.
func (a *IPAllowList) Allowed(addr string) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if len(a.nets) == 0 {
		return true
	}
	ip := net.ParseIP(addr)
	if ip == nil {
		return false
	}
	for _, n := range a.nets {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

func newMetaClient() *retryablehttp.Client {
	c := retryablehttp.NewClient()
	c.HTTPClient = cleanhttp.DefaultPooledClient()
	c.HTTPClient.Timeout = 10 * time.Second
	c.RetryMax = 2
	c.Logger = nil
	return c
}

type githubMeta struct {
	Hooks []string `json:"hooks"`
}

func fetchGitHubHookRanges(client *retryablehttp.Client) ([]*net.IPNet, error) {
	resp, err := client.Get("https://api.github.com/meta")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("github meta: unexpected status %d", resp.StatusCode)
	}
	var m githubMeta
	if err := json.NewDecoder(resp.Body).Decode(&m); err != nil {
		return nil, err
	}
	return parseCIDRs(m.Hooks), nil
}

func fetchCloudflareRanges(client *retryablehttp.Client) ([]*net.IPNet, error) {
	var all []string
	for _, url := range []string{
		"https://www.cloudflare.com/ips-v4",
		"https://www.cloudflare.com/ips-v6",
	} {
		resp, err := client.Get(url)
		if err != nil {
			return nil, err
		}
		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, err
		}
		for _, line := range strings.Split(string(body), "\n") {
			line = strings.TrimSpace(line)
			if line != "" {
				all = append(all, line)
			}
		}
	}
	return parseCIDRs(all), nil
}

func parseCIDRs(in []string) []*net.IPNet {
	var out []*net.IPNet
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if !strings.Contains(s, "/") {
			if strings.Contains(s, ":") {
				s += "/128"
			} else {
				s += "/32"
			}
		}
		_, n, err := net.ParseCIDR(s)
		if err != nil {
			continue
		}
		out = append(out, n)
	}
	return out
}
