package capture

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"syscall"
)

const (
	maxURLLength = 2048
	maxRedirects = 5
)

// ErrPrivateAddress is returned when a connection would reach a private or
// reserved address
var ErrPrivateAddress = errors.New("private/reserved address")

// ValidateURL checks that a stream URL is safe to fetch:
//   - max length 2048 characters
//   - scheme must be http or https
//   - no embedded credentials (user:pass@host)
//   - hostname must resolve to a public IP (no private/reserved ranges)
func ValidateURL(ctx context.Context, rawURL string) error {
	if err := validateURLShape(rawURL); err != nil {
		return err
	}

	u, _ := url.Parse(rawURL)
	host := u.Hostname()

	addrs, err := net.DefaultResolver.LookupIPAddr(ctx, host)
	if err != nil {
		return fmt.Errorf("DNS resolution failed for %q: %w", host, err)
	}
	if len(addrs) == 0 {
		return fmt.Errorf("no DNS results for %q", host)
	}

	for _, addr := range addrs {
		if isPrivateIP(addr.IP) {
			return fmt.Errorf("URL resolves to %w %s", ErrPrivateAddress, addr.IP)
		}
	}
	return nil
}

// validateURLShape runs the checks that need no network access
func validateURLShape(rawURL string) error {
	if len(rawURL) > maxURLLength {
		return fmt.Errorf("URL too long (%d chars, max %d)", len(rawURL), maxURLLength)
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported scheme %q: only http and https are allowed", u.Scheme)
	}

	if u.User != nil {
		return fmt.Errorf("URLs with embedded credentials are not allowed")
	}

	if u.Hostname() == "" {
		return fmt.Errorf("URL has no hostname")
	}
	return nil
}

var privateRanges []*net.IPNet

func init() {
	cidrs := []string{
		"0.0.0.0/8",
		"127.0.0.0/8",
		"10.0.0.0/8",
		"100.64.0.0/10",
		"172.16.0.0/12",
		"192.168.0.0/16",
		"169.254.0.0/16",
		"::1/128",
		"fc00::/7",
		"fe80::/10",
	}
	for _, cidr := range cidrs {
		_, network, _ := net.ParseCIDR(cidr)
		privateRanges = append(privateRanges, network)
	}
}

func isPrivateIP(ip net.IP) bool {
	if ip.IsLoopback() || ip.IsUnspecified() || ip.IsMulticast() ||
		ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() {
		return true
	}
	for _, network := range privateRanges {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}

// dialControl rejects connections to private addresses after DNS
// resolution, for every hop of a request
func dialControl(network, address string, _ syscall.RawConn) error {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return fmt.Errorf("invalid dial address %q: %w", address, err)
	}
	ip := net.ParseIP(host)
	if ip == nil || isPrivateIP(ip) {
		return fmt.Errorf("dial %s: %w", host, ErrPrivateAddress)
	}
	return nil
}

// checkRedirect validates every redirect target like the initial URL
func checkRedirect(allowPrivate bool) func(*http.Request, []*http.Request) error {
	return func(req *http.Request, via []*http.Request) error {
		if len(via) >= maxRedirects {
			return fmt.Errorf("stopped after %d redirects", maxRedirects)
		}
		if allowPrivate {
			return validateURLShape(req.URL.String())
		}
		return ValidateURL(req.Context(), req.URL.String())
	}
}
