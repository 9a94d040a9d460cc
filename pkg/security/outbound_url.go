package security

import (
	"net/netip"
	"net/url"
	"strings"

	"github.com/pkg/errors"
)

// OutboundURLOptions relaxes the checks applied to provider base URLs.
type OutboundURLOptions struct {
	// AllowHTTP permits plain http. https is always accepted.
	AllowHTTP bool
	// AllowLocalNetworks permits localhost names and loopback, private and
	// link-local addresses.
	AllowLocalNetworks bool
}

// LocalServerOptions is used for self-hosted OpenAI compatible servers.
var LocalServerOptions = OutboundURLOptions{AllowHTTP: true, AllowLocalNetworks: true}

// ValidateOutboundURL checks that rawURL may receive provider requests and
// API keys.
func ValidateOutboundURL(rawURL string, opts OutboundURLOptions) error {
	_, err := parseOutboundURL(rawURL, opts)
	return err
}

// ValidateTrustedHost requires rawURL to be an https URL whose host is exactly
// trustedHost. Hosts that merely contain trustedHost do not match.
func ValidateTrustedHost(rawURL string, trustedHost string) error {
	u, err := parseOutboundURL(rawURL, OutboundURLOptions{})
	if err != nil {
		return err
	}
	if u.User != nil {
		return errors.Errorf("credentials are not allowed in %q", rawURL)
	}
	if host := strings.ToLower(u.Hostname()); host != strings.ToLower(trustedHost) {
		return errors.Errorf("host %q is not %s", host, trustedHost)
	}
	return nil
}

func parseOutboundURL(rawURL string, opts OutboundURLOptions) (*url.URL, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, errors.Wrap(err, "invalid URL")
	}
	if err := checkScheme(u.Scheme, opts); err != nil {
		return nil, err
	}
	if err := checkHost(strings.ToLower(u.Hostname()), opts); err != nil {
		return nil, err
	}
	return u, nil
}

func checkScheme(scheme string, opts OutboundURLOptions) error {
	switch scheme {
	case "https":
		return nil
	case "http":
		if opts.AllowHTTP {
			return nil
		}
		return errors.New("http scheme is not allowed")
	default:
		return errors.Errorf("unsupported URL scheme %q", scheme)
	}
}

func isLocalName(host string) bool {
	return host == "localhost" || strings.HasSuffix(host, ".localhost") || strings.HasSuffix(host, ".local")
}

func checkHost(host string, opts OutboundURLOptions) error {
	if host == "" {
		return errors.New("URL host is required")
	}
	if !opts.AllowLocalNetworks && isLocalName(host) {
		return errors.Errorf("local hostname %q is not allowed", host)
	}

	addr, err := netip.ParseAddr(host)
	if err != nil {
		// a name, resolved by the transport
		return nil
	}
	if addr.Zone() != "" && !opts.AllowLocalNetworks {
		return errors.Errorf("zoned IP address %q is not allowed", host)
	}
	addr = addr.Unmap()
	if addr.IsUnspecified() || addr.IsMulticast() {
		return errors.Errorf("disallowed IP address %q", host)
	}
	if opts.AllowLocalNetworks {
		return nil
	}
	if addr.IsLoopback() || addr.IsPrivate() || addr.IsLinkLocalUnicast() || addr.IsLinkLocalMulticast() {
		return errors.Errorf("local network IP %q is not allowed", host)
	}
	return nil
}
