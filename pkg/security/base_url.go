package security

import (
	"net/netip"
	"net/url"
	"strings"

	"github.com/go-go-golems/shopwire/pkg/steps/ai/types"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// OutboundURLOptions controls where provider requests, and with them the API
// key, may be sent.
type OutboundURLOptions struct {
	AllowHTTP          bool
	AllowLocalNetworks bool
	// ProviderHostsOnly rejects every host but the provider's public API.
	ProviderHostsOnly bool
}

// InsecureOptions allows plain http and local targets (local proxies, tests).
func InsecureOptions() OutboundURLOptions {
	return OutboundURLOptions{AllowHTTP: true, AllowLocalNetworks: true}
}

// ValidateProviderBaseURL checks the base url configured for apiType before
// any request is made. Public provider hosts only need an allowed scheme;
// custom endpoints must also not point into local networks unless allowed.
// IP literals are checked without DNS lookups.
func ValidateProviderBaseURL(apiType types.ApiType, rawURL string, opts OutboundURLOptions) error {
	target, err := url.Parse(rawURL)
	if err != nil {
		return errors.Wrapf(err, "invalid %s base url", apiType)
	}
	if err := checkScheme(target.Scheme, opts); err != nil {
		return errors.Wrapf(err, "invalid %s base url", apiType)
	}

	host := strings.ToLower(target.Hostname())
	if host == "" {
		return errors.Errorf("%s base url %q has no host", apiType, rawURL)
	}
	if IsProviderHost(apiType, host) {
		return nil
	}
	if opts.ProviderHostsOnly {
		return errors.Errorf("%s is not an API host of %s", host, apiType)
	}
	if err := checkCustomHost(host, opts); err != nil {
		return errors.Wrapf(err, "invalid %s base url", apiType)
	}

	log.Debug().Str("api_type", string(apiType)).Str("host", host).Msg("using custom provider endpoint")
	return nil
}

func checkScheme(scheme string, opts OutboundURLOptions) error {
	switch scheme {
	case "https":
		return nil
	case "http":
		if opts.AllowHTTP {
			return nil
		}
		return errors.New("plain http is not allowed")
	default:
		return errors.Errorf("unsupported scheme %q", scheme)
	}
}

func checkCustomHost(host string, opts OutboundURLOptions) error {
	isLocalName := host == "localhost" || strings.HasSuffix(host, ".localhost") || strings.HasSuffix(host, ".local")
	if isLocalName && !opts.AllowLocalNetworks {
		return errors.Errorf("local host %q is not allowed", host)
	}

	addr, err := netip.ParseAddr(host)
	if err != nil {
		// a DNS name
		return nil
	}
	if addr.IsUnspecified() || addr.IsMulticast() {
		return errors.Errorf("address %q can not be a provider endpoint", host)
	}
	if opts.AllowLocalNetworks {
		return nil
	}
	if addr.Zone() != "" {
		return errors.Errorf("zoned address %q is not allowed", host)
	}
	addr = addr.Unmap()
	if addr.IsLoopback() || addr.IsPrivate() || addr.IsLinkLocalUnicast() || addr.IsLinkLocalMulticast() {
		return errors.Errorf("local network address %q is not allowed", host)
	}
	return nil
}
