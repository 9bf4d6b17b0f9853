package settings

import (
	"net/http"
	"time"

	"github.com/go-go-golems/shopwire/pkg/security"
	"github.com/huandu/go-clone"
	"gopkg.in/yaml.v3"
)

type ClientSettings struct {
	Timeout        *time.Duration `yaml:"timeout,omitempty"`
	TimeoutSeconds *int           `yaml:"timeout_second,omitempty"`
	Organization   *string        `yaml:"organization,omitempty"`
	UserAgent      *string        `yaml:"user_agent,omitempty"`
	// AllowInsecureBaseURL permits http and local-network provider URLs (local proxies)
	AllowInsecureBaseURL bool `yaml:"allow_insecure_base_url,omitempty"`
	// ProviderHostsOnly refuses custom endpoints so API keys only go to the providers
	ProviderHostsOnly bool         `yaml:"provider_hosts_only,omitempty"`
	HTTPClient        *http.Client `yaml:"-" json:"-"`
}

// UnmarshalYAML reads timeout as a number of seconds. Keys that are absent
// keep their current values.
func (cs *ClientSettings) UnmarshalYAML(value *yaml.Node) error {
	var aux struct {
		Timeout              *int    `yaml:"timeout,omitempty"`
		TimeoutSeconds       *int    `yaml:"timeout_second,omitempty"`
		Organization         *string `yaml:"organization,omitempty"`
		UserAgent            *string `yaml:"user_agent,omitempty"`
		AllowInsecureBaseURL *bool   `yaml:"allow_insecure_base_url,omitempty"`
		ProviderHostsOnly    *bool   `yaml:"provider_hosts_only,omitempty"`
	}
	if err := value.Decode(&aux); err != nil {
		return err
	}

	seconds := aux.Timeout
	if seconds == nil {
		seconds = aux.TimeoutSeconds
	}
	if seconds != nil {
		t := time.Duration(*seconds) * time.Second
		cs.Timeout = &t
		cs.TimeoutSeconds = seconds
	}
	if aux.Organization != nil {
		cs.Organization = aux.Organization
	}
	if aux.UserAgent != nil {
		cs.UserAgent = aux.UserAgent
	}
	if aux.AllowInsecureBaseURL != nil {
		cs.AllowInsecureBaseURL = *aux.AllowInsecureBaseURL
	}
	if aux.ProviderHostsOnly != nil {
		cs.ProviderHostsOnly = *aux.ProviderHostsOnly
	}
	return nil
}

func (cs *ClientSettings) Clone() *ClientSettings {
	// http.Client holds a transport that must be shared, not copied
	httpClient := cs.HTTPClient
	cs.HTTPClient = nil
	ret := clone.Clone(cs).(*ClientSettings)
	cs.HTTPClient = httpClient
	ret.HTTPClient = httpClient
	return ret
}

// GetHTTPClient returns the configured client, or a new one honoring Timeout.
func (cs *ClientSettings) GetHTTPClient() *http.Client {
	if cs == nil {
		return http.DefaultClient
	}
	if cs.HTTPClient != nil {
		return cs.HTTPClient
	}
	c := &http.Client{}
	if cs.Timeout != nil {
		c.Timeout = *cs.Timeout
	}
	return c
}

func NewClientSettings() *ClientSettings {
	defaultTimeout := 60 * time.Second
	return &ClientSettings{
		Timeout: &defaultTimeout,
		TimeoutSeconds: func() *int {
			i := int(defaultTimeout.Seconds())
			return &i
		}(),
	}
}

func (cs *ClientSettings) OutboundURLOptions() security.OutboundURLOptions {
	if cs == nil {
		return security.OutboundURLOptions{}
	}
	opts := security.OutboundURLOptions{ProviderHostsOnly: cs.ProviderHostsOnly}
	if cs.AllowInsecureBaseURL {
		opts.AllowHTTP = true
		opts.AllowLocalNetworks = true
	}
	return opts
}

func (cs *ClientSettings) GetUserAgent() string {
	if cs != nil && cs.UserAgent != nil {
		return *cs.UserAgent
	}
	return ""
}
