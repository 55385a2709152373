package source

import (
	"context"
	"log/slog"
	"maps"
	"slices"

	"github.com/kozaktomas/photolink/internal/config"
	"github.com/kozaktomas/photolink/internal/constants"
	"github.com/kozaktomas/photolink/internal/logging"
	"github.com/kozaktomas/photolink/internal/photoprism"
)

// Adapters maps provider names to their adapters.
type Adapters map[string]Adapter

// Lookup returns the adapter registered for provider.
func (a Adapters) Lookup(provider string) (Adapter, bool) {
	adapter, ok := a[provider]
	return adapter, ok
}

// Providers returns the registered provider names, sorted.
func (a Adapters) Providers() []string {
	return slices.Sorted(maps.Keys(a))
}

// Options controls which adapters NewAdapters registers.
type Options struct {
	// AllowLocal registers the local directory adapter. Only the CLI enables it.
	AllowLocal bool
	Logger     *slog.Logger
}

// NewAdapters builds the adapters available for cfg.
func NewAdapters(cfg *config.Config, opts Options) Adapters {
	logger := logging.NewComponentLogger(opts.Logger, "source")
	adapters := Adapters{
		constants.ProviderGoogleDrive: NewGoogleDrive(logger),
		constants.ProviderOneDrive:    NewOneDrive(logger),
	}
	if cfg.PhotoPrism.URL != "" {
		adapters[constants.ProviderPhotoPrism] = NewPhotoPrism(cfg.PhotoPrism.URL, logger)
	}
	if opts.AllowLocal {
		adapters[constants.ProviderLocal] = NewLocal()
	}
	return adapters
}

// CredentialResolver picks the credential used for a provider.
type CredentialResolver interface {
	Resolve(ctx context.Context, provider string, requestCred Credential) (Credential, error)
}

// ConfigCredentials resolves credentials from the request first and the server configuration second.
type ConfigCredentials struct {
	cfg *config.Config
}

func NewConfigCredentials(cfg *config.Config) *ConfigCredentials {
	return &ConfigCredentials{cfg: cfg}
}

// Resolve returns a usable credential or an *AuthError.
func (c *ConfigCredentials) Resolve(ctx context.Context, provider string, requestCred Credential) (Credential, error) {
	if requestCred.Token != "" {
		return requestCred, nil
	}

	switch provider {
	case constants.ProviderLocal:
		return Credential{}, nil
	case constants.ProviderGoogleDrive:
		if c.cfg.GoogleDrive.Token != "" {
			return Credential{Token: c.cfg.GoogleDrive.Token}, nil
		}
	case constants.ProviderOneDrive:
		if c.cfg.OneDrive.Token != "" {
			return Credential{Token: c.cfg.OneDrive.Token}, nil
		}
	case constants.ProviderPhotoPrism:
		pp := c.cfg.PhotoPrism
		if pp.Username != "" && pp.Password != "" {
			client, err := photoprism.NewPhotoPrism(ctx, pp.URL, pp.Username, pp.Password)
			if err != nil {
				return Credential{}, &AuthError{Provider: provider, Reason: err.Error()}
			}
			return Credential{Token: client.Token(), DownloadToken: client.DownloadToken()}, nil
		}
	}
	return Credential{}, &AuthError{Provider: provider}
}
