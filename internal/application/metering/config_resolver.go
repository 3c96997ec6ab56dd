package metering

import (
	"context"
	"errors"

	"github.com/campreserve/backend/internal/domain/directory"
	"github.com/campreserve/backend/internal/domain/metering"
	"github.com/campreserve/backend/internal/domain/shared"
)

// ConfigResolver resolves a meter's effective configuration by walking the
// override chain: meter values, then the site class metering template, then
// system defaults. A site without a class, or a class without a template,
// simply contributes nothing to the chain.
type ConfigResolver struct {
	siteDirectory directory.SiteDirectory
}

// NewConfigResolver creates a config resolver backed by the site directory
func NewConfigResolver(siteDirectory directory.SiteDirectory) *ConfigResolver {
	return &ConfigResolver{siteDirectory: siteDirectory}
}

// Resolve returns the meter's fully resolved configuration
func (r *ConfigResolver) Resolve(ctx context.Context, meter *metering.Meter) (metering.EffectiveConfig, error) {
	defaults, err := r.classDefaults(ctx, meter)
	if err != nil {
		return metering.EffectiveConfig{}, err
	}
	return metering.ResolveEffectiveConfig(meter, defaults), nil
}

func (r *ConfigResolver) classDefaults(ctx context.Context, meter *metering.Meter) (*metering.ClassDefaults, error) {
	site, err := r.siteDirectory.FindSite(ctx, meter.SiteID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}

	class, err := r.siteDirectory.FindSiteClass(ctx, site.SiteClassID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return class.Metering, nil
}
