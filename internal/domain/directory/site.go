// Package directory models the campground site/site-class directory. The
// directory is owned by the reservation system; this core consumes it
// read-only to bind meters to sites and to inherit site-class metering
// defaults.
package directory

import (
	"context"

	"github.com/campreserve/backend/internal/domain/metering"
	"github.com/google/uuid"
)

// Site is a campsite that meters attach to
type Site struct {
	ID          uuid.UUID
	SiteClassID uuid.UUID
	Name        string
}

// SiteClass groups sites and carries the class-level metering template
type SiteClass struct {
	ID       uuid.UUID
	Name     string
	Metering *metering.ClassDefaults
}

// SiteDirectory is the read-only view of the campground's sites and classes
type SiteDirectory interface {
	FindSite(ctx context.Context, id uuid.UUID) (*Site, error)
	FindSiteClass(ctx context.Context, id uuid.UUID) (*SiteClass, error)
	// ListSitesByClass returns every site belonging to the class, ordered by
	// name.
	ListSitesByClass(ctx context.Context, siteClassID uuid.UUID) ([]Site, error)
}
