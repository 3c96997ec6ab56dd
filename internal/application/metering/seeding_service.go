package metering

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/campreserve/backend/internal/domain/directory"
	"github.com/campreserve/backend/internal/domain/shared"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultSeedWorkers bounds the seeding worker pool when no explicit worker
// count is configured
const DefaultSeedWorkers = 8

// SeedFailure records one site the seeder could not equip
type SeedFailure struct {
	SiteID uuid.UUID `json:"site_id"`
	Error  string    `json:"error"`
}

// SeedReportDTO summarizes a seeding run. A run with failures is still a
// successful run: every site is attempted independently and the report says
// what happened to each.
type SeedReportDTO struct {
	SiteClassID uuid.UUID     `json:"site_class_id"`
	TotalSites  int           `json:"total_sites"`
	Created     int           `json:"created"`
	Skipped     int           `json:"skipped"`
	Failures    []SeedFailure `json:"failures,omitempty"`
}

// SeedingService bulk-creates meters for every site of a class from the
// class's metering template. Sites that already carry an active meter of the
// template's type are skipped, so reruns are harmless.
type SeedingService struct {
	meterService  *MeterService
	siteDirectory directory.SiteDirectory
	workers       int
	logger        *zap.Logger
}

// NewSeedingService creates a new SeedingService. workers bounds the
// concurrent site workers; zero or negative falls back to DefaultSeedWorkers.
func NewSeedingService(
	meterService *MeterService,
	siteDirectory directory.SiteDirectory,
	workers int,
	logger *zap.Logger,
) *SeedingService {
	if workers <= 0 {
		workers = DefaultSeedWorkers
	}
	return &SeedingService{
		meterService:  meterService,
		siteDirectory: siteDirectory,
		workers:       workers,
		logger:        logger,
	}
}

// SeedMeters equips every site of the class with a meter per the class
// metering template. Created meters carry no per-meter overrides; their
// configuration flows from the class defaults, so later template changes
// apply to the whole fleet.
func (s *SeedingService) SeedMeters(ctx context.Context, siteClassID uuid.UUID) (*SeedReportDTO, error) {
	class, err := s.siteDirectory.FindSiteClass(ctx, siteClassID)
	if err != nil {
		return nil, err
	}
	if class.Metering == nil || !class.Metering.MeteredEnabled {
		return nil, shared.NewDomainError("CLASS_NOT_METERED", "Site class has no metering template enabled")
	}
	if !class.Metering.MeteredType.IsValid() {
		return nil, shared.NewDomainError("INVALID_METER_TYPE", "Class metering template has no valid meter type")
	}

	sites, err := s.siteDirectory.ListSitesByClass(ctx, siteClassID)
	if err != nil {
		return nil, err
	}

	report := &SeedReportDTO{SiteClassID: siteClassID, TotalSites: len(sites)}
	if len(sites) == 0 {
		return report, nil
	}

	var (
		mu    sync.Mutex
		wg    sync.WaitGroup
		jobs  = make(chan directory.Site)
		mtype = class.Metering.MeteredType
	)

	for i := 0; i < s.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for site := range jobs {
				_, err := s.meterService.CreateMeter(ctx, CreateMeterInput{
					SiteID: site.ID,
					Type:   mtype,
				})

				mu.Lock()
				switch {
				case err == nil:
					report.Created++
				case errors.Is(err, shared.ErrDuplicateActiveMeter):
					report.Skipped++
				default:
					report.Failures = append(report.Failures, SeedFailure{
						SiteID: site.ID,
						Error:  err.Error(),
					})
				}
				mu.Unlock()
			}
		}()
	}

	for _, site := range sites {
		jobs <- site
	}
	close(jobs)
	wg.Wait()

	sort.Slice(report.Failures, func(i, j int) bool {
		return report.Failures[i].SiteID.String() < report.Failures[j].SiteID.String()
	})

	s.logger.Info("meter seeding finished",
		zap.String("site_class_id", siteClassID.String()),
		zap.Int("total_sites", report.TotalSites),
		zap.Int("created", report.Created),
		zap.Int("skipped", report.Skipped),
		zap.Int("failed", len(report.Failures)))
	return report, nil
}
