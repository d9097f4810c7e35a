package services

import (
	"log/slog"
	"time"

	"github.com/classflow/live-session-service/internal/cache"
	"github.com/classflow/live-session-service/internal/events"
	"github.com/classflow/live-session-service/internal/repositories"
	"github.com/classflow/live-session-service/internal/validator"
)

type serviceManager struct {
	session    SessionService
	pacing     PacingService
	navigation NavigationService
	response   ResponseService
	completion CompletionService
	report     ReportService
}

// NewServiceManager builds the full service set in dependency order against one
// repository, presence registry, broadcaster and event publisher.
func NewServiceManager(
	repo repositories.Repository,
	presence cache.PresenceRegistry,
	broadcaster Broadcaster,
	publisher events.EventPublisher,
	logger *slog.Logger,
	v *validator.Validator,
	gracePeriod time.Duration,
) ServiceManager {
	pacing := NewPacingService(repo, broadcaster, logger, v)
	session := NewSessionService(repo, pacing, presence, broadcaster, publisher, logger, v, gracePeriod)
	navigation := NewNavigationService(repo, pacing, session, presence, broadcaster, logger, v)
	completion := NewCompletionService(repo, publisher, logger, v)
	response := NewResponseService(repo, session, completion, broadcaster, publisher, logger, v)
	report := NewReportService(repo, logger)

	return &serviceManager{
		session:    session,
		pacing:     pacing,
		navigation: navigation,
		response:   response,
		completion: completion,
		report:     report,
	}
}

func (m *serviceManager) Session() SessionService       { return m.session }
func (m *serviceManager) Pacing() PacingService         { return m.pacing }
func (m *serviceManager) Navigation() NavigationService { return m.navigation }
func (m *serviceManager) Response() ResponseService     { return m.response }
func (m *serviceManager) Completion() CompletionService { return m.completion }
func (m *serviceManager) Report() ReportService         { return m.report }
