package services

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/classflow/live-session-service/internal/models"
	"github.com/classflow/live-session-service/internal/realtime"
	"github.com/classflow/live-session-service/internal/repositories"
	"github.com/classflow/live-session-service/internal/validator"
)

// pacingService owns the live PresentationState of every running session in this
// process. State is session-scoped and injected, never package-level, so multiple
// sessions run in one process without cross-talk.
type pacingService struct {
	mu     sync.RWMutex
	states map[uint]*models.PresentationState

	repo        repositories.Repository
	broadcaster Broadcaster
	logger      *slog.Logger
	validator   *validator.Validator
}

func NewPacingService(repo repositories.Repository, broadcaster Broadcaster, logger *slog.Logger, validator *validator.Validator) PacingService {
	return &pacingService{
		states:      make(map[uint]*models.PresentationState),
		repo:        repo,
		broadcaster: broadcaster,
		logger:      logger,
		validator:   validator,
	}
}

func (s *pacingService) StartPresentation(ctx context.Context, sessionID, deckID uint) (*models.PresentationState, error) {
	total, err := s.repo.Deck().CountSlides(ctx, deckID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrActivityNotFound
		}
		return nil, fmt.Errorf("failed to count slides: %w", err)
	}

	state := &models.PresentationState{
		SessionID:         sessionID,
		DeckID:            deckID,
		Mode:              models.PacingTeacher,
		CurrentSlideIndex: 0,
		TotalSlides:       total,
		Checkpoints:       nil,
	}

	s.mu.Lock()
	s.states[sessionID] = state
	s.mu.Unlock()

	s.logger.Info("Presentation started",
		"session_id", sessionID,
		"deck_id", deckID,
		"total_slides", total)

	return snapshot(state), nil
}

func (s *pacingService) GetState(sessionID uint) (*models.PresentationState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state, ok := s.states[sessionID]
	if !ok {
		return nil, ErrPresentationNotFound
	}
	return snapshot(state), nil
}

func (s *pacingService) SetMode(ctx context.Context, sessionID uint, teacherID string, req *SetModeRequest) (*models.PresentationState, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidationFailed, err)
	}

	if err := s.ensureOwner(ctx, sessionID, teacherID); err != nil {
		return nil, err
	}

	s.mu.Lock()
	state, ok := s.states[sessionID]
	if !ok {
		s.mu.Unlock()
		return nil, ErrPresentationNotFound
	}

	state.Mode = req.Mode
	if req.Mode == models.PacingBounded {
		state.Checkpoints = normalizeCheckpoints(req.Checkpoints, state.TotalSlides)
	} else {
		state.Checkpoints = nil
	}
	result := snapshot(state)
	s.mu.Unlock()

	s.logger.Info("Pacing mode changed",
		"session_id", sessionID,
		"mode", req.Mode,
		"checkpoints", result.Checkpoints)

	// Takes effect immediately for every joined client.
	s.broadcaster.Broadcast(sessionID, realtime.MessageTypeModeChange, realtime.ModeChangedPayload{
		Mode:   result.Mode,
		DeckID: result.DeckID,
	})
	if req.Mode == models.PacingBounded {
		s.broadcaster.Broadcast(sessionID, realtime.MessageTypeCheckpointsUpdate, realtime.CheckpointsUpdatedPayload{
			Checkpoints: result.Checkpoints,
		})
	}

	return result, nil
}

func (s *pacingService) SetCheckpoints(ctx context.Context, sessionID uint, teacherID string, checkpoints []int) (*models.PresentationState, error) {
	if err := s.ensureOwner(ctx, sessionID, teacherID); err != nil {
		return nil, err
	}

	s.mu.Lock()
	state, ok := s.states[sessionID]
	if !ok {
		s.mu.Unlock()
		return nil, ErrPresentationNotFound
	}
	state.Checkpoints = normalizeCheckpoints(checkpoints, state.TotalSlides)
	result := snapshot(state)
	s.mu.Unlock()

	s.broadcaster.Broadcast(sessionID, realtime.MessageTypeCheckpointsUpdate, realtime.CheckpointsUpdatedPayload{
		Checkpoints: result.Checkpoints,
	})

	return result, nil
}

func (s *pacingService) TeacherNavigate(sessionID uint, target int) (*models.PresentationState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.states[sessionID]
	if !ok {
		return nil, ErrPresentationNotFound
	}
	if target < 0 || target >= state.TotalSlides {
		return nil, ErrSlideOutOfRange
	}

	state.CurrentSlideIndex = target
	return snapshot(state), nil
}

func (s *pacingService) AuthorizeStudent(sessionID uint, target int) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state, ok := s.states[sessionID]
	if !ok {
		return ErrPresentationNotFound
	}
	if target < 0 || target >= state.TotalSlides {
		return ErrSlideOutOfRange
	}
	if state.Mode != models.PacingBounded {
		return nil
	}

	// A checkpoint stops being a barrier once the teacher's authoritative index
	// has reached it; the first unreached checkpoint bounds student progress.
	if cp := state.ActiveCheckpoint(); cp >= 0 && target > cp {
		return ErrCheckpointBlocked
	}
	return nil
}

func (s *pacingService) EndPresentation(sessionID uint) {
	s.mu.Lock()
	delete(s.states, sessionID)
	s.mu.Unlock()

	s.logger.Info("Presentation ended", "session_id", sessionID)
}

func (s *pacingService) ensureOwner(ctx context.Context, sessionID uint, teacherID string) error {
	session, err := s.repo.Session().GetByID(ctx, sessionID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return ErrSessionNotFound
		}
		return fmt.Errorf("failed to get session: %w", err)
	}
	if session.TeacherID != teacherID {
		return ErrSessionNotOwned
	}
	return nil
}

func snapshot(state *models.PresentationState) *models.PresentationState {
	copied := *state
	copied.Checkpoints = append([]int(nil), state.Checkpoints...)
	return &copied
}

// normalizeCheckpoints sorts, deduplicates and drops indices outside the deck.
func normalizeCheckpoints(checkpoints []int, totalSlides int) []int {
	seen := make(map[int]bool, len(checkpoints))
	var result []int
	for _, cp := range checkpoints {
		if cp < 0 || cp >= totalSlides || seen[cp] {
			continue
		}
		seen[cp] = true
		result = append(result, cp)
	}
	sort.Ints(result)
	return result
}
