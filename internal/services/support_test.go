package services

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/classflow/live-session-service/internal/models"
	"github.com/classflow/live-session-service/internal/realtime"
	"github.com/classflow/live-session-service/internal/repositories"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

// ===== IN-MEMORY REPOSITORY =====

// fakeState is the shared storage behind the in-memory repository fakes.
type fakeState struct {
	mu sync.Mutex

	sessions    map[uint]*models.Session
	archived    map[uint]bool
	decks       map[uint]*models.Deck
	responses   []*models.QuestionResponse
	completions map[string]*models.ActivityCompletion
	nextID      uint
}

func completionKey(studentAccountID string, activityID uint, instanceID string) string {
	return fmt.Sprintf("%s|%d|%s", studentAccountID, activityID, instanceID)
}

type fakeRepo struct {
	state      *fakeState
	session    *fakeSessionRepo
	deck       *fakeDeckRepo
	response   *fakeResponseRepo
	completion *fakeCompletionRepo
}

func newFakeRepo() *fakeRepo {
	state := &fakeState{
		sessions:    make(map[uint]*models.Session),
		archived:    make(map[uint]bool),
		decks:       make(map[uint]*models.Deck),
		completions: make(map[string]*models.ActivityCompletion),
		nextID:      1,
	}
	return &fakeRepo{
		state:      state,
		session:    &fakeSessionRepo{state: state},
		deck:       &fakeDeckRepo{state: state},
		response:   &fakeResponseRepo{state: state},
		completion: &fakeCompletionRepo{state: state},
	}
}

func (r *fakeRepo) Session() repositories.SessionRepository       { return r.session }
func (r *fakeRepo) Deck() repositories.DeckRepository             { return r.deck }
func (r *fakeRepo) Response() repositories.ResponseRepository     { return r.response }
func (r *fakeRepo) Completion() repositories.CompletionRepository { return r.completion }

func (r *fakeRepo) Transaction(_ context.Context, fn func(repositories.Repository) error) error {
	return fn(r)
}

// addSession seeds a session and returns its ID.
func (r *fakeRepo) addSession(teacherID string, deckID *uint, status models.SessionStatus) uint {
	r.state.mu.Lock()
	defer r.state.mu.Unlock()

	id := r.state.nextID
	r.state.nextID++
	r.state.sessions[id] = &models.Session{
		ID:        id,
		TeacherID: teacherID,
		DeckID:    deckID,
		Status:    status,
	}
	return id
}

// addDeck seeds a deck with slideCount slides; slide indexes listed in questioned
// get a single-choice question whose correct option is option 1.
func (r *fakeRepo) addDeck(slideCount int, questioned ...int) uint {
	r.state.mu.Lock()
	defer r.state.mu.Unlock()

	deckID := r.state.nextID
	r.state.nextID++

	deck := &models.Deck{ID: deckID, Title: "Fractions"}
	hasQuestion := make(map[int]bool, len(questioned))
	for _, idx := range questioned {
		hasQuestion[idx] = true
	}

	questionNumber := 0
	for i := 0; i < slideCount; i++ {
		slideID := r.state.nextID
		r.state.nextID++

		slide := models.Slide{
			ID:       slideID,
			DeckID:   deckID,
			Position: float64(i) * 10,
		}
		if hasQuestion[i] {
			questionNumber++
			questionID := r.state.nextID
			r.state.nextID++
			slide.Question = &models.Question{
				ID:            questionID,
				SlideID:       slideID,
				Text:          fmt.Sprintf("Question %d", questionNumber),
				Options:       datatypes.JSON([]byte(`["A","B","C","D"]`)),
				CorrectOption: 1,
			}
		}
		deck.Slides = append(deck.Slides, slide)
	}
	r.state.decks[deckID] = deck
	return deckID
}

func (r *fakeRepo) slideID(deckID uint, index int) uint {
	r.state.mu.Lock()
	defer r.state.mu.Unlock()
	return r.state.decks[deckID].Slides[index].ID
}

func (r *fakeRepo) isArchived(sessionID uint) bool {
	r.state.mu.Lock()
	defer r.state.mu.Unlock()
	return r.state.archived[sessionID]
}

type fakeSessionRepo struct {
	state *fakeState
}

func (f *fakeSessionRepo) Create(_ context.Context, session *models.Session) error {
	f.state.mu.Lock()
	defer f.state.mu.Unlock()

	session.ID = f.state.nextID
	f.state.nextID++
	session.CreatedAt = time.Now()
	copied := *session
	f.state.sessions[session.ID] = &copied
	return nil
}

func (f *fakeSessionRepo) GetByID(_ context.Context, id uint) (*models.Session, error) {
	f.state.mu.Lock()
	defer f.state.mu.Unlock()

	session, ok := f.state.sessions[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	copied := *session
	return &copied, nil
}

func (f *fakeSessionRepo) Update(_ context.Context, session *models.Session) error {
	f.state.mu.Lock()
	defer f.state.mu.Unlock()

	if _, ok := f.state.sessions[session.ID]; !ok {
		return repositories.ErrNotFound
	}
	copied := *session
	f.state.sessions[session.ID] = &copied
	return nil
}

func (f *fakeSessionRepo) UpdateStatus(_ context.Context, id uint, status models.SessionStatus, graceEndsAt *time.Time) error {
	f.state.mu.Lock()
	defer f.state.mu.Unlock()

	session, ok := f.state.sessions[id]
	if !ok {
		return repositories.ErrNotFound
	}
	session.Status = status
	session.GracePeriodEndsAt = graceEndsAt
	return nil
}

func (f *fakeSessionRepo) Archive(_ context.Context, id uint) error {
	f.state.mu.Lock()
	defer f.state.mu.Unlock()

	if _, ok := f.state.sessions[id]; !ok {
		return repositories.ErrNotFound
	}
	f.state.archived[id] = true
	return nil
}

type fakeDeckRepo struct {
	state *fakeState
}

func (f *fakeDeckRepo) GetByID(_ context.Context, id uint) (*models.Deck, error) {
	f.state.mu.Lock()
	defer f.state.mu.Unlock()

	deck, ok := f.state.decks[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	return deck, nil
}

func (f *fakeDeckRepo) GetByIDWithSlides(ctx context.Context, id uint) (*models.Deck, error) {
	return f.GetByID(ctx, id)
}

func (f *fakeDeckRepo) GetSlide(_ context.Context, slideID uint) (*models.Slide, error) {
	f.state.mu.Lock()
	defer f.state.mu.Unlock()

	for _, deck := range f.state.decks {
		for i := range deck.Slides {
			if deck.Slides[i].ID == slideID {
				return &deck.Slides[i], nil
			}
		}
	}
	return nil, repositories.ErrNotFound
}

func (f *fakeDeckRepo) GetSlideByIndex(_ context.Context, deckID uint, index int) (*models.Slide, error) {
	f.state.mu.Lock()
	defer f.state.mu.Unlock()

	deck, ok := f.state.decks[deckID]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	slides := append([]models.Slide(nil), deck.Slides...)
	sort.Slice(slides, func(i, j int) bool { return slides[i].Position < slides[j].Position })
	if index < 0 || index >= len(slides) {
		return nil, repositories.ErrNotFound
	}
	return &slides[index], nil
}

func (f *fakeDeckRepo) SlideIndex(_ context.Context, deckID uint, position float64) (int, error) {
	f.state.mu.Lock()
	defer f.state.mu.Unlock()

	deck, ok := f.state.decks[deckID]
	if !ok {
		return 0, repositories.ErrNotFound
	}
	count := 0
	for i := range deck.Slides {
		if deck.Slides[i].Position < position {
			count++
		}
	}
	return count, nil
}

func (f *fakeDeckRepo) CountSlides(_ context.Context, deckID uint) (int, error) {
	f.state.mu.Lock()
	defer f.state.mu.Unlock()

	deck, ok := f.state.decks[deckID]
	if !ok {
		return 0, repositories.ErrNotFound
	}
	return len(deck.Slides), nil
}

func (f *fakeDeckRepo) CountQuestions(_ context.Context, deckID uint) (int, error) {
	f.state.mu.Lock()
	defer f.state.mu.Unlock()

	deck, ok := f.state.decks[deckID]
	if !ok {
		return 0, repositories.ErrNotFound
	}
	count := 0
	for i := range deck.Slides {
		if deck.Slides[i].Question != nil {
			count++
		}
	}
	return count, nil
}

type fakeResponseRepo struct {
	state *fakeState

	// beforeCreate runs once ahead of the next insert, letting a test interleave
	// a competing write between the service's existence check and its Create.
	beforeCreate func()
}

func (f *fakeResponseRepo) Create(ctx context.Context, response *models.QuestionResponse) error {
	if f.beforeCreate != nil {
		hook := f.beforeCreate
		f.beforeCreate = nil
		hook()
	}

	f.state.mu.Lock()
	defer f.state.mu.Unlock()

	// Mirrors the partial unique index over (student, slide, session) WHERE actionable.
	if response.Actionable {
		for _, r := range f.state.responses {
			if r.StudentID == response.StudentID && r.SlideID == response.SlideID &&
				r.SessionID == response.SessionID && r.Actionable {
				return gorm.ErrDuplicatedKey
			}
		}
	}

	response.ID = f.state.nextID
	f.state.nextID++
	response.CreatedAt = time.Now()
	copied := *response
	f.state.responses = append(f.state.responses, &copied)
	return nil
}

func (f *fakeResponseRepo) HasActionable(_ context.Context, studentID string, slideID, sessionID uint) (bool, error) {
	f.state.mu.Lock()
	defer f.state.mu.Unlock()

	for _, r := range f.state.responses {
		if r.StudentID == studentID && r.SlideID == slideID && r.SessionID == sessionID && r.Actionable {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeResponseRepo) CountBySlide(_ context.Context, studentID string, slideID, sessionID uint) (int, error) {
	f.state.mu.Lock()
	defer f.state.mu.Unlock()

	count := 0
	for _, r := range f.state.responses {
		if r.StudentID == studentID && r.SlideID == slideID && r.SessionID == sessionID {
			count++
		}
	}
	return count, nil
}

func (f *fakeResponseRepo) ListByStudent(_ context.Context, studentID string, activityID, sessionID uint) ([]*models.QuestionResponse, error) {
	f.state.mu.Lock()
	defer f.state.mu.Unlock()

	var result []*models.QuestionResponse
	for _, r := range f.state.responses {
		if r.StudentID == studentID && r.ActivityID == activityID && r.SessionID == sessionID {
			result = append(result, r)
		}
	}
	return result, nil
}

func (f *fakeResponseRepo) AggregateActionable(_ context.Context, studentID string, activityID, sessionID uint) (*repositories.ResponseAggregate, error) {
	f.state.mu.Lock()
	defer f.state.mu.Unlock()

	attempted := make(map[int]bool)
	correct := make(map[int]bool)
	timeSpent := 0
	for _, r := range f.state.responses {
		if r.StudentID != studentID || r.ActivityID != activityID || r.SessionID != sessionID || !r.Actionable {
			continue
		}
		timeSpent += r.TimeSpentSeconds
		if r.QuestionNumber == 0 {
			// Ungraded slide response: time counts, nothing was attempted.
			continue
		}
		attempted[r.QuestionNumber] = true
		if r.IsCorrect {
			correct[r.QuestionNumber] = true
		}
	}
	return &repositories.ResponseAggregate{
		QuestionsAttempted: len(attempted),
		QuestionsCorrect:   len(correct),
		TimeSpentSeconds:   timeSpent,
	}, nil
}

type fakeCompletionRepo struct {
	state *fakeState
}

func (f *fakeCompletionRepo) Create(_ context.Context, completion *models.ActivityCompletion) error {
	f.state.mu.Lock()
	defer f.state.mu.Unlock()

	key := completionKey(completion.StudentAccountID, completion.ActivityID, completion.InstanceID)
	if _, exists := f.state.completions[key]; exists {
		// Matches the on-conflict-do-nothing insert of the real repository.
		return nil
	}
	completion.ID = f.state.nextID
	f.state.nextID++
	copied := *completion
	f.state.completions[key] = &copied
	return nil
}

func (f *fakeCompletionRepo) GetByKey(_ context.Context, studentAccountID string, activityID uint, instanceID string) (*models.ActivityCompletion, error) {
	f.state.mu.Lock()
	defer f.state.mu.Unlock()

	completion, ok := f.state.completions[completionKey(studentAccountID, activityID, instanceID)]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	copied := *completion
	return &copied, nil
}

func (f *fakeCompletionRepo) GetByKeyForUpdate(ctx context.Context, studentAccountID string, activityID uint, instanceID string) (*models.ActivityCompletion, error) {
	return f.GetByKey(ctx, studentAccountID, activityID, instanceID)
}

func (f *fakeCompletionRepo) Update(_ context.Context, completion *models.ActivityCompletion) error {
	f.state.mu.Lock()
	defer f.state.mu.Unlock()

	key := completionKey(completion.StudentAccountID, completion.ActivityID, completion.InstanceID)
	if _, ok := f.state.completions[key]; !ok {
		return repositories.ErrNotFound
	}
	copied := *completion
	f.state.completions[key] = &copied
	return nil
}

func (f *fakeCompletionRepo) ListByStudent(_ context.Context, studentAccountID string, instanceID *string) ([]*models.ActivityCompletion, error) {
	f.state.mu.Lock()
	defer f.state.mu.Unlock()

	var result []*models.ActivityCompletion
	for _, c := range f.state.completions {
		if c.StudentAccountID != studentAccountID {
			continue
		}
		if instanceID != nil && c.InstanceID != *instanceID {
			continue
		}
		copied := *c
		result = append(result, &copied)
	}
	return result, nil
}

func (f *fakeCompletionRepo) ListByActivity(_ context.Context, activityID uint) ([]*models.ActivityCompletion, error) {
	f.state.mu.Lock()
	defer f.state.mu.Unlock()

	var result []*models.ActivityCompletion
	for _, c := range f.state.completions {
		if c.ActivityID == activityID {
			copied := *c
			result = append(result, &copied)
		}
	}
	return result, nil
}

// ===== BROADCAST RECORDER =====

type broadcastRecord struct {
	SessionID uint
	Role      models.UserRole // empty means whole room
	User      string          // set for targeted sends
	Type      realtime.MessageType
	Payload   any
}

type fakeBroadcaster struct {
	mu      sync.Mutex
	records []broadcastRecord
}

func (b *fakeBroadcaster) Broadcast(sessionID uint, msgType realtime.MessageType, payload any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.records = append(b.records, broadcastRecord{SessionID: sessionID, Type: msgType, Payload: payload})
}

func (b *fakeBroadcaster) BroadcastToRole(sessionID uint, role models.UserRole, msgType realtime.MessageType, payload any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.records = append(b.records, broadcastRecord{SessionID: sessionID, Role: role, Type: msgType, Payload: payload})
}

func (b *fakeBroadcaster) BroadcastToUser(sessionID uint, userID string, msgType realtime.MessageType, payload any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.records = append(b.records, broadcastRecord{SessionID: sessionID, User: userID, Type: msgType, Payload: payload})
}

func (b *fakeBroadcaster) byType(msgType realtime.MessageType) []broadcastRecord {
	b.mu.Lock()
	defer b.mu.Unlock()

	var result []broadcastRecord
	for _, r := range b.records {
		if r.Type == msgType {
			result = append(result, r)
		}
	}
	return result
}

func (b *fakeBroadcaster) clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.records = nil
}

// ===== PRESENCE FAKE =====

type fakePresence struct {
	mu      sync.Mutex
	entries map[uint]map[string]*models.StudentPresence
}

func newFakePresence() *fakePresence {
	return &fakePresence{entries: make(map[uint]map[string]*models.StudentPresence)}
}

func (p *fakePresence) Join(_ context.Context, presence *models.StudentPresence) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.entries[presence.SessionID] == nil {
		p.entries[presence.SessionID] = make(map[string]*models.StudentPresence)
	}
	copied := *presence
	p.entries[presence.SessionID][presence.StudentID] = &copied
	return nil
}

func (p *fakePresence) Leave(_ context.Context, sessionID uint, userID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.entries[sessionID], userID)
	return nil
}

func (p *fakePresence) UpdateSlide(_ context.Context, sessionID uint, userID string, slideIndex int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	entry, ok := p.entries[sessionID][userID]
	if !ok {
		return fmt.Errorf("presence not found")
	}
	entry.CurrentSlideIndex = slideIndex
	return nil
}

func (p *fakePresence) Get(_ context.Context, sessionID uint, userID string) (*models.StudentPresence, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	entry, ok := p.entries[sessionID][userID]
	if !ok {
		return nil, fmt.Errorf("presence not found")
	}
	copied := *entry
	return &copied, nil
}

func (p *fakePresence) List(_ context.Context, sessionID uint) ([]*models.StudentPresence, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var result []*models.StudentPresence
	for _, entry := range p.entries[sessionID] {
		copied := *entry
		result = append(result, &copied)
	}
	return result, nil
}

func (p *fakePresence) Clear(_ context.Context, sessionID uint) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.entries, sessionID)
	return nil
}
