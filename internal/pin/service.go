package pin

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/famquest/backend/internal/models"
)

var (
	// ErrInvalidPin is returned when the submitted PIN fails format
	// validation. It is rejected before attempt state is touched.
	ErrInvalidPin = errors.New("pin has invalid format")

	// ErrAlreadyConfigured is returned by SetupPin when a credential
	// already exists; rotation must go through ChangePin.
	ErrAlreadyConfigured = errors.New("pin already configured")

	// ErrNotConfigured is returned when no credential exists yet.
	ErrNotConfigured = errors.New("pin not configured")

	// ErrSamePin is returned by ChangePin when the new PIN equals the
	// old one.
	ErrSamePin = errors.New("new pin must differ from the old pin")
)

// IncorrectPinError reports a hash mismatch before the lockout threshold.
type IncorrectPinError struct {
	RemainingAttempts int
}

func (e *IncorrectPinError) Error() string {
	return fmt.Sprintf("incorrect pin, %d attempts remaining", e.RemainingAttempts)
}

// LockedError reports an active lockout window. The lock is time-based:
// even a correct PIN fails until Until has elapsed.
type LockedError struct {
	Until time.Time
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("pin locked until %s", e.Until.Format(time.RFC3339))
}

// Policy configures the gateway: PIN length, strikes before lockout, and
// the lockout window.
type Policy struct {
	PinLength   int
	MaxAttempts int
	Cooldown    time.Duration
}

// CredentialStore is the minimal credential persistence interface the
// gateway needs. Get returns nil when no credential exists.
type CredentialStore interface {
	Get(ctx context.Context, parentID uuid.UUID) (*models.PinCredential, error)
	Create(ctx context.Context, parentID uuid.UUID, pinHash string) error
	Rotate(ctx context.Context, parentID uuid.UUID, pinHash string) error
}

// Service is the Authorization Gateway. A nil error from VerifyPin means
// authorization was granted; callers then begin a grace session.
type Service interface {
	SetupPin(ctx context.Context, parentID uuid.UUID, pin string) error
	ChangePin(ctx context.Context, parentID uuid.UUID, oldPin, newPin string) error
	VerifyPin(ctx context.Context, parentID uuid.UUID, pin string) error
}

// attemptState is transient per-process lockout state for one parent.
type attemptState struct {
	consecutiveFailures int
	lockedUntil         time.Time
}

type service struct {
	store  CredentialStore
	policy Policy
	now    func() time.Time

	mu       sync.Mutex
	attempts map[uuid.UUID]*attemptState
}

// NewService creates the gateway. now is the clock; pass time.Now outside
// tests.
func NewService(store CredentialStore, policy Policy, now func() time.Time) Service {
	if now == nil {
		now = time.Now
	}
	return &service{
		store:    store,
		policy:   policy,
		now:      now,
		attempts: make(map[uuid.UUID]*attemptState),
	}
}

var _ Service = (*service)(nil)

// normalize strips non-digits from the submitted PIN.
func normalize(pin string) string {
	var b strings.Builder
	for _, r := range pin {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func (s *service) validateFormat(pin string) (string, error) {
	p := normalize(pin)
	if len(p) != s.policy.PinLength {
		return "", ErrInvalidPin
	}
	return p, nil
}

func (s *service) SetupPin(ctx context.Context, parentID uuid.UUID, pin string) error {
	p, err := s.validateFormat(pin)
	if err != nil {
		return err
	}
	existing, err := s.store.Get(ctx, parentID)
	if err != nil {
		return err
	}
	if existing != nil {
		return ErrAlreadyConfigured
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(p), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	return s.store.Create(ctx, parentID, string(hash))
}

func (s *service) ChangePin(ctx context.Context, parentID uuid.UUID, oldPin, newPin string) error {
	if err := s.VerifyPin(ctx, parentID, oldPin); err != nil {
		return err
	}
	p, err := s.validateFormat(newPin)
	if err != nil {
		return err
	}
	if p == normalize(oldPin) {
		return ErrSamePin
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(p), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	return s.store.Rotate(ctx, parentID, string(hash))
}

// VerifyPin returns nil when the PIN matches and the parent is not locked
// out. Lockout state is checked before the hash comparison, so a correct
// PIN submitted during the lock window still fails with LockedError.
func (s *service) VerifyPin(ctx context.Context, parentID uuid.UUID, pin string) error {
	p, err := s.validateFormat(pin)
	if err != nil {
		return err
	}

	if lockedErr := s.checkLocked(parentID); lockedErr != nil {
		return lockedErr
	}

	cred, err := s.store.Get(ctx, parentID)
	if err != nil {
		return err
	}
	if cred == nil {
		return ErrNotConfigured
	}

	// bcrypt's comparison is constant time over the hash.
	if bcrypt.CompareHashAndPassword([]byte(cred.PinHash), []byte(p)) != nil {
		return s.recordFailure(parentID)
	}

	s.reset(parentID)
	return nil
}

// checkLocked returns a LockedError while the lock window is active. An
// elapsed window clears the lock and resets the failure counter, so the
// next attempt starts with a full strike budget.
func (s *service) checkLocked(parentID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.attempts[parentID]
	if !ok {
		return nil
	}
	if !st.lockedUntil.IsZero() {
		if s.now().Before(st.lockedUntil) {
			return &LockedError{Until: st.lockedUntil}
		}
		st.lockedUntil = time.Time{}
		st.consecutiveFailures = 0
	}
	return nil
}

func (s *service) recordFailure(parentID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.attempts[parentID]
	if !ok {
		st = &attemptState{}
		s.attempts[parentID] = st
	}
	st.consecutiveFailures++
	if st.consecutiveFailures >= s.policy.MaxAttempts {
		st.lockedUntil = s.now().Add(s.policy.Cooldown)
		return &LockedError{Until: st.lockedUntil}
	}
	return &IncorrectPinError{RemainingAttempts: s.policy.MaxAttempts - st.consecutiveFailures}
}

func (s *service) reset(parentID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.attempts, parentID)
}
