package app

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"math/big"
	"net/mail"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"clarus_vitae/internal/domain"
)

const (
	CodeLength        = 6
	CodeTTL           = 10 * time.Minute
	MaxCodeAttempts   = 5
	RateLimitWindow   = 15 * time.Minute
	RateLimitRequests = 5
)

type pendingCode struct {
	Code      string    `json:"code"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// VerificationService issues and checks email codes for privacy requests
// (data export, deletion). State lives in the injected TTLStore; with the
// memory store it is local to one process.
type VerificationService struct {
	store  domain.TTLStore
	mailer domain.Mailer
	now    func() time.Time
	events func(string)
	codeFn func() (string, error)
}

func NewVerificationService(store domain.TTLStore, mailer domain.Mailer) *VerificationService {
	return &VerificationService{
		store:  store,
		mailer: mailer,
		now:    time.Now,
		events: func(string) {},
		codeFn: GenerateCode,
	}
}

// WithEvents installs a hook receiving issued|verified|rejected|rate_limited.
func (s *VerificationService) WithEvents(fn func(string)) *VerificationService {
	if fn != nil {
		s.events = fn
	}
	return s
}

func (s *VerificationService) WithClock(now func() time.Time) *VerificationService {
	s.now = now
	return s
}

func (s *VerificationService) WithCodeSource(fn func() (string, error)) *VerificationService {
	s.codeFn = fn
	return s
}

// NormalizeEmail trims and lower-cases an address, rejecting anything
// that does not parse as a bare address.
func NormalizeEmail(raw string) (string, error) {
	e := strings.ToLower(strings.TrimSpace(raw))
	addr, err := mail.ParseAddress(e)
	if err != nil || addr.Address != e {
		return "", domain.ErrInvalidEmail
	}
	return e, nil
}

// GenerateCode returns a zero-padded random decimal code of CodeLength digits.
func GenerateCode() (string, error) {
	limit := big.NewInt(1_000_000)
	n, err := rand.Int(rand.Reader, limit)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", CodeLength, n.Int64()), nil
}

// RequestCode rate-limits by client IP, stores a fresh code for the email
// (replacing any earlier one) and hands it to the mailer.
func (s *VerificationService) RequestCode(ctx context.Context, email, ip string) (time.Time, error) {
	email, err := NormalizeEmail(email)
	if err != nil {
		return time.Time{}, err
	}
	ok, err := s.allow(ctx, ip)
	if err != nil {
		return time.Time{}, err
	}
	if !ok {
		s.events("rate_limited")
		return time.Time{}, domain.ErrRateLimited
	}

	code, err := s.codeFn()
	if err != nil {
		return time.Time{}, fmt.Errorf("generate code: %w", err)
	}
	pc := pendingCode{Code: code, ExpiresAt: s.now().Add(CodeTTL)}
	// a fresh code starts with a fresh attempt budget
	if err := s.store.Delete(ctx, attemptsKey(email)); err != nil {
		return time.Time{}, fmt.Errorf("reset attempts: %w", err)
	}
	if err := s.store.Set(ctx, codeKey(email), pc, CodeTTL); err != nil {
		return time.Time{}, fmt.Errorf("store code: %w", err)
	}
	if err := s.mailer.SendVerificationCode(ctx, email, code, pc.ExpiresAt); err != nil {
		_ = s.store.Delete(ctx, codeKey(email))
		return time.Time{}, fmt.Errorf("send code: %w", err)
	}
	s.events("issued")
	return pc.ExpiresAt, nil
}

// VerifyCode consumes the code on success. Every guess, right or wrong,
// takes one of MaxCodeAttempts from a counter shared by all callers; the
// guess that spends the last attempt on a wrong code discards it.
func (s *VerificationService) VerifyCode(ctx context.Context, email, code string) error {
	email, err := NormalizeEmail(email)
	if err != nil {
		return err
	}
	key := codeKey(email)

	var pc pendingCode
	found, err := s.store.Get(ctx, key, &pc)
	if err != nil {
		return fmt.Errorf("load code: %w", err)
	}
	if !found {
		s.events("rejected")
		return domain.ErrCodeInvalid
	}
	now := s.now()
	if !now.Before(pc.ExpiresAt) {
		s.discard(ctx, email)
		s.events("rejected")
		return domain.ErrCodeExpired
	}

	n, err := s.store.Incr(ctx, attemptsKey(email), pc.ExpiresAt.Sub(now))
	if err != nil {
		return fmt.Errorf("count attempt: %w", err)
	}
	if n > MaxCodeAttempts {
		s.discard(ctx, email)
		s.events("rejected")
		return domain.ErrTooManyAttempts
	}

	if subtle.ConstantTimeCompare([]byte(pc.Code), []byte(strings.TrimSpace(code))) == 1 {
		s.discard(ctx, email)
		s.events("verified")
		return nil
	}

	s.events("rejected")
	if n == MaxCodeAttempts {
		s.discard(ctx, email)
		return domain.ErrTooManyAttempts
	}
	return domain.ErrCodeInvalid
}

// discard drops the code. The attempt counter stays until it expires with the
// code or a new code is issued, so guesses already in flight still count.
func (s *VerificationService) discard(ctx context.Context, email string) {
	if err := s.store.Delete(ctx, codeKey(email)); err != nil {
		log.Warn().Err(err).Msg("verification code delete failed")
	}
}

// allow applies a fixed window of RateLimitRequests per RateLimitWindow per IP.
// The window opens with the first request.
func (s *VerificationService) allow(ctx context.Context, ip string) (bool, error) {
	n, err := s.store.Incr(ctx, "ratelimit:verify:"+ip, RateLimitWindow)
	if err != nil {
		return false, fmt.Errorf("count request: %w", err)
	}
	return n <= RateLimitRequests, nil
}

// RunSweeper drops expired codes and windows every interval until ctx ends.
func (s *VerificationService) RunSweeper(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := s.store.SweepExpired(ctx)
			if err != nil {
				log.Warn().Err(err).Msg("verification sweep failed")
				continue
			}
			if n > 0 {
				log.Debug().Int("removed", n).Msg("verification sweep")
			}
		}
	}
}

func codeKey(email string) string     { return "verify:code:" + email }
func attemptsKey(email string) string { return "verify:attempts:" + email }
