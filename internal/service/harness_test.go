package service

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/iliyamo/identity-authority/internal/clock"
	"github.com/iliyamo/identity-authority/internal/config"
	"github.com/iliyamo/identity-authority/internal/logging"
	"github.com/iliyamo/identity-authority/internal/mail"
	"github.com/iliyamo/identity-authority/internal/model"
	"github.com/iliyamo/identity-authority/internal/repository"
)

const strongPW = "Str0ng!Pass"

var linkTokenRe = regexp.MustCompile(`/v1/auth/(?:reset-password|verify-email)/([0-9a-f]+)`)

// outbox records every message handed to it. settle, when set, is called
// before reading so mails sent in the background are counted.
type outbox struct {
	mu     sync.Mutex
	msgs   []mail.Message
	fail   bool
	settle func()
}

func (o *outbox) Send(_ context.Context, msg mail.Message) (mail.DeliveryResult, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.fail {
		return mail.DeliveryResult{}, context.DeadlineExceeded
	}
	o.msgs = append(o.msgs, msg)
	return mail.DeliveryResult{ID: "test", Transport: "memory"}, nil
}

func (o *outbox) count() int {
	if o.settle != nil {
		o.settle()
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.msgs)
}

// lastToken extracts the token from the newest message's link.
func (o *outbox) lastToken(t *testing.T) string {
	t.Helper()
	if o.settle != nil {
		o.settle()
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	require.NotEmpty(t, o.msgs)
	m := linkTokenRe.FindStringSubmatch(o.msgs[len(o.msgs)-1].Text)
	require.Len(t, m, 2)
	return m[1]
}

var errStoreDown = errors.New("store: connection reset")

// flakyStore wraps the memory store and fails selected writes on demand.
type flakyStore struct {
	*repository.MemoryStore
	failUpdate    atomic.Bool
	failRevokeAll atomic.Bool
}

func (f *flakyStore) UpdateAccount(ctx context.Context, id string, fn func(*model.Account) error) (*model.Account, error) {
	if f.failUpdate.Load() {
		return nil, errStoreDown
	}
	return f.MemoryStore.UpdateAccount(ctx, id, fn)
}

func (f *flakyStore) RevokeAllSessions(ctx context.Context, accountID, exceptHash string, now time.Time) (int64, error) {
	if f.failRevokeAll.Load() {
		return 0, errStoreDown
	}
	return f.MemoryStore.RevokeAllSessions(ctx, accountID, exceptHash, now)
}

type harness struct {
	clock    *clock.Mock
	store    *repository.MemoryStore
	flaky    *flakyStore
	mail     *outbox
	tokens   *TokenIssuer
	sessions *SessionRegistry
	auth     *Authenticator
	tfa      *TwoFactor
	sec      config.SecurityConfig
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		clock: clock.NewMock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)),
		store: repository.NewMemoryStore(),
		mail:  &outbox{},
		sec:   config.DefaultSecurityConfig(),
	}
	h.flaky = &flakyStore{MemoryStore: h.store}
	log := logging.Discard()
	h.tokens = NewTokenIssuer(TokenConfig{
		AccessSecret:   []byte("access-secret"),
		RefreshSecret:  []byte("refresh-secret"),
		AccessTTL:      15 * time.Minute,
		RefreshTTL:     7 * 24 * time.Hour,
		MFATTL:         5 * time.Minute,
		MFAMaxAttempts: h.sec.MFAMaxAttempts,
	}, h.flaky, h.flaky, repository.NewMemoryChallengeStore(h.clock), h.clock, log)
	h.sessions = NewSessionRegistry(h.flaky, h.clock)
	codec := NewSecretCodec(h.flaky, h.clock, h.sec.ResetTokenTTL, h.sec.VerifyTokenTTL)
	notifier := NewNotifier(h.mail, "http://localhost:8080", "no-reply@example.com", log)

	var err error
	h.auth, err = NewAuthenticator(h.flaky, h.tokens, h.sessions, codec, notifier, h.clock, log, h.sec, bcrypt.MinCost)
	require.NoError(t, err)
	h.mail.settle = h.auth.Wait
	h.tfa = NewTwoFactor(h.flaky, h.tokens, h.clock, log, h.sec)
	return h
}

func (h *harness) register(t *testing.T, email string) string {
	t.Helper()
	a, err := h.auth.Register(context.Background(), RegisterInput{Email: email, Password: strongPW})
	require.NoError(t, err)
	return a.ID
}

func (h *harness) login(t *testing.T, email, password string) LoginResult {
	t.Helper()
	res, err := h.auth.Login(context.Background(), email, password, ClientMeta{UserAgent: "test", IP: "127.0.0.1"})
	require.NoError(t, err)
	return res
}

func (h *harness) totpCode(t *testing.T, secret string) string {
	t.Helper()
	code, err := totp.GenerateCodeCustom(secret, h.clock.Now(), totp.ValidateOpts{
		Period:    30,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	require.NoError(t, err)
	return code
}

// enable2FA runs setup and enable and returns the plaintext backup codes.
func (h *harness) enable2FA(t *testing.T, accountID string) (string, []string) {
	t.Helper()
	res, err := h.tfa.Setup(context.Background(), accountID)
	require.NoError(t, err)
	require.NoError(t, h.tfa.Enable(context.Background(), accountID, h.totpCode(t, res.Secret)))
	return res.Secret, res.BackupCodes
}
