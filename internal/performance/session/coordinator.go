// Package session manages per-VU authentication tokens.
//
// In isolated mode every VU owns its account session and may log out. Each
// VU logs in with its own account, taken from a users list or from a
// username containing the {{vu}} placeholder. In shared mode many VUs log
// in to the same account; a logout there would revoke every refresh token
// of that account, including the ones held by other VUs, so it is rejected
// before any request is sent.
package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/wesleyorama2/groomload/internal/performance/failure"
)

// Mode selects how VUs share accounts.
type Mode string

const (
	ModeIsolated Mode = "isolated"
	ModeShared   Mode = "shared"
)

// ParseMode parses a mode flag. The empty string means isolated.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeIsolated:
		return ModeIsolated, nil
	case ModeShared, "shared-account":
		return ModeShared, nil
	}
	return "", fmt.Errorf("unknown auth mode %q (want isolated or shared)", s)
}

// TokenPair is an access/refresh token pair. A refresh replaces the pair.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// VUPlaceholder in a username is replaced by the VU id.
const VUPlaceholder = "{{vu}}"

// Credentials identify an account.
type Credentials struct {
	Username string
	Password string
}

// PerVU reports whether the username names one account per VU.
func (c Credentials) PerVU() bool {
	return strings.Contains(c.Username, VUPlaceholder)
}

// ForVU returns the credentials of VU id.
func (c Credentials) ForVU(id int) Credentials {
	c.Username = strings.ReplaceAll(c.Username, VUPlaceholder, strconv.Itoa(id))
	return c
}

// Authenticator is the external credential collaborator.
type Authenticator interface {
	Login(ctx context.Context, creds Credentials) (TokenPair, error)
	Refresh(ctx context.Context, refreshToken string) (TokenPair, error)
	Logout(ctx context.Context, tokens TokenPair) error
}

// ErrNotLoggedIn is returned by Refresh and Logout on a session without tokens.
var ErrNotLoggedIn = errors.New("session has no tokens")

// Coordinator hands out sessions and enforces the mode rules.
type Coordinator struct {
	mode   Mode
	auth   Authenticator
	creds  Credentials
	pool   *AccountPool
	logger *zap.Logger
}

// NewCoordinator creates a coordinator. creds are used for the setup-phase
// login and, unless WithAccounts gives isolated VUs their own accounts,
// for VU logins.
func NewCoordinator(mode Mode, auth Authenticator, creds Credentials, logger *zap.Logger) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if mode == "" {
		mode = ModeIsolated
	}
	return &Coordinator{
		mode:   mode,
		auth:   auth,
		creds:  creds,
		logger: logger,
	}
}

// WithAccounts makes isolated sessions lease their account from pool. A
// nil or empty pool keeps the fixed credentials.
func (c *Coordinator) WithAccounts(pool *AccountPool) *Coordinator {
	if pool.Len() > 0 {
		c.pool = pool
	}
	return c
}

// Accounts returns how many distinct accounts isolated VUs log in with.
// Zero means one per VU.
func (c *Coordinator) Accounts() int {
	switch {
	case c.pool != nil:
		return c.pool.Len()
	case c.creds.PerVU():
		return 0
	}
	return 1
}

// setupCredentials returns the account of the setup-phase login.
func (c *Coordinator) setupCredentials() Credentials {
	if c.creds.Username == "" && c.pool != nil {
		return c.pool.users[0]
	}
	return c.creds.ForVU(0)
}

// AccountPool hands the accounts of settings.auth.users to live sessions.
// A new session gets the account held by the fewest live sessions, so no
// two live VUs share an account while there are enough of them.
type AccountPool struct {
	mu    sync.Mutex
	users []Credentials
	held  []int
}

// NewAccountPool creates a pool over users.
func NewAccountPool(users []Credentials) *AccountPool {
	return &AccountPool{users: users, held: make([]int, len(users))}
}

// Len returns the number of accounts. A nil pool has none.
func (p *AccountPool) Len() int {
	if p == nil {
		return 0
	}
	return len(p.users)
}

func (p *AccountPool) acquire() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	best := 0
	for i := range p.held {
		if p.held[i] < p.held[best] {
			best = i
		}
	}
	p.held[best]++
	return best
}

func (p *AccountPool) release(i int) {
	p.mu.Lock()
	p.held[i]--
	p.mu.Unlock()
}

// Held returns the number of live sessions per account.
func (p *AccountPool) Held() []int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]int(nil), p.held...)
}

// Mode returns the coordination mode.
func (c *Coordinator) Mode() Mode {
	return c.mode
}

// ValidateScenario fails fast when a scenario that logs out is configured
// in shared mode.
func (c *Coordinator) ValidateScenario(scenario string, usesLogout bool) error {
	if c.mode == ModeShared && usesLogout {
		return &failure.ConfigurationError{
			Field:   "scenarios." + scenario,
			Message: "scenario performs logout while settings.auth.mode is shared",
			Err:     failure.ErrLogoutForbidden,
		}
	}
	return nil
}

// ValidateAccounts fails fast when up to vus isolated VUs would log out of
// fewer accounts than VUs, revoking each other's tokens.
func (c *Coordinator) ValidateAccounts(scenario string, vus int) error {
	if c.mode != ModeIsolated {
		return nil
	}
	accounts := c.Accounts()
	if accounts == 0 || vus <= accounts {
		return nil
	}
	return &failure.ConfigurationError{
		Field: "settings.auth.users",
		Message: fmt.Sprintf("scenarios.%s logs out with up to %d VUs but only %d account(s) are configured; "+
			"list one per VU in settings.auth.users or put %s in settings.auth.username", scenario, vus, accounts, VUPlaceholder),
		Err: failure.ErrTooFewAccounts,
	}
}

// SetupLogin logs in once with the setup credentials, for scenario setup
// hooks.
func (c *Coordinator) SetupLogin(ctx context.Context) (TokenPair, error) {
	creds := c.setupCredentials()
	pair, err := c.auth.Login(ctx, creds)
	if err != nil {
		return TokenPair{}, fmt.Errorf("setup login as %q: %w", creds.Username, err)
	}
	c.logger.Debug("setup login succeeded", zap.String("user", creds.Username))
	return pair, nil
}

// NewSession creates an empty session for a VU. In isolated mode it picks
// the account the VU logs in with; Close hands a leased account back.
func (c *Coordinator) NewSession(vuID int) *Session {
	s := &Session{vuID: vuID, coord: c, account: -1}
	switch {
	case c.mode == ModeShared:
		s.creds = c.creds
	case c.pool != nil:
		s.account = c.pool.acquire()
		s.creds = c.pool.users[s.account]
	default:
		s.creds = c.creds.ForVU(vuID)
	}
	return s
}

// Session is the credential state of one VU. Only the owning VU mutates it;
// pairs are swapped atomically so readers never see a torn pair.
type Session struct {
	vuID    int
	coord   *Coordinator
	creds   Credentials
	account int
	closed  atomic.Bool
	tokens  atomic.Pointer[TokenPair]
}

// Username returns the account the session logs in with.
func (s *Session) Username() string {
	return s.creds.Username
}

// Close returns a leased account to the pool. It is idempotent and keeps
// the tokens.
func (s *Session) Close() {
	if s.account >= 0 && s.closed.CompareAndSwap(false, true) {
		s.coord.pool.release(s.account)
	}
}

// Login authenticates and stores the new pair.
func (s *Session) Login(ctx context.Context) error {
	pair, err := s.coord.auth.Login(ctx, s.creds)
	if err != nil {
		return err
	}
	s.tokens.Store(&pair)
	return nil
}

// Refresh exchanges the current refresh token for a new pair.
func (s *Session) Refresh(ctx context.Context) error {
	current := s.tokens.Load()
	if current == nil {
		return ErrNotLoggedIn
	}
	pair, err := s.coord.auth.Refresh(ctx, current.RefreshToken)
	if err != nil {
		return err
	}
	s.tokens.Store(&pair)
	return nil
}

// Logout revokes the session. In shared mode it returns a
// ConfigurationError without contacting the collaborator.
func (s *Session) Logout(ctx context.Context) error {
	if s.coord.mode == ModeShared {
		return &failure.ConfigurationError{
			Field:   "settings.auth.mode",
			Message: fmt.Sprintf("vu %d attempted logout in shared mode", s.vuID),
			Err:     failure.ErrLogoutForbidden,
		}
	}
	current := s.tokens.Load()
	if current == nil {
		return ErrNotLoggedIn
	}
	if err := s.coord.auth.Logout(ctx, *current); err != nil {
		return err
	}
	s.tokens.Store(nil)
	return nil
}

// Tokens returns the current pair.
func (s *Session) Tokens() (TokenPair, bool) {
	p := s.tokens.Load()
	if p == nil {
		return TokenPair{}, false
	}
	return *p, true
}

// AccessToken returns the current access token, or "".
func (s *Session) AccessToken() string {
	p, _ := s.Tokens()
	return p.AccessToken
}

// Set stores a pair obtained elsewhere, e.g. from a setup login.
func (s *Session) Set(pair TokenPair) {
	s.tokens.Store(&pair)
}
