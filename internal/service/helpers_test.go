package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"solarmarket/verify-api/db"
	"solarmarket/verify-api/internal/metrics"
	"solarmarket/verify-api/internal/model"
	"solarmarket/verify-api/pkg/security"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const tokenTTL = 24 * time.Hour

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)

	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	// Writers queue up on the single connection instead of failing with
	// "database is locked"
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, db.Migrate(gdb))
	return gdb
}

// countQueries counts every statement gorm sends to the store from now on.
func countQueries(t *testing.T, gdb *gorm.DB) *atomic.Int64 {
	t.Helper()

	var n atomic.Int64
	inc := func(*gorm.DB) { n.Add(1) }
	cb := gdb.Callback()

	require.NoError(t, cb.Query().Before("gorm:query").Register("test:count_query", inc))
	require.NoError(t, cb.Create().Before("gorm:create").Register("test:count_create", inc))
	require.NoError(t, cb.Update().Before("gorm:update").Register("test:count_update", inc))
	require.NoError(t, cb.Delete().Before("gorm:delete").Register("test:count_delete", inc))
	require.NoError(t, cb.Row().Before("gorm:row").Register("test:count_row", inc))
	require.NoError(t, cb.Raw().Before("gorm:raw").Register("test:count_raw", inc))

	return &n
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type sentMail struct {
	Kind model.TokenKind
	To   string
	Link string
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []sentMail
	err  error
}

func (m *fakeMailer) SendQuestionnaireVerification(_ context.Context, to, _, link string) error {
	return m.record(model.TokenKindQuestionnaire, to, link)
}

func (m *fakeMailer) SendRegistrationVerification(_ context.Context, to, _, link string) error {
	return m.record(model.TokenKindRegistration, to, link)
}

func (m *fakeMailer) record(kind model.TokenKind, to, link string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return m.err
	}

	m.sent = append(m.sent, sentMail{Kind: kind, To: to, Link: link})
	return nil
}

func (m *fakeMailer) Sent() []sentMail {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]sentMail(nil), m.sent...)
}

type fakeDispatcher struct {
	mu   sync.Mutex
	got  []VendorNotification
	fail error
}

func (d *fakeDispatcher) Dispatch(_ context.Context, n VendorNotification) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.fail != nil {
		return d.fail
	}

	d.got = append(d.got, n)
	return nil
}

func (d *fakeDispatcher) SetFail(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fail = err
}

func (d *fakeDispatcher) Delivered() []VendorNotification {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]VendorNotification(nil), d.got...)
}

type testEnv struct {
	db    *gorm.DB
	clock *testClock
	logs  *observer.ObservedLogs

	mailer     *fakeMailer
	dispatcher *fakeDispatcher
	metrics    *metrics.Metrics
	access     *security.AccessTokens

	tokens         *TokenService
	notifications  *NotificationService
	questionnaires *QuestionnaireService
	linking        *LinkingService
	registration   *RegistrationService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	core, logs := observer.New(zap.DebugLevel)
	log := zap.New(core)

	env := &testEnv{
		db:         setupTestDB(t),
		clock:      newTestClock(),
		logs:       logs,
		mailer:     &fakeMailer{},
		dispatcher: &fakeDispatcher{},
		metrics:    metrics.New(prometheus.NewRegistry()),
		access:     security.NewAccessTokens("test-secret", time.Hour),
	}

	links := Links{PublicURL: "https://api.example.com", FrontendURL: "https://app.example.com"}
	// Cheap parameters, the hashing itself is covered in pkg/security
	argon := &security.ArgonHash{Memory: 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}

	env.tokens = NewTokenService(env.db, tokenTTL, env.metrics)
	env.tokens.Now = env.clock.Now

	env.notifications = NewNotificationService(env.db, env.dispatcher, time.Second, 3, log, env.metrics)
	env.notifications.Now = env.clock.Now

	env.questionnaires = NewQuestionnaireService(env.db, env.tokens, env.notifications, env.mailer,
		NewMemoryThrottle(time.Minute), links, log, env.metrics)
	env.questionnaires.Now = env.clock.Now

	env.linking = NewLinkingService(env.db, log, env.metrics)

	env.registration = NewRegistrationService(env.db, env.tokens, env.mailer,
		NewMemoryThrottle(time.Minute), links, argon, env.access, log, env.metrics)
	env.registration.Now = env.clock.Now
	env.access.Now = env.clock.Now

	return env
}

func (e *testEnv) submit(t *testing.T) *model.PropertyQuestionnaire {
	t.Helper()

	q, err := e.questionnaires.Submit(context.Background(), SubmitQuestionnaire{
		FirstName:    "Jane",
		LastName:     "Doe",
		Email:        "Jane@Example.com ",
		Phone:        "+15550100",
		Address:      "1 Sunny Road",
		PropertyType: "single_family",
		MonthlyBill:  180,
		Answers:      map[string]any{"roofAge": 7.0},
	})
	require.NoError(t, err)

	return q
}

func (e *testEnv) currentToken(t *testing.T, subjectID string, kind model.TokenKind) string {
	t.Helper()

	tok, err := e.tokens.ForSubjectTx(e.db, subjectID, kind)
	require.NoError(t, err)
	require.NotNil(t, tok)

	return tok.Value
}

func (e *testEnv) reload(t *testing.T, id string) *model.PropertyQuestionnaire {
	t.Helper()

	var q model.PropertyQuestionnaire
	require.NoError(t, e.db.First(&q, "id = ?", id).Error)
	return &q
}

func (e *testEnv) createUser(t *testing.T, id string) {
	t.Helper()

	require.NoError(t, e.db.Create(&model.UserAccount{
		ID:           id,
		Email:        id + "@example.com",
		PasswordHash: "x",
	}).Error)
}
