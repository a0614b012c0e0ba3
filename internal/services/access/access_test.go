package access

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/medguard/platform-access/internal/billing"
	"github.com/medguard/platform-access/internal/errs"
	"github.com/medguard/platform-access/internal/models"
)

type RepoMock struct{ mock.Mock }

func (m *RepoMock) GetUser(ctx context.Context, userUID string) (*models.User, error) {
	args := m.Called(ctx, userUID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}
func (m *RepoMock) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}
func (m *RepoMock) GetPlatformAccess(ctx context.Context, userUID string, platform models.Platform) (*models.PlatformAccess, error) {
	args := m.Called(ctx, userUID, platform)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.PlatformAccess), args.Error(1)
}
func (m *RepoMock) ActivateTrial(ctx context.Context, userUID string, platform models.Platform,
	startDate, endDate time.Time, usageLimit int) (bool, models.TrialStatus, error) {
	args := m.Called(ctx, userUID, platform, startDate, endDate, usageLimit)
	return args.Bool(0), args.Get(1).(models.TrialStatus), args.Error(2)
}
func (m *RepoMock) IncrementUsage(ctx context.Context, userUID string, platform models.Platform) (int, error) {
	args := m.Called(ctx, userUID, platform)
	return args.Int(0), args.Error(1)
}
func (m *RepoMock) AppendUsageEvent(ctx context.Context, event models.UsageEvent) error {
	return m.Called(ctx, event).Error(0)
}
func (m *RepoMock) MarkTrialConverted(ctx context.Context, userUID string, platform models.Platform) error {
	return m.Called(ctx, userUID, platform).Error(0)
}
func (m *RepoMock) GrantBetaAccess(ctx context.Context, email string, expires time.Time) (bool, error) {
	args := m.Called(ctx, email, expires)
	return args.Bool(0), args.Error(1)
}

type BillingMock struct{ mock.Mock }

func (m *BillingMock) ListSubscriptions(ctx context.Context, email string) ([]billing.Subscription, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]billing.Subscription), args.Error(1)
}

type CacheMock struct{ mock.Mock }

func (m *CacheMock) Get(key string, result any) (bool, error) {
	args := m.Called(key, result)
	return args.Bool(0), args.Error(1)
}
func (m *CacheMock) Set(key string, value any, expiration time.Duration) error {
	return m.Called(key, value, expiration).Error(0)
}
func (m *CacheMock) Invalidate(key string) error {
	return m.Called(key).Error(0)
}

func newNoopLogger() *slog.Logger {
	h := slog.NewTextHandler(io.Discard, &slog.HandlerOptions{})
	return slog.New(h)
}

var fixedNow = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

func newTestService(r *RepoMock, b *BillingMock, c *CacheMock) *Service {
	svc := NewService(r, b, c,
		map[string]int{"rxguard": 100, "pedicalc": 50},
		5*time.Minute, newNoopLogger())
	svc.now = func() time.Time { return fixedNow }
	return svc
}

func expectNoSubscriptions(b *BillingMock, c *CacheMock, email string) {
	c.On("Get", "billing:subs:"+email, mock.Anything).Return(false, nil)
	b.On("ListSubscriptions", mock.Anything, email).Return([]billing.Subscription{}, nil)
	c.On("Set", "billing:subs:"+email, mock.Anything, 5*time.Minute).Return(nil)
}

func verifiedUser() *models.User {
	return &models.User{
		UID:           "uid-1",
		Email:         "doctor@clinic.org",
		Username:      "doctor",
		Role:          "user",
		EmailVerified: true,
		PhoneVerified: true,
	}
}

func activeTrialRecord(usageCount, usageLimit int) *models.PlatformAccess {
	start := fixedNow.AddDate(0, 0, -3)
	end := fixedNow.AddDate(0, 0, 11)
	return &models.PlatformAccess{
		UserUID:        "uid-1",
		Platform:       models.PlatformRxGuard,
		TrialStatus:    models.TrialActive,
		TrialStartDate: &start,
		TrialEndDate:   &end,
		UsageCount:     usageCount,
		UsageLimit:     usageLimit,
	}
}

func TestService_DetermineAccess(t *testing.T) {
	expiredEnd := fixedNow.AddDate(0, 0, -1)
	expiredStart := expiredEnd.AddDate(0, 0, -14)
	betaExpires := fixedNow.AddDate(0, 0, 30)

	tests := []struct {
		name           string
		platform       models.Platform
		setupMocks     func(r *RepoMock, b *BillingMock, c *CacheMock)
		wantCanAccess  bool
		wantAccessType models.AccessType
		wantMessage    string
		wantErr        error
	}{
		{
			name:     "paid subscription wins",
			platform: models.PlatformRxGuard,
			setupMocks: func(r *RepoMock, b *BillingMock, c *CacheMock) {
				r.On("GetUser", mock.Anything, "uid-1").Return(verifiedUser(), nil)
				r.On("GetPlatformAccess", mock.Anything, "uid-1", models.PlatformRxGuard).Return(nil, nil)
				c.On("Get", "billing:subs:doctor@clinic.org", mock.Anything).Return(false, nil)
				b.On("ListSubscriptions", mock.Anything, "doctor@clinic.org").Return([]billing.Subscription{
					{ID: "sub-1", Status: "active", Metadata: map[string]string{"platform": "rxguard"}},
				}, nil)
				c.On("Set", "billing:subs:doctor@clinic.org", mock.Anything, 5*time.Minute).Return(nil)
			},
			wantCanAccess:  true,
			wantAccessType: models.AccessPaid,
			wantMessage:    "active subscription",
		},
		{
			name:     "paid converts active trial",
			platform: models.PlatformRxGuard,
			setupMocks: func(r *RepoMock, b *BillingMock, c *CacheMock) {
				r.On("GetUser", mock.Anything, "uid-1").Return(verifiedUser(), nil)
				r.On("GetPlatformAccess", mock.Anything, "uid-1", models.PlatformRxGuard).
					Return(activeTrialRecord(10, 100), nil)
				c.On("Get", "billing:subs:doctor@clinic.org", mock.Anything).Return(false, nil)
				b.On("ListSubscriptions", mock.Anything, "doctor@clinic.org").Return([]billing.Subscription{
					{ID: "sub-1", Status: "active", Metadata: map[string]string{"platform": "rxguard"}},
				}, nil)
				c.On("Set", "billing:subs:doctor@clinic.org", mock.Anything, 5*time.Minute).Return(nil)
				r.On("MarkTrialConverted", mock.Anything, "uid-1", models.PlatformRxGuard).Return(nil).Once()
			},
			wantCanAccess:  true,
			wantAccessType: models.AccessPaid,
			wantMessage:    "active subscription",
		},
		{
			name:     "paid beats beta",
			platform: models.PlatformRxGuard,
			setupMocks: func(r *RepoMock, b *BillingMock, c *CacheMock) {
				user := verifiedUser()
				user.BetaAccessExpires = &betaExpires
				r.On("GetUser", mock.Anything, "uid-1").Return(user, nil)
				r.On("GetPlatformAccess", mock.Anything, "uid-1", models.PlatformRxGuard).Return(nil, nil)
				c.On("Get", "billing:subs:doctor@clinic.org", mock.Anything).Return(false, nil)
				b.On("ListSubscriptions", mock.Anything, "doctor@clinic.org").Return([]billing.Subscription{
					{ID: "sub-1", Status: "active", Metadata: map[string]string{"platform": "rxguard"}},
				}, nil)
				c.On("Set", "billing:subs:doctor@clinic.org", mock.Anything, 5*time.Minute).Return(nil)
			},
			wantCanAccess:  true,
			wantAccessType: models.AccessPaid,
			wantMessage:    "active subscription",
		},
		{
			name:     "subscription for another platform does not count",
			platform: models.PlatformPediCalc,
			setupMocks: func(r *RepoMock, b *BillingMock, c *CacheMock) {
				r.On("GetUser", mock.Anything, "uid-1").Return(verifiedUser(), nil)
				r.On("GetPlatformAccess", mock.Anything, "uid-1", models.PlatformPediCalc).Return(nil, nil)
				c.On("Get", "billing:subs:doctor@clinic.org", mock.Anything).Return(false, nil)
				b.On("ListSubscriptions", mock.Anything, "doctor@clinic.org").Return([]billing.Subscription{
					{ID: "sub-1", Status: "active", Metadata: map[string]string{"platform": "rxguard"}},
				}, nil)
				c.On("Set", "billing:subs:doctor@clinic.org", mock.Anything, 5*time.Minute).Return(nil)
			},
			wantCanAccess:  false,
			wantAccessType: models.AccessNone,
			wantMessage:    "no active access",
		},
		{
			name:     "canceled subscription does not count",
			platform: models.PlatformRxGuard,
			setupMocks: func(r *RepoMock, b *BillingMock, c *CacheMock) {
				r.On("GetUser", mock.Anything, "uid-1").Return(verifiedUser(), nil)
				r.On("GetPlatformAccess", mock.Anything, "uid-1", models.PlatformRxGuard).Return(nil, nil)
				c.On("Get", "billing:subs:doctor@clinic.org", mock.Anything).Return(false, nil)
				b.On("ListSubscriptions", mock.Anything, "doctor@clinic.org").Return([]billing.Subscription{
					{ID: "sub-1", Status: "canceled", Metadata: map[string]string{"platform": "rxguard"}},
				}, nil)
				c.On("Set", "billing:subs:doctor@clinic.org", mock.Anything, 5*time.Minute).Return(nil)
			},
			wantCanAccess:  false,
			wantAccessType: models.AccessNone,
			wantMessage:    "no active access",
		},
		{
			name:     "beta access",
			platform: models.PlatformRxGuard,
			setupMocks: func(r *RepoMock, b *BillingMock, c *CacheMock) {
				user := verifiedUser()
				user.BetaAccessExpires = &betaExpires
				r.On("GetUser", mock.Anything, "uid-1").Return(user, nil)
				r.On("GetPlatformAccess", mock.Anything, "uid-1", models.PlatformRxGuard).Return(nil, nil)
				expectNoSubscriptions(b, c, "doctor@clinic.org")
			},
			wantCanAccess:  true,
			wantAccessType: models.AccessBeta,
			wantMessage:    "beta access",
		},
		{
			name:     "beta beats active trial",
			platform: models.PlatformRxGuard,
			setupMocks: func(r *RepoMock, b *BillingMock, c *CacheMock) {
				user := verifiedUser()
				user.BetaAccessExpires = &betaExpires
				r.On("GetUser", mock.Anything, "uid-1").Return(user, nil)
				r.On("GetPlatformAccess", mock.Anything, "uid-1", models.PlatformRxGuard).
					Return(activeTrialRecord(99, 100), nil)
				expectNoSubscriptions(b, c, "doctor@clinic.org")
			},
			wantCanAccess:  true,
			wantAccessType: models.AccessBeta,
			wantMessage:    "beta access",
		},
		{
			name:     "expired beta falls through to trial",
			platform: models.PlatformRxGuard,
			setupMocks: func(r *RepoMock, b *BillingMock, c *CacheMock) {
				expired := fixedNow.AddDate(0, 0, -5)
				user := verifiedUser()
				user.BetaAccessExpires = &expired
				r.On("GetUser", mock.Anything, "uid-1").Return(user, nil)
				r.On("GetPlatformAccess", mock.Anything, "uid-1", models.PlatformRxGuard).
					Return(activeTrialRecord(10, 100), nil)
				expectNoSubscriptions(b, c, "doctor@clinic.org")
			},
			wantCanAccess:  true,
			wantAccessType: models.AccessTrialing,
			wantMessage:    "trial active",
		},
		{
			name:     "active trial",
			platform: models.PlatformRxGuard,
			setupMocks: func(r *RepoMock, b *BillingMock, c *CacheMock) {
				r.On("GetUser", mock.Anything, "uid-1").Return(verifiedUser(), nil)
				r.On("GetPlatformAccess", mock.Anything, "uid-1", models.PlatformRxGuard).
					Return(activeTrialRecord(42, 100), nil)
				expectNoSubscriptions(b, c, "doctor@clinic.org")
			},
			wantCanAccess:  true,
			wantAccessType: models.AccessTrialing,
			wantMessage:    "trial active",
		},
		{
			name:     "trial window expired but status still active",
			platform: models.PlatformRxGuard,
			setupMocks: func(r *RepoMock, b *BillingMock, c *CacheMock) {
				record := &models.PlatformAccess{
					UserUID:        "uid-1",
					Platform:       models.PlatformRxGuard,
					TrialStatus:    models.TrialActive,
					TrialStartDate: &expiredStart,
					TrialEndDate:   &expiredEnd,
					UsageCount:     10,
					UsageLimit:     100,
				}
				r.On("GetUser", mock.Anything, "uid-1").Return(verifiedUser(), nil)
				r.On("GetPlatformAccess", mock.Anything, "uid-1", models.PlatformRxGuard).Return(record, nil)
				expectNoSubscriptions(b, c, "doctor@clinic.org")
			},
			wantCanAccess:  false,
			wantAccessType: models.AccessNone,
			wantMessage:    "trial expired",
		},
		{
			name:     "trial usage limit reached",
			platform: models.PlatformRxGuard,
			setupMocks: func(r *RepoMock, b *BillingMock, c *CacheMock) {
				r.On("GetUser", mock.Anything, "uid-1").Return(verifiedUser(), nil)
				r.On("GetPlatformAccess", mock.Anything, "uid-1", models.PlatformRxGuard).
					Return(activeTrialRecord(100, 100), nil)
				expectNoSubscriptions(b, c, "doctor@clinic.org")
			},
			wantCanAccess:  false,
			wantAccessType: models.AccessTrialing,
			wantMessage:    "trial usage limit reached",
		},
		{
			name:     "expired trial status",
			platform: models.PlatformRxGuard,
			setupMocks: func(r *RepoMock, b *BillingMock, c *CacheMock) {
				record := &models.PlatformAccess{
					UserUID:     "uid-1",
					Platform:    models.PlatformRxGuard,
					TrialStatus: models.TrialExpired,
					UsageCount:  100,
					UsageLimit:  100,
				}
				r.On("GetUser", mock.Anything, "uid-1").Return(verifiedUser(), nil)
				r.On("GetPlatformAccess", mock.Anything, "uid-1", models.PlatformRxGuard).Return(record, nil)
				expectNoSubscriptions(b, c, "doctor@clinic.org")
			},
			wantCanAccess:  false,
			wantAccessType: models.AccessNone,
			wantMessage:    "no active access",
		},
		{
			name:     "no record at all",
			platform: models.PlatformRxGuard,
			setupMocks: func(r *RepoMock, b *BillingMock, c *CacheMock) {
				r.On("GetUser", mock.Anything, "uid-1").Return(verifiedUser(), nil)
				r.On("GetPlatformAccess", mock.Anything, "uid-1", models.PlatformRxGuard).Return(nil, nil)
				expectNoSubscriptions(b, c, "doctor@clinic.org")
			},
			wantCanAccess:  false,
			wantAccessType: models.AccessNone,
			wantMessage:    "no active access",
		},
		{
			name:       "unknown platform",
			platform:   models.Platform("telehealth"),
			setupMocks: func(_ *RepoMock, _ *BillingMock, _ *CacheMock) {},
			wantErr:    errs.ErrInvalidPlatform,
		},
		{
			name:     "user not found",
			platform: models.PlatformRxGuard,
			setupMocks: func(r *RepoMock, _ *BillingMock, _ *CacheMock) {
				r.On("GetUser", mock.Anything, "uid-1").Return(nil, errs.ErrUserNotFound)
			},
			wantErr: errs.ErrUserNotFound,
		},
		{
			name:     "billing provider down",
			platform: models.PlatformRxGuard,
			setupMocks: func(r *RepoMock, b *BillingMock, c *CacheMock) {
				r.On("GetUser", mock.Anything, "uid-1").Return(verifiedUser(), nil)
				r.On("GetPlatformAccess", mock.Anything, "uid-1", models.PlatformRxGuard).Return(nil, nil)
				c.On("Get", "billing:subs:doctor@clinic.org", mock.Anything).Return(false, nil)
				b.On("ListSubscriptions", mock.Anything, "doctor@clinic.org").
					Return(nil, errors.New("connection refused"))
			},
			wantErr: errs.ErrBillingUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(RepoMock)
			billingMock := new(BillingMock)
			cacheMock := new(CacheMock)
			tt.setupMocks(repo, billingMock, cacheMock)
			svc := newTestService(repo, billingMock, cacheMock)

			status, err := svc.DetermineAccess(context.Background(), "uid-1", tt.platform)

			if tt.wantErr != nil {
				require.Error(t, err)
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantCanAccess, status.CanAccess)
			assert.Equal(t, tt.wantAccessType, status.AccessType)
			assert.Equal(t, tt.wantMessage, status.Message)
			repo.AssertExpectations(t)
		})
	}
}

func TestService_DetermineAccess_CachedBilling(t *testing.T) {
	repo := new(RepoMock)
	billingMock := new(BillingMock)
	cacheMock := new(CacheMock)

	repo.On("GetUser", mock.Anything, "uid-1").Return(verifiedUser(), nil)
	repo.On("GetPlatformAccess", mock.Anything, "uid-1", models.PlatformRxGuard).Return(nil, nil)
	cacheMock.On("Get", "billing:subs:doctor@clinic.org", mock.Anything).
		Run(func(args mock.Arguments) {
			subs := args.Get(1).(*[]billing.Subscription)
			*subs = []billing.Subscription{
				{ID: "sub-1", Status: "active", Metadata: map[string]string{"platform": "rxguard"}},
			}
		}).Return(true, nil)

	svc := newTestService(repo, billingMock, cacheMock)

	status, err := svc.DetermineAccess(context.Background(), "uid-1", models.PlatformRxGuard)
	require.NoError(t, err)
	assert.True(t, status.CanAccess)
	assert.Equal(t, models.AccessPaid, status.AccessType)
	billingMock.AssertNotCalled(t, "ListSubscriptions", mock.Anything, mock.Anything)
}

func TestService_DetermineAccess_TrialDaysRemaining(t *testing.T) {
	repo := new(RepoMock)
	billingMock := new(BillingMock)
	cacheMock := new(CacheMock)

	repo.On("GetUser", mock.Anything, "uid-1").Return(verifiedUser(), nil)
	repo.On("GetPlatformAccess", mock.Anything, "uid-1", models.PlatformRxGuard).
		Return(activeTrialRecord(0, 100), nil)
	expectNoSubscriptions(billingMock, cacheMock, "doctor@clinic.org")

	svc := newTestService(repo, billingMock, cacheMock)

	status, err := svc.DetermineAccess(context.Background(), "uid-1", models.PlatformRxGuard)
	require.NoError(t, err)
	require.NotNil(t, status.TrialDaysRemaining)
	assert.Equal(t, 11, *status.TrialDaysRemaining)
}

func TestService_ActivateTrial(t *testing.T) {
	endDate := fixedNow.AddDate(0, 0, TrialDays)

	tests := []struct {
		name       string
		platform   models.Platform
		setupMocks func(r *RepoMock)
		wantErr    error
	}{
		{
			name:     "success",
			platform: models.PlatformRxGuard,
			setupMocks: func(r *RepoMock) {
				r.On("GetUser", mock.Anything, "uid-1").Return(verifiedUser(), nil)
				r.On("ActivateTrial", mock.Anything, "uid-1", models.PlatformRxGuard,
					fixedNow, endDate, 100).Return(true, models.TrialActive, nil).Once()
			},
		},
		{
			name:     "platform without configured limit uses default",
			platform: models.PlatformMedWatch,
			setupMocks: func(r *RepoMock) {
				r.On("GetUser", mock.Anything, "uid-1").Return(verifiedUser(), nil)
				r.On("ActivateTrial", mock.Anything, "uid-1", models.PlatformMedWatch,
					fixedNow, endDate, defaultUsageLimit).Return(true, models.TrialActive, nil).Once()
			},
		},
		{
			name:       "unknown platform",
			platform:   models.Platform("telehealth"),
			setupMocks: func(_ *RepoMock) {},
			wantErr:    errs.ErrInvalidPlatform,
		},
		{
			name:     "email not verified",
			platform: models.PlatformRxGuard,
			setupMocks: func(r *RepoMock) {
				user := verifiedUser()
				user.EmailVerified = false
				r.On("GetUser", mock.Anything, "uid-1").Return(user, nil)
			},
			wantErr: errs.ErrEmailNotVerified,
		},
		{
			name:     "phone not verified",
			platform: models.PlatformRxGuard,
			setupMocks: func(r *RepoMock) {
				user := verifiedUser()
				user.PhoneVerified = false
				r.On("GetUser", mock.Anything, "uid-1").Return(user, nil)
			},
			wantErr: errs.ErrPhoneNotVerified,
		},
		{
			name:     "trial already active",
			platform: models.PlatformRxGuard,
			setupMocks: func(r *RepoMock) {
				r.On("GetUser", mock.Anything, "uid-1").Return(verifiedUser(), nil)
				r.On("ActivateTrial", mock.Anything, "uid-1", models.PlatformRxGuard,
					fixedNow, endDate, 100).Return(false, models.TrialActive, nil).Once()
			},
			wantErr: errs.ErrTrialAlreadyActive,
		},
		{
			name:     "trial already used",
			platform: models.PlatformRxGuard,
			setupMocks: func(r *RepoMock) {
				r.On("GetUser", mock.Anything, "uid-1").Return(verifiedUser(), nil)
				r.On("ActivateTrial", mock.Anything, "uid-1", models.PlatformRxGuard,
					fixedNow, endDate, 100).Return(false, models.TrialExpired, nil).Once()
			},
			wantErr: errs.ErrTrialAlreadyUsed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(RepoMock)
			tt.setupMocks(repo)
			svc := newTestService(repo, new(BillingMock), new(CacheMock))

			window, err := svc.ActivateTrial(context.Background(), "uid-1", tt.platform)

			if tt.wantErr != nil {
				require.Error(t, err)
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.platform, window.Platform)
			assert.Equal(t, fixedNow, window.StartDate)
			assert.Equal(t, endDate, window.EndDate)
			assert.Equal(t, TrialDays, window.DaysRemaining)
			repo.AssertExpectations(t)
		})
	}
}

func TestService_TrackUsage(t *testing.T) {
	t.Run("allowed action increments and logs event", func(t *testing.T) {
		repo := new(RepoMock)
		billingMock := new(BillingMock)
		cacheMock := new(CacheMock)

		repo.On("GetUser", mock.Anything, "uid-1").Return(verifiedUser(), nil)
		repo.On("GetPlatformAccess", mock.Anything, "uid-1", models.PlatformRxGuard).
			Return(activeTrialRecord(41, 100), nil).Once()
		repo.On("IncrementUsage", mock.Anything, "uid-1", models.PlatformRxGuard).Return(42, nil).Once()
		repo.On("AppendUsageEvent", mock.Anything, mock.MatchedBy(func(e models.UsageEvent) bool {
			return e.UserUID == "uid-1" && e.Platform == models.PlatformRxGuard &&
				e.Action == "drug_interaction_check"
		})).Return(nil).Once()
		repo.On("GetPlatformAccess", mock.Anything, "uid-1", models.PlatformRxGuard).
			Return(activeTrialRecord(42, 100), nil).Once()
		expectNoSubscriptions(billingMock, cacheMock, "doctor@clinic.org")

		svc := newTestService(repo, billingMock, cacheMock)

		stats, err := svc.TrackUsage(context.Background(), "uid-1", models.PlatformRxGuard,
			"drug_interaction_check", map[string]any{"drug": "warfarin"})
		require.NoError(t, err)
		assert.Equal(t, 42, stats.UsageCount)
		assert.Equal(t, 100, stats.UsageLimit)
		assert.Equal(t, 58, stats.UsageRemaining)
		assert.Equal(t, models.AccessTrialing, stats.AccessType)
		repo.AssertExpectations(t)
	})

	t.Run("nth action passes, n plus first is denied", func(t *testing.T) {
		repo := new(RepoMock)
		billingMock := new(BillingMock)
		cacheMock := new(CacheMock)

		// 99 использовано из 100: последнее разрешенное действие.
		repo.On("GetUser", mock.Anything, "uid-1").Return(verifiedUser(), nil)
		repo.On("GetPlatformAccess", mock.Anything, "uid-1", models.PlatformRxGuard).
			Return(activeTrialRecord(99, 100), nil).Once()
		repo.On("IncrementUsage", mock.Anything, "uid-1", models.PlatformRxGuard).Return(100, nil).Once()
		repo.On("AppendUsageEvent", mock.Anything, mock.Anything).Return(nil).Once()
		repo.On("GetPlatformAccess", mock.Anything, "uid-1", models.PlatformRxGuard).
			Return(activeTrialRecord(100, 100), nil)
		expectNoSubscriptions(billingMock, cacheMock, "doctor@clinic.org")

		svc := newTestService(repo, billingMock, cacheMock)

		stats, err := svc.TrackUsage(context.Background(), "uid-1", models.PlatformRxGuard, "check", nil)
		require.NoError(t, err)
		assert.Equal(t, 100, stats.UsageCount)
		assert.Equal(t, 0, stats.UsageRemaining)

		// Следующее действие упирается в лимит.
		_, err = svc.TrackUsage(context.Background(), "uid-1", models.PlatformRxGuard, "check", nil)
		require.Error(t, err)

		var denied *DeniedError
		require.ErrorAs(t, err, &denied)
		assert.ErrorIs(t, err, errs.ErrAccessDenied)
		assert.Equal(t, "trial usage limit reached", denied.Status.Message)
		repo.AssertExpectations(t)
	})

	t.Run("denied without access record", func(t *testing.T) {
		repo := new(RepoMock)
		billingMock := new(BillingMock)
		cacheMock := new(CacheMock)

		repo.On("GetUser", mock.Anything, "uid-1").Return(verifiedUser(), nil)
		repo.On("GetPlatformAccess", mock.Anything, "uid-1", models.PlatformRxGuard).Return(nil, nil)
		expectNoSubscriptions(billingMock, cacheMock, "doctor@clinic.org")

		svc := newTestService(repo, billingMock, cacheMock)

		_, err := svc.TrackUsage(context.Background(), "uid-1", models.PlatformRxGuard, "check", nil)
		require.Error(t, err)

		var denied *DeniedError
		require.ErrorAs(t, err, &denied)
		assert.Equal(t, "no active access", denied.Status.Message)
		repo.AssertNotCalled(t, "IncrementUsage", mock.Anything, mock.Anything, mock.Anything)
		repo.AssertNotCalled(t, "AppendUsageEvent", mock.Anything, mock.Anything)
	})

	t.Run("audit log failure fails the request", func(t *testing.T) {
		repo := new(RepoMock)
		billingMock := new(BillingMock)
		cacheMock := new(CacheMock)

		repo.On("GetUser", mock.Anything, "uid-1").Return(verifiedUser(), nil)
		repo.On("GetPlatformAccess", mock.Anything, "uid-1", models.PlatformRxGuard).
			Return(activeTrialRecord(1, 100), nil)
		repo.On("IncrementUsage", mock.Anything, "uid-1", models.PlatformRxGuard).Return(2, nil).Once()
		repo.On("AppendUsageEvent", mock.Anything, mock.Anything).
			Return(errors.New("disk full")).Once()
		expectNoSubscriptions(billingMock, cacheMock, "doctor@clinic.org")

		svc := newTestService(repo, billingMock, cacheMock)

		_, err := svc.TrackUsage(context.Background(), "uid-1", models.PlatformRxGuard, "check", nil)
		require.Error(t, err)
	})

	t.Run("paid user is not limited by usage count", func(t *testing.T) {
		repo := new(RepoMock)
		billingMock := new(BillingMock)
		cacheMock := new(CacheMock)

		record := activeTrialRecord(500, 100)
		record.TrialStatus = models.TrialConverted
		repo.On("GetUser", mock.Anything, "uid-1").Return(verifiedUser(), nil)
		repo.On("GetPlatformAccess", mock.Anything, "uid-1", models.PlatformRxGuard).Return(record, nil)
		repo.On("IncrementUsage", mock.Anything, "uid-1", models.PlatformRxGuard).Return(501, nil).Once()
		repo.On("AppendUsageEvent", mock.Anything, mock.Anything).Return(nil).Once()
		cacheMock.On("Get", "billing:subs:doctor@clinic.org", mock.Anything).
			Run(func(args mock.Arguments) {
				subs := args.Get(1).(*[]billing.Subscription)
				*subs = []billing.Subscription{
					{ID: "sub-1", Status: "active", Metadata: map[string]string{"platform": "rxguard"}},
				}
			}).Return(true, nil)

		svc := newTestService(repo, billingMock, cacheMock)

		stats, err := svc.TrackUsage(context.Background(), "uid-1", models.PlatformRxGuard, "check", nil)
		require.NoError(t, err)
		assert.Equal(t, 501, stats.UsageCount)
		assert.Equal(t, models.AccessPaid, stats.AccessType)
		assert.Equal(t, 0, stats.UsageRemaining)
	})
}

func TestService_GrantBeta(t *testing.T) {
	tests := []struct {
		name        string
		betaDays    int
		setupMocks  func(r *RepoMock)
		wantErr     error
		wantDays    int
		wantExpires time.Time
	}{
		{
			name:     "success with explicit days",
			betaDays: 90,
			setupMocks: func(r *RepoMock) {
				r.On("GetUserByEmail", mock.Anything, "doctor@clinic.org").Return(verifiedUser(), nil)
				r.On("GrantBetaAccess", mock.Anything, "doctor@clinic.org",
					fixedNow.AddDate(0, 0, 90)).Return(true, nil).Once()
			},
			wantDays:    90,
			wantExpires: fixedNow.AddDate(0, 0, 90),
		},
		{
			name:     "zero days means default",
			betaDays: 0,
			setupMocks: func(r *RepoMock) {
				r.On("GetUserByEmail", mock.Anything, "doctor@clinic.org").Return(verifiedUser(), nil)
				r.On("GrantBetaAccess", mock.Anything, "doctor@clinic.org",
					fixedNow.AddDate(0, 0, DefaultBetaDays)).Return(true, nil).Once()
			},
			wantDays:    DefaultBetaDays,
			wantExpires: fixedNow.AddDate(0, 0, DefaultBetaDays),
		},
		{
			name:     "max days boundary",
			betaDays: 365,
			setupMocks: func(r *RepoMock) {
				r.On("GetUserByEmail", mock.Anything, "doctor@clinic.org").Return(verifiedUser(), nil)
				r.On("GrantBetaAccess", mock.Anything, "doctor@clinic.org",
					fixedNow.AddDate(0, 0, 365)).Return(true, nil).Once()
			},
			wantDays:    365,
			wantExpires: fixedNow.AddDate(0, 0, 365),
		},
		{
			name:       "too many days",
			betaDays:   366,
			setupMocks: func(_ *RepoMock) {},
			wantErr:    errs.ErrInvalidBetaDays,
		},
		{
			name:       "negative days",
			betaDays:   -1,
			setupMocks: func(_ *RepoMock) {},
			wantErr:    errs.ErrInvalidBetaDays,
		},
		{
			name:     "user not found",
			betaDays: 60,
			setupMocks: func(r *RepoMock) {
				r.On("GetUserByEmail", mock.Anything, "doctor@clinic.org").
					Return(nil, errs.ErrUserNotFound)
			},
			wantErr: errs.ErrUserNotFound,
		},
		{
			name:     "already a beta tester",
			betaDays: 60,
			setupMocks: func(r *RepoMock) {
				r.On("GetUserByEmail", mock.Anything, "doctor@clinic.org").Return(verifiedUser(), nil)
				r.On("GrantBetaAccess", mock.Anything, "doctor@clinic.org",
					fixedNow.AddDate(0, 0, 60)).Return(false, nil).Once()
			},
			wantErr: errs.ErrAlreadyBetaTester,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(RepoMock)
			tt.setupMocks(repo)
			svc := newTestService(repo, new(BillingMock), new(CacheMock))

			grant, err := svc.GrantBeta(context.Background(), "doctor@clinic.org", tt.betaDays)

			if tt.wantErr != nil {
				require.Error(t, err)
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "doctor@clinic.org", grant.Email)
			assert.Equal(t, tt.wantDays, grant.BetaDays)
			assert.Equal(t, tt.wantExpires, grant.BetaExpiresAt)
			repo.AssertExpectations(t)
		})
	}
}
