package referral

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

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
func (m *RepoMock) TrySetReferralCode(ctx context.Context, userUID, code string) (bool, error) {
	args := m.Called(ctx, userUID, code)
	return args.Bool(0), args.Error(1)
}

func newNoopLogger() *slog.Logger {
	h := slog.NewTextHandler(io.Discard, &slog.HandlerOptions{})
	return slog.New(h)
}

var codePattern = regexp.MustCompile(`^[A-Z]{4}[0-9A-F]{8}$`)

func TestService_GetOrCreateCode(t *testing.T) {
	t.Run("issues new code", func(t *testing.T) {
		repo := new(RepoMock)
		repo.On("GetUser", mock.Anything, "uid-1").
			Return(&models.User{UID: "uid-1", Username: "doctor"}, nil).Once()
		repo.On("TrySetReferralCode", mock.Anything, "uid-1", mock.MatchedBy(func(code string) bool {
			return codePattern.MatchString(code) && code[:4] == "DOCT"
		})).Return(true, nil).Once()

		svc := NewService(repo, newNoopLogger())

		result, err := svc.GetOrCreateCode(context.Background(), "uid-1")
		require.NoError(t, err)
		assert.True(t, result.IsNew)
		assert.Regexp(t, codePattern, result.Code)
		repo.AssertExpectations(t)
	})

	t.Run("returns existing code unchanged", func(t *testing.T) {
		existing := "DOCTA1B2C3D4"
		repo := new(RepoMock)
		repo.On("GetUser", mock.Anything, "uid-1").
			Return(&models.User{UID: "uid-1", Username: "doctor", ReferralCode: &existing}, nil)

		svc := NewService(repo, newNoopLogger())

		result, err := svc.GetOrCreateCode(context.Background(), "uid-1")
		require.NoError(t, err)
		assert.False(t, result.IsNew)
		assert.Equal(t, existing, result.Code)
		repo.AssertNotCalled(t, "TrySetReferralCode", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("retries on collision", func(t *testing.T) {
		repo := new(RepoMock)
		repo.On("GetUser", mock.Anything, "uid-1").
			Return(&models.User{UID: "uid-1", Username: "doctor"}, nil)
		repo.On("TrySetReferralCode", mock.Anything, "uid-1", mock.Anything).
			Return(false, nil).Twice()
		repo.On("TrySetReferralCode", mock.Anything, "uid-1", mock.Anything).
			Return(true, nil).Once()

		svc := NewService(repo, newNoopLogger())

		result, err := svc.GetOrCreateCode(context.Background(), "uid-1")
		require.NoError(t, err)
		assert.True(t, result.IsNew)
		repo.AssertExpectations(t)
	})

	t.Run("concurrent request issued the code first", func(t *testing.T) {
		issued := "DOCTDEADBEEF"
		repo := new(RepoMock)
		repo.On("GetUser", mock.Anything, "uid-1").
			Return(&models.User{UID: "uid-1", Username: "doctor"}, nil).Once()
		repo.On("TrySetReferralCode", mock.Anything, "uid-1", mock.Anything).
			Return(false, nil).Once()
		repo.On("GetUser", mock.Anything, "uid-1").
			Return(&models.User{UID: "uid-1", Username: "doctor", ReferralCode: &issued}, nil).Once()

		svc := NewService(repo, newNoopLogger())

		result, err := svc.GetOrCreateCode(context.Background(), "uid-1")
		require.NoError(t, err)
		assert.False(t, result.IsNew)
		assert.Equal(t, issued, result.Code)
		repo.AssertExpectations(t)
	})

	t.Run("gives up after attempt cap", func(t *testing.T) {
		repo := new(RepoMock)
		repo.On("GetUser", mock.Anything, "uid-1").
			Return(&models.User{UID: "uid-1", Username: "doctor"}, nil)
		repo.On("TrySetReferralCode", mock.Anything, "uid-1", mock.Anything).
			Return(false, nil).Times(maxAttempts)

		svc := NewService(repo, newNoopLogger())

		_, err := svc.GetOrCreateCode(context.Background(), "uid-1")
		require.Error(t, err)
		assert.ErrorIs(t, err, errs.ErrReferralExhausted)
		repo.AssertExpectations(t)
	})

	t.Run("user not found", func(t *testing.T) {
		repo := new(RepoMock)
		repo.On("GetUser", mock.Anything, "uid-404").Return(nil, errs.ErrUserNotFound)

		svc := NewService(repo, newNoopLogger())

		_, err := svc.GetOrCreateCode(context.Background(), "uid-404")
		require.Error(t, err)
		assert.ErrorIs(t, err, errs.ErrUserNotFound)
	})

	t.Run("storage error stops retries", func(t *testing.T) {
		repo := new(RepoMock)
		repo.On("GetUser", mock.Anything, "uid-1").
			Return(&models.User{UID: "uid-1", Username: "doctor"}, nil).Once()
		repo.On("TrySetReferralCode", mock.Anything, "uid-1", mock.Anything).
			Return(false, errors.New("connection reset")).Once()

		svc := NewService(repo, newNoopLogger())

		_, err := svc.GetOrCreateCode(context.Background(), "uid-1")
		require.Error(t, err)
		repo.AssertExpectations(t)
	})
}

func TestCodePrefix(t *testing.T) {
	tests := []struct {
		name     string
		username string
		want     string
	}{
		{"long name", "doctor", "DOCT"},
		{"exactly four letters", "anna", "ANNA"},
		{"short name padded", "jo", "JOUS"},
		{"single letter", "k", "KUSE"},
		{"digits are skipped", "dr2house", "DRHO"},
		{"empty name", "", "USER"},
		{"only digits", "12345", "USER"},
		{"non-ascii letters skipped", "врач", "USER"},
		{"mixed ascii and non-ascii", "яdocя", "DOCU"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, codePrefix(tt.username))
		})
	}
}

func TestAppendRandomSuffix(t *testing.T) {
	code, err := appendRandomSuffix("DOCT")
	require.NoError(t, err)
	assert.Len(t, code, 12)
	assert.Regexp(t, codePattern, code)

	// Два вызова практически никогда не совпадают.
	other, err := appendRandomSuffix("DOCT")
	require.NoError(t, err)
	assert.NotEqual(t, code, other)
}
