package register

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

// MockService реализует интерфейс register.Service
type MockService struct {
	mock.Mock
}

func (m *MockService) Register(ctx context.Context, email, username, rawPassword string) (string, error) {
	args := m.Called(ctx, email, username, rawPassword)
	return args.String(0), args.Error(1)
}

func TestRegisterHandler(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))

	tests := []struct {
		name           string
		body           string
		setupMock      func(*MockService)
		expectedStatus int
		expectedBody   string
	}{
		{
			name: "успешная регистрация",
			body: `{"email":"doctor@clinic.org","username":"doctor","password":"secret-password"}`,
			setupMock: func(m *MockService) {
				m.On("Register", mock.Anything, "doctor@clinic.org", "doctor", "secret-password").
					Return("uid-1", nil)
			},
			expectedStatus: http.StatusOK,
			expectedBody:   `"uid":"uid-1"`,
		},
		{
			name:           "некорректное тело запроса",
			body:           `not json`,
			setupMock:      func(_ *MockService) {},
			expectedStatus: http.StatusBadRequest,
			expectedBody:   `"error":"invalid request body"`,
		},
		{
			name:           "некорректный email",
			body:           `{"email":"not-an-email","username":"doctor","password":"secret-password"}`,
			setupMock:      func(_ *MockService) {},
			expectedStatus: http.StatusUnprocessableEntity,
			expectedBody:   `field Email must be a valid email`,
		},
		{
			name:           "короткий пароль",
			body:           `{"email":"doctor@clinic.org","username":"doctor","password":"short"}`,
			setupMock:      func(_ *MockService) {},
			expectedStatus: http.StatusUnprocessableEntity,
			expectedBody:   `field Password is below the allowed minimum`,
		},
		{
			name: "ошибка сервиса",
			body: `{"email":"doctor@clinic.org","username":"doctor","password":"secret-password"}`,
			setupMock: func(m *MockService) {
				m.On("Register", mock.Anything, "doctor@clinic.org", "doctor", "secret-password").
					Return("", errors.New("db error"))
			},
			expectedStatus: http.StatusInternalServerError,
			expectedBody:   `"error":"could not register user"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockService := new(MockService)
			tt.setupMock(mockService)

			handler := New(logger, mockService)

			req := httptest.NewRequest(http.MethodPost, "/register", strings.NewReader(tt.body))
			w := httptest.NewRecorder()

			handler.ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
			assert.True(t, strings.Contains(w.Body.String(), tt.expectedBody),
				"response body should contain %s, got %s", tt.expectedBody, w.Body.String())

			mockService.AssertExpectations(t)
		})
	}
}
