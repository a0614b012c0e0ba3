package login

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

// MockService реализует интерфейс login.Service
type MockService struct {
	mock.Mock
}

func (m *MockService) Login(ctx context.Context, username, rawPassword string) (string, string, error) {
	args := m.Called(ctx, username, rawPassword)
	return args.String(0), args.String(1), args.Error(2)
}

func TestLoginHandler(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))

	tests := []struct {
		name           string
		body           string
		setupMock      func(*MockService)
		expectedStatus int
		expectedBody   string
	}{
		{
			name: "успешный вход",
			body: `{"username":"doctor","password":"secret-password"}`,
			setupMock: func(m *MockService) {
				m.On("Login", mock.Anything, "doctor", "secret-password").
					Return("jwt-token", "user", nil)
			},
			expectedStatus: http.StatusOK,
			expectedBody:   `"token":"jwt-token"`,
		},
		{
			name: "неверные учетные данные",
			body: `{"username":"doctor","password":"wrong"}`,
			setupMock: func(m *MockService) {
				m.On("Login", mock.Anything, "doctor", "wrong").
					Return("", "", errors.New("invalid credentials"))
			},
			expectedStatus: http.StatusUnauthorized,
			expectedBody:   `"error":"invalid credentials"`,
		},
		{
			name:           "некорректное тело запроса",
			body:           `not json`,
			setupMock:      func(_ *MockService) {},
			expectedStatus: http.StatusBadRequest,
			expectedBody:   `"error":"invalid request body"`,
		},
		{
			name:           "пустой пароль",
			body:           `{"username":"doctor","password":""}`,
			setupMock:      func(_ *MockService) {},
			expectedStatus: http.StatusUnprocessableEntity,
			expectedBody:   `field Password is a required field`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockService := new(MockService)
			tt.setupMock(mockService)

			handler := New(logger, mockService)

			req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(tt.body))
			w := httptest.NewRecorder()

			handler.ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
			assert.True(t, strings.Contains(w.Body.String(), tt.expectedBody),
				"response body should contain %s, got %s", tt.expectedBody, w.Body.String())

			mockService.AssertExpectations(t)
		})
	}
}
