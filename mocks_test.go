package session_test

import (
	"context"
	"sync"

	"github.com/rentiva/go-session"
	"github.com/stretchr/testify/mock"
)

// MockAPI is a mock implementation of the API interface
type MockAPI struct {
	mock.Mock
}

func (m *MockAPI) CurrentUser(ctx context.Context, token string) (*session.Profile, error) {
	args := m.Called(ctx, token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*session.Profile), args.Error(1)
}

func (m *MockAPI) Login(ctx context.Context, email, password string) (*session.AuthResult, error) {
	args := m.Called(ctx, email, password)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*session.AuthResult), args.Error(1)
}

func (m *MockAPI) AdminLogin(ctx context.Context, email, password string) (*session.AuthResult, error) {
	args := m.Called(ctx, email, password)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*session.AuthResult), args.Error(1)
}

func (m *MockAPI) Register(ctx context.Context, req session.RegisterRequest) (*session.AuthResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*session.AuthResult), args.Error(1)
}

func (m *MockAPI) SendOTP(ctx context.Context, email string) error {
	args := m.Called(ctx, email)
	return args.Error(0)
}

func (m *MockAPI) VerifyOTP(ctx context.Context, email, code string) error {
	args := m.Called(ctx, email, code)
	return args.Error(0)
}

func (m *MockAPI) ForgotPassword(ctx context.Context, email string) error {
	args := m.Called(ctx, email)
	return args.Error(0)
}

func (m *MockAPI) VerifyResetOTP(ctx context.Context, email, code string) (string, error) {
	args := m.Called(ctx, email, code)
	return args.String(0), args.Error(1)
}

func (m *MockAPI) ResetPassword(ctx context.Context, resetToken, password string) error {
	args := m.Called(ctx, resetToken, password)
	return args.Error(0)
}

// MockStore is a mock implementation of the CredentialStore interface
type MockStore struct {
	mock.Mock
}

func (m *MockStore) Load() (session.CredentialRecord, bool, error) {
	args := m.Called()
	return args.Get(0).(session.CredentialRecord), args.Bool(1), args.Error(2)
}

func (m *MockStore) Save(rec session.CredentialRecord) error {
	args := m.Called(rec)
	return args.Error(0)
}

func (m *MockStore) Clear() error {
	args := m.Called()
	return args.Error(0)
}

// captureSink records activity events for assertions
type captureSink struct {
	mu     sync.Mutex
	events []session.ActivityEvent
}

func (s *captureSink) Record(ctx context.Context, event session.ActivityEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *captureSink) Events() []session.ActivityEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]session.ActivityEvent, len(s.events))
	copy(out, s.events)
	return out
}

func (s *captureSink) Types() []session.ActivityEventType {
	s.mu.Lock()
	defer s.mu.Unlock()
	types := make([]session.ActivityEventType, 0, len(s.events))
	for _, e := range s.events {
		types = append(types, e.EventType)
	}
	return types
}

func emptyRecord() session.CredentialRecord {
	return session.CredentialRecord{}
}
