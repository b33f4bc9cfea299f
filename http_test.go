package session

import (
	"context"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-router"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var errStubCall = errors.New("unexpected api call")

// apiStub is a function-backed API fake for handler tests; unset endpoints
// fail loudly.
type apiStub struct {
	currentUser    func(context.Context, string) (*Profile, error)
	login          func(context.Context, string, string) (*AuthResult, error)
	adminLogin     func(context.Context, string, string) (*AuthResult, error)
	register       func(context.Context, RegisterRequest) (*AuthResult, error)
	sendOTP        func(context.Context, string) error
	verifyOTP      func(context.Context, string, string) error
	forgotPassword func(context.Context, string) error
	verifyResetOTP func(context.Context, string, string) (string, error)
	resetPassword  func(context.Context, string, string) error
}

func (s *apiStub) CurrentUser(ctx context.Context, token string) (*Profile, error) {
	if s.currentUser == nil {
		return nil, errStubCall
	}
	return s.currentUser(ctx, token)
}

func (s *apiStub) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	if s.login == nil {
		return nil, errStubCall
	}
	return s.login(ctx, email, password)
}

func (s *apiStub) AdminLogin(ctx context.Context, email, password string) (*AuthResult, error) {
	if s.adminLogin == nil {
		return nil, errStubCall
	}
	return s.adminLogin(ctx, email, password)
}

func (s *apiStub) Register(ctx context.Context, req RegisterRequest) (*AuthResult, error) {
	if s.register == nil {
		return nil, errStubCall
	}
	return s.register(ctx, req)
}

func (s *apiStub) SendOTP(ctx context.Context, email string) error {
	if s.sendOTP == nil {
		return errStubCall
	}
	return s.sendOTP(ctx, email)
}

func (s *apiStub) VerifyOTP(ctx context.Context, email, code string) error {
	if s.verifyOTP == nil {
		return errStubCall
	}
	return s.verifyOTP(ctx, email, code)
}

func (s *apiStub) ForgotPassword(ctx context.Context, email string) error {
	if s.forgotPassword == nil {
		return errStubCall
	}
	return s.forgotPassword(ctx, email)
}

func (s *apiStub) VerifyResetOTP(ctx context.Context, email, code string) (string, error) {
	if s.verifyResetOTP == nil {
		return "", errStubCall
	}
	return s.verifyResetOTP(ctx, email, code)
}

func (s *apiStub) ResetPassword(ctx context.Context, resetToken, password string) error {
	if s.resetPassword == nil {
		return errStubCall
	}
	return s.resetPassword(ctx, resetToken, password)
}

// MockContext mocks the router.Context
type MockContext struct {
	mock.Mock
	NextCalled bool
}

func (m *MockContext) Next() error {
	m.NextCalled = true
	return nil
}

func (m *MockContext) Context() context.Context {
	args := m.Called()
	c, ok := args.Get(0).(context.Context)
	if !ok {
		panic("arg needs to be context.Context")
	}
	return c
}

func (m *MockContext) SetContext(ctx context.Context) {
	m.Called(ctx)
}

func (m *MockContext) Path() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockContext) Method() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockContext) Body() []byte {
	args := m.Called()
	return args.Get(0).([]byte)
}

func (m *MockContext) Status(code int) router.Context {
	m.Called(code)
	return m
}

func (m *MockContext) SendString(s string) error {
	args := m.Called(s)
	return args.Error(0)
}

func (m *MockContext) Send(b []byte) error {
	args := m.Called(b)
	return args.Error(0)
}

func (m *MockContext) JSON(code int, val any) error {
	args := m.Called(code, val)
	return args.Error(0)
}

func (m *MockContext) NoContent(code int) error {
	args := m.Called(code)
	return args.Error(0)
}

func (m *MockContext) Render(name string, bind any, layout ...string) error {
	if len(layout) > 0 {
		args := m.Called(name, bind, layout[0])
		return args.Error(0)
	}
	args := m.Called(name, bind)
	return args.Error(0)
}

func (m *MockContext) Redirect(path string, status ...int) error {
	if len(status) > 0 {
		args := m.Called(path, status)
		return args.Error(0)
	}
	args := m.Called(path)
	return args.Error(0)
}

func (m *MockContext) RedirectToRoute(name string, data router.ViewContext, status ...int) error {
	if len(status) > 0 {
		args := m.Called(name, data, status[0])
		return args.Error(0)
	}
	args := m.Called(name, data)
	return args.Error(0)
}

func (m *MockContext) RedirectBack(fallback string, status ...int) error {
	if len(status) > 0 {
		args := m.Called(fallback, status)
		return args.Error(0)
	}
	args := m.Called(fallback)
	return args.Error(0)
}

func (m *MockContext) SetHeader(key, val string) router.Context {
	m.Called(key, val)
	return m
}

func (m *MockContext) Header(key string) string {
	args := m.Called(key)
	return args.String(0)
}

func (m *MockContext) Get(key string, defaultValue any) any {
	args := m.Called(key, defaultValue)
	return args.Get(0)
}

func (m *MockContext) GetBool(key string, defaultValue bool) bool {
	args := m.Called(key, defaultValue)
	return args.Bool(0)
}

func (m *MockContext) GetInt(key string, def int) int {
	args := m.Called(key, def)
	return args.Int(0)
}

func (m *MockContext) Set(key string, val any) {
	m.Called(key, val)
}

func (m *MockContext) Bind(i any) error {
	args := m.Called(i)
	return args.Error(0)
}

func (m *MockContext) BindJSON(i any) error {
	args := m.Called(i)
	return args.Error(0)
}

func (m *MockContext) BindXML(i any) error {
	args := m.Called(i)
	return args.Error(0)
}

func (m *MockContext) BindQuery(i any) error {
	args := m.Called(i)
	return args.Error(0)
}

func (m *MockContext) CookieParser(i any) error {
	args := m.Called(i)
	return args.Error(0)
}

func (m *MockContext) Cookie(cookie *router.Cookie) {
	m.Called(cookie)
}

func (m *MockContext) Cookies(key string, defaultValue ...string) string {
	if len(defaultValue) > 0 {
		args := m.Called(key, defaultValue[0])
		return args.String(0)
	}
	args := m.Called(key)
	return args.String(0)
}

func (m *MockContext) Param(key string, defaultValue ...string) string {
	if len(defaultValue) > 0 {
		args := m.Called(key, defaultValue[0])
		return args.String(0)
	}
	args := m.Called(key)
	return args.String(0)
}

func (m *MockContext) ParamsInt(key string, defaultValue int) int {
	args := m.Called(key, defaultValue)
	return args.Int(0)
}

func (m *MockContext) Query(key string, defaultValue ...string) string {
	if len(defaultValue) > 0 {
		args := m.Called(key, defaultValue[0])
		return args.String(0)
	}
	args := m.Called(key)
	return args.String(0)
}

func (m *MockContext) QueryValues(key string) []string {
	args := m.Called(key)
	vals, _ := args.Get(0).([]string)
	return vals
}

func (m *MockContext) QueryInt(key string, defaultValue int) int {
	args := m.Called(key, defaultValue)
	return args.Int(0)
}

func (m *MockContext) Queries() map[string]string {
	args := m.Called()
	return args.Get(0).(map[string]string)
}

func (m *MockContext) GetString(key string, defaultValue string) string {
	args := m.Called(key, defaultValue)
	return args.String(0)
}

func (m *MockContext) Locals(key any, value ...any) any {
	if len(value) > 0 {
		m.Called(key, value[0])
		return nil
	}
	args := m.Called(key)
	return args.Get(0)
}

func (m *MockContext) OriginalURL() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockContext) OnNext(callback func() error) {
	m.Called(callback)
}

func (m *MockContext) Referer() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockContext) LocalsMerge(key any, value map[string]any) map[string]any {
	args := m.Called(key, value)
	merged, _ := args.Get(0).(map[string]any)
	return merged
}

func (m *MockContext) FormFile(key string) (*multipart.FileHeader, error) {
	args := m.Called(key)
	fh, _ := args.Get(0).(*multipart.FileHeader)
	return fh, args.Error(1)
}

func (m *MockContext) FormValue(key string, defaultValue ...string) string {
	if len(defaultValue) > 0 {
		args := m.Called(key, defaultValue[0])
		return args.String(0)
	}
	args := m.Called(key)
	return args.String(0)
}

func (m *MockContext) IP() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockContext) SendStatus(code int) error {
	args := m.Called(code)
	return args.Error(0)
}

func (m *MockContext) SendStream(r io.Reader) error {
	args := m.Called(r)
	return args.Error(0)
}

func (m *MockContext) RouteName() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockContext) RouteParams() map[string]string {
	args := m.Called()
	params, _ := args.Get(0).(map[string]string)
	return params
}

func seedAuthenticated(ctrl *Controller, token string, profile *Profile, owner bool) {
	gen := ctrl.session.setToken(token, owner)
	ctrl.session.setProfile(gen, profile, owner)
	ctrl.session.finishLoading()
}

func newGuardStack(api API, store CredentialStore) (*Controller, *Gateway, *RouteGuard) {
	ctrl := NewController(api, store, NewConfig("http://api.test"))
	gateway := NewGateway(ctrl)
	guard := NewGuard(ctrl)
	rg, _ := NewRouteGuard(gateway, guard, ctrl.cfg)
	return ctrl, gateway, rg
}

func TestProtectedAllowsAuthenticatedSession(t *testing.T) {
	ctrl, _, rg := newGuardStack(&apiStub{}, NewMemoryStore())
	seedAuthenticated(ctrl, "valid-token", &Profile{ID: "u1", Role: RoleCustomer}, false)

	mockCtx := new(MockContext)
	mockCtx.On("Locals", "session", mock.MatchedBy(func(v any) bool {
		snap, ok := v.(Snapshot)
		return ok && snap.Token == "valid-token" && snap.Profile != nil
	})).Return(nil)
	mockCtx.On("Context").Return(context.Background())

	var installed context.Context
	mockCtx.On("SetContext", mock.Anything).Run(func(args mock.Arguments) {
		installed = args.Get(0).(context.Context)
	}).Return()

	handlerCalled := false
	handler := rg.Protected()(func(c router.Context) error {
		handlerCalled = true
		return nil
	})

	require.NoError(t, handler(mockCtx))
	assert.True(t, handlerCalled)

	require.NotNil(t, installed)
	profile, ok := ProfileFromContext(installed)
	require.True(t, ok)
	assert.Equal(t, "u1", profile.ID)
	snap, ok := SnapshotFromContext(installed)
	require.True(t, ok)
	assert.Equal(t, "valid-token", snap.Token)

	mockCtx.AssertExpectations(t)
}

func TestProtectedRendersPlaceholderWhileChecking(t *testing.T) {
	_, _, rg := newGuardStack(&apiStub{}, NewMemoryStore())
	// session still loading, nothing decided yet

	mockCtx := new(MockContext)
	mockCtx.On("OriginalURL").Return("/bookings")
	mockCtx.On("Render", "loading", mock.MatchedBy(func(bind any) bool {
		vc, ok := bind.(router.ViewContext)
		return ok && vc["path"] == "/bookings"
	})).Return(nil)

	handlerCalled := false
	handler := rg.Protected()(func(c router.Context) error {
		handlerCalled = true
		return nil
	})

	require.NoError(t, handler(mockCtx))
	assert.False(t, handlerCalled)

	mockCtx.AssertExpectations(t)
}

func TestProtectedRemembersBlockedRoute(t *testing.T) {
	ctrl, gateway, rg := newGuardStack(&apiStub{}, NewMemoryStore())
	ctrl.session.finishLoading()

	mockCtx := new(MockContext)
	mockCtx.On("OriginalURL").Return("/cars/42?pickup=2026-09-01")
	mockCtx.On("Method").Return("GET")
	mockCtx.On("Cookie", mock.MatchedBy(func(c *router.Cookie) bool {
		return c.Name == "rejected_route" &&
			c.Value == "/cars/42?pickup=2026-09-01" &&
			c.HTTPOnly &&
			c.Expires.After(time.Now())
	})).Return()
	mockCtx.On("Redirect", "/login", []int{http.StatusFound}).Return(nil)

	handlerCalled := false
	handler := rg.Protected()(func(c router.Context) error {
		handlerCalled = true
		return nil
	})

	require.NoError(t, handler(mockCtx))
	assert.False(t, handlerCalled)

	// the blocked destination is remembered for after login
	path, query, ok := gateway.Intent().Peek()
	require.True(t, ok)
	assert.Equal(t, "/cars/42", path)
	assert.Equal(t, "pickup=2026-09-01", query)

	mockCtx.AssertExpectations(t)
}

func TestProtectedNonGETRedirectsSeeOther(t *testing.T) {
	ctrl, _, rg := newGuardStack(&apiStub{}, NewMemoryStore())
	ctrl.session.finishLoading()

	mockCtx := new(MockContext)
	mockCtx.On("OriginalURL").Return("/bookings")
	mockCtx.On("Method").Return("POST")
	mockCtx.On("Cookie", mock.Anything).Return()
	mockCtx.On("Redirect", "/login", []int{http.StatusSeeOther}).Return(nil)

	handler := rg.Protected()(func(c router.Context) error {
		return nil
	})

	require.NoError(t, handler(mockCtx))
	mockCtx.AssertExpectations(t)
}

func TestOwnerOnlyForbiddenForCustomers(t *testing.T) {
	ctrl, _, rg := newGuardStack(&apiStub{}, NewMemoryStore())
	seedAuthenticated(ctrl, "valid-token", &Profile{ID: "u1", Role: RoleCustomer}, false)

	mockCtx := new(MockContext)
	mockCtx.On("Status", http.StatusForbidden).Return()
	mockCtx.On("Render", "errors/403", mock.MatchedBy(func(bind any) bool {
		vc, ok := bind.(router.ViewContext)
		return ok && vc["home"] == "/"
	})).Return(nil)

	handlerCalled := false
	handler := rg.OwnerOnly()(func(c router.Context) error {
		handlerCalled = true
		return nil
	})

	require.NoError(t, handler(mockCtx))
	assert.False(t, handlerCalled)

	mockCtx.AssertExpectations(t)
}

func TestOwnerOnlyAllowsOwner(t *testing.T) {
	ctrl, _, rg := newGuardStack(&apiStub{}, NewMemoryStore())
	seedAuthenticated(ctrl, "valid-token", &Profile{ID: "u1", Role: RoleOwner}, true)

	mockCtx := new(MockContext)
	mockCtx.On("Locals", "session", mock.Anything).Return(nil)
	mockCtx.On("Context").Return(context.Background())
	mockCtx.On("SetContext", mock.Anything).Return()

	handlerCalled := false
	handler := rg.OwnerOnly()(func(c router.Context) error {
		handlerCalled = true
		return nil
	})

	require.NoError(t, handler(mockCtx))
	assert.True(t, handlerCalled)
}

func TestPublicOnlyRedirectsAuthenticatedVisitor(t *testing.T) {
	ctrl, _, rg := newGuardStack(&apiStub{}, NewMemoryStore())
	seedAuthenticated(ctrl, "valid-token", &Profile{ID: "u1", Role: RoleCustomer}, false)

	mockCtx := new(MockContext)
	mockCtx.On("Redirect", "/", []int{router.StatusSeeOther}).Return(nil)

	handlerCalled := false
	handler := rg.PublicOnly()(func(c router.Context) error {
		handlerCalled = true
		return nil
	})

	require.NoError(t, handler(mockCtx))
	assert.False(t, handlerCalled)

	mockCtx.AssertExpectations(t)
}

func TestPublicOnlyRunsHandlerForAnonymous(t *testing.T) {
	ctrl, _, rg := newGuardStack(&apiStub{}, NewMemoryStore())
	ctrl.session.finishLoading()

	mockCtx := new(MockContext)

	handlerCalled := false
	handler := rg.PublicOnly()(func(c router.Context) error {
		handlerCalled = true
		return nil
	})

	require.NoError(t, handler(mockCtx))
	assert.True(t, handlerCalled)
}

func TestRouteGuardLoginSetsTokenCookie(t *testing.T) {
	api := &apiStub{
		login: func(ctx context.Context, email, password string) (*AuthResult, error) {
			return &AuthResult{Token: "issued-token"}, nil
		},
		currentUser: func(ctx context.Context, token string) (*Profile, error) {
			return &Profile{ID: "u1", Email: "carl@example.com", Role: RoleCustomer}, nil
		},
	}
	ctrl, _, rg := newGuardStack(api, NewMemoryStore())
	ctrl.session.finishLoading()

	mockCtx := new(MockContext)
	mockCtx.On("Context").Return(context.Background())
	mockCtx.On("Cookie", mock.MatchedBy(func(c *router.Cookie) bool {
		return c.Name == "session" && c.Value == "issued-token" && c.HTTPOnly
	})).Return()
	mockCtx.On("Cookies", "rejected_route").Return("")

	dest, err := rg.Login(mockCtx, LoginRequest{
		Identifier: "carl@example.com",
		Password:   "secretpass",
	})

	require.NoError(t, err)
	assert.Equal(t, "/", dest)
	assert.True(t, ctrl.session.Authenticated())

	mockCtx.AssertExpectations(t)
}

func TestRouteGuardLoginPrefersRedirectCookie(t *testing.T) {
	api := &apiStub{
		login: func(ctx context.Context, email, password string) (*AuthResult, error) {
			return &AuthResult{Token: "issued-token"}, nil
		},
		currentUser: func(ctx context.Context, token string) (*Profile, error) {
			return &Profile{ID: "u1", Role: RoleCustomer}, nil
		},
	}
	ctrl, _, rg := newGuardStack(api, NewMemoryStore())
	ctrl.session.finishLoading()

	mockCtx := new(MockContext)
	mockCtx.On("Context").Return(context.Background())
	mockCtx.On("Cookies", "rejected_route").Return("/cars/42")
	mockCtx.On("Cookie", mock.MatchedBy(func(c *router.Cookie) bool {
		return c.Name == "session" && c.Value == "issued-token"
	})).Return()
	// the consumed redirect cookie is deleted
	mockCtx.On("Cookie", mock.MatchedBy(func(c *router.Cookie) bool {
		return c.Name == "rejected_route" && c.Value == "" && c.Expires.Before(time.Now())
	})).Return()

	dest, err := rg.Login(mockCtx, LoginRequest{
		Identifier: "carl@example.com",
		Password:   "secretpass",
	})

	require.NoError(t, err)
	assert.Equal(t, "/cars/42", dest)

	mockCtx.AssertExpectations(t)
}

func TestRouteGuardLoginErrorSetsNoCookie(t *testing.T) {
	api := &apiStub{
		login: func(ctx context.Context, email, password string) (*AuthResult, error) {
			return nil, ErrNotAuthenticated
		},
	}
	ctrl, _, rg := newGuardStack(api, NewMemoryStore())
	ctrl.session.finishLoading()

	mockCtx := new(MockContext)
	mockCtx.On("Context").Return(context.Background())

	dest, err := rg.Login(mockCtx, LoginRequest{
		Identifier: "carl@example.com",
		Password:   "wrongpassword",
	})

	require.Error(t, err)
	assert.Empty(t, dest)
	assert.False(t, ctrl.session.Authenticated())
	mockCtx.AssertNotCalled(t, "Cookie", mock.Anything)
}

func TestRouteGuardLogoutClearsTokenCookie(t *testing.T) {
	ctrl, _, rg := newGuardStack(&apiStub{}, NewMemoryStore())
	seedAuthenticated(ctrl, "valid-token", &Profile{ID: "u1", Role: RoleCustomer}, false)

	mockCtx := new(MockContext)
	mockCtx.On("Context").Return(context.Background())
	mockCtx.On("Cookie", mock.MatchedBy(func(c *router.Cookie) bool {
		return c.Name == "session" && c.Value == "" && c.Expires.Before(time.Now())
	})).Return()

	dest := rg.Logout(mockCtx)

	assert.Equal(t, "/", dest)
	assert.False(t, ctrl.session.Authenticated())

	mockCtx.AssertExpectations(t)
}

func TestRouteGuardRedirectFunctions(t *testing.T) {
	t.Run("SetRedirect records intent and cookie", func(t *testing.T) {
		_, gateway, rg := newGuardStack(&apiStub{}, NewMemoryStore())

		mockCtx := new(MockContext)
		mockCtx.On("OriginalURL").Return("/owner/fleet?page=2")
		mockCtx.On("Cookie", mock.MatchedBy(func(c *router.Cookie) bool {
			return c.Name == "rejected_route" && c.Value == "/owner/fleet?page=2" && c.HTTPOnly
		})).Return()

		rg.SetRedirect(mockCtx)

		path, query, ok := gateway.Intent().Peek()
		require.True(t, ok)
		assert.Equal(t, "/owner/fleet", path)
		assert.Equal(t, "page=2", query)

		mockCtx.AssertExpectations(t)
	})

	t.Run("GetRedirect prefers the intent slot", func(t *testing.T) {
		_, gateway, rg := newGuardStack(&apiStub{}, NewMemoryStore())
		gateway.Intent().Remember("/owner/fleet", "page=2")

		mockCtx := new(MockContext)
		mockCtx.On("Cookie", mock.MatchedBy(func(c *router.Cookie) bool {
			return c.Name == "rejected_route" && c.Value == "" && c.Expires.Before(time.Now())
		})).Return()

		assert.Equal(t, "/owner/fleet?page=2", rg.GetRedirect(mockCtx))

		// the slot is consumed; the next read falls through to the default
		mockCtx.On("Cookies", "rejected_route").Return("")
		assert.Equal(t, "/", rg.GetRedirect(mockCtx))

		mockCtx.AssertExpectations(t)
	})

	t.Run("GetRedirect falls back to the cookie", func(t *testing.T) {
		_, _, rg := newGuardStack(&apiStub{}, NewMemoryStore())

		mockCtx := new(MockContext)
		mockCtx.On("Cookies", "rejected_route").Return("/bookings")
		mockCtx.On("Cookie", mock.MatchedBy(func(c *router.Cookie) bool {
			return c.Name == "rejected_route" && c.Value == "" && c.Expires.Before(time.Now())
		})).Return()

		assert.Equal(t, "/bookings", rg.GetRedirect(mockCtx))

		mockCtx.AssertExpectations(t)
	})

	t.Run("GetRedirect default", func(t *testing.T) {
		_, _, rg := newGuardStack(&apiStub{}, NewMemoryStore())

		mockCtx := new(MockContext)
		mockCtx.On("Cookies", "rejected_route").Return("")

		assert.Equal(t, "/home", rg.GetRedirect(mockCtx, "/home"))
	})
}

func TestLoginPostRedirectsToDestination(t *testing.T) {
	api := &apiStub{
		login: func(ctx context.Context, email, password string) (*AuthResult, error) {
			return &AuthResult{Token: "issued-token"}, nil
		},
		currentUser: func(ctx context.Context, token string) (*Profile, error) {
			return &Profile{ID: "u1", Role: RoleCustomer}, nil
		},
	}
	ctrl, gateway, rg := newGuardStack(api, NewMemoryStore())
	ctrl.session.finishLoading()

	controller := NewAuthController(
		WithControllerGateway(gateway),
		WithControllerGuard(rg),
	)

	mockCtx := new(MockContext)
	mockCtx.On("Context").Return(context.Background())
	mockCtx.On("Bind", mock.Anything).Run(func(args mock.Arguments) {
		payload := args.Get(0).(*LoginRequest)
		payload.Identifier = "carl@example.com"
		payload.Password = "secretpass"
	}).Return(nil)
	mockCtx.On("Cookie", mock.MatchedBy(func(c *router.Cookie) bool {
		return c.Name == "session" && c.Value == "issued-token"
	})).Return()
	mockCtx.On("Cookies", "rejected_route").Return("")
	mockCtx.On("Redirect", "/", []int{router.StatusSeeOther}).Return(nil)

	require.NoError(t, controller.LoginPost(mockCtx))
	assert.True(t, ctrl.session.Authenticated())

	mockCtx.AssertExpectations(t)
}

func TestLoginPostValidationFailureRendersForm(t *testing.T) {
	apiCalled := false
	api := &apiStub{
		login: func(ctx context.Context, email, password string) (*AuthResult, error) {
			apiCalled = true
			return nil, errStubCall
		},
	}
	ctrl, gateway, rg := newGuardStack(api, NewMemoryStore())
	ctrl.session.finishLoading()

	controller := NewAuthController(
		WithControllerGateway(gateway),
		WithControllerGuard(rg),
	)

	mockCtx := new(MockContext)
	mockCtx.On("Bind", mock.Anything).Run(func(args mock.Arguments) {
		payload := args.Get(0).(*LoginRequest)
		payload.Identifier = "not-an-email"
	}).Return(nil)
	mockCtx.On("Render", controller.Views.Login, mock.MatchedBy(func(bind any) bool {
		vc, ok := bind.(router.ViewContext)
		if !ok {
			return false
		}
		_, hasValidation := vc["validation"]
		return hasValidation
	})).Return(nil)

	require.NoError(t, controller.LoginPost(mockCtx))

	assert.False(t, apiCalled)
	assert.False(t, ctrl.session.Authenticated())
	mockCtx.AssertNotCalled(t, "Redirect", mock.Anything, mock.Anything)

	mockCtx.AssertExpectations(t)
}

func TestLoginPostRejectionRendersError(t *testing.T) {
	api := &apiStub{
		login: func(ctx context.Context, email, password string) (*AuthResult, error) {
			return nil, ErrNotAuthenticated
		},
	}
	ctrl, gateway, rg := newGuardStack(api, NewMemoryStore())
	ctrl.session.finishLoading()

	controller := NewAuthController(
		WithControllerGateway(gateway),
		WithControllerGuard(rg),
	)

	mockCtx := new(MockContext)
	mockCtx.On("Context").Return(context.Background())
	mockCtx.On("Bind", mock.Anything).Run(func(args mock.Arguments) {
		payload := args.Get(0).(*LoginRequest)
		payload.Identifier = "carl@example.com"
		payload.Password = "wrongpassword"
	}).Return(nil)
	mockCtx.On("Render", controller.Views.Login, mock.MatchedBy(func(bind any) bool {
		vc, ok := bind.(router.ViewContext)
		if !ok {
			return false
		}
		errs, ok := vc["errors"].(map[string]string)
		return ok && errs["authentication"] != ""
	})).Return(nil)

	require.NoError(t, controller.LoginPost(mockCtx))

	assert.False(t, ctrl.session.Authenticated())
	mockCtx.AssertNotCalled(t, "Redirect", mock.Anything, mock.Anything)

	mockCtx.AssertExpectations(t)
}

func TestRegistrationVerifyCompletesSignup(t *testing.T) {
	api := &apiStub{
		verifyOTP: func(ctx context.Context, email, code string) error {
			return nil
		},
		register: func(ctx context.Context, req RegisterRequest) (*AuthResult, error) {
			if !req.OTPVerified {
				return nil, errStubCall
			}
			return &AuthResult{Token: "minted-token"}, nil
		},
		currentUser: func(ctx context.Context, token string) (*Profile, error) {
			return &Profile{ID: "u1", Email: "new@example.com", Role: RoleCustomer}, nil
		},
	}
	ctrl, gateway, rg := newGuardStack(api, NewMemoryStore())
	ctrl.session.finishLoading()

	controller := NewAuthController(
		WithControllerGateway(gateway),
		WithControllerGuard(rg),
	)

	flow := NewRegistrationFlow("New User", "new@example.com", "", "secretpass123")
	require.NoError(t, flow.markCodeSent())
	controller.flows.putRegistration(flow)

	mockCtx := new(MockContext)
	mockCtx.On("Context").Return(context.Background())
	mockCtx.On("Bind", mock.Anything).Run(func(args mock.Arguments) {
		payload := args.Get(0).(*OTPVerifyPayload)
		payload.Flow = flow.ID().String()
		payload.Code = "123456"
	}).Return(nil)
	mockCtx.On("Cookie", mock.Anything).Return().Maybe()
	mockCtx.On("Cookies", mock.Anything).Return("").Maybe()
	mockCtx.On("Cookies", mock.Anything, mock.Anything).Return("").Maybe()
	mockCtx.On("Locals", mock.Anything, mock.Anything).Return(nil).Maybe()
	mockCtx.On("Redirect", "/", []int{fiber.StatusSeeOther}).Return(nil)

	require.NoError(t, controller.RegistrationVerify(mockCtx))

	assert.True(t, ctrl.session.Authenticated())
	assert.Equal(t, StageCompleted, flow.Stage())

	// the completed flow is dropped from the registry
	_, ok := controller.flows.registration(flow.ID().String())
	assert.False(t, ok)

	mockCtx.AssertExpectations(t)
}

func TestRegistrationVerifyWrongCodeKeepsFlow(t *testing.T) {
	api := &apiStub{
		verifyOTP: func(ctx context.Context, email, code string) error {
			return ErrNotAuthenticated
		},
	}
	ctrl, gateway, rg := newGuardStack(api, NewMemoryStore())
	ctrl.session.finishLoading()

	controller := NewAuthController(
		WithControllerGateway(gateway),
		WithControllerGuard(rg),
	)

	flow := NewRegistrationFlow("New User", "new@example.com", "", "secretpass123")
	require.NoError(t, flow.markCodeSent())
	controller.flows.putRegistration(flow)

	mockCtx := new(MockContext)
	mockCtx.On("Context").Return(context.Background())
	mockCtx.On("Bind", mock.Anything).Run(func(args mock.Arguments) {
		payload := args.Get(0).(*OTPVerifyPayload)
		payload.Flow = flow.ID().String()
		payload.Code = "000000"
	}).Return(nil)
	mockCtx.On("Render", controller.Views.RegisterVerify, mock.MatchedBy(func(bind any) bool {
		vc, ok := bind.(router.ViewContext)
		if !ok {
			return false
		}
		errs, ok := vc["errors"].(map[string]string)
		return ok && errs["code"] != ""
	})).Return(nil)

	require.NoError(t, controller.RegistrationVerify(mockCtx))

	assert.Equal(t, StageCodeSent, flow.Stage())

	// retrying is still possible, the flow stays registered
	_, ok := controller.flows.registration(flow.ID().String())
	assert.True(t, ok)

	mockCtx.AssertExpectations(t)
}

func TestRegistrationVerifyExpiredFlowRestarts(t *testing.T) {
	ctrl, gateway, rg := newGuardStack(&apiStub{}, NewMemoryStore())
	ctrl.session.finishLoading()

	controller := NewAuthController(
		WithControllerGateway(gateway),
		WithControllerGuard(rg),
	)

	mockCtx := new(MockContext)
	mockCtx.On("Bind", mock.Anything).Run(func(args mock.Arguments) {
		payload := args.Get(0).(*OTPVerifyPayload)
		payload.Flow = "c56a4180-65aa-42ec-a945-5fd21dec0538"
		payload.Code = "123456"
	}).Return(nil)
	mockCtx.On("Cookie", mock.Anything).Return().Maybe()
	mockCtx.On("Cookies", mock.Anything).Return("").Maybe()
	mockCtx.On("Cookies", mock.Anything, mock.Anything).Return("").Maybe()
	mockCtx.On("Locals", mock.Anything, mock.Anything).Return(nil).Maybe()
	mockCtx.On("Redirect", controller.Routes.Register, []int{fiber.StatusSeeOther}).Return(nil)

	require.NoError(t, controller.RegistrationVerify(mockCtx))

	mockCtx.AssertExpectations(t)
}
