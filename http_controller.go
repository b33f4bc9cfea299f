package session

import (
	"fmt"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
	"github.com/goliatone/go-router/flash"
	"github.com/nyaruka/phonenumbers"
)

const (
	stageKey = "stage"
	flowKey  = "flow"
	emailKey = "email"
)

// RegisterAuthRoutes mounts the storefront auth surface: login, logout,
// registration with OTP verification, and the three password-reset stages.
func RegisterAuthRoutes[T any](app router.Router[T], opts ...AuthControllerOption) {

	controller := NewAuthController(opts...)

	app.
		Get(controller.Routes.Login,
			controller.LoginShow,
		).
		SetName("sign-in.get")

	app.
		Post(
			controller.Routes.Login,
			controller.LoginPost,
		).
		SetName("sign-in.post")

	app.Get(controller.Routes.Logout, controller.LogOut).SetName("sign-out.get")

	app.Get(controller.Routes.Register, controller.RegistrationShow).
		SetName("register.get")
	app.Post(controller.Routes.Register, controller.RegistrationCreate).
		SetName("register.post")
	app.Post(controller.Routes.RegisterVerify, controller.RegistrationVerify).
		SetName("register-verify.post")

	app.Get(controller.Routes.PasswordReset, controller.PasswordResetGet).
		SetName("pwd-reset.get")
	app.Post(controller.Routes.PasswordReset, controller.PasswordResetPost).
		SetName("pwd-reset.post")
	app.Post(controller.Routes.PasswordResetVerify, controller.PasswordResetVerify).
		SetName("pwd-reset-verify.post")
	app.Post(controller.Routes.PasswordResetExecute, controller.PasswordResetExecute).
		SetName("pwd-reset-do.post")
}

type AuthControllerRoutes struct {
	Login                string
	Logout               string
	Register             string
	RegisterVerify       string
	PasswordReset        string
	PasswordResetVerify  string
	PasswordResetExecute string
}

type AuthControllerViews struct {
	Login          string
	Register       string
	RegisterVerify string
	PasswordReset  string
}

type AuthController struct {
	Debug        bool
	Logger       Logger
	PhoneRegion  string
	Routes       *AuthControllerRoutes
	Views        *AuthControllerViews
	Gateway      *Gateway
	Guard        *RouteGuard
	ErrorHandler router.ErrorHandler
	flows        *flowRegistry
}

type AuthControllerOption func(*AuthController) *AuthController

// WithControllerGateway wires the auth gateway.
func WithControllerGateway(g *Gateway) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Gateway = g
		return c
	}
}

// WithControllerGuard wires the HTTP route guard.
func WithControllerGuard(rg *RouteGuard) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Guard = rg
		return c
	}
}

// WithControllerLogger overrides the controller logger.
func WithControllerLogger(logger Logger) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		if logger != nil {
			c.Logger = logger
		}
		return c
	}
}

// WithControllerDebug enables request payload dumps.
func WithControllerDebug(debug bool) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Debug = debug
		return c
	}
}

func NewAuthController(opts ...AuthControllerOption) *AuthController {
	c := &AuthController{
		Logger:       defLogger{},
		ErrorHandler: defaultControllerErrHandler,
		PhoneRegion:  "US",
		Routes: &AuthControllerRoutes{
			Login:                "/login",
			Logout:               "/logout",
			Register:             "/register",
			RegisterVerify:       "/register/verify",
			PasswordReset:        "/password-reset",
			PasswordResetVerify:  "/password-reset/verify",
			PasswordResetExecute: "/password-reset/new",
		},
		Views: &AuthControllerViews{
			Login:          "login",
			Register:       "register",
			RegisterVerify: "register_verify",
			PasswordReset:  "password_reset",
		},
		flows: newFlowRegistry(0),
	}

	for _, opt := range opts {
		c = opt(c)
	}

	if c.Gateway == nil {
		panic("Missing Gateway in auth controller...")
	}

	if c.Guard == nil {
		panic("Missing RouteGuard in auth controller...")
	}

	return c
}

func defaultControllerErrHandler(c router.Context, err error) error {
	return c.Status(fiber.StatusBadRequest).Render("errors/400", router.ViewContext{
		"error": err.Error(),
	})
}

func (a *AuthController) LoginShow(ctx router.Context) error {
	return ctx.Render(a.Views.Login, router.ViewContext{
		"errors": nil,
		"record": nil,
	})
}

// LoginRequest payload
type LoginRequest struct {
	Identifier   string `form:"identifier" json:"identifier"`
	Password     string `form:"password" json:"password"`
	AdminConsole bool   `form:"admin_console" json:"admin_console"`
}

// GetIdentifier returns the identifier
func (r LoginRequest) GetIdentifier() string {
	return r.Identifier
}

// GetPassword will return the password
func (r LoginRequest) GetPassword() string {
	return r.Password
}

// GetAdminConsole reports whether the owner console endpoint should be used
func (r LoginRequest) GetAdminConsole() bool {
	return r.AdminConsole
}

// Validate will run validation rules
func (r LoginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(
			&r.Identifier,
			validation.Required,
			is.Email,
		),
		validation.Field(
			&r.Password,
			validation.Required,
		),
	)
}

func (a *AuthController) LoginPost(ctx router.Context) error {
	payload := new(LoginRequest)
	errors := map[string]string{}

	if err := ctx.Bind(payload); err != nil {
		return a.ErrorHandler(ctx, err)
	}

	if err := payload.Validate(); err != nil {
		return ctx.Render(a.Views.Login, router.ViewContext{
			"record":     payload,
			"validation": FormatValidationErrorToMap(err),
		})
	}

	if a.Debug {
		fmt.Println("======= AUTH LOGIN ======")
		fmt.Println(print.MaybePrettyJSON(payload))
		fmt.Println("=========================")
	}

	dest, err := a.Guard.Login(ctx, payload)
	if err != nil {
		errors["authentication"] = UserMessage(err)
		return ctx.Render(a.Views.Login, router.ViewContext{
			"errors":  errors,
			"payload": payload,
		})
	}

	return ctx.Redirect(dest, router.StatusSeeOther)
}

func (a *AuthController) LogOut(ctx router.Context) error {
	dest := a.Guard.Logout(ctx)
	return ctx.Redirect(dest, router.StatusTemporaryRedirect)
}

func (a *AuthController) RegistrationShow(ctx router.Context) error {
	return ctx.Render(a.Views.Register, router.ViewContext{
		"errors": map[string]string{},
		"record": RegistrationCreatePayload{},
	})
}

// RegistrationCreatePayload is the form payload
type RegistrationCreatePayload struct {
	Name            string `form:"name" json:"name"`
	Email           string `form:"email" json:"email"`
	Phone           string `form:"phone_number" json:"phone_number"`
	Password        string `form:"password" json:"password"`
	ConfirmPassword string `form:"confirm_password" json:"confirm_password"`
}

// Validate will validate the payload
func (r RegistrationCreatePayload) Validate(region string) error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Name, validation.Required, validation.Length(1, 200)),
		validation.Field(&r.Email, validation.Required, validation.Length(6, 100), is.Email),
		validation.Field(&r.Phone, validation.By(ValidPhoneNumber(region))),
		validation.Field(&r.Password, validation.Required, validation.Length(10, 100)),
		validation.Field(
			&r.ConfirmPassword,
			validation.Required,
			validation.Length(10, 100),
			validation.By(ValidateStringEquals(r.Password)),
		),
	)
}

func (a *AuthController) RegistrationCreate(ctx router.Context) error {
	payload := new(RegistrationCreatePayload)

	if err := ctx.Bind(payload); err != nil {
		errors := map[string]string{}
		errors["form"] = "Failed to parse form"
		a.Logger.Error("register user parse payload: ", "error", err)
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": "Error parsing body",
		}).Status(fiber.StatusBadRequest).Render(a.Views.Register, router.ViewContext{
			"errors": errors,
			"record": payload,
		})
	}

	if err := payload.Validate(a.PhoneRegion); err != nil {
		errors := FormatValidationErrorToMap(err)
		a.Logger.Error("register user validate payload: ", "error", err)

		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": "Error validating payload",
		}).Render(a.Views.Register, router.ViewContext{
			"record":     payload,
			"validation": errors,
		})
	}

	flow := NewRegistrationFlow(payload.Name, payload.Email, payload.Phone, payload.Password)

	if err := a.Gateway.SendRegistrationCode(ctx.Context(), flow); err != nil {
		a.Logger.Error("registration code send error: ", "error", err)
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  UserMessage(err),
			"system_message": "Could not send the verification code",
		}).Render(a.Views.Register, router.ViewContext{
			"record": payload,
			"errors": []string{UserMessage(err)},
		})
	}

	a.flows.putRegistration(flow)

	return ctx.Render(a.Views.RegisterVerify, router.ViewContext{
		"errors": map[string]string{},
		"signup": map[string]string{
			stageKey: flow.Stage(),
			flowKey:  flow.ID().String(),
			emailKey: flow.Email(),
		},
	})
}

// OTPVerifyPayload carries the emailed code back with its flow
type OTPVerifyPayload struct {
	Flow string `form:"flow" json:"flow"`
	Code string `form:"code" json:"code"`
}

// Validate will run validation rules
func (r OTPVerifyPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Flow, validation.Required, is.UUID),
		validation.Field(&r.Code, validation.Required, validation.Length(4, 8), is.Digit),
	)
}

func (a *AuthController) RegistrationVerify(ctx router.Context) error {
	payload := new(OTPVerifyPayload)

	if err := ctx.Bind(payload); err != nil {
		return a.ErrorHandler(ctx, err)
	}

	if err := payload.Validate(); err != nil {
		return ctx.Render(a.Views.RegisterVerify, router.ViewContext{
			"record":     payload,
			"validation": FormatValidationErrorToMap(err),
		})
	}

	flow, ok := a.flows.registration(payload.Flow)
	if !ok {
		return flash.WithError(ctx, router.ViewContext{
			"system_message": "Signup session expired, please start over",
		}).Redirect(a.Routes.Register, fiber.StatusSeeOther)
	}

	if err := a.Gateway.VerifyRegistrationCode(ctx.Context(), flow, payload.Code); err != nil {
		a.Logger.Error("registration code verify error: ", "error", err)
		return ctx.Render(a.Views.RegisterVerify, router.ViewContext{
			"errors": map[string]string{"code": UserMessage(err)},
			"signup": map[string]string{
				stageKey: flow.Stage(),
				flowKey:  flow.ID().String(),
				emailKey: flow.Email(),
			},
		})
	}

	dest, err := a.Gateway.Register(ctx.Context(), flow)
	if err != nil {
		a.Logger.Error("registration submit error: ", "error", err)
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  UserMessage(err),
			"system_message": "Registration failed",
		}).Redirect(a.Routes.Register, fiber.StatusSeeOther)
	}

	a.flows.dropRegistration(payload.Flow)

	return flash.WithSuccess(ctx, router.ViewContext{
		"system_message": "Successful user registration",
	}).Redirect(dest, fiber.StatusSeeOther)
}

func (a *AuthController) PasswordResetGet(ctx router.Context) error {
	return ctx.Render(a.Views.PasswordReset, router.ViewContext{
		"errors": nil,
		"reset": map[string]string{
			stageKey: StageInit,
		},
	})
}

// PasswordResetRequestPayload holds values for password reset
type PasswordResetRequestPayload struct {
	Email string `form:"email" json:"email"`
	Stage string `form:"stage" json:"stage"`
}

// Validate will validate the payload
func (r PasswordResetRequestPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(
			&r.Stage,
			validation.Required,
			validation.In(
				StageInit,
			),
		),
		validation.Field(
			&r.Email,
			validation.Required,
			is.Email,
		),
	)
}

func (a *AuthController) PasswordResetPost(ctx router.Context) error {
	errors := map[string]string{}
	payload := new(PasswordResetRequestPayload)

	if err := ctx.Bind(payload); err != nil {
		errors["form"] = "Failed to parse form"
		a.Logger.Error("password reset parse payload: ", "error", err)
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": "Error parsing body",
		}).Status(fiber.StatusBadRequest).Render(a.Views.PasswordReset, router.ViewContext{
			"errors": errors,
			"record": payload,
		})
	}

	if err := payload.Validate(); err != nil {
		a.Logger.Error("password reset validate payload: ", "error", err)
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": "Error validating payload",
		}).Render(a.Views.PasswordReset, router.ViewContext{
			"record":     payload,
			"validation": FormatValidationErrorToMap(err),
		})
	}

	flow := NewPasswordResetFlow(payload.Email)

	if err := a.Gateway.StartPasswordReset(ctx.Context(), flow); err != nil {
		a.Logger.Error("password reset start error: ", "error", err)
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  UserMessage(err),
			"system_message": "Could not start the password reset",
		}).Render(a.Views.PasswordReset, router.ViewContext{
			"record": payload,
			"errors": []string{UserMessage(err)},
		})
	}

	a.flows.putReset(flow)

	if a.Debug {
		fmt.Println("================")
		fmt.Println(print.MaybePrettyJSON(payload))
		fmt.Println("================")
	}

	return ctx.Render(a.Views.PasswordReset, router.ViewContext{
		"errors": errors,
		"reset": map[string]string{
			stageKey: flow.Stage(),
			flowKey:  flow.ID().String(),
			emailKey: flow.Email(),
		},
	})
}

// PasswordResetVerifyPayload carries the emailed code for stage two
type PasswordResetVerifyPayload struct {
	Flow string `form:"flow" json:"flow"`
	Code string `form:"code" json:"code"`
}

// Validate will run validation rules
func (r PasswordResetVerifyPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Flow, validation.Required, is.UUID),
		validation.Field(&r.Code, validation.Required, validation.Length(4, 8), is.Digit),
	)
}

func (a *AuthController) PasswordResetVerify(ctx router.Context) error {
	payload := new(PasswordResetVerifyPayload)

	if err := ctx.Bind(payload); err != nil {
		return a.ErrorHandler(ctx, err)
	}

	if err := payload.Validate(); err != nil {
		return ctx.Render(a.Views.PasswordReset, router.ViewContext{
			"record":     payload,
			"validation": FormatValidationErrorToMap(err),
		})
	}

	flow, ok := a.flows.reset(payload.Flow)
	if !ok {
		return flash.WithError(ctx, router.ViewContext{
			"system_message": "Reset session expired, please start over",
		}).Redirect(a.Routes.PasswordReset, fiber.StatusSeeOther)
	}

	if err := a.Gateway.VerifyPasswordResetCode(ctx.Context(), flow, payload.Code); err != nil {
		a.Logger.Error("password reset verify error: ", "error", err)
		return ctx.Render(a.Views.PasswordReset, router.ViewContext{
			"errors": map[string]string{"code": UserMessage(err)},
			"reset": map[string]string{
				stageKey: flow.Stage(),
				flowKey:  flow.ID().String(),
				emailKey: flow.Email(),
			},
		})
	}

	return ctx.Render(a.Views.PasswordReset, router.ViewContext{
		"errors": map[string]string{},
		"reset": map[string]string{
			stageKey: flow.Stage(),
			flowKey:  flow.ID().String(),
			emailKey: flow.Email(),
		},
	})
}

// PasswordResetExecutePayload submits the new password
type PasswordResetExecutePayload struct {
	Flow            string `form:"flow" json:"flow"`
	Password        string `form:"password" json:"password"`
	ConfirmPassword string `form:"confirm_password" json:"confirm_password"`
}

// Validate will run validation rules
func (r PasswordResetExecutePayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Flow, validation.Required, is.UUID),
		validation.Field(&r.Password, validation.Required, validation.Length(10, 100)),
		validation.Field(
			&r.ConfirmPassword,
			validation.Required,
			validation.Length(10, 100),
			validation.By(ValidateStringEquals(r.Password)),
		),
	)
}

func (a *AuthController) PasswordResetExecute(ctx router.Context) error {
	payload := new(PasswordResetExecutePayload)

	if err := ctx.Bind(payload); err != nil {
		return a.ErrorHandler(ctx, err)
	}

	if err := payload.Validate(); err != nil {
		return ctx.Render(a.Views.PasswordReset, router.ViewContext{
			"record":     payload,
			"validation": FormatValidationErrorToMap(err),
		})
	}

	flow, ok := a.flows.reset(payload.Flow)
	if !ok {
		return flash.WithError(ctx, router.ViewContext{
			"system_message": "Reset session expired, please start over",
		}).Redirect(a.Routes.PasswordReset, fiber.StatusSeeOther)
	}

	if err := a.Gateway.CompletePasswordReset(ctx.Context(), flow, payload.Password); err != nil {
		a.Logger.Error("password reset execute error: ", "error", err)

		// stage errors route back to the verify step, everything else retries
		return ctx.Render(a.Views.PasswordReset, router.ViewContext{
			"errors": map[string]string{"reset": UserMessage(err)},
			"reset": map[string]string{
				stageKey: flow.Stage(),
				flowKey:  flow.ID().String(),
				emailKey: flow.Email(),
			},
		})
	}

	a.flows.dropReset(payload.Flow)

	return flash.WithSuccess(ctx, router.ViewContext{
		"system_message": "Password updated, you can sign in now",
	}).Redirect(a.Routes.Login, fiber.StatusSeeOther)
}

// FormatValidationErrorToMap flattens ozzo validation errors into a
// field→message map for view rendering.
func FormatValidationErrorToMap(err error) map[string]string {
	out := map[string]string{}
	if err == nil {
		return out
	}

	if verrs, ok := err.(validation.Errors); ok {
		for field, ferr := range verrs {
			if ferr != nil {
				out[field] = ferr.Error()
			}
		}
		return out
	}

	out["error"] = err.Error()
	return out
}

// ValidateStringEquals builds a rule asserting the field equals str.
func ValidateStringEquals(str string) validation.RuleFunc {
	return func(value interface{}) error {
		s, _ := value.(string)
		if s != str {
			return fmt.Errorf("values do not match")
		}
		return nil
	}
}

// ValidPhoneNumber builds a rule that accepts empty values and otherwise
// requires a parseable, valid number for the given region.
func ValidPhoneNumber(region string) validation.RuleFunc {
	return func(value interface{}) error {
		s, _ := value.(string)
		if s == "" {
			return nil
		}

		num, err := phonenumbers.Parse(s, region)
		if err != nil {
			return fmt.Errorf("invalid phone number: %v", err)
		}

		if !phonenumbers.IsValidNumber(num) {
			return fmt.Errorf("invalid phone number")
		}

		return nil
	}
}
