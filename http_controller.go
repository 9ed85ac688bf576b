package auth

import (
	"errors"
	"net/http"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/gofiber/fiber/v2"
	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// AuthController exposes the authentication flows as a JSON API. It is a
// thin binding layer: every route parses and validates a payload, invokes
// the matching handler, and renders the result. No auth decision lives here.
type AuthController struct {
	Logger         Logger
	Repo           RepositoryManager
	Auther         *Auther
	Register       *RegisterUserHandler
	ResetInit      *InitializePasswordResetHandler
	ResetFinalize  *FinalizePasswordResetHandler
	PasswordUpdate *UpdatePasswordHandler
	VerifyEmail    *VerifyEmailHandler
	VerifyRequest  *RequestEmailVerificationHandler
	AdminUpdate    *AdminUpdateUserHandler
}

type AuthControllerOption func(*AuthController) *AuthController

func WithControllerLogger(logger Logger) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		if logger != nil {
			c.Logger = logger
		}
		return c
	}
}

// NewAuthController wires every flow against one repository manager,
// revocation registry, and mailer.
func NewAuthController(
	repo RepositoryManager,
	auther *Auther,
	registry RevocationRegistry,
	policy PasswordPolicy,
	mailer Mailer,
	cfg Config,
	opts ...AuthControllerOption,
) *AuthController {
	c := &AuthController{
		Logger:         defLogger{},
		Repo:           repo,
		Auther:         auther,
		Register:       NewRegisterUserHandler(repo, policy, mailer, cfg),
		ResetInit:      NewInitializePasswordResetHandler(repo, mailer, cfg),
		ResetFinalize:  NewFinalizePasswordResetHandler(repo, policy, registry),
		PasswordUpdate: NewUpdatePasswordHandler(repo, policy, registry),
		VerifyEmail:    NewVerifyEmailHandler(repo),
		VerifyRequest:  NewRequestEmailVerificationHandler(repo, mailer, cfg),
		AdminUpdate:    NewAdminUpdateUserHandler(repo, registry),
	}

	for _, opt := range opts {
		c = opt(c)
	}

	if c.Repo == nil {
		panic("Missing RepositoryManager in auth controller...")
	}

	if c.Auther == nil {
		panic("Missing Auther in auth controller...")
	}

	return c
}

// RegisterAuthRoutes mounts the authentication API under the given router.
func RegisterAuthRoutes(app fiber.Router, controller *AuthController) {
	app.Post("/register", controller.RegisterPost).Name("auth.register")
	app.Post("/login", controller.LoginPost).Name("auth.login")
	app.Post("/refresh", controller.RefreshPost).Name("auth.refresh")
	app.Post("/logout", controller.LogoutPost).Name("auth.logout")
	app.Post("/logout-all", controller.LogoutAllPost).Name("auth.logout_all")

	app.Post("/password-reset", controller.PasswordResetPost).Name("auth.pwd_reset")
	app.Post("/password-reset/confirm", controller.PasswordResetConfirmPost).Name("auth.pwd_reset_confirm")
	app.Post("/password", controller.PasswordUpdatePost).Name("auth.pwd_update")

	app.Post("/verify-email", controller.VerifyEmailPost).Name("auth.verify")
	app.Post("/verify-email/request", controller.VerifyEmailRequestPost).Name("auth.verify_request")

	app.Get("/me", controller.MeGet).Name("auth.me")
	app.Patch("/users/:id", controller.AdminUpdateUserPatch).Name("auth.admin_update")
	app.Get("/users/:id/activity", controller.AdminListActivityGet).Name("auth.admin_activity")
}

// LoginRequest payload
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Validate will run validation rules
func (r LoginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.Password, validation.Required),
	)
}

func (a *AuthController) LoginPost(c *fiber.Ctx) error {
	payload := new(LoginRequest)
	if err := c.BodyParser(payload); err != nil {
		return a.renderParseError(c, err)
	}

	if err := payload.Validate(); err != nil {
		return a.renderValidationError(c, err)
	}

	client := ClientInfo{IP: c.IP(), UserAgent: c.Get(fiber.HeaderUserAgent)}

	result, err := a.Auther.Login(c.Context(), payload.Email, payload.Password, client)
	if err != nil {
		return a.renderError(c, err)
	}

	return c.JSON(fiber.Map{
		"access_token":  result.AccessToken,
		"refresh_token": result.RefreshToken,
		"expires_in":    result.ExpiresIn,
		"user":          result.User,
	})
}

// RefreshRequest payload
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// Validate will run validation rules
func (r RefreshRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.RefreshToken, validation.Required),
	)
}

func (a *AuthController) RefreshPost(c *fiber.Ctx) error {
	payload := new(RefreshRequest)
	if err := c.BodyParser(payload); err != nil {
		return a.renderParseError(c, err)
	}

	if err := payload.Validate(); err != nil {
		return a.renderValidationError(c, err)
	}

	result, err := a.Auther.Refresh(c.Context(), payload.RefreshToken)
	if err != nil {
		return a.renderError(c, err)
	}

	return c.JSON(fiber.Map{
		"access_token":  result.AccessToken,
		"refresh_token": result.RefreshToken,
		"expires_in":    result.ExpiresIn,
	})
}

func (a *AuthController) LogoutPost(c *fiber.Ctx) error {
	payload := new(RefreshRequest)
	if err := c.BodyParser(payload); err != nil {
		return a.renderParseError(c, err)
	}

	// logout never fails on a bad token, there is nothing to protect
	if err := a.Auther.Logout(c.Context(), payload.RefreshToken); err != nil {
		return a.renderError(c, err)
	}

	return c.JSON(fiber.Map{"success": true})
}

func (a *AuthController) LogoutAllPost(c *fiber.Ctx) error {
	claims, err := a.bearerClaims(c)
	if err != nil {
		return a.renderError(c, err)
	}

	userID, err := uuid.Parse(claims.UserID())
	if err != nil {
		return a.renderError(c, ErrTokenMalformed)
	}

	if err := a.Auther.LogoutEverywhere(c.Context(), userID); err != nil {
		return a.renderError(c, err)
	}

	return c.JSON(fiber.Map{"success": true})
}

// RegistrationCreatePayload is the registration payload
type RegistrationCreatePayload struct {
	Name            string `json:"name"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"password_confirm"`
	Role            string `json:"user_role"`
}

// Validate will validate the payload
func (r RegistrationCreatePayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Name, validation.Required, validation.Length(1, 50)),
		validation.Field(&r.Email, validation.Required, validation.Length(6, 100), is.Email),
		validation.Field(&r.Password, validation.Required, validation.Length(8, 100)),
		validation.Field(
			&r.ConfirmPassword,
			validation.Required,
			validation.By(ValidateStringEquals(r.Password)),
		),
	)
}

func (a *AuthController) RegisterPost(c *fiber.Ctx) error {
	payload := new(RegistrationCreatePayload)
	if err := c.BodyParser(payload); err != nil {
		return a.renderParseError(c, err)
	}

	if err := payload.Validate(); err != nil {
		return a.renderValidationError(c, err)
	}

	var res *RegisterUserResponse
	req := RegisterUserMessage{
		Name:            payload.Name,
		Email:           payload.Email,
		Password:        payload.Password,
		PasswordConfirm: payload.ConfirmPassword,
		OnResponse: func(resp *RegisterUserResponse) {
			res = resp
		},
	}

	// the role request is honored only for an authenticated admin caller,
	// anonymous and non-admin registrations always land on RoleUser
	if requested, ok := ParseRole(payload.Role); ok {
		req.RequestedRole = requested
		if claims, err := a.bearerClaims(c); err == nil {
			req.ActorRole = claims.Role()
		}
	}

	if err := a.Register.Execute(c.Context(), req); err != nil {
		return a.renderError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"user":    res.User,
		"message": "Check your inbox for a verification token",
	})
}

// PasswordResetRequestPayload holds values for starting a password reset
type PasswordResetRequestPayload struct {
	Email string `json:"email"`
}

// Validate will validate the payload
func (r PasswordResetRequestPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
	)
}

func (a *AuthController) PasswordResetPost(c *fiber.Ctx) error {
	payload := new(PasswordResetRequestPayload)
	if err := c.BodyParser(payload); err != nil {
		return a.renderParseError(c, err)
	}

	if err := payload.Validate(); err != nil {
		return a.renderValidationError(c, err)
	}

	req := InitializePasswordResetMessage{Email: payload.Email}
	if err := a.ResetInit.Execute(c.Context(), req); err != nil {
		return a.renderError(c, err)
	}

	// the response never discloses whether the email exists
	return c.JSON(fiber.Map{
		"message": "If that email is registered, a reset token is on its way",
	})
}

// PasswordResetConfirmPayload redeems a reset token
type PasswordResetConfirmPayload struct {
	Token           string `json:"token"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"password_confirm"`
}

// Validate will validate the payload
func (r PasswordResetConfirmPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Token, validation.Required),
		validation.Field(&r.Password, validation.Required, validation.Length(8, 100)),
		validation.Field(
			&r.ConfirmPassword,
			validation.Required,
			validation.By(ValidateStringEquals(r.Password)),
		),
	)
}

func (a *AuthController) PasswordResetConfirmPost(c *fiber.Ctx) error {
	payload := new(PasswordResetConfirmPayload)
	if err := c.BodyParser(payload); err != nil {
		return a.renderParseError(c, err)
	}

	if err := payload.Validate(); err != nil {
		return a.renderValidationError(c, err)
	}

	req := FinalizePasswordResetMessage{
		Token:           payload.Token,
		Password:        payload.Password,
		PasswordConfirm: payload.ConfirmPassword,
	}

	if err := a.ResetFinalize.Execute(c.Context(), req); err != nil {
		return a.renderError(c, err)
	}

	return c.JSON(fiber.Map{"message": "Password updated, please log in again"})
}

// PasswordUpdatePayload changes the credential of a signed-in user
type PasswordUpdatePayload struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
	ConfirmPassword string `json:"password_confirm"`
	RefreshToken    string `json:"refresh_token"`
}

// Validate will validate the payload
func (r PasswordUpdatePayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.CurrentPassword, validation.Required),
		validation.Field(&r.NewPassword, validation.Required, validation.Length(8, 100)),
		validation.Field(
			&r.ConfirmPassword,
			validation.Required,
			validation.By(ValidateStringEquals(r.NewPassword)),
		),
	)
}

func (a *AuthController) PasswordUpdatePost(c *fiber.Ctx) error {
	claims, err := a.bearerClaims(c)
	if err != nil {
		return a.renderError(c, err)
	}

	payload := new(PasswordUpdatePayload)
	if err := c.BodyParser(payload); err != nil {
		return a.renderParseError(c, err)
	}

	if err := payload.Validate(); err != nil {
		return a.renderValidationError(c, err)
	}

	userID, err := uuid.Parse(claims.UserID())
	if err != nil {
		return a.renderError(c, ErrTokenMalformed)
	}

	req := UpdatePasswordMessage{
		UserID:           userID,
		CurrentPassword:  payload.CurrentPassword,
		NewPassword:      payload.NewPassword,
		PasswordConfirm:  payload.ConfirmPassword,
		KeepRefreshToken: payload.RefreshToken,
	}

	if err := a.PasswordUpdate.Execute(c.Context(), req); err != nil {
		return a.renderError(c, err)
	}

	return c.JSON(fiber.Map{"success": true})
}

// VerifyEmailPayload redeems a verification token
type VerifyEmailPayload struct {
	Token string `json:"token"`
}

// Validate will validate the payload
func (r VerifyEmailPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Token, validation.Required),
	)
}

func (a *AuthController) VerifyEmailPost(c *fiber.Ctx) error {
	payload := new(VerifyEmailPayload)
	if err := c.BodyParser(payload); err != nil {
		return a.renderParseError(c, err)
	}

	if err := payload.Validate(); err != nil {
		return a.renderValidationError(c, err)
	}

	var res *VerifyEmailResponse
	req := VerifyEmailMessage{
		Token: payload.Token,
		OnResponse: func(resp *VerifyEmailResponse) {
			res = resp
		},
	}

	if err := a.VerifyEmail.Execute(c.Context(), req); err != nil {
		return a.renderError(c, err)
	}

	return c.JSON(fiber.Map{"user": res.User, "message": "Email verified"})
}

func (a *AuthController) VerifyEmailRequestPost(c *fiber.Ctx) error {
	payload := new(PasswordResetRequestPayload)
	if err := c.BodyParser(payload); err != nil {
		return a.renderParseError(c, err)
	}

	if err := payload.Validate(); err != nil {
		return a.renderValidationError(c, err)
	}

	req := RequestEmailVerificationMessage{Email: payload.Email}
	if err := a.VerifyRequest.Execute(c.Context(), req); err != nil {
		return a.renderError(c, err)
	}

	return c.JSON(fiber.Map{
		"message": "If that email needs verification, a token is on its way",
	})
}

func (a *AuthController) MeGet(c *fiber.Ctx) error {
	claims, err := a.bearerClaims(c)
	if err != nil {
		return a.renderError(c, err)
	}

	userID, err := uuid.Parse(claims.UserID())
	if err != nil {
		return a.renderError(c, ErrTokenMalformed)
	}

	user, err := a.Repo.Users().FindByID(c.Context(), userID)
	if err != nil {
		return a.renderError(c, ErrNotFound)
	}

	if err := a.Repo.Users().TrackActivity(c.Context(), userID); err != nil {
		a.Logger.Warn("failed to track user activity", "user_id", userID.String(), "error", err)
	}

	return c.JSON(fiber.Map{"user": user})
}

func (a *AuthController) AdminListActivityGet(c *fiber.Ctx) error {
	claims, err := a.bearerClaims(c)
	if err != nil {
		return a.renderError(c, err)
	}

	if !CanManageUsers(claims.Role()) {
		return a.renderError(c, ErrForbidden)
	}

	userID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return a.renderValidationError(c, validation.NewError("invalid_id", "id must be a UUID"))
	}

	records, err := a.Repo.LoginActivities().ListByUser(c.Context(), userID, c.QueryInt("limit"))
	if err != nil {
		return a.renderError(c, err)
	}

	return c.JSON(fiber.Map{"activity": records})
}

// AdminUpdateUserPayload is the admin patch payload
type AdminUpdateUserPayload struct {
	Role        *UserRole   `json:"user_role,omitempty"`
	Status      *UserStatus `json:"status,omitempty"`
	Permissions *[]string   `json:"permissions,omitempty"`
}

func (a *AuthController) AdminUpdateUserPatch(c *fiber.Ctx) error {
	claims, err := a.bearerClaims(c)
	if err != nil {
		return a.renderError(c, err)
	}

	userID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return a.renderValidationError(c, validation.NewError("invalid_id", "id must be a UUID"))
	}

	payload := new(AdminUpdateUserPayload)
	if err := c.BodyParser(payload); err != nil {
		return a.renderParseError(c, err)
	}

	var res *AdminUpdateUserResponse
	req := AdminUpdateUserMessage{
		ActorRole:   claims.Role(),
		UserID:      userID,
		Role:        payload.Role,
		Status:      payload.Status,
		Permissions: payload.Permissions,
		OnResponse: func(resp *AdminUpdateUserResponse) {
			res = resp
		},
	}

	if err := a.AdminUpdate.Execute(c.Context(), req); err != nil {
		return a.renderError(c, err)
	}

	return c.JSON(fiber.Map{"user": res.User})
}

func (a *AuthController) bearerClaims(c *fiber.Ctx) (*AccessClaims, error) {
	header := c.Get(fiber.HeaderAuthorization)
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" {
		return nil, goerrors.New("missing or malformed JWT", goerrors.CategoryAuth).
			WithCode(goerrors.CodeUnauthorized)
	}
	return a.Auther.VerifyAccess(token)
}

func (a *AuthController) renderParseError(c *fiber.Ctx, err error) error {
	a.Logger.Error("failed to parse request body", "error", err)
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"error": fiber.Map{"message": "Error parsing body"},
	})
}

func (a *AuthController) renderValidationError(c *fiber.Ctx, err error) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"error": fiber.Map{
			"message":    "Error validating payload",
			"validation": FormatValidationErrorToMap(err),
		},
	})
}

func (a *AuthController) renderError(c *fiber.Ctx, err error) error {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		richErr = goerrors.Wrap(err, goerrors.CategoryInternal, "An unexpected server error occurred").
			WithCode(goerrors.CodeInternal)
	}

	status := richErr.Code
	if status == 0 {
		status = statusForCategory(richErr.Category)
	}

	if status >= http.StatusInternalServerError {
		a.Logger.Error("request failed",
			"error", richErr.Message,
			"category", richErr.Category,
			"path", c.OriginalURL(),
		)
	}

	body := fiber.Map{"message": richErr.Message}
	if richErr.TextCode != "" {
		body["text_code"] = richErr.TextCode
	}
	if len(richErr.Metadata) > 0 {
		body["metadata"] = richErr.Metadata
	}

	return c.Status(status).JSON(fiber.Map{"error": body})
}

func statusForCategory(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryConflict:
		return http.StatusConflict
	case goerrors.CategoryValidation, goerrors.CategoryBadInput:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// ValidateStringEquals will check that both values match
func ValidateStringEquals(str string) validation.RuleFunc {
	return func(value any) error {
		s, _ := value.(string)
		if s != str {
			return errors.New("values must match")
		}
		return nil
	}
}

// FormatValidationErrorToMap flattens ozzo validation errors into a
// field-to-message map suitable for a JSON response.
func FormatValidationErrorToMap(err error) map[string]string {
	out := map[string]string{}
	if err == nil {
		return out
	}

	var fieldErrs validation.Errors
	if errors.As(err, &fieldErrs) {
		for field, fieldErr := range fieldErrs {
			if fieldErr != nil {
				out[field] = fieldErr.Error()
			}
		}
		return out
	}

	out["payload"] = err.Error()
	return out
}
