package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"net/url"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/liorefaelbe/BePay-BankApp/internal/credential"
	"github.com/liorefaelbe/BePay-BankApp/internal/delivery"
	"github.com/liorefaelbe/BePay-BankApp/internal/security"
	"github.com/liorefaelbe/BePay-BankApp/internal/storage"
)

// AccountStore is the slice of storage the auth flows need.
type AccountStore interface {
	UpsertUnverifiedAccount(ctx context.Context, email, phone, passwordHash string) error
	GetAccountByEmail(ctx context.Context, email string) (*storage.Account, error)
	MarkVerified(ctx context.Context, email string, initialBalance decimal.Decimal) (*storage.Account, error)
	UpdatePassword(ctx context.Context, email, passwordHash string) error
}

type AuthConfig struct {
	JWTSecret      []byte
	JWTIssuer      string
	AccessTokenTTL time.Duration
	Argon2         security.Argon2Params
	ResetTTL       time.Duration

	// DevShowOTP echoes the issued code in API responses. Demo convenience,
	// must be off when a real mail provider is configured.
	DevShowOTP      bool
	FrontendBaseURL string
}

type AuthHandler struct {
	store  AccountStore
	creds  credential.Store
	sender delivery.Sender
	cfg    AuthConfig
	logger *slog.Logger

	now            func() time.Time
	initialBalance func() decimal.Decimal
}

func NewAuthHandler(store AccountStore, creds credential.Store, sender delivery.Sender, cfg AuthConfig, logger *slog.Logger) *AuthHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthHandler{
		store:  store,
		creds:  creds,
		sender: sender,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
		// Demo accounts start with a random balance so transfers work out
		// of the box.
		initialBalance: func() decimal.Decimal {
			return decimal.NewFromInt(int64(rand.IntN(5000)) + 1000)
		},
	}
}

type accountResponse struct {
	Email   string          `json:"email"`
	Balance decimal.Decimal `json:"balance"`
}

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Phone    string `json:"phone"`
}

func (h *AuthHandler) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid request body")
		return
	}

	email := normalizeEmail(req.Email)
	switch {
	case !validEmail(email):
		respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid email")
		return
	case !validPassword(req.Password):
		respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "password must be 8-100 characters")
		return
	case !validPhone(req.Phone):
		respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid phone number")
		return
	}

	hash, err := security.HashPassword(req.Password, h.cfg.Argon2)
	if err != nil {
		h.logger.Error("hash password failed", "error", err)
		respondError(c, http.StatusInternalServerError, "INTERNAL", "registration failed")
		return
	}

	if err := h.store.UpsertUnverifiedAccount(c.Request.Context(), email, req.Phone, hash); err != nil {
		if errors.Is(err, storage.ErrEmailTaken) {
			respondError(c, http.StatusBadRequest, "EMAIL_TAKEN", "email already registered")
			return
		}
		h.logger.Error("upsert account failed", "error", err)
		respondError(c, http.StatusInternalServerError, "INTERNAL", "registration failed")
		return
	}

	h.issueAndDeliverOTP(c, email, req.Phone, http.StatusCreated, "Verification code sent")
}

func (h *AuthHandler) issueAndDeliverOTP(c *gin.Context, email, phone string, status int, message string) {
	code, ttl, err := h.creds.IssueOTP(c.Request.Context(), email)
	if err != nil {
		h.logger.Error("issue otp failed", "error", err)
		respondError(c, http.StatusInternalServerError, "INTERNAL", "could not issue verification code")
		return
	}

	deliveredTo, err := h.sender.SendOTP(c.Request.Context(), email, phone, code, ttl)
	if err != nil {
		// The code is issued either way; dev disclosure still lets the flow
		// complete.
		h.logger.Error("otp delivery failed", "email", delivery.MaskEmail(email), "error", err)
		deliveredTo = delivery.DeliveredTo{Email: delivery.MaskEmail(email)}
	}

	resp := gin.H{
		"message":     message,
		"email":       email,
		"deliveredTo": deliveredTo,
	}
	if h.cfg.DevShowOTP {
		resp["otp"] = code
	}
	c.JSON(status, resp)
}

type verifyOTPRequest struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

func (h *AuthHandler) VerifyOTP(c *gin.Context) {
	var req verifyOTPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid request body")
		return
	}
	email := normalizeEmail(req.Email)

	account, err := h.store.GetAccountByEmail(c.Request.Context(), email)
	if err != nil {
		if errors.Is(err, storage.ErrAccountNotFound) {
			respondError(c, http.StatusNotFound, "ACCOUNT_NOT_FOUND", "account not found")
			return
		}
		h.logger.Error("account lookup failed", "error", err)
		respondError(c, http.StatusInternalServerError, "INTERNAL", "verification failed")
		return
	}
	if account.Verified {
		respondError(c, http.StatusConflict, "ALREADY_VERIFIED", "account already verified")
		return
	}

	if err := h.creds.VerifyOTP(c.Request.Context(), email, req.Code); err != nil {
		switch {
		case errors.Is(err, credential.ErrCodeExpired):
			respondError(c, http.StatusBadRequest, "OTP_EXPIRED", "verification code expired")
		case errors.Is(err, credential.ErrCodeInvalid):
			respondError(c, http.StatusBadRequest, "OTP_INVALID", "invalid verification code")
		default:
			h.logger.Error("verify otp failed", "error", err)
			respondError(c, http.StatusInternalServerError, "INTERNAL", "verification failed")
		}
		return
	}

	account, err = h.store.MarkVerified(c.Request.Context(), email, h.initialBalance())
	if err != nil {
		if errors.Is(err, storage.ErrAlreadyVerified) {
			respondError(c, http.StatusConflict, "ALREADY_VERIFIED", "account already verified")
			return
		}
		h.logger.Error("mark verified failed", "error", err)
		respondError(c, http.StatusInternalServerError, "INTERNAL", "verification failed")
		return
	}

	token, err := security.NewAccessToken(email, true, h.cfg.JWTSecret, h.cfg.AccessTokenTTL, h.now(), h.cfg.JWTIssuer)
	if err != nil {
		h.logger.Error("sign token failed", "error", err)
		respondError(c, http.StatusInternalServerError, "INTERNAL", "verification failed")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Account verified",
		"token":   token,
		"account": accountResponse{Email: account.Email, Balance: account.Balance},
	})
}

type resendOTPRequest struct {
	Email string `json:"email"`
}

func (h *AuthHandler) ResendOTP(c *gin.Context) {
	var req resendOTPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid request body")
		return
	}
	email := normalizeEmail(req.Email)

	account, err := h.store.GetAccountByEmail(c.Request.Context(), email)
	if err != nil {
		if errors.Is(err, storage.ErrAccountNotFound) {
			respondError(c, http.StatusNotFound, "ACCOUNT_NOT_FOUND", "account not found")
			return
		}
		h.logger.Error("account lookup failed", "error", err)
		respondError(c, http.StatusInternalServerError, "INTERNAL", "could not resend code")
		return
	}
	if account.Verified {
		respondError(c, http.StatusConflict, "ALREADY_VERIFIED", "account already verified")
		return
	}

	h.issueAndDeliverOTP(c, email, account.Phone, http.StatusOK, "Verification code sent")
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid request body")
		return
	}
	email := normalizeEmail(req.Email)

	account, err := h.store.GetAccountByEmail(c.Request.Context(), email)
	if err != nil {
		if errors.Is(err, storage.ErrAccountNotFound) {
			respondError(c, http.StatusUnauthorized, "INVALID_CREDENTIALS", "invalid email or password")
			return
		}
		h.logger.Error("account lookup failed", "error", err)
		respondError(c, http.StatusInternalServerError, "INTERNAL", "login failed")
		return
	}

	ok, err := security.VerifyPassword(req.Password, account.PasswordHash)
	if err != nil || !ok {
		respondError(c, http.StatusUnauthorized, "INVALID_CREDENTIALS", "invalid email or password")
		return
	}
	if !account.Verified {
		respondError(c, http.StatusUnauthorized, "NOT_VERIFIED", "account not verified")
		return
	}

	token, err := security.NewAccessToken(email, true, h.cfg.JWTSecret, h.cfg.AccessTokenTTL, h.now(), h.cfg.JWTIssuer)
	if err != nil {
		h.logger.Error("sign token failed", "error", err)
		respondError(c, http.StatusInternalServerError, "INTERNAL", "login failed")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Logged in",
		"token":   token,
		"account": accountResponse{Email: account.Email, Balance: account.Balance},
	})
}

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

// ForgotPassword always answers with the same message so the endpoint
// cannot be used to probe which emails are registered.
func (h *AuthHandler) ForgotPassword(c *gin.Context) {
	var req forgotPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid request body")
		return
	}
	email := normalizeEmail(req.Email)

	genericResponse := gin.H{"message": "If the email exists, a reset link was sent"}

	if _, err := h.store.GetAccountByEmail(c.Request.Context(), email); err != nil {
		if !errors.Is(err, storage.ErrAccountNotFound) {
			h.logger.Error("account lookup failed", "error", err)
		}
		c.JSON(http.StatusOK, genericResponse)
		return
	}

	rawToken, ttl, err := h.creds.IssueResetToken(c.Request.Context(), email)
	if err != nil {
		h.logger.Error("issue reset token failed", "error", err)
		c.JSON(http.StatusOK, genericResponse)
		return
	}

	link := fmt.Sprintf("%s/reset-password?token=%s", h.cfg.FrontendBaseURL, url.QueryEscape(rawToken))
	if err := h.sender.SendPasswordReset(c.Request.Context(), email, link, ttl); err != nil {
		h.logger.Error("reset delivery failed", "email", delivery.MaskEmail(email), "error", err)
	}

	c.JSON(http.StatusOK, genericResponse)
}

type resetPasswordRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"newPassword"`
}

func (h *AuthHandler) ResetPassword(c *gin.Context) {
	var req resetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid request body")
		return
	}
	if !validPassword(req.NewPassword) {
		respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "password must be 8-100 characters")
		return
	}

	email, err := h.creds.ConsumeResetToken(c.Request.Context(), req.Token)
	if err != nil {
		switch {
		case errors.Is(err, credential.ErrCodeExpired):
			respondError(c, http.StatusBadRequest, "TOKEN_EXPIRED", "reset token expired")
		case errors.Is(err, credential.ErrCodeInvalid):
			respondError(c, http.StatusBadRequest, "TOKEN_INVALID", "invalid reset token")
		default:
			h.logger.Error("consume reset token failed", "error", err)
			respondError(c, http.StatusInternalServerError, "INTERNAL", "reset failed")
		}
		return
	}

	hash, err := security.HashPassword(req.NewPassword, h.cfg.Argon2)
	if err != nil {
		h.logger.Error("hash password failed", "error", err)
		respondError(c, http.StatusInternalServerError, "INTERNAL", "reset failed")
		return
	}

	if err := h.store.UpdatePassword(c.Request.Context(), email, hash); err != nil {
		h.logger.Error("update password failed", "error", err)
		respondError(c, http.StatusInternalServerError, "INTERNAL", "reset failed")
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Password updated"})
}
