package handlers

import (
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/liorefaelbe/BePay-BankApp/libs/auth"
	"github.com/liorefaelbe/BePay-BankApp/libs/health"
	"github.com/liorefaelbe/BePay-BankApp/libs/httpmiddleware"
	"github.com/liorefaelbe/BePay-BankApp/libs/metrics"
	"github.com/liorefaelbe/BePay-BankApp/libs/trace"

	"github.com/liorefaelbe/BePay-BankApp/internal/rate"
)

type RouterDeps struct {
	Logger      *slog.Logger
	ServiceName string
	Registry    *prometheus.Registry
	Health      *health.Manager

	Auth     *AuthHandler
	Transfer *TransferHandler
	User     *UserHandler
	WS       *WSHandler

	JWTSecret []byte

	AuthLimiter     rate.Limiter
	OTPLimiter      rate.Limiter
	TransferLimiter rate.Limiter
}

// NewRouter wires middleware and routes. Rate limits are layered: every
// auth endpoint shares the auth limiter, and the two OTP-issuing endpoints
// carry the tighter OTP limiter on top.
func NewRouter(deps RouterDeps) *gin.Engine {
	router := gin.New()
	router.Use(
		httpmiddleware.RequestID(),
		httpmiddleware.Logger(deps.Logger),
		httpmiddleware.Recovery(deps.Logger),
		trace.Middleware(deps.ServiceName),
	)

	router.GET("/healthz", health.LivenessHandler)
	router.GET("/readyz", health.ReadinessHandler(deps.Health))
	router.GET("/metrics", gin.WrapH(metrics.Handler(deps.Registry)))

	authLimit := rate.Middleware(deps.AuthLimiter, deps.Logger, "too many auth attempts, try again later")
	otpLimit := rate.Middleware(deps.OTPLimiter, deps.Logger, "too many verification codes requested")
	transferLimit := rate.Middleware(deps.TransferLimiter, deps.Logger, "too many transfers, slow down")

	authGroup := router.Group("/auth", authLimit)
	{
		authGroup.POST("/register", otpLimit, deps.Auth.Register)
		authGroup.POST("/verify-otp", deps.Auth.VerifyOTP)
		authGroup.POST("/resend-otp", otpLimit, deps.Auth.ResendOTP)
		authGroup.POST("/login", deps.Auth.Login)
		authGroup.POST("/forgot-password", deps.Auth.ForgotPassword)
		authGroup.POST("/reset-password", deps.Auth.ResetPassword)
	}

	authed := router.Group("/", auth.Middleware(deps.JWTSecret))
	{
		authed.POST("/transfer", transferLimit, deps.Transfer.Transfer)
		authed.GET("/transactions/history", deps.Transfer.History)
		authed.GET("/me", deps.User.Me)
		authed.GET("/dashboard", deps.User.Dashboard)
	}

	router.GET("/ws", deps.WS.Serve)

	return router
}
