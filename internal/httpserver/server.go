package httpserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/afrikoin/likeledger/internal/auth"
	"github.com/afrikoin/likeledger/pkg/audit"
	"github.com/afrikoin/likeledger/pkg/credits"
	"github.com/afrikoin/likeledger/pkg/wallet"
)

// Config carries the settings the HTTP facade needs.
type Config struct {
	ListenAddr     string
	AllowedOrigins []string
}

// Server exposes the ledger services over JSON HTTP.
type Server struct {
	logger      *zap.Logger
	engine      *credits.Service
	verifier    *credits.Verifier
	catalog     credits.Catalog
	coordinator *wallet.Coordinator
	recorder    *audit.Recorder
	validator   *auth.Validator
	cfg         Config
}

// New wires a Server.
func New(
	logger *zap.Logger,
	engine *credits.Service,
	verifier *credits.Verifier,
	catalog credits.Catalog,
	coordinator *wallet.Coordinator,
	recorder *audit.Recorder,
	validator *auth.Validator,
	cfg Config,
) (*Server, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if engine == nil || verifier == nil || coordinator == nil || recorder == nil {
		return nil, fmt.Errorf("service dependencies are required")
	}
	if validator == nil {
		return nil, fmt.Errorf("auth validator is required")
	}
	return &Server{
		logger:      logger,
		engine:      engine,
		verifier:    verifier,
		catalog:     catalog,
		coordinator: coordinator,
		recorder:    recorder,
		validator:   validator,
		cfg:         cfg,
	}, nil
}

// Router builds the gin engine with all routes mounted.
func (server *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     server.cfg.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Origin", "Accept", "Authorization"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/healthz", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api")
	api.Use(server.validator.GinMiddleware())

	api.GET("/credits", server.handleGetCredits)
	api.POST("/likes/use", server.handleUseLikes)
	api.GET("/likes/history", server.handleLikesHistory)
	api.GET("/packs", server.handleListPacks)
	api.POST("/purchases/verify", server.handleVerifyPurchase)

	api.GET("/wallet", server.handleGetWallet)
	api.POST("/payout-methods", server.handleRegisterPayoutMethod)
	api.GET("/payout-methods", server.handleListPayoutMethods)
	api.POST("/withdrawals", server.handleRequestWithdrawal)
	api.GET("/withdrawals", server.handleListWithdrawals)
	api.GET("/withdrawals/:id", server.handleGetWithdrawal)
	api.POST("/withdrawals/:id/cancel", server.handleCancelWithdrawal)
	api.GET("/transactions", server.handleListTransactions)

	operator := api.Group("")
	operator.Use(auth.RequireRole(auth.RoleOperator))
	operator.POST("/wallet/deposits", server.handleDeposit)
	operator.POST("/withdrawals/:id/process", server.handleProcessWithdrawal)
	operator.POST("/withdrawals/:id/complete", server.handleCompleteWithdrawal)
	operator.POST("/withdrawals/:id/fail", server.handleFailWithdrawal)

	return router
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (server *Server) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:    server.cfg.ListenAddr,
		Handler: server.Router(),
	}

	errCh := make(chan error, 1)
	go func() {
		server.logger.Info("http server listening", zap.String("addr", server.cfg.ListenAddr))
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := httpServer.Shutdown(shutdownCtx); shutdownErr != nil {
			server.logger.Warn("server shutdown error", zap.Error(shutdownErr))
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func errorResponse(code string, message string) gin.H {
	return gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	}
}

// respondError maps domain errors onto HTTP statuses and stable error codes.
func (server *Server) respondError(ctx *gin.Context, err error) {
	var insufficientCredits *credits.InsufficientCreditsError
	if errors.As(err, &insufficientCredits) {
		ctx.JSON(http.StatusPaymentRequired, gin.H{
			"error": gin.H{
				"code":            "insufficient_credits",
				"message":         insufficientCredits.Error(),
				"current_balance": insufficientCredits.CurrentBalance,
				"needed":          insufficientCredits.Needed,
			},
		})
		return
	}
	var insufficientBalance *wallet.InsufficientBalanceError
	if errors.As(err, &insufficientBalance) {
		ctx.JSON(http.StatusBadRequest, gin.H{
			"error": gin.H{
				"code":            "insufficient_balance",
				"message":         insufficientBalance.Error(),
				"available_cents": insufficientBalance.AvailableCents,
				"needed_cents":    insufficientBalance.NeededCents,
			},
		})
		return
	}
	switch {
	case errors.Is(err, credits.ErrUnknownProduct):
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_product", "unknown product id"))
	case errors.Is(err, credits.ErrPaymentNotConfirmed):
		ctx.JSON(http.StatusBadRequest, errorResponse("payment_not_confirmed", "payment could not be confirmed"))
	case errors.Is(err, credits.ErrDuplicatePurchase):
		ctx.JSON(http.StatusConflict, errorResponse("purchase_in_progress", "purchase token is being processed, retry"))
	case errors.Is(err, wallet.ErrUnknownPayoutMethod):
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payout_method", "unknown payout method"))
	case errors.Is(err, wallet.ErrUnknownWithdrawal):
		ctx.JSON(http.StatusNotFound, errorResponse("unknown_withdrawal", "withdrawal request not found"))
	case errors.Is(err, wallet.ErrInvalidTransition):
		ctx.JSON(http.StatusConflict, errorResponse("invalid_transition", "withdrawal state does not allow this transition"))
	case errors.Is(err, credits.ErrInvalidUserID),
		errors.Is(err, credits.ErrInvalidCreditsAmount),
		errors.Is(err, credits.ErrInvalidPurchaseToken),
		errors.Is(err, credits.ErrInvalidProductID),
		errors.Is(err, credits.ErrInvalidUsageType),
		errors.Is(err, wallet.ErrInvalidUserID),
		errors.Is(err, wallet.ErrInvalidRequestID),
		errors.Is(err, wallet.ErrInvalidAmountCents),
		errors.Is(err, wallet.ErrInvalidMethodType):
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_argument", err.Error()))
	default:
		server.logger.Error("request failed", zap.Error(err))
		ctx.JSON(http.StatusInternalServerError, errorResponse("internal_error", "internal error"))
	}
}

func currentUserID(ctx *gin.Context) (string, bool) {
	claims := auth.ClaimsFromContext(ctx)
	if claims == nil {
		ctx.JSON(http.StatusUnauthorized, errorResponse("unauthorized", "missing session"))
		return "", false
	}
	return claims.UserID(), true
}
