package httpserver

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/afrikoin/likeledger/internal/auth"
	"github.com/afrikoin/likeledger/pkg/audit"
	"github.com/afrikoin/likeledger/pkg/wallet"
)

type depositRequest struct {
	UserID      string         `json:"user_id"`
	AmountCents int64          `json:"amount_cents"`
	Metadata    map[string]any `json:"metadata"`
}

type registerPayoutMethodRequest struct {
	MethodType string `json:"method_type"`
	Provider   string `json:"provider"`
	Label      string `json:"label"`
}

type requestWithdrawalRequest struct {
	AmountCents int64  `json:"amount_cents"`
	MethodID    string `json:"method_id"`
}

type cancelWithdrawalRequest struct {
	Reason string `json:"reason"`
}

type failWithdrawalRequest struct {
	Reason string `json:"reason"`
}

type cashBalancePayload struct {
	UserID         string `json:"user_id"`
	AvailableCents int64  `json:"available_cents"`
	PendingCents   int64  `json:"pending_cents"`
}

type payoutMethodPayload struct {
	MethodID       string `json:"method_id"`
	MethodType     string `json:"method_type"`
	Provider       string `json:"provider"`
	Label          string `json:"label"`
	CreatedUnixUTC int64  `json:"created_unix_utc"`
}

type withdrawalPayload struct {
	RequestID      string `json:"request_id"`
	UserID         string `json:"user_id"`
	MethodID       string `json:"method_id"`
	AmountCents    int64  `json:"amount_cents"`
	FeeRateBps     int64  `json:"fee_rate_bps"`
	FeeCents       int64  `json:"fee_cents"`
	NetAmountCents int64  `json:"net_amount_cents"`
	Status         string `json:"status"`
	Reason         string `json:"reason,omitempty"`
	CreatedUnixUTC int64  `json:"created_unix_utc"`
	UpdatedUnixUTC int64  `json:"updated_unix_utc"`
}

type transactionPayload struct {
	EntryID        string          `json:"entry_id"`
	Kind           string          `json:"kind"`
	AmountCents    int64           `json:"amount_cents"`
	ReferenceID    string          `json:"reference_id,omitempty"`
	Metadata       json.RawMessage `json:"metadata"`
	CreatedUnixUTC int64           `json:"created_unix_utc"`
}

func (server *Server) handleGetWallet(ctx *gin.Context) {
	rawUserID, ok := currentUserID(ctx)
	if !ok {
		return
	}
	userID, err := wallet.NewUserID(rawUserID)
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	balance, err := server.coordinator.Balance(ctx.Request.Context(), userID)
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, mapCashBalancePayload(balance))
}

func (server *Server) handleDeposit(ctx *gin.Context) {
	var request depositRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	userID, err := wallet.NewUserID(request.UserID)
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	amount, err := wallet.NewAmountCents(request.AmountCents)
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	balance, err := server.coordinator.Deposit(ctx.Request.Context(), userID, amount, audit.MarshalMetadata(request.Metadata))
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, mapCashBalancePayload(balance))
}

func (server *Server) handleRegisterPayoutMethod(ctx *gin.Context) {
	rawUserID, ok := currentUserID(ctx)
	if !ok {
		return
	}
	var request registerPayoutMethodRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	userID, err := wallet.NewUserID(rawUserID)
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	methodType, err := wallet.ParseMethodType(request.MethodType)
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	method, err := server.coordinator.RegisterPayoutMethod(ctx.Request.Context(), userID, methodType, request.Provider, request.Label)
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusCreated, mapPayoutMethodPayload(method))
}

func (server *Server) handleListPayoutMethods(ctx *gin.Context) {
	rawUserID, ok := currentUserID(ctx)
	if !ok {
		return
	}
	userID, err := wallet.NewUserID(rawUserID)
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	methods, err := server.coordinator.ListPayoutMethods(ctx.Request.Context(), userID)
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	payloads := make([]payoutMethodPayload, 0, len(methods))
	for _, method := range methods {
		payloads = append(payloads, mapPayoutMethodPayload(method))
	}
	ctx.JSON(http.StatusOK, gin.H{"payout_methods": payloads})
}

func (server *Server) handleRequestWithdrawal(ctx *gin.Context) {
	rawUserID, ok := currentUserID(ctx)
	if !ok {
		return
	}
	var request requestWithdrawalRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	userID, err := wallet.NewUserID(rawUserID)
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	amount, err := wallet.NewAmountCents(request.AmountCents)
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	withdrawal, err := server.coordinator.RequestWithdrawal(ctx.Request.Context(), userID, amount, request.MethodID)
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusCreated, mapWithdrawalPayload(withdrawal))
}

func (server *Server) handleListWithdrawals(ctx *gin.Context) {
	rawUserID, ok := currentUserID(ctx)
	if !ok {
		return
	}
	userID, err := wallet.NewUserID(rawUserID)
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	limit := parseLimitQuery(ctx)
	withdrawals, err := server.coordinator.ListWithdrawals(ctx.Request.Context(), userID, limit)
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	payloads := make([]withdrawalPayload, 0, len(withdrawals))
	for _, withdrawal := range withdrawals {
		payloads = append(payloads, mapWithdrawalPayload(withdrawal))
	}
	ctx.JSON(http.StatusOK, gin.H{"withdrawals": payloads})
}

func (server *Server) handleGetWithdrawal(ctx *gin.Context) {
	rawUserID, ok := currentUserID(ctx)
	if !ok {
		return
	}
	requestID, err := wallet.NewRequestID(ctx.Param("id"))
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	withdrawal, err := server.coordinator.GetWithdrawal(ctx.Request.Context(), requestID)
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	if !server.canAccessWithdrawal(ctx, rawUserID, withdrawal) {
		return
	}
	ctx.JSON(http.StatusOK, mapWithdrawalPayload(withdrawal))
}

func (server *Server) handleCancelWithdrawal(ctx *gin.Context) {
	rawUserID, ok := currentUserID(ctx)
	if !ok {
		return
	}
	requestID, err := wallet.NewRequestID(ctx.Param("id"))
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	var request cancelWithdrawalRequest
	if err := ctx.ShouldBindJSON(&request); err != nil && ctx.Request.ContentLength > 0 {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	existing, err := server.coordinator.GetWithdrawal(ctx.Request.Context(), requestID)
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	if !server.canAccessWithdrawal(ctx, rawUserID, existing) {
		return
	}
	withdrawal, err := server.coordinator.CancelOrFail(ctx.Request.Context(), requestID, wallet.StatusCancelled, request.Reason)
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, mapWithdrawalPayload(withdrawal))
}

func (server *Server) handleProcessWithdrawal(ctx *gin.Context) {
	requestID, err := wallet.NewRequestID(ctx.Param("id"))
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	withdrawal, err := server.coordinator.BeginProcessing(ctx.Request.Context(), requestID)
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, mapWithdrawalPayload(withdrawal))
}

func (server *Server) handleCompleteWithdrawal(ctx *gin.Context) {
	requestID, err := wallet.NewRequestID(ctx.Param("id"))
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	withdrawal, err := server.coordinator.Complete(ctx.Request.Context(), requestID)
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, mapWithdrawalPayload(withdrawal))
}

func (server *Server) handleFailWithdrawal(ctx *gin.Context) {
	requestID, err := wallet.NewRequestID(ctx.Param("id"))
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	var request failWithdrawalRequest
	if err := ctx.ShouldBindJSON(&request); err != nil && ctx.Request.ContentLength > 0 {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	withdrawal, err := server.coordinator.CancelOrFail(ctx.Request.Context(), requestID, wallet.StatusFailed, request.Reason)
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, mapWithdrawalPayload(withdrawal))
}

func (server *Server) handleListTransactions(ctx *gin.Context) {
	rawUserID, ok := currentUserID(ctx)
	if !ok {
		return
	}
	since := int64(0)
	if raw := ctx.Query("since"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || parsed < 0 {
			ctx.JSON(http.StatusBadRequest, errorResponse("invalid_argument", "since must be a unix timestamp"))
			return
		}
		since = parsed
	}
	entries, err := server.recorder.ListForUser(ctx.Request.Context(), rawUserID, since, parseLimitQuery(ctx))
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	payloads := make([]transactionPayload, 0, len(entries))
	for _, entry := range entries {
		payloads = append(payloads, transactionPayload{
			EntryID:        entry.EntryID,
			Kind:           entry.Kind.String(),
			AmountCents:    entry.AmountCents,
			ReferenceID:    entry.ReferenceID,
			Metadata:       json.RawMessage(entry.MetadataJSON),
			CreatedUnixUTC: entry.CreatedUnixUTC,
		})
	}
	ctx.JSON(http.StatusOK, gin.H{"transactions": payloads})
}

// canAccessWithdrawal allows the owner or an operator; anyone else gets 404
// so request ids are not probeable.
func (server *Server) canAccessWithdrawal(ctx *gin.Context, rawUserID string, withdrawal wallet.WithdrawalRequest) bool {
	if withdrawal.UserID == rawUserID {
		return true
	}
	claims := auth.ClaimsFromContext(ctx)
	if claims != nil && claims.HasRole(auth.RoleOperator) {
		return true
	}
	ctx.JSON(http.StatusNotFound, errorResponse("unknown_withdrawal", "withdrawal request not found"))
	return false
}

func mapCashBalancePayload(balance wallet.CashBalance) cashBalancePayload {
	return cashBalancePayload{
		UserID:         balance.UserID,
		AvailableCents: balance.AvailableCents,
		PendingCents:   balance.PendingCents,
	}
}

func mapPayoutMethodPayload(method wallet.PayoutMethod) payoutMethodPayload {
	return payoutMethodPayload{
		MethodID:       method.MethodID,
		MethodType:     method.MethodType.String(),
		Provider:       method.Provider,
		Label:          method.Label,
		CreatedUnixUTC: method.CreatedUnixUTC,
	}
}

func mapWithdrawalPayload(withdrawal wallet.WithdrawalRequest) withdrawalPayload {
	return withdrawalPayload{
		RequestID:      withdrawal.RequestID,
		UserID:         withdrawal.UserID,
		MethodID:       withdrawal.MethodID,
		AmountCents:    withdrawal.AmountCents,
		FeeRateBps:     withdrawal.FeeRateBps,
		FeeCents:       withdrawal.FeeCents,
		NetAmountCents: withdrawal.NetAmountCents,
		Status:         withdrawal.Status.String(),
		Reason:         withdrawal.Reason,
		CreatedUnixUTC: withdrawal.CreatedUnixUTC,
		UpdatedUnixUTC: withdrawal.UpdatedUnixUTC,
	}
}
