package httpserver

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/afrikoin/likeledger/pkg/credits"
)

type useLikesRequest struct {
	Amount       int64  `json:"amount"`
	TargetPostID string `json:"target_post_id"`
	TargetUserID string `json:"target_user_id"`
	UsageType    string `json:"usage_type"`
}

type verifyPurchaseRequest struct {
	PurchaseToken string `json:"purchase_token"`
	ProductID     string `json:"product_id"`
}

type balancePayload struct {
	UserID         string `json:"user_id"`
	Balance        int64  `json:"balance"`
	TotalPurchased int64  `json:"total_purchased"`
	TotalUsed      int64  `json:"total_used"`
}

type usagePayload struct {
	UsageID        string `json:"usage_id"`
	TargetPostID   string `json:"target_post_id,omitempty"`
	TargetUserID   string `json:"target_user_id,omitempty"`
	CreditsUsed    int64  `json:"credits_used"`
	UsageType      string `json:"usage_type"`
	CreatedUnixUTC int64  `json:"created_unix_utc"`
}

type purchasePayload struct {
	PurchaseID       string `json:"purchase_id"`
	ProductID        string `json:"product_id"`
	PackName         string `json:"pack_name"`
	CreditsAmount    int64  `json:"credits_amount"`
	PriceAmountCents int64  `json:"price_amount_cents"`
	Status           string `json:"status"`
	VerifiedUnixUTC  int64  `json:"verified_unix_utc,omitempty"`
	CreatedUnixUTC   int64  `json:"created_unix_utc"`
}

func (server *Server) handleGetCredits(ctx *gin.Context) {
	rawUserID, ok := currentUserID(ctx)
	if !ok {
		return
	}
	userID, err := credits.NewUserID(rawUserID)
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	balance, err := server.engine.GetOrCreateBalance(ctx.Request.Context(), userID)
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, mapBalancePayload(balance))
}

func (server *Server) handleUseLikes(ctx *gin.Context) {
	rawUserID, ok := currentUserID(ctx)
	if !ok {
		return
	}
	var request useLikesRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	userID, err := credits.NewUserID(rawUserID)
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	amount, err := credits.NewCredits(request.Amount)
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	usageType, err := credits.ParseUsageType(request.UsageType)
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	result, err := server.engine.Debit(ctx.Request.Context(), userID, amount, credits.UsageContext{
		TargetPostID: request.TargetPostID,
		TargetUserID: request.TargetUserID,
		UsageType:    usageType,
	})
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{
		"remaining_balance": result.RemainingBalance,
		"usage":             mapUsagePayload(result.Usage),
	})
}

func (server *Server) handleLikesHistory(ctx *gin.Context) {
	rawUserID, ok := currentUserID(ctx)
	if !ok {
		return
	}
	userID, err := credits.NewUserID(rawUserID)
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	limit := parseLimitQuery(ctx)
	records, err := server.engine.ListUsage(ctx.Request.Context(), userID, limit)
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	payloads := make([]usagePayload, 0, len(records))
	for _, record := range records {
		payloads = append(payloads, mapUsagePayload(record))
	}
	ctx.JSON(http.StatusOK, gin.H{"usage": payloads})
}

func (server *Server) handleListPacks(ctx *gin.Context) {
	packs := server.catalog.Packs()
	payloads := make([]gin.H, 0, len(packs))
	for _, pack := range packs {
		payloads = append(payloads, gin.H{
			"product_id":  pack.ProductID,
			"name":        pack.Name,
			"credits":     pack.Credits,
			"price_cents": pack.PriceCents,
		})
	}
	ctx.JSON(http.StatusOK, gin.H{"packs": payloads})
}

func (server *Server) handleVerifyPurchase(ctx *gin.Context) {
	rawUserID, ok := currentUserID(ctx)
	if !ok {
		return
	}
	var request verifyPurchaseRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	userID, err := credits.NewUserID(rawUserID)
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	token, err := credits.NewPurchaseToken(request.PurchaseToken)
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	productID, err := credits.NewProductID(request.ProductID)
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	result, err := server.verifier.VerifyAndApply(ctx.Request.Context(), userID, token, productID)
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{
		"purchase":          mapPurchasePayload(result.Purchase),
		"credits_added":     result.CreditsAdded,
		"new_balance":       result.NewBalance,
		"already_processed": result.AlreadyProcessed,
	})
}

func mapBalancePayload(balance credits.CreditBalance) balancePayload {
	return balancePayload{
		UserID:         balance.UserID,
		Balance:        balance.Balance,
		TotalPurchased: balance.TotalPurchased,
		TotalUsed:      balance.TotalUsed,
	}
}

func mapUsagePayload(record credits.UsageRecord) usagePayload {
	return usagePayload{
		UsageID:        record.UsageID,
		TargetPostID:   record.TargetPostID,
		TargetUserID:   record.TargetUserID,
		CreditsUsed:    record.CreditsUsed,
		UsageType:      record.UsageType.String(),
		CreatedUnixUTC: record.CreatedUnixUTC,
	}
}

func mapPurchasePayload(record credits.PurchaseRecord) purchasePayload {
	return purchasePayload{
		PurchaseID:       record.PurchaseID,
		ProductID:        record.ProductID,
		PackName:         record.PackName,
		CreditsAmount:    record.CreditsAmount,
		PriceAmountCents: record.PriceAmountCents,
		Status:           record.Status.String(),
		VerifiedUnixUTC:  record.VerifiedUnixUTC,
		CreatedUnixUTC:   record.CreatedUnixUTC,
	}
}

func parseLimitQuery(ctx *gin.Context) int {
	raw := ctx.Query("limit")
	if raw == "" {
		return 0
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		return 0
	}
	return limit
}
