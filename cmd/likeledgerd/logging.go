package main

import (
	"context"

	"go.uber.org/zap"

	"github.com/afrikoin/likeledger/pkg/credits"
	"github.com/afrikoin/likeledger/pkg/wallet"
)

type creditOperationLogger struct {
	logger *zap.Logger
}

func (adapter *creditOperationLogger) LogOperation(_ context.Context, entry credits.OperationLog) {
	fields := []zap.Field{
		zap.String("operation", entry.Operation),
		zap.String("user_id", entry.UserID.String()),
		zap.Int64("amount", entry.Amount),
		zap.String("status", entry.Status),
	}
	if entry.ProductID.String() != "" {
		fields = append(fields, zap.String("product_id", entry.ProductID.String()))
	}
	if entry.UsageType != "" {
		fields = append(fields, zap.String("usage_type", entry.UsageType.String()))
	}
	if entry.Error != nil {
		fields = append(fields, zap.Error(entry.Error))
		adapter.logger.Warn("credit operation failed", fields...)
		return
	}
	adapter.logger.Info("credit operation", fields...)
}

type walletOperationLogger struct {
	logger *zap.Logger
}

func (adapter *walletOperationLogger) LogOperation(_ context.Context, entry wallet.OperationLog) {
	fields := []zap.Field{
		zap.String("operation", entry.Operation),
		zap.String("user_id", entry.UserID.String()),
		zap.Int64("amount_cents", entry.AmountCents),
		zap.String("status", entry.Status),
	}
	if entry.RequestID.String() != "" {
		fields = append(fields, zap.String("request_id", entry.RequestID.String()))
	}
	if entry.MethodID != "" {
		fields = append(fields, zap.String("method_id", entry.MethodID))
	}
	if entry.FeeCents != 0 {
		fields = append(fields, zap.Int64("fee_cents", entry.FeeCents))
	}
	if entry.Error != nil {
		fields = append(fields, zap.Error(entry.Error))
		adapter.logger.Warn("wallet operation failed", fields...)
		return
	}
	adapter.logger.Info("wallet operation", fields...)
}
