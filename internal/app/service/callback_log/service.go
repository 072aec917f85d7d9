package callback_log

import (
	"context"
	"encoding/json"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/fatflowers/paydesk/internal/models"
	"github.com/fatflowers/paydesk/pkg/logctx"
	"github.com/fatflowers/paydesk/pkg/tool"
)

type Service struct {
	db  *gorm.DB
	log *zap.SugaredLogger
}

func New(db *gorm.DB, log *zap.SugaredLogger) *Service { return &Service{db: db, log: log} }

var Module = fx.Options(
	fx.Provide(New),
)

// Received stores an inbound gateway payload before it is handled and returns
// the row id for Finish. Storage failures are logged, never returned: losing
// the audit row must not block reconciliation.
func (s *Service) Received(ctx context.Context, source models.CallbackSource, trackingID, merchantRef string, payload any) string {
	entry := &models.CallbackLog{
		ID:                tool.GenerateUUIDV7(),
		Source:            source,
		TrackingID:        trackingID,
		MerchantReference: merchantRef,
		TraceID:           logctx.TraceID(ctx),
		Data:              encode(payload),
		Status:            models.CallbackLogStatusReceived,
	}
	if err := s.db.WithContext(ctx).Create(entry).Error; err != nil {
		logctx.FromCtx(ctx, s.log).Errorw("failed to save callback log", "tracking_id", trackingID, "source", source, "err", err)
		return ""
	}
	return entry.ID
}

// Finish records the outcome of handling. handleErr nil means handled.
func (s *Service) Finish(ctx context.Context, id string, result any, handleErr error) {
	if id == "" {
		return
	}
	status := models.CallbackLogStatusHandled
	if handleErr != nil {
		status = models.CallbackLogStatusHandleFailed
		result = map[string]any{"error": handleErr.Error(), "result": result}
	}
	err := s.db.WithContext(ctx).Model(&models.CallbackLog{}).Where("id = ?", id).
		Updates(map[string]any{"status": status, "result": encode(result)}).Error
	if err != nil {
		logctx.FromCtx(ctx, s.log).Errorw("failed to update callback log", "id", id, "err", err)
	}
}

// Failed lists payloads whose handling failed, newest first, for manual replay.
func (s *Service) Failed(ctx context.Context, limit int) ([]*models.CallbackLog, error) {
	var out []*models.CallbackLog
	err := s.db.WithContext(ctx).Where("status = ?", models.CallbackLogStatusHandleFailed).
		Order("created_at DESC").Limit(limit).Find(&out).Error
	return out, err
}

// Resolve closes the failed entries of trackingID after a later attempt
// handled it, so they drop out of Failed. It returns how many were closed.
func (s *Service) Resolve(ctx context.Context, trackingID string) (int64, error) {
	res := s.db.WithContext(ctx).Model(&models.CallbackLog{}).
		Where("tracking_id = ? AND status = ?", trackingID, models.CallbackLogStatusHandleFailed).
		Update("status", models.CallbackLogStatusHandled)
	return res.RowsAffected, res.Error
}

func encode(v any) datatypes.JSON {
	switch p := v.(type) {
	case nil:
		return datatypes.JSON("null")
	case json.RawMessage:
		if json.Valid(p) {
			return datatypes.JSON(p)
		}
	case []byte:
		if json.Valid(p) {
			return datatypes.JSON(p)
		}
	}
	b, err := json.Marshal(v)
	if err != nil {
		b, _ = json.Marshal(map[string]string{"unencodable": err.Error()})
	}
	return datatypes.JSON(b)
}
