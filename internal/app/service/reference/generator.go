package reference

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/fatflowers/paydesk/internal/models"
	"github.com/fatflowers/paydesk/pkg/apperr"
	"github.com/fatflowers/paydesk/pkg/logctx"
	"github.com/fatflowers/paydesk/pkg/tool"
	"github.com/fatflowers/paydesk/pkg/types"
)

const (
	randomLen   = 8
	maxAttempts = 16
)

// Generator produces references of the form PREFIX-XXXXXXXX-<unix seconds>,
// checked against existing rows of the matching table.
type Generator struct {
	db     *gorm.DB
	log    *zap.SugaredLogger
	now    func() time.Time
	random func(n int) string
}

func New(db *gorm.DB, log *zap.SugaredLogger) *Generator {
	return &Generator{db: db, log: log, now: time.Now, random: tool.RandomUpperAlphanumeric}
}

var Module = fx.Options(
	fx.Provide(New),
)

// Generate returns a reference unused at the time of the check. The unique
// index on the reference column still guards the window between check and insert.
func (g *Generator) Generate(ctx context.Context, prefix string) (string, error) {
	model, err := modelFor(prefix)
	if err != nil {
		return "", err
	}
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		ref := fmt.Sprintf("%s-%s-%d", prefix, g.random(randomLen), g.now().Unix())
		var n int64
		err := g.db.WithContext(ctx).Unscoped().Model(model).Where("reference = ?", ref).Count(&n).Error
		if err != nil {
			return "", apperr.Storage("check reference", err)
		}
		if n == 0 {
			return ref, nil
		}
		logctx.FromCtx(ctx, g.log).Warnw("reference collision", "reference", ref, "attempt", attempt)
	}
	return "", fmt.Errorf("no free %s reference after %d attempts", prefix, maxAttempts)
}

func modelFor(prefix string) (any, error) {
	switch prefix {
	case types.OrderReferencePrefix:
		return &models.Order{}, nil
	case types.SubscriptionReferencePrefix:
		return &models.Subscription{}, nil
	}
	return nil, apperr.Validationf("unknown reference prefix %q", prefix)
}
