package app

import (
	"time"

	"go.uber.org/fx"

	"github.com/fatflowers/paydesk/internal/app/api/server"
	callbacklog "github.com/fatflowers/paydesk/internal/app/service/callback_log"
	"github.com/fatflowers/paydesk/internal/app/service/checkout"
	"github.com/fatflowers/paydesk/internal/app/service/order"
	"github.com/fatflowers/paydesk/internal/app/service/reconciler"
	"github.com/fatflowers/paydesk/internal/app/service/reference"
	"github.com/fatflowers/paydesk/internal/app/service/renewal"
	"github.com/fatflowers/paydesk/internal/app/service/subscription"
	"github.com/fatflowers/paydesk/internal/platform/db"
	"github.com/fatflowers/paydesk/internal/platform/lease"
	"github.com/fatflowers/paydesk/internal/platform/notify"
	"github.com/fatflowers/paydesk/internal/platform/pesapal"
	"github.com/fatflowers/paydesk/pkg/config"
	"github.com/fatflowers/paydesk/pkg/logger"
	"github.com/fatflowers/paydesk/pkg/metrics"
)

const (
	DefaultStartTimeout = 15 * time.Second
	DefaultStopTimeout  = 10 * time.Second
)

// CoreModule is everything but the HTTP server and the cron triggers. The
// operator CLI runs on it.
var CoreModule = fx.Options(
	logger.Module,
	config.Module,
	db.Module,
	lease.Module,
	notify.Module,
	pesapal.Module,
	fx.Provide(metrics.NewDefaultDomain),
	reference.Module,
	order.Module,
	subscription.Module,
	callbacklog.Module,
	reconciler.Module,
	checkout.Module,
	renewal.Module,
)

var Module = fx.Options(
	CoreModule,
	server.Module,
	renewal.SchedulerModule,
)
