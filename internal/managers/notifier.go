package managers

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/chrissnell/altiguard/internal/interfaces"
	"github.com/chrissnell/altiguard/internal/notify"
	"github.com/chrissnell/altiguard/pkg/config"
)

// NewNotifier builds one notifier per configured entry and fans alerts out to
// all of them. Without any configured notifier alerts are only logged.
func NewNotifier(cfgs []config.NotifierData, logger *zap.SugaredLogger) (*notify.Multi, error) {
	var notifiers []interfaces.AlertNotifier

	for i, c := range cfgs {
		n, err := createNotifier(c, logger)
		if err != nil {
			return nil, fmt.Errorf("notifiers[%d]: %w", i, err)
		}
		notifiers = append(notifiers, n)
	}

	if len(notifiers) == 0 {
		logger.Info("no notifiers configured; alerts will only be logged")
		notifiers = append(notifiers, notify.NewLog(logger.Named("alert")))
	}
	return notify.NewMulti(logger, notifiers...), nil
}

func createNotifier(c config.NotifierData, logger *zap.SugaredLogger) (interfaces.AlertNotifier, error) {
	switch c.Type {
	case config.NotifierLog:
		return notify.NewLog(logger.Named("alert")), nil
	case config.NotifierWebhook:
		if c.Webhook == nil {
			return nil, fmt.Errorf("webhook notifier without webhook settings")
		}
		return notify.NewWebhook(c.Webhook.URL, c.Webhook.Timeout, logger.Named("webhook")), nil
	case config.NotifierAPRS:
		if c.APRS == nil {
			return nil, fmt.Errorf("aprs notifier without aprs settings")
		}
		return notify.NewAPRS(*c.APRS, logger.Named("aprs")), nil
	default:
		return nil, fmt.Errorf("unknown notifier type: %s", c.Type)
	}
}
