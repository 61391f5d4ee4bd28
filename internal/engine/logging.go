package engine

import "github.com/sirupsen/logrus"

func (e *Engine) logEntry() *logrus.Entry {
	entry := e.log.WithComponent("engine")
	if e.cfg != nil && e.cfg.Bot.Symbol != "" {
		entry = entry.WithField("symbol", e.cfg.Bot.Symbol)
	}
	return entry
}
