package engine

import (
	"bufio"
	"context"
	"strings"
)

// listenKeys — управление с клавиатуры: q останавливает немедленно,
// s — после закрытия текущего цикла. Читает построчно, чтобы не
// переводить терминал в raw-режим.
func (e *Engine) listenKeys(ctx context.Context) {
	scanner := bufio.NewScanner(e.keys)
	for scanner.Scan() {
		if ctx.Err() != nil || !e.running.Load() {
			return
		}
		switch strings.TrimSpace(strings.ToLower(scanner.Text())) {
		case "q":
			e.logEntry().Info("Получена команда немедленной остановки.")
			e.RequestStop()
			return
		case "s":
			e.logEntry().Info("Получена команда остановки после продажи.")
			e.RequestStopAfterSell()
		}
	}
}
