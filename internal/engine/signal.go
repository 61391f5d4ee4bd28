package engine

import "sync/atomic"

// cycleSignal — автосбрасываемый флаг завершения цикла. Торговый цикл
// в главном потоке опрашивает его, монитор выставляет. Блокировок нет:
// обе стороны и так крутятся в своих циклах.
type cycleSignal struct {
	v atomic.Bool
}

func (s *cycleSignal) Set()        { s.v.Store(true) }
func (s *cycleSignal) Clear()      { s.v.Store(false) }
func (s *cycleSignal) IsSet() bool { return s.v.Load() }
