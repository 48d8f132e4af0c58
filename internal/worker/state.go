package worker

// Состояния цикла синхронизации
const (
	StateIdle        = "idle"
	StateFetching    = "fetching"
	StateConnecting  = "connecting"
	StateReconciling = "reconciling"
	StatePersisting  = "persisting"
	StateReporting   = "reporting"
)

// ValidTransitions определяет допустимые переходы между состояниями.
// Reporting достижим из любого рабочего состояния: ошибка на любом шаге
// заканчивается отчетом, а не обрывом цикла.
var ValidTransitions = map[string][]string{
	StateIdle:        {StateFetching},
	StateFetching:    {StateIdle, StateConnecting},
	StateConnecting:  {StateReconciling, StateReporting},
	StateReconciling: {StatePersisting, StateReporting},
	StatePersisting:  {StateReporting},
	StateReporting:   {StateConnecting, StateIdle},
}

// CanTransition проверяет допустимость перехода
func CanTransition(from, to string) bool {
	allowed, ok := ValidTransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// StateInfo возвращает описание состояния для логов и метрик
func StateInfo(s string) string {
	switch s {
	case StateIdle:
		return "Ожидание следующего цикла"
	case StateFetching:
		return "Запрос счетов к синхронизации"
	case StateConnecting:
		return "Подключение к терминалу"
	case StateReconciling:
		return "Реконсиляция истории сделок"
	case StatePersisting:
		return "Запись сделок в журнал"
	case StateReporting:
		return "Отправка статуса"
	default:
		return "Неизвестное состояние"
	}
}

// IsBusy возвращает true если worker обрабатывает счет
func IsBusy(s string) bool {
	return s == StateConnecting || s == StateReconciling || s == StatePersisting || s == StateReporting
}
