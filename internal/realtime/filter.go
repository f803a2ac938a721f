package realtime

import (
	"fmt"
	"strings"
)

// Filter условие подписки: таблица, тип события и необязательное равенство колонки
type Filter struct {
	Table  string    `json:"table"`
	Event  EventType `json:"event"`
	Column string    `json:"column,omitempty"`
	Value  string    `json:"value,omitempty"`
}

// ParseFilter разбирает выражение вида "driver_id=eq.5"
func ParseFilter(table string, event EventType, expr string) (Filter, error) {
	f := Filter{Table: strings.TrimSpace(table), Event: event}
	if f.Table == "" {
		return f, fmt.Errorf("не указана таблица")
	}
	if f.Event == "" {
		f.Event = EventAll
	}

	expr = strings.TrimSpace(expr)
	if expr == "" {
		return f, nil
	}

	column, rest, ok := strings.Cut(expr, "=")
	if !ok || strings.TrimSpace(column) == "" {
		return f, fmt.Errorf("некорректный фильтр: %q", expr)
	}
	value, ok := strings.CutPrefix(rest, "eq.")
	if !ok {
		return f, fmt.Errorf("поддерживается только оператор eq: %q", expr)
	}

	f.Column = strings.TrimSpace(column)
	f.Value = value
	return f, nil
}

// Matches проверяет, подходит ли событие под фильтр
func (f Filter) Matches(ev ChangeEvent) bool {
	if f.Table != ev.Table {
		return false
	}
	if f.Event != EventAll && f.Event != "" && f.Event != ev.Event {
		return false
	}
	if f.Column == "" {
		return true
	}

	v, ok := ev.Row()[f.Column]
	if !ok || v == nil {
		return false
	}
	return fmt.Sprint(v) == f.Value
}

func (f Filter) String() string {
	if f.Column == "" {
		return fmt.Sprintf("%s:%s", f.Table, f.Event)
	}
	return fmt.Sprintf("%s:%s:%s=eq.%s", f.Table, f.Event, f.Column, f.Value)
}
