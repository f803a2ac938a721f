package repository

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
)

var (
	ErrNoSession          = errors.New("требуется авторизация")
	ErrNotFound           = errors.New("запись не найдена")
	ErrForbidden          = errors.New("нет доступа")
	ErrOwnRide            = errors.New("нельзя забронировать собственную поездку")
	ErrNotEnoughSeats     = errors.New("недостаточно свободных мест")
	ErrCourierUnavailable = errors.New("поездка не принимает посылки")
	ErrNotEnoughCapacity  = errors.New("недостаточно места для багажа")
	ErrAlreadyCancelled   = errors.New("бронирование уже отменено")
	ErrEmailTaken         = errors.New("пользователь с таким email уже существует")
)

// ValidationError некорректные входные данные, запись не выполнялась
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	fields := make([]string, 0, len(e.Fields))
	for field := range e.Fields {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	parts := make([]string, 0, len(fields))
	for _, field := range fields {
		parts = append(parts, fmt.Sprintf("%s: %s", field, e.Fields[field]))
	}
	return "некорректные данные: " + strings.Join(parts, "; ")
}

func newValidationError(field, reason string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: reason}}
}

// NewValidator валидатор, который называет поля по их json-именам
func NewValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// ValidateStruct переводит ошибки валидатора в ValidationError
func ValidateStruct(v *validator.Validate, s interface{}) error {
	err := v.Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("ошибка валидации: %w", err)
	}

	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[fe.Field()] = describe(fe)
	}
	return &ValidationError{Fields: fields}
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "обязательное поле"
	case "gte", "min":
		return "значение должно быть не меньше " + fe.Param()
	case "gt":
		return "значение должно быть больше " + fe.Param()
	case "max", "lte":
		return "значение должно быть не больше " + fe.Param()
	case "oneof":
		return "допустимые значения: " + fe.Param()
	case "datetime":
		return "ожидается формат " + fe.Param()
	case "email":
		return "некорректный email"
	default:
		return "некорректное значение"
	}
}
