// Пакет service — бизнес-логика fotosort.
// errors.go — общий тип ошибки сервисного слоя с HTTP-кодом.
package service

import "fmt"

// ServiceError — ошибка сервисной операции с HTTP-кодом.
// Code — машиночитаемый код из internal/api/errors.
type ServiceError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}
