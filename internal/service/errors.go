// errors.go — ошибки бизнес-логики сервисного слоя.
package service

import "errors"

var (
	// ErrNotFound — ресурс не найден.
	ErrNotFound = errors.New("ресурс не найден")
	// ErrValidation — ошибка валидации входных данных.
	ErrValidation = errors.New("ошибка валидации")
	// ErrRetrieval — ошибка чтения из реестра.
	ErrRetrieval = errors.New("ошибка чтения каталога")
	// ErrWrite — ошибка записи в реестр или хранилище.
	ErrWrite = errors.New("ошибка записи")
)
