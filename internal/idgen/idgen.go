// Package idgen предоставляет источник уникальных идентификаторов.
package idgen

import "github.com/google/uuid"

// Source выдаёт новый уникальный идентификатор при каждом вызове.
// В тестах подменяется детерминированной реализацией.
type Source func() string

// UUID возвращает источник идентификаторов на основе UUID v4.
func UUID() Source {
	return uuid.NewString
}
