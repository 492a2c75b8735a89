// Package rpc описывает единый конверт ответов для request/reply
// message patterns внутри mesh: успешный ответ несёт data, ошибка —
// машиночитаемый статус и человекочитаемое сообщение.
package rpc

import (
	"encoding/json"
	"fmt"
)

// Error — единый формат ошибки удалённого вызова.
type Error struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
}

// Error реализует error.
func (e *Error) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Status, e.Message)
}

type envelope struct {
	Data  json.RawMessage `json:"data,omitempty"`
	Error *Error          `json:"error,omitempty"`
}

// EncodeReply упаковывает успешный результат в конверт.
// Ошибка сериализации превращается в конверт с internal-ошибкой, чтобы
// вызывающая сторона всегда получала валидный ответ.
func EncodeReply(data any) []byte {
	raw, err := json.Marshal(data)
	if err != nil {
		return EncodeError(500, "failed to encode reply")
	}
	payload, err := json.Marshal(envelope{Data: raw})
	if err != nil {
		return EncodeError(500, "failed to encode reply envelope")
	}
	return payload
}

// EncodeError упаковывает ошибку в конверт.
func EncodeError(status int, message string) []byte {
	payload, err := json.Marshal(envelope{Error: &Error{Status: status, Message: message}})
	if err != nil {
		// Конверт из двух примитивов не может не сериализоваться; запасной
		// вариант оставлен на случай будущих изменений структуры.
		return []byte(`{"error":{"status":500,"message":"failed to encode error envelope"}}`)
	}
	return payload
}

// Decode разбирает конверт ответа. Если удалённая сторона вернула ошибку,
// Decode возвращает её как *Error; иначе раскладывает data в out.
func Decode(payload []byte, out any) error {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return fmt.Errorf("decode reply envelope: %w", err)
	}
	if env.Error != nil {
		return env.Error
	}
	if out == nil {
		return nil
	}
	if len(env.Data) == 0 {
		return fmt.Errorf("reply envelope has no data")
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("decode reply data: %w", err)
	}
	return nil
}
