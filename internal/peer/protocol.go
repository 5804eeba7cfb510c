// Пакет peer — протокол синхронизации сеанса между host и remote.
//
// Ровно один host (владеет файловой системой и настоящим каталогом) и
// не более одного remote (тонкое зеркало с кэшем изображений по
// индексу). Remote никогда не меняет своё зеркало сам: он отправляет
// намерения (DECISION, UNDO) и применяет широковещательные сообщения
// host (INIT_SYNC, IMAGE_DATA, NAVIGATE, DECISION_ACK). Канал
// упорядоченный и надёжный в пределах одного соединения; переподключение
// не поддерживается, разрыв просто закрывает связь.
package peer

import (
	"encoding/json"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/gofotosort/internal/domain/model"
	"github.com/bigkaa/gofotosort/internal/domain/view"
)

// Prometheus метрики протокола.
var (
	// peerMessagesTotal — количество сообщений по типу и направлению.
	peerMessagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fs_peer_messages_total",
		Help: "Общее количество сообщений пирингового протокола",
	}, []string{"type", "direction"})
)

// MessageType — тип сообщения протокола. Множество закрыто:
// сообщение с неизвестным типом является ошибкой протокола.
type MessageType string

const (
	// TypeInitSync — host→remote: полный снимок каталога, курсора и
	// представления. Remote целиком заменяет своё зеркало.
	TypeInitSync MessageType = "INIT_SYNC"
	// TypeImageData — host→remote: байты изображения для индекса.
	TypeImageData MessageType = "IMAGE_DATA"
	// TypeDecision — remote→host: намерение принять решение.
	TypeDecision MessageType = "DECISION"
	// TypeDecisionAck — host→remote: решение применено, индикатор
	// сохранения на remote снимается.
	TypeDecisionAck MessageType = "DECISION_ACK"
	// TypeUndo — remote→host: намерение отменить последнее решение.
	// Без полезной нагрузки; ответ приходит следующим NAVIGATE.
	TypeUndo MessageType = "UNDO"
	// TypeNavigate — host→remote: авторитетная позиция host
	// (представление и курсор) после каждой мутации.
	TypeNavigate MessageType = "NAVIGATE"
)

// envelope — транспортный конверт: тип плюс сырая полезная нагрузка.
type envelope struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// InitSyncPayload — снимок состояния сеанса без файловых ссылок.
type InitSyncPayload struct {
	DirectoryName string               `json:"directory_name"`
	Records       []model.SimpleRecord `json:"records"`
	CurrentIndex  int                  `json:"current_index"`
	View          view.View            `json:"view"`
	Stats         model.Stats          `json:"stats"`
}

// ImageDataPayload — самодостаточная полезная нагрузка изображения.
type ImageDataPayload struct {
	Index       int    `json:"index"`
	ID          string `json:"id"`
	Name        string `json:"name"`
	ContentType string `json:"content_type"`
	Data        []byte `json:"data"`
}

// DecisionPayload — намерение remote принять решение по индексу.
type DecisionPayload struct {
	Index    int            `json:"index"`
	Decision model.Decision `json:"decision"`
}

// DecisionAckPayload — подтверждение применённого решения.
type DecisionAckPayload struct {
	Index int `json:"index"`
}

// NavigatePayload — позиция host. Index опционален: NAVIGATE без
// индекса меняет только представление.
type NavigatePayload struct {
	View  view.View `json:"view"`
	Index *int      `json:"index,omitempty"`
}

// ProtocolError — нарушение протокола: неизвестный тип, повреждённая
// нагрузка или сообщение в недопустимом направлении. Получатель
// закрывает соединение.
type ProtocolError struct {
	Type   MessageType
	Reason string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("нарушение протокола (%s): %s", e.Type, e.Reason)
}

// Encode упаковывает сообщение в конверт. payload равен nil только
// для UNDO.
func Encode(t MessageType, payload any) ([]byte, error) {
	env := envelope{Type: t}

	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("ошибка сериализации %s: %w", t, err)
		}
		env.Payload = data
	}

	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("ошибка сериализации конверта %s: %w", t, err)
	}
	return data, nil
}

// Decode разбирает конверт и возвращает типизированную полезную
// нагрузку. Разбор исчерпывающий: каждое значение MessageType имеет
// ровно одну ветку, всё остальное — ProtocolError.
func Decode(data []byte) (MessageType, any, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", nil, &ProtocolError{Reason: fmt.Sprintf("повреждённый конверт: %s", err.Error())}
	}

	switch env.Type {
	case TypeInitSync:
		payload := &InitSyncPayload{}
		if err := unmarshalPayload(env, payload); err != nil {
			return env.Type, nil, err
		}
		return env.Type, payload, nil

	case TypeImageData:
		payload := &ImageDataPayload{}
		if err := unmarshalPayload(env, payload); err != nil {
			return env.Type, nil, err
		}
		return env.Type, payload, nil

	case TypeDecision:
		payload := &DecisionPayload{}
		if err := unmarshalPayload(env, payload); err != nil {
			return env.Type, nil, err
		}
		return env.Type, payload, nil

	case TypeDecisionAck:
		payload := &DecisionAckPayload{}
		if err := unmarshalPayload(env, payload); err != nil {
			return env.Type, nil, err
		}
		return env.Type, payload, nil

	case TypeUndo:
		// Единственное сообщение без полезной нагрузки
		return env.Type, nil, nil

	case TypeNavigate:
		payload := &NavigatePayload{}
		if err := unmarshalPayload(env, payload); err != nil {
			return env.Type, nil, err
		}
		return env.Type, payload, nil

	default:
		return env.Type, nil, &ProtocolError{
			Type:   env.Type,
			Reason: "неизвестный тип сообщения",
		}
	}
}

func unmarshalPayload(env envelope, dst any) error {
	if len(env.Payload) == 0 {
		return &ProtocolError{Type: env.Type, Reason: "отсутствует полезная нагрузка"}
	}
	if err := json.Unmarshal(env.Payload, dst); err != nil {
		return &ProtocolError{
			Type:   env.Type,
			Reason: fmt.Sprintf("повреждённая полезная нагрузка: %s", err.Error()),
		}
	}
	return nil
}
