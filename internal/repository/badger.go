package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dgraph-io/badger/v4"

	"github.com/bigkaa/gofotosort/internal/domain/model"
)

// Префиксы ключей встроенной БД.
const (
	prefixSession  = "session/"
	prefixDecision = "decision/"
	prefixHandle   = "handle/"
)

// BadgerGateway — реализация Gateway на встроенной БД badger.
// Значения хранятся как JSON:
//
//	session/<dir>            → model.Session
//	decision/<dir>/<relpath> → model.DecisionRecord
//	handle/<dir>             → model.DirHandle
type BadgerGateway struct {
	db     *badger.DB
	logger *slog.Logger
}

// NewBadgerGateway открывает встроенную БД в указанной директории.
func NewBadgerGateway(dirPath string, logger *slog.Logger) (*BadgerGateway, error) {
	opts := badger.DefaultOptions(dirPath).
		WithLoggingLevel(badger.ERROR)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("ошибка открытия встроенной БД в %s: %w", dirPath, err)
	}

	return &BadgerGateway{
		db:     db,
		logger: logger.With(slog.String("component", "badger-gateway")),
	}, nil
}

// Close закрывает встроенную БД.
func (g *BadgerGateway) Close() error {
	return g.db.Close()
}

// Ping проверяет, что БД открыта.
func (g *BadgerGateway) Ping(_ context.Context) error {
	if g.db.IsClosed() {
		return errors.New("встроенная БД закрыта")
	}
	return nil
}

// sessionKey возвращает ключ сессии.
func sessionKey(dirName string) []byte {
	return []byte(prefixSession + dirName)
}

// decisionKey возвращает ключ решения.
func decisionKey(dirName, relPath string) []byte {
	return []byte(prefixDecision + dirName + "/" + relPath)
}

// handleKey возвращает ключ привязки директории.
func handleKey(dirName string) []byte {
	return []byte(prefixHandle + dirName)
}

// GetSession возвращает сессию по имени директории или ErrNotFound.
func (g *BadgerGateway) GetSession(_ context.Context, directoryName string) (*model.Session, error) {
	var session *model.Session

	err := g.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(sessionKey(directoryName))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return ErrNotFound
			}
			return err
		}
		return item.Value(func(val []byte) error {
			session = &model.Session{}
			return json.Unmarshal(val, session)
		})
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка чтения сессии %s: %w", directoryName, err)
	}
	return session, nil
}

// SaveSession сохраняет сессию (upsert).
func (g *BadgerGateway) SaveSession(_ context.Context, session *model.Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("ошибка сериализации сессии: %w", err)
	}

	err = g.db.Update(func(txn *badger.Txn) error {
		return txn.Set(sessionKey(session.DirectoryName), data)
	})
	if err != nil {
		return fmt.Errorf("ошибка сохранения сессии %s: %w", session.DirectoryName, err)
	}
	return nil
}

// GetAllSessions возвращает все сохранённые сессии.
func (g *BadgerGateway) GetAllSessions(_ context.Context) ([]*model.Session, error) {
	var sessions []*model.Session

	err := g.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefixSession)

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				s := &model.Session{}
				if err := json.Unmarshal(val, s); err != nil {
					return err
				}
				sessions = append(sessions, s)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения списка сессий: %w", err)
	}
	return sessions, nil
}

// GetDecisionsForDirectory возвращает карту relative_path → решение.
func (g *BadgerGateway) GetDecisionsForDirectory(_ context.Context, directoryName string) (map[string]model.Decision, error) {
	decisions := make(map[string]model.Decision)

	err := g.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefixDecision + directoryName + "/")

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				rec := model.DecisionRecord{}
				if err := json.Unmarshal(val, &rec); err != nil {
					return err
				}
				decisions[rec.RelativePath] = rec.Decision
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения решений для %s: %w", directoryName, err)
	}
	return decisions, nil
}

// SaveDecision сохраняет решение (upsert по ключу).
func (g *BadgerGateway) SaveDecision(_ context.Context, rec model.DecisionRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("ошибка сериализации решения: %w", err)
	}

	err = g.db.Update(func(txn *badger.Txn) error {
		return txn.Set(decisionKey(rec.DirectoryName, rec.RelativePath), data)
	})
	if err != nil {
		return fmt.Errorf("ошибка сохранения решения %s/%s: %w", rec.DirectoryName, rec.RelativePath, err)
	}
	return nil
}

// RelinkSession переносит сессию и решения на новое имя директории.
//
// Последовательность (не атомарная, но безопасная для повтора):
//  1. Сессия переписывается под новым ключом, старый удаляется.
//  2. Каждое решение переносится в отдельной транзакции
//     (избегаем ErrTxnTooBig на больших каталогах), после каждого
//     вызывается onProgress(count, total).
//
// Прерывание между шагами оставляет часть решений под старым ключом;
// повторный вызов переносит оставшиеся.
func (g *BadgerGateway) RelinkSession(ctx context.Context, oldName, newName string, onProgress ProgressFunc) error {
	// Шаг 1: перенос сессии
	session, err := g.GetSession(ctx, oldName)
	if err != nil {
		return fmt.Errorf("сессия %s: %w", oldName, err)
	}
	session.DirectoryName = newName

	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("ошибка сериализации сессии: %w", err)
	}
	err = g.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(sessionKey(newName), data); err != nil {
			return err
		}
		return txn.Delete(sessionKey(oldName))
	})
	if err != nil {
		return fmt.Errorf("ошибка переноса сессии %s → %s: %w", oldName, newName, err)
	}

	// Шаг 2: перенос решений по одному
	oldPrefix := prefixDecision + oldName + "/"
	var keys []string
	err = g.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(oldPrefix)
		opts.PrefetchValues = false

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			keys = append(keys, string(it.Item().Key()))
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("ошибка перечисления решений %s: %w", oldName, err)
	}

	total := len(keys)
	for i, key := range keys {
		if err := ctx.Err(); err != nil {
			return err
		}

		relPath := strings.TrimPrefix(key, oldPrefix)
		err = g.db.Update(func(txn *badger.Txn) error {
			item, err := txn.Get([]byte(key))
			if err != nil {
				if errors.Is(err, badger.ErrKeyNotFound) {
					// Уже перенесено предыдущей попыткой
					return nil
				}
				return err
			}

			rec := model.DecisionRecord{}
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			}); err != nil {
				return err
			}
			rec.DirectoryName = newName

			newData, err := json.Marshal(rec)
			if err != nil {
				return err
			}
			if err := txn.Set(decisionKey(newName, relPath), newData); err != nil {
				return err
			}
			return txn.Delete([]byte(key))
		})
		if err != nil {
			return fmt.Errorf("ошибка переноса решения %s: %w", relPath, err)
		}

		if onProgress != nil {
			onProgress(i+1, total)
		}
	}

	g.logger.Info("Решения перенесены",
		slog.String("old", oldName),
		slog.String("new", newName),
		slog.Int("decisions", total),
	)
	return nil
}

// StoreHandle сохраняет привязку директории (upsert).
func (g *BadgerGateway) StoreHandle(_ context.Context, directoryName string, handle model.DirHandle) error {
	data, err := json.Marshal(handle)
	if err != nil {
		return fmt.Errorf("ошибка сериализации привязки: %w", err)
	}

	err = g.db.Update(func(txn *badger.Txn) error {
		return txn.Set(handleKey(directoryName), data)
	})
	if err != nil {
		return fmt.Errorf("ошибка сохранения привязки %s: %w", directoryName, err)
	}
	return nil
}

// GetHandle возвращает привязку или ErrNotFound.
func (g *BadgerGateway) GetHandle(_ context.Context, directoryName string) (*model.DirHandle, error) {
	var handle *model.DirHandle

	err := g.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(handleKey(directoryName))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return ErrNotFound
			}
			return err
		}
		return item.Value(func(val []byte) error {
			handle = &model.DirHandle{}
			return json.Unmarshal(val, handle)
		})
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка чтения привязки %s: %w", directoryName, err)
	}
	return handle, nil
}

// DeleteHandle удаляет привязку. Отсутствие записи — не ошибка.
func (g *BadgerGateway) DeleteHandle(_ context.Context, directoryName string) error {
	err := g.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(handleKey(directoryName))
	})
	if err != nil {
		return fmt.Errorf("ошибка удаления привязки %s: %w", directoryName, err)
	}
	return nil
}

// Проверка соответствия интерфейсу на этапе компиляции.
var _ Gateway = (*BadgerGateway)(nil)
