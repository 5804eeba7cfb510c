// caption.go — текстовые описания для нерендерируемых форматов.
//
// Для raw-форматов, которые endpoint контента не может отдать браузеру,
// сервис запрашивает у Gemini короткое описание по байтам файла.
// Описания кэшируются по хэшу содержимого. Без FS_GEMINI_API_KEY
// сервис отключён и возвращает статическую заглушку; ошибка генерации
// тоже деградирует до заглушки и не считается ошибкой сеанса.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/cespare/xxhash/v2"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"google.golang.org/genai"

	apierrors "github.com/bigkaa/gofotosort/internal/api/errors"
	"github.com/bigkaa/gofotosort/internal/config"
	"github.com/bigkaa/gofotosort/internal/storage/catalog"
	"github.com/bigkaa/gofotosort/internal/storage/scan"
)

// Prometheus метрики описаний.
var (
	captionCacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fs_caption_cache_hits_total",
		Help: "Общее количество попаданий в кэш описаний",
	})
	captionCacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fs_caption_cache_misses_total",
		Help: "Общее количество промахов кэша описаний",
	})
	captionGeneratedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fs_caption_generated_total",
		Help: "Общее количество сгенерированных описаний",
	})
)

// captionPrompt — запрос к модели.
const captionPrompt = "Опиши это изображение одним-двумя предложениями для каталога фотографий."

// placeholderCaption — заглушка при отключённом сервисе или ошибке генерации.
const placeholderCaption = "Предпросмотр для этого формата недоступен"

// CaptionService — описания изображений через Gemini.
type CaptionService struct {
	client *genai.Client // nil, если сервис отключён
	model  string
	cache  *expirable.LRU[uint64, string]
	cat    *catalog.Catalog
	logger *slog.Logger
}

// NewCaptionService создаёт сервис описаний. Без API-ключа или при
// ошибке создания клиента сервис работает в отключённом режиме.
func NewCaptionService(ctx context.Context, cfg *config.Config, cat *catalog.Catalog, logger *slog.Logger) *CaptionService {
	s := &CaptionService{
		model:  cfg.GeminiModel,
		cache:  expirable.NewLRU[uint64, string](cfg.PayloadCacheSize, nil, cfg.PayloadCacheTTL),
		cat:    cat,
		logger: logger.With(slog.String("component", "caption")),
	}

	if cfg.GeminiAPIKey == "" {
		s.logger.Info("Описания отключены: FS_GEMINI_API_KEY не задан")
		return s
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: cfg.GeminiAPIKey,
	})
	if err != nil {
		s.logger.Error("Ошибка создания клиента Gemini, описания отключены",
			slog.String("error", err.Error()),
		)
		return s
	}

	s.client = client
	s.logger.Info("Описания включены", slog.String("model", s.model))
	return s
}

// Enabled возвращает true, если клиент Gemini настроен.
func (s *CaptionService) Enabled() bool {
	return s.client != nil
}

// Caption возвращает описание записи каталога по индексу.
// Результат кэшируется по хэшу содержимого файла: повторный запрос
// того же файла не обращается к модели.
func (s *CaptionService) Caption(ctx context.Context, index int) (string, *ServiceError) {
	if !s.cat.IsReady() {
		return "", &ServiceError{
			StatusCode: 409,
			Code:       apierrors.CodeNoCatalog,
			Message:    "Директория не открыта",
		}
	}

	rec, ok := s.cat.Get(index)
	if !ok {
		return "", &ServiceError{
			StatusCode: 404,
			Code:       apierrors.CodeNotFound,
			Message:    fmt.Sprintf("Запись с индексом %d не найдена", index),
		}
	}

	if s.client == nil {
		return placeholderCaption, nil
	}

	data, err := os.ReadFile(rec.FileRef)
	if err != nil {
		return "", &ServiceError{
			StatusCode: 500,
			Code:       apierrors.CodeInternalError,
			Message:    fmt.Sprintf("Ошибка чтения файла: %s", err.Error()),
		}
	}

	key := xxhash.Sum64(data)
	if cached, ok := s.cache.Get(key); ok {
		captionCacheHitsTotal.Inc()
		return cached, nil
	}
	captionCacheMissesTotal.Inc()

	contents := []*genai.Content{{Parts: []*genai.Part{
		{InlineData: &genai.Blob{MIMEType: scan.ContentType(rec.Name), Data: data}},
		{Text: captionPrompt},
	}}}

	resp, err := s.client.Models.GenerateContent(ctx, s.model, contents, nil)
	if err != nil {
		s.logger.Warn("Ошибка генерации описания",
			slog.String("relative_path", rec.RelativePath),
			slog.String("error", err.Error()),
		)
		return placeholderCaption, nil
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		s.logger.Warn("Пустой ответ модели",
			slog.String("relative_path", rec.RelativePath),
		)
		return placeholderCaption, nil
	}

	text := resp.Candidates[0].Content.Parts[0].Text
	if text == "" {
		return placeholderCaption, nil
	}

	s.cache.Add(key, text)
	captionGeneratedTotal.Inc()

	s.logger.Debug("Описание сгенерировано",
		slog.String("relative_path", rec.RelativePath),
	)

	return text, nil
}
