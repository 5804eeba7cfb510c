// prefetch.go — упреждающая отправка изображений на remote.
//
// При каждом движении курсора host (и при открытии связи с непустым
// каталогом) remote получает IMAGE_DATA для текущего индекса и
// следующих за ним. Глубина опережения фиксированная, без адаптации
// к полосе. Байтово идентичная нагрузка для того же индекса в рамках
// одной связи повторно не отправляется.
package peer

import (
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/gofotosort/internal/storage/catalog"
	"github.com/bigkaa/gofotosort/internal/storage/scan"
)

// Prometheus метрики кэша полезных нагрузок.
var (
	payloadCacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fs_payload_cache_hits_total",
		Help: "Общее количество попаданий в кэш полезных нагрузок",
	})
	payloadCacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fs_payload_cache_misses_total",
		Help: "Общее количество промахов кэша полезных нагрузок",
	})
	prefetchSentTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fs_prefetch_sent_total",
		Help: "Общее количество отправленных упреждающих изображений",
	})
)

// Prefetcher готовит окно IMAGE_DATA сообщений вокруг курсора.
type Prefetcher struct {
	cat    *catalog.Catalog
	depth  int
	cache  *expirable.LRU[string, []byte]
	logger *slog.Logger

	// mu защищает отметки отправленного в пределах связи
	mu   sync.Mutex
	sent map[int]uint64
}

// NewPrefetcher создаёт prefetcher с указанной глубиной опережения и
// параметрами кэша полезных нагрузок.
func NewPrefetcher(cat *catalog.Catalog, depth, cacheSize int, cacheTTL time.Duration, logger *slog.Logger) *Prefetcher {
	if depth < 0 {
		depth = 0
	}
	return &Prefetcher{
		cat:    cat,
		depth:  depth,
		cache:  expirable.NewLRU[string, []byte](cacheSize, nil, cacheTTL),
		logger: logger.With(slog.String("component", "prefetcher")),
		sent:   make(map[int]uint64),
	}
}

// ResetSession сбрасывает отметки отправленного. Вызывается при
// открытии связи и при структурной замене каталога: индексы и
// содержимое больше не соответствуют отправленному ранее.
func (p *Prefetcher) ResetSession() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sent = make(map[int]uint64)
}

// Window возвращает закодированные IMAGE_DATA для текущего индекса и
// следующих depth индексов, пропуская уже отправленные байтово
// идентичные нагрузки.
func (p *Prefetcher) Window(current int) [][]byte {
	if !p.cat.IsReady() {
		return nil
	}

	var frames [][]byte
	for index := current; index <= current+p.depth; index++ {
		rec, ok := p.cat.Get(index)
		if !ok {
			break
		}

		data, err := p.payload(rec.ID, rec.FileRef)
		if err != nil {
			p.logger.Warn("Не удалось прочитать изображение для упреждающей отправки",
				slog.String("relative_path", rec.RelativePath),
				slog.String("error", err.Error()),
			)
			continue
		}

		sum := xxhash.Sum64(data)
		p.mu.Lock()
		if prev, ok := p.sent[index]; ok && prev == sum {
			p.mu.Unlock()
			continue
		}
		p.sent[index] = sum
		p.mu.Unlock()

		frame, err := Encode(TypeImageData, &ImageDataPayload{
			Index:       index,
			ID:          rec.ID,
			Name:        rec.Name,
			ContentType: scan.ContentType(rec.Name),
			Data:        data,
		})
		if err != nil {
			p.logger.Error("Ошибка кодирования IMAGE_DATA",
				slog.String("relative_path", rec.RelativePath),
				slog.String("error", err.Error()),
			)
			continue
		}

		frames = append(frames, frame)
		prefetchSentTotal.Inc()
	}
	return frames
}

// payload возвращает байты изображения из кэша или с диска.
func (p *Prefetcher) payload(id, fileRef string) ([]byte, error) {
	if data, ok := p.cache.Get(id); ok {
		payloadCacheHitsTotal.Inc()
		return data, nil
	}
	payloadCacheMissesTotal.Inc()

	data, err := os.ReadFile(fileRef)
	if err != nil {
		return nil, err
	}
	p.cache.Add(id, data)
	return data, nil
}
