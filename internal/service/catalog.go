// catalog.go — движок публичного каталога question-bank документов.
//
// CatalogService держит в памяти snapshot всех записей реестра (каталог
// небольшой, весь отдаётся клиенту целиком). Refresh перечитывает snapshot
// из БД; при ошибке чтения прежний snapshot сохраняется. Фильтрация и
// вычисление фасетов — чистые функции поверх snapshot'а.
//
// Prometheus-метрики:
//   - paperbank_downloads_total — количество зафиксированных скачиваний
//   - paperbank_catalog_refresh_duration_seconds — длительность перезагрузки
//   - paperbank_catalog_refresh_errors_total — ошибки перезагрузки
//   - paperbank_catalog_records — размер текущего snapshot'а
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/arturkryukov/paperbank/internal/domain/model"
	"github.com/arturkryukov/paperbank/internal/repository"
)

// Prometheus-метрики каталога.
var (
	downloadsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "paperbank_downloads_total",
		Help: "Количество зафиксированных скачиваний документов.",
	})

	refreshDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "paperbank_catalog_refresh_duration_seconds",
		Help:    "Длительность перезагрузки snapshot'а каталога из БД.",
		Buckets: prometheus.ExponentialBuckets(0.005, 2, 10),
	})

	refreshErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "paperbank_catalog_refresh_errors_total",
		Help: "Количество неудачных перезагрузок каталога.",
	})

	catalogRecords = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "paperbank_catalog_records",
		Help: "Количество записей в текущем snapshot'е каталога.",
	})
)

// CatalogService — in-memory snapshot каталога поверх реестра.
type CatalogService struct {
	repo   repository.QuestionBankRepository
	logger *slog.Logger

	mu      sync.RWMutex
	records []*model.QuestionBank
}

// NewCatalogService создаёт сервис каталога с пустым snapshot'ом.
func NewCatalogService(repo repository.QuestionBankRepository, logger *slog.Logger) *CatalogService {
	return &CatalogService{
		repo:   repo,
		logger: logger.With(slog.String("component", "catalog_service")),
	}
}

// Refresh перечитывает snapshot каталога из БД (полная перезагрузка).
// При ошибке чтения прежний snapshot не трогается.
func (s *CatalogService) Refresh(ctx context.Context) error {
	start := time.Now()

	records, err := s.repo.List(ctx)
	if err != nil {
		refreshErrorsTotal.Inc()
		return fmt.Errorf("%w: %v", ErrRetrieval, err)
	}

	s.mu.Lock()
	s.records = records
	s.mu.Unlock()

	refreshDuration.Observe(time.Since(start).Seconds())
	catalogRecords.Set(float64(len(records)))

	s.logger.Debug("Snapshot каталога обновлён",
		slog.Int("records", len(records)),
		slog.Duration("duration", time.Since(start)),
	)
	return nil
}

// Records возвращает копию текущего snapshot'а (новые записи первыми).
func (s *CatalogService) Records() []*model.QuestionBank {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*model.QuestionBank, len(s.records))
	copy(out, s.records)
	return out
}

// RecordDownload фиксирует скачивание: атомарный +1 в БД и в snapshot'е.
// Возвращает запись с URL файла. Неизвестный id — ErrNotFound.
// Если инкремент в БД не удался, скачивание всё равно разрешается:
// возвращается запись без ошибки, сбой счётчика только логируется.
func (s *CatalogService) RecordDownload(ctx context.Context, id string) (*model.QuestionBank, error) {
	downloads, err := s.repo.IncrementDownloads(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}

		// Счётчик вторичен по отношению к скачиванию
		s.logger.Error("Ошибка фиксации скачивания, redirect выполняется без инкремента",
			slog.String("id", id),
			slog.String("error", err.Error()),
		)
		if rec := s.find(id); rec != nil {
			return rec, nil
		}
		qb, getErr := s.repo.GetByID(ctx, id)
		if getErr != nil {
			if errors.Is(getErr, repository.ErrNotFound) {
				return nil, ErrNotFound
			}
			return nil, fmt.Errorf("%w: %v", ErrRetrieval, getErr)
		}
		return qb, nil
	}

	downloadsTotal.Inc()

	// Обновляем копию в snapshot'е
	s.mu.Lock()
	var rec *model.QuestionBank
	for i, r := range s.records {
		if r.ID == id {
			updated := *r
			updated.Downloads = downloads
			s.records[i] = &updated
			rec = &updated
			break
		}
	}
	s.mu.Unlock()

	if rec != nil {
		return rec, nil
	}

	// Записи нет в snapshot'е (создана после последнего Refresh)
	qb, getErr := s.repo.GetByID(ctx, id)
	if getErr != nil {
		if errors.Is(getErr, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrRetrieval, getErr)
	}
	return qb, nil
}

// find возвращает запись snapshot'а по id или nil.
func (s *CatalogService) find(id string) *model.QuestionBank {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.records {
		if r.ID == id {
			return r
		}
	}
	return nil
}

// --- Чистые функции фильтрации ---

// ApplyFilters возвращает записи, удовлетворяющие всем заданным критериям
// (AND-семантика), с сохранением исходного порядка. Пустой критерий не
// ограничивает. Исходный срез не изменяется.
func ApplyFilters(records []*model.QuestionBank, c model.FilterCriteria) []*model.QuestionBank {
	if c.IsEmpty() {
		out := make([]*model.QuestionBank, len(records))
		copy(out, records)
		return out
	}

	search := strings.ToLower(c.Search)

	out := make([]*model.QuestionBank, 0, len(records))
	for _, r := range records {
		if search != "" && !matchesSearch(r, search) {
			continue
		}
		if c.Subject != "" && r.Subject != c.Subject {
			continue
		}
		if c.Year != "" && strconv.Itoa(r.Year) != c.Year {
			continue
		}
		if c.District != "" && (r.District == nil || *r.District != c.District) {
			continue
		}
		if c.Set != "" && (r.Set == nil || *r.Set != c.Set) {
			continue
		}
		out = append(out, r)
	}
	return out
}

// matchesSearch проверяет подстрочное вхождение search (уже в нижнем регистре)
// в title, description или subject записи.
func matchesSearch(r *model.QuestionBank, search string) bool {
	if strings.Contains(strings.ToLower(r.Title), search) {
		return true
	}
	if r.Description != nil && strings.Contains(strings.ToLower(*r.Description), search) {
		return true
	}
	return strings.Contains(strings.ToLower(r.Subject), search)
}

// DeriveFacets вычисляет наборы значений для выпадающих списков фильтров.
// Subjects/Districts/Sets — уникальные значения в порядке первого появления,
// NULL пропускаются. Years — уникальные годы по убыванию.
func DeriveFacets(records []*model.QuestionBank) model.Facets {
	var f model.Facets

	seenSubjects := make(map[string]bool)
	seenYears := make(map[int]bool)
	seenDistricts := make(map[string]bool)
	seenSets := make(map[string]bool)

	for _, r := range records {
		if !seenSubjects[r.Subject] {
			seenSubjects[r.Subject] = true
			f.Subjects = append(f.Subjects, r.Subject)
		}
		if !seenYears[r.Year] {
			seenYears[r.Year] = true
			f.Years = append(f.Years, r.Year)
		}
		if r.District != nil && *r.District != "" && !seenDistricts[*r.District] {
			seenDistricts[*r.District] = true
			f.Districts = append(f.Districts, *r.District)
		}
		if r.Set != nil && *r.Set != "" && !seenSets[*r.Set] {
			seenSets[*r.Set] = true
			f.Sets = append(f.Sets, *r.Set)
		}
	}

	// Годы — по убыванию
	sort.Sort(sort.Reverse(sort.IntSlice(f.Years)))

	return f
}
