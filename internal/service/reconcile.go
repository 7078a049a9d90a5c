// reconcile.go — сервис периодической сверки файлового хранилища с реестром.
//
// ReconcileService запускает фоновую горутину с ticker (PB_RECONCILE_INTERVAL),
// которая сравнивает объекты под префиксом question-banks/ с множеством URL
// из реестра. Объект без записи — сирота: Delete убирает запись, не трогая
// файл, а порядок «сначала файл, потом запись» при Submit может оставить
// файл без записи при сбое.
//
// Объекты моложе grace-периода пропускаются: файл мог быть только что
// загружен, а запись ещё не создана. Удаление сирот включается флагом
// PB_RECONCILE_DELETE, по умолчанию сироты только логируются.
//
// Prometheus-метрики:
//   - paperbank_reconcile_orphans_found_total — найденные сироты
//   - paperbank_reconcile_orphans_deleted_total — удалённые сироты
//   - paperbank_reconcile_duration_seconds — длительность прохода
package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/arturkryukov/paperbank/internal/filestore"
	"github.com/arturkryukov/paperbank/internal/repository"
)

// Prometheus-метрики сверки.
var (
	orphansFoundTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "paperbank_reconcile_orphans_found_total",
		Help: "Количество объектов хранилища без записи в реестре.",
	})

	orphansDeletedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "paperbank_reconcile_orphans_deleted_total",
		Help: "Количество удалённых объектов-сирот.",
	})

	reconcileDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "paperbank_reconcile_duration_seconds",
		Help:    "Длительность прохода сверки хранилища с реестром.",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
	})
)

// ObjectStore — операции хранилища, нужные сверке. Реализуется filestore.Store.
type ObjectStore interface {
	List(ctx context.Context) ([]filestore.Object, error)
	Remove(ctx context.Context, key string) error
}

// ReconcileResult — итог одного прохода сверки.
type ReconcileResult struct {
	// Objects — всего объектов под префиксом каталога.
	Objects int
	// OrphansFound — объектов без записи в реестре (после grace-фильтра).
	OrphansFound int
	// OrphansDeleted — удалено объектов (0, если удаление выключено).
	OrphansDeleted int
}

// ReconcileService — фоновый сервис сверки хранилища с реестром.
type ReconcileService struct {
	store         ObjectStore
	repo          repository.QuestionBankRepository
	interval      time.Duration
	grace         time.Duration
	deleteOrphans bool
	logger        *slog.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

// NewReconcileService создаёт сервис сверки.
func NewReconcileService(
	store ObjectStore,
	repo repository.QuestionBankRepository,
	interval, grace time.Duration,
	deleteOrphans bool,
	logger *slog.Logger,
) *ReconcileService {
	return &ReconcileService{
		store:         store,
		repo:          repo,
		interval:      interval,
		grace:         grace,
		deleteOrphans: deleteOrphans,
		logger:        logger.With(slog.String("component", "reconcile_service")),
	}
}

// Start запускает фоновую горутину с периодической сверкой.
// Вызывается один раз при старте приложения.
func (s *ReconcileService) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)

		s.logger.Info("Периодическая сверка хранилища запущена",
			slog.String("interval", s.interval.String()),
			slog.String("grace", s.grace.String()),
			slog.Bool("delete_orphans", s.deleteOrphans),
		)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				s.logger.Info("Периодическая сверка хранилища остановлена")
				return
			case <-ticker.C:
				result, err := s.ReconcileOnce(ctx)
				if err != nil {
					s.logger.Error("Ошибка сверки хранилища", slog.String("error", err.Error()))
				} else {
					s.logger.Info("Сверка хранилища завершена",
						slog.Int("objects", result.Objects),
						slog.Int("orphans_found", result.OrphansFound),
						slog.Int("orphans_deleted", result.OrphansDeleted),
					)
				}
			}
		}
	}()
}

// Stop останавливает фоновую горутину и ждёт завершения.
func (s *ReconcileService) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	if s.done != nil {
		<-s.done
	}
}

// ReconcileOnce выполняет один проход сверки:
// множество объектов хранилища минус множество ключей из URL реестра.
func (s *ReconcileService) ReconcileOnce(ctx context.Context) (*ReconcileResult, error) {
	start := time.Now()
	defer func() {
		reconcileDuration.Observe(time.Since(start).Seconds())
	}()

	urls, err := s.repo.ListURLs(ctx)
	if err != nil {
		return nil, fmt.Errorf("получение URL реестра: %w", err)
	}

	referenced := make(map[string]bool, len(urls))
	for _, u := range urls {
		if key := keyFromURL(u); key != "" {
			referenced[key] = true
		}
	}

	objects, err := s.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("листинг объектов хранилища: %w", err)
	}

	result := &ReconcileResult{Objects: len(objects)}
	now := time.Now()

	for _, obj := range objects {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if referenced[obj.Key] {
			continue
		}
		// Свежий объект: запись могла ещё не появиться
		if now.Sub(obj.LastModified) < s.grace {
			continue
		}

		result.OrphansFound++
		orphansFoundTotal.Inc()

		if !s.deleteOrphans {
			s.logger.Warn("Объект-сирота в хранилище",
				slog.String("key", obj.Key),
				slog.Time("last_modified", obj.LastModified),
			)
			continue
		}

		if err := s.store.Remove(ctx, obj.Key); err != nil {
			s.logger.Error("Ошибка удаления объекта-сироты",
				slog.String("key", obj.Key),
				slog.String("error", err.Error()),
			)
			continue
		}
		result.OrphansDeleted++
		orphansDeletedTotal.Inc()
		s.logger.Info("Объект-сирота удалён", slog.String("key", obj.Key))
	}

	return result, nil
}

// keyFromURL извлекает имя объекта (с префиксом question-banks/) из
// публичного URL файла. Пустая строка — URL вне namespace каталога.
func keyFromURL(u string) string {
	idx := strings.Index(u, filestore.Prefix)
	if idx < 0 {
		return ""
	}
	return u[idx:]
}
