// Пакет handlers — HTTP-обработчики веб-интерфейса.
// catalog.go — публичные страницы: каталог с фильтрами и скачивание.
package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/arturkryukov/paperbank/internal/domain/model"
	"github.com/arturkryukov/paperbank/internal/service"
	"github.com/arturkryukov/paperbank/internal/ui/pages"
)

// CatalogHandler — обработчики публичной части сайта.
type CatalogHandler struct {
	catalog *service.CatalogService
	logger  *slog.Logger
}

// NewCatalogHandler создаёт новый CatalogHandler.
func NewCatalogHandler(catalog *service.CatalogService, logger *slog.Logger) *CatalogHandler {
	return &CatalogHandler{
		catalog: catalog,
		logger:  logger.With(slog.String("component", "ui_catalog")),
	}
}

// HandleIndex — GET /
// Рендерит каталог: фильтры из query-параметров применяются к снапшоту
// в памяти, фасеты выводятся из полного (нефильтрованного) каталога.
func (h *CatalogHandler) HandleIndex(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	criteria := model.FilterCriteria{
		Search:   q.Get("q"),
		Subject:  q.Get("subject"),
		Year:     q.Get("year"),
		District: q.Get("district"),
		Set:      q.Get("set"),
	}

	records := h.catalog.Records()
	data := pages.CatalogData{
		Records:  service.ApplyFilters(records, criteria),
		Total:    len(records),
		Facets:   service.DeriveFacets(records),
		Criteria: criteria,
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := pages.Catalog(w, data); err != nil {
		h.logger.Error("Ошибка рендеринга каталога", slog.String("error", err.Error()))
	}
}

// HandleDownload — GET /download/{id}
// Инкрементирует счётчик скачиваний и делает redirect на файл.
// Отказ счётчика не блокирует скачивание.
func (h *CatalogHandler) HandleDownload(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := uuid.Parse(id); err != nil {
		http.NotFound(w, r)
		return
	}

	rec, err := h.catalog.RecordDownload(r.Context(), id)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			http.NotFound(w, r)
			return
		}
		h.logger.Error("Ошибка обработки скачивания",
			slog.String("id", id),
			slog.String("error", err.Error()),
		)
		http.Error(w, "Внутренняя ошибка сервера", http.StatusInternalServerError)
		return
	}

	h.logger.Info("Скачивание документа",
		slog.String("id", rec.ID),
		slog.String("title", rec.Title),
		slog.Int("downloads", rec.Downloads),
	)

	http.Redirect(w, r, rec.URL, http.StatusFound)
}
