// dashboard.go — дашборд админ-панели: список записей и CRUD-формы.
//
// Каждый запрос дашборда заново проверяет живость сессии у OTP-сервиса и
// allow-list администраторов: cookie-проверка в middleware только грубая.
package handlers

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/arturkryukov/paperbank/internal/authclient"
	"github.com/arturkryukov/paperbank/internal/domain/model"
	"github.com/arturkryukov/paperbank/internal/repository"
	"github.com/arturkryukov/paperbank/internal/service"
	"github.com/arturkryukov/paperbank/internal/ui/auth"
	uimiddleware "github.com/arturkryukov/paperbank/internal/ui/middleware"
	"github.com/arturkryukov/paperbank/internal/ui/pages"
)

// DashboardHandler — обработчики защищённой части админ-панели.
type DashboardHandler struct {
	catalog        *service.CatalogService
	editor         *service.EditorService
	admins         repository.AdminRepository
	authClient     *authclient.Client
	sessionManager *auth.SessionManager
	// maxUploadSize — лимит multipart-формы (PB_MAX_UPLOAD_SIZE).
	maxUploadSize int64
	logger        *slog.Logger
}

// NewDashboardHandler создаёт новый DashboardHandler.
func NewDashboardHandler(
	catalog *service.CatalogService,
	editor *service.EditorService,
	admins repository.AdminRepository,
	authClient *authclient.Client,
	sessionManager *auth.SessionManager,
	maxUploadSize int64,
	logger *slog.Logger,
) *DashboardHandler {
	return &DashboardHandler{
		catalog:        catalog,
		editor:         editor,
		admins:         admins,
		authClient:     authClient,
		sessionManager: sessionManager,
		maxUploadSize:  maxUploadSize,
		logger:         logger.With(slog.String("component", "ui_dashboard")),
	}
}

// requireAdmin выполняет авторитетную проверку запроса дашборда:
// сессия жива на стороне OTP-сервиса и email всё ещё в allow-list.
// При любом отказе очищает cookie и делает redirect на login.
func (h *DashboardHandler) requireAdmin(w http.ResponseWriter, r *http.Request) *model.Admin {
	sess := uimiddleware.SessionFromContext(r.Context())
	if sess == nil {
		http.Redirect(w, r, "/admin/login", http.StatusFound)
		return nil
	}

	if _, err := h.authClient.GetSession(r.Context(), sess.SessionID); err != nil {
		if !errors.Is(err, authclient.ErrSessionNotFound) {
			h.logger.Error("Ошибка проверки сессии", slog.String("error", err.Error()))
		}
		h.sessionManager.ClearSessionCookie(w)
		http.Redirect(w, r, "/admin/login", http.StatusFound)
		return nil
	}

	admin, err := h.admins.GetByEmail(r.Context(), sess.Email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// Email отозван из allow-list — немедленно отзываем сессию
			h.logger.Warn("Сессия администратора, отозванного из allow-list",
				slog.String("email", sess.Email),
			)
			if soErr := h.authClient.SignOut(r.Context(), sess.SessionID); soErr != nil {
				h.logger.Error("Ошибка отзыва сессии", slog.String("error", soErr.Error()))
			}
		} else {
			h.logger.Error("Ошибка чтения allow-list", slog.String("error", err.Error()))
		}
		h.sessionManager.ClearSessionCookie(w)
		http.Redirect(w, r, "/admin/login", http.StatusFound)
		return nil
	}

	return admin
}

// HandleDashboard — GET /admin/
// Рендерит дашборд: формы создания и редактирования поверх полного каталога.
func (h *DashboardHandler) HandleDashboard(w http.ResponseWriter, r *http.Request) {
	admin := h.requireAdmin(w, r)
	if admin == nil {
		return
	}

	q := r.URL.Query()
	data := pages.DashboardData{
		AdminName:  admin.Name,
		AdminEmail: admin.Email,
		Records:    h.catalog.Records(),
		// Верхняя граница поля «год»: следующий год допустим для
		// заранее публикуемых материалов
		CurrentYear: time.Now().Year() + 1,
		Flash:       q.Get("flash"),
		Error:       q.Get("error"),
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := pages.Dashboard(w, data); err != nil {
		h.logger.Error("Ошибка рендеринга дашборда", slog.String("error", err.Error()))
	}
}

// HandleCreate — POST /admin/records
// Создаёт запись каталога из multipart-формы (файл обязателен).
func (h *DashboardHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	admin := h.requireAdmin(w, r)
	if admin == nil {
		return
	}

	in, ok := h.parseRecordForm(w, r)
	if !ok {
		return
	}
	in.UploadedBy = admin.ID

	if _, err := h.editor.Submit(r.Context(), in); err != nil {
		h.redirectWithError(w, r, err, "Could not create the document.")
		return
	}

	h.refreshCatalog(r)
	h.redirectWithFlash(w, r, "Document created.")
}

// HandleUpdate — POST /admin/records/{id}
// Обновляет запись; файл в форме опционален (пустой — оставить прежний).
func (h *DashboardHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	admin := h.requireAdmin(w, r)
	if admin == nil {
		return
	}

	in, ok := h.parseRecordForm(w, r)
	if !ok {
		return
	}
	in.ID = chi.URLParam(r, "id")
	in.UploadedBy = admin.ID

	if _, err := h.editor.Submit(r.Context(), in); err != nil {
		h.redirectWithError(w, r, err, "Could not update the document.")
		return
	}

	h.refreshCatalog(r)
	h.redirectWithFlash(w, r, "Document updated.")
}

// HandleDelete — POST /admin/records/{id}/delete
// Удаляет запись реестра. Файл в хранилище остаётся — его подберёт
// фоновая сверка.
func (h *DashboardHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	admin := h.requireAdmin(w, r)
	if admin == nil {
		return
	}

	id := chi.URLParam(r, "id")
	if err := h.editor.Delete(r.Context(), id); err != nil {
		h.redirectWithError(w, r, err, "Could not delete the document.")
		return
	}

	h.logger.Info("Запись удалена администратором",
		slog.String("id", id),
		slog.String("admin", admin.Email),
	)

	h.refreshCatalog(r)
	h.redirectWithFlash(w, r, "Document deleted.")
}

// parseRecordForm разбирает multipart-форму записи.
// Отсутствие файла в форме — не ошибка (File = nil).
func (h *DashboardHandler) parseRecordForm(w http.ResponseWriter, r *http.Request) (service.RecordInput, bool) {
	if err := r.ParseMultipartForm(h.maxUploadSize); err != nil {
		h.logger.Warn("Ошибка разбора multipart-формы", slog.String("error", err.Error()))
		h.redirectWithError(w, r, service.ErrValidation, "The form could not be processed.")
		return service.RecordInput{}, false
	}

	in := service.RecordInput{
		Title:       r.PostFormValue("title"),
		Description: r.PostFormValue("description"),
		Subject:     r.PostFormValue("subject"),
		Year:        r.PostFormValue("year"),
		District:    r.PostFormValue("district"),
		Set:         r.PostFormValue("set"),
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		if !errors.Is(err, http.ErrMissingFile) {
			h.logger.Warn("Ошибка чтения файла из формы", slog.String("error", err.Error()))
			h.redirectWithError(w, r, service.ErrValidation, "The uploaded file could not be read.")
			return service.RecordInput{}, false
		}
		return in, true
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		h.logger.Error("Ошибка чтения содержимого файла", slog.String("error", err.Error()))
		h.redirectWithError(w, r, service.ErrValidation, "The uploaded file could not be read.")
		return service.RecordInput{}, false
	}

	in.File = &service.FileUpload{Name: header.Filename, Data: data}
	return in, true
}

// refreshCatalog обновляет снапшот каталога после записи в реестр.
// Ошибка обновления не блокирует ответ: снапшот догонит следующая операция.
func (h *DashboardHandler) refreshCatalog(r *http.Request) {
	if err := h.catalog.Refresh(r.Context()); err != nil {
		h.logger.Error("Ошибка обновления каталога после записи",
			slog.String("error", err.Error()),
		)
	}
}

func (h *DashboardHandler) redirectWithFlash(w http.ResponseWriter, r *http.Request, msg string) {
	http.Redirect(w, r, "/admin/?flash="+url.QueryEscape(msg), http.StatusFound)
}

// redirectWithError переводит ошибку редактора в сообщение для пользователя.
func (h *DashboardHandler) redirectWithError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	msg := fallback
	switch {
	case errors.Is(err, service.ErrValidation):
		msg = "Invalid form data: check the required fields, the year and the file."
	case errors.Is(err, service.ErrNotFound):
		msg = "The document record no longer exists."
	case errors.Is(err, service.ErrWrite):
		msg = "Saving failed. Try again."
	}
	if !errors.Is(err, service.ErrValidation) && !errors.Is(err, service.ErrNotFound) {
		h.logger.Error("Ошибка операции редактора", slog.String("error", err.Error()))
	}
	http.Redirect(w, r, "/admin/?error="+url.QueryEscape(msg), http.StatusFound)
}
