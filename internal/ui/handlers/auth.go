// auth.go — вход в админ-панель по одноразовому коду на email.
package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/arturkryukov/paperbank/internal/authclient"
	"github.com/arturkryukov/paperbank/internal/ui/auth"
	"github.com/arturkryukov/paperbank/internal/ui/pages"
)

// AuthHandler — обработчики входа и выхода админ-панели.
type AuthHandler struct {
	flow           *auth.LoginFlow
	sessionManager *auth.SessionManager
	authClient     *authclient.Client
	logger         *slog.Logger
}

// NewAuthHandler создаёт новый AuthHandler.
func NewAuthHandler(
	flow *auth.LoginFlow,
	sessionManager *auth.SessionManager,
	authClient *authclient.Client,
	logger *slog.Logger,
) *AuthHandler {
	return &AuthHandler{
		flow:           flow,
		sessionManager: sessionManager,
		authClient:     authClient,
		logger:         logger.With(slog.String("component", "ui_auth")),
	}
}

// HandleLoginPage — GET /admin/login
// Уже аутентифицированных отправляет на дашборд, остальным рендерит
// форму входа в текущем состоянии машины (email или код).
func (h *AuthHandler) HandleLoginPage(w http.ResponseWriter, r *http.Request) {
	if sess, err := h.sessionManager.GetSessionFromRequest(r); err == nil && sess != nil && !sess.IsExpired() {
		http.Redirect(w, r, "/admin/", http.StatusFound)
		return
	}

	st := h.sessionManager.GetFlowFromRequest(r)
	h.renderLogin(w, pages.LoginData{
		Step:  string(st.State),
		Email: st.Email,
	})
}

// HandleSubmitEmail — POST /admin/login/email
// Проверяет email по allow-list и запрашивает одноразовый код.
func (h *AuthHandler) HandleSubmitEmail(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Некорректная форма", http.StatusBadRequest)
		return
	}
	email := r.PostFormValue("email")

	st := h.sessionManager.GetFlowFromRequest(r)
	next, err := h.flow.SubmitEmail(r.Context(), st, email)
	if err != nil {
		data := pages.LoginData{Step: string(st.State), Email: email}
		if errors.Is(err, auth.ErrNotAuthorized) {
			data.Error = "Этот email не входит в список администраторов."
		} else {
			h.logger.Error("Ошибка отправки кода", slog.String("error", err.Error()))
			data.Error = "Не удалось отправить код. Попробуйте ещё раз."
		}
		h.renderLogin(w, data)
		return
	}

	if err := h.sessionManager.SetFlowCookie(w, next); err != nil {
		h.logger.Error("Ошибка установки cookie входа", slog.String("error", err.Error()))
		http.Error(w, "Внутренняя ошибка сервера", http.StatusInternalServerError)
		return
	}

	h.renderLogin(w, pages.LoginData{
		Step:   string(next.State),
		Email:  next.Email,
		Notice: "Код отправлен на " + next.Email + ".",
	})
}

// HandleSubmitCode — POST /admin/login/code
// Проверяет одноразовый код; при успехе создаёт сессию админ-панели.
func (h *AuthHandler) HandleSubmitCode(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Некорректная форма", http.StatusBadRequest)
		return
	}
	code := r.PostFormValue("code")

	st := h.sessionManager.GetFlowFromRequest(r)
	next, err := h.flow.SubmitCode(r.Context(), st, code)
	if err != nil {
		data := pages.LoginData{Step: string(st.State), Email: st.Email}
		switch {
		case errors.Is(err, authclient.ErrInvalidCode):
			data.Error = "Неверный код. Проверьте письмо и попробуйте ещё раз."
		case errors.Is(err, auth.ErrNotAuthorized):
			// Email отозван между отправкой кода и его вводом —
			// возвращаемся на шаг ввода email
			h.sessionManager.ClearFlowCookie(w)
			data.Step = string(auth.StateAwaitingEmail)
			data.Error = "Этот email не входит в список администраторов."
		default:
			h.logger.Error("Ошибка проверки кода", slog.String("error", err.Error()))
			data.Error = "Не удалось проверить код. Попробуйте ещё раз."
		}
		h.renderLogin(w, data)
		return
	}

	sessionData := &auth.SessionData{
		SessionID: next.SessionID,
		Email:     next.Email,
		ExpiresAt: time.Now().Add(auth.SessionCookieMaxAge * time.Second).Unix(),
	}
	if err := h.sessionManager.SetSessionCookie(w, sessionData); err != nil {
		h.logger.Error("Ошибка установки session cookie", slog.String("error", err.Error()))
		http.Error(w, "Ошибка создания сессии", http.StatusInternalServerError)
		return
	}
	h.sessionManager.ClearFlowCookie(w)

	http.Redirect(w, r, "/admin/", http.StatusFound)
}

// HandleBack — POST /admin/login/back
// Возврат с шага ввода кода на шаг ввода email.
func (h *AuthHandler) HandleBack(w http.ResponseWriter, r *http.Request) {
	st := h.flow.Back(h.sessionManager.GetFlowFromRequest(r))
	if err := h.sessionManager.SetFlowCookie(w, st); err != nil {
		h.logger.Error("Ошибка установки cookie входа", slog.String("error", err.Error()))
	}
	h.renderLogin(w, pages.LoginData{
		Step:  string(st.State),
		Email: st.Email,
	})
}

// HandleLogout — POST /admin/logout
// Отзывает сессию на OTP-сервисе и очищает cookies.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if sess, err := h.sessionManager.GetSessionFromRequest(r); err == nil && sess != nil {
		if err := h.authClient.SignOut(r.Context(), sess.SessionID); err != nil {
			h.logger.Error("Ошибка отзыва сессии при выходе",
				slog.String("email", sess.Email),
				slog.String("error", err.Error()),
			)
		}
	}

	h.sessionManager.ClearSessionCookie(w)
	h.sessionManager.ClearFlowCookie(w)

	h.logger.Info("Администратор выполнил выход")
	http.Redirect(w, r, "/admin/login", http.StatusFound)
}

func (h *AuthHandler) renderLogin(w http.ResponseWriter, data pages.LoginData) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := pages.Login(w, data); err != nil {
		h.logger.Error("Ошибка рендеринга страницы входа", slog.String("error", err.Error()))
	}
}
