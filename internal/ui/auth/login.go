// login.go — машина состояний OTP-входа в админ-панель.
//
// Вход двухшаговый: email → allow-list → отправка кода → проверка кода →
// повторная проверка allow-list → сессия. Переходы — чистые функции над
// FlowState, побочные эффекты (OTP-сервис, БД) инжектируются интерфейсами.
// Между POST'ами FlowState хранится в короткоживущем зашифрованном cookie.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/arturkryukov/paperbank/internal/authclient"
)

// Состояния машины входа.
type LoginState string

const (
	// StateAwaitingEmail — начальное состояние, ожидается email.
	StateAwaitingEmail LoginState = "awaiting_email"
	// StateAwaitingCode — код отправлен, ожидается ввод.
	StateAwaitingCode LoginState = "awaiting_code"
	// StateAuthenticated — вход завершён, сессия создана.
	StateAuthenticated LoginState = "authenticated"
)

// ErrNotAuthorized — email отсутствует в allow-list администраторов.
var ErrNotAuthorized = errors.New("доступ запрещён: email отсутствует в списке администраторов")

// FlowState — состояние машины входа между POST'ами формы.
type FlowState struct {
	State LoginState `json:"state"`
	Email string     `json:"email,omitempty"`
	// SessionID заполняется только в состоянии authenticated.
	SessionID string `json:"session_id,omitempty"`
}

// NewFlowState возвращает начальное состояние машины входа.
func NewFlowState() FlowState {
	return FlowState{State: StateAwaitingEmail}
}

// AdminDirectory — проверка allow-list администраторов.
// Реализуется repository.AdminRepository.
type AdminDirectory interface {
	ExistsByEmail(ctx context.Context, email string) (bool, error)
}

// CodeAuthenticator — операции OTP-сервиса, нужные машине входа.
// Реализуется authclient.Client.
type CodeAuthenticator interface {
	RequestCode(ctx context.Context, email string) error
	VerifyCode(ctx context.Context, email, code string) (*authclient.Session, error)
	SignOut(ctx context.Context, sessionID string) error
}

// LoginFlow — переходы машины входа.
type LoginFlow struct {
	admins AdminDirectory
	codes  CodeAuthenticator
	logger *slog.Logger
}

// NewLoginFlow создаёт машину входа.
func NewLoginFlow(admins AdminDirectory, codes CodeAuthenticator, logger *slog.Logger) *LoginFlow {
	return &LoginFlow{
		admins: admins,
		codes:  codes,
		logger: logger.With(slog.String("component", "login_flow")),
	}
}

// SubmitEmail обрабатывает отправку email.
//
// Email вне allow-list — ErrNotAuthorized, код не запрашивается, состояние
// не меняется. Ошибка OTP-сервиса также оставляет состояние неизменным.
// Успех — переход в awaiting_code.
func (f *LoginFlow) SubmitEmail(ctx context.Context, st FlowState, email string) (FlowState, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" {
		return st, fmt.Errorf("%w", ErrNotAuthorized)
	}

	exists, err := f.admins.ExistsByEmail(ctx, email)
	if err != nil {
		return st, fmt.Errorf("проверка allow-list: %w", err)
	}
	if !exists {
		f.logger.Warn("Попытка входа с email вне allow-list", slog.String("email", email))
		return st, ErrNotAuthorized
	}

	if err := f.codes.RequestCode(ctx, email); err != nil {
		return st, fmt.Errorf("отправка кода: %w", err)
	}

	f.logger.Info("Код отправлен", slog.String("email", email))
	return FlowState{State: StateAwaitingCode, Email: email}, nil
}

// SubmitCode обрабатывает отправку одноразового кода.
//
// Несовпадение кода — authclient.ErrInvalidCode, состояние остаётся
// awaiting_code (можно ввести код повторно или запросить новый через Back).
// После успешной проверки кода allow-list проверяется повторно: если email
// успели убрать из списка, созданная сессия немедленно отзывается и
// возвращается ErrNotAuthorized.
func (f *LoginFlow) SubmitCode(ctx context.Context, st FlowState, code string) (FlowState, error) {
	if st.State != StateAwaitingCode {
		return st, fmt.Errorf("некорректное состояние входа: %s", st.State)
	}

	sess, err := f.codes.VerifyCode(ctx, st.Email, strings.TrimSpace(code))
	if err != nil {
		if errors.Is(err, authclient.ErrInvalidCode) {
			f.logger.Warn("Неверный код", slog.String("email", st.Email))
			return st, err
		}
		return st, fmt.Errorf("проверка кода: %w", err)
	}

	// Повторная проверка allow-list: email мог быть отозван,
	// пока пользователь вводил код
	exists, err := f.admins.ExistsByEmail(ctx, st.Email)
	if err != nil || !exists {
		if soErr := f.codes.SignOut(ctx, sess.ID); soErr != nil {
			f.logger.Error("Ошибка отзыва сессии неавторизованного пользователя",
				slog.String("email", st.Email),
				slog.String("error", soErr.Error()),
			)
		}
		if err != nil {
			return st, fmt.Errorf("проверка allow-list: %w", err)
		}
		f.logger.Warn("Email отозван из allow-list после проверки кода", slog.String("email", st.Email))
		return st, ErrNotAuthorized
	}

	f.logger.Info("Вход выполнен", slog.String("email", st.Email))
	return FlowState{State: StateAuthenticated, Email: st.Email, SessionID: sess.ID}, nil
}

// Back возвращает с шага ввода кода на шаг ввода email.
// Email сохраняется для предзаполнения формы, код и ошибки сбрасываются.
func (f *LoginFlow) Back(st FlowState) FlowState {
	if st.State != StateAwaitingCode {
		return st
	}
	return FlowState{State: StateAwaitingEmail, Email: st.Email}
}

// --- Cookie состояния входа ---

// Имя короткоживущего cookie с FlowState.
const FlowCookieName = "paperbank_login"

// Максимальный возраст cookie входа (10 минут — время жизни кода).
const FlowCookieMaxAge = 10 * 60

// SetFlowCookie сохраняет FlowState в зашифрованный cookie.
func (sm *SessionManager) SetFlowCookie(w http.ResponseWriter, st FlowState) error {
	plaintext, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("ошибка сериализации состояния входа: %w", err)
	}
	encrypted, err := sm.encryptBytes(plaintext)
	if err != nil {
		return err
	}

	http.SetCookie(w, &http.Cookie{
		Name:     FlowCookieName,
		Value:    encrypted,
		Path:     "/admin",
		MaxAge:   FlowCookieMaxAge,
		HttpOnly: true,
		Secure:   sm.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// GetFlowFromRequest извлекает FlowState из cookie запроса.
// Отсутствующий или нечитаемый cookie — начальное состояние.
func (sm *SessionManager) GetFlowFromRequest(r *http.Request) FlowState {
	cookie, err := r.Cookie(FlowCookieName)
	if err != nil {
		return NewFlowState()
	}

	plaintext, err := sm.decryptBytes(cookie.Value)
	if err != nil {
		return NewFlowState()
	}

	var st FlowState
	if err := json.Unmarshal(plaintext, &st); err != nil {
		return NewFlowState()
	}
	if st.State == "" {
		return NewFlowState()
	}
	return st
}

// ClearFlowCookie удаляет cookie состояния входа.
func (sm *SessionManager) ClearFlowCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     FlowCookieName,
		Value:    "",
		Path:     "/admin",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   sm.secure,
		SameSite: http.SameSiteLaxMode,
	})
}
