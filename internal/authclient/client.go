// Пакет authclient — HTTP-клиент к внешнему OTP-сервису аутентификации.
// Сервис отправляет одноразовые коды на email и ведёт серверные сессии.
// Операции: RequestCode, VerifyCode, GetSession, SignOut.
package authclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Ошибки клиента OTP-сервиса.
var (
	// ErrInvalidCode — код не совпал или истёк.
	ErrInvalidCode = errors.New("неверный или истёкший код")
	// ErrSessionNotFound — сессия не существует или отозвана.
	ErrSessionNotFound = errors.New("сессия не найдена")
)

// Session — активная сессия на стороне OTP-сервиса.
type Session struct {
	ID    string `json:"session_id"`
	Email string `json:"email"`
}

// Client — HTTP-клиент к OTP-сервису.
type Client struct {
	baseURL    string // Базовый URL сервиса (без trailing slash)
	httpClient *http.Client
	logger     *slog.Logger
}

// New создаёт клиент к OTP-сервису.
// baseURL — базовый URL (например, https://auth.example.com).
func New(baseURL string, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		logger:     logger.With(slog.String("component", "auth_client")),
	}
}

// --- HTTP helpers ---

// do выполняет HTTP-запрос к OTP-сервису с JSON-телом.
func (c *Client) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("сериализация тела запроса: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("создание запроса: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.httpClient.Do(req)
}

// decodeResponse декодирует JSON ответ в target.
func decodeResponse(resp *http.Response, target any) error {
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("OTP-сервис вернул статус %d: %s", resp.StatusCode, string(body))
	}

	if target != nil {
		if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
			return fmt.Errorf("декодирование ответа OTP-сервиса: %w", err)
		}
	}

	return nil
}

// --- Операции ---

// RequestCode просит сервис отправить одноразовый код на email.
// Успех не означает, что email есть в allow-list — это проверяется отдельно.
func (c *Client) RequestCode(ctx context.Context, email string) error {
	resp, err := c.do(ctx, http.MethodPost, "/otp/request", map[string]string{"email": email})
	if err != nil {
		return fmt.Errorf("запрос кода: %w", err)
	}

	if err := decodeResponse(resp, nil); err != nil {
		return fmt.Errorf("RequestCode: %w", err)
	}

	c.logger.Debug("Одноразовый код запрошен", slog.String("email", email))
	return nil
}

// VerifyCode проверяет код и при успехе создаёт сессию.
// Несовпадение или истечение кода — ErrInvalidCode.
func (c *Client) VerifyCode(ctx context.Context, email, code string) (*Session, error) {
	resp, err := c.do(ctx, http.MethodPost, "/otp/verify", map[string]string{
		"email": email,
		"code":  code,
	})
	if err != nil {
		return nil, fmt.Errorf("проверка кода: %w", err)
	}

	// Сервис отвечает 401 на неверный код
	if resp.StatusCode == http.StatusUnauthorized {
		resp.Body.Close()
		return nil, ErrInvalidCode
	}

	var sess Session
	if err := decodeResponse(resp, &sess); err != nil {
		return nil, fmt.Errorf("VerifyCode: %w", err)
	}

	c.logger.Debug("Сессия создана", slog.String("email", sess.Email))
	return &sess, nil
}

// GetSession возвращает сессию по id.
// Несуществующая или отозванная сессия — ErrSessionNotFound.
func (c *Client) GetSession(ctx context.Context, sessionID string) (*Session, error) {
	resp, err := c.do(ctx, http.MethodGet, "/sessions/"+sessionID, nil)
	if err != nil {
		return nil, fmt.Errorf("получение сессии: %w", err)
	}

	if resp.StatusCode == http.StatusNotFound {
		resp.Body.Close()
		return nil, ErrSessionNotFound
	}

	var sess Session
	if err := decodeResponse(resp, &sess); err != nil {
		return nil, fmt.Errorf("GetSession: %w", err)
	}

	return &sess, nil
}

// SignOut отзывает сессию. Отзыв уже отсутствующей сессии — не ошибка.
func (c *Client) SignOut(ctx context.Context, sessionID string) error {
	resp, err := c.do(ctx, http.MethodDelete, "/sessions/"+sessionID, nil)
	if err != nil {
		return fmt.Errorf("отзыв сессии: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("SignOut: OTP-сервис вернул статус %d: %s", resp.StatusCode, string(body))
	}

	return nil
}

// --- Readiness checker ---

// CheckReady проверяет доступность OTP-сервиса.
// Реализует handlers.ReadinessChecker.
func (c *Client) CheckReady() (string, string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return "fail", fmt.Sprintf("OTP-сервис: ошибка запроса: %v", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "fail", fmt.Sprintf("OTP-сервис недоступен: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "degraded", fmt.Sprintf("OTP-сервис вернул статус %d", resp.StatusCode)
	}

	return "ok", "OTP-сервис доступен"
}
