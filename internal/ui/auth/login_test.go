package auth

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"

	"github.com/arturkryukov/paperbank/internal/authclient"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

// fakeDirectory — фейковый allow-list.
type fakeDirectory struct {
	emails map[string]bool
	err    error
}

func (f *fakeDirectory) ExistsByEmail(_ context.Context, email string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	return f.emails[email], nil
}

// fakeAuthenticator — фейковый OTP-сервис.
type fakeAuthenticator struct {
	validCode  string
	requestErr error
	requested  []string
	signedOut  []string
}

func (f *fakeAuthenticator) RequestCode(_ context.Context, email string) error {
	if f.requestErr != nil {
		return f.requestErr
	}
	f.requested = append(f.requested, email)
	return nil
}

func (f *fakeAuthenticator) VerifyCode(_ context.Context, email, code string) (*authclient.Session, error) {
	if code != f.validCode {
		return nil, authclient.ErrInvalidCode
	}
	return &authclient.Session{ID: "sess-1", Email: email}, nil
}

func (f *fakeAuthenticator) SignOut(_ context.Context, sessionID string) error {
	f.signedOut = append(f.signedOut, sessionID)
	return nil
}

func newTestFlow(emails ...string) (*LoginFlow, *fakeDirectory, *fakeAuthenticator) {
	dir := &fakeDirectory{emails: map[string]bool{}}
	for _, e := range emails {
		dir.emails[e] = true
	}
	codes := &fakeAuthenticator{validCode: "123456"}
	return NewLoginFlow(dir, codes, testLogger()), dir, codes
}

func TestSubmitEmailSuccess(t *testing.T) {
	flow, _, codes := newTestFlow("alice@example.com")

	st, err := flow.SubmitEmail(context.Background(), NewFlowState(), " Alice@Example.COM ")
	if err != nil {
		t.Fatalf("SubmitEmail() ошибка: %v", err)
	}
	if st.State != StateAwaitingCode {
		t.Errorf("State = %q, хотели awaiting_code", st.State)
	}
	// Email нормализован
	if st.Email != "alice@example.com" {
		t.Errorf("Email = %q, хотели нормализованный", st.Email)
	}
	if len(codes.requested) != 1 {
		t.Errorf("Кодов запрошено: %d, хотели 1", len(codes.requested))
	}
}

func TestSubmitEmailNotAuthorized(t *testing.T) {
	flow, _, codes := newTestFlow("alice@example.com")

	st, err := flow.SubmitEmail(context.Background(), NewFlowState(), "bob@example.com")
	if !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("SubmitEmail() = %v, хотели ErrNotAuthorized", err)
	}
	// Состояние не изменилось, код не запрошен
	if st.State != StateAwaitingEmail {
		t.Errorf("State = %q, хотели awaiting_email", st.State)
	}
	if len(codes.requested) != 0 {
		t.Errorf("Код запрошен для email вне allow-list")
	}
}

func TestSubmitEmailTransportError(t *testing.T) {
	flow, _, codes := newTestFlow("alice@example.com")
	codes.requestErr = errors.New("OTP-сервис недоступен")

	st, err := flow.SubmitEmail(context.Background(), NewFlowState(), "alice@example.com")
	if err == nil {
		t.Fatal("SubmitEmail() при ошибке сервиса должен вернуть ошибку")
	}
	if st.State != StateAwaitingEmail {
		t.Errorf("State = %q, хотели awaiting_email (без перехода)", st.State)
	}
}

func TestSubmitCodeSuccess(t *testing.T) {
	flow, _, _ := newTestFlow("alice@example.com")
	st := FlowState{State: StateAwaitingCode, Email: "alice@example.com"}

	st2, err := flow.SubmitCode(context.Background(), st, "123456")
	if err != nil {
		t.Fatalf("SubmitCode() ошибка: %v", err)
	}
	if st2.State != StateAuthenticated {
		t.Errorf("State = %q, хотели authenticated", st2.State)
	}
	if st2.SessionID != "sess-1" {
		t.Errorf("SessionID = %q, хотели sess-1", st2.SessionID)
	}
}

func TestSubmitCodeInvalid(t *testing.T) {
	flow, _, _ := newTestFlow("alice@example.com")
	st := FlowState{State: StateAwaitingCode, Email: "alice@example.com"}

	st2, err := flow.SubmitCode(context.Background(), st, "000000")
	if !errors.Is(err, authclient.ErrInvalidCode) {
		t.Fatalf("SubmitCode() = %v, хотели ErrInvalidCode", err)
	}
	// Остаёмся на шаге ввода кода
	if st2.State != StateAwaitingCode {
		t.Errorf("State = %q, хотели awaiting_code", st2.State)
	}
}

func TestSubmitCodeRevokedAdmin(t *testing.T) {
	flow, dir, codes := newTestFlow("alice@example.com")
	st := FlowState{State: StateAwaitingCode, Email: "alice@example.com"}

	// Email отзывается из allow-list между отправкой и проверкой кода
	delete(dir.emails, "alice@example.com")

	st2, err := flow.SubmitCode(context.Background(), st, "123456")
	if !errors.Is(err, ErrNotAuthorized) {
		t.Fatalf("SubmitCode() = %v, хотели ErrNotAuthorized", err)
	}
	if st2.State != StateAwaitingCode {
		t.Errorf("State = %q, хотели awaiting_code", st2.State)
	}
	// Созданная сессия немедленно отозвана
	if len(codes.signedOut) != 1 || codes.signedOut[0] != "sess-1" {
		t.Errorf("Отозваны сессии %v, хотели [sess-1]", codes.signedOut)
	}
}

func TestSubmitCodeWrongState(t *testing.T) {
	flow, _, _ := newTestFlow("alice@example.com")

	_, err := flow.SubmitCode(context.Background(), NewFlowState(), "123456")
	if err == nil {
		t.Error("SubmitCode() из awaiting_email должен вернуть ошибку")
	}
}

func TestBack(t *testing.T) {
	flow, _, _ := newTestFlow("alice@example.com")

	st := flow.Back(FlowState{State: StateAwaitingCode, Email: "alice@example.com"})
	if st.State != StateAwaitingEmail {
		t.Errorf("State = %q, хотели awaiting_email", st.State)
	}
	// Email сохраняется для предзаполнения
	if st.Email != "alice@example.com" {
		t.Errorf("Email = %q, хотели сохранённый", st.Email)
	}

	// Back из других состояний — no-op
	st2 := flow.Back(NewFlowState())
	if st2.State != StateAwaitingEmail {
		t.Errorf("Back из awaiting_email изменил состояние: %q", st2.State)
	}
}
