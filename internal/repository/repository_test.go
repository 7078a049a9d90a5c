package repository

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/arturkryukov/paperbank/internal/config"
	"github.com/arturkryukov/paperbank/internal/database"
	"github.com/arturkryukov/paperbank/internal/domain/model"

	"github.com/jackc/pgx/v5/pgxpool"
)

// setupTestDB запускает PostgreSQL контейнер, применяет миграции.
// Возвращает pgxpool.Pool, контейнер останавливается в t.Cleanup.
func setupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()

	if os.Getenv("TEST_INTEGRATION") == "" {
		t.Skip("Пропуск интеграционного теста: TEST_INTEGRATION не установлена")
	}

	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"docker.io/postgres:17-alpine",
		postgres.WithDatabase("paperbank_test"),
		postgres.WithUsername("paperbank"),
		postgres.WithPassword("test-password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("Не удалось запустить PostgreSQL контейнер: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("Ошибка остановки контейнера: %v", err)
		}
	})

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Не удалось получить host контейнера: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Не удалось получить port контейнера: %v", err)
	}

	// Настраиваем env для config.Load()
	os.Setenv("PB_DB_HOST", host)
	os.Setenv("PB_DB_PORT", port.Port())
	os.Setenv("PB_DB_NAME", "paperbank_test")
	os.Setenv("PB_DB_USER", "paperbank")
	os.Setenv("PB_DB_PASSWORD", "test-password")
	os.Setenv("PB_DB_SSL_MODE", "disable")
	os.Setenv("PB_AUTH_URL", "http://localhost:9096")
	os.Setenv("PB_S3_ENDPOINT", "localhost:9000")
	os.Setenv("PB_S3_ACCESS_KEY", "test")
	os.Setenv("PB_S3_SECRET_KEY", "test")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Ошибка загрузки конфигурации: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))

	// Применяем миграции
	if err := database.Migrate(cfg, logger); err != nil {
		t.Fatalf("Ошибка миграций: %v", err)
	}

	// Подключаемся
	pool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		t.Fatalf("Ошибка подключения: %v", err)
	}
	t.Cleanup(func() { pool.Close() })

	return pool
}

// insertAdmin добавляет администратора в allow-list напрямую через SQL
// (приложение таблицу admins только читает).
func insertAdmin(t *testing.T, pool *pgxpool.Pool, name, email string) string {
	t.Helper()
	var id string
	err := pool.QueryRow(context.Background(),
		`INSERT INTO admins (name, email) VALUES ($1, $2) RETURNING id`,
		name, email,
	).Scan(&id)
	if err != nil {
		t.Fatalf("Не удалось добавить администратора: %v", err)
	}
	return id
}

func strPtr(s string) *string { return &s }

// --- Тесты QuestionBankRepository ---

func TestQuestionBankCRUD(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	repo := NewQuestionBankRepository(pool)

	adminID := insertAdmin(t, pool, "Тестовый Админ", "admin@example.com")

	qb := &model.QuestionBank{
		Title:       "Математика, осенний тур",
		Description: strPtr("Задания с ответами"),
		Subject:     "Математика",
		Year:        2024,
		District:    strPtr("Центральный"),
		Set:         strPtr("Вариант 1"),
		URL:         "https://files.example.com/question-banks/1700000000000.pdf",
		UploadedBy:  &adminID,
	}

	// Create
	if err := repo.Create(ctx, qb); err != nil {
		t.Fatalf("Create() ошибка: %v", err)
	}
	if qb.ID == "" {
		t.Error("ID не установлен после Create")
	}
	if qb.CreatedAt.IsZero() {
		t.Error("CreatedAt не установлен")
	}
	if qb.Downloads != 0 {
		t.Errorf("Downloads = %d, хотели 0", qb.Downloads)
	}

	// GetByID
	got, err := repo.GetByID(ctx, qb.ID)
	if err != nil {
		t.Fatalf("GetByID() ошибка: %v", err)
	}
	if got.Title != "Математика, осенний тур" {
		t.Errorf("Title = %q, хотели %q", got.Title, "Математика, осенний тур")
	}
	if got.Set == nil || *got.Set != "Вариант 1" {
		t.Errorf("Set = %v, хотели %q", got.Set, "Вариант 1")
	}

	// List
	list, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("List() ошибка: %v", err)
	}
	if len(list) != 1 {
		t.Errorf("List() вернул %d записей, хотели 1", len(list))
	}

	// Update: описание и district сбрасываются в NULL
	qb.Title = "Математика, весенний тур"
	qb.Description = nil
	qb.District = nil
	if err := repo.Update(ctx, qb); err != nil {
		t.Fatalf("Update() ошибка: %v", err)
	}
	got2, _ := repo.GetByID(ctx, qb.ID)
	if got2.Title != "Математика, весенний тур" {
		t.Errorf("После Update: Title = %q", got2.Title)
	}
	if got2.Description != nil || got2.District != nil {
		t.Errorf("После Update: Description=%v, District=%v, хотели nil", got2.Description, got2.District)
	}

	// Delete
	if err := repo.Delete(ctx, qb.ID); err != nil {
		t.Fatalf("Delete() ошибка: %v", err)
	}
	_, err = repo.GetByID(ctx, qb.ID)
	if err != ErrNotFound {
		t.Errorf("После Delete ожидали ErrNotFound, получили: %v", err)
	}
}

func TestQuestionBankListOrder(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	repo := NewQuestionBankRepository(pool)

	// Две записи с разным created_at
	for i, title := range []string{"первая", "вторая"} {
		_, err := pool.Exec(ctx, `
			INSERT INTO question_banks (title, subject, year, url, created_at)
			VALUES ($1, 'Физика', 2023, $2, now() + ($3 * interval '1 second'))`,
			title, "https://files.example.com/question-banks/"+title+".pdf", i,
		)
		if err != nil {
			t.Fatalf("Вставка записи: %v", err)
		}
	}

	list, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("List() ошибка: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("List() вернул %d записей, хотели 2", len(list))
	}
	// Новые первыми
	if list[0].Title != "вторая" || list[1].Title != "первая" {
		t.Errorf("Порядок: [%q, %q], хотели новые первыми", list[0].Title, list[1].Title)
	}
}

func TestIncrementDownloads(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	repo := NewQuestionBankRepository(pool)

	qb := &model.QuestionBank{
		Title:   "Информатика",
		Subject: "Информатика",
		Year:    2025,
		URL:     "https://files.example.com/question-banks/info.pdf",
	}
	if err := repo.Create(ctx, qb); err != nil {
		t.Fatalf("Create() ошибка: %v", err)
	}

	// Два инкремента — ровно +2
	n1, err := repo.IncrementDownloads(ctx, qb.ID)
	if err != nil {
		t.Fatalf("IncrementDownloads() ошибка: %v", err)
	}
	if n1 != 1 {
		t.Errorf("Первый инкремент = %d, хотели 1", n1)
	}
	n2, err := repo.IncrementDownloads(ctx, qb.ID)
	if err != nil {
		t.Fatalf("IncrementDownloads() повторный ошибка: %v", err)
	}
	if n2 != 2 {
		t.Errorf("Второй инкремент = %d, хотели 2", n2)
	}

	// Неизвестный id
	_, err = repo.IncrementDownloads(ctx, "00000000-0000-0000-0000-000000000000")
	if err != ErrNotFound {
		t.Errorf("Для неизвестного id ожидали ErrNotFound, получили: %v", err)
	}
}

func TestListURLs(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	repo := NewQuestionBankRepository(pool)

	urls := []string{
		"https://files.example.com/question-banks/a.pdf",
		"https://files.example.com/question-banks/b.pdf",
	}
	for _, u := range urls {
		qb := &model.QuestionBank{Title: "t", Subject: "s", Year: 2024, URL: u}
		if err := repo.Create(ctx, qb); err != nil {
			t.Fatalf("Create() ошибка: %v", err)
		}
	}

	got, err := repo.ListURLs(ctx)
	if err != nil {
		t.Fatalf("ListURLs() ошибка: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("ListURLs() вернул %d URL, хотели 2", len(got))
	}
}

// --- Тесты AdminRepository ---

func TestAdminAllowList(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	repo := NewAdminRepository(pool)

	insertAdmin(t, pool, "Алиса", "alice@example.com")

	// GetByEmail
	got, err := repo.GetByEmail(ctx, "alice@example.com")
	if err != nil {
		t.Fatalf("GetByEmail() ошибка: %v", err)
	}
	if got.Name != "Алиса" {
		t.Errorf("Name = %q, хотели %q", got.Name, "Алиса")
	}

	// ExistsByEmail
	exists, err := repo.ExistsByEmail(ctx, "alice@example.com")
	if err != nil {
		t.Fatalf("ExistsByEmail() ошибка: %v", err)
	}
	if !exists {
		t.Error("ExistsByEmail() = false для существующего email")
	}

	// Неизвестный email
	exists, err = repo.ExistsByEmail(ctx, "bob@example.com")
	if err != nil {
		t.Fatalf("ExistsByEmail() ошибка: %v", err)
	}
	if exists {
		t.Error("ExistsByEmail() = true для неизвестного email")
	}
	_, err = repo.GetByEmail(ctx, "bob@example.com")
	if err != ErrNotFound {
		t.Errorf("Для неизвестного email ожидали ErrNotFound, получили: %v", err)
	}
}
