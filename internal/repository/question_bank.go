package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/arturkryukov/paperbank/internal/domain/model"
)

// Колонки таблицы question_banks в порядке сканирования.
const questionBankColumns = `id, title, description, subject, year, district, set_name,
	url, downloads, uploaded_by, created_at`

// QuestionBankRepository — CRUD для таблицы question_banks.
type QuestionBankRepository interface {
	// List возвращает все записи каталога, новые первыми.
	List(ctx context.Context) ([]*model.QuestionBank, error)
	// GetByID возвращает запись по UUID.
	GetByID(ctx context.Context, id string) (*model.QuestionBank, error)
	// Create вставляет новую запись. ID, Downloads и CreatedAt
	// присваиваются базой и записываются обратно в qb.
	Create(ctx context.Context, qb *model.QuestionBank) error
	// Update обновляет метаданные записи. Downloads и CreatedAt не трогаются.
	Update(ctx context.Context, qb *model.QuestionBank) error
	// Delete удаляет запись. Файл в хранилище не трогается.
	Delete(ctx context.Context, id string) error
	// IncrementDownloads атомарно увеличивает счётчик скачиваний на 1
	// и возвращает новое значение.
	IncrementDownloads(ctx context.Context, id string) (int, error)
	// ListURLs возвращает URL всех файлов, на которые ссылается реестр.
	ListURLs(ctx context.Context) ([]string, error)
}

// questionBankRepo — реализация QuestionBankRepository.
type questionBankRepo struct {
	db DBTX
}

// NewQuestionBankRepository создаёт репозиторий каталога.
func NewQuestionBankRepository(db DBTX) QuestionBankRepository {
	return &questionBankRepo{db: db}
}

func scanQuestionBank(row pgx.Row) (*model.QuestionBank, error) {
	qb := &model.QuestionBank{}
	err := row.Scan(
		&qb.ID, &qb.Title, &qb.Description, &qb.Subject, &qb.Year,
		&qb.District, &qb.Set, &qb.URL, &qb.Downloads, &qb.UploadedBy, &qb.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return qb, nil
}

func (r *questionBankRepo) List(ctx context.Context) ([]*model.QuestionBank, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM question_banks
		ORDER BY created_at DESC`, questionBankColumns)

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка записей: %w", err)
	}
	defer rows.Close()

	var result []*model.QuestionBank
	for rows.Next() {
		qb, err := scanQuestionBank(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования записи: %w", err)
		}
		result = append(result, qb)
	}
	return result, rows.Err()
}

func (r *questionBankRepo) GetByID(ctx context.Context, id string) (*model.QuestionBank, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM question_banks
		WHERE id = $1`, questionBankColumns)

	qb, err := scanQuestionBank(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения записи: %w", err)
	}
	return qb, nil
}

func (r *questionBankRepo) Create(ctx context.Context, qb *model.QuestionBank) error {
	query := `
		INSERT INTO question_banks (title, description, subject, year, district, set_name,
			url, uploaded_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, downloads, created_at`

	err := r.db.QueryRow(ctx, query,
		qb.Title, qb.Description, qb.Subject, qb.Year, qb.District, qb.Set,
		qb.URL, qb.UploadedBy,
	).Scan(&qb.ID, &qb.Downloads, &qb.CreatedAt)
	if err != nil {
		return fmt.Errorf("ошибка создания записи: %w", err)
	}
	return nil
}

func (r *questionBankRepo) Update(ctx context.Context, qb *model.QuestionBank) error {
	query := `
		UPDATE question_banks
		SET title = $2, description = $3, subject = $4, year = $5,
			district = $6, set_name = $7, url = $8, uploaded_by = $9
		WHERE id = $1`

	tag, err := r.db.Exec(ctx, query,
		qb.ID, qb.Title, qb.Description, qb.Subject, qb.Year,
		qb.District, qb.Set, qb.URL, qb.UploadedBy,
	)
	if err != nil {
		return fmt.Errorf("ошибка обновления записи: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *questionBankRepo) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM question_banks WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("ошибка удаления записи: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *questionBankRepo) IncrementDownloads(ctx context.Context, id string) (int, error) {
	query := `
		UPDATE question_banks
		SET downloads = downloads + 1
		WHERE id = $1
		RETURNING downloads`

	var downloads int
	err := r.db.QueryRow(ctx, query, id).Scan(&downloads)
	if err != nil {
		if err == pgx.ErrNoRows {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("ошибка инкремента счётчика скачиваний: %w", err)
	}
	return downloads, nil
}

func (r *questionBankRepo) ListURLs(ctx context.Context) ([]string, error) {
	rows, err := r.db.Query(ctx, `SELECT url FROM question_banks`)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка URL: %w", err)
	}
	defer rows.Close()

	var urls []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, fmt.Errorf("ошибка сканирования URL: %w", err)
		}
		urls = append(urls, u)
	}
	return urls, rows.Err()
}
