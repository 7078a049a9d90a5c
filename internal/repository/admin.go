package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/arturkryukov/paperbank/internal/domain/model"
)

// AdminRepository — чтение allow-list администраторов.
// Таблица admins заполняется вне приложения, записи отсюда не создаются.
type AdminRepository interface {
	// GetByEmail возвращает администратора по email.
	GetByEmail(ctx context.Context, email string) (*model.Admin, error)
	// ExistsByEmail проверяет наличие email в allow-list.
	ExistsByEmail(ctx context.Context, email string) (bool, error)
}

// adminRepo — реализация AdminRepository.
type adminRepo struct {
	db DBTX
}

// NewAdminRepository создаёт репозиторий администраторов.
func NewAdminRepository(db DBTX) AdminRepository {
	return &adminRepo{db: db}
}

func (r *adminRepo) GetByEmail(ctx context.Context, email string) (*model.Admin, error) {
	query := `
		SELECT id, name, email, phone, created_at
		FROM admins
		WHERE email = $1`

	a := &model.Admin{}
	err := r.db.QueryRow(ctx, query, email).Scan(
		&a.ID, &a.Name, &a.Email, &a.Phone, &a.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения администратора: %w", err)
	}
	return a, nil
}

func (r *adminRepo) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM admins WHERE email = $1)`, email,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("ошибка проверки администратора: %w", err)
	}
	return exists, nil
}
