// editor.go — редактор записей каталога для админ-панели.
//
// Submit реализует порядок «сначала файл, потом запись»: новый файл
// загружается в хранилище до любой записи в реестр, ошибка загрузки
// отменяет всю операцию. Обратной очистки нет — файл без записи
// подбирает фоновая сверка (reconcile.go).
package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ledongthuc/pdf"

	"github.com/arturkryukov/paperbank/internal/domain/model"
	"github.com/arturkryukov/paperbank/internal/repository"
)

// Минимально допустимый год экзамена в форме.
const minYear = 1900

// FileUpload — файл из multipart-формы.
type FileUpload struct {
	// Name — исходное имя файла (для расширения).
	Name string
	// Data — содержимое файла, размер ограничен PB_MAX_UPLOAD_SIZE.
	Data []byte
}

// RecordInput — данные формы создания/редактирования записи.
// Все поля — сырые строки формы, нормализация и валидация — в Submit.
type RecordInput struct {
	// ID — пустой при создании, UUID при редактировании.
	ID          string
	Title       string
	Description string
	Subject     string
	Year        string
	District    string
	Set         string
	// File — новый файл; при редактировании nil означает
	// «оставить прежний файл».
	File *FileUpload
	// UploadedBy — UUID администратора, выполняющего операцию.
	UploadedBy string
}

// EditorService — создание, изменение и удаление записей каталога.
type EditorService struct {
	repo     repository.QuestionBankRepository
	uploader uploaderFunc
	logger   *slog.Logger
}

// uploaderFunc — сигнатура загрузки файла (имя объекта, данные, content type → URL).
type uploaderFunc func(ctx context.Context, objectName string, data []byte, contentType string) (string, error)

// NewEditorService создаёт редактор записей каталога.
// upload — функция загрузки файла в хранилище (обычно filestore.Store.Upload).
func NewEditorService(
	repo repository.QuestionBankRepository,
	upload func(ctx context.Context, objectName string, data []byte, contentType string) (string, error),
	logger *slog.Logger,
) *EditorService {
	return &EditorService{
		repo:     repo,
		uploader: upload,
		logger:   logger.With(slog.String("component", "editor_service")),
	}
}

// Submit создаёт или обновляет запись каталога.
//
// Валидация: title и subject непустые, year — целое в [1900..текущий+1],
// при создании файл обязателен. PDF-файлы проверяются на читаемость до
// загрузки. Пустые description/district/set нормализуются в NULL.
//
// Ошибки валидации оборачивают ErrValidation, ошибки хранилища и
// реестра — ErrWrite.
func (s *EditorService) Submit(ctx context.Context, in RecordInput) (*model.QuestionBank, error) {
	year, err := s.validate(in)
	if err != nil {
		return nil, err
	}

	// Новый файл загружается в хранилище до записи в реестр
	var fileURL string
	if in.File != nil {
		fileURL, err = s.uploadFile(ctx, in.File)
		if err != nil {
			return nil, err
		}
	}

	if in.ID == "" {
		return s.create(ctx, in, year, fileURL)
	}
	return s.update(ctx, in, year, fileURL)
}

// validate проверяет поля формы и возвращает разобранный год.
func (s *EditorService) validate(in RecordInput) (int, error) {
	if strings.TrimSpace(in.Title) == "" {
		return 0, fmt.Errorf("%w: название не может быть пустым", ErrValidation)
	}
	if strings.TrimSpace(in.Subject) == "" {
		return 0, fmt.Errorf("%w: предмет не может быть пустым", ErrValidation)
	}

	year, err := strconv.Atoi(strings.TrimSpace(in.Year))
	if err != nil {
		return 0, fmt.Errorf("%w: год должен быть числом", ErrValidation)
	}
	maxYear := time.Now().Year() + 1
	if year < minYear || year > maxYear {
		return 0, fmt.Errorf("%w: год должен быть в диапазоне %d-%d", ErrValidation, minYear, maxYear)
	}

	if in.ID == "" && in.File == nil {
		return 0, fmt.Errorf("%w: при создании записи файл обязателен", ErrValidation)
	}
	if in.ID != "" {
		if _, err := uuid.Parse(in.ID); err != nil {
			return 0, fmt.Errorf("%w: некорректный идентификатор записи", ErrValidation)
		}
	}

	return year, nil
}

// uploadFile валидирует файл и загружает его в хранилище.
// Имя объекта — unix-время в миллисекундах + исходное расширение.
func (s *EditorService) uploadFile(ctx context.Context, f *FileUpload) (string, error) {
	if len(f.Data) == 0 {
		return "", fmt.Errorf("%w: пустой файл", ErrValidation)
	}

	ext := strings.ToLower(filepath.Ext(f.Name))
	if ext == ".pdf" {
		if err := validatePDF(f.Data); err != nil {
			return "", fmt.Errorf("%w: файл не является корректным PDF: %v", ErrValidation, err)
		}
	}

	contentType := mime.TypeByExtension(ext)
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	objectName := fmt.Sprintf("%d%s", time.Now().UnixMilli(), ext)
	url, err := s.uploader(ctx, objectName, f.Data, contentType)
	if err != nil {
		return "", fmt.Errorf("%w: загрузка файла не удалась: %v", ErrWrite, err)
	}
	return url, nil
}

// validatePDF проверяет, что data — читаемый PDF-документ.
func validatePDF(data []byte) error {
	doc, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return err
	}
	if doc.NumPage() < 1 {
		return errors.New("документ не содержит страниц")
	}
	return nil
}

func (s *EditorService) create(ctx context.Context, in RecordInput, year int, fileURL string) (*model.QuestionBank, error) {
	qb := &model.QuestionBank{
		Title:       strings.TrimSpace(in.Title),
		Description: nilIfEmpty(in.Description),
		Subject:     strings.TrimSpace(in.Subject),
		Year:        year,
		District:    nilIfEmpty(in.District),
		Set:         nilIfEmpty(in.Set),
		URL:         fileURL,
		UploadedBy:  nilIfEmpty(in.UploadedBy),
	}

	if err := s.repo.Create(ctx, qb); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWrite, err)
	}

	s.logger.Info("Запись каталога создана",
		slog.String("id", qb.ID),
		slog.String("title", qb.Title),
	)
	return qb, nil
}

func (s *EditorService) update(ctx context.Context, in RecordInput, year int, fileURL string) (*model.QuestionBank, error) {
	qb, err := s.repo.GetByID(ctx, in.ID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrRetrieval, err)
	}

	qb.Title = strings.TrimSpace(in.Title)
	qb.Description = nilIfEmpty(in.Description)
	qb.Subject = strings.TrimSpace(in.Subject)
	qb.Year = year
	qb.District = nilIfEmpty(in.District)
	qb.Set = nilIfEmpty(in.Set)
	qb.UploadedBy = nilIfEmpty(in.UploadedBy)
	// Без нового файла прежний URL сохраняется
	if fileURL != "" {
		qb.URL = fileURL
	}

	if err := s.repo.Update(ctx, qb); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrWrite, err)
	}

	s.logger.Info("Запись каталога обновлена",
		slog.String("id", qb.ID),
		slog.String("title", qb.Title),
	)
	return qb, nil
}

// Delete удаляет запись из реестра. Файл в хранилище не трогается —
// осиротевший объект подберёт фоновая сверка.
func (s *EditorService) Delete(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("%w: некорректный идентификатор записи", ErrValidation)
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("%w: %v", ErrWrite, err)
	}

	s.logger.Info("Запись каталога удалена", slog.String("id", id))
	return nil
}

// nilIfEmpty нормализует пустую строку формы в NULL.
func nilIfEmpty(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
