package service

import (
	"context"
	"errors"
	"testing"

	"github.com/arturkryukov/paperbank/internal/domain/model"
)

// uploadRecorder — фейковая функция загрузки, запоминающая вызовы.
type uploadRecorder struct {
	calls []string
	url   string
	err   error
}

func (u *uploadRecorder) upload(_ context.Context, objectName string, _ []byte, _ string) (string, error) {
	u.calls = append(u.calls, objectName)
	if u.err != nil {
		return "", u.err
	}
	return u.url, nil
}

func validInput() RecordInput {
	return RecordInput{
		Title:   "Математика 2024",
		Subject: "Математика",
		Year:    "2024",
		File:    &FileUpload{Name: "work.txt", Data: []byte("задания")},
	}
}

func TestSubmitCreate(t *testing.T) {
	repo := &fakeBankRepo{}
	up := &uploadRecorder{url: "https://files.example.com/question-banks/123.txt"}
	svc := NewEditorService(repo, up.upload, testLogger())

	in := validInput()
	in.Description = "  "
	in.District = ""
	in.Set = "Вариант 1"
	in.UploadedBy = "admin-1"

	qb, err := svc.Submit(context.Background(), in)
	if err != nil {
		t.Fatalf("Submit() ошибка: %v", err)
	}
	if qb.ID == "" {
		t.Error("ID не присвоен")
	}
	if qb.URL != up.url {
		t.Errorf("URL = %q, хотели %q", qb.URL, up.url)
	}
	// Пустые строки → NULL
	if qb.Description != nil || qb.District != nil {
		t.Errorf("Description=%v, District=%v, хотели nil", qb.Description, qb.District)
	}
	if qb.Set == nil || *qb.Set != "Вариант 1" {
		t.Errorf("Set = %v, хотели %q", qb.Set, "Вариант 1")
	}
	if len(up.calls) != 1 {
		t.Errorf("Загрузок: %d, хотели 1", len(up.calls))
	}
}

func TestSubmitValidation(t *testing.T) {
	repo := &fakeBankRepo{}
	up := &uploadRecorder{url: "https://files.example.com/x"}
	svc := NewEditorService(repo, up.upload, testLogger())
	ctx := context.Background()

	tests := []struct {
		name   string
		mutate func(*RecordInput)
	}{
		{"пустой title", func(in *RecordInput) { in.Title = "  " }},
		{"пустой subject", func(in *RecordInput) { in.Subject = "" }},
		{"нечисловой год", func(in *RecordInput) { in.Year = "двадцать" }},
		{"год слишком маленький", func(in *RecordInput) { in.Year = "1800" }},
		{"год слишком большой", func(in *RecordInput) { in.Year = "3000" }},
		{"создание без файла", func(in *RecordInput) { in.File = nil }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := validInput()
			tt.mutate(&in)
			_, err := svc.Submit(ctx, in)
			if !errors.Is(err, ErrValidation) {
				t.Errorf("Submit() = %v, хотели ErrValidation", err)
			}
		})
	}

	// Валидация не доходит до загрузки
	if len(up.calls) != 0 {
		t.Errorf("Загрузок при ошибках валидации: %d, хотели 0", len(up.calls))
	}
}

func TestSubmitRejectsBrokenPDF(t *testing.T) {
	repo := &fakeBankRepo{}
	up := &uploadRecorder{url: "https://files.example.com/x"}
	svc := NewEditorService(repo, up.upload, testLogger())

	in := validInput()
	in.File = &FileUpload{Name: "broken.pdf", Data: []byte("это не PDF")}

	_, err := svc.Submit(context.Background(), in)
	if !errors.Is(err, ErrValidation) {
		t.Errorf("Submit() с повреждённым PDF = %v, хотели ErrValidation", err)
	}
	if len(up.calls) != 0 {
		t.Errorf("Повреждённый PDF загружен в хранилище: %d вызовов", len(up.calls))
	}
}

func TestSubmitUploadFailureAborts(t *testing.T) {
	repo := &fakeBankRepo{}
	up := &uploadRecorder{err: errors.New("хранилище недоступно")}
	svc := NewEditorService(repo, up.upload, testLogger())

	_, err := svc.Submit(context.Background(), validInput())
	if !errors.Is(err, ErrWrite) {
		t.Errorf("Submit() при ошибке загрузки = %v, хотели ErrWrite", err)
	}
	// Запись в реестре не создана
	if len(repo.records) != 0 {
		t.Errorf("Реестр содержит %d записей после отказа загрузки, хотели 0", len(repo.records))
	}
}

func TestSubmitUpdateKeepsURL(t *testing.T) {
	existing := &model.QuestionBank{
		ID:      "11111111-1111-1111-1111-111111111111",
		Title:   "Старое название",
		Subject: "Физика",
		Year:    2023,
		URL:     "https://files.example.com/question-banks/old.pdf",
	}
	repo := &fakeBankRepo{records: []*model.QuestionBank{existing}}
	up := &uploadRecorder{url: "https://files.example.com/question-banks/new.pdf"}
	svc := NewEditorService(repo, up.upload, testLogger())

	// Без файла — прежний URL сохраняется
	in := RecordInput{
		ID:      existing.ID,
		Title:   "Новое название",
		Subject: "Физика",
		Year:    "2023",
	}
	qb, err := svc.Submit(context.Background(), in)
	if err != nil {
		t.Fatalf("Submit() ошибка: %v", err)
	}
	if qb.Title != "Новое название" {
		t.Errorf("Title = %q, хотели обновлённое", qb.Title)
	}
	if qb.URL != existing.URL {
		t.Errorf("URL = %q, хотели прежний %q", qb.URL, existing.URL)
	}

	// С файлом — URL заменяется
	in.File = &FileUpload{Name: "new.txt", Data: []byte("новый файл")}
	qb, err = svc.Submit(context.Background(), in)
	if err != nil {
		t.Fatalf("Submit() с файлом ошибка: %v", err)
	}
	if qb.URL != up.url {
		t.Errorf("URL = %q, хотели новый %q", qb.URL, up.url)
	}
}

func TestSubmitUpdateNotFound(t *testing.T) {
	repo := &fakeBankRepo{}
	up := &uploadRecorder{url: "https://files.example.com/x"}
	svc := NewEditorService(repo, up.upload, testLogger())

	in := RecordInput{
		ID:      "22222222-2222-2222-2222-222222222222",
		Title:   "t",
		Subject: "s",
		Year:    "2024",
	}
	_, err := svc.Submit(context.Background(), in)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Submit() несуществующей записи = %v, хотели ErrNotFound", err)
	}
}

func TestDelete(t *testing.T) {
	existing := &model.QuestionBank{
		ID:      "33333333-3333-3333-3333-333333333333",
		Title:   "t",
		Subject: "s",
		Year:    2024,
		URL:     "https://files.example.com/question-banks/x.pdf",
	}
	repo := &fakeBankRepo{records: []*model.QuestionBank{existing}}
	svc := NewEditorService(repo, (&uploadRecorder{}).upload, testLogger())
	ctx := context.Background()

	if err := svc.Delete(ctx, existing.ID); err != nil {
		t.Fatalf("Delete() ошибка: %v", err)
	}
	if len(repo.records) != 0 {
		t.Errorf("После Delete в реестре %d записей, хотели 0", len(repo.records))
	}

	// Повторное удаление
	if err := svc.Delete(ctx, existing.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Повторный Delete() = %v, хотели ErrNotFound", err)
	}

	// Некорректный id
	if err := svc.Delete(ctx, "не-uuid"); !errors.Is(err, ErrValidation) {
		t.Errorf("Delete() с некорректным id = %v, хотели ErrValidation", err)
	}
}
