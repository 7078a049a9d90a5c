package service

import (
	"context"
	"testing"
	"time"

	"github.com/arturkryukov/paperbank/internal/domain/model"
	"github.com/arturkryukov/paperbank/internal/filestore"
)

// fakeObjectStore — in-memory хранилище для тестов сверки.
type fakeObjectStore struct {
	objects []filestore.Object
	removed []string
}

func (f *fakeObjectStore) List(_ context.Context) ([]filestore.Object, error) {
	return f.objects, nil
}

func (f *fakeObjectStore) Remove(_ context.Context, key string) error {
	f.removed = append(f.removed, key)
	for i, o := range f.objects {
		if o.Key == key {
			f.objects = append(f.objects[:i], f.objects[i+1:]...)
			break
		}
	}
	return nil
}

func TestReconcileOnce(t *testing.T) {
	old := time.Now().Add(-48 * time.Hour)
	fresh := time.Now().Add(-time.Minute)

	store := &fakeObjectStore{objects: []filestore.Object{
		{Key: filestore.Prefix + "referenced.pdf", LastModified: old},
		{Key: filestore.Prefix + "orphan.pdf", LastModified: old},
		{Key: filestore.Prefix + "fresh.pdf", LastModified: fresh},
	}}
	repo := &fakeBankRepo{records: []*model.QuestionBank{
		{ID: "1", URL: "https://files.example.com/bucket/" + filestore.Prefix + "referenced.pdf"},
	}}

	svc := NewReconcileService(store, repo, time.Hour, 24*time.Hour, false, testLogger())

	result, err := svc.ReconcileOnce(context.Background())
	if err != nil {
		t.Fatalf("ReconcileOnce() ошибка: %v", err)
	}

	if result.Objects != 3 {
		t.Errorf("Objects = %d, хотели 3", result.Objects)
	}
	// Сирота — только orphan.pdf: referenced в реестре, fresh внутри grace
	if result.OrphansFound != 1 {
		t.Errorf("OrphansFound = %d, хотели 1", result.OrphansFound)
	}
	// Удаление выключено
	if result.OrphansDeleted != 0 || len(store.removed) != 0 {
		t.Errorf("Удалено %d объектов при выключенном удалении", len(store.removed))
	}
}

func TestReconcileOnceDeletesOrphans(t *testing.T) {
	old := time.Now().Add(-48 * time.Hour)

	store := &fakeObjectStore{objects: []filestore.Object{
		{Key: filestore.Prefix + "orphan.pdf", LastModified: old},
	}}
	repo := &fakeBankRepo{}

	svc := NewReconcileService(store, repo, time.Hour, 24*time.Hour, true, testLogger())

	result, err := svc.ReconcileOnce(context.Background())
	if err != nil {
		t.Fatalf("ReconcileOnce() ошибка: %v", err)
	}
	if result.OrphansDeleted != 1 {
		t.Errorf("OrphansDeleted = %d, хотели 1", result.OrphansDeleted)
	}
	if len(store.removed) != 1 || store.removed[0] != filestore.Prefix+"orphan.pdf" {
		t.Errorf("Удалены объекты %v, хотели orphan.pdf", store.removed)
	}
}

func TestReconcileStartStop(t *testing.T) {
	store := &fakeObjectStore{}
	repo := &fakeBankRepo{}
	svc := NewReconcileService(store, repo, time.Hour, time.Hour, false, testLogger())

	svc.Start(context.Background())
	svc.Stop() // не должен зависать
}

func TestKeyFromURL(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"https://files.example.com/bucket/question-banks/123.pdf", "question-banks/123.pdf"},
		{"http://minio:9000/b/question-banks/a/b.pdf", "question-banks/a/b.pdf"},
		{"https://files.example.com/bucket/other/123.pdf", ""},
	}
	for _, tt := range tests {
		if got := keyFromURL(tt.url); got != tt.want {
			t.Errorf("keyFromURL(%q) = %q, хотели %q", tt.url, got, tt.want)
		}
	}
}
