// Пакет filestore — обёртка над S3-совместимым хранилищем файлов каталога.
// Файлы лежат в одном bucket с публичным чтением под префиксом question-banks/.
package filestore

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/arturkryukov/paperbank/internal/config"
)

// Prefix — namespace объектов каталога внутри bucket'а.
const Prefix = "question-banks/"

// Object — объект хранилища (для сверки с реестром).
type Object struct {
	// Key — полное имя объекта, включая префикс.
	Key string
	// LastModified — время последней записи объекта.
	LastModified time.Time
}

// Store — клиент файлового хранилища.
type Store struct {
	client    *minio.Client
	bucket    string
	region    string
	publicURL string
	logger    *slog.Logger
}

// New создаёт клиент хранилища из конфигурации.
func New(cfg *config.Config, logger *slog.Logger) (*Store, error) {
	client, err := minio.New(cfg.S3Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.S3AccessKey, cfg.S3SecretKey, ""),
		Secure: cfg.S3UseSSL,
		Region: cfg.S3Region,
	})
	if err != nil {
		return nil, fmt.Errorf("ошибка создания клиента хранилища: %w", err)
	}

	publicURL := cfg.S3PublicURL
	if publicURL == "" {
		scheme := "http"
		if cfg.S3UseSSL {
			scheme = "https"
		}
		publicURL = fmt.Sprintf("%s://%s", scheme, cfg.S3Endpoint)
	}

	return &Store{
		client:    client,
		bucket:    cfg.S3Bucket,
		region:    cfg.S3Region,
		publicURL: publicURL,
		logger:    logger.With(slog.String("component", "filestore")),
	}, nil
}

// EnsureBucket создаёт bucket, если его ещё нет.
func (s *Store) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("ошибка проверки bucket %s: %w", s.bucket, err)
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: s.region}); err != nil {
			return fmt.Errorf("ошибка создания bucket %s: %w", s.bucket, err)
		}
		s.logger.Info("Bucket создан", slog.String("bucket", s.bucket))
	}
	return nil
}

// Upload загружает файл под префикс каталога.
// objectName — имя без префикса (например, 1700000000000.pdf).
// Возвращает публичный URL загруженного объекта.
func (s *Store) Upload(ctx context.Context, objectName string, reader io.Reader, size int64, contentType string) (string, error) {
	key := Prefix + objectName
	opts := minio.PutObjectOptions{ContentType: contentType}
	if _, err := s.client.PutObject(ctx, s.bucket, key, reader, size, opts); err != nil {
		return "", fmt.Errorf("ошибка загрузки объекта %s: %w", key, err)
	}

	s.logger.Info("Файл загружен в хранилище",
		slog.String("key", key),
		slog.Int64("size", size),
	)
	return s.PublicURL(key), nil
}

// PublicURL возвращает публичный URL объекта по полному имени.
func (s *Store) PublicURL(key string) string {
	return fmt.Sprintf("%s/%s/%s", s.publicURL, s.bucket, key)
}

// List возвращает все объекты под префиксом каталога.
func (s *Store) List(ctx context.Context) ([]Object, error) {
	var objects []Object
	for info := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    Prefix,
		Recursive: true,
	}) {
		if info.Err != nil {
			return nil, fmt.Errorf("ошибка листинга объектов: %w", info.Err)
		}
		objects = append(objects, Object{
			Key:          info.Key,
			LastModified: info.LastModified,
		})
	}
	return objects, nil
}

// Remove удаляет объект по полному имени.
func (s *Store) Remove(ctx context.Context, key string) error {
	if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("ошибка удаления объекта %s: %w", key, err)
	}
	return nil
}

// CheckReady проверяет доступность bucket'а хранилища.
// Реализует handlers.ReadinessChecker.
func (s *Store) CheckReady() (string, string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return "fail", fmt.Sprintf("хранилище недоступно: %v", err)
	}
	if !exists {
		return "degraded", fmt.Sprintf("bucket %s не существует", s.bucket)
	}
	return "ok", fmt.Sprintf("bucket %s доступен", s.bucket)
}
