// Пакет model — доменные модели каталога question-bank документов.
package model

import "time"

// QuestionBank — одна запись каталога: загруженный документ с экзаменационной
// работой и метаданными для фильтрации.
type QuestionBank struct {
	// ID — UUID записи, присваивается при создании.
	ID string
	// Title — название документа.
	Title string
	// Description — описание (опционально, nil = отсутствует).
	Description *string
	// Subject — учебный предмет.
	Subject string
	// Year — год экзамена.
	Year int
	// District — округ/район (опционально).
	District *string
	// Set — вариант/комплект работы (опционально).
	// В БД колонка называется set_name — "set" зарезервировано в SQL.
	Set *string
	// URL — публичный URL файла в хранилище.
	URL string
	// Downloads — счётчик скачиваний, только увеличивается.
	Downloads int
	// UploadedBy — UUID администратора, создавшего/изменившего запись (опционально).
	UploadedBy *string
	// CreatedAt — время создания, присваивается БД, неизменяемо.
	CreatedAt time.Time
}

// Admin — запись allow-list администраторов.
// Наличие email в таблице admins — единственная проверка авторизации.
// Таблица заполняется вне приложения, здесь только чтение.
type Admin struct {
	ID        string
	Name      string
	Email     string
	Phone     *string
	CreatedAt time.Time
}

// FilterCriteria — пять независимых необязательных критериев фильтрации,
// применяются конъюнктивно (AND). Пустая строка = критерий не задан.
type FilterCriteria struct {
	// Search — подстрочный case-insensitive поиск по title, description, subject.
	Search string
	// Subject — точное совпадение предмета.
	Subject string
	// Year — точное совпадение года (строка из формы).
	Year string
	// District — точное совпадение округа.
	District string
	// Set — точное совпадение варианта.
	Set string
}

// IsEmpty сообщает, задан ли хотя бы один критерий.
func (c FilterCriteria) IsEmpty() bool {
	return c.Search == "" && c.Subject == "" && c.Year == "" && c.District == "" && c.Set == ""
}

// Facets — различающиеся значения фильтруемых полей для выпадающих списков.
type Facets struct {
	// Subjects — предметы в порядке первого появления.
	Subjects []string
	// Years — годы по убыванию (новые первыми).
	Years []int
	// Districts — округа в порядке первого появления, без отсутствующих.
	Districts []string
	// Sets — варианты в порядке первого появления, без отсутствующих.
	Sets []string
}
