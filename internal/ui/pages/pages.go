// Пакет pages — server-side рендеринг страниц через html/template.
// Шаблоны встроены в бинарник (//go:embed), каждая страница получает
// типизированную структуру данных.
package pages

import (
	"embed"
	"fmt"
	"html/template"
	"io"

	"github.com/arturkryukov/paperbank/internal/domain/model"
)

//go:embed templates/*.tmpl
var templatesFS embed.FS

// funcs — вспомогательные функции шаблонов.
var funcs = template.FuncMap{
	// deref разворачивает опциональную строку (nil → пустая строка)
	"deref": func(s *string) string {
		if s == nil {
			return ""
		}
		return *s
	},
}

var (
	catalogTmpl   = mustParse("catalog.tmpl")
	loginTmpl     = mustParse("login.tmpl")
	dashboardTmpl = mustParse("dashboard.tmpl")
)

// mustParse собирает шаблон страницы поверх общего layout.
func mustParse(page string) *template.Template {
	t, err := template.New("layout.tmpl").Funcs(funcs).ParseFS(templatesFS,
		"templates/layout.tmpl", "templates/"+page)
	if err != nil {
		panic(fmt.Sprintf("ошибка разбора шаблона %s: %v", page, err))
	}
	return t
}

// CatalogData — данные публичной страницы каталога.
type CatalogData struct {
	// Records — записи после применения фильтров.
	Records []*model.QuestionBank
	// Total — размер каталога до фильтрации (для «showing X of Y»).
	Total int
	// Facets — наборы значений для выпадающих списков.
	Facets model.Facets
	// Criteria — текущие критерии (для сохранения состояния формы).
	Criteria model.FilterCriteria
}

// LoginData — данные страницы входа.
type LoginData struct {
	// Step — "awaiting_email" или "awaiting_code".
	Step string
	// Email — введённый email (предзаполнение формы).
	Email string
	// Error — сообщение об ошибке для flash-блока.
	Error string
	// Notice — информационное сообщение (код отправлен).
	Notice string
}

// DashboardData — данные дашборда админ-панели.
type DashboardData struct {
	// AdminName, AdminEmail — текущий администратор.
	AdminName  string
	AdminEmail string
	// Records — все записи каталога, новые первыми.
	Records []*model.QuestionBank
	// CurrentYear — верхняя граница поля «год» в формах.
	CurrentYear int
	// Flash — сообщение об успешной операции.
	Flash string
	// Error — сообщение об ошибке.
	Error string
}

// Catalog рендерит публичную страницу каталога.
func Catalog(w io.Writer, data CatalogData) error {
	return catalogTmpl.ExecuteTemplate(w, "layout.tmpl", data)
}

// Login рендерит страницу входа.
func Login(w io.Writer, data LoginData) error {
	return loginTmpl.ExecuteTemplate(w, "layout.tmpl", data)
}

// Dashboard рендерит дашборд админ-панели.
func Dashboard(w io.Writer, data DashboardData) error {
	return dashboardTmpl.ExecuteTemplate(w, "layout.tmpl", data)
}
