package email

import (
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"strings"
	"sync"

	"github.com/aymerick/raymond"

	"github.com/capstonehub/capstonehub/pkg/logger"
)

// Templates are compiled into the binary; there is no disk lookup at runtime.
//
//go:embed templates/*.hbs templates/partials/*.hbs
var templateFS embed.FS

// TemplateService renders email bodies from embedded Handlebars templates.
//
// The templates directory has the structure:
//   - partials/*.hbs - reusable template parts (footer, button)
//   - *.hbs - main email templates
type TemplateService struct {
	log      *slog.Logger
	partials map[string]string

	mu    sync.RWMutex
	cache map[string]*raymond.Template
}

// NewTemplateService creates a template service over the embedded templates.
func NewTemplateService(log *slog.Logger) (*TemplateService, error) {
	ts := &TemplateService{
		log:      log.With(logger.Scope("email.template")),
		partials: make(map[string]string),
		cache:    make(map[string]*raymond.Template),
	}

	if err := ts.loadPartials(); err != nil {
		return nil, err
	}

	return ts, nil
}

func (ts *TemplateService) loadPartials() error {
	entries, err := fs.ReadDir(templateFS, "templates/partials")
	if err != nil {
		return fmt.Errorf("read partials: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".hbs") {
			continue
		}
		content, err := templateFS.ReadFile(path.Join("templates/partials", entry.Name()))
		if err != nil {
			return fmt.Errorf("read partial %s: %w", entry.Name(), err)
		}
		name := strings.TrimSuffix(entry.Name(), ".hbs")
		ts.partials[name] = string(content)
		ts.log.Debug("loaded partial", slog.String("name", name))
	}

	return nil
}

// Render renders the named template with the given data and returns HTML.
func (ts *TemplateService) Render(name string, data map[string]any) (string, error) {
	tpl, err := ts.template(name)
	if err != nil {
		return "", err
	}

	html, err := tpl.Exec(data)
	if err != nil {
		return "", fmt.Errorf("render template %q: %w", name, err)
	}

	return html, nil
}

// Has reports whether the named template exists.
func (ts *TemplateService) Has(name string) bool {
	_, err := ts.template(name)
	return err == nil
}

func (ts *TemplateService) template(name string) (*raymond.Template, error) {
	ts.mu.RLock()
	tpl, ok := ts.cache[name]
	ts.mu.RUnlock()
	if ok {
		return tpl, nil
	}

	content, err := templateFS.ReadFile(path.Join("templates", name+".hbs"))
	if err != nil {
		return nil, fmt.Errorf("unknown template %q", name)
	}

	tpl, err = raymond.Parse(string(content))
	if err != nil {
		return nil, fmt.Errorf("parse template %q: %w", name, err)
	}
	// Partials are registered per template; the global raymond registry
	// panics on duplicate names.
	for pname, psrc := range ts.partials {
		tpl.RegisterPartial(pname, psrc)
	}

	ts.mu.Lock()
	ts.cache[name] = tpl
	ts.mu.Unlock()

	return tpl, nil
}
