package notifications

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	htmltemplate "html/template"
	"io/fs"
	"path"
	"strings"
	"text/template"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"gopkg.in/yaml.v3"
)

//go:embed templates/*.md templates/layout.html
var templateFS embed.FS

// Template names.
const (
	TemplateOrderConfirmation = "order_confirmation"
	TemplateAdminAlert        = "admin_alert"
	TemplateShipmentNotice    = "shipment_notice"
)

// ErrTemplateNotFound is returned when no locale variant of a template exists.
var ErrTemplateNotFound = errors.New("notifications: template not found")

var supportedLocales = []language.Tag{language.Japanese, language.English}

var tokyo = loadTokyo()

func loadTokyo() *time.Location {
	loc, err := time.LoadLocation("Asia/Tokyo")
	if err != nil {
		return time.FixedZone("JST", 9*60*60)
	}
	return loc
}

// Message is a rendered mail body.
type Message struct {
	Subject   string
	Preheader string
	Text      string
	HTML      string
	Locale    string
}

type frontMatter struct {
	Subject   string `yaml:"subject"`
	Preheader string `yaml:"preheader"`
}

type mailTemplate struct {
	subject   *template.Template
	preheader string
	body      *template.Template
}

// Renderer turns embedded Markdown templates into text and sanitised HTML mail bodies.
type Renderer struct {
	templates     map[string]map[language.Tag]mailTemplate
	layout        *htmltemplate.Template
	markdown      goldmark.Markdown
	policy        *bluemonday.Policy
	matcher       language.Matcher
	locales       []language.Tag
	defaultLocale language.Tag
	storeName     string
}

// RendererOption customises the renderer.
type RendererOption func(*Renderer)

// WithDefaultLocale sets the locale used when the requested one is unknown.
func WithDefaultLocale(locale string) RendererOption {
	return func(r *Renderer) {
		if tag, err := language.Parse(strings.TrimSpace(locale)); err == nil {
			r.defaultLocale = tag
		}
	}
}

// WithStoreName sets the brand shown in subjects and footers.
func WithStoreName(name string) RendererOption {
	return func(r *Renderer) {
		if name = strings.TrimSpace(name); name != "" {
			r.storeName = name
		}
	}
}

// NewRenderer parses every embedded template.
func NewRenderer(opts ...RendererOption) (*Renderer, error) {
	r := &Renderer{
		templates:     make(map[string]map[language.Tag]mailTemplate),
		markdown:      goldmark.New(goldmark.WithExtensions(extension.GFM)),
		policy:        newMailHTMLPolicy(),
		defaultLocale: language.Japanese,
		storeName:     "Religionne00",
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}

	ordered := []language.Tag{r.defaultLocale}
	for _, tag := range supportedLocales {
		if tag != r.defaultLocale {
			ordered = append(ordered, tag)
		}
	}
	r.locales = ordered
	r.matcher = language.NewMatcher(ordered)

	layout, err := htmltemplate.ParseFS(templateFS, "templates/layout.html")
	if err != nil {
		return nil, fmt.Errorf("notifications: parse layout: %w", err)
	}
	r.layout = layout

	files, err := fs.Glob(templateFS, "templates/*.md")
	if err != nil {
		return nil, err
	}
	for _, file := range files {
		name, tag, err := splitTemplateName(path.Base(file))
		if err != nil {
			return nil, err
		}
		data, err := templateFS.ReadFile(file)
		if err != nil {
			return nil, err
		}
		tmpl, err := parseMailTemplate(file, string(data))
		if err != nil {
			return nil, err
		}
		if r.templates[name] == nil {
			r.templates[name] = make(map[language.Tag]mailTemplate)
		}
		r.templates[name][tag] = tmpl
	}
	return r, nil
}

// Render executes the named template for the best matching locale.
func (r *Renderer) Render(name string, locale string, data map[string]any) (Message, error) {
	variants, ok := r.templates[name]
	if !ok {
		return Message{}, fmt.Errorf("%w: %s", ErrTemplateNotFound, name)
	}
	tag := r.resolveLocale(locale)
	tmpl, ok := variants[tag]
	if !ok {
		tmpl, ok = variants[r.defaultLocale]
		tag = r.defaultLocale
	}
	if !ok {
		return Message{}, fmt.Errorf("%w: %s/%s", ErrTemplateNotFound, name, tag)
	}

	vars := make(map[string]any, len(data)+1)
	vars["StoreName"] = r.storeName
	for k, v := range data {
		vars[k] = v
	}

	var subject bytes.Buffer
	if err := tmpl.subject.Execute(&subject, vars); err != nil {
		return Message{}, fmt.Errorf("notifications: render %s subject: %w", name, err)
	}
	var body bytes.Buffer
	if err := tmpl.body.Execute(&body, vars); err != nil {
		return Message{}, fmt.Errorf("notifications: render %s body: %w", name, err)
	}

	var converted bytes.Buffer
	if err := r.markdown.Convert(body.Bytes(), &converted); err != nil {
		return Message{}, fmt.Errorf("notifications: convert %s: %w", name, err)
	}
	safe := r.policy.SanitizeBytes(converted.Bytes())

	var html bytes.Buffer
	err := r.layout.Execute(&html, map[string]any{
		"Lang":      tag.String(),
		"Subject":   strings.TrimSpace(subject.String()),
		"Preheader": tmpl.preheader,
		"StoreName": r.storeName,
		"Body":      htmltemplate.HTML(safe),
	})
	if err != nil {
		return Message{}, fmt.Errorf("notifications: render %s layout: %w", name, err)
	}

	return Message{
		Subject:   strings.TrimSpace(subject.String()),
		Preheader: tmpl.preheader,
		Text:      strings.TrimSpace(body.String()) + "\n",
		HTML:      html.String(),
		Locale:    tag.String(),
	}, nil
}

func (r *Renderer) resolveLocale(locale string) language.Tag {
	locale = strings.ReplaceAll(strings.TrimSpace(locale), "_", "-")
	if locale == "" {
		return r.defaultLocale
	}
	tags, _, err := language.ParseAcceptLanguage(locale)
	if err != nil || len(tags) == 0 {
		return r.defaultLocale
	}
	_, index, confidence := r.matcher.Match(tags...)
	if confidence == language.No {
		return r.defaultLocale
	}
	return r.locales[index]
}

func parseMailTemplate(file, raw string) (mailTemplate, error) {
	fm, body := splitFrontMatter(raw)
	front := frontMatter{}
	if strings.TrimSpace(fm) != "" {
		if err := yaml.Unmarshal([]byte(fm), &front); err != nil {
			return mailTemplate{}, fmt.Errorf("notifications: parse front matter %s: %w", file, err)
		}
	}
	if strings.TrimSpace(front.Subject) == "" {
		return mailTemplate{}, fmt.Errorf("notifications: %s has no subject", file)
	}

	subject, err := template.New(file + ":subject").Funcs(templateFuncs).Parse(front.Subject)
	if err != nil {
		return mailTemplate{}, fmt.Errorf("notifications: parse %s subject: %w", file, err)
	}
	bodyTmpl, err := template.New(file).Funcs(templateFuncs).Option("missingkey=zero").Parse(body)
	if err != nil {
		return mailTemplate{}, fmt.Errorf("notifications: parse %s: %w", file, err)
	}
	return mailTemplate{
		subject:   subject,
		preheader: strings.TrimSpace(front.Preheader),
		body:      bodyTmpl,
	}, nil
}

// splitTemplateName turns "order_confirmation.ja.md" into its name and locale.
func splitTemplateName(base string) (string, language.Tag, error) {
	trimmed := strings.TrimSuffix(base, ".md")
	idx := strings.LastIndex(trimmed, ".")
	if idx <= 0 {
		return "", language.Und, fmt.Errorf("notifications: template %s has no locale suffix", base)
	}
	tag, err := language.Parse(trimmed[idx+1:])
	if err != nil {
		return "", language.Und, fmt.Errorf("notifications: template %s: %w", base, err)
	}
	return trimmed[:idx], tag, nil
}

func splitFrontMatter(input string) (string, string) {
	input = strings.TrimLeft(input, "\ufeff")
	lines := strings.Split(input, "\n")
	if len(lines) == 0 || strings.TrimSpace(lines[0]) != "---" {
		return "", input
	}
	for i := 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == "---" {
			fm := strings.Join(lines[1:i], "\n")
			body := strings.Join(lines[i+1:], "\n")
			return fm, strings.TrimLeft(body, "\n\r")
		}
	}
	return "", input
}

var yenPrinter = message.NewPrinter(language.Japanese)

var templateFuncs = template.FuncMap{
	"yen": func(v int64) string {
		return yenPrinter.Sprintf("¥%d", v)
	},
	"date": func(v any) string {
		if t, ok := asTime(v); ok {
			return t.In(tokyo).Format("2006/01/02")
		}
		return ""
	},
	"datetime": func(v any) string {
		if t, ok := asTime(v); ok {
			return t.In(tokyo).Format("2006/01/02 15:04")
		}
		return ""
	},
}

func asTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, !t.IsZero()
	case *time.Time:
		if t == nil {
			return time.Time{}, false
		}
		return *t, !t.IsZero()
	}
	return time.Time{}, false
}

func newMailHTMLPolicy() *bluemonday.Policy {
	policy := bluemonday.UGCPolicy()
	policy.AllowAttrs("align").OnElements("td", "th")
	policy.AllowStyles("text-align").OnElements("td", "th")
	policy.RequireNoFollowOnLinks(false)
	policy.AddTargetBlankToFullyQualifiedLinks(true)
	return policy
}
