// Package i18n хранит тексты бота по языкам.
package i18n

import (
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
	"gopkg.in/yaml.v3"
)

// BaseLocale — язык, на который откатывается поиск отсутствующих ключей.
const BaseLocale = "ru"

//go:embed locales/*.yaml
var embeddedFS embed.FS

type catalogFile struct {
	Locale   string            `yaml:"locale"`
	Name     string            `yaml:"name"`
	Order    int               `yaml:"order"`
	Messages map[string]string `yaml:"messages"`
}

// Language описывает доступный язык интерфейса.
type Language struct {
	Tag  string
	Name string
}

// Catalog — неизменяемый набор текстов для всех языков.
type Catalog struct {
	languages []Language
	messages  map[string]map[string]string
	tags      map[string]language.Tag
	matcher   language.Matcher
	builder   *catalog.Builder
}

// Load загружает встроенные каталоги.
func Load() (*Catalog, error) {
	return LoadFS(embeddedFS)
}

// LoadFS загружает каталоги locales/*.yaml из fsys.
func LoadFS(fsys fs.FS) (*Catalog, error) {
	paths, err := fs.Glob(fsys, "locales/*.yaml")
	if err != nil {
		return nil, fmt.Errorf("glob locale catalogs: %w", err)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no catalog files found")
	}
	sort.Strings(paths)

	baseTag := language.MustParse(BaseLocale)
	c := &Catalog{
		messages: map[string]map[string]string{},
		tags:     map[string]language.Tag{},
		builder:  catalog.NewBuilder(catalog.Fallback(baseTag)),
	}
	orders := map[string]int{}
	for _, path := range paths {
		data, err := fs.ReadFile(fsys, path)
		if err != nil {
			return nil, fmt.Errorf("read catalog %s: %w", path, err)
		}
		var file catalogFile
		if err := yaml.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("parse catalog %s: %w", path, err)
		}
		if err := c.add(path, file); err != nil {
			return nil, err
		}
		orders[file.Locale] = file.Order
	}
	if _, ok := c.messages[BaseLocale]; !ok {
		return nil, fmt.Errorf("base locale %s is not defined in catalogs", BaseLocale)
	}

	sort.SliceStable(c.languages, func(i, j int) bool {
		return orders[c.languages[i].Tag] < orders[c.languages[j].Tag]
	})
	supported := []language.Tag{baseTag}
	for _, lang := range c.languages {
		if lang.Tag != BaseLocale {
			supported = append(supported, c.tags[lang.Tag])
		}
	}
	c.matcher = language.NewMatcher(supported)
	return c, nil
}

func (c *Catalog) add(path string, file catalogFile) error {
	locale := strings.TrimSpace(file.Locale)
	if locale == "" {
		return fmt.Errorf("catalog %s: locale is required", path)
	}
	tag, err := language.Parse(locale)
	if err != nil {
		return fmt.Errorf("catalog %s: parse locale %q: %w", path, locale, err)
	}
	if _, exists := c.messages[locale]; exists {
		return fmt.Errorf("catalog %s: locale %q already defined", path, locale)
	}
	if len(file.Messages) == 0 {
		return fmt.Errorf("catalog %s: messages map is required", path)
	}

	messages := make(map[string]string, len(file.Messages))
	for key, value := range file.Messages {
		key = strings.TrimSpace(key)
		if key == "" {
			return fmt.Errorf("catalog %s: message key cannot be blank", path)
		}
		messages[key] = value
		if err := c.builder.SetString(tag, key, value); err != nil {
			return fmt.Errorf("catalog %s: register %q: %w", path, key, err)
		}
	}
	name := strings.TrimSpace(file.Name)
	if name == "" {
		name = locale
	}
	c.messages[locale] = messages
	c.tags[locale] = tag
	c.languages = append(c.languages, Language{Tag: locale, Name: name})
	return nil
}

// Languages возвращает языки в порядке показа.
func (c *Catalog) Languages() []Language {
	out := make([]Language, len(c.languages))
	copy(out, c.languages)
	return out
}

// Supported сообщает, есть ли каталог для тега.
func (c *Catalog) Supported(tag string) bool {
	_, ok := c.messages[tag]
	return ok
}

// Match подбирает ближайший поддерживаемый язык для тега клиента (например, "uz-Latn").
func (c *Catalog) Match(clientTag string) string {
	clientTag = strings.TrimSpace(clientTag)
	if clientTag == "" {
		return BaseLocale
	}
	if c.Supported(clientTag) {
		return clientTag
	}
	parsed, err := language.Parse(clientTag)
	if err != nil {
		return BaseLocale
	}
	_, index, confidence := c.matcher.Match(parsed)
	if confidence == language.No {
		return BaseLocale
	}
	if index == 0 {
		return BaseLocale
	}
	var candidates []string
	for _, lang := range c.languages {
		if lang.Tag != BaseLocale {
			candidates = append(candidates, lang.Tag)
		}
	}
	if index-1 < len(candidates) {
		return candidates[index-1]
	}
	return BaseLocale
}

// Text возвращает текст по ключу; при отсутствии возвращается текст базового языка или сам ключ.
func (c *Catalog) Text(tag, key string) string {
	if messages, ok := c.messages[tag]; ok {
		if value, ok := messages[key]; ok {
			return value
		}
	}
	if value, ok := c.messages[BaseLocale][key]; ok {
		return value
	}
	return key
}

// Format подставляет аргументы в текст по правилам fmt.
func (c *Catalog) Format(tag, key string, args ...any) string {
	langTag, ok := c.tags[tag]
	if !ok {
		langTag = c.tags[BaseLocale]
	}
	printer := message.NewPrinter(langTag, message.Catalog(c.builder))
	return printer.Sprintf(key, args...)
}
