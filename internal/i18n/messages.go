// Package i18n localises API response messages by Accept-Language.
package i18n

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
)

// Message keys. The English text doubles as the key.
const (
	MsgCredentialsRequired = "email and password required"
	MsgUserExists          = "user exists"
	MsgNotFound            = "not found"
	MsgUserRegistered      = "user registered"
	MsgEmailVerified       = "email verified"
	MsgInvalidBody         = "invalid request body"
	MsgInvalidStatus       = "invalid status"
	MsgSaveFailed          = "failed to save data"
	MsgLoadFailed          = "failed to load data"
	MsgInternal            = "internal server error"
)

var russian = map[string]string{
	MsgCredentialsRequired: "Email и пароль обязательны",
	MsgUserExists:          "Пользователь с таким email уже существует",
	MsgNotFound:            "Пользователь не найден",
	MsgUserRegistered:      "Пользователь успешно зарегистрирован",
	MsgEmailVerified:       "Email успешно подтвержден",
	MsgInvalidBody:         "Некорректное тело запроса",
	MsgInvalidStatus:       "Недопустимый статус",
	MsgSaveFailed:          "Ошибка сохранения данных",
	MsgLoadFailed:          "Ошибка получения данных",
	MsgInternal:            "Внутренняя ошибка сервера",
}

// Localizer picks the best supported language for a request.
type Localizer struct {
	supported []language.Tag
	matcher   language.Matcher
	catalog   catalog.Catalog
}

// NewLocalizer builds a Localizer supporting English (default) and Russian.
func NewLocalizer() *Localizer {
	supported := []language.Tag{language.English, language.Russian}
	b := catalog.NewBuilder(catalog.Fallback(language.English))
	for key, text := range russian {
		_ = b.SetString(language.English, key, key)
		_ = b.SetString(language.Russian, key, text)
	}
	return &Localizer{
		supported: supported,
		matcher:   language.NewMatcher(supported),
		catalog:   b,
	}
}

// Tag returns the supported language that best matches an Accept-Language
// header value. Unparseable headers yield English.
func (l *Localizer) Tag(acceptLanguage string) language.Tag {
	tags, _, err := language.ParseAcceptLanguage(acceptLanguage)
	if err != nil || len(tags) == 0 {
		return l.supported[0]
	}
	_, idx, _ := l.matcher.Match(tags...)
	return l.supported[idx]
}

// Translate renders key in the language negotiated from acceptLanguage.
func (l *Localizer) Translate(acceptLanguage, key string) string {
	if l == nil {
		return key
	}
	p := message.NewPrinter(l.Tag(acceptLanguage), message.Catalog(l.catalog))
	return p.Sprintf(key)
}
