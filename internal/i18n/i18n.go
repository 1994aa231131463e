// Package i18n holds the user-facing redemption messages and picks the
// caller's language from an Accept-Language header.
package i18n

import (
	"golang.org/x/text/language"
)

type MessageID string

const (
	MissingFields      MessageID = "missing_fields"
	InvalidKey         MessageID = "invalid_key"
	QuotaExceeded      MessageID = "quota_exceeded"
	WrongIID           MessageID = "wrong_iid"
	BlockedIID         MessageID = "blocked_iid"
	UpstreamAuth       MessageID = "upstream_auth"
	UpstreamQuota      MessageID = "upstream_quota"
	UpstreamBusy       MessageID = "upstream_busy"
	UpstreamBadContent MessageID = "upstream_bad_content"
	UpstreamFailure    MessageID = "upstream_failure"
	Redeemed           MessageID = "redeemed"
	Internal           MessageID = "internal"
)

var supported = []language.Tag{
	language.English, // default
	language.Spanish,
}

var matcher = language.NewMatcher(supported)

var catalog = map[language.Tag]map[MessageID]string{
	language.English: {
		MissingFields:      "Activation key and installation ID are required.",
		InvalidKey:         "The activation key is invalid or inactive.",
		QuotaExceeded:      "The usage limit for this activation key has been reached.",
		WrongIID:           "The installation ID is incorrect. Check that you copied the complete installation ID.",
		BlockedIID:         "This installation ID has been blocked. Please contact support.",
		UpstreamAuth:       "The activation service is temporarily unavailable. Please contact the administrator.",
		UpstreamQuota:      "The activation service has reached its usage limit. Please contact the administrator.",
		UpstreamBusy:       "The activation service is busy. Please try again in a few minutes.",
		UpstreamBadContent: "The activation service returned an error. Check the data you entered.",
		UpstreamFailure:    "The activation service failed. Please try again later.",
		Redeemed:           "Confirmation ID obtained successfully.",
		Internal:           "Internal server error.",
	},
	language.Spanish: {
		MissingFields:      "Clave de activación e IID son requeridos.",
		InvalidKey:         "Clave de activación inválida o inactiva.",
		QuotaExceeded:      "Límite de uso excedido para esta clave.",
		WrongIID:           "El Installation ID (IID) proporcionado es incorrecto. Verifica que hayas copiado correctamente el IID completo.",
		BlockedIID:         "Este Installation ID (IID) ha sido bloqueado. Contacta al soporte técnico.",
		UpstreamAuth:       "Error de autenticación del servicio. Contacta al administrador.",
		UpstreamQuota:      "El servicio ha alcanzado su límite de uso. Contacta al administrador.",
		UpstreamBusy:       "El servicio está temporalmente ocupado. Inténtalo de nuevo en unos minutos.",
		UpstreamBadContent: "Error en la respuesta del servicio. Verifica los datos ingresados.",
		UpstreamFailure:    "Error del servicio. Inténtalo de nuevo más tarde.",
		Redeemed:           "CID obtenido exitosamente.",
		Internal:           "Error interno del servidor.",
	},
}

// Negotiate returns the best supported language for an Accept-Language
// header value. Unknown or empty headers fall back to English.
func Negotiate(acceptLanguage string) language.Tag {
	tags, _, err := language.ParseAcceptLanguage(acceptLanguage)
	if err != nil || len(tags) == 0 {
		return supported[0]
	}
	_, idx, conf := matcher.Match(tags...)
	if conf == language.No {
		return supported[0]
	}
	return supported[idx]
}

// Text returns the message for id in lang, falling back to English.
func Text(lang language.Tag, id MessageID) string {
	if msgs, ok := catalog[lang]; ok {
		if s, ok := msgs[id]; ok {
			return s
		}
	}
	return catalog[supported[0]][id]
}
