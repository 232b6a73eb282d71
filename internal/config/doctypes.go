package config

import (
	"sort"

	"github.com/local/docverify/internal/apperr"
)

// validityOverrides lists every recognized doc type; 0 means the default
// window applies. Keys are the canonical identifiers the classifier emits.
var validityOverrides = map[string]int{
	"spravka_o_bolezni":                      0,
	"spravka_o_vremennoj_netrudosposobnosti": 0,
	"bolnichnyj_list":                        0,
	"prikaz_o_dekretnom_otpuske":             180,
	"prikaz_o_rozhdenii_rebenka":             365,
	"svidetelstvo_o_rozhdenii":               365,
	"medicinskoe_zaklyuchenie":               180,
	"zaklyuchenie_vkk":                       180,
	"spravka_ob_invalidnosti":                360,
	"spravka_s_mesta_ucheby":                 365,
	"povestka_v_armiyu":                      0,
}

// DocTypeRegistry answers membership and validity-window questions for the
// closed set of deferment document types.
type DocTypeRegistry struct {
	defaultDays int
}

// DocTypes returns the registry bound to the configured default window.
func (c Config) DocTypes() DocTypeRegistry {
	return DocTypeRegistry{defaultDays: c.Validity.DefaultDays}
}

// NewDocTypeRegistry builds a registry with an explicit default window.
func NewDocTypeRegistry(defaultDays int) DocTypeRegistry {
	return DocTypeRegistry{defaultDays: defaultDays}
}

// Known reports whether docType is in the registry.
func (r DocTypeRegistry) Known(docType string) bool {
	_, ok := validityOverrides[docType]
	return ok
}

// ValidityDays returns the window length for docType, falling back to the
// default for unlisted or non-overridden types.
func (r DocTypeRegistry) ValidityDays(docType string) int {
	if d, ok := validityOverrides[docType]; ok && d > 0 {
		return d
	}
	return r.defaultDays
}

// Keys returns the canonical doc-type identifiers, sorted. The classifier
// prompt enumerates these so model output stays inside the registry.
func (r DocTypeRegistry) Keys() []string {
	keys := make([]string, 0, len(validityOverrides))
	for k := range validityOverrides {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// errorMessages maps canonical codes to localized display text.
var errorMessages = map[string]string{
	apperr.CodeFIOMismatch:      "ФИО в документе не совпадает с заявленным",
	apperr.CodeFIOMissing:       "ФИО не указано",
	apperr.CodeDocTypeUnknown:   "Не удалось определить тип документа",
	apperr.CodeMultipleDocTypes: "Файл содержит несколько типов документов",
	apperr.CodeDocDateMissing:   "Дата документа не найдена",
	apperr.CodeDocDateTooOld:    "Срок действия документа истёк",

	apperr.CodeValidationError:      "Некорректный запрос",
	apperr.CodePDFTooManyPages:      "Документ содержит слишком много страниц",
	apperr.CodeUnsupportedMediaType: "Неподдерживаемый формат файла",
	apperr.CodePayloadTooLarge:      "Файл слишком большой",
	apperr.CodeResourceNotFound:     "Файл не найден в хранилище",
	apperr.CodeMultipleDocuments:    "Файл содержит несколько документов",

	apperr.CodeOCRFailed:            "Ошибка сервиса распознавания",
	apperr.CodeOCREmptyPages:        "Не удалось распознать текст документа",
	apperr.CodeOCRTimeout:           "Превышено время распознавания документа",
	apperr.CodeLLMFailed:            "Ошибка сервиса анализа документов",
	apperr.CodeLLMTimeout:           "Превышено время анализа документа",
	apperr.CodeLLMFilterParseError:  "Не удалось обработать ответ сервиса анализа",
	apperr.CodeDTCFailed:            "Не удалось классифицировать документ",
	apperr.CodeDTCParseError:        "Не удалось обработать результат классификации",
	apperr.CodeExtractFailed:        "Не удалось извлечь данные документа",
	apperr.CodeExtractSchemaInvalid: "Некорректный результат извлечения данных",
	apperr.CodeS3Error:              "Ошибка доступа к хранилищу файлов",
	apperr.CodeFileSaveFailed:       "Не удалось сохранить файл",
	apperr.CodeValidationFailed:     "Ошибка проверки документа",
	apperr.CodeServiceUnavailable:   "Сервис временно недоступен",
	apperr.CodeRequestTimeout:       "Превышено время обработки запроса",
	apperr.CodeInternalError:        "Внутренняя ошибка сервиса",
}

// MessageFor returns the localized message for a canonical code, or "" when
// none is registered (the API then sends message: null).
func MessageFor(code string) string {
	return errorMessages[code]
}
