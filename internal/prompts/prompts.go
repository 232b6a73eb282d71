package prompts

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Template names resolved by the library.
const (
	DocTypeCheck  = "doc_type_check_v1"
	ExtractFields = "extract_fields_v1"
)

//go:embed *.txt
var builtin embed.FS

// Library resolves named prompt templates. An override directory, when set,
// shadows the embedded copies so prompts can be tuned without a rebuild.
type Library struct {
	dir string
}

func NewLibrary(dir string) *Library {
	return &Library{dir: dir}
}

// Load returns the template body for name.
func (l *Library) Load(name string) (string, error) {
	if l.dir != "" {
		b, err := os.ReadFile(filepath.Join(l.dir, name+".txt"))
		if err == nil {
			return string(b), nil
		}
		if !os.IsNotExist(err) {
			return "", fmt.Errorf("prompt %s: %w", name, err)
		}
	}
	b, err := builtin.ReadFile(name + ".txt")
	if err != nil {
		return "", fmt.Errorf("prompt %s: %w", name, err)
	}
	return string(b), nil
}

// Render substitutes the payload into the template's {} placeholder. A
// template must carry exactly one placeholder, otherwise a tuned override
// would silently swallow or duplicate the document text.
func Render(template, payload string) (string, error) {
	if n := strings.Count(template, "{}"); n != 1 {
		return "", fmt.Errorf("template must contain exactly one {} placeholder, found %d", n)
	}
	return strings.Replace(template, "{}", payload, 1), nil
}
