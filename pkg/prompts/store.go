package prompts

import (
	"bytes"
	"io"
	"os"
	"sort"
	"sync"
	"text/template"

	"github.com/Masterminds/sprig"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// Store resolves a prompt key to system prompt text.
type Store interface {
	Get(key string) (string, bool)
}

// MemoryStore is a Store backed by a map. Prompts may be text/template
// sources; they are rendered with sprig functions against Vars on Get.
type MemoryStore struct {
	mu      sync.RWMutex
	prompts map[string]string
	// Vars are the template data for every prompt.
	Vars map[string]interface{}
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore(prompts map[string]string) *MemoryStore {
	ret := &MemoryStore{
		prompts: map[string]string{},
		Vars:    map[string]interface{}{},
	}
	for k, v := range prompts {
		ret.prompts[k] = v
	}
	return ret
}

func (m *MemoryStore) Set(key string, prompt string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prompts[key] = prompt
}

// Get returns the rendered prompt for key. A prompt that fails to render is
// logged and returned unrendered.
func (m *MemoryStore) Get(key string) (string, bool) {
	m.mu.RLock()
	prompt, ok := m.prompts[key]
	m.mu.RUnlock()
	if !ok {
		return "", false
	}

	rendered, err := Render(key, prompt, m.Vars)
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("could not render prompt template")
		return prompt, true
	}
	return rendered, true
}

func (m *MemoryStore) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ret := make([]string, 0, len(m.prompts))
	for k := range m.prompts {
		ret = append(ret, k)
	}
	sort.Strings(ret)
	return ret
}

// Render executes prompt as a text/template with the sprig function map.
func Render(name string, prompt string, vars map[string]interface{}) (string, error) {
	tmpl, err := template.New(name).Funcs(sprig.TxtFuncMap()).Option("missingkey=zero").Parse(prompt)
	if err != nil {
		return "", errors.Wrapf(err, "could not parse prompt %s", name)
	}
	buf := &bytes.Buffer{}
	if err := tmpl.Execute(buf, vars); err != nil {
		return "", errors.Wrapf(err, "could not render prompt %s", name)
	}
	return buf.String(), nil
}

type promptsFile struct {
	Prompts map[string]string      `yaml:"prompts"`
	Vars    map[string]interface{} `yaml:"vars,omitempty"`
}

// LoadYAML reads a document of the form
//
//	prompts:
//	  default: "You are the shop assistant of {{ .shop }}."
//	vars:
//	  shop: Acme
func LoadYAML(r io.Reader) (*MemoryStore, error) {
	var f promptsFile
	if err := yaml.NewDecoder(r).Decode(&f); err != nil && err != io.EOF {
		return nil, errors.Wrap(err, "could not decode prompts")
	}
	ret := NewMemoryStore(f.Prompts)
	for k, v := range f.Vars {
		ret.Vars[k] = v
	}
	return ret, nil
}

func LoadYAMLFile(path string) (*MemoryStore, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "could not open prompts file %s", path)
	}
	defer func() {
		_ = f.Close()
	}()
	return LoadYAML(f)
}
