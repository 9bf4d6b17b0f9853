package conversation

import (
	"io"
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

type historyEntry struct {
	Role    Role `yaml:"role"`
	Content any  `yaml:"content"`
}

// LoadHistory decodes a YAML (or JSON) list of {role, content} entries.
// String content stays plain text, everything else goes through NormalizeContent.
func LoadHistory(r io.Reader) (Conversation, error) {
	var entries []historyEntry
	err := yaml.NewDecoder(r).Decode(&entries)
	if err != nil && err != io.EOF {
		return nil, errors.Wrap(err, "could not decode history")
	}

	ret := make(Conversation, 0, len(entries))
	for i, e := range entries {
		if e.Role == "" {
			return nil, errors.Errorf("history entry %d has no role", i)
		}
		if s, ok := e.Content.(string); ok {
			ret = append(ret, NewTextMessage(e.Role, s))
			continue
		}
		ret = append(ret, NewBlocksMessage(e.Role, NormalizeContent(e.Content)))
	}
	return ret, nil
}

func LoadHistoryFile(path string) (Conversation, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "could not open history file %s", path)
	}
	defer func() {
		_ = f.Close()
	}()
	return LoadHistory(f)
}
