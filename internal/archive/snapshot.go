package archive

import (
	"os"
	"path/filepath"

	json "github.com/goccy/go-json"

	"github.com/codemasher/dril-archive/internal/model"
)

// WriteSnapshot exports the timeline as pretty printed JSON with slashes
// left unescaped. The output is deterministic for a given timeline order,
// re-running a compile over identical cached inputs reproduces the file
// byte for byte.
func WriteSnapshot(path string, tl *model.Timeline) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	return enc.Encode(tl)
}

// ReadSnapshot loads a previously exported timeline. Malformed JSON is
// fatal to the run.
func ReadSnapshot(path string) (*model.Timeline, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	tl := model.NewTimeline()
	if err := json.Unmarshal(b, tl); err != nil {
		return nil, err
	}
	return tl, nil
}
