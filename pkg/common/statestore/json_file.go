package statestore

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/logwirehq/logwire/pkg/common/logctx"

	"github.com/pkg/errors"
)

type JSONFileConfig struct {
	Path string `json:"path" yaml:"path"`
}

// JSONFile keeps the state in a single JSON file. Every Update rewrites the
// file atomically through a rename, so readers never observe a partial write.
type JSONFile[S any] struct {
	mu sync.Mutex

	initState InitFunc[S]
	c         JSONFileConfig
	l         *slog.Logger
}

func NewJSONFile[S any](c JSONFileConfig, initState InitFunc[S], opts ...Option) *JSONFile[S] {
	var o options
	for _, opt := range opts {
		opt.apply(&o)
	}

	logger := o.logger
	if logger == nil {
		logger = logctx.NopLogger()
	}
	logger = logger.With(
		slog.String("component", "json_file_store"),
		slog.String("path", c.Path),
	)

	return &JSONFile[S]{c: c, initState: initState, l: logger}
}

func (j *JSONFile[S]) Load(ctx context.Context) (S, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	return j.load()
}

func (j *JSONFile[S]) Update(ctx context.Context, updateF func(s *S) error) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	st, err := j.load()
	if err != nil {
		return errors.Wrap(err, "cannot load state for update")
	}

	if err := updateF(&st); err != nil {
		return errors.Wrap(err, "cannot apply update to state")
	}

	tmpPath, err := j.writeTemp(&st)
	if err != nil {
		return errors.Wrap(err, "cannot write updated state to temporary file")
	}

	if err := os.Rename(tmpPath, j.c.Path); err != nil {
		return errors.Wrap(err, "cannot move temporary file in place of the state file")
	}

	return nil
}

func (j *JSONFile[S]) Flush(ctx context.Context) error {
	return nil
}

// writeTemp writes the state next to the target file, so the following rename
// never crosses a filesystem boundary. Returns the name of the tempfile.
func (j *JSONFile[S]) writeTemp(st *S) (string, error) {
	tmp, err := os.CreateTemp(filepath.Dir(j.c.Path), ".state-*")
	if err != nil {
		return "", errors.Wrap(err, "cannot open temporary file")
	}
	defer tmp.Close()

	if err := json.NewEncoder(tmp).Encode(st); err != nil {
		return "", errors.Wrap(err, "cannot encode state as json")
	}

	return tmp.Name(), nil
}

func (j *JSONFile[S]) load() (S, error) {
	state := j.initState()

	file, err := os.OpenFile(j.c.Path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return state, errors.Wrapf(err, "cannot open file %q", j.c.Path)
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return state, errors.Wrap(err, "cannot stat state file")
	}

	if stat.Size() == 0 {
		// fresh file, keep the initial state
		return state, nil
	}

	if err := json.NewDecoder(file).Decode(&state); err != nil {
		return state, errors.Wrap(err, "cannot decode state from file")
	}

	return state, nil
}
