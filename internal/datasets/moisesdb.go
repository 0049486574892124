package datasets

import (
	"context"
	"path/filepath"
	"strings"

	"rawbench/internal/logging"
	"rawbench/internal/services"
	"rawbench/internal/stems"
)

type moisesDB struct {
	base
	corpusDir string
	songs     []string
}

// NewMoisesDB mixes the stems of each manifest song found below corpusDir into
// a single mono track. Nothing is downloaded.
func NewMoisesDB(corpusDir string) Adapter {
	return &moisesDB{
		base:      base{name: "MoisesDB", usesManifest: true, policy: Fatal},
		corpusDir: corpusDir,
	}
}

func (m *moisesDB) Locate(_ context.Context, s *Session) error {
	if strings.TrimSpace(m.corpusDir) == "" || !isDir(m.corpusDir) {
		return services.Wrap(services.ErrMissingExpectedFile, m.name, StepLocate,
			"corpus directory not found: "+m.corpusDir, nil)
	}
	m.songs = m.songs[:0]
	seen := make(map[string]struct{})
	for entry := range s.Entries() {
		if entry.AudioPath == "" {
			continue
		}
		if _, dup := seen[entry.AudioPath]; dup {
			continue
		}
		seen[entry.AudioPath] = struct{}{}
		m.songs = append(m.songs, entry.AudioPath)
	}
	s.Logger.Info("corpus located",
		logging.String("corpus", m.corpusDir),
		logging.Int("songs", len(m.songs)),
	)
	return nil
}

func (m *moisesDB) Fetch(context.Context, *Session) error {
	return nil
}

// Extract renders one mix per song into the workspace.
func (m *moisesDB) Extract(ctx context.Context, s *Session) error {
	dir, err := s.PrepareWorkspace("MoisesDB_tmp")
	if err != nil {
		return err
	}
	for _, audio := range m.songs {
		if err := ctx.Err(); err != nil {
			return err
		}
		song := strings.TrimSuffix(audio, ".wav")
		paths, err := stemFiles(filepath.Join(m.corpusDir, filepath.FromSlash(song)))
		if err != nil {
			return err
		}
		if len(paths) == 0 {
			return services.Wrap(services.ErrMissingExpectedFile, m.name, StepExtract, "no stems for "+song, nil)
		}
		result, err := stems.MixFiles(ctx, paths, filepath.Join(dir, filepath.FromSlash(audio)), s.Logger)
		if err != nil {
			return err
		}
		s.Logger.Debug("song mixed",
			logging.String("song", song),
			logging.Int("stems", result.Stems),
			logging.Int("samples", result.Samples),
		)
	}
	return nil
}

func (m *moisesDB) Select(_ context.Context, s *Session) ([]Placement, error) {
	placements := make([]Placement, 0, len(m.songs))
	for _, audio := range m.songs {
		placements = append(placements, Placement{
			Src: filepath.Join(s.Workspace, filepath.FromSlash(audio)),
			Dst: audio,
		})
	}
	return placements, nil
}

func (m *moisesDB) Cleanup(_ context.Context, s *Session) error {
	return s.CleanupTemp()
}

// stemFiles returns every .wav below dir in lexical order. A missing dir
// yields no files.
func stemFiles(dir string) ([]string, error) {
	if !isDir(dir) {
		return nil, nil
	}
	files, err := walkFiles(dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, f := range files {
		if strings.EqualFold(filepath.Ext(f), ".wav") {
			out = append(out, filepath.Join(dir, filepath.FromSlash(f)))
		}
	}
	return out, nil
}
