package datasets

import (
	"context"
	"path/filepath"
	"strings"

	"rawbench/internal/archive"
	"rawbench/internal/logging"
	"rawbench/internal/manifest"
)

// Upstream locations of the archive-based corpora.
const (
	DAPSURL      = "https://zenodo.org/records/4660670/files/daps.tar.gz?download=1"
	GuitarSetURL = "https://zenodo.org/records/3371780/files/audio_mono-mic.zip?download=1"
	MAESTROURL   = "https://storage.googleapis.com/magentadata/datasets/maestro/v3.0.0/maestro-v3.0.0.zip"
	PCDURL       = "https://www.audiolabs-erlangen.de/resources/MIR/PCD/PCD_2.0.1.zip"
)

// entryMapper turns a manifest entry into a workspace-relative source and a
// dataset-relative destination.
type entryMapper func(manifest.Entry) (src, dst string, ok bool)

// manifestArchive is an archive source whose files are selected by the
// manifest.
type manifestArchive struct {
	base
	archiveSource
	workspaceName string
	mapEntry      entryMapper
}

func newManifestArchive(name string, remote Remote, workspaceName string, mapEntry entryMapper) *manifestArchive {
	return &manifestArchive{
		base:          base{name: name, usesManifest: true, policy: Warn},
		archiveSource: archiveSource{remotes: []Remote{remote}},
		workspaceName: workspaceName,
		mapEntry:      mapEntry,
	}
}

func (m *manifestArchive) Extract(ctx context.Context, s *Session) error {
	dir, err := s.PrepareWorkspace(m.workspaceName)
	if err != nil {
		return err
	}
	for _, h := range s.Archives() {
		s.Logger.Info("extracting raw archive",
			logging.String("archive", h.Path),
			logging.String("workspace", dir),
		)
		if err := archive.Extract(ctx, h.Path, h.Format, dir); err != nil {
			return err
		}
	}
	return nil
}

func (m *manifestArchive) Select(_ context.Context, s *Session) ([]Placement, error) {
	var placements []Placement
	for entry := range s.Entries() {
		src, dst, ok := m.mapEntry(entry)
		if !ok {
			logging.WarnWithContext(s.Logger, "manifest entry lacks the columns this dataset needs", "manifest_entry_incomplete",
				logging.Int("line", entry.Line),
				logging.String(logging.FieldErrorHint, "check the manifest row"),
			)
			continue
		}
		placements = append(placements, Placement{
			Src: filepath.Join(s.Workspace, filepath.FromSlash(src)),
			Dst: dst,
		})
	}
	return placements, nil
}

// NewDAPS maps daps/<orig_filepath> to audio_filepath.
func NewDAPS() Adapter {
	return newManifestArchive("DAPS",
		Remote{URL: DAPSURL, Path: "daps.tar.gz", Format: archive.FormatTarGz},
		"DAPS_tmp",
		func(e manifest.Entry) (string, string, bool) {
			if e.OrigPath == "" || e.AudioPath == "" {
				return "", "", false
			}
			return "daps/" + e.OrigPath, e.AudioPath, true
		},
	)
}

// NewGuitarSet keeps audio_filepath unchanged between archive and dataset.
func NewGuitarSet() Adapter {
	return newManifestArchive("GuitarSet",
		Remote{URL: GuitarSetURL, Path: "audio_mono-mic.zip", Format: archive.FormatZip},
		"GuitarSet_tmp",
		func(e manifest.Entry) (string, string, bool) {
			if e.AudioPath == "" {
				return "", "", false
			}
			return e.AudioPath, e.AudioPath, true
		},
	)
}

// NewMAESTRO maps maestro-v3.0.0/<orig_filepath> to audio_filepath.
func NewMAESTRO() Adapter {
	return newManifestArchive("MAESTRO",
		Remote{URL: MAESTROURL, Path: "maestro-v3.0.0.zip", Format: archive.FormatZip},
		"maestro_tmp",
		func(e manifest.Entry) (string, string, bool) {
			if e.OrigPath == "" || e.AudioPath == "" {
				return "", "", false
			}
			return "maestro-v3.0.0/" + e.OrigPath, e.AudioPath, true
		},
	)
}

// pcdReverbSuffix is stripped from a file id to find its excerpt directory.
const pcdReverbSuffix = "_P_reverb"

// NewPCD locates each file_id under PCD_2.0.1/excerpts/<id without the reverb
// suffix>/ and places it flat as <file_id>.wav.
func NewPCD() Adapter {
	return newManifestArchive("PCD",
		Remote{URL: PCDURL, Path: "PCD_2.0.1.zip", Format: archive.FormatZip},
		"PCD_tmp",
		func(e manifest.Entry) (string, string, bool) {
			if e.FileID == "" {
				return "", "", false
			}
			dir := strings.ReplaceAll(e.FileID, pcdReverbSuffix, "")
			name := e.FileID + ".wav"
			return "PCD_2.0.1/excerpts/" + dir + "/" + name, name, true
		},
	)
}
