package datasets

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/text/unicode/norm"

	"rawbench/internal/archive"
	"rawbench/internal/fileutil"
	"rawbench/internal/logging"
	"rawbench/internal/services"
	"rawbench/internal/workspace"
)

const (
	ClothoURL = "https://zenodo.org/records/4783391/files/clotho_audio_evaluation.7z"
	AIRURL    = "https://www.iks.rwth-aachen.de/fileadmin/user_upload/downloads/forschung/tools-downloads/air_database_release_1_4.zip"
	// DEMANDBaseURL is the record holding one zip per recording location.
	DEMANDBaseURL = "https://zenodo.org/records/1227121/files"
)

// DEMANDLocations lists the recording environments in download order.
var DEMANDLocations = []string{
	"DKITCHEN", "DLIVING", "DWASHING", "NFIELD", "NPARK", "NRIVER",
	"OHALLWAY", "OMEETING", "OOFFICE", "PCAFETER", "PRESTO", "PSTATION",
	"SCAFE", "SPSQUARE", "STRAFFIC", "TBUS", "TCAR", "TMETRO",
}

type clotho struct {
	base
	archiveSource
}

// NewClotho keeps every WAV in the evaluation split, with whitespace removed
// from file names.
func NewClotho() Adapter {
	return &clotho{
		base: base{name: "Clotho", policy: Fatal},
		archiveSource: archiveSource{remotes: []Remote{
			{URL: ClothoURL, Path: "clotho_evaluation.7z", Format: archive.Format7z},
		}},
	}
}

func (c *clotho) Extract(ctx context.Context, s *Session) error {
	dir, err := s.PrepareWorkspace("tmp_clotho")
	if err != nil {
		return err
	}
	for _, h := range s.Archives() {
		if err := archive.Extract(ctx, h.Path, h.Format, dir); err != nil {
			return err
		}
	}
	return nil
}

func (c *clotho) Select(_ context.Context, s *Session) ([]Placement, error) {
	evalDir := filepath.Join(s.Workspace, "evaluation")
	entries, err := os.ReadDir(evalDir)
	if err != nil {
		return nil, services.Wrap(services.ErrMissingExpectedFile, c.name, StepSelect, "evaluation directory", err)
	}
	var placements []Placement
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(strings.ToLower(name), ".wav") {
			continue
		}
		placements = append(placements, Placement{
			Src: filepath.Join(evalDir, name),
			Dst: canonicalClothoName(name),
		})
	}
	return placements, nil
}

// canonicalClothoName strips spaces and normalizes to NFC so the same clip
// gets the same name regardless of how the archive encoded it.
func canonicalClothoName(name string) string {
	return norm.NFC.String(strings.ReplaceAll(name, " ", ""))
}

// airInnerArchive is the nested archive holding the impulse responses.
const airInnerArchive = "AIR_1_4/AIR_wav_files.zip"

type air struct {
	base
	archiveSource
}

// NewAIR unpacks the outer release archive, relocates the nested WAV archive,
// and places every file it contains keeping relative paths.
func NewAIR() Adapter {
	return &air{
		base: base{name: "AIR", policy: Fatal},
		archiveSource: archiveSource{remotes: []Remote{
			{URL: AIRURL, Path: "air_database_release_1_4.zip", Format: archive.FormatZip},
		}},
	}
}

func (a *air) Extract(ctx context.Context, s *Session) error {
	handles := s.Archives()
	if len(handles) == 0 {
		return errors.New("no archive tracked")
	}

	outerDir, err := workspace.Prepare(s.TempRoot, "AIR_tmp")
	if err != nil {
		return err
	}
	s.AddScratch(outerDir)
	if err := s.Fetcher.Unzip(ctx, handles[0].Path, outerDir); err != nil {
		return err
	}

	inner := filepath.Join(outerDir, filepath.FromSlash(airInnerArchive))
	if !fileutil.Exists(inner) {
		return services.Wrap(services.ErrMissingExpectedFile, a.name, StepExtract, airInnerArchive, nil)
	}
	relocated := s.TempPath("AIR_wav_files.zip")
	if err := fileutil.MoveFile(inner, relocated); err != nil {
		return fmt.Errorf("relocate inner archive: %w", err)
	}
	s.AddScratch(relocated)
	if err := workspace.Remove(outerDir); err != nil {
		return err
	}

	dir, err := s.PrepareWorkspace("AIR_wav")
	if err != nil {
		return err
	}
	s.Logger.Info("extracting nested archive",
		logging.String("archive", relocated),
		logging.String("workspace", dir),
	)
	return s.Fetcher.Unzip(ctx, relocated, dir)
}

func (a *air) Select(_ context.Context, s *Session) ([]Placement, error) {
	return treePlacements(s.Workspace, "")
}

type demand struct {
	base
	archiveSource
}

// NewDEMAND downloads one archive per location and places each under
// <LOCATION>_48k/ keeping relative paths.
func NewDEMAND() Adapter {
	remotes := make([]Remote, 0, len(DEMANDLocations))
	for _, loc := range DEMANDLocations {
		name := loc + "_48k.zip"
		remotes = append(remotes, Remote{
			URL:    DEMANDBaseURL + "/" + name + "?download=1",
			Path:   filepath.Join("tmp_DEMAND", name),
			Format: archive.FormatZip,
		})
	}
	return &demand{
		base:          base{name: "DEMAND", policy: Fatal},
		archiveSource: archiveSource{remotes: remotes},
	}
}

func (d *demand) Locate(ctx context.Context, s *Session) error {
	s.AddParent(s.TempPath("tmp_DEMAND"))
	return d.archiveSource.Locate(ctx, s)
}

func (d *demand) Extract(ctx context.Context, s *Session) error {
	dir, err := s.PrepareWorkspace("DEMAND_tmp")
	if err != nil {
		return err
	}
	for _, h := range s.Archives() {
		sub := strings.TrimSuffix(filepath.Base(h.Path), ".zip")
		if err := archive.Extract(ctx, h.Path, h.Format, filepath.Join(dir, sub)); err != nil {
			return err
		}
	}
	return nil
}

func (d *demand) Select(_ context.Context, s *Session) ([]Placement, error) {
	return treePlacements(s.Workspace, "")
}
