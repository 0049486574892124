package datasets

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"rawbench/internal/fetch"
	"rawbench/internal/fileutil"
	"rawbench/internal/logging"
	"rawbench/internal/services"
)

type freischuetzItem struct {
	url     string
	name    string
	present bool
}

type freischuetz struct {
	base
	urlList   string
	hashTable string
	algorithm string
	items     []freischuetzItem
	hashes    map[string]string
}

// NewFreischuetz downloads every URL listed in urlList and checks each file
// against the tab-separated hashTable. Checksum problems are logged only.
func NewFreischuetz(urlList, hashTable, algorithm string) Adapter {
	return &freischuetz{
		base:      base{name: "Freischuetz", policy: Fatal},
		urlList:   urlList,
		hashTable: hashTable,
		algorithm: algorithm,
	}
}

func (f *freischuetz) Locate(_ context.Context, s *Session) error {
	urls, err := readLines(f.urlList)
	if err != nil {
		return auxiliaryError(f.name, f.urlList, err)
	}
	hashLines, err := readLines(f.hashTable)
	if err != nil {
		return auxiliaryError(f.name, f.hashTable, err)
	}

	f.hashes = make(map[string]string, len(hashLines))
	for _, line := range hashLines {
		name, sum, ok := strings.Cut(line, "\t")
		if !ok {
			continue
		}
		if i := strings.IndexByte(sum, '\t'); i >= 0 {
			sum = sum[:i]
		}
		f.hashes[strings.TrimSpace(name)] = strings.ToLower(strings.TrimSpace(sum))
	}

	f.items = f.items[:0]
	present := 0
	for _, u := range urls {
		item := freischuetzItem{url: u, name: freischuetzFileName(u)}
		item.present = fileutil.Exists(filepath.Join(s.TargetDir, item.name))
		if item.present {
			present++
		}
		f.items = append(f.items, item)
	}
	s.Logger.Info("url list loaded",
		logging.Int("files", len(f.items)),
		logging.Int("already_present", present),
	)
	return nil
}

func (f *freischuetz) Fetch(ctx context.Context, s *Session) error {
	var dir string
	for _, item := range f.items {
		if item.present {
			continue
		}
		if dir == "" {
			var err error
			if dir, err = s.PrepareWorkspace("Freischuetz_tmp"); err != nil {
				return err
			}
		}
		s.Logger.Info("downloading", logging.String("file", item.name))
		if err := s.Fetcher.Download(ctx, fetch.Request{URL: item.url, Dest: filepath.Join(dir, item.name)}); err != nil {
			return err
		}
	}
	return nil
}

func (f *freischuetz) Extract(context.Context, *Session) error {
	return nil
}

// Select verifies every file against the hash table, then places the
// downloaded ones.
func (f *freischuetz) Select(_ context.Context, s *Session) ([]Placement, error) {
	var placements []Placement
	for _, item := range f.items {
		path := filepath.Join(s.TargetDir, item.name)
		if !item.present {
			path = filepath.Join(s.Workspace, item.name)
			placements = append(placements, Placement{Src: path, Dst: item.name})
		}
		if err := f.verify(path, item.name); err != nil {
			if !services.Advisory(err) {
				return nil, err
			}
			logging.WarnWithContext(s.Logger, "checksum verification failed", "checksum_mismatch",
				logging.String("file", item.name),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "compare the file with the published hash table"),
				logging.String(logging.FieldImpact, "file kept; integrity not confirmed"),
			)
		}
	}
	return placements, nil
}

func (f *freischuetz) Cleanup(_ context.Context, s *Session) error {
	return s.CleanupTemp()
}

func (f *freischuetz) verify(path, name string) error {
	want, ok := f.hashes[name]
	if !ok {
		return services.Wrap(services.ErrChecksumMismatch, f.name, StepSelect, "no hash table entry for "+name, nil)
	}
	got, err := fileutil.Checksum(path, f.algorithm)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return services.Wrap(services.ErrMissingExpectedFile, f.name, StepSelect, name, err)
		}
		return err
	}
	if got != want {
		return services.Wrap(services.ErrChecksumMismatch, f.name, StepSelect,
			fmt.Sprintf("%s: expected %s, got %s", name, want, got), nil)
	}
	return nil
}

// freischuetzFileName is the last URL path segment with spaces removed.
func freischuetzFileName(rawURL string) string {
	name := rawURL
	if i := strings.LastIndexByte(name, '/'); i >= 0 {
		name = name[i+1:]
	}
	return strings.ReplaceAll(name, " ", "")
}

func readLines(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var lines []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			lines = append(lines, line)
		}
	}
	return lines, scanner.Err()
}

func auxiliaryError(dataset, path string, err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return services.Wrap(services.ErrMissingAuxiliary, dataset, StepLocate, path, err)
	}
	return fmt.Errorf("read %s: %w", path, err)
}
