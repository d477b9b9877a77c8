// Package config reads and writes fgit's persisted settings file, a flat
// INI file with [mirrors], [proxy] and [downloader] sections.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-ini/ini"
	"gopkg.in/yaml.v3"
)

const (
	// FileName is the settings file name inside the user's home directory.
	FileName = ".fgit.conf"

	SectionMirrors    = "mirrors"
	SectionProxy      = "proxy"
	SectionDownloader = "downloader"

	keySorted      = "sorted"
	keyTimestamp   = "timestamp"
	keyURL         = "url"
	keyChunkSize   = "chunk_size"
	keyMinFileSize = "min_file_size"

	DefaultChunkSize   = 1024
	DefaultMinFileSize = 100
)

// DownloaderConfig holds archive download tuning.
type DownloaderConfig struct {
	ChunkSize   int   `yaml:"chunk_size"`
	MinFileSize int64 `yaml:"min_file_size"`
}

// Store is the persisted settings file. It is read once at startup and
// rewritten whole on every save.
type Store struct {
	path string
	file *ini.File
}

// DefaultPath returns ~/.fgit.conf.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("locating home directory: %w", err)
	}
	return filepath.Join(home, FileName), nil
}

// Load reads the settings file at path. A missing file yields an empty
// store that will be created on first save.
func Load(path string) (*Store, error) {
	f, err := ini.LoadSources(ini.LoadOptions{Loose: true}, path)
	if err != nil {
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}
	return &Store{path: path, file: f}, nil
}

// Path returns the file backing the store.
func (s *Store) Path() string {
	return s.path
}

// Ranking returns the cached mirror ranking and its timestamp. A stored
// empty list is a valid ranking.
func (s *Store) Ranking() ([]string, time.Time, bool) {
	sec, err := s.file.GetSection(SectionMirrors)
	if err != nil || !sec.HasKey(keySorted) || !sec.HasKey(keyTimestamp) {
		return nil, time.Time{}, false
	}

	ts, err := sec.Key(keyTimestamp).Float64()
	if err != nil {
		return nil, time.Time{}, false
	}

	ids := []string{}
	for _, id := range strings.Split(sec.Key(keySorted).String(), ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	return ids, fromEpochSeconds(ts), true
}

// SaveRanking overwrites the cached mirror ranking.
func (s *Store) SaveRanking(ids []string, createdAt time.Time) error {
	sec := s.file.Section(SectionMirrors)
	sec.Key(keySorted).SetValue(strings.Join(ids, ","))
	sec.Key(keyTimestamp).SetValue(strconv.FormatFloat(toEpochSeconds(createdAt), 'f', -1, 64))
	return s.save()
}

// Proxy returns the [proxy] section, or nil when it is absent.
func (s *Store) Proxy() map[string]string {
	sec, err := s.file.GetSection(SectionProxy)
	if err != nil {
		return nil
	}
	return sec.KeysHash()
}

// ProxyURL returns proxy.url or "".
func (s *Store) ProxyURL() string {
	return s.Proxy()[keyURL]
}

// SaveProxy merges values into the [proxy] section.
func (s *Store) SaveProxy(values map[string]string) error {
	sec := s.file.Section(SectionProxy)
	for k, v := range values {
		sec.Key(k).SetValue(v)
	}
	return s.save()
}

// Downloader returns the [downloader] settings. When the section is missing
// it is written with defaults. Unparseable values fall back to defaults.
func (s *Store) Downloader() (DownloaderConfig, error) {
	cfg := DownloaderConfig{ChunkSize: DefaultChunkSize, MinFileSize: DefaultMinFileSize}

	sec, err := s.file.GetSection(SectionDownloader)
	if err != nil {
		sec = s.file.Section(SectionDownloader)
		sec.Key(keyChunkSize).SetValue(strconv.Itoa(cfg.ChunkSize))
		sec.Key(keyMinFileSize).SetValue(strconv.FormatInt(cfg.MinFileSize, 10))
		return cfg, s.save()
	}

	if v, err := sec.Key(keyChunkSize).Int(); err == nil && v > 0 {
		cfg.ChunkSize = v
	}
	if v, err := sec.Key(keyMinFileSize).Int64(); err == nil && v >= 0 {
		cfg.MinFileSize = v
	}
	return cfg, nil
}

// Set writes a single "section.key" value.
func (s *Store) Set(sectionKey, value string) error {
	section, key, ok := strings.Cut(sectionKey, ".")
	if !ok || section == "" || key == "" {
		return fmt.Errorf("key %q must have the form section.key", sectionKey)
	}
	s.file.Section(section).Key(key).SetValue(value)
	return s.save()
}

// YAML renders every non-empty section, used by "fgit settings show".
func (s *Store) YAML() ([]byte, error) {
	view := make(map[string]map[string]string)
	for _, sec := range s.file.Sections() {
		if len(sec.Keys()) == 0 {
			continue
		}
		view[sec.Name()] = sec.KeysHash()
	}
	data, err := yaml.Marshal(view)
	if err != nil {
		return nil, fmt.Errorf("marshaling config: %w", err)
	}
	return data, nil
}

// SectionNames lists non-empty sections in sorted order.
func (s *Store) SectionNames() []string {
	var names []string
	for _, sec := range s.file.Sections() {
		if len(sec.Keys()) > 0 {
			names = append(names, sec.Name())
		}
	}
	sort.Strings(names)
	return names
}

// save writes to a temp file next to the target and renames it into place.
func (s *Store) save() error {
	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".fgit-*.conf")
	if err != nil {
		return fmt.Errorf("creating temp config file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		_ = os.Remove(tmpName)
	}()

	if _, err := s.file.WriteTo(tmp); err != nil {
		tmp.Close()
		return fmt.Errorf("writing config file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp config file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("replacing config file %s: %w", s.path, err)
	}
	return nil
}

func toEpochSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}

func fromEpochSeconds(ts float64) time.Time {
	return time.Unix(0, int64(ts*float64(time.Second)))
}
