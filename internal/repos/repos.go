package repos

import (
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"gopkg.in/ini.v1"
	"gopkg.in/yaml.v3"
)

// Store locates repositories on disk and reads their notification
// settings. Settings are re-read on every lookup so project owners can
// edit them between events without a restart.
type Store struct {
	roots      []string // glob patterns covering the hosting directories
	schemeFile string   // settings file name, relative to the repo dir
}

// NewStore returns a store scanning the given glob roots. schemeFile is
// the per-repository settings file name (e.g. "notifications.yaml").
func NewStore(roots []string, schemeFile string) *Store {
	return &Store{roots: roots, schemeFile: schemeFile}
}

// Locate returns the on-disk path for a repository id, matching directory
// basenames against "<repository>.git". Empty string means the repository
// is not hosted here, which is a normal outcome.
func (s *Store) Locate(repository string) string {
	want := repository + ".git"
	for _, root := range s.roots {
		matches, err := filepath.Glob(root)
		if err != nil {
			log.Warn().Str("root", root).Err(err).Msg("Bad repository glob")
			continue
		}
		for _, path := range matches {
			if filepath.Base(path) == want {
				return path
			}
		}
	}
	return ""
}

// Settings is the parsed per-repository settings file: flat string values
// become routing-scheme entries, and the reserved custom_subjects mapping
// carries per-action subject overrides.
type Settings struct {
	Routes         map[string]string
	CustomSubjects map[string]string
}

// ReadSettings parses the settings file inside the repo directory. A
// missing or unparseable file yields empty settings; the caller treats
// that layer as absent.
func (s *Store) ReadSettings(repoPath string) Settings {
	settings := Settings{
		Routes:         map[string]string{},
		CustomSubjects: map[string]string{},
	}
	if repoPath == "" || s.schemeFile == "" {
		return settings
	}
	raw, err := os.ReadFile(filepath.Join(repoPath, s.schemeFile))
	if err != nil {
		return settings
	}
	var doc map[string]any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		log.Debug().Str("repo", repoPath).Err(err).Msg("Unparseable settings file, layer skipped")
		return settings
	}
	for key, value := range doc {
		switch v := value.(type) {
		case string:
			settings.Routes[key] = v
		case map[string]any:
			if key != "custom_subjects" {
				continue
			}
			for action, subject := range v {
				if s, ok := subject.(string); ok {
					settings.CustomSubjects[action] = s
				}
			}
		}
	}
	return settings
}

// LegacyConfig reads the repository's plain git config file, which uses
// INI syntax with quoted subsections such as [hooks "asfgit"].
type LegacyConfig struct {
	file *ini.File
}

// ReadLegacyConfig loads <repo>/config. Read or parse failures degrade to
// an empty config.
func (s *Store) ReadLegacyConfig(repoPath string) LegacyConfig {
	if repoPath == "" {
		return LegacyConfig{}
	}
	f, err := ini.Load(filepath.Join(repoPath, "config"))
	if err != nil {
		return LegacyConfig{}
	}
	return LegacyConfig{file: f}
}

// Get looks up a key under a section with an optional quoted subsection.
func (l LegacyConfig) Get(section, subsection, key string) (string, bool) {
	if l.file == nil {
		return "", false
	}
	name := section
	if subsection != "" {
		name = section + ` "` + subsection + `"`
	}
	sec, err := l.file.GetSection(name)
	if err != nil || !sec.HasKey(key) {
		return "", false
	}
	value := sec.Key(key).String()
	if value == "" {
		return "", false
	}
	return value, true
}
