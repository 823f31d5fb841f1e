package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"dario.cat/mergo"
	"github.com/titanous/json5"
	"gopkg.in/yaml.v3"

	"github.com/JonMunkholm/publsync/internal/core"
	"github.com/JonMunkholm/publsync/internal/store"
)

// Settings are the tunables read from the settings file. Zero values in a
// file keep the default.
type Settings struct {
	BatchSize              int                                      `json:"batch_size" yaml:"batch_size"`
	TimezoneOffset         string                                   `json:"timezone_offset" yaml:"timezone_offset"`
	Tables                 core.TableNames                          `json:"tables" yaml:"tables"`
	TestRecords            core.TestRecordRules                     `json:"test_records" yaml:"test_records"`
	RequiredFields         map[string]map[string]core.RequiredField `json:"required_fields" yaml:"required_fields"`
	MergePolicy            core.MergePolicy                         `json:"merge_policy" yaml:"merge_policy"`
	DeletePolicy           core.DeletePolicy                        `json:"delete_policy" yaml:"delete_policy"`
	NearDuplicateThreshold float64                                  `json:"near_duplicate_threshold" yaml:"near_duplicate_threshold"`
}

// DefaultSettings returns the settings used when no file is present.
func DefaultSettings() Settings {
	return Settings{
		BatchSize:      store.MaxBatchSize,
		TimezoneOffset: core.DefaultOffset,
		Tables:         core.DefaultTableNames(),
		TestRecords:    core.DefaultTestRecordRules(),
		RequiredFields: map[string]map[string]core.RequiredField{},
		MergePolicy:            core.MergeWelcomeSentWins,
		DeletePolicy:           core.DeleteReport,
		NearDuplicateThreshold: 0.95,
	}
}

// LoadSettings reads path and its ".local" sibling (settings.json5 and
// settings.local.json5) over the defaults. Files ending in .yaml or .yml are
// parsed as YAML, anything else as JSON5. Missing files are not an error.
func LoadSettings(path string) (Settings, error) {
	out := DefaultSettings()
	if path == "" {
		return out, nil
	}

	for _, p := range []string{path, localPath(path)} {
		override, found, err := readSettings(p)
		if err != nil {
			return out, fmt.Errorf("settings %s: %w", p, err)
		}
		if !found {
			continue
		}
		if err := mergo.Merge(&out, override, mergo.WithOverride); err != nil {
			return out, fmt.Errorf("settings %s: merge: %w", p, err)
		}
		slog.Debug("settings loaded", "path", p)
	}

	return out, nil
}

// localPath returns the override path: dir/name.local.ext.
func localPath(path string) string {
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + ".local" + ext
}

func readSettings(path string) (Settings, bool, error) {
	var s Settings

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, false, nil
	}
	if err != nil {
		return s, false, err
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return s, false, nil
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &s)
	default:
		err = json5.Unmarshal(data, &s)
	}
	if err != nil {
		return s, false, err
	}
	return s, true, nil
}

func (s Settings) validate() []string {
	var errs []string

	if s.BatchSize <= 0 || s.BatchSize > store.MaxBatchSize {
		errs = append(errs, fmt.Sprintf("batch_size (%d) must be 1-%d", s.BatchSize, store.MaxBatchSize))
	}
	if !core.ValidOffset(s.TimezoneOffset) {
		errs = append(errs, fmt.Sprintf("timezone_offset (%q) must look like +09:00", s.TimezoneOffset))
	}
	if !s.MergePolicy.Valid() {
		errs = append(errs, fmt.Sprintf("merge_policy (%q) must be one of: %s, %s",
			s.MergePolicy, core.MergeWelcomeSentWins, core.MergeFirstWins))
	}
	if !s.DeletePolicy.Valid() {
		errs = append(errs, fmt.Sprintf("delete_policy (%q) must be one of: %s, %s",
			s.DeletePolicy, core.DeleteReport, core.DeleteRemove))
	}
	if s.NearDuplicateThreshold < 0 || s.NearDuplicateThreshold > 1 {
		errs = append(errs, fmt.Sprintf("near_duplicate_threshold (%g) must be between 0 and 1", s.NearDuplicateThreshold))
	}

	for _, key := range []string{"members", "orders", "refunds", "products", "member_programs"} {
		if _, ok := s.Tables.ByKey(key); !ok {
			errs = append(errs, fmt.Sprintf("tables.%s must not be empty", key))
		}
	}
	for key, fields := range s.RequiredFields {
		if _, ok := s.Tables.ByKey(key); !ok {
			errs = append(errs, fmt.Sprintf("required_fields: unknown table %q", key))
		}
		// Withdrawal detection owns the active flag.
		if _, ok := fields[core.FieldIsActive]; ok && key == core.SourceMembers {
			errs = append(errs, fmt.Sprintf("required_fields: members.%s is set by withdrawal detection", core.FieldIsActive))
		}
	}

	return errs
}
