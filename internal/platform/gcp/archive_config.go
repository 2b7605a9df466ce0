package gcp

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/yungbote/questweaver/internal/platform/envutil"
)

type StorageMode string

const (
	StorageModeGCS         StorageMode = "gcs"
	StorageModeGCSEmulator StorageMode = "gcs_emulator"
)

// ArchiveConfig locates the bucket finished quests are exported to. An empty
// Bucket disables archiving.
type ArchiveConfig struct {
	Bucket        string
	Prefix        string
	Mode          StorageMode
	EmulatorHost  string
	PublicBaseURL string
	Credentials   string
}

func ArchiveConfigFromEnv() (ArchiveConfig, error) {
	cfg := ArchiveConfig{
		Bucket:        envutil.String("QUEST_ARCHIVE_BUCKET", ""),
		Prefix:        envutil.String("QUEST_ARCHIVE_PREFIX", "quests"),
		EmulatorHost:  strings.TrimRight(envutil.String("STORAGE_EMULATOR_HOST", ""), "/"),
		PublicBaseURL: strings.TrimRight(envutil.String("OBJECT_STORAGE_PUBLIC_BASE_URL", ""), "/"),
		Credentials:   envutil.String("GOOGLE_APPLICATION_CREDENTIALS_JSON", envutil.String("GOOGLE_APPLICATION_CREDENTIALS", "")),
	}
	switch mode := StorageMode(strings.ToLower(envutil.String("OBJECT_STORAGE_MODE", ""))); mode {
	case "":
		cfg.Mode = StorageModeGCS
		if cfg.EmulatorHost != "" {
			cfg.Mode = StorageModeGCSEmulator
		}
	case StorageModeGCS, StorageModeGCSEmulator:
		cfg.Mode = mode
	default:
		return cfg, fmt.Errorf("invalid OBJECT_STORAGE_MODE=%q (allowed: %q, %q)", mode, StorageModeGCS, StorageModeGCSEmulator)
	}
	return cfg, cfg.Validate()
}

func (c ArchiveConfig) Enabled() bool { return strings.TrimSpace(c.Bucket) != "" }

func (c ArchiveConfig) Validate() error {
	if c.Mode != StorageModeGCSEmulator {
		return nil
	}
	if c.EmulatorHost == "" {
		return fmt.Errorf("OBJECT_STORAGE_MODE=%q requires STORAGE_EMULATOR_HOST", StorageModeGCSEmulator)
	}
	u, err := url.Parse(c.EmulatorHost)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid STORAGE_EMULATOR_HOST=%q; expected absolute URL like http://fake-gcs:4443", c.EmulatorHost)
	}
	return nil
}

// ObjectKey is where the quest with id questID is stored.
func (c ArchiveConfig) ObjectKey(questID string) string {
	name := url.PathEscape(strings.TrimSpace(questID)) + ".json"
	prefix := strings.Trim(c.Prefix, "/")
	if prefix == "" {
		return name
	}
	return prefix + "/" + name
}

// PublicURL is the address a stored object can be fetched from.
func (c ArchiveConfig) PublicURL(key string) string {
	base := c.PublicBaseURL
	if base == "" && c.Mode == StorageModeGCSEmulator {
		base = c.EmulatorHost
	}
	if base == "" {
		base = "https://storage.googleapis.com"
	}
	return base + "/" + c.Bucket + "/" + key
}
