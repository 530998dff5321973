// Package settings loads the core's runtime configuration: data directory,
// KV backend selection, and the size/limit knobs spec §4.4 and §6 expose
// as "configured" rather than hard-coded.
package settings

import (
	"fmt"

	"github.com/spf13/viper"
)

// Arguments mirrors the teacher's flag-backed settings struct, extended
// with the knobs this storage engine needs and none of the server/auth
// fields it has no use for.
type Arguments struct {
	// DataDir holds the bbolt database file when Backend is "bolt".
	DataDir string
	// Backend selects the KV substrate: "mem" or "bolt".
	Backend string
	// ConfigFile, when set, is loaded before flags/env are applied.
	ConfigFile string

	// MaxDocumentBytes is the serialized-size limit spec §4.4 calls out
	// (default 1 MiB).
	MaxDocumentBytes int

	// JournalPath, when non-empty, enables the advisory mutation journal.
	JournalPath string

	Verbose bool
}

// Defaults returns the zero-config Arguments every Load call starts from.
func Defaults() Arguments {
	return Arguments{
		DataDir:          "./datafiles/syndrdb.db",
		Backend:          "bolt",
		MaxDocumentBytes: 1 << 20,
		JournalPath:      "./datafiles/syndrdb.journal",
	}
}

// Load builds Arguments from defaults, overlaid by a config file (if
// configFile is non-empty) and then by SYNDRDB_-prefixed environment
// variables, grounded on the teacher's config-file-then-flags layering in
// src/main.go (here, flags are the caller's job - Load only does
// file+env, matching settings.Arguments' role as the pure config layer).
func Load(configFile string) (Arguments, error) {
	args := Defaults()

	v := viper.New()
	v.SetEnvPrefix("SYNDRDB")
	v.AutomaticEnv()
	v.SetDefault("datadir", args.DataDir)
	v.SetDefault("backend", args.Backend)
	v.SetDefault("maxdocumentbytes", args.MaxDocumentBytes)
	v.SetDefault("journalpath", args.JournalPath)
	v.SetDefault("verbose", args.Verbose)

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return Arguments{}, fmt.Errorf("settings: failed to read config file %s: %w", configFile, err)
		}
	}

	args.ConfigFile = configFile
	args.DataDir = v.GetString("datadir")
	args.Backend = v.GetString("backend")
	args.MaxDocumentBytes = v.GetInt("maxdocumentbytes")
	args.JournalPath = v.GetString("journalpath")
	args.Verbose = v.GetBool("verbose")

	if args.Backend != "mem" && args.Backend != "bolt" {
		return Arguments{}, fmt.Errorf("settings: invalid backend %q (must be \"mem\" or \"bolt\")", args.Backend)
	}
	return args, nil
}
