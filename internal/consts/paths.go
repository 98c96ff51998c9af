package consts

import (
	"os"
	"path/filepath"
)

const (
	TempoDirName     = ".tempo"
	ConfigFileName   = "config.yaml"
	RunStateFileName = "runstate.json"
	TagMapFileName   = "tagmap.json"
)

func TempoHomeDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, TempoDirName)
}

func DefaultConfigPath() string {
	return filepath.Join(TempoHomeDir(), ConfigFileName)
}

func DefaultRunStatePath() string {
	return filepath.Join(TempoHomeDir(), RunStateFileName)
}

func DefaultTagMapPath() string {
	return filepath.Join(TempoHomeDir(), TagMapFileName)
}

func DefaultWorkspaceDir() string {
	return filepath.Join(TempoHomeDir(), "workspace")
}
