package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/ini.v1"

	"ytdlp_proxy/internal/shared/types"
)

const defaultStateFileName = "proxy.json"

// LoadIni 在默认配置之上加载 ini 配置文件。文件不存在时直接使用默认值。
func LoadIni(fileName string) (*types.Config, error) {
	cfg := types.DefaultConfig()
	iniFile, err := ini.LooseLoad(fileName)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file '%s': %w", fileName, err)
	}
	if err := iniFile.MapTo(cfg); err != nil {
		return nil, fmt.Errorf("failed to map config file '%s': %w", fileName, err)
	}
	overrideFromEnv(&cfg.LogConf.Level, "YTDLP_PROXY_LOG_LEVEL")
	overrideFromEnv(&cfg.PoolConf.StateFile, "YTDLP_PROXY_STATE_FILE")

	if cfg.PoolConf.StateFile == "" {
		cfg.PoolConf.StateFile = DefaultStatePath()
	}
	return cfg, nil
}

// DefaultStatePath returns proxy.json next to the running executable,
// falling back to the working directory.
func DefaultStatePath() string {
	exe, err := os.Executable()
	if err != nil {
		return defaultStateFileName
	}
	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolved
	}
	return filepath.Join(filepath.Dir(exe), defaultStateFileName)
}

// DefaultConfigPath 返回可执行文件旁边的 ytdlp-proxy.ini。
func DefaultConfigPath() string {
	exe, err := os.Executable()
	if err != nil {
		return "ytdlp-proxy.ini"
	}
	return filepath.Join(filepath.Dir(exe), "ytdlp-proxy.ini")
}

func overrideFromEnv(target *string, envName string) {
	if envValue := os.Getenv(envName); envValue != "" {
		*target = envValue
	}
}
