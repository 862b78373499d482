package config

import (
	"fmt"
)

type Config struct {
	ServerAddr     string
	PublicDir      string
	VaultDir       string
	AllowedOrigins []string
}

func NewConfig(serverAddr, publicDir, vaultDir string, allowedOrigins []string) (*Config, error) {
	if serverAddr == "" {
		return nil, fmt.Errorf("server address cannot be empty")
	}
	if publicDir == "" {
		return nil, fmt.Errorf("public directory cannot be empty")
	}
	if vaultDir == "" {
		return nil, fmt.Errorf("vault directory cannot be empty")
	}
	if publicDir == vaultDir {
		return nil, fmt.Errorf("public and vault directories must differ")
	}

	return &Config{
		ServerAddr:     serverAddr,
		PublicDir:      publicDir,
		VaultDir:       vaultDir,
		AllowedOrigins: allowedOrigins,
	}, nil
}
