package config

import (
	"errors"
	"io/fs"
	"log"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

var envFileNames = []string{".env.local", ".env"}

// loadEnvFiles fills unset environment variables from .env.local and .env found in the
// working directory or next to the executable. godotenv never overrides a variable
// that is already set, so earlier files win.
func loadEnvFiles() {
	for _, dir := range envFileDirs() {
		for _, name := range envFileNames {
			path := filepath.Join(dir, name)
			if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
				log.Printf("config: %s: %v", path, err)
			}
		}
	}
}

func envFileDirs() []string {
	var dirs []string
	if cwd, err := os.Getwd(); err == nil {
		dirs = append(dirs, cwd)
	}
	if exe, err := os.Executable(); err == nil {
		if dir := filepath.Dir(exe); dir != "" && (len(dirs) == 0 || dirs[0] != dir) {
			dirs = append(dirs, dir)
		}
	}
	return dirs
}
