package config

import (
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// FileSystem abstracts the file operations of the loader for tests.
type FileSystem interface {
	Exists(path string) bool
	LoadEnv(path string) error
}

// RealFileSystem implements FileSystem on the OS.
type RealFileSystem struct{}

func (rfs *RealFileSystem) Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func (rfs *RealFileSystem) LoadEnv(path string) error {
	return godotenv.Load(path)
}

// Resolver finds the config and env files of a service.
type Resolver struct {
	FileSystem FileSystem
}

// ResolvedFiles contains the resolved config and env file paths.
// Empty means none was found.
type ResolvedFiles struct {
	ConfigFile string
	EnvFile    string
}

// ResolveFiles keeps explicit paths from opts and searches for the rest.
func (cr *Resolver) ResolveFiles(serviceName string, opts LoaderConfig) ResolvedFiles {
	resolved := ResolvedFiles{
		ConfigFile: opts.ConfigFile,
		EnvFile:    opts.EnvFile,
	}
	if resolved.ConfigFile == "" {
		resolved.ConfigFile = cr.firstExisting(configCandidates(serviceName))
	}
	if resolved.EnvFile == "" {
		resolved.EnvFile = cr.firstExisting(envCandidates(serviceName))
	}
	return resolved
}

func (cr *Resolver) firstExisting(paths []string) string {
	for _, p := range paths {
		if cr.FileSystem.Exists(p) {
			return p
		}
	}
	return ""
}

// serviceNames returns the service name and, for "a-b", the short name "b".
func serviceNames(serviceName string) []string {
	if idx := strings.LastIndex(serviceName, "-"); idx != -1 {
		return []string{serviceName, serviceName[idx+1:]}
	}
	return []string{serviceName}
}

var parentDirs = []string{"./", "../", "../../"}

// configCandidates lists config.yml locations in search order: the
// service's cmd directory from the module root or below it, then shared
// config directories, then the working directory.
func configCandidates(serviceName string) []string {
	var paths []string
	for _, up := range parentDirs {
		for _, name := range serviceNames(serviceName) {
			paths = append(paths, up+"cmd/"+name+"/config.yml")
		}
	}
	return append(paths, "./config/config.yml", "../config/config.yml", "./config.yml")
}

// envCandidates lists .env locations. A service-specific ".env.<name>"
// anywhere wins over a plain ".env".
func envCandidates(serviceName string) []string {
	var dirs []string
	for _, name := range serviceNames(serviceName) {
		dirs = append(dirs, envDirs(name)...)
	}

	var paths []string
	for _, file := range []string{".env." + serviceName, ".env"} {
		for _, dir := range dirs {
			if dir == "" {
				paths = append(paths, file)
				continue
			}
			paths = append(paths, dir+"/"+file)
		}
	}
	return removeDuplicates(paths)
}

// envDirs lists the directories searched for .env files, without a
// trailing slash. The empty entry is the bare file name.
func envDirs(name string) []string {
	var dirs []string
	for _, dir := range []string{"cmd/" + name, "config/" + name, "config"} {
		for _, up := range parentDirs {
			dirs = append(dirs, up+dir)
		}
	}
	return append(dirs, ".", "..", "../..", "")
}
