package paths

import (
	"path"

	"github.com/gobwas/glob"
)

// sensitiveConfigGlobs match file names whose divergence breaks a whole build
// or deployment rather than a single module.
var sensitiveConfigGlobs = compileGlobs(
	"package.json",
	"package-lock.json",
	"tsconfig*.json",
	"go.mod",
	"go.sum",
	".env*",
	"dockerfile",
	"docker-compose*.{yml,yaml}",
	"*.config.{js,ts,mjs,cjs}",
	"makefile",
	"cargo.toml",
	"pyproject.toml",
)

func compileGlobs(patterns ...string) []glob.Glob {
	globs := make([]glob.Glob, 0, len(patterns))
	for _, p := range patterns {
		globs = append(globs, glob.MustCompile(p))
	}
	return globs
}

// IsSensitiveConfig reports whether the base name of p is a project-wide
// configuration file. p is normalized before matching.
func IsSensitiveConfig(p string) bool {
	base := path.Base(Normalize(p))
	for _, g := range sensitiveConfigGlobs {
		if g.Match(base) {
			return true
		}
	}
	return false
}
