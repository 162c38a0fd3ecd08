package lockfile

import (
	"bufio"
	"os"
	"strings"

	"github.com/gitcache-dev/gitcache/pkg/giturl"
	"github.com/gitcache-dev/gitcache/pkg/model"
)

// scanYarnLock makes a best-effort pass over a yarn.lock file looking for
// "resolved" entries that point at a Git URL. yarn.lock has no formal
// grammar the way package-lock.json does, so any parsing difficulty here
// degrades to an empty, non-git result rather than a hard failure — per
// design choice, yarn.lock support is opportunistic, not a
// contractual dialect.
func scanYarnLock(path string) (*model.LockfileScanResult, error) {
	f, err := os.Open(path)
	if err != nil {
		// The caller already verified the file exists; a failure here
		// is some other I/O issue. Degrade rather than fail the whole
		// install over a lockfile we only use opportunistically.
		return emptyResult(), nil
	}
	defer f.Close()

	var (
		deps        []model.GitDependency
		currentName string
	)

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		trimmed := strings.TrimSpace(line)

		switch {
		case isHeaderLine(line):
			currentName = yarnEntryName(trimmed)
		case strings.HasPrefix(trimmed, "resolved "):
			url := unquote(strings.TrimPrefix(trimmed, "resolved "))
			if currentName != "" && giturl.Recognized(url) {
				if dep, ok := buildDependency(currentName, url); ok {
					deps = append(deps, dep)
				}
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return emptyResult(), nil
	}

	return &model.LockfileScanResult{
		LockfileVersion:    1,
		HasGitDependencies: len(deps) > 0,
		Dependencies:       deps,
	}, nil
}

func emptyResult() *model.LockfileScanResult {
	return &model.LockfileScanResult{LockfileVersion: 1}
}

// isHeaderLine reports whether line introduces a new dependency block: a
// non-indented, non-comment, non-blank line ending in ":".
func isHeaderLine(line string) bool {
	if line == "" || strings.HasPrefix(line, " ") || strings.HasPrefix(line, "#") {
		return false
	}
	return strings.HasSuffix(strings.TrimSpace(line), ":")
}

// yarnEntryName extracts the bare package name from a yarn.lock header such
// as `"foo@git+https://github.com/x/y.git#main":` or
// `foo@^1.0.0, foo@~1.0.0:`. Only the first alias is used, and any `@`
// version-spec from the right is dropped, taking the left-most `@`
// boundary into account for scoped packages (`@scope/name@spec`).
func yarnEntryName(header string) string {
	header = strings.TrimSuffix(header, ":")
	first := strings.Split(header, ",")[0]
	first = strings.TrimSpace(unquote(first))

	if strings.HasPrefix(first, "@") {
		idx := strings.Index(first[1:], "@")
		if idx == -1 {
			return first
		}
		return first[:idx+1]
	}
	idx := strings.Index(first, "@")
	if idx == -1 {
		return first
	}
	return first[:idx]
}

func unquote(s string) string {
	s = strings.TrimSpace(s)
	return strings.Trim(s, `"`)
}
