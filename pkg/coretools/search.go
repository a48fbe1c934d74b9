package coretools

import (
	"bufio"
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/harun/coda/pkg/dispatcher"
)

const (
	maxSearchMatches = 200
	maxSearchDepth   = 32
)

var skippedDirs = map[string]bool{
	".git":         true,
	"node_modules": true,
	"vendor":       true,
}

func globTool(opts Options) dispatcher.ToolDefinition {
	return dispatcher.ToolDefinition{
		Name:        "glob",
		Description: "Find workspace files whose names match a glob pattern.",
		Category:    dispatcher.CategoryRead,
		Parameters: []dispatcher.ToolParameter{
			{Name: "pattern", Type: "string", Description: "Glob pattern, e.g. *.go", Required: true},
			{Name: "dir", Type: "string", Description: "Directory to search (relative to workspace)", Required: false},
		},
		Handler: func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
			pattern, _ := params["pattern"].(string)
			if strings.TrimSpace(pattern) == "" {
				return nil, fmt.Errorf("pattern is required")
			}
			if _, err := filepath.Match(pattern, ""); err != nil {
				return nil, fmt.Errorf("invalid pattern: %w", err)
			}

			root, base, err := searchBase(ctx, opts, params)
			if err != nil {
				return nil, err
			}

			var matches []string
			err = walkWorkspace(base, func(path string, d fs.DirEntry) error {
				if d.IsDir() {
					return nil
				}
				ok, _ := filepath.Match(pattern, d.Name())
				if !ok {
					return nil
				}
				rel, relErr := filepath.Rel(root, path)
				if relErr != nil {
					return relErr
				}
				matches = append(matches, rel)
				if len(matches) >= maxSearchMatches {
					return fs.SkipAll
				}
				return nil
			})
			if err != nil {
				return nil, err
			}

			if len(matches) == 0 {
				return "No files matched", nil
			}
			sort.Strings(matches)
			return strings.Join(matches, "\n"), nil
		},
	}
}

func grepTool(opts Options) dispatcher.ToolDefinition {
	return dispatcher.ToolDefinition{
		Name:        "grep",
		Description: "Search workspace files for a regular expression.",
		Category:    dispatcher.CategoryRead,
		Parameters: []dispatcher.ToolParameter{
			{Name: "pattern", Type: "string", Description: "Regular expression", Required: true},
			{Name: "dir", Type: "string", Description: "Directory to search (relative to workspace)", Required: false},
			{Name: "glob", Type: "string", Description: "Restrict to files matching this glob", Required: false},
		},
		Handler: func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
			rawPattern, _ := params["pattern"].(string)
			if strings.TrimSpace(rawPattern) == "" {
				return nil, fmt.Errorf("pattern is required")
			}
			re, err := regexp.Compile(rawPattern)
			if err != nil {
				return nil, fmt.Errorf("invalid pattern: %w", err)
			}

			fileGlob, _ := params["glob"].(string)

			root, base, err := searchBase(ctx, opts, params)
			if err != nil {
				return nil, err
			}

			var lines []string
			err = walkWorkspace(base, func(path string, d fs.DirEntry) error {
				if d.IsDir() {
					return nil
				}
				if fileGlob != "" {
					if ok, _ := filepath.Match(fileGlob, d.Name()); !ok {
						return nil
					}
				}
				rel, relErr := filepath.Rel(root, path)
				if relErr != nil {
					return relErr
				}
				found, grepErr := grepFile(path, rel, re, &lines)
				if grepErr != nil {
					return nil // unreadable or binary, skip
				}
				if found && len(lines) >= maxSearchMatches {
					return fs.SkipAll
				}
				return nil
			})
			if err != nil {
				return nil, err
			}

			if len(lines) == 0 {
				return "No matches found", nil
			}
			return strings.Join(lines, "\n"), nil
		},
	}
}

func grepFile(path, rel string, re *regexp.Regexp, out *[]string) (bool, error) {
	file, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer file.Close()

	found := false
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if strings.ContainsRune(line, 0) {
			return found, fmt.Errorf("binary file")
		}
		if re.MatchString(line) {
			*out = append(*out, fmt.Sprintf("%s:%d: %s", rel, lineNo, line))
			found = true
			if len(*out) >= maxSearchMatches {
				return found, nil
			}
		}
	}
	return found, scanner.Err()
}

func searchBase(ctx context.Context, opts Options, params map[string]interface{}) (root, base string, err error) {
	root, err = resolveWorkspaceRoot(ctx, opts)
	if err != nil {
		return "", "", err
	}
	base = root
	if raw, ok := params["dir"].(string); ok && strings.TrimSpace(raw) != "" {
		base, err = resolvePathInWorkspace(root, raw)
		if err != nil {
			return "", "", err
		}
	}
	return root, base, nil
}

func walkWorkspace(base string, fn func(path string, d fs.DirEntry) error) error {
	depth := strings.Count(filepath.Clean(base), string(filepath.Separator))
	return filepath.WalkDir(base, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // permission errors skip, not abort
		}
		if d.IsDir() {
			if skippedDirs[d.Name()] && path != base {
				return fs.SkipDir
			}
			if strings.Count(path, string(filepath.Separator))-depth > maxSearchDepth {
				return fs.SkipDir
			}
		}
		return fn(path, d)
	})
}
