package pack

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"

	"github.com/fnpack/fnpack/internal/bench"
)

var ErrWrapperMissing = errors.New("wrapper file missing")

// ScriptError is returned when a benchmark setup or dependency install
// script exits with a non-zero code.
type ScriptError struct {
	Script   string
	ExitCode int
	Output   string
}

func (e *ScriptError) Error() string {
	return fmt.Sprintf("%s exit code is %d", e.Script, e.ExitCode)
}

// copyCode copies the benchmark's source files for the language into dir:
// the language and support files from langDir plus the workflow definition
// from benchmarkDir when present.
func copyCode(langDir, benchmarkDir, dir string, language bench.Language) error {
	files, err := selectFiles(langDir, language)
	if err != nil {
		return fmt.Errorf("copy code: %w", err)
	}
	for _, file := range files {
		if err = copyFile(file, filepath.Join(dir, filepath.Base(file))); err != nil {
			return fmt.Errorf("copy code: %w", err)
		}
	}

	definition := filepath.Join(benchmarkDir, "definition.json")
	if fileExists(definition) {
		if err = copyFile(definition, filepath.Join(dir, "definition.json")); err != nil {
			return fmt.Errorf("copy code: %w", err)
		}
	}

	return nil
}

func copyFile(src, dst string) error {
	openSrc, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() {
		_ = openSrc.Close()
	}()

	info, err := openSrc.Stat()
	if err != nil {
		return err
	}

	openDst, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	_, err = io.Copy(openDst, openSrc)
	if closeErr := openDst.Close(); err == nil {
		err = closeErr
	}
	return err
}

// runSetupScripts runs the benchmark's init.sh with the package directory
// as its first argument. The second argument disables verbose mode.
// The script can live at the benchmark root, the language directory, or
// both; missing scripts are fine.
func runSetupScripts(ctx context.Context, benchmarkDir, langDir, dir string) error {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("run setup script: %w", err)
	}

	for _, scriptDir := range []string{benchmarkDir, langDir} {
		script := filepath.Join(scriptDir, "init.sh")
		if !fileExists(script) {
			continue
		}

		var out bytes.Buffer
		cmd := exec.CommandContext(ctx, "/bin/bash", script, absDir, "false")
		cmd.Dir = scriptDir
		cmd.Stdout = &out
		cmd.Stderr = &out
		if err = cmd.Run(); err != nil {
			if exitErr := (*exec.ExitError)(nil); errors.As(err, &exitErr) {
				return &ScriptError{Script: script, ExitCode: exitErr.ExitCode(), Output: out.String()}
			}
			return fmt.Errorf("run setup script: %w", err)
		}
		slog.Debug("ran setup script", "script", script, "output", out.String())
	}

	return nil
}

// installWrappers copies the deployment's wrapper files into dir and keeps
// exactly one handler variant: the handler_function or handler_workflow file
// matching the package becomes the canonical handler file and the other
// variant is removed.
func installWrappers(wrapperDir, dir string, language bench.Language, workflow bool, wrapperFiles []string) error {
	for _, name := range wrapperFiles {
		src := filepath.Join(wrapperDir, name)
		if err := copyFile(src, filepath.Join(dir, name)); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("install wrappers: %q: %w", src, ErrWrapperMissing)
			}
			return fmt.Errorf("install wrappers: %w", err)
		}
	}

	ext := language.Extension()
	keep, drop := "handler_function"+ext, "handler_workflow"+ext
	if workflow {
		keep, drop = drop, keep
	}
	if keepPath := filepath.Join(dir, keep); fileExists(keepPath) {
		if err := os.Rename(keepPath, filepath.Join(dir, "handler"+ext)); err != nil {
			return fmt.Errorf("install wrappers: %w", err)
		}
	}
	if dropPath := filepath.Join(dir, drop); fileExists(dropPath) {
		if err := os.Remove(dropPath); err != nil {
			return fmt.Errorf("install wrappers: %w", err)
		}
	}

	return nil
}

// mergeDependencies merges the deployment's packages into the package's
// dependency manifest, with the deployment's version winning. With no
// packages it leaves dir untouched.
func mergeDependencies(dir string, language bench.Language, packages map[string]string) error {
	if len(packages) == 0 {
		return nil
	}

	manifest := filepath.Join(dir, language.DependencyFile())
	switch language {
	case bench.LanguagePython:
		return mergeRequirements(manifest, packages)
	case bench.LanguageNodeJS:
		return mergePackageJSON(manifest, packages)
	default:
		return fmt.Errorf("merge dependencies: unknown language %q", language)
	}
}

func mergeRequirements(name string, packages map[string]string) error {
	data, err := os.ReadFile(name)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("merge dependencies: %w", err)
	}

	var buf bytes.Buffer
	if len(data) > 0 && data[len(data)-1] != '\n' {
		buf.WriteByte('\n')
	}
	for _, pkg := range sortedKeys(packages) {
		line := pkg
		if version := packages[pkg]; version != "" {
			line += "==" + version
		}
		buf.WriteString(line + "\n")
	}

	f, err := os.OpenFile(name, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o666)
	if err != nil {
		return fmt.Errorf("merge dependencies: %w", err)
	}
	_, err = f.Write(buf.Bytes())
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return fmt.Errorf("merge dependencies: %w", err)
	}
	return nil
}

func mergePackageJSON(name string, packages map[string]string) error {
	manifest := make(map[string]any)
	data, err := os.ReadFile(name)
	if err == nil {
		if err = json.Unmarshal(data, &manifest); err != nil {
			return fmt.Errorf("merge dependencies: %w", err)
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("merge dependencies: %w", err)
	}

	dependencies, _ := manifest["dependencies"].(map[string]any)
	if dependencies == nil {
		dependencies = make(map[string]any)
	}
	for pkg, version := range packages {
		if version == "" {
			version = "*"
		}
		dependencies[pkg] = version
	}
	manifest["dependencies"] = dependencies

	out, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return fmt.Errorf("merge dependencies: %w", err)
	}
	if err = os.WriteFile(name, append(out, '\n'), 0o666); err != nil {
		return fmt.Errorf("merge dependencies: %w", err)
	}
	return nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
