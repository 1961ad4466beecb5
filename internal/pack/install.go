package pack

import (
	"archive/tar"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/api/types/strslice"
	"github.com/docker/docker/errdefs"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/google/uuid"

	"github.com/fnpack/fnpack/internal/deploy"
)

// InstallStrategy selects how the package directory is exposed to the
// dependency build container.
type InstallStrategy string

const (
	// InstallStrategyMount bind-mounts the package directory into the
	// container.
	InstallStrategyMount InstallStrategy = "mount"
	// InstallStrategyArchiveCopy copies the package directory in and out of
	// the container as tar archives. It works when the Docker daemon can't
	// bind-mount the package directory, like inside CI sandboxes.
	InstallStrategyArchiveCopy InstallStrategy = "archive-copy"
)

var installStrategies = map[InstallStrategy]struct{}{
	InstallStrategyMount:       {},
	InstallStrategyArchiveCopy: {},
}

// InstallStrategyFromString converts a string to an InstallStrategy and checks
// if it is a known strategy. It returns the InstallStrategy and a boolean
// indicating whether the strategy is known.
func InstallStrategyFromString(s string) (strategy InstallStrategy, known bool) {
	strategy = InstallStrategy(s)
	_, known = installStrategies[strategy]
	return strategy, known
}

// ContainerError is returned when the dependency build container can't be
// prepared or run. It carries the image and mount configuration because
// daemon setups commonly fail on one of them.
type ContainerError struct {
	Image  string
	Mounts []string
	Err    error
}

func (e *ContainerError) Error() string {
	if len(e.Mounts) == 0 {
		return fmt.Sprintf("container %s: %v", e.Image, e.Err)
	}
	return fmt.Sprintf("container %s (mounts %s): %v", e.Image, strings.Join(e.Mounts, ", "), e.Err)
}

func (e *ContainerError) Unwrap() error {
	return e.Err
}

// containerPackageDir is where build containers expect the package directory.
const containerPackageDir = "/mnt/function"

// installDependencies runs the deployment's build image over the assembled
// package directory to install its dependencies. It does nothing when the
// deployment has no build image for the language or when the package has
// no dependency manifest.
func (b *Builder) installDependencies(ctx context.Context, p *Package, langCfg *deploy.LanguageConfig, dir string) error {
	if !langCfg.HasImage("build") {
		slog.Info("no build image for deployment, skipping dependencies",
			"deployment", p.Deployment, "language", p.Language)
		return nil
	}
	if !fileExists(filepath.Join(dir, p.Language.DependencyFile())) {
		return nil
	}

	ref := b.Deploy.BuildImage(p.Deployment, p.Language, p.LanguageVersion)
	if err := b.ensureImage(ctx, ref); err != nil {
		return err
	}

	var out string
	var err error
	switch b.Strategy {
	case InstallStrategyArchiveCopy:
		out, err = b.installArchiveCopy(ctx, p, dir, ref)
	default:
		out, err = b.installMount(ctx, p, dir, ref)
	}
	if err != nil {
		return err
	}

	// Installers print package size lines that help debug deployment
	// package size limits.
	for _, line := range strings.Split(out, "\n") {
		if strings.Contains(line, "size") {
			slog.Info("install output", "line", strings.TrimSpace(line))
		}
	}

	return nil
}

// ensureImage checks that the build image exists locally and pulls it once
// if it doesn't. A failed pull is fatal.
func (b *Builder) ensureImage(ctx context.Context, ref string) error {
	_, _, err := b.Docker.ImageInspectWithRaw(ctx, ref)
	if err == nil {
		return nil
	}
	if !errdefs.IsNotFound(err) {
		return &ContainerError{Image: ref, Err: err}
	}

	slog.Info("pulling build image", "image", ref)
	pull, err := b.Docker.ImagePull(ctx, ref, image.PullOptions{})
	if err != nil {
		return &ContainerError{Image: ref, Err: err}
	}
	defer func() {
		_ = pull.Close()
	}()
	if _, err = io.Copy(io.Discard, pull); err != nil {
		return &ContainerError{Image: ref, Err: err}
	}

	return nil
}

func (b *Builder) installMount(ctx context.Context, p *Package, dir, ref string) (string, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("install dependencies: %w", err)
	}

	mounts := []mount.Mount{{
		Type:   mount.TypeBind,
		Source: absDir,
		Target: containerPackageDir,
	}}
	if script := filepath.Join(p.LanguageDir(), "package.sh"); fileExists(script) {
		absScript, err := filepath.Abs(script)
		if err != nil {
			return "", fmt.Errorf("install dependencies: %w", err)
		}
		mounts = append(mounts, mount.Mount{
			Type:     mount.TypeBind,
			Source:   absScript,
			Target:   path.Join(containerPackageDir, "package.sh"),
			ReadOnly: true,
		})
	}
	containerErr := func(err error) error {
		return &ContainerError{Image: ref, Mounts: describeMounts(mounts), Err: err}
	}

	createResp, err := b.Docker.ContainerCreate(
		ctx,
		&container.Config{
			Image:        ref,
			Env:          []string{"APP=" + p.Benchmark},
			User:         strconv.Itoa(os.Getuid()),
			AttachStdout: true,
			AttachStderr: true,
		},
		&container.HostConfig{
			AutoRemove: true,
			Mounts:     mounts,
		},
		nil,
		nil,
		"fnpack-build-"+uuid.NewString(),
	)
	if err != nil {
		return "", containerErr(err)
	}

	// With AutoRemove the wait must be registered before the start,
	// otherwise the removal can win the race.
	waitRespCh, waitErrCh := b.Docker.ContainerWait(ctx, createResp.ID, container.WaitConditionRemoved)

	conn, err := b.Docker.ContainerAttach(ctx, createResp.ID, container.AttachOptions{
		Stream: true,
		Stdout: true,
		Stderr: true,
	})
	if err != nil {
		return "", containerErr(err)
	}
	defer conn.Close()

	err = b.Docker.ContainerStart(ctx, createResp.ID, container.StartOptions{})
	if err != nil {
		return "", containerErr(err)
	}

	var out bytes.Buffer
	if _, err = stdcopy.StdCopy(&out, &out, conn.Reader); err != nil {
		return "", containerErr(err)
	}

	var waitResp container.WaitResponse
	select {
	case err = <-waitErrCh:
		if err != nil {
			return "", containerErr(err)
		}
	case waitResp = <-waitRespCh:
	case <-ctx.Done():
		return "", containerErr(ctx.Err())
	}
	if waitResp.Error != nil {
		return "", containerErr(errors.New(waitResp.Error.Message))
	}
	if code := int(waitResp.StatusCode); code != 0 {
		return out.String(), &ScriptError{Script: "install", ExitCode: code, Output: out.String()}
	}

	return out.String(), nil
}

func (b *Builder) installArchiveCopy(ctx context.Context, p *Package, dir, ref string) (string, error) {
	createResp, err := b.Docker.ContainerCreate(
		ctx,
		&container.Config{
			Image:      ref,
			Entrypoint: strslice.StrSlice{},
			Cmd:        strslice.StrSlice{"/bin/bash"},
			Tty:        true,
			Env:        []string{"APP=" + p.Benchmark},
			User:       strconv.Itoa(os.Getuid()),
		},
		&container.HostConfig{},
		nil,
		nil,
		"fnpack-build-"+uuid.NewString(),
	)
	if err != nil {
		return "", &ContainerError{Image: ref, Err: err}
	}
	defer func() {
		removeErr := b.Docker.ContainerRemove(ctx, createResp.ID, container.RemoveOptions{Force: true})
		if removeErr != nil {
			slog.Error("didn't remove container", "id", createResp.ID, "error", removeErr)
		}
	}()

	err = b.Docker.ContainerStart(ctx, createResp.ID, container.StartOptions{})
	if err != nil {
		return "", &ContainerError{Image: ref, Err: err}
	}

	// Upload the package directory as /mnt/function.
	var tarBuf bytes.Buffer
	if err = tarDirectory(&tarBuf, dir, path.Base(containerPackageDir)); err != nil {
		return "", fmt.Errorf("install dependencies: %w", err)
	}
	err = b.Docker.CopyToContainer(ctx, createResp.ID, path.Dir(containerPackageDir), &tarBuf, container.CopyToContainerOptions{})
	if err != nil {
		return "", &ContainerError{Image: ref, Err: err}
	}

	execResp, err := b.Docker.ContainerExecCreate(ctx, createResp.ID, container.ExecOptions{
		Cmd:          strslice.StrSlice{"/bin/bash", "installer.sh"},
		WorkingDir:   containerPackageDir,
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		return "", &ContainerError{Image: ref, Err: err}
	}
	execConn, err := b.Docker.ContainerExecAttach(ctx, execResp.ID, container.ExecStartOptions{})
	if err != nil {
		return "", &ContainerError{Image: ref, Err: err}
	}
	defer execConn.Close()

	var out bytes.Buffer
	if _, err = stdcopy.StdCopy(&out, &out, execConn.Reader); err != nil {
		return "", &ContainerError{Image: ref, Err: err}
	}

	execInspect, err := b.Docker.ContainerExecInspect(ctx, execResp.ID)
	if err != nil {
		return "", &ContainerError{Image: ref, Err: err}
	}
	if execInspect.ExitCode != 0 {
		return out.String(), &ScriptError{Script: "installer.sh", ExitCode: execInspect.ExitCode, Output: out.String()}
	}

	// Download the installed package and replace the directory's contents.
	// The daemon packs the directory itself, so entries come back under a
	// top-level function/ prefix that must be stripped.
	reader, _, err := b.Docker.CopyFromContainer(ctx, createResp.ID, containerPackageDir)
	if err != nil {
		return "", &ContainerError{Image: ref, Err: err}
	}
	defer func() {
		_ = reader.Close()
	}()
	if err = untarInto(reader, dir, path.Base(containerPackageDir)); err != nil {
		return "", fmt.Errorf("install dependencies: %w", err)
	}

	return out.String(), nil
}

func describeMounts(mounts []mount.Mount) []string {
	descs := make([]string, 0, len(mounts))
	for _, m := range mounts {
		desc := m.Source + ":" + m.Target
		if m.ReadOnly {
			desc += ":ro"
		}
		descs = append(descs, desc)
	}
	return descs
}

// tarDirectory writes dir as a tar archive with its files under the
// top-level directory prefix.
func tarDirectory(w io.Writer, dir, prefix string) error {
	tw := tar.NewWriter(w)
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		name := path.Join(prefix, filepath.ToSlash(rel))

		if d.IsDir() {
			return tw.WriteHeader(&tar.Header{
				Typeflag: tar.TypeDir,
				Name:     name + "/",
				Mode:     0o777,
			})
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		err = tw.WriteHeader(&tar.Header{
			Typeflag: tar.TypeReg,
			Name:     name,
			Mode:     int64(info.Mode().Perm()),
			Size:     info.Size(),
		})
		if err != nil {
			return err
		}

		f, err := os.Open(p)
		if err != nil {
			return err
		}
		_, err = io.Copy(tw, f)
		if closeErr := f.Close(); err == nil {
			err = closeErr
		}
		return err
	})
	if err != nil {
		return err
	}
	return tw.Close()
}

// untarInto extracts a tar stream into dir, stripping the top-level
// directory prefix.
func untarInto(r io.Reader, dir, prefix string) error {
	tr := tar.NewReader(r)
	for {
		header, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}

		name := strings.TrimPrefix(path.Clean(header.Name), prefix)
		name = strings.TrimPrefix(name, "/")
		if name == "" || name == "." || !filepath.IsLocal(name) {
			continue
		}
		target := filepath.Join(dir, filepath.FromSlash(name))

		switch header.Typeflag {
		case tar.TypeDir:
			if err = os.MkdirAll(target, 0o777); err != nil {
				return err
			}
		case tar.TypeReg:
			if err = os.MkdirAll(filepath.Dir(target), 0o777); err != nil {
				return err
			}
			f, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, os.FileMode(header.Mode).Perm())
			if err != nil {
				return err
			}
			_, err = io.Copy(f, tr)
			if closeErr := f.Close(); err == nil {
				err = closeErr
			}
			if err != nil {
				return err
			}
		}
	}
	return nil
}
