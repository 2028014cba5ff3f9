package shell

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/aescanero/dagrun/pkg/domain"
)

var errNoBlobStore = errors.New("no blob store configured")

func (e *Executor) upload(ctx context.Context, ws, runID string, ref *domain.ArtifactRef, sc *stepContext, log *bytes.Buffer) error {
	if e.blobs == nil {
		return errNoBlobStore
	}
	name, local, err := e.resolve(ws, ref, sc)
	if err != nil {
		return err
	}

	data, err := os.ReadFile(local)
	if err != nil {
		return fmt.Errorf("read artifact %s: %w", name, err)
	}
	if err := e.blobs.Put(ctx, domain.ArtifactKey(runID, name), data); err != nil {
		return fmt.Errorf("upload artifact %s: %w", name, err)
	}
	fmt.Fprintf(log, "uploaded artifact %s (%d bytes)\n", name, len(data))
	return nil
}

func (e *Executor) download(ctx context.Context, ws, runID string, ref *domain.ArtifactRef, sc *stepContext, log *bytes.Buffer) error {
	if e.blobs == nil {
		return errNoBlobStore
	}
	name, local, err := e.resolve(ws, ref, sc)
	if err != nil {
		return err
	}

	data, err := e.blobs.Get(ctx, domain.ArtifactKey(runID, name))
	if err != nil {
		return fmt.Errorf("download artifact %s: %w", name, err)
	}
	if err := os.MkdirAll(filepath.Dir(local), 0o755); err != nil {
		return fmt.Errorf("download artifact %s: %w", name, err)
	}
	if err := os.WriteFile(local, data, 0o644); err != nil {
		return fmt.Errorf("write artifact %s: %w", name, err)
	}
	fmt.Fprintf(log, "downloaded artifact %s (%d bytes)\n", name, len(data))
	return nil
}

// resolve renders the artifact name and path and keeps the path inside the
// workspace.
func (e *Executor) resolve(ws string, ref *domain.ArtifactRef, sc *stepContext) (string, string, error) {
	name, err := e.render(ref.Name, sc)
	if err != nil {
		return "", "", fmt.Errorf("interpolate artifact name: %w", err)
	}
	p, err := e.render(ref.Path, sc)
	if err != nil {
		return "", "", fmt.Errorf("interpolate artifact path: %w", err)
	}
	if name == "" {
		return "", "", fmt.Errorf("artifact name is empty")
	}
	if p == "" {
		p = name
	}

	local := filepath.Join(ws, p)
	rel, err := filepath.Rel(ws, local)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", "", fmt.Errorf("artifact path %q escapes the workspace", p)
	}
	return name, local, nil
}
