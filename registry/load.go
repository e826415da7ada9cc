package registry

import (
	"context"
	"fmt"

	"github.com/hashicorp/hcl/v2/hclparse"

	"github.com/vk/objectkit/ctxlog"
	"github.com/vk/objectkit/internal/fsutil"
	"github.com/vk/objectkit/manifest"
)

// LoadManifests discovers every .hcl manifest under dir (recursively),
// parses the type declarations, and registers them in file order. Types in
// later files may name types from earlier files as parents.
func (r *Registry) LoadManifests(ctx context.Context, dir string) error {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Registry loading type manifests...", "path", dir)

	filePaths, err := fsutil.FindFilesByExtension(dir, ".hcl")
	if err != nil {
		logger.Error("Failed to walk manifest directory", "path", dir, "error", err)
		return err
	}

	if len(filePaths) == 0 {
		logger.Warn("No .hcl manifest files found in path", "path", dir)
		return nil
	}

	parser := hclparse.NewParser()
	registered := 0

	for _, filePath := range filePaths {
		hclFile, diags := parser.ParseHCLFile(filePath)
		if diags.HasErrors() {
			return fmt.Errorf("failed to parse manifest file %s: %w", filePath, diags)
		}

		descs, err := manifest.Decode(hclFile.Body)
		if err != nil {
			return fmt.Errorf("failed to decode type declarations in %s: %w", filePath, err)
		}

		for _, desc := range descs {
			if _, err := r.Register(ctx, desc); err != nil {
				return fmt.Errorf("failed to register type %q from %s: %w", desc.Name, filePath, err)
			}
			registered++
		}
		logger.Debug("Successfully loaded type declarations from manifest", "file", filePath)
	}

	logger.Info("Type manifests loaded.", "types_registered", registered)
	return nil
}
