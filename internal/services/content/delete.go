package content

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ternarybob/vigil/internal/interfaces"
	"github.com/ternarybob/vigil/internal/models"
)

// DeleteModule removes modules/<module> file by file, then the directory.
// Files that cannot be removed are reported and the delete carries on.
func (r *FileRepository) DeleteModule(ctx context.Context, module string, report interfaces.Reporter) (*models.DeleteResult, error) {
	dir, err := r.modulePath(module)
	if err != nil {
		return nil, err
	}

	files, err := walkFiles(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list module %s: %w", module, err)
	}

	report.PrintFormatted(models.FormatHeadline, fmt.Sprintf("Deleting module %s (%d files)", module, len(files)))

	deleted := 0
	failed := 0
	for _, rel := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		report.Print("deleting " + rel)
		if err := os.Remove(filepath.Join(dir, filepath.FromSlash(rel))); err != nil {
			report.Exception(err)
			failed++
			continue
		}
		deleted++
	}

	if failed > 0 {
		return nil, fmt.Errorf("failed to delete %d of %d files in module %s", failed, len(files), module)
	}

	if err := os.RemoveAll(dir); err != nil {
		return nil, fmt.Errorf("failed to remove module directory %s: %w", module, err)
	}

	report.PrintFormatted(models.FormatOK, fmt.Sprintf("Module %s deleted", module))

	r.logger.Info().
		Str("module", module).
		Int("files", deleted).
		Msg("Module deleted")

	return &models.DeleteResult{
		Module:       module,
		FilesDeleted: deleted,
	}, nil
}
