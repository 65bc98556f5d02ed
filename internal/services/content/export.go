package content

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/ternarybob/vigil/internal/interfaces"
	"github.com/ternarybob/vigil/internal/models"
)

// ExportModule writes every file of modules/<module> into exports/<module>.zip.
// A partial archive is removed when the export fails.
func (r *FileRepository) ExportModule(ctx context.Context, module string, report interfaces.Reporter) (*models.ExportResult, error) {
	dir, err := r.modulePath(module)
	if err != nil {
		return nil, err
	}

	files, err := walkFiles(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list module %s: %w", module, err)
	}

	report.PrintFormatted(models.FormatHeadline, fmt.Sprintf("Exporting module %s (%d files)", module, len(files)))

	outDir := filepath.Join(r.root, exportsDir)
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create export directory: %w", err)
	}
	archive := filepath.Join(outDir, module+".zip")

	if err := writeZip(ctx, archive, dir, files, report); err != nil {
		_ = os.Remove(archive)
		return nil, err
	}

	info, err := os.Stat(archive)
	if err != nil {
		return nil, fmt.Errorf("failed to stat archive: %w", err)
	}

	report.PrintFormatted(models.FormatOK, fmt.Sprintf("Export of %s finished: %s", module, filepath.Base(archive)))

	r.logger.Info().
		Str("module", module).
		Str("archive", archive).
		Int("files", len(files)).
		Int64("bytes", info.Size()).
		Msg("Module exported")

	return &models.ExportResult{
		Module:  module,
		Archive: archive,
		Files:   len(files),
		Bytes:   info.Size(),
	}, nil
}

func writeZip(ctx context.Context, archive, dir string, files []string, report interfaces.Reporter) (err error) {
	out, err := os.Create(archive)
	if err != nil {
		return fmt.Errorf("failed to create archive: %w", err)
	}
	defer func() {
		if cerr := out.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close archive: %w", cerr)
		}
	}()

	zw := zip.NewWriter(out)
	for _, rel := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		report.Print("exporting " + rel)
		if err := addZipEntry(zw, filepath.Join(dir, filepath.FromSlash(rel)), rel); err != nil {
			return fmt.Errorf("failed to export %s: %w", rel, err)
		}
	}
	return zw.Close()
}

func addZipEntry(zw *zip.Writer, path, name string) error {
	in, err := os.Open(path)
	if err != nil {
		return err
	}
	defer in.Close()

	w, err := zw.Create(name)
	if err != nil {
		return err
	}
	_, err = io.Copy(w, in)
	return err
}
