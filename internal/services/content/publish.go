package content

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/ternarybob/vigil/internal/interfaces"
	"github.com/ternarybob/vigil/internal/models"
)

// PublishProject copies projects/<projectID> into online/<projectID>,
// replacing any earlier publish. links is the result of the preceding link
// check and may be nil.
func (r *FileRepository) PublishProject(ctx context.Context, projectID string, links *models.LinkCheckResult, report interfaces.Reporter) (*models.PublishResult, error) {
	dir, err := r.projectPath(projectID)
	if err != nil {
		return nil, err
	}

	files, err := walkFiles(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list project %s: %w", projectID, err)
	}

	report.PrintFormatted(models.FormatHeadline, "publishing")

	broken := 0
	if links != nil {
		broken = links.BrokenCount()
	}
	if broken > 0 {
		report.PrintFormatted(models.FormatWarning, fmt.Sprintf("publishing with %d broken links", broken))
	}

	target := filepath.Join(r.root, onlineDir, projectID)
	staging := target + ".staging"
	if err := os.RemoveAll(staging); err != nil {
		return nil, fmt.Errorf("failed to clear staging directory: %w", err)
	}

	for _, rel := range files {
		if err := ctx.Err(); err != nil {
			_ = os.RemoveAll(staging)
			return nil, err
		}
		report.Print("publishing " + rel)
		if err := copyFile(filepath.Join(dir, filepath.FromSlash(rel)), filepath.Join(staging, filepath.FromSlash(rel))); err != nil {
			_ = os.RemoveAll(staging)
			return nil, fmt.Errorf("failed to publish %s: %w", rel, err)
		}
	}

	// Swap the staged copy in so readers never see a half-published project
	if err := os.MkdirAll(staging, 0755); err != nil {
		return nil, fmt.Errorf("failed to create staging directory: %w", err)
	}
	if err := os.RemoveAll(target); err != nil {
		_ = os.RemoveAll(staging)
		return nil, fmt.Errorf("failed to remove previous publish: %w", err)
	}
	if err := os.Rename(staging, target); err != nil {
		_ = os.RemoveAll(staging)
		return nil, fmt.Errorf("failed to activate publish: %w", err)
	}

	report.PrintFormatted(models.FormatOK, fmt.Sprintf("Project %s published (%d files)", projectID, len(files)))

	r.logger.Info().
		Str("project_id", projectID).
		Int("files", len(files)).
		Int("broken_links", broken).
		Msg("Project published")

	return &models.PublishResult{
		ProjectID:      projectID,
		FilesPublished: len(files),
		BrokenLinks:    broken,
	}, nil
}

func copyFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
