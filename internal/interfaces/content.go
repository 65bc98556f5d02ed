package interfaces

import (
	"context"

	"github.com/ternarybob/vigil/internal/models"
)

// Reporter receives progress output from a long-running content operation.
// Implementations must be safe to call from the operation's goroutine only.
type Reporter interface {
	Print(text string)
	Printf(format string, args ...interface{})
	PrintFormatted(format models.ReportFormat, text string)
	Exception(err error)
	BrokenLink(source string, targets []string)
	HasBrokenLinks() bool
}

// ContentRepository is the boundary to the content store. Every method blocks
// until the operation finishes and is run on a background job goroutine.
type ContentRepository interface {
	ExportModule(ctx context.Context, module string, report Reporter) (*models.ExportResult, error)
	DeleteModule(ctx context.Context, module string, report Reporter) (*models.DeleteResult, error)
	CheckLinks(ctx context.Context, projectID string, report Reporter) (*models.LinkCheckResult, error)
	PublishProject(ctx context.Context, projectID string, links *models.LinkCheckResult, report Reporter) (*models.PublishResult, error)
}

// ContentCatalog lists the targets operations can run against
type ContentCatalog interface {
	ModuleNames() ([]string, error)
	ProjectIDs() ([]string, error)
}
