package models

// BrokenLink is a resource with one or more link targets that do not resolve.
type BrokenLink struct {
	Source  string   `json:"source"`
	Targets []string `json:"targets"`
}

// LinkCheckResult is produced by the link-check stage of a project publish and
// consumed by the publish stage.
type LinkCheckResult struct {
	ProjectID    string       `json:"project_id"`
	FilesChecked int          `json:"files_checked"`
	LinksChecked int          `json:"links_checked"`
	Broken       []BrokenLink `json:"broken,omitempty"`
}

// HasBrokenLinks reports whether any broken link was found
func (r LinkCheckResult) HasBrokenLinks() bool {
	return len(r.Broken) > 0
}

// BrokenCount returns the number of broken link targets
func (r LinkCheckResult) BrokenCount() int {
	n := 0
	for _, b := range r.Broken {
		n += len(b.Targets)
	}
	return n
}

// PublishResult summarises a project publish
type PublishResult struct {
	ProjectID      string `json:"project_id"`
	FilesPublished int    `json:"files_published"`
	BrokenLinks    int    `json:"broken_links"` // Carried over from the link check
}

// ExportResult summarises a module export
type ExportResult struct {
	Module  string `json:"module"`
	Archive string `json:"archive"`
	Files   int    `json:"files"`
	Bytes   int64  `json:"bytes"`
}

// DeleteResult summarises a module delete
type DeleteResult struct {
	Module       string `json:"module"`
	FilesDeleted int    `json:"files_deleted"`
}
