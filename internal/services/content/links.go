package content

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/vigil/internal/interfaces"
	"github.com/ternarybob/vigil/internal/models"
)

// linkAttrs are the element/attribute pairs that reference other resources
var linkAttrs = []struct {
	selector string
	attr     string
}{
	{"a[href]", "href"},
	{"link[href]", "href"},
	{"img[src]", "src"},
	{"script[src]", "src"},
	{"iframe[src]", "src"},
}

// LinkChecker finds internal link targets in HTML pages that do not resolve
// to a file. External links are ignored.
type LinkChecker struct {
	logger arbor.ILogger
}

// NewLinkChecker creates a link checker
func NewLinkChecker(logger arbor.ILogger) *LinkChecker {
	return &LinkChecker{
		logger: logger,
	}
}

// ExtractTargets returns the internal link targets of one page, resolved to
// slash-separated paths relative to the site root. page is the page's own
// relative path.
func (c *LinkChecker) ExtractTargets(html io.Reader, page string) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(html)
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML %s: %w", page, err)
	}

	seen := make(map[string]bool)
	var targets []string
	for _, la := range linkAttrs {
		doc.Find(la.selector).Each(func(i int, s *goquery.Selection) {
			raw, _ := s.Attr(la.attr)
			target, ok := resolveInternal(raw, page)
			if !ok || seen[target] {
				return
			}
			seen[target] = true
			targets = append(targets, target)
		})
	}
	return targets, nil
}

// resolveInternal maps a link to a site-relative path. ok is false for
// external, fragment-only and scripted links.
func resolveInternal(raw, page string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.HasPrefix(raw, "#") || strings.HasPrefix(raw, "//") {
		return "", false
	}

	u, err := url.Parse(raw)
	if err != nil || u.Scheme != "" || u.Host != "" {
		return "", false
	}
	if u.Path == "" {
		return "", false
	}

	var resolved string
	if strings.HasPrefix(u.Path, "/") {
		resolved = path.Clean(u.Path)
	} else {
		resolved = path.Join("/", path.Dir(page), u.Path)
	}
	resolved = strings.TrimPrefix(resolved, "/")
	if resolved == "" || resolved == "." {
		return "", false
	}
	return resolved, true
}

// CheckLinks parses every HTML page of projects/<projectID> and reports pages
// whose internal links point at missing files.
func (r *FileRepository) CheckLinks(ctx context.Context, projectID string, report interfaces.Reporter) (*models.LinkCheckResult, error) {
	dir, err := r.projectPath(projectID)
	if err != nil {
		return nil, err
	}

	files, err := walkFiles(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list project %s: %w", projectID, err)
	}

	report.PrintFormatted(models.FormatHeadline, "checking links")

	existing := make(map[string]bool, len(files))
	for _, f := range files {
		existing[f] = true
	}

	result := &models.LinkCheckResult{ProjectID: projectID}
	for _, rel := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !isHTML(rel) {
			continue
		}

		targets, err := r.pageTargets(dir, rel)
		if err != nil {
			report.Exception(err)
			continue
		}
		result.FilesChecked++
		result.LinksChecked += len(targets)

		var broken []string
		for _, target := range targets {
			if existing[target] || existing[path.Join(target, "index.html")] {
				continue
			}
			broken = append(broken, target)
		}
		if len(broken) > 0 {
			report.BrokenLink(rel, broken)
			result.Broken = append(result.Broken, models.BrokenLink{Source: rel, Targets: broken})
		}
	}

	if result.HasBrokenLinks() {
		report.PrintFormatted(models.FormatWarning, fmt.Sprintf("%d broken links in %d pages", result.BrokenCount(), len(result.Broken)))
	} else {
		report.PrintFormatted(models.FormatOK, fmt.Sprintf("%d pages checked, no broken links", result.FilesChecked))
	}

	r.logger.Debug().
		Str("project_id", projectID).
		Int("files_checked", result.FilesChecked).
		Int("links_checked", result.LinksChecked).
		Int("broken", result.BrokenCount()).
		Msg("Link check finished")

	return result, nil
}

func (r *FileRepository) pageTargets(dir, rel string) ([]string, error) {
	f, err := os.Open(filepath.Join(dir, filepath.FromSlash(rel)))
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return r.links.ExtractTargets(f, rel)
}

func isHTML(name string) bool {
	ext := strings.ToLower(path.Ext(name))
	return ext == ".html" || ext == ".htm"
}
