// Package inventory scans a directory of DICOM instances and groups
// them into series descriptors for matching.
package inventory

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"

	"github.com/Project-Laminate/flairstar/internal/domain"
	"github.com/Project-Laminate/flairstar/internal/logger"
)

// defaultTags are always extracted for every series; the active
// patterns add their own referenced tags on top.
var defaultTags = []string{
	"SeriesDescription",
	"Modality",
	"SeriesNumber",
	"ProtocolName",
	"SeriesDate",
	"SeriesTime",
	"StudyDate",
	"StudyTime",
	"AcquisitionDate",
	"AcquisitionTime",
}

// Scan walks dir, parses every readable DICOM instance (pixel data
// skipped), groups instances by SeriesInstanceUID and extracts the
// attribute set named by extraTags plus the standard set from a
// representative instance per series. Files that do not parse as DICOM
// are skipped. An unknown tag keyword in extraTags is ErrRule.
func Scan(ctx context.Context, dir string, extraTags []string) ([]domain.SeriesDescriptor, error) {
	wanted, err := resolveTags(extraTags)
	if err != nil {
		return nil, err
	}

	log := logger.With("dir", dir)

	type instance struct {
		path   string
		number int
	}
	files := make(map[string][]instance)
	attrs := make(map[string]map[string]string)
	var order []string

	walkErr := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		ds, err := dicom.ParseFile(path, nil, dicom.SkipPixelData())
		if err != nil {
			log.Debug("skipping non-DICOM file", "path", path, "error", err)
			return nil
		}

		uid := stringValue(&ds, tag.SeriesInstanceUID)
		if uid == "" {
			log.Debug("skipping instance without SeriesInstanceUID", "path", path)
			return nil
		}

		if _, seen := attrs[uid]; !seen {
			order = append(order, uid)
			attrs[uid] = extract(&ds, wanted)
			attrs[uid]["SeriesInstanceUID"] = uid
		}
		files[uid] = append(files[uid], instance{path: path, number: instanceNumber(&ds)})
		return nil
	})
	if walkErr != nil {
		return nil, fmt.Errorf("scanning %s: %w", dir, walkErr)
	}

	if len(order) == 0 {
		return nil, fmt.Errorf("%w: %s", domain.ErrNoSeries, dir)
	}

	series := make([]domain.SeriesDescriptor, 0, len(order))
	for _, uid := range order {
		instances := files[uid]
		sort.Slice(instances, func(i, j int) bool {
			if instances[i].number != instances[j].number {
				return instances[i].number < instances[j].number
			}
			return instances[i].path < instances[j].path
		})
		paths := make([]string, len(instances))
		for i, inst := range instances {
			paths[i] = inst.path
		}
		series = append(series, domain.SeriesDescriptor{
			SeriesInstanceUID: uid,
			Attributes:        attrs[uid],
			FilePaths:         paths,
		})
		log.Info("found series",
			"uid", uid,
			"files", len(paths),
			"attributes", logger.RedactAttributes(attrs[uid]),
		)
	}
	return series, nil
}

// resolveTags validates the requested keywords against the DICOM
// dictionary and returns the union with the standard set.
func resolveTags(extra []string) (map[string]tag.Tag, error) {
	wanted := make(map[string]tag.Tag)
	for _, keyword := range defaultTags {
		info, err := tag.FindByName(keyword)
		if err != nil {
			return nil, fmt.Errorf("unknown standard tag %q: %w", keyword, err)
		}
		wanted[keyword] = info.Tag
	}
	for _, keyword := range extra {
		if keyword == "SeriesInstanceUID" {
			continue // always present on the descriptor
		}
		if _, ok := wanted[keyword]; ok {
			continue
		}
		info, err := tag.FindByName(keyword)
		if err != nil {
			return nil, fmt.Errorf("%w: unknown DICOM tag keyword %q", domain.ErrRule, keyword)
		}
		wanted[keyword] = info.Tag
	}
	return wanted, nil
}

func extract(ds *dicom.Dataset, wanted map[string]tag.Tag) map[string]string {
	out := make(map[string]string, len(wanted))
	for keyword, t := range wanted {
		if v := stringValue(ds, t); v != "" {
			out[keyword] = v
		}
	}
	return out
}

// stringValue renders an element's value in the string form the rule
// engine compares against. Multi-valued attributes join with the DICOM
// backslash separator.
func stringValue(ds *dicom.Dataset, t tag.Tag) string {
	el, err := ds.FindElementByTag(t)
	if err != nil || el == nil {
		return ""
	}
	switch v := el.Value.GetValue().(type) {
	case []string:
		return strings.TrimSpace(strings.Join(v, "\\"))
	case []int:
		parts := make([]string, len(v))
		for i, n := range v {
			parts[i] = strconv.Itoa(n)
		}
		return strings.Join(parts, "\\")
	case []float64:
		parts := make([]string, len(v))
		for i, n := range v {
			parts[i] = strconv.FormatFloat(n, 'f', -1, 64)
		}
		return strings.Join(parts, "\\")
	case string:
		return strings.TrimSpace(v)
	default:
		return ""
	}
}

func instanceNumber(ds *dicom.Dataset) int {
	raw := stringValue(ds, tag.InstanceNumber)
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0
	}
	return n
}
