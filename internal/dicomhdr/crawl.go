package dicomhdr

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"

	"github.com/gobwas/glob"

	"scancore/pkg/domain"
)

// DefaultPattern matches the instance files a scanner console typically writes.
const DefaultPattern = "*.dcm"

// Study is the per-series view of a crawled study directory.
type Study struct {
	StudyUID     string
	SubjectLabel string
	SourcePath   string
	Series       []domain.SeriesAttributes
}

type seriesGroup struct {
	attrs domain.SeriesAttributes
	files int
}

// Crawl walks root, parses every file whose base name matches pattern
// (glob syntax, DefaultPattern when empty), and folds the instances into
// one attribute record per distinct series. Files that fail to parse
// abort the crawl; a study with unreadable instances should not be
// half-registered.
func Crawl(root, pattern string) (Study, error) {
	if pattern == "" {
		pattern = DefaultPattern
	}
	matcher, err := glob.Compile(pattern)
	if err != nil {
		return Study{}, fmt.Errorf("compile pattern %q: %w", pattern, err)
	}

	study := Study{SourcePath: root}
	groups := map[domain.SeriesKey]*seriesGroup{}
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !matcher.Match(d.Name()) {
			return nil
		}
		inst, err := ExtractFile(path)
		if err != nil {
			return err
		}
		if study.StudyUID == "" {
			study.StudyUID = inst.StudyUID
			study.SubjectLabel = inst.SubjectLabel
		} else if inst.StudyUID != study.StudyUID {
			return fmt.Errorf("%s: study %s does not match %s", path, inst.StudyUID, study.StudyUID)
		}
		key := inst.Series.Key()
		if g, ok := groups[key]; ok {
			g.files++
			return nil
		}
		groups[key] = &seriesGroup{attrs: inst.Series, files: 1}
		return nil
	})
	if err != nil {
		return Study{}, err
	}

	study.Series = make([]domain.SeriesAttributes, 0, len(groups))
	for _, g := range groups {
		// When the header does not carry an acquisition slice count, the
		// file count per series stands in for the z dimension.
		if g.attrs.ZSpace == "" {
			g.attrs.ZSpace = fmt.Sprintf("%d", g.files)
		}
		study.Series = append(study.Series, g.attrs)
	}
	sort.Slice(study.Series, func(i, j int) bool {
		if study.Series[i].SeriesNumber != study.Series[j].SeriesNumber {
			return study.Series[i].SeriesNumber < study.Series[j].SeriesNumber
		}
		return study.Series[i].SeriesUID < study.Series[j].SeriesUID
	})
	return study, nil
}
