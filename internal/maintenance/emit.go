package maintenance

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/citizenbirds/birdlist/internal/errors"
	"github.com/citizenbirds/birdlist/internal/logger"
)

// File names written to Options.OutputDir. The table files use the same
// formats crosswalk.Load reads.
const (
	ForwardFile   = "forward.json"
	WikidataFile  = "wikidata.json"
	OverridesFile = "overrides.yaml"
)

// ReportFile returns the report file name of mode.
func ReportFile(mode Mode) string {
	return "report-" + string(mode) + ".json"
}

// emit writes a proposal that differs from the loaded table and notifies
// about it and about species needing curation.
func (s *Syncer) emit(ctx context.Context, r *Report) error {
	if r.Diff.Empty() && len(r.Unresolved) == 0 {
		return nil
	}

	if s.opts.OutputDir != "" && !r.Diff.Empty() {
		if err := WriteProposal(s.opts.OutputDir, r); err != nil {
			return err
		}
		s.log.Info("proposed crosswalk written for review",
			logger.String("mode", string(r.Mode)),
			logger.String("dir", s.opts.OutputDir))
	}

	if s.opts.Notifier == nil {
		return nil
	}
	if err := s.opts.Notifier.Notify(ctx, "crosswalk audit "+string(r.Mode), Summary(r)); err != nil {
		// the proposal is on disk; delivery is best effort
		s.log.Warn("failed to send audit notification",
			logger.String("mode", string(r.Mode)),
			logger.Error(err))
	}
	return nil
}

// WriteProposal writes the report and the full proposed table to dir.
func WriteProposal(dir string, r *Report) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fileError(err, dir)
	}

	writers := []struct {
		name  string
		write func(io.Writer) error
	}{
		{ForwardFile, r.Table.WriteForward},
		{WikidataFile, r.Table.WriteWikidata},
		{OverridesFile, r.Table.WriteOverrides},
		{ReportFile(r.Mode), func(w io.Writer) error {
			enc := json.NewEncoder(w)
			enc.SetIndent("", "  ")
			return enc.Encode(r)
		}},
	}
	for _, f := range writers {
		if err := writeFile(filepath.Join(dir, f.name), f.write); err != nil {
			return err
		}
	}
	return nil
}

// writeFile replaces path atomically so a reader never sees a partial table.
func writeFile(path string, write func(io.Writer) error) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fileError(err, path)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if err := write(tmp); err != nil {
		_ = tmp.Close()
		return fileError(err, path)
	}
	if err := tmp.Close(); err != nil {
		return fileError(err, path)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fileError(err, path)
	}
	return nil
}

func fileError(err error, path string) error {
	return errors.New(err).
		Component(componentName).
		Category(errors.CategoryFileIO).
		Context("path", path).
		Build()
}

// Summary renders a short plain-text description of r.
func Summary(r *Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: checked %d species, %d added, %d changed, %d need curation",
		r.Mode, r.Checked, len(r.Diff.Added), len(r.Diff.Changed), len(r.Unresolved))
	const maxListed = 10
	for i, u := range r.Unresolved {
		if i == maxListed {
			fmt.Fprintf(&b, "\n... and %d more", len(r.Unresolved)-maxListed)
			break
		}
		fmt.Fprintf(&b, "\n- %s (%d): %s", u.ScientificName, u.TaxonID, u.Reason)
	}
	return b.String()
}
