package crosswalk

import (
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/citizenbirds/birdlist/internal/errors"
)

// OverridesVersion is the overrides document version this package writes.
const OverridesVersion = 1

// Override pins a secondary code to a taxon id when the inverse of the
// forward table would pick a different one or none at all.
type Override struct {
	Code    string `yaml:"code" json:"code"`
	TaxonID int    `yaml:"taxon_id" json:"taxonId"`
	Note    string `yaml:"note,omitempty" json:"note,omitempty"`
}

// Table is the static mapping data.
type Table struct {
	Forward   map[int]string `json:"forward"`
	Wikidata  map[int]string `json:"wikidata"`
	Overrides []Override     `json:"overrides,omitempty"`
}

type overridesDocument struct {
	Version   int        `yaml:"version"`
	Overrides []Override `yaml:"overrides"`
}

// Clone returns a deep copy of t.
func (t Table) Clone() Table {
	return Table{
		Forward:   cloneMap(t.Forward),
		Wikidata:  cloneMap(t.Wikidata),
		Overrides: slices.Clone(t.Overrides),
	}
}

func cloneMap(m map[int]string) map[int]string {
	out := make(map[int]string, len(m))
	maps.Copy(out, m)
	return out
}

// Load reads the forward and wikidata JSON tables and, when overridesPath
// is not empty, the YAML overrides document.
func Load(forwardPath, wikidataPath, overridesPath string) (Table, error) {
	var t Table
	var err error
	if t.Forward, err = readIDMap(forwardPath); err != nil {
		return Table{}, err
	}
	if t.Wikidata, err = readIDMap(wikidataPath); err != nil {
		return Table{}, err
	}
	if overridesPath != "" {
		if t.Overrides, err = readOverrides(overridesPath); err != nil {
			return Table{}, err
		}
	}
	return t, nil
}

func readIDMap(path string) (map[int]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.New(fmt.Errorf("failed to open mapping table: %w", err)).
			Component("crosswalk").
			Category(errors.CategoryFileIO).
			Context("path", path).
			Build()
	}
	defer func() { _ = f.Close() }()

	m, err := DecodeIDMap(f)
	if err != nil {
		return nil, errors.New(err).
			Component("crosswalk").
			Category(errors.CategoryFileParsing).
			Context("path", path).
			Build()
	}
	return m, nil
}

// DecodeIDMap decodes a JSON object of {"<taxonId>": "<id>"}.
func DecodeIDMap(r io.Reader) (map[int]string, error) {
	m := make(map[int]string)
	if err := json.NewDecoder(r).Decode(&m); err != nil {
		return nil, fmt.Errorf("failed to decode mapping table: %w", err)
	}
	return m, nil
}

func readOverrides(path string) ([]Override, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.New(fmt.Errorf("failed to read overrides: %w", err)).
			Component("crosswalk").
			Category(errors.CategoryFileIO).
			Context("path", path).
			Build()
	}
	var doc overridesDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, errors.New(fmt.Errorf("failed to parse overrides: %w", err)).
			Component("crosswalk").
			Category(errors.CategoryFileParsing).
			Context("path", path).
			Build()
	}
	if doc.Version > OverridesVersion {
		return nil, errors.Newf("overrides version %d is newer than supported version %d", doc.Version, OverridesVersion).
			Component("crosswalk").
			Category(errors.CategoryValidation).
			Context("path", path).
			Build()
	}
	return doc.Overrides, nil
}

// WriteForward writes the forward table as indented JSON.
func (t Table) WriteForward(w io.Writer) error {
	return writeIDMap(w, t.Forward)
}

// WriteWikidata writes the wikidata table as indented JSON.
func (t Table) WriteWikidata(w io.Writer) error {
	return writeIDMap(w, t.Wikidata)
}

// WriteOverrides writes the overrides as a versioned YAML document.
func (t Table) WriteOverrides(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(overridesDocument{Version: OverridesVersion, Overrides: t.Overrides}); err != nil {
		return fmt.Errorf("failed to encode overrides: %w", err)
	}
	return enc.Close()
}

func writeIDMap(w io.Writer, m map[int]string) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if m == nil {
		m = map[int]string{}
	}
	// encoding/json sorts map keys
	if err := enc.Encode(m); err != nil {
		return fmt.Errorf("failed to encode mapping table: %w", err)
	}
	return nil
}
