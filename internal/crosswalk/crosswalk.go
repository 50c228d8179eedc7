// Package crosswalk translates between the primary taxon ids, the
// secondary species codes and the knowledge-graph item ids.
package crosswalk

import (
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/citizenbirds/birdlist/internal/diagnostics"
)

const componentName = "crosswalk"

// Crosswalk is an immutable view over a Table. Safe for concurrent use.
type Crosswalk struct {
	table   Table
	inverse map[string]int
	sink    diagnostics.Sink
}

// New builds the inverse of t.Forward and applies t.Overrides on top.
// When several taxa share a code the lowest taxon id wins. Misses are
// recorded on sink; a nil sink discards them.
func New(t Table, sink diagnostics.Sink) *Crosswalk {
	if sink == nil {
		sink = diagnostics.Discard
	}
	t = t.Clone()

	inverse := make(map[string]int, len(t.Forward))
	for _, id := range slices.Sorted(maps.Keys(t.Forward)) {
		code := t.Forward[id]
		if code == "" {
			continue
		}
		if _, taken := inverse[code]; !taken {
			inverse[code] = id
		}
	}
	for _, o := range t.Overrides {
		inverse[o.Code] = o.TaxonID
	}

	return &Crosswalk{table: t, inverse: inverse, sink: sink}
}

// ToSecondary returns the species code of taxonID.
func (c *Crosswalk) ToSecondary(taxonID int) (string, bool) {
	code, ok := c.table.Forward[taxonID]
	if !ok || code == "" {
		c.miss("taxon:"+strconv.Itoa(taxonID), "no species code for taxon %d", taxonID)
		return "", false
	}
	return code, true
}

// ToPrimary returns the taxon id of a species code.
func (c *Crosswalk) ToPrimary(code string) (int, bool) {
	id, ok := c.inverse[code]
	if !ok {
		c.miss("code:"+code, "no taxon for species code %q", code)
		return 0, false
	}
	return id, true
}

// RoundTrip maps code to its taxon and back, giving the canonical code.
func (c *Crosswalk) RoundTrip(code string) (string, bool) {
	id, ok := c.ToPrimary(code)
	if !ok {
		return "", false
	}
	return c.ToSecondary(id)
}

// WikidataID returns the knowledge-graph item of taxonID. Misses are common
// and not recorded.
func (c *Crosswalk) WikidataID(taxonID int) (string, bool) {
	q, ok := c.table.Wikidata[taxonID]
	return q, ok && q != ""
}

// HasSecondary reports whether taxonID has a code, without recording a miss.
func (c *Crosswalk) HasSecondary(taxonID int) bool {
	return c.table.Forward[taxonID] != ""
}

// Table returns a deep copy of the underlying table.
func (c *Crosswalk) Table() Table {
	return c.table.Clone()
}

// Validate reports overrides that do not round-trip to themselves and
// codes claimed by more than one taxon.
func (c *Crosswalk) Validate() []diagnostics.Diagnostic {
	var out []diagnostics.Diagnostic
	now := time.Now()

	for _, o := range c.table.Overrides {
		code, ok := c.table.Forward[o.TaxonID]
		if !ok || code != o.Code {
			out = append(out, diagnostics.Diagnostic{
				Component: componentName,
				Kind:      diagnostics.KindCrosswalkViolation,
				Key:       "code:" + o.Code,
				Message:   fmt.Sprintf("override %s -> %d round-trips to %q", o.Code, o.TaxonID, code),
				Time:      now,
			})
		}
	}

	claims := make(map[string][]int)
	for id, code := range c.table.Forward {
		if code != "" {
			claims[code] = append(claims[code], id)
		}
	}
	for _, code := range slices.Sorted(maps.Keys(claims)) {
		ids := claims[code]
		if len(ids) < 2 {
			continue
		}
		slices.Sort(ids)
		parts := make([]string, len(ids))
		for i, id := range ids {
			parts[i] = strconv.Itoa(id)
		}
		out = append(out, diagnostics.Diagnostic{
			Component: componentName,
			Kind:      diagnostics.KindCrosswalkViolation,
			Key:       "code:" + code,
			Message:   fmt.Sprintf("code %s is claimed by taxa %s", code, strings.Join(parts, ", ")),
			Time:      now,
		})
	}
	return out
}

func (c *Crosswalk) miss(key, format string, args ...any) {
	c.sink.Record(diagnostics.Diagnostic{
		Component: componentName,
		Kind:      diagnostics.KindUnresolvedIdentifier,
		Key:       key,
		Message:   fmt.Sprintf(format, args...),
	})
}
