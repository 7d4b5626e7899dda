package workflow

import (
	"fmt"
	"io"
	"strings"

	"github.com/Sternrassler/rickmorty-client/pkg/benchmark"
	"github.com/Sternrassler/rickmorty-client/pkg/export"
	"github.com/Sternrassler/rickmorty-client/pkg/model"
	"github.com/Sternrassler/rickmorty-client/pkg/rickmorty"
	"github.com/Sternrassler/rickmorty-client/pkg/stats"
	"github.com/fatih/color"
)

// topShown is the number of entries printed per ranking.
const topShown = 5

// Printer renders workflow output for a terminal.
type Printer struct {
	w       io.Writer
	heading *color.Color
	label   *color.Color
	value   *color.Color
	good    *color.Color
	warn    *color.Color
}

// NewPrinter creates a printer writing to w. noColor disables ANSI
// sequences regardless of the terminal.
func NewPrinter(w io.Writer, noColor bool) *Printer {
	p := &Printer{
		w:       w,
		heading: color.New(color.FgCyan, color.Bold),
		label:   color.New(color.Faint),
		value:   color.New(color.Bold),
		good:    color.New(color.FgGreen),
		warn:    color.New(color.FgYellow),
	}
	if noColor {
		for _, c := range []*color.Color{p.heading, p.label, p.value, p.good, p.warn} {
			c.DisableColor()
		}
	}
	return p
}

func (p *Printer) section(title string) {
	fmt.Fprintln(p.w)
	p.heading.Fprintf(p.w, "=== %s ===\n", title)
}

func (p *Printer) field(name string, v any) {
	p.label.Fprintf(p.w, "%s: ", name)
	p.value.Fprintf(p.w, "%v\n", v)
}

// Character prints a character and its resolved location.
func (p *Printer) Character(cl model.CharacterWithLocation) {
	c := cl.Character
	p.section("Character " + c.Name)
	p.field("ID", c.ID)
	p.field("Status", c.Status)
	p.field("Species", c.Species)
	p.field("Gender", c.Gender)
	p.field("Origin", orUnknown(c.Origin.Name))
	p.field("Current Location", orUnknown(c.Location.Name))
	p.field("Episodes", c.EpisodeCount())

	if cl.Location == nil {
		p.warn.Fprintln(p.w, "\nLocation details unavailable")
		return
	}
	p.section("Location Details")
	p.field("Type", cl.Location.Type)
	p.field("Dimension", cl.Location.Dimension)
	p.field("Residents", cl.Location.ResidentCount())
}

// Statistics prints the statistics report. Data quality is only shown when
// verbose is set.
func (p *Printer) Statistics(transport, method string, st stats.Statistics, verbose bool) {
	p.section(fmt.Sprintf("Rick and Morty API Statistics (%s)", transport))
	p.field("Total Characters", st.TotalCharacters)
	p.field("Total Locations", st.TotalLocations)
	p.field("Method", method)

	p.distribution("Character Status Distribution", st.Status, 0)
	p.distribution(fmt.Sprintf("Top %d Species", topShown), st.Species, topShown)
	p.distribution("Gender Distribution", st.Gender, 0)

	if len(st.MostPopulated) > 0 {
		p.heading.Fprintf(p.w, "\nTop %d Most Populated Locations:\n", topShown)
		for i, loc := range st.MostPopulated {
			if i == topShown {
				break
			}
			fmt.Fprintf(p.w, "  %s (%s): %d residents\n", loc.Name, loc.Type, loc.ResidentCount)
		}
	}

	m := st.Mapping
	p.heading.Fprintln(p.w, "\nLocation Mapping:")
	fmt.Fprintf(p.w, "  %d of %d characters with a location resolve (%.1f%%)\n",
		m.CharactersWithValidLocation, m.CharactersWithLocation, m.SuccessRate)
	for _, issue := range m.Issues {
		p.warn.Fprintf(p.w, "  character %d (%s) -> unknown location %d\n", issue.CharacterID, issue.CharacterName, issue.LocationID)
	}

	if verbose {
		p.quality(st.DataQuality)
	}
}

func (p *Printer) distribution(title string, d stats.Distribution, limit int) {
	if len(d) == 0 {
		return
	}
	p.heading.Fprintf(p.w, "\n%s:\n", title)
	for i, c := range d {
		if limit > 0 && i == limit {
			break
		}
		fmt.Fprintf(p.w, "  %s: %d\n", orUnknown(c.Key), c.Count)
	}
}

func (p *Printer) quality(q stats.DataQuality) {
	p.section("Data Quality Assessment")
	score := p.good
	if q.CompletenessScore < 90 {
		score = p.warn
	}
	p.label.Fprint(p.w, "Overall Completeness Score: ")
	score.Fprintf(p.w, "%.1f%%\n", q.CompletenessScore)

	p.issues("Character Data Issues", []issue{
		{"Missing Origin", q.Characters.MissingOrigin},
		{"Missing Location", q.Characters.MissingLocation},
		{"Missing Species", q.Characters.MissingSpecies},
		{"Unknown Status", q.Characters.UnknownStatus},
	})
	p.issues("Location Data Issues", []issue{
		{"Missing Type", q.Locations.MissingType},
		{"Missing Dimension", q.Locations.MissingDimension},
		{"No Residents", q.Locations.NoResidents},
		{"Empty Names", q.Locations.EmptyNames},
	})
}

type issue struct {
	name  string
	count int
}

func (p *Printer) issues(title string, list []issue) {
	p.heading.Fprintf(p.w, "\n%s:\n", title)
	for _, i := range list {
		if i.count > 0 {
			fmt.Fprintf(p.w, "  %s: %d\n", i.name, i.count)
		}
	}
}

// Optimization prints the outcome of a combined-page fetch.
func (p *Printer) Optimization(l *rickmorty.LoadResult) {
	p.section("Optimization Results")
	p.field("API Calls Made", l.APICalls)
	p.label.Fprint(p.w, "API Call Reduction: ")
	p.good.Fprintf(p.w, "%.1f%%\n", l.ReductionPercent)
	p.field("Fetch Time", fmt.Sprintf("%.2fs", l.Duration.Seconds()))
}

// Export prints the written files.
func (p *Printer) Export(files export.Files, ds model.Dataset) {
	p.section("Export Results")
	if files.Characters != "" {
		p.good.Fprintf(p.w, "Characters (%d rows) exported to: %s\n", len(ds.Characters), files.Characters)
	}
	if files.Locations != "" {
		p.good.Fprintf(p.w, "Locations (%d rows) exported to: %s\n", len(ds.Locations), files.Locations)
	}
	if files.Statistics != "" {
		p.good.Fprintf(p.w, "Statistics exported to: %s\n", files.Statistics)
	}
}

// DryRun prints what a run would do.
func (p *Printer) DryRun(info model.ImplementationInfo, action string) {
	tag := p.warn.Sprint("[DRY RUN]")
	fmt.Fprintf(p.w, "%s %s implementation (%s)\n", tag, strings.ToUpper(info.Transport), info.Endpoint)
	fmt.Fprintf(p.w, "%s %s\n", tag, action)
	if info.EstimatedAPICalls > 0 {
		fmt.Fprintf(p.w, "%s Estimated API calls: %d\n", tag, info.EstimatedAPICalls)
	} else {
		fmt.Fprintf(p.w, "%s Estimated API calls: unknown until the first fetch\n", tag)
	}
	fmt.Fprintf(p.w, "%s Batch queries: %t, relationship optimization: %t\n", tag,
		info.SupportsBatchQueries, info.SupportsRelationshipOptimization)
}

// Benchmark prints a benchmark report.
func (p *Printer) Benchmark(r *benchmark.Report) {
	p.section("Benchmark " + r.RunID)
	p.benchmarkTransport(r.REST)
	p.benchmarkTransport(r.GraphQL)

	if o := r.Optimized; o != nil {
		p.heading.Fprintln(p.w, "\nGRAPHQL (combined pages)")
		fmt.Fprintf(p.w, "  total %.3fs, %d of %d naive calls (%.1f%% fewer), %d fallbacks\n",
			o.Seconds, o.APICalls, o.NaiveCalls, o.ReductionPercent, o.Fallbacks)
	}

	c := r.Compared
	p.section("Comparison")
	faster := p.good
	if c.TimeImprovementPercent < 0 {
		faster = p.warn
	}
	p.label.Fprint(p.w, "GraphQL time improvement: ")
	faster.Fprintf(p.w, "%.1f%% (%.2fx, %+.3fs)\n", c.TimeImprovementPercent, c.SpeedFactor, c.AbsoluteSeconds)
	p.label.Fprint(p.w, "API call reduction: ")
	p.value.Fprintf(p.w, "%.1f%%\n", c.APICallReductionPercent)
}

func (p *Printer) benchmarkTransport(t benchmark.TransportResult) {
	p.heading.Fprintf(p.w, "\n%s (%d iterations, %d calls each)\n", strings.ToUpper(t.Transport), t.Iterations, t.APICalls)
	for _, row := range []struct {
		name string
		s    benchmark.Summary
	}{
		{"characters", t.Characters},
		{"locations", t.Locations},
		{"total", t.Total},
	} {
		fmt.Fprintf(p.w, "  %-10s avg %.3fs  min %.3fs  max %.3fs  stddev %.3fs\n",
			row.name, row.s.Mean, row.s.Min, row.s.Max, row.s.StdDev)
	}
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}

// Saved reports a written file.
func (p *Printer) Saved(what, path string) {
	fmt.Fprintln(p.w)
	p.good.Fprintf(p.w, "%s saved to %s\n", what, path)
}
