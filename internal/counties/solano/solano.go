// Package solano reads Solano county data from the county's ArcGIS survey services.
package solano

import (
	"baypd-scraper/internal/components/telemetry"
	"baypd-scraper/internal/counties/adapter"
	"baypd-scraper/internal/record"
	"baypd-scraper/lib/platforms/arcgis"
	"baypd-scraper/lib/upstream"
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

const (
	ID            = "solano"
	DefaultArcGIS = "https://services2.arcgis.com/SCn6czzcqKAFwdGU"
	seriesService = "COVID19Surveypt1v3_view"
	// each row of the demographics service joins one race, age and gender
	// group for a date, so groups repeat across rows
	demographicsService = "COVID19Surveypt2v3_view_3"
	dashboardURL        = "https://doitgis.maps.arcgis.com/apps/opsdashboard/index.html#/d28335cd317a45cd84211cd290889c27"
	totalRaceEth        = "Total_RE"
	totalAgeGroup       = "Total_AG"
)

var notes = []string{
	"Solano reports daily cumulative cases, deaths, and residents tested. The county does not report new daily confirmed cases.",
	"Solano reports total number of residents tested on each date. This may exclude counts of tests for individuals " +
		"being retested. Solano does not report test results.",
	"Deaths by gender not currently reported.",
	"Solano's age and gender tables appear to be the product of a join gone wrong upstream, groups are repeated " +
		"across rows. BayPD keeps one row per group and reports the county's values as published.",
}

var raceKeys = map[string]string{
	"hispanic/latinx":                  record.LatinxOrHispanic,
	"asian":                            record.Asian,
	"black/african american":           record.AfricanAmer,
	"white":                            record.White,
	"native hawaiian/pacific islander": record.PacificIslander,
	"american indian/alaska native":    record.NativeAmer,
	"multirace":                        record.MultipleRace,
	"other":                            record.Other,
	"unknown":                          record.UnknownRace,
}

const expectedAgeGroups = 4

var disclaimer = regexp.MustCompile(`(?i)disclaimer?`)

type Adapter struct {
	deps adapter.Deps
	api  arcgis.FeatureServer
	tel  telemetry.API
	// disclaimers renders the public dashboard and returns its notes.
	disclaimers func(ctx context.Context) (string, error)
}

func New(deps adapter.Deps) adapter.Adapter {
	deps.Check()
	a := Adapter{
		deps: deps,
		api:  arcgis.NewFeatureServer(deps.HTTP, deps.Endpoint("arcgis", DefaultArcGIS)),
		tel:  telemetry.NewScopedAPI("solano", deps.Tel),
	}
	a.disclaimers = a.dashboardNotes
	return a
}

func (a Adapter) GetCounty(ctx context.Context) (record.County, error) {
	out := a.deps.Template.New()
	out.Name = "Solano County"
	out.SourceURL = a.api.LayerURL(seriesService, 0) + "/query"
	out.AppendNotes(notes...)

	meta, err := a.disclaimers(ctx)
	if err != nil {
		return record.County{}, fmt.Errorf("dashboard notes: %w", err)
	}
	out.MetaFromSource = meta

	layer, err := a.api.Metadata(ctx, seriesService, 0)
	if err != nil {
		return record.County{}, fmt.Errorf("metadata: %w", err)
	}
	if _, ok := layer.EditFieldsInfo["dateFieldsTimeReference"]; ok {
		return record.County{}, upstream.Formatf("a timezone may now be specified in the layer metadata")
	}
	out.UpdateTime = record.FormatTime(time.UnixMilli(layer.EditingInfo.LastEditDate).UTC())

	out.Series, err = a.series(ctx)
	if err != nil {
		return record.County{}, fmt.Errorf("series: %w", err)
	}
	err = a.ageGroups(ctx, &out)
	if err != nil {
		return record.County{}, fmt.Errorf("age: %w", err)
	}
	out.CaseTotals.Gender, err = a.gender(ctx)
	if err != nil {
		return record.County{}, fmt.Errorf("gender: %w", err)
	}
	err = a.raceEth(ctx, &out)
	if err != nil {
		return record.County{}, fmt.Errorf("race/ethnicity: %w", err)
	}
	out.NotePlaceholders()
	return out, nil
}

// dashboardNotes collects the lines of the rendered dashboard that look like disclaimers.
func (a Adapter) dashboardNotes(ctx context.Context) (string, error) {
	html, err := a.deps.Browser.Fetch(ctx, a.deps.Endpoint("dashboard", dashboardURL), "body")
	if err != nil {
		return "", err
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", err
	}
	found := DisclaimerLines(doc.Text())
	if len(found) == 0 {
		a.tel.ReportWarning("dashboard.disclaimers", "url", dashboardURL)
	}
	return strings.Join(found, "\n\n"), nil
}

// DisclaimerLines returns the trimmed lines of text that mention a disclaimer.
func DisclaimerLines(text string) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		if disclaimer.MatchString(line) {
			out = append(out, strings.TrimSpace(line))
		}
	}
	return out
}

func (a Adapter) series(ctx context.Context) (record.Series, error) {
	rows, err := a.api.QueryAll(ctx, seriesService, 0, arcgis.Params{
		Where:         "cumulative_cases>0",
		OutFields:     "Date_reported,cumulative_cases,total_deaths,residents_tested",
		OrderByFields: "date_reported asc",
		Extra:         url.Values{"resultType": {"none"}},
	})
	if err != nil {
		return record.Series{}, err
	}

	series := record.Series{
		Cases:  []record.CaseEntry{},
		Deaths: []record.DeathEntry{},
		Tests:  []record.TestEntry{},
	}
	for _, row := range rows {
		ms, err := record.Field(row, "Date_reported")
		if err != nil {
			return series, err
		}
		date := record.DateFromEpochMillis(int64(ms), a.deps.Clock.Location())

		if row["cumulative_cases"] != nil {
			cumul, err := record.Field(row, "cumulative_cases")
			if err != nil {
				return series, err
			}
			series.Cases = append(series.Cases, record.CaseEntry{Date: date, CumulCases: cumul})
		}
		if row["total_deaths"] != nil {
			cumul, err := record.Field(row, "total_deaths")
			if err != nil {
				return series, err
			}
			series.Deaths = append(series.Deaths, record.DeathEntry{Date: date, CumulDeaths: cumul})
		}
		if row["residents_tested"] != nil {
			cumul, err := record.Field(row, "residents_tested")
			if err != nil {
				return series, err
			}
			entry := record.NewTestEntry(date)
			entry.CumulTests = cumul
			series.Tests = append(series.Tests, entry)
		}
	}

	record.SortByDate(series.Cases)
	record.SortByDate(series.Deaths)
	record.SortByDate(series.Tests)
	record.DifferenceCases(series.Cases)
	record.DifferenceDeaths(series.Deaths)
	record.DifferenceTests(series.Tests)
	return series, nil
}

// latestDay finds the most recent date matching `where` in the format the
// demographics service expects in a where clause.
func (a Adapter) latestDay(ctx context.Context, where string) (string, error) {
	rows, err := a.api.QueryAll(ctx, demographicsService, 0, arcgis.Params{
		Where:         where,
		OutFields:     "Date_reported",
		OrderByFields: "Date_reported DESC",
		Extra:         url.Values{"resultRecordCount": {"1"}},
	})
	if err != nil {
		return "", err
	}
	if len(rows) == 0 {
		return "", upstream.Formatf("no rows match %s", where)
	}
	ms, err := record.Field(rows[0], "Date_reported")
	if err != nil {
		return "", err
	}
	return time.UnixMilli(int64(ms)).UTC().Format("01-02-2006"), nil
}

func (a Adapter) ageGroups(ctx context.Context, out *record.County) error {
	day, err := a.latestDay(ctx, fmt.Sprintf("Age_group='%s'", totalAgeGroup))
	if err != nil {
		return err
	}
	rows, err := a.api.QueryAll(ctx, demographicsService, 0, arcgis.Params{
		Where: fmt.Sprintf(
			"AG_Total_cases > 0 AND Date_reported = '%s' AND Age_group <> '%s'",
			day, totalAgeGroup,
		),
		OutFields: "Age_group,AG_Total_cases,AG_deaths",
	})
	if err != nil {
		return err
	}

	seen := map[string]bool{}
	var cases, deaths []record.AgeGroup
	for _, row := range rows {
		group, _ := row["Age_group"].(string)
		if seen[group] {
			continue
		}
		seen[group] = true
		caseCount, err := record.CountField(row, "AG_Total_cases")
		if err != nil {
			return err
		}
		deathCount, err := record.CountOrUnknown(row["AG_deaths"])
		if err != nil {
			return err
		}
		cases = append(cases, record.AgeGroup{Group: group, RawCount: caseCount})
		deaths = append(deaths, record.AgeGroup{Group: group, RawCount: deathCount})
	}
	if len(cases) != expectedAgeGroups {
		return upstream.Formatf("age group query did not return %d groups, got %d", expectedAgeGroups, len(cases))
	}
	record.SortAgeGroups(cases)
	record.SortAgeGroups(deaths)
	out.CaseTotals.AgeGroup = cases
	out.DeathTotals.AgeGroup = deaths
	return nil
}

func (a Adapter) gender(ctx context.Context) (map[string]record.Count, error) {
	day, err := a.latestDay(ctx, "G_Total_cases>0")
	if err != nil {
		return nil, err
	}
	rows, err := a.api.QueryAll(ctx, demographicsService, 0, arcgis.Params{
		Where:     fmt.Sprintf("G_Total_cases>0 AND Date_reported = '%s'", day),
		OutFields: "Gender,G_Total_cases",
	})
	if err != nil {
		return nil, err
	}

	gender := map[string]record.Count{}
	for _, row := range rows {
		label, _ := row["Gender"].(string)
		count, err := record.CountField(row, "G_Total_cases")
		if err != nil {
			return nil, err
		}
		gender[strings.ToLower(strings.TrimSpace(label))] = count
	}
	if len(gender) < 2 {
		return nil, upstream.Formatf("gender query returned less than 2 groups, got %d", len(gender))
	}
	return gender, record.RequireGender(gender, "solano cases")
}

func (a Adapter) raceEth(ctx context.Context, out *record.County) error {
	day, err := a.latestDay(ctx, fmt.Sprintf("Race_ethnicity='%s'", totalRaceEth))
	if err != nil {
		return err
	}
	rows, err := a.api.QueryAll(ctx, demographicsService, 0, arcgis.Params{
		Where: fmt.Sprintf(
			"RE_total_cases>0 AND Date_reported = '%s' AND Race_ethnicity <> '%s'",
			day, totalRaceEth,
		),
		OutFields: "Race_ethnicity,RE_total_cases,RE_deaths",
	})
	if err != nil {
		return err
	}

	cases := map[string]record.Count{}
	deaths := map[string]record.Count{}
	for _, row := range rows {
		label, _ := row["Race_ethnicity"].(string)
		label = strings.ToLower(strings.TrimSpace(label))
		count, err := record.CountField(row, "RE_total_cases")
		if err != nil {
			return err
		}
		cases[label] = count
		deaths[label], err = record.CountOrUnknown(row["RE_deaths"])
		if err != nil {
			return err
		}
	}
	observed := make([]string, 0, len(cases))
	for label := range cases {
		observed = append(observed, label)
	}
	err = record.AssertKeys(raceKeys, observed, "race/ethnicity groups")
	if err != nil {
		return err
	}

	out.CaseTotals.RaceEth = record.NewRaceEth()
	out.DeathTotals.RaceEth = record.NewRaceEth()
	for label, key := range raceKeys {
		out.CaseTotals.RaceEth[key] = cases[label]
		out.DeathTotals.RaceEth[key] = deaths[label]
	}
	return nil
}
