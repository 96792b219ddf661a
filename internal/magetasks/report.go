package magetasks

import (
	"context"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/dkoosis/fobot/pkg/testjson"
)

// PackageResult holds aggregated test results for a package.
type PackageResult struct {
	Name        string
	Passed      int
	Failed      int
	Skipped     int
	Elapsed     time.Duration
	FailedTests []string
}

// Report is the outcome of one `go test -json` run.
type Report struct {
	Packages  []*PackageResult
	Malformed int
}

// Summarize folds a `go test -json` stream into per-package results,
// sorted by package name.
func Summarize(ctx context.Context, r io.Reader) (*Report, error) {
	byName := make(map[string]*PackageResult)
	pkg := func(name string) *PackageResult {
		p, ok := byName[name]
		if !ok {
			p = &PackageResult{Name: name}
			byName[name] = p
		}
		return p
	}

	malformed, err := testjson.Stream(ctx, r, func(e testjson.TestEvent) {
		if e.Package == "" {
			return
		}
		p := pkg(e.Package)
		if e.Test == "" {
			if e.Action == testjson.ActionPass || e.Action == testjson.ActionFail {
				p.Elapsed = time.Duration(e.Elapsed * float64(time.Second))
			}
			return
		}
		switch e.Action {
		case testjson.ActionPass:
			p.Passed++
		case testjson.ActionFail:
			p.Failed++
			p.FailedTests = append(p.FailedTests, e.Test)
		case testjson.ActionSkip:
			p.Skipped++
		}
	})
	if err != nil {
		return nil, err
	}

	rep := &Report{Malformed: malformed}
	for _, p := range byName {
		rep.Packages = append(rep.Packages, p)
	}
	sort.Slice(rep.Packages, func(i, j int) bool { return rep.Packages[i].Name < rep.Packages[j].Name })
	return rep, nil
}

// Failed counts failed tests across packages.
func (r *Report) Failed() int {
	n := 0
	for _, p := range r.Packages {
		n += p.Failed
	}
	return n
}

// Render writes one line per package and the names of failed tests.
func (r *Report) Render(w io.Writer) {
	for _, p := range r.Packages {
		mark := successStyle.Render("PASS")
		if p.Failed > 0 {
			mark = errorStyle.Render("FAIL")
		}
		fmt.Fprintf(w, "%s %s  %d passed, %d failed, %d skipped (%s)\n",
			mark, p.Name, p.Passed, p.Failed, p.Skipped, p.Elapsed.Round(time.Millisecond))
		for _, name := range p.FailedTests {
			fmt.Fprintf(w, "     %s\n", errorStyle.Render(name))
		}
	}
	if r.Malformed > 0 {
		fmt.Fprintf(w, "%s\n", warningStyle.Render(fmt.Sprintf("%d lines were not test events", r.Malformed)))
	}
}
