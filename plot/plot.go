// Package plot renders the run histograms.
package plot

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"go-hep.org/x/hep/groot"
	"go-hep.org/x/hep/groot/rhist"
	"go-hep.org/x/hep/hbook"
	"go-hep.org/x/hep/hbook/rootcnv"
	"go-hep.org/x/hep/hplot"
	"gonum.org/v1/plot/vg"
)

// Range is a displayed x-axis range.
type Range struct {
	Min, Max float64
}

// Ranges holds the zoomed x-axis range of some histograms.
// Histograms without an entry are drawn over their full binning.
var Ranges = map[string]Range{
	"MuonEnergy":     {0, 30},
	"MuonStopZ":      {-120, -70},
	"MuonStopTarget": {0, 5},
	"MuonStopRadius": {0, 10},
}

// LoadROOT reads every 1-dim histogram of a ROOT file, sorted by name.
func LoadROOT(fname string) ([]*hbook.H1D, error) {
	f, err := groot.Open(fname)
	if err != nil {
		return nil, fmt.Errorf("plot: could not open %q: %w", fname, err)
	}
	defer f.Close()

	var hs []*hbook.H1D
	for _, k := range f.Keys() {
		obj, err := k.Object()
		if err != nil {
			return nil, fmt.Errorf("plot: could not read %q from %q: %w", k.Name(), fname, err)
		}
		h1, ok := obj.(rhist.H1)
		if !ok {
			continue
		}
		h := rootcnv.H1D(h1)
		if h.Ann == nil {
			h.Ann = make(hbook.Annotation)
		}
		h.Ann["name"] = k.Name()
		hs = append(hs, h)
	}
	sort.Slice(hs, func(i, j int) bool { return hs[i].Name() < hs[j].Name() })
	return hs, nil
}

// Options controls the rendering of a histogram.
type Options struct {
	Format string // pdf, png, svg...
	Width  vg.Length
	Height vg.Length
}

func (o *Options) defaults() {
	if o.Format == "" {
		o.Format = "pdf"
	}
	o.Format = strings.TrimPrefix(strings.ToLower(o.Format), ".")
	if o.Width <= 0 {
		o.Width = 20 * vg.Centimeter
	}
	if o.Height <= 0 {
		o.Height = 15 * vg.Centimeter
	}
}

// Render draws h into dir and returns the name of the written file.
func Render(h *hbook.H1D, dir string, opts Options) (string, error) {
	opts.defaults()

	name := h.Name()
	if name == "" {
		return "", fmt.Errorf("plot: histogram without a name")
	}

	p := hplot.New()
	p.Title.Text = name
	if title, ok := h.Ann["title"].(string); ok && title != "" {
		p.Title.Text = title
	}
	p.X.Label.Text = name
	p.Y.Label.Text = "Entries"

	hh := hplot.NewH1D(h)
	hh.Infos.Style = hplot.HInfoSummary
	p.Add(hh, hplot.NewGrid())

	if r, ok := Ranges[name]; ok {
		p.X.Min = r.Min
		p.X.Max = r.Max
	}

	fname := filepath.Join(dir, name+"."+opts.Format)
	if err := p.Save(opts.Width, opts.Height, fname); err != nil {
		return "", fmt.Errorf("plot: could not save %q: %w", fname, err)
	}
	return fname, nil
}

// RenderAll draws every histogram of hs into dir.
func RenderAll(hs []*hbook.H1D, dir string, opts Options) ([]string, error) {
	out := make([]string, 0, len(hs))
	for _, h := range hs {
		fname, err := Render(h, dir, opts)
		if err != nil {
			return out, err
		}
		out = append(out, fname)
	}
	return out, nil
}
