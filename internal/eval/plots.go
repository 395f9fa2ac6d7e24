package eval

import (
	"bytes"
	"errors"
	"image/color"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
)

var (
	trueColor = color.NRGBA{R: 31, G: 119, B: 180, A: 128}
	predColor = color.NRGBA{R: 255, G: 127, B: 14, A: 128}
)

// HistogramPNG renders overlaid value distributions of the true and
// predicted label pixels, 100 bins each.
func HistogramPNG(yTrue, yPred []float64) ([]byte, error) {
	p := plot.New()
	p.Y.Tick.Marker = plot.ConstantTicks(nil)

	hTrue, err := plotter.NewHist(plotter.Values(yTrue), 100)
	if err != nil {
		return nil, err
	}
	hTrue.FillColor = trueColor
	hTrue.LineStyle.Width = 0

	hPred, err := plotter.NewHist(plotter.Values(yPred), 100)
	if err != nil {
		return nil, err
	}
	hPred.FillColor = predColor
	hPred.LineStyle.Width = 0

	p.Add(hTrue, hPred)
	p.Legend.Add("y_true", hTrue)
	p.Legend.Add("y_pred", hPred)
	p.Legend.Top = true

	return renderPNG(p, 6*vg.Inch, 4*vg.Inch)
}

// ScatterPNG renders predicted against true values with an identity
// reference line.
func ScatterPNG(yTrue, yPred []float64) ([]byte, error) {
	if len(yTrue) == 0 {
		return nil, errors.New("scatter: no observations")
	}
	p := plot.New()
	p.X.Label.Text = "True"
	p.Y.Label.Text = "Predicted"

	pts := make(plotter.XYs, len(yTrue))
	lo, hi := yTrue[0], yTrue[0]
	for i := range yTrue {
		pts[i].X = yTrue[i]
		pts[i].Y = yPred[i]
		if yTrue[i] < lo {
			lo = yTrue[i]
		}
		if yTrue[i] > hi {
			hi = yTrue[i]
		}
	}
	sc, err := plotter.NewScatter(pts)
	if err != nil {
		return nil, err
	}
	sc.GlyphStyle.Shape = draw.CircleGlyph{}
	sc.GlyphStyle.Radius = vg.Points(1)
	sc.GlyphStyle.Color = color.NRGBA{R: 31, G: 119, B: 180, A: 25}

	ident, err := plotter.NewLine(plotter.XYs{{X: lo, Y: lo}, {X: hi, Y: hi}})
	if err != nil {
		return nil, err
	}
	ident.LineStyle.Color = color.NRGBA{A: 192}
	ident.LineStyle.Dashes = []vg.Length{vg.Points(4), vg.Points(3)}

	p.Add(sc, ident)
	return renderPNG(p, 6*vg.Inch, 6*vg.Inch)
}

func renderPNG(p *plot.Plot, w, h vg.Length) ([]byte, error) {
	wt, err := p.WriterTo(w, h, "png")
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if _, err := wt.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
