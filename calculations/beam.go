package calculations

import (
	"fmt"
	"math"
)

const (
	coverAllowance     = 0.05   // m, subtracted from height to get the effective depth
	sideCoverAllowance = 0.10   // m, total lateral cover used for bar spacing
	minSteelRatio      = 0.0033 // minimum reinforcement ratio
	maxSteelRatio      = 0.025  // over-reinforcement threshold
	steelSafetyFactor  = 1.15
	leverArmFactor     = 0.9
	minBarSpacingCm    = 2.5
)

// BeamDesignInput is the typed input of the simply supported beam design
type BeamDesignInput struct {
	Length           float64 // m
	Load             float64 // N/m, uniformly distributed
	ConcreteStrength float64 // MPa
	SteelStrength    float64 // MPa
	BeamHeight       float64 // m, <= 0 means use the recommended height
	BeamWidth        float64 // m, <= 0 means use the recommended width
	BarDiameter      float64 // mm
}

// BeamDesign is the full breakdown of a beam design
type BeamDesign struct {
	LoadKNm           float64 // kN/m
	MaxMoment         float64 // kN·m
	RecommendedHeight float64 // m
	RecommendedWidth  float64 // m
	Height            float64 // m
	Width             float64 // m
	EffectiveDepth    float64 // m
	RequiredAs        float64 // cm²
	MinAs             float64 // cm²
	FinalAs           float64 // cm²
	BarArea           float64 // cm²
	BarsCount         int
	Spacing           float64 // cm
	IsOverReinforced  bool
}

// ComputeBeamDesign sizes the tension reinforcement of a simply supported
// rectangular beam under a uniform load
func ComputeBeamDesign(in BeamDesignInput) (BeamDesign, error) {
	fail := func(format string, args ...any) (BeamDesign, error) {
		return BeamDesign{}, newComputationError(FormulaBeamDesign, fmt.Sprintf(format, args...), nil)
	}

	if in.Length <= 0 {
		return fail("span must be positive, got %s", formatNumber(in.Length))
	}
	if in.SteelStrength <= 0 {
		return fail("steel strength must be positive, got %s", formatNumber(in.SteelStrength))
	}
	if in.BarDiameter <= 0 {
		return fail("bar diameter must be positive, got %s", formatNumber(in.BarDiameter))
	}

	var d BeamDesign
	d.LoadKNm = in.Load / 1000
	d.MaxMoment = d.LoadKNm * in.Length * in.Length / 8

	d.RecommendedHeight = in.Length / 10
	d.RecommendedWidth = 0.5 * d.RecommendedHeight
	d.Height = d.RecommendedHeight
	if in.BeamHeight > 0 {
		d.Height = in.BeamHeight
	}
	d.Width = d.RecommendedWidth
	if in.BeamWidth > 0 {
		d.Width = in.BeamWidth
	}

	d.EffectiveDepth = d.Height - coverAllowance
	if d.EffectiveDepth <= 0 {
		return fail("effective depth is not positive for height %s m", formatNumber(d.Height))
	}

	fy := in.SteelStrength * 1e6
	d.RequiredAs = (d.MaxMoment * 1000) / (leverArmFactor * d.EffectiveDepth * (fy / steelSafetyFactor)) * 10000
	d.MinAs = minSteelRatio * d.Width * d.Height * 10000
	d.FinalAs = math.Max(d.RequiredAs, d.MinAs)

	d.BarArea = math.Pi * math.Pow(in.BarDiameter/20, 2)
	d.BarsCount = int(math.Ceil(d.FinalAs / d.BarArea))
	if d.BarsCount < 2 {
		return fail("bar spacing is undefined for %d bar(s)", d.BarsCount)
	}

	clearWidth := d.Width - sideCoverAllowance
	if clearWidth <= 0 {
		return fail("beam width %s m leaves no room for bars", formatNumber(d.Width))
	}
	d.Spacing = math.Round((clearWidth / float64(d.BarsCount-1)) * 100)

	d.IsOverReinforced = d.FinalAs > maxSteelRatio*d.Width*d.Height*10000

	return d, nil
}

// BeamDesignExecutor adapts ComputeBeamDesign to the Executor interface
type BeamDesignExecutor struct{}

func (BeamDesignExecutor) Formula() Formula { return FormulaBeamDesign }

func (e BeamDesignExecutor) Execute(in Inputs) (*Outcome, error) {
	typed, err := decodeBeamDesign(in)
	if err != nil {
		return nil, newComputationError(e.Formula(), "invalid inputs", err)
	}

	d, err := ComputeBeamDesign(typed)
	if err != nil {
		return nil, err
	}

	out := &Outcome{
		Primary: Metric{
			Label: "Refuerzo Recomendado",
			Value: Text(fmt.Sprintf("%dφ%s", d.BarsCount, formatNumber(typed.BarDiameter))),
		},
		Secondary: []Metric{
			{Label: "Momento Máximo", Value: Number(round(d.MaxMoment, 2)), Unit: "kN·m"},
			{Label: "Altura de Viga", Value: Number(round(d.Height, 2)), Unit: "m"},
			{Label: "Ancho de Viga", Value: Number(round(d.Width, 2)), Unit: "m"},
			{Label: "Peralte Efectivo", Value: Number(round(d.EffectiveDepth, 2)), Unit: "m"},
			{Label: "Área de Acero Requerida", Value: Number(round(d.RequiredAs, 2)), Unit: "cm²"},
			{Label: "Área de Acero Mínima", Value: Number(round(d.MinAs, 2)), Unit: "cm²"},
			{Label: "Área de Acero Final", Value: Number(round(d.FinalAs, 2)), Unit: "cm²"},
			{Label: "Número de Barras", Value: Number(float64(d.BarsCount))},
			{Label: "Separación", Value: Number(d.Spacing), Unit: "cm"},
		},
		Compliance: Compliance{IsCompliant: true},
	}

	notes := []string{
		fmt.Sprintf("Momento máximo para viga simplemente apoyada: %s kN·m.", formatNumber(round(d.MaxMoment, 2))),
	}
	if d.RequiredAs < d.MinAs {
		notes = append(notes, "Gobierna el acero mínimo por cuantía (ρmin = 0.0033).")
	}
	if typed.BeamHeight <= 0 || typed.BeamWidth <= 0 {
		notes = append(notes, fmt.Sprintf("Sección recomendada: %s m x %s m (L/10).",
			formatNumber(round(d.RecommendedWidth, 2)), formatNumber(round(d.RecommendedHeight, 2))))
	}
	if d.IsOverReinforced {
		out.Compliance.IsCompliant = false
		notes = append(notes, "Viga sobre-reforzada (ρ > 0.025): requiere revisión de la sección.")
	}
	if d.Spacing < minBarSpacingCm {
		out.Compliance.IsCompliant = false
		notes = append(notes, fmt.Sprintf("Separación de %s cm menor al mínimo de %s cm.",
			formatNumber(d.Spacing), formatNumber(minBarSpacingCm)))
	}
	out.Compliance.Notes = notes

	return out, nil
}

func decodeBeamDesign(in Inputs) (BeamDesignInput, error) {
	var typed BeamDesignInput
	var err error

	if typed.Length, err = in.Number("length"); err != nil {
		return typed, err
	}
	if typed.Load, err = in.Number("load"); err != nil {
		return typed, err
	}
	if typed.SteelStrength, err = in.Number("steelStrength"); err != nil {
		return typed, err
	}
	if typed.BarDiameter, err = in.Number("barDiameter"); err != nil {
		return typed, err
	}
	if typed.ConcreteStrength, _, err = in.OptionalNumber("concreteStrength"); err != nil {
		return typed, err
	}
	if typed.BeamHeight, _, err = in.OptionalNumber("beamHeight"); err != nil {
		return typed, err
	}
	if typed.BeamWidth, _, err = in.OptionalNumber("beamWidth"); err != nil {
		return typed, err
	}
	return typed, nil
}
