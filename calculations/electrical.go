package calculations

import (
	"fmt"
)

// Unit loads assumed per point by the residential demand method
const (
	wattsPerLightingPoint = 100.0
	wattsPerOutletPoint   = 200.0

	maxLightingPointsPerCircuit = 15
	maxOutletPointsPerCircuit   = 10

	breakerSafetyFactor = 1.25
)

// standardBreakers are the main breaker ratings offered for a dwelling, in amperes
var standardBreakers = []float64{15, 20, 30, 40, 50, 60, 70, 80, 100, 125, 150, 200}

// ResidentialDemandInput is the typed input of the residential electrical demand method
type ResidentialDemandInput struct {
	AreaVivienda             float64 // m²
	CircuitosIluminacion     float64
	PuntosIluminacion        float64
	CircuitosTomacorrientes  float64
	PuntosTomacorriente      float64
	CantidadCargasEspeciales float64
	SumaCargasEspeciales     float64 // W
	VoltajeNominal           float64 // V
}

// ResidentialDemand is the full breakdown of a residential demand calculation
type ResidentialDemand struct {
	TipoVivienda             string
	FdIluminacion            float64
	FdTomacorrientes         float64
	FdCargasEspeciales       float64
	PotenciaIluminacion      float64
	DemandaIluminacion       float64
	PotenciaTomacorrientes   float64
	DemandaTomacorrientes    float64
	DemandaCargasEspeciales  float64
	DemandaTotal             float64
	CorrienteTotal           float64
	BreakerRecomendado       float64 // 0 when the current exceeds every standard rating
	PuntosIluminacionExceden bool
	PuntosTomasExceden       bool
}

// DwellingClass classifies a dwelling by floor area and returns its lighting and
// outlet demand factors
func DwellingClass(area float64) (name string, fdIluminacion, fdTomacorrientes float64) {
	switch {
	case area < 80:
		return "Pequeña", 0.70, 0.50
	case area < 200:
		return "Mediana", 0.70, 0.50
	case area < 300:
		return "Mediana grande", 0.55, 0.40
	default:
		return "Grande", 0.55, 0.40
	}
}

// SpecialLoadFactor returns the demand factor applied to special loads.
// The branch order is normative: quantity first, then the summed power.
func SpecialLoadFactor(cantidad, suma float64) float64 {
	if cantidad <= 1 {
		return 1.0
	}
	if suma < 10000 {
		return 0.8
	}
	return 0.75
}

// ComputeResidentialDemand applies the demand-factor method to a dwelling
func ComputeResidentialDemand(in ResidentialDemandInput) (ResidentialDemand, error) {
	if in.VoltajeNominal <= 0 {
		return ResidentialDemand{}, newComputationError(FormulaResidentialDemand,
			fmt.Sprintf("nominal voltage must be positive, got %s", formatNumber(in.VoltajeNominal)), nil)
	}

	var d ResidentialDemand
	d.TipoVivienda, d.FdIluminacion, d.FdTomacorrientes = DwellingClass(in.AreaVivienda)

	d.PotenciaIluminacion = in.CircuitosIluminacion * in.PuntosIluminacion * wattsPerLightingPoint
	d.DemandaIluminacion = d.PotenciaIluminacion * d.FdIluminacion

	d.PotenciaTomacorrientes = in.CircuitosTomacorrientes * in.PuntosTomacorriente * wattsPerOutletPoint
	d.DemandaTomacorrientes = d.PotenciaTomacorrientes * d.FdTomacorrientes

	d.FdCargasEspeciales = SpecialLoadFactor(in.CantidadCargasEspeciales, in.SumaCargasEspeciales)
	d.DemandaCargasEspeciales = in.SumaCargasEspeciales * d.FdCargasEspeciales

	d.DemandaTotal = d.DemandaIluminacion + d.DemandaTomacorrientes + d.DemandaCargasEspeciales
	d.CorrienteTotal = round(d.DemandaTotal/in.VoltajeNominal, 2)

	required := d.CorrienteTotal * breakerSafetyFactor
	for _, rating := range standardBreakers {
		if rating >= required {
			d.BreakerRecomendado = rating
			break
		}
	}

	d.PuntosIluminacionExceden = in.PuntosIluminacion > maxLightingPointsPerCircuit
	d.PuntosTomasExceden = in.PuntosTomacorriente > maxOutletPointsPerCircuit

	return d, nil
}

// ResidentialDemandExecutor adapts ComputeResidentialDemand to the Executor interface
type ResidentialDemandExecutor struct{}

func (ResidentialDemandExecutor) Formula() Formula { return FormulaResidentialDemand }

func (e ResidentialDemandExecutor) Execute(in Inputs) (*Outcome, error) {
	typed, err := decodeResidentialDemand(in)
	if err != nil {
		return nil, newComputationError(e.Formula(), "invalid inputs", err)
	}

	d, err := ComputeResidentialDemand(typed)
	if err != nil {
		return nil, err
	}

	out := &Outcome{
		Primary: Metric{Label: "Demanda Total", Value: Number(round(d.DemandaTotal, 0)), Unit: "W"},
		Secondary: []Metric{
			{Label: "Corriente Total", Value: Number(d.CorrienteTotal), Unit: "A"},
			{Label: "Tipo de Vivienda", Value: Text(d.TipoVivienda)},
			{Label: "Factor de Demanda Iluminación", Value: Number(d.FdIluminacion)},
			{Label: "Factor de Demanda Tomacorrientes", Value: Number(d.FdTomacorrientes)},
			{Label: "Factor de Demanda Cargas Especiales", Value: Number(d.FdCargasEspeciales)},
			{Label: "Potencia Iluminación", Value: Number(round(d.PotenciaIluminacion, 0)), Unit: "W"},
			{Label: "Demanda Iluminación", Value: Number(round(d.DemandaIluminacion, 0)), Unit: "W"},
			{Label: "Potencia Tomacorrientes", Value: Number(round(d.PotenciaTomacorrientes, 0)), Unit: "W"},
			{Label: "Demanda Tomacorrientes", Value: Number(round(d.DemandaTomacorrientes, 0)), Unit: "W"},
			{Label: "Demanda Cargas Especiales", Value: Number(round(d.DemandaCargasEspeciales, 0)), Unit: "W"},
		},
		Compliance: Compliance{IsCompliant: true},
	}

	notes := []string{
		fmt.Sprintf("Vivienda %s (%s m²): factores de demanda %s para iluminación y %s para tomacorrientes.",
			d.TipoVivienda, formatNumber(typed.AreaVivienda), formatNumber(d.FdIluminacion), formatNumber(d.FdTomacorrientes)),
		fmt.Sprintf("Factor de demanda de cargas especiales: %s.", formatNumber(d.FdCargasEspeciales)),
	}

	if d.BreakerRecomendado > 0 {
		out.Secondary = append(out.Secondary,
			Metric{Label: "Breaker Principal Recomendado", Value: Number(d.BreakerRecomendado), Unit: "A"})
		notes = append(notes, fmt.Sprintf("Breaker principal recomendado: %s A.", formatNumber(d.BreakerRecomendado)))
	} else {
		out.Compliance.IsCompliant = false
		notes = append(notes, fmt.Sprintf("La corriente de %s A excede la acometida residencial de %s A; requiere estudio de carga.",
			formatNumber(d.CorrienteTotal), formatNumber(standardBreakers[len(standardBreakers)-1])))
	}
	if d.PuntosIluminacionExceden {
		out.Compliance.IsCompliant = false
		notes = append(notes, fmt.Sprintf("Los circuitos de iluminación superan %d puntos por circuito.", maxLightingPointsPerCircuit))
	}
	if d.PuntosTomasExceden {
		out.Compliance.IsCompliant = false
		notes = append(notes, fmt.Sprintf("Los circuitos de tomacorrientes superan %d puntos por circuito.", maxOutletPointsPerCircuit))
	}
	out.Compliance.Notes = notes

	return out, nil
}

func decodeResidentialDemand(in Inputs) (ResidentialDemandInput, error) {
	var typed ResidentialDemandInput
	fields := []struct {
		name     string
		dst      *float64
		optional bool
	}{
		{"areaVivienda", &typed.AreaVivienda, false},
		{"circuitosIluminacion", &typed.CircuitosIluminacion, false},
		{"puntosIluminacion", &typed.PuntosIluminacion, false},
		{"circuitosTomacorrientes", &typed.CircuitosTomacorrientes, false},
		{"puntosTomacorriente", &typed.PuntosTomacorriente, false},
		{"cantidadCargasEspeciales", &typed.CantidadCargasEspeciales, true},
		{"sumaCargasEspeciales", &typed.SumaCargasEspeciales, true},
		{"voltajeNominal", &typed.VoltajeNominal, false},
	}
	for _, f := range fields {
		if f.optional {
			v, _, err := in.OptionalNumber(f.name)
			if err != nil {
				return typed, err
			}
			*f.dst = v
			continue
		}
		v, err := in.Number(f.name)
		if err != nil {
			return typed, err
		}
		*f.dst = v
	}
	return typed, nil
}
