// Package catalog - Built-in default data set
// One generic template prices every pool shape. It only references the
// derived names below; each shape's variable definitions map its own
// dimensions onto those names. Served when the repository has nothing
// or cannot be reached.
package catalog

import (
	"fmt"

	"github.com/shopspring/decimal"

	"pool-boq/core/types"
)

// TemplateVersion is the version stamped on the built-in template
const TemplateVersion = 1

// Derived names every shape's variable set defines
const (
	Surface           = "surface"
	Perimeter         = "perimeter"
	WallArea          = "wall_area"
	Volume            = "volume"
	LinerArea         = "liner_area"
	ExcavationSurface = "excavation_surface"
	ExcavationVolume  = "excavation_volume"
	ConcreteVolume    = "concrete_volume"
	TurnoverRate      = "turnover_rate"
)

// DerivedNames lists the names the generic template may reference
func DerivedNames() []string {
	return []string{
		Surface, Perimeter, WallArea, Volume, LinerArea,
		ExcavationSurface, ExcavationVolume, ConcreteVolume, TurnoverRate,
	}
}

// Defaults returns the built-in template, variables and price list for shape
func Defaults(shape types.Shape) (types.Template, []types.VariableDefinition, []types.PriceListEntry, error) {
	vars, err := Variables(shape)
	if err != nil {
		return types.Template{}, nil, nil, err
	}
	return Template(shape), vars, PriceList(), nil
}

// Variables returns the built-in variable definitions for shape
func Variables(shape types.Shape) ([]types.VariableDefinition, error) {
	var footprint []types.VariableDefinition
	switch shape {
	case types.ShapeRectangular:
		footprint = []types.VariableDefinition{
			variable(shape, Surface, "length * width", 10, "Water surface (m2)"),
			variable(shape, Perimeter, "2 * (length + width)", 10, "Waterline perimeter (ml)"),
		}
	case types.ShapeLShaped:
		footprint = []types.VariableDefinition{
			variable(shape, "surface_a", "length_la * width_la", 5, "Arm A surface (m2)"),
			variable(shape, "surface_b", "length_lb * width_lb", 5, "Arm B surface (m2)"),
			variable(shape, Surface, "surface_a + surface_b", 10, "Water surface (m2)"),
			variable(shape, Perimeter, "2 * (length_la + width_la) + 2 * length_lb", 10, "Waterline perimeter (ml)"),
		}
	case types.ShapeTShaped:
		footprint = []types.VariableDefinition{
			variable(shape, "surface_a", "length_ta * width_ta", 5, "Bar surface (m2)"),
			variable(shape, "surface_b", "length_tb * width_tb", 5, "Stem surface (m2)"),
			variable(shape, Surface, "surface_a + surface_b", 10, "Water surface (m2)"),
			variable(shape, Perimeter, "2 * (length_ta + width_ta) + 2 * length_tb", 10, "Waterline perimeter (ml)"),
		}
	default:
		return nil, fmt.Errorf("no default variables for shape %q", shape)
	}

	common := []types.VariableDefinition{
		variable(shape, WallArea, "perimeter * depth", 20, "Wall area (m2)"),
		variable(shape, Volume, "surface * depth", 20, "Water volume (m3)"),
		variable(shape, LinerArea, "surface + wall_area", 30, "Liner area before waste (m2)"),
		// 0.6 m working space all around the shell
		variable(shape, ExcavationSurface, "surface + perimeter * 0.6 + 1.44", 30, "Excavated footprint (m2)"),
		variable(shape, ExcavationVolume, "excavation_surface * (depth + 0.3)", 40, "Excavated volume (m3)"),
		variable(shape, ConcreteVolume, "surface * 0.15 + wall_area * 0.2", 40, "Slab and wall concrete (m3)"),
		variable(shape, TurnoverRate, "CEIL(volume / 4)", 40, "Filtration flow for a 4 h turnover (m3/h)"),
	}
	return append(footprint, common...), nil
}

// Template returns the generic template stamped with shape
func Template(shape types.Shape) types.Template {
	return types.Template{
		ID:      "default-" + string(shape),
		Name:    "Default pool BOQ",
		Shape:   shape,
		Version: TemplateVersion,
		Categories: []types.Category{
			{
				ID: "earthworks", Name: "Earthworks", DisplayOrder: 10,
				Lines: []types.Line{
					priced("earthworks.excavation", "Mechanical excavation", "m3", "excavation_volume", "EXCAVATION_M3", "25", 10),
					priced("earthworks.spoil", "Spoil removal (bulking 1.25)", "m3", "excavation_volume * 1.25", "SPOIL_REMOVAL_M3", "25", 20),
					priced("earthworks.backfill", "Gravel backfill", "m3", "(excavation_volume - volume) * 0.5", "GRAVEL_M3", "25", 30),
				},
			},
			{
				ID: "structure", Name: "Structure", DisplayOrder: 20,
				Lines: []types.Line{
					priced("structure.blinding", "Blinding concrete 5 cm", "m3", "surface * 0.05", "CONCRETE_C16_M3", "30", 10),
					priced("structure.slab", "Reinforced floor slab", "m3", "surface * 0.15", "CONCRETE_C25_M3", "30", 20),
				},
				Subcategories: []types.Subcategory{
					{
						ID: "structure.walls", Name: "Walls", DisplayOrder: 30,
						Lines: []types.Line{
							priced("structure.walls.blocks", "Shuttering blocks", "m2", "wall_area", "BLOCK_WALL_M2", "30", 10),
							priced("structure.walls.fill", "Block infill concrete", "m3", "wall_area * 0.2", "CONCRETE_C25_M3", "30", 20),
							priced("structure.walls.rebar", "Reinforcement steel", "kg", "concrete_volume * 80", "REBAR_KG", "30", 30),
						},
					},
				},
			},
			{
				ID: "finishing", Name: "Waterproofing and finishing", DisplayOrder: 30,
				Lines: []types.Line{
					priced("finishing.liner", "75/100 reinforced liner (10% waste)", "m2", "CEIL(liner_area * 1.1)", "LINER_75_M2", "35", 10),
					priced("finishing.coping", "Coping stones", "ml", "CEIL(perimeter)", "COPING_ML", "35", 20),
					priced("finishing.beach", "Paved beach 1 m wide", "m2", "perimeter + 4", "PAVING_M2", "35", 30),
				},
			},
			{
				ID: "filtration", Name: "Filtration", DisplayOrder: 40,
				Lines: []types.Line{
					{
						ID:              "filtration.kit",
						Description:     "Sand filter and pump sized to the turnover rate",
						QuantityFormula: "1",
						Unit:            "u",
						UnitCostFormula: "650 + turnover_rate * 85",
						MarginPercent:   decimal.NewFromInt(30),
						DisplayOrder:    10,
					},
					priced("filtration.pipework", "PVC pressure pipe 50 mm", "ml", "perimeter + 12", "PVC_PIPE_50_ML", "30", 20),
					priced("filtration.fittings", "Skimmers, returns and main drain", "u", "CEIL(surface / 25) + 3", "FITTING_U", "30", 30),
				},
			},
			{
				ID: "labour", Name: "Labour", DisplayOrder: 50,
				Lines: []types.Line{
					priced("labour.crew", "Installation crew", "day", "CEIL(surface / 8) + 4", "LABOUR_DAY", "20", 10),
					{
						ID:            "labour.commissioning",
						Description:   "Filling, start-up and handover",
						Quantity:      decimal.NewFromInt(1),
						Unit:          "forfait",
						UnitCostHT:    decimal.NewFromInt(450),
						MarginPercent: decimal.NewFromInt(20),
						DisplayOrder:  20,
					},
				},
			},
			{
				ID: "heating", Name: "Heat pump", IsOption: true, DisplayOrder: 60,
				Lines: []types.Line{
					{
						ID:              "heating.pump",
						Description:     "Inverter heat pump sized to the water volume",
						QuantityFormula: "1",
						Unit:            "u",
						UnitCostFormula: "1800 + volume * 22",
						MarginPercent:   decimal.NewFromInt(25),
						DisplayOrder:    10,
					},
				},
			},
			{
				ID: "lighting", Name: "LED lighting", IsOption: true, DisplayOrder: 70,
				Lines: []types.Line{
					priced("lighting.projectors", "LED projectors, one per 8 ml", "u", "CEIL(perimeter / 8)", "LED_PROJECTOR_U", "40", 10),
				},
			},
			{
				ID: "cover", Name: "Automatic cover", IsOption: true, DisplayOrder: 80,
				Lines: []types.Line{
					priced("cover.slatted", "Slatted automatic cover", "m2", "CEIL(surface)", "COVER_M2", "25", 10),
				},
			},
		},
	}
}

// PriceList returns the built-in unit prices, excluding tax
func PriceList() []types.PriceListEntry {
	return []types.PriceListEntry{
		price("EXCAVATION_M3", "Mechanical excavation", "m3", "28"),
		price("SPOIL_REMOVAL_M3", "Spoil removal and disposal", "m3", "22"),
		price("GRAVEL_M3", "Gravel 20/40", "m3", "45"),
		price("CONCRETE_C16_M3", "Concrete C16/20", "m3", "115"),
		price("CONCRETE_C25_M3", "Concrete C25/30", "m3", "135"),
		price("BLOCK_WALL_M2", "Shuttering blocks 20 cm", "m2", "38"),
		price("REBAR_KG", "Reinforcement steel", "kg", "1.45"),
		price("LINER_75_M2", "Reinforced liner 75/100", "m2", "42"),
		price("COPING_ML", "Coping stone", "ml", "55"),
		price("PAVING_M2", "Paving slabs", "m2", "48"),
		price("PVC_PIPE_50_ML", "PVC pressure pipe 50 mm", "ml", "6.5"),
		price("FITTING_U", "Pool fitting", "u", "65"),
		price("LABOUR_DAY", "Installation crew day", "day", "520"),
		price("LED_PROJECTOR_U", "LED projector", "u", "290"),
		price("COVER_M2", "Slatted cover", "m2", "310"),
	}
}

func variable(shape types.Shape, name, formula string, order int, description string) types.VariableDefinition {
	return types.VariableDefinition{
		ID:              string(shape) + "." + name,
		Name:            name,
		Formula:         formula,
		EvaluationOrder: order,
		Description:     description,
	}
}

func priced(id, description, unit, quantity, reference, margin string, order int) types.Line {
	return types.Line{
		ID:                 id,
		Description:        description,
		QuantityFormula:    quantity,
		Unit:               unit,
		PriceListReference: reference,
		MarginPercent:      decimal.RequireFromString(margin),
		DisplayOrder:       order,
	}
}

func price(reference, label, unit, amount string) types.PriceListEntry {
	return types.PriceListEntry{
		Reference:   reference,
		Label:       label,
		Unit:        unit,
		UnitPriceHT: decimal.RequireFromString(amount),
	}
}
