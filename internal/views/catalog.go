package views

import (
	"fmt"

	"github.com/hippocampushub/hubportal/internal/fetch"
	"github.com/hippocampushub/hubportal/internal/index"
	"github.com/hippocampushub/hubportal/internal/resolve"
	"github.com/hippocampushub/hubportal/pkg/payload"
	"github.com/hippocampushub/hubportal/pkg/selection"
)

// View names
const (
	Neurons                 = "digital-reconstructions/neurons"
	ConnectionAnatomy       = "digital-reconstructions/connection-anatomy"
	ConnectionPhysiology    = "digital-reconstructions/connection-physiology"
	SchafferCollaterals     = "digital-reconstructions/schaffer-collaterals"
	Region                  = "digital-reconstructions/region"
	AcetylcholineOnCell     = "digital-reconstructions/acetylcholine-effects-on-cell"
	CellComposition         = "reconstruction-data/cell-composition"
	MorphologyLibrary       = "reconstruction-data/morphology-library"
	NeuronModelLibrary      = "reconstruction-data/neuron-model-library"
	NeuronMorphology        = "experimental-data/neuron-morphology"
	NeuronElectrophysiology = "experimental-data/neuron-electrophysiology"
	LayerAnatomy            = "experimental-data/layer-anatomy"
)

// Fixed option lists
var (
	Layers         = []string{"SLM", "SR", "SP", "SO"}
	VolumeSections = []string{"region", "slice", "cylinder"}
	CellGroups     = []string{"ALL", "SLM", "SO", "SP_Int", "SP_PC", "SR"}
)

// Index dataset names and the attributes every record must carry
const (
	ModelsIndex       = "models"
	MorphologiesIndex = "morphologies"
	TracesIndex       = "traces"
)

// RequiredAttrs lists the attributes each index dataset is validated against
var RequiredAttrs = map[string][]string{
	ModelsIndex:       {"layer", "mtype", "etype", "name"},
	MorphologiesIndex: {"layer", "mtype", "name"},
	TracesIndex:       {"etype", "name"},
}

// Indexes are the static datasets the built-in views draw options from
type Indexes struct {
	Models       *index.Index
	Morphologies *index.Index
	Traces       *index.Index
}

var (
	anatomyPlotIDs = []string{
		"bouton-density",
		"sample-convergence-by-connection",
		"sample-convergence-by-synapse",
		"sample-divergence-by-connection",
		"sample-divergence-by-synapse",
		"connection-probability-vs-inter-somatic-distance",
	}

	physiologyPlotIDs = []string{
		"psp-amplitude",
		"psp-cv",
		"synapse-latency",
		"synapse-latency-from-simulation",
		"rise-time-constant",
		"decay-time-constant",
		"decay-time-constant-from-sumluation",
		"nmda-ampa-ratio",
		"u-parameter",
		"d-parameter",
		"f-parameter",
		"nrrp-parameter",
		"g-synx",
	}

	schafferPlotIDs = []string{
		"synapses-per-connection",
		"sample-divergence-by-connection",
		"sample-divergence-by-synapse",
		"sample-convergence-by-connection",
		"sample-convergence-by-synapse",
		"psp-amplitude",
		"psp-cv",
		"synapse-latency",
		"synapse-latency-for-simulation",
		"rise-time-constant-for-simulation",
		"decay-time-constant",
		"nmda-ampa-ratio",
		"u-parameter",
		"d-parameter",
		"g-synx",
		"nrrp-parameter",
	}
)

// Builtin returns the catalog of portal views backed by idx
func Builtin(idx Indexes) (*Catalog, error) {
	if idx.Models == nil || idx.Morphologies == nil || idx.Traces == nil {
		return nil, fmt.Errorf("views: models, morphologies and traces indexes are required")
	}

	builders := []func(Indexes) (*View, error){
		neuronsView,
		connectionAnatomyView,
		connectionPhysiologyView,
		schafferCollateralsView,
		regionView,
		acetylcholineOnCellView,
		cellCompositionView,
		morphologyLibraryView,
		neuronModelLibraryView,
		neuronMorphologyView,
		neuronElectrophysiologyView,
		layerAnatomyView,
	}

	all := make([]*View, 0, len(builders))
	for _, build := range builders {
		v, err := build(idx)
		if err != nil {
			return nil, err
		}
		all = append(all, v)
	}
	return NewCatalog(all...)
}

func neuronsView(idx Indexes) (*View, error) {
	order := selection.MustOrder("layer", "mtype", "etype", "instance")
	r, err := resolve.New(order, map[string]resolve.Provider{
		"layer":    resolve.Fixed(Layers...),
		"mtype":    resolve.FromIndex(idx.Models, "mtype"),
		"etype":    resolve.FromIndex(idx.Models, "etype"),
		"instance": resolve.FromIndex(idx.Models, "name"),
	})
	if err != nil {
		return nil, err
	}

	return &View{
		Name:     Neurons,
		Title:    "Neurons",
		Order:    order,
		Resolver: r,
		Preselection: selection.Preselection{
			Driving: []string{"layer"},
			Defaults: map[string]string{
				"layer":    "SLM",
				"mtype":    "SLM_PPA",
				"etype":    "bAC",
				"instance": "CA1_int_bAC_011127HP1_20190329115610",
			},
		},
		CompleteAt: "instance",
		Resources: []Resource{
			{
				Name:     "etype-factsheet",
				Template: fetch.MustTemplate("model-info/{instance}/etype_factsheet.json"),
				Kind:     payload.KindFactsheet,
			},
			{
				Name:     "metype-factsheet",
				Template: fetch.MustTemplate("memodel_factsheets/{mtype}/{etype}/CA1/{instance}/me_type_factsheeet.json"),
				Kind:     payload.KindFactsheet,
			},
			{
				Name:     "morphology-factsheet",
				Template: fetch.MustTemplate("exp-morphologies/factsheets/{instance|morphology}/morphology_factsheeet.json"),
				Kind:     payload.KindFactsheet,
			},
		},
	}, nil
}

// pathwayResolver serves the volume_section -> prelayer -> postlayer views
func pathwayResolver(order selection.Order, prelayers []string) (*resolve.Resolver, error) {
	return resolve.New(order, map[string]resolve.Provider{
		"volume_section": resolve.Fixed(VolumeSections...),
		"prelayer":       resolve.Fixed(prelayers...),
		"postlayer":      resolve.Fixed(CellGroups...),
	})
}

func pathwayPreselection(prelayer string) selection.Preselection {
	return selection.Preselection{
		Driving: []string{"volume_section", "prelayer", "postlayer"},
		Defaults: map[string]string{
			"volume_section": "region",
			"prelayer":       prelayer,
			"postlayer":      "SP_PC",
		},
	}
}

func connectionAnatomyView(Indexes) (*View, error) {
	order := selection.MustOrder("volume_section", "prelayer", "postlayer")
	r, err := pathwayResolver(order, CellGroups)
	if err != nil {
		return nil, err
	}

	const base = "3_digital-reconstruction/connection-anatomy/{volume_section}/{prelayer}-{postlayer}/"
	return &View{
		Name:         ConnectionAnatomy,
		Title:        "Connection anatomy",
		Order:        order,
		Resolver:     r,
		Preselection: pathwayPreselection("SP_PC"),
		CompleteAt:   "postlayer",
		Resources: []Resource{
			{
				Name:     "distribution-plots",
				Template: fetch.MustTemplate(base + "distribution-plots.json"),
				Kind:     payload.KindBundle,
				PlotIDs:  anatomyPlotIDs,
				Gate:     GatePresence,
			},
			{
				Name:     "connections",
				Template: fetch.MustTemplate(base + "Connections.json"),
				Kind:     payload.KindBundle,
				Laminar:  true,
			},
		},
	}, nil
}

func connectionPhysiologyView(Indexes) (*View, error) {
	order := selection.MustOrder("volume_section", "prelayer", "postlayer")
	r, err := pathwayResolver(order, CellGroups)
	if err != nil {
		return nil, err
	}

	return &View{
		Name:         ConnectionPhysiology,
		Title:        "Connection physiology",
		Order:        order,
		Resolver:     r,
		Preselection: pathwayPreselection("SP_PC"),
		CompleteAt:   "postlayer",
		Resources: []Resource{
			{
				Name:     "distribution-plots",
				Template: fetch.MustTemplate("3_digital-reconstruction/connection-physiology/{volume_section}/{prelayer}-{postlayer}/distribution-plots.json"),
				Kind:     payload.KindBundle,
				PlotIDs:  physiologyPlotIDs,
				Gate:     GatePresence,
			},
		},
	}, nil
}

func schafferCollateralsView(Indexes) (*View, error) {
	order := selection.MustOrder("volume_section", "prelayer", "postlayer")
	r, err := pathwayResolver(order, []string{"SC"})
	if err != nil {
		return nil, err
	}

	// the files are stored under the aggregated "All" presynaptic group
	const base = "3_digital-reconstruction/schaffer-collaterals/{volume_section}/All-{postlayer}/"
	return &View{
		Name:         SchafferCollaterals,
		Title:        "Schaffer collaterals",
		Order:        order,
		Resolver:     r,
		Preselection: pathwayPreselection("SC"),
		CompleteAt:   "postlayer",
		Resources: []Resource{
			{
				Name:     "distribution-plots",
				Template: fetch.MustTemplate(base + "distribution-plots.json"),
				Kind:     payload.KindBundle,
				PlotIDs:  schafferPlotIDs,
				Gate:     GatePresence,
			},
			{
				Name:     "trace",
				Template: fetch.MustTemplate(base + "trace.json"),
				Kind:     payload.KindDocument,
			},
			{
				Name:     "schaffer-collaterals",
				Template: fetch.MustTemplate(base + "schaffer-collaterals.json"),
				Kind:     payload.KindBundle,
				PlotIDs:  schafferPlotIDs,
				Gate:     GateMeanStd,
				Laminar:  true,
			},
		},
	}, nil
}

func regionView(Indexes) (*View, error) {
	order := selection.MustOrder("volume_section")
	r, err := resolve.New(order, map[string]resolve.Provider{
		"volume_section": resolve.Fixed(VolumeSections...),
	})
	if err != nil {
		return nil, err
	}

	return &View{
		Name:     Region,
		Title:    "Region",
		Order:    order,
		Resolver: r,
		Preselection: selection.Preselection{
			Driving:  []string{"volume_section"},
			Defaults: map[string]string{"volume_section": "region"},
		},
		CompleteAt: "volume_section",
		Resources: []Resource{
			{
				Name:     "factsheet",
				Template: fetch.MustTemplate("dig-rec/region/{volume_section}/factsheet.json"),
				Kind:     payload.KindFactsheet,
			},
		},
	}, nil
}

func acetylcholineOnCellView(idx Indexes) (*View, error) {
	order := selection.MustOrder("mtype", "etype", "morphology")
	r, err := resolve.New(order, map[string]resolve.Provider{
		"mtype":      resolve.FromIndex(idx.Models, "mtype"),
		"etype":      resolve.FromIndex(idx.Models, "etype"),
		"morphology": resolve.FromIndex(idx.Models, "morphology"),
	})
	if err != nil {
		return nil, err
	}

	return &View{
		Name:     AcetylcholineOnCell,
		Title:    "Acetylcholine effects on cell",
		Order:    order,
		Resolver: r,
		Preselection: selection.Preselection{
			Driving: []string{"mtype"},
			Defaults: map[string]string{
				"mtype":      "SLM_PPA",
				"etype":      "bAC",
				"morphology": "011127HP1",
			},
		},
		CompleteAt: "morphology",
		Resources: []Resource{
			// the directory name is misspelled in the published data
			{
				Name:     "trace",
				Template: fetch.MustTemplate("3_digital-reconstruction/acteylcholine-effect-on-cells/{mtype}/{etype}/{morphology}/trace.json"),
				Kind:     payload.KindDocument,
			},
		},
	}, nil
}

func cellCompositionView(Indexes) (*View, error) {
	order := selection.MustOrder("volume_section")
	r, err := resolve.New(order, map[string]resolve.Provider{
		"volume_section": resolve.Fixed(VolumeSections...),
	})
	if err != nil {
		return nil, err
	}

	return &View{
		Name:     CellComposition,
		Title:    "Cell composition",
		Order:    order,
		Resolver: r,
		Preselection: selection.Preselection{
			Driving:  []string{"volume_section"},
			Defaults: map[string]string{"volume_section": "region"},
		},
		CompleteAt: "volume_section",
		Resources: []Resource{
			{
				Name:     "cell-composition",
				Template: fetch.MustTemplate("2_reconstruction-data/cell-composition/{volume_section}/cell-composition.json"),
				Kind:     payload.KindDocument,
			},
		},
	}, nil
}

func morphologyLibraryView(idx Indexes) (*View, error) {
	// every library morphology is offered whatever the m-type
	instances := resolve.ProviderFunc(func(string, selection.Key) []string {
		return idx.Morphologies.Options("name")
	})

	order := selection.MustOrder("mtype", "instance")
	r, err := resolve.New(order, map[string]resolve.Provider{
		"mtype":    resolve.FromIndex(idx.Models, "mtype"),
		"instance": instances,
	})
	if err != nil {
		return nil, err
	}

	const base = "2_reconstruction-data/morphology-library/"
	return &View{
		Name:     MorphologyLibrary,
		Title:    "Morphology library",
		Order:    order,
		Resolver: r,
		Preselection: selection.Preselection{
			Driving: []string{"mtype"},
			Defaults: map[string]string{
				"mtype":    "SLM_PPA",
				"instance": "011127HP1",
			},
		},
		CompleteAt: "instance",
		Resources: []Resource{
			{
				Name:     "instance-factsheet",
				Template: fetch.MustTemplate(base + "all/{instance}/factsheet.json"),
				Kind:     payload.KindFactsheet,
			},
			{
				Name:     "mtype-factsheet",
				Template: fetch.MustTemplate(base + "per_mtype/{mtype}/factsheet.json"),
				Kind:     payload.KindFactsheet,
			},
		},
	}, nil
}

func neuronModelLibraryView(idx Indexes) (*View, error) {
	order := selection.MustOrder("mtype", "etype")
	r, err := resolve.New(order, map[string]resolve.Provider{
		"mtype": resolve.FromIndex(idx.Models, "mtype"),
		"etype": resolve.FromIndex(idx.Models, "etype"),
	})
	if err != nil {
		return nil, err
	}

	const base = "2_reconstruction-data/neuron-models-library/{mtype}/{etype}/1/"
	return &View{
		Name:     NeuronModelLibrary,
		Title:    "Neuron model library",
		Order:    order,
		Resolver: r,
		Preselection: selection.Preselection{
			Driving: []string{"mtype"},
			Defaults: map[string]string{
				"mtype": "SLM_PPA",
				"etype": "bAC",
			},
		},
		CompleteAt: "etype",
		Resources: []Resource{
			{
				Name:     "trace",
				Template: fetch.MustTemplate(base + "trace.json"),
				Kind:     payload.KindDocument,
			},
			{
				Name:     "features",
				Template: fetch.MustTemplate(base + "features_with_rheobase.json"),
				Kind:     payload.KindFactsheet,
			},
		},
	}, nil
}

func neuronMorphologyView(idx Indexes) (*View, error) {
	order := selection.MustOrder("layer", "mtype", "instance")
	r, err := resolve.New(order, map[string]resolve.Provider{
		"layer":    resolve.Fixed(Layers...),
		"mtype":    resolve.FromIndex(idx.Morphologies, "mtype"),
		"instance": resolve.FromIndex(idx.Morphologies, "name"),
	})
	if err != nil {
		return nil, err
	}

	const base = "1_experimental-data/neuronal-morphology/"
	return &View{
		Name:     NeuronMorphology,
		Title:    "Neuron morphology",
		Order:    order,
		Resolver: r,
		Preselection: selection.Preselection{
			Driving: []string{"layer"},
			Defaults: map[string]string{
				"layer":    "SLM",
				"mtype":    "SLM_PPA",
				"instance": "011127HP1",
			},
		},
		CompleteAt: "instance",
		Resources: []Resource{
			{
				Name:     "morphology-factsheet",
				Template: fetch.MustTemplate(base + "morphology/{instance}/factsheet.json"),
				Kind:     payload.KindFactsheet,
			},
			{
				Name:     "morphology-distribution-plots",
				Template: fetch.MustTemplate(base + "morphology/{instance}/distribution-plots.json"),
				Kind:     payload.KindBundle,
			},
			{
				Name:     "morphology-table",
				Template: fetch.MustTemplate(base + "morphology/{instance}/table.json"),
				Kind:     payload.KindDocument,
			},
			{
				Name:     "mtype-factsheet",
				Template: fetch.MustTemplate(base + "mtype/{mtype}/factsheet.json"),
				Kind:     payload.KindFactsheet,
			},
			{
				Name:     "mtype-distribution-plots",
				Template: fetch.MustTemplate(base + "mtype/{mtype}/distribution-plots.json"),
				Kind:     payload.KindBundle,
			},
			{
				Name:     "mtype-table",
				Template: fetch.MustTemplate(base + "mtype/{mtype}/table.json"),
				Kind:     payload.KindDocument,
			},
		},
	}, nil
}

func neuronElectrophysiologyView(idx Indexes) (*View, error) {
	order := selection.MustOrder("etype", "etype_instance")
	r, err := resolve.New(order, map[string]resolve.Provider{
		"etype":          resolve.FromIndex(idx.Traces, "etype"),
		"etype_instance": resolve.FromIndex(idx.Traces, "name"),
	})
	if err != nil {
		return nil, err
	}

	return &View{
		Name:     NeuronElectrophysiology,
		Title:    "Neuron electrophysiology",
		Order:    order,
		Resolver: r,
		Preselection: selection.Preselection{
			Driving: []string{"etype"},
			Defaults: map[string]string{
				"etype":          "bAC",
				"etype_instance": "95810035",
			},
		},
		CompleteAt: "etype_instance",
		Resources: []Resource{
			{
				Name:     "trace",
				Template: fetch.MustTemplate("nexus/views/experimental-data/neuron-electrophysiology/by-name/{etype_instance}.json"),
				Kind:     payload.KindDocument,
			},
		},
	}, nil
}

func layerAnatomyView(Indexes) (*View, error) {
	order := selection.MustOrder("layer")
	r, err := resolve.New(order, map[string]resolve.Provider{
		"layer": resolve.Fixed(Layers...),
	})
	if err != nil {
		return nil, err
	}

	return &View{
		Name:     LayerAnatomy,
		Title:    "Layer anatomy",
		Order:    order,
		Resolver: r,
		Preselection: selection.Preselection{
			Driving:  []string{"layer"},
			Defaults: map[string]string{"layer": "SLM"},
		},
		CompleteAt: "layer",
		Resources: []Resource{
			{
				Name:     "layer-factsheet",
				Template: fetch.MustTemplate("1_experimental-data/layer-anatomy/{layer}/factsheet.json"),
				Kind:     payload.KindFactsheet,
			},
		},
	}, nil
}
