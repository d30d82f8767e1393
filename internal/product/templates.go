package product

import "github.com/couchcryptid/quake-catalog-loader/internal/domain"

// Namespace URIs declared on the document root.
const (
	NamespaceQuakeML = "http://quakeml.org/xmlns/quakeml/1.2"
	NamespaceBED     = "http://quakeml.org/xmlns/bed/1.2"
	NamespaceCatalog = "http://anss.org/xmlns/catalog/0.1"
	NamespaceTensor  = "http://anss.org/xmlns/tensor/0.1"
)

// namespaces is the fixed prefix table, in declaration order. An empty
// prefix is the default namespace.
var namespaces = []struct{ prefix, uri string }{
	{"q", NamespaceQuakeML},
	{"", NamespaceBED},
	{"catalog", NamespaceCatalog},
	{"tensor", NamespaceTensor},
}

func anssID(kind string, parts ...any) []any {
	return append([]any{"quakeml:", FieldContributor, ".anss.org/" + kind + "/"}, parts...)
}

func originID() []any { return anssID("origin", FieldID) }

func magnitudeID() []any { return anssID("magnitude", FieldID, "/", FieldMagID) }

func focalMechanismID() []any { return anssID("focalmechanism", FieldID, "/", FieldMethod) }

func triggerOriginID() []any {
	return []any{"quakeml:", FieldTriggerSource, ".anss.org/origin/", FieldTriggerID}
}

// catalogAttrs adds the ANSS catalog extension attributes used by the
// distribution network to link products to events.
func catalogAttrs(n *Node) *Node {
	return n.
		WithAttr("catalog:datasource", FieldContributor).
		WithAttr("catalog:dataid", FieldID).
		WithAttr("catalog:eventsource", FieldSource).
		WithAttr("catalog:eventid", FieldCode)
}

func creationInfo() *Node {
	return E("creationInfo",
		E("agencyID").WithText(FieldAgency),
		E("author").WithText(FieldAuthor),
		E("creationTime").WithText(FieldCreationTime),
	)
}

func quantity(name string, f Field) *Node {
	return E(name, E("value").WithText(f).Require())
}

func origin() *Node {
	return catalogAttrs(E("origin",
		quantity("time", FieldTime),
		quantity("longitude", FieldLon),
		quantity("latitude", FieldLat),
		E("depth",
			E("value").WithText(FieldDepth).Require(),
			E("uncertainty").WithText(FieldDepthError),
		),
		E("originUncertainty",
			E("horizontalUncertainty").WithText(FieldHorizontalError),
		),
		E("quality",
			E("usedStationCount").WithText(FieldNumStations),
			E("azimuthalGap").WithText(FieldGap),
		),
		E("evaluationMode").WithText(FieldEvalMode),
		E("evaluationStatus").WithText(FieldEvalStatus),
		creationInfo(),
	)).WithAttr("publicID", originID()...).Require()
}

// triggerOrigin describes the catalog origin a contribution was linked to.
// Every field is a trigger field, so it disappears for unassociated events.
func triggerOrigin() *Node {
	return E("origin",
		E("time", E("value").WithText(FieldTriggerTime)),
		E("longitude", E("value").WithText(FieldTriggerLon)),
		E("latitude", E("value").WithText(FieldTriggerLat)),
		E("depth", E("value").WithText(FieldTriggerDepth)),
	).WithAttr("publicID", triggerOriginID()...)
}

func magnitudeNode() *Node {
	return catalogAttrs(E("magnitude",
		E("mag", E("value").WithText(FieldMag).Require()),
		E("type").WithText(FieldMagType).Require(),
		E("originID").WithText(originID()...),
		E("evaluationMode").WithText(FieldMagMode),
		E("evaluationStatus").WithText(FieldMagStatus),
		E("creationInfo",
			E("agencyID").WithText(FieldMagSource),
			E("creationTime").WithText(FieldCreationTime),
		),
	)).WithAttr("publicID", magnitudeID()...).EachMagnitude()
}

func nodalPlane(name string, strike, dip, rake Field) *Node {
	return E(name, quantity("strike", strike), quantity("dip", dip), quantity("rake", rake))
}

func principalAxis(name string, azimuth, plunge, length Field) *Node {
	return E(name,
		E("azimuth", E("value").WithText(azimuth)),
		E("plunge", E("value").WithText(plunge)),
		E("length", E("value").WithText(length)),
	)
}

func momentTensor() *Node {
	return E("momentTensor",
		E("derivedOriginID").WithText(originID()...).Require(),
		E("momentMagnitudeID").WithText(FieldPreferredMagnitude),
		quantity("scalarMoment", FieldMoment),
		E("tensor",
			quantity("Mrr", FieldMrr),
			quantity("Mtt", FieldMtt),
			quantity("Mpp", FieldMpp),
			quantity("Mrt", FieldMrt),
			quantity("Mrp", FieldMrp),
			quantity("Mtp", FieldMtp),
		).Require(),
		E("methodID").WithText("smi:", FieldContributor, ".anss.org/momentTensor/", FieldMethod),
		creationInfo(),
	).WithAttr("publicID", anssID("momenttensor", FieldID, "/", FieldMethod)...).Require()
}

func focalMechanism(withTensor bool) *Node {
	fm := E("focalMechanism",
		E("triggeringOriginID").WithText(triggerOriginID()...),
		E("nodalPlanes",
			nodalPlane("nodalPlane1", FieldNP1Strike, FieldNP1Dip, FieldNP1Rake).Require(),
			nodalPlane("nodalPlane2", FieldNP2Strike, FieldNP2Dip, FieldNP2Rake),
		).WithAttr("preferredPlane", "1").Require(),
		E("principalAxes",
			principalAxis("tAxis", FieldTAzimuth, FieldTPlunge, FieldTValue),
			principalAxis("pAxis", FieldPAzimuth, FieldPPlunge, FieldPValue),
			principalAxis("nAxis", FieldNAzimuth, FieldNPlunge, FieldNValue),
		),
		E("evaluationMode").WithText(FieldEvalMode),
		E("evaluationStatus").WithText(FieldEvalStatus),
	)
	if withTensor {
		fm.Children = append(fm.Children, momentTensor())
	}
	fm.Children = append(fm.Children, creationInfo())
	return catalogAttrs(fm).WithAttr("publicID", focalMechanismID()...).Require()
}

// Template returns the document tree for a product type.
func Template(pt domain.ProductType) *Node {
	contribution := pt.RequiresAssociation()

	ev := E("event",
		E("preferredOriginID").WithText(originID()...).Require(),
		E("preferredMagnitudeID").WithText(FieldPreferredMagnitude).Require(),
	)
	if contribution {
		ev.Children = append(ev.Children, E("preferredFocalMechanismID").WithText(focalMechanismID()...).Require())
	}
	ev.Children = append(ev.Children,
		E("type").WithText("earthquake"),
		creationInfo(),
		origin(),
	)
	if contribution {
		ev.Children = append(ev.Children, triggerOrigin())
	}
	ev.Children = append(ev.Children, magnitudeNode())
	if contribution {
		ev.Children = append(ev.Children, focalMechanism(pt == domain.ProductMomentTensor))
	}
	ev = ev.
		WithAttr("catalog:datasource", FieldContributor).
		WithAttr("catalog:eventsource", FieldSource).
		WithAttr("catalog:eventid", FieldCode).
		WithAttr("publicID", anssID("event", FieldID)...).
		Require()

	return E("q:quakeml",
		E("eventParameters", ev, creationInfo()).
			WithAttr("publicID", anssID("eventparameters", FieldID, "/", FieldVersion)...).
			Require(),
	).Require()
}

// TemplateFields lists the field names a product type's template references,
// split by whether a missing value fails the render.
func TemplateFields(pt domain.ProductType) (required, optional []string) {
	req := make(map[Field]bool)
	all := make(map[Field]bool)
	Template(pt).Walk(func(n *Node) {
		refs := n.Text.Fields()
		for _, a := range n.Attrs {
			refs = append(refs, a.Value.Fields()...)
		}
		for _, f := range refs {
			all[f] = true
			if n.Required {
				req[f] = true
			}
		}
	})

	for f := Field(0); f < fieldCount; f++ {
		switch {
		case f == FieldPreferredMagnitude:
		case req[f]:
			required = append(required, f.String())
		case all[f]:
			optional = append(optional, f.String())
		}
	}
	return required, optional
}
