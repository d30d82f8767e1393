package domain

import (
	"fmt"
	"strings"
)

// ProductType selects the document kind produced for each event.
type ProductType string

const (
	ProductOrigin         ProductType = "origin"
	ProductMomentTensor   ProductType = "moment-tensor"
	ProductFocalMechanism ProductType = "focal-mechanism"
)

// DefaultMomentMethod is the magnitude scale given to magnitudes computed from a scalar moment.
const DefaultMomentMethod = "Mwc"

// ProductTypes lists every supported product type in display order.
func ProductTypes() []ProductType {
	return []ProductType{ProductOrigin, ProductMomentTensor, ProductFocalMechanism}
}

// ParseProductType resolves a product type name, case-insensitively.
func ParseProductType(s string) (ProductType, error) {
	for _, pt := range ProductTypes() {
		if strings.EqualFold(strings.TrimSpace(s), string(pt)) {
			return pt, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownProductType, s)
}

// RequiresAssociation reports whether products of this type must be linked
// to an existing catalog origin.
func (p ProductType) RequiresAssociation() bool {
	return p == ProductMomentTensor || p == ProductFocalMechanism
}

// Description is a one-line summary used by the types listing.
func (p ProductType) Description() string {
	switch p {
	case ProductOrigin:
		return "standalone hypocenter and magnitudes"
	case ProductMomentTensor:
		return "moment tensor solution linked to an existing origin"
	case ProductFocalMechanism:
		return "nodal planes linked to an existing origin"
	default:
		return ""
	}
}

// RequiredFields names the input fields a record needs for this product type.
func (p ProductType) RequiredFields() []string {
	base := []string{"id", "time", "lat", "lon", "depth"}
	switch p {
	case ProductMomentTensor:
		return append(base, "mrr", "mtt", "mpp", "mrt", "mrp", "mtp")
	case ProductFocalMechanism:
		return append(base, "magnitudes", "np1.strike", "np1.dip", "np1.rake")
	default:
		return append(base, "magnitudes")
	}
}
