// Package domain models seismic events and the products assembled from them.
//
// # Event Model
//
// An [Event] is a located earthquake solution: an identifier, an origin time
// in UTC, a hypocenter, and zero or more magnitude estimates. Depth is carried
// in meters throughout the domain; readers convert from kilometers at the
// boundary. Longitude is normalized to [-180, 180] on admission, so 200
// becomes -160.
//
// Moment-tensor events additionally carry the six independent tensor
// components in the spherical (r, theta, phi) system used by global CMT
// catalogs:
//
//	mrr  radial-radial         mtt  theta-theta     mpp  phi-phi
//	mrt  radial-theta          mrp  radial-phi      mtp  theta-phi
//
// From those components the scalar moment, the principal T/N/P axes, and both
// nodal planes are derived together on admission (see [Decomposer]). They are
// either all present or all absent.
//
// # Products
//
// A [ProductType] selects the kind of document produced for each event:
//
//	origin           standalone location and magnitude
//	moment-tensor    tensor solution associated to an existing origin
//	focal-mechanism  nodal planes associated to an existing origin
//
// Tensor and focal-mechanism products are contributions to events another
// network already located, so they need a [CandidateOrigin] chosen by the
// association stage before they can be linked.
//
// # Proximity Metric
//
// Two solutions are compared with a normalized Euclidean metric:
//
//	metric = sqrt((distance_km / distance_window)^2 + (|dt| / time_window)^2)
//
// With the default windows of 100 km and 16 s, a metric at or below sqrt(2)
// means the two solutions plausibly describe the same earthquake.
package domain
