// Package tensor derives principal axes and nodal planes from a seismic
// moment tensor.
//
// Internally all vectors use a local north-east-down frame. Input tensors use
// the (r, theta, phi) system, where r is up, theta is south and phi is east.
package tensor

import (
	"errors"
	"math"

	"github.com/couchcryptid/quake-catalog-loader/internal/domain"
)

// ErrDegenerate is returned for tensors without a usable double-couple part.
var ErrDegenerate = errors.New("degenerate moment tensor")

const (
	deg = 180 / math.Pi
	rad = math.Pi / 180
)

type vec [3]float64

type mat [3][3]float64

// Decomposer implements domain.Decomposer.
type Decomposer struct{}

// New returns a tensor decomposer.
func New() Decomposer { return Decomposer{} }

// ScalarMoment is the total moment sqrt(sum(Mij^2)/2) in newton-meters.
func ScalarMoment(mt domain.MomentTensor) float64 {
	sum := mt.Mrr*mt.Mrr + mt.Mtt*mt.Mtt + mt.Mpp*mt.Mpp +
		2*(mt.Mrt*mt.Mrt+mt.Mrp*mt.Mrp+mt.Mtp*mt.Mtp)
	return math.Sqrt(sum / 2)
}

// Decompose returns the scalar moment, T/N/P axes and both nodal planes.
func (Decomposer) Decompose(mt domain.MomentTensor) (domain.TensorSolution, error) {
	m0 := ScalarMoment(mt)
	if m0 == 0 || math.IsNaN(m0) || math.IsInf(m0, 0) {
		return domain.TensorSolution{}, ErrDegenerate
	}

	vals, vecs := eigenSym(toNED(mt))
	// eigenSym sorts ascending: P, N, T.
	p, n, t := column(vecs, 0), column(vecs, 1), column(vecs, 2)
	if vals[2]-vals[0] <= 1e-12*m0 {
		return domain.TensorSolution{}, ErrDegenerate
	}

	normal := scale(add(t, p), 1/math.Sqrt2)
	slip := scale(sub(t, p), 1/math.Sqrt2)

	return domain.TensorSolution{
		ScalarMoment: m0,
		Axes: domain.PrincipalAxes{
			T: toAxis(t, vals[2]),
			N: toAxis(n, vals[1]),
			P: toAxis(p, vals[0]),
		},
		NP1: toPlane(normal, slip),
		NP2: toPlane(slip, normal),
	}, nil
}

// AuxiliaryPlane returns the conjugate plane: normal and slip vectors swap roles.
func (Decomposer) AuxiliaryPlane(np domain.NodalPlane) domain.NodalPlane {
	normal, slip := planeVectors(np)
	return toPlane(slip, normal)
}

// toNED rotates an (r, theta, phi) tensor into north-east-down.
func toNED(mt domain.MomentTensor) mat {
	return mat{
		{mt.Mtt, -mt.Mtp, mt.Mrt},
		{-mt.Mtp, mt.Mpp, -mt.Mrp},
		{mt.Mrt, -mt.Mrp, mt.Mrr},
	}
}

// fromNED is the inverse of toNED.
func fromNED(m mat) domain.MomentTensor {
	return domain.MomentTensor{
		Mrr: m[2][2],
		Mtt: m[0][0],
		Mpp: m[1][1],
		Mrt: m[0][2],
		Mrp: -m[1][2],
		Mtp: -m[0][1],
	}
}

// eigenSym diagonalizes a symmetric matrix with cyclic Jacobi rotations.
// Eigenvalues are returned ascending with eigenvectors as matching columns.
func eigenSym(a mat) (vec, mat) {
	v := mat{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}

	for sweep := 0; sweep < 64; sweep++ {
		off := a[0][1]*a[0][1] + a[0][2]*a[0][2] + a[1][2]*a[1][2]
		diag := a[0][0]*a[0][0] + a[1][1]*a[1][1] + a[2][2]*a[2][2]
		if off <= 1e-30*diag || off == 0 {
			break
		}
		for p := 0; p < 2; p++ {
			for q := p + 1; q < 3; q++ {
				if a[p][q] == 0 {
					continue
				}
				theta := (a[q][q] - a[p][p]) / (2 * a[p][q])
				t := 1 / (math.Abs(theta) + math.Sqrt(theta*theta+1))
				if theta < 0 {
					t = -t
				}
				c := 1 / math.Sqrt(t*t+1)
				s := t * c

				for k := 0; k < 3; k++ {
					akp, akq := a[k][p], a[k][q]
					a[k][p] = c*akp - s*akq
					a[k][q] = s*akp + c*akq
				}
				for k := 0; k < 3; k++ {
					apk, aqk := a[p][k], a[q][k]
					a[p][k] = c*apk - s*aqk
					a[q][k] = s*apk + c*aqk
				}
				for k := 0; k < 3; k++ {
					vkp, vkq := v[k][p], v[k][q]
					v[k][p] = c*vkp - s*vkq
					v[k][q] = s*vkp + c*vkq
				}
			}
		}
	}

	vals := vec{a[0][0], a[1][1], a[2][2]}
	// Insertion sort of three columns.
	for i := 1; i < 3; i++ {
		for j := i; j > 0 && vals[j] < vals[j-1]; j-- {
			vals[j], vals[j-1] = vals[j-1], vals[j]
			for k := 0; k < 3; k++ {
				v[k][j], v[k][j-1] = v[k][j-1], v[k][j]
			}
		}
	}
	return vals, v
}

// toAxis converts a NED vector to azimuth and downward plunge in degrees.
func toAxis(v vec, value float64) domain.Axis {
	v = unit(v)
	if v[2] < 0 {
		v = scale(v, -1)
	}
	return domain.Axis{
		Azimuth: wrap360(math.Atan2(v[1], v[0]) * deg),
		Plunge:  math.Asin(clamp(v[2])) * deg,
		Value:   value,
	}
}

// toPlane converts a fault normal and slip vector to strike, dip and rake.
func toPlane(normal, slip vec) domain.NodalPlane {
	normal, slip = unit(normal), unit(slip)
	// Use the upward normal so that dip lies in [0, 90].
	if normal[2] > 0 {
		normal, slip = scale(normal, -1), scale(slip, -1)
	}

	dip := math.Acos(clamp(-normal[2]))
	sinDip := math.Sin(dip)

	var strike float64
	if sinDip > 1e-9 {
		strike = math.Atan2(-normal[0], normal[1])
	}
	cosRake := slip[0]*math.Cos(strike) + slip[1]*math.Sin(strike)
	var sinRake float64
	if sinDip > 1e-9 {
		sinRake = -slip[2] / sinDip
	} else {
		sinRake = slip[0]*math.Sin(strike) - slip[1]*math.Cos(strike)
	}

	return domain.NodalPlane{
		Strike: wrap360(strike * deg),
		Dip:    dip * deg,
		Rake:   math.Atan2(sinRake, cosRake) * deg,
	}
}

// planeVectors returns the upward unit normal and unit slip of a plane.
func planeVectors(np domain.NodalPlane) (normal, slip vec) {
	phi, delta, lambda := np.Strike*rad, np.Dip*rad, np.Rake*rad
	normal = vec{
		-math.Sin(delta) * math.Sin(phi),
		math.Sin(delta) * math.Cos(phi),
		-math.Cos(delta),
	}
	slip = vec{
		math.Cos(lambda)*math.Cos(phi) + math.Cos(delta)*math.Sin(lambda)*math.Sin(phi),
		math.Cos(lambda)*math.Sin(phi) - math.Cos(delta)*math.Sin(lambda)*math.Cos(phi),
		-math.Sin(lambda) * math.Sin(delta),
	}
	return normal, slip
}

// DoubleCouple builds the tensor of a pure double couple on np with scalar moment m0.
func DoubleCouple(np domain.NodalPlane, m0 float64) domain.MomentTensor {
	n, d := planeVectors(np)
	var m mat
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			m[i][j] = m0 * (n[i]*d[j] + d[i]*n[j])
		}
	}
	return fromNED(m)
}

func column(m mat, j int) vec { return vec{m[0][j], m[1][j], m[2][j]} }

func add(a, b vec) vec { return vec{a[0] + b[0], a[1] + b[1], a[2] + b[2]} }

func sub(a, b vec) vec { return vec{a[0] - b[0], a[1] - b[1], a[2] - b[2]} }

func scale(a vec, s float64) vec { return vec{a[0] * s, a[1] * s, a[2] * s} }

func dot(a, b vec) float64 { return a[0]*b[0] + a[1]*b[1] + a[2]*b[2] }

func unit(a vec) vec {
	n := math.Sqrt(dot(a, a))
	if n == 0 {
		return a
	}
	return scale(a, 1/n)
}

func clamp(x float64) float64 { return math.Max(-1, math.Min(1, x)) }

func wrap360(a float64) float64 {
	a = math.Mod(a, 360)
	if a < 0 {
		a += 360
	}
	if a >= 360 {
		a -= 360
	}
	return a
}
