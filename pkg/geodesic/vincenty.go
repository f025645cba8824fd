package geodesic

import (
	"math"

	"github.com/iannil/geofence-engine/pkg/geomath"
)

// ellipsoid holds the semi-major/semi-minor axes and flattening of a
// reference ellipsoid, in metres.
type ellipsoid struct {
	a, b, f float64
}

// WGS84Ellipsoid is the reference ellipsoid used throughout this package.
var WGS84Ellipsoid = ellipsoid{a: 6378137.0, b: 6356752.314245, f: 1 / 298.257223563}

// VincentyProvider implements Provider using Vincenty's direct and inverse
// formulae on an ellipsoidal Earth model. The iterative solution is
// adapted from T Vincenty, "Direct and Inverse Solutions of Geodesics on
// the Ellipsoid with application of nested equations", Survey Review,
// vol XXIII no 176, 1975 — the same algorithm the pack's
// starboard-nz/go-geodesy module implements; see DESIGN.md for why that
// module itself was not added as a dependency.
type VincentyProvider struct {
	Ellipsoid ellipsoid
}

// NewVincentyProvider returns a VincentyProvider on the WGS-84 ellipsoid.
func NewVincentyProvider() VincentyProvider {
	return VincentyProvider{Ellipsoid: WGS84Ellipsoid}
}

const vincentyConvergence = 1e-12
const vincentyMaxIterations = 200

func (v VincentyProvider) Inverse(pLatE9, pLonE9, qLatE9, qLonE9 int64) (int64, error) {
	dist, _, _, err := v.inverse(pLatE9, pLonE9, qLatE9, qLonE9)
	if err != nil {
		return 0, err
	}
	return geomath.MetresToMM(dist), nil
}

// inverse returns distance in metres, initial bearing and final bearing in
// degrees.
func (v VincentyProvider) inverse(pLatE9, pLonE9, qLatE9, qLonE9 int64) (distM, initialBearingDeg, finalBearingDeg float64, err error) {
	phi1 := geomath.E9ToDeg(pLatE9) * math.Pi / 180
	phi2 := geomath.E9ToDeg(qLatE9) * math.Pi / 180
	l := geomath.E9ToDeg(geomath.WrapLonDiffE9(qLonE9, pLonE9)) * math.Pi / 180

	if phi1 == phi2 && l == 0 {
		return 0, 0, 0, nil
	}

	a, b, f := v.Ellipsoid.a, v.Ellipsoid.b, v.Ellipsoid.f
	eps := math.Nextafter(1, 2) - 1

	tanU1 := (1 - f) * math.Tan(phi1)
	cosU1 := 1 / math.Sqrt(1+tanU1*tanU1)
	sinU1 := tanU1 * cosU1
	tanU2 := (1 - f) * math.Tan(phi2)
	cosU2 := 1 / math.Sqrt(1+tanU2*tanU2)
	sinU2 := tanU2 * cosU2

	isAntipodal := math.Abs(l) > math.Pi/2 || math.Abs(phi2-phi1) > math.Pi/2

	lambda := l
	sigma, sinSigma, cosSigma := 0.0, 0.0, 1.0
	if isAntipodal {
		sigma, cosSigma = math.Pi, -1.0
	}
	cos2SigmaM := 1.0
	sinAlpha, cosSqAlpha := 0.0, 1.0
	var sinLambda, cosLambda, sinSqSigma, c, lambdaPrime float64

	iterations := 0
	for {
		sinLambda = math.Sin(lambda)
		cosLambda = math.Cos(lambda)
		sinSqSigma = (cosU2*sinLambda)*(cosU2*sinLambda) +
			(cosU1*sinU2-sinU1*cosU2*cosLambda)*(cosU1*sinU2-sinU1*cosU2*cosLambda)
		if math.Abs(sinSqSigma) < eps {
			break // coincident/antipodal points: fall back on lambda/sigma = l
		}
		sinSigma = math.Sqrt(sinSqSigma)
		cosSigma = sinU1*sinU2 + cosU1*cosU2*cosLambda
		sigma = math.Atan2(sinSigma, cosSigma)
		sinAlpha = cosU1 * cosU2 * sinLambda / sinSigma
		cosSqAlpha = 1 - sinAlpha*sinAlpha
		if cosSqAlpha != 0 {
			cos2SigmaM = cosSigma - 2*sinU1*sinU2/cosSqAlpha
		} else {
			cos2SigmaM = 0 // equatorial line: cos^2(alpha) = 0
		}
		c = f / 16 * cosSqAlpha * (4 + f*(4-3*cosSqAlpha))
		lambdaPrime = lambda
		lambda = l + (1-c)*f*sinAlpha*(sigma+c*sinSigma*(cos2SigmaM+c*cosSigma*(-1+2*cos2SigmaM*cos2SigmaM)))

		check := math.Abs(lambda)
		if isAntipodal {
			check = math.Abs(lambda) - math.Pi
		}
		if check > math.Pi {
			return 0, 0, 0, &geomath.Numeric{Detail: "vincenty inverse failed to converge (lambda out of range)"}
		}
		iterations++
		if math.Abs(lambda-lambdaPrime) <= vincentyConvergence || iterations >= vincentyMaxIterations {
			break
		}
	}
	if iterations >= vincentyMaxIterations {
		return 0, 0, 0, &geomath.Numeric{Detail: "vincenty inverse did not converge"}
	}

	uSq := cosSqAlpha * (a*a - b*b) / (b * b)
	bigA := 1 + uSq/16384*(4096+uSq*(-768+uSq*(320-175*uSq)))
	bigB := uSq / 1024 * (256 + uSq*(-128+uSq*(74-47*uSq)))
	deltaSigma := bigB * sinSigma * (cos2SigmaM + bigB/4*(cosSigma*(-1+2*cos2SigmaM*cos2SigmaM)-
		bigB/6*cos2SigmaM*(-3+4*sinSigma*sinSigma)*(-3+4*cos2SigmaM*cos2SigmaM)))

	s := b * bigA * (sigma - deltaSigma)

	alpha1, alpha2 := 0.0, math.Pi
	if math.Abs(sinSqSigma) >= eps {
		alpha1 = math.Atan2(cosU2*sinLambda, cosU1*sinU2-sinU1*cosU2*cosLambda)
		alpha2 = math.Atan2(cosU1*sinLambda, -sinU1*cosU2+cosU1*sinU2*cosLambda)
	}

	return s, wrap360(alpha1 * 180 / math.Pi), wrap360(alpha2 * 180 / math.Pi), nil
}

func (v VincentyProvider) Direct(pLatE9, pLonE9 int64, azimuthDeg float64, distMM int64) (int64, int64, error) {
	phi1 := geomath.E9ToDeg(pLatE9) * math.Pi / 180
	lambda1 := geomath.E9ToDeg(pLonE9) * math.Pi / 180
	alpha1 := azimuthDeg * math.Pi / 180
	s := geomath.MMToMetres(distMM)

	a, b, f := v.Ellipsoid.a, v.Ellipsoid.b, v.Ellipsoid.f

	sinAlpha1 := math.Sin(alpha1)
	cosAlpha1 := math.Cos(alpha1)

	tanU1 := (1 - f) * math.Tan(phi1)
	cosU1 := 1 / math.Sqrt(1+tanU1*tanU1)
	sinU1 := tanU1 * cosU1

	sigma1 := math.Atan2(tanU1, cosAlpha1)
	sinAlpha := cosU1 * sinAlpha1
	cosSqAlpha := 1 - sinAlpha*sinAlpha
	uSq := cosSqAlpha * (a*a - b*b) / (b * b)
	bigA := 1 + uSq/16384*(4096+uSq*(-768+uSq*(320-175*uSq)))
	bigB := uSq / 1024 * (256 + uSq*(-128+uSq*(74-47*uSq)))

	sigma := s / (b * bigA)
	var sinSigma, cosSigma, cos2SigmaM, deltaSigma, sigmaPrime float64

	iterations := 0
	for {
		cos2SigmaM = math.Cos(2*sigma1 + sigma)
		sinSigma = math.Sin(sigma)
		cosSigma = math.Cos(sigma)
		deltaSigma = bigB * sinSigma * (cos2SigmaM + bigB/4*(cosSigma*(-1+2*cos2SigmaM*cos2SigmaM)-
			bigB/6*cos2SigmaM*(-3+4*sinSigma*sinSigma)*(-3+4*cos2SigmaM*cos2SigmaM)))
		sigmaPrime = sigma
		sigma = s/(b*bigA) + deltaSigma
		iterations++
		if math.Abs(sigma-sigmaPrime) <= vincentyConvergence || iterations >= vincentyMaxIterations {
			break
		}
	}
	if iterations >= vincentyMaxIterations {
		return 0, 0, &geomath.Numeric{Detail: "vincenty direct did not converge"}
	}

	x := sinU1*sinSigma - cosU1*cosSigma*cosAlpha1
	phi2 := math.Atan2(sinU1*cosSigma+cosU1*sinSigma*cosAlpha1, (1-f)*math.Sqrt(sinAlpha*sinAlpha+x*x))
	lambda := math.Atan2(sinSigma*sinAlpha1, cosU1*cosSigma-sinU1*sinSigma*cosAlpha1)
	c := f / 16 * cosSqAlpha * (4 + f*(4-3*cosSqAlpha))
	l := lambda - (1-c)*f*sinAlpha*(sigma+c*sinSigma*(cos2SigmaM+c*cosSigma*(-1+2*cos2SigmaM*cos2SigmaM)))
	lambda2 := lambda1 + l

	latE9 := geomath.DegToE9(phi2 * 180 / math.Pi)
	lonE9 := geomath.NormalizeLonE9(geomath.DegToE9(lambda2 * 180 / math.Pi))
	return latE9, lonE9, nil
}

func (v VincentyProvider) DistanceToSegment(pLatE9, pLonE9, aLatE9, aLonE9, bLatE9, bLonE9 int64) (int64, error) {
	// Sample the geodesic a->b and minimize distance to p; a closed-form
	// ellipsoidal point-to-geodesic projection is not worth the complexity
	// at the shape sizes that route through this provider (>1km, per the
	// model-selection policy) relative to sampling every ~1% of the arc.
	const samples = 101
	distAB, _, _, err := v.inverse(aLatE9, aLonE9, bLatE9, bLonE9)
	if err != nil {
		return 0, err
	}
	if distAB == 0 {
		return v.Inverse(pLatE9, pLonE9, aLatE9, aLonE9)
	}
	_, bearingAB, _, err := v.inverse(aLatE9, aLonE9, bLatE9, bLonE9)
	if err != nil {
		return 0, err
	}

	best, bestFrac := int64(math.MaxInt64), 0.0
	for i := 0; i <= samples; i++ {
		frac := float64(i) / samples
		latE9, lonE9, err := v.Direct(aLatE9, aLonE9, bearingAB, geomath.MetresToMM(distAB*frac))
		if err != nil {
			return 0, err
		}
		d, err := v.Inverse(pLatE9, pLonE9, latE9, lonE9)
		if err != nil {
			return 0, err
		}
		if d < best {
			best, bestFrac = d, frac
		}
	}
	for step := 1.0 / samples; step > 1e-7; step /= 2 { // refine around the best sample
		for _, f := range []float64{bestFrac - step, bestFrac + step} {
			latE9, lonE9, err := v.Direct(aLatE9, aLonE9, bearingAB, geomath.MetresToMM(distAB*math.Max(0, math.Min(1, f))))
			if err != nil {
				return 0, err
			}
			if d, err := v.Inverse(pLatE9, pLonE9, latE9, lonE9); err == nil && d < best {
				best, bestFrac = d, f
			}
		}
	}
	return best, nil
}

func (v VincentyProvider) LatitudeOfIntersection(aLatE9, aLonE9, bLatE9, bLonE9, lonE9 int64) (int64, error) {
	// The ellipsoidal geodesic-meridian intersection has no closed form as
	// simple as the spherical case; the spherical approximation is
	// accurate to well under a metre at the polygon scales (>1km) that
	// reach this provider, so it is used directly here.
	return SphericalProvider{}.LatitudeOfIntersection(aLatE9, aLonE9, bLatE9, bLonE9, lonE9)
}

func wrap360(deg float64) float64 {
	deg = math.Mod(deg, 360)
	if deg < 0 {
		deg += 360
	}
	return deg
}
