package oracle

import "math"

// WGS84 ellipsoid.
const (
	wgs84A = 6378137.0
	wgs84F = 1 / 298.257223563
	wgs84B = wgs84A * (1 - wgs84F)

	// earthRadius converts metres to angular distance.
	earthRadius = 6370000.0
)

// Distance returns the geodesic distance in metres between two points on
// the WGS84 ellipsoid. It uses Vincenty's inverse formula and falls back to
// the haversine great circle when the iteration does not converge (nearly
// antipodal points).
func Distance(lat1, lon1, lat2, lon2 float64) float64 {
	if d, ok := vincenty(lat1, lon1, lat2, lon2); ok {
		return d
	}
	return haversine(lat1, lon1, lat2, lon2)
}

// Degrees converts a surface distance in metres to degrees of arc.
func Degrees(metres float64) float64 {
	return metres / earthRadius * 180 / math.Pi
}

func vincenty(lat1, lon1, lat2, lon2 float64) (float64, bool) {
	if lat1 == lat2 && lon1 == lon2 {
		return 0, true
	}
	lat1r, lat2r := rad(lat1), rad(lat2)
	L := rad(lon2 - lon1)

	U1 := math.Atan((1 - wgs84F) * math.Tan(lat1r))
	U2 := math.Atan((1 - wgs84F) * math.Tan(lat2r))
	sinU1, cosU1 := math.Sincos(U1)
	sinU2, cosU2 := math.Sincos(U2)

	lambda := L
	var sinSigma, cosSigma, sigma, cosSqAlpha, cos2SigmaM float64
	for i := 0; i < 200; i++ {
		sinLambda, cosLambda := math.Sincos(lambda)
		sinSigma = math.Sqrt((cosU2*sinLambda)*(cosU2*sinLambda) +
			(cosU1*sinU2-sinU1*cosU2*cosLambda)*(cosU1*sinU2-sinU1*cosU2*cosLambda))
		if sinSigma == 0 {
			return 0, true
		}
		cosSigma = sinU1*sinU2 + cosU1*cosU2*cosLambda
		sigma = math.Atan2(sinSigma, cosSigma)
		sinAlpha := cosU1 * cosU2 * sinLambda / sinSigma
		cosSqAlpha = 1 - sinAlpha*sinAlpha
		cos2SigmaM = 0
		if cosSqAlpha != 0 {
			cos2SigmaM = cosSigma - 2*sinU1*sinU2/cosSqAlpha
		}
		C := wgs84F / 16 * cosSqAlpha * (4 + wgs84F*(4-3*cosSqAlpha))
		prev := lambda
		lambda = L + (1-C)*wgs84F*sinAlpha*(sigma+C*sinSigma*(cos2SigmaM+C*cosSigma*(-1+2*cos2SigmaM*cos2SigmaM)))
		if math.Abs(lambda-prev) < 1e-12 {
			uSq := cosSqAlpha * (wgs84A*wgs84A - wgs84B*wgs84B) / (wgs84B * wgs84B)
			A := 1 + uSq/16384*(4096+uSq*(-768+uSq*(320-175*uSq)))
			B := uSq / 1024 * (256 + uSq*(-128+uSq*(74-47*uSq)))
			deltaSigma := B * sinSigma * (cos2SigmaM + B/4*(cosSigma*(-1+2*cos2SigmaM*cos2SigmaM)-
				B/6*cos2SigmaM*(-3+4*sinSigma*sinSigma)*(-3+4*cos2SigmaM*cos2SigmaM)))
			return wgs84B * A * (sigma - deltaSigma), true
		}
	}
	return 0, false
}

func haversine(lat1, lon1, lat2, lon2 float64) float64 {
	lat1r, lat2r := rad(lat1), rad(lat2)
	dLat := lat2r - lat1r
	dLon := rad(lon2 - lon1)
	h := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(lat1r)*math.Cos(lat2r)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadius * math.Asin(math.Min(1, math.Sqrt(h)))
}

func rad(deg float64) float64 {
	return deg * math.Pi / 180
}
