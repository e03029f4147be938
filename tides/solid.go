package tides

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	satellite "github.com/joshuaferrara/go-satellite"
	Mt "github.com/sirius-geo/ringdeform/types"
)

// Degree-2 solid earth tide, IERS Conventions (2010) section 7.1.1 step 1,
// with nominal Love and Shida numbers and low-precision Sun and Moon positions.
// Good to a few millimeters, which is below the thermal signal it is compared with.
const (
	loveH2  = 0.6078
	shidaL2 = 0.0847

	massRatioMoon = 0.0123000371
	massRatioSun  = 332946.0482

	wgs84A = 6378137.0
	wgs84F = 1 / 298.257223563

	astronomicalUnit = 149597870700.0
	j2000            = 2451545.0
	deg              = math.Pi / 180
	arcsec           = deg / 3600
)

// Geodesy produces one UTC day of North/East/Up displacement, in meters,
// for a geodetic coordinate at a fixed cadence starting at midnight.
type Geodesy interface {
	Solid(ctx context.Context, day time.Time, lat, lon float64, step time.Duration) ([]Mt.NEU, error)
}

// SolidEarth is the built-in Geodesy. Body positions are shared between
// coordinates of the same day.
type SolidEarth struct {
	mu    sync.Mutex
	cache map[ephemerisKey][]bodies
}

type ephemerisKey struct {
	day  int64
	step time.Duration
}

// body positions in ECEF meters
type bodies struct {
	sun, moon [3]float64
}

func NewSolidEarth() *SolidEarth {
	return &SolidEarth{cache: make(map[ephemerisKey][]bodies)}
}

func (s *SolidEarth) Solid(ctx context.Context, day time.Time, lat, lon float64, step time.Duration) ([]Mt.NEU, error) {
	if step <= 0 || 24*time.Hour%step != 0 {
		return nil, &Mt.ConfigError{Field: "tides.step", Value: step.String(), Message: "must divide one day"}
	}
	if math.Abs(lat) > 90 || math.Abs(lon) > 360 {
		return nil, &Mt.ConfigError{Field: "tides.coordinate", Value: fmt.Sprintf("%g,%g", lat, lon), Message: "out of range"}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	day = time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	eph := s.ephemeris(day, step)

	station, up, north, east := stationFrame(lat*deg, lon*deg)
	out := make([]Mt.NEU, len(eph))
	for i, b := range eph {
		d := add3(degree2(station, b.moon, massRatioMoon), degree2(station, b.sun, massRatioSun))
		out[i] = Mt.NEU{
			North: dot3(d, north),
			East:  dot3(d, east),
			Up:    dot3(d, up),
		}
	}
	return out, nil
}

func (s *SolidEarth) ephemeris(day time.Time, step time.Duration) []bodies {
	key := ephemerisKey{day: day.Unix(), step: step}
	s.mu.Lock()
	defer s.mu.Unlock()
	if eph, ok := s.cache[key]; ok {
		return eph
	}

	n := int(24 * time.Hour / step)
	eph := make([]bodies, n)
	for i := range eph {
		t := day.Add(time.Duration(i) * step)
		jd := satellite.JDay(t.Year(), int(t.Month()), t.Day(), t.Hour(), t.Minute(), t.Second())
		gmst := satellite.ThetaG_JD(jd)
		eph[i] = bodies{
			sun:  toECEF(sunECI(jd), gmst),
			moon: toECEF(moonECI(jd), gmst),
		}
	}
	s.cache[key] = eph
	return eph
}

func toECEF(eci [3]float64, gmst float64) [3]float64 {
	v := satellite.ECIToECEF(satellite.Vector3{X: eci[0], Y: eci[1], Z: eci[2]}, gmst)
	return [3]float64{v.X, v.Y, v.Z}
}

// degree2 is the in-phase degree-2 displacement caused by one body
func degree2(station, body [3]float64, massRatio float64) [3]float64 {
	re := norm3(station)
	rb := norm3(body)
	rHat := scale3(station, 1/re)
	bHat := scale3(body, 1/rb)

	f := massRatio * math.Pow(re, 4) / math.Pow(rb, 3)
	c := dot3(bHat, rHat)

	radial := scale3(rHat, loveH2*(3*c*c-1)/2)
	transverse := scale3(add3(bHat, scale3(rHat, -c)), 3*shidaL2*c)
	return scale3(add3(radial, transverse), f)
}

// stationFrame returns the WGS84 position at zero height and the local unit vectors
func stationFrame(lat, lon float64) (pos, up, north, east [3]float64) {
	e2 := wgs84F * (2 - wgs84F)
	sinLat, cosLat := math.Sin(lat), math.Cos(lat)
	sinLon, cosLon := math.Sin(lon), math.Cos(lon)
	n := wgs84A / math.Sqrt(1-e2*sinLat*sinLat)

	pos = [3]float64{n * cosLat * cosLon, n * cosLat * sinLon, n * (1 - e2) * sinLat}
	up = [3]float64{cosLat * cosLon, cosLat * sinLon, sinLat}
	north = [3]float64{-sinLat * cosLon, -sinLat * sinLon, cosLat}
	east = [3]float64{-sinLon, cosLon, 0}
	return
}

// sunECI follows the Astronomical Almanac low-precision formulae, meters
func sunECI(jd float64) [3]float64 {
	n := jd - j2000
	l := (280.460 + 0.9856474*n) * deg
	g := (357.528 + 0.9856003*n) * deg
	lambda := l + (1.915*math.Sin(g)+0.020*math.Sin(2*g))*deg
	eps := (23.439 - 0.0000004*n) * deg
	r := (1.00014 - 0.01671*math.Cos(g) - 0.00014*math.Cos(2*g)) * astronomicalUnit

	return [3]float64{
		r * math.Cos(lambda),
		r * math.Cos(eps) * math.Sin(lambda),
		r * math.Sin(eps) * math.Sin(lambda),
	}
}

// moonECI is the Montenbruck and Gill low-precision lunar series, meters
func moonECI(jd float64) [3]float64 {
	t := (jd - j2000) / 36525
	l0 := (218.31617 + 481267.88088*t - 1.3972*t) * deg
	l := (134.96292 + 477198.86753*t) * deg
	lp := (357.52543 + 35999.04944*t) * deg
	f := (93.27283 + 483202.01873*t) * deg
	d := (297.85027 + 445267.11135*t) * deg

	lambda := l0 + arcsec*(22640*math.Sin(l)+769*math.Sin(2*l)-
		4586*math.Sin(l-2*d)+2370*math.Sin(2*d)-
		668*math.Sin(lp)-412*math.Sin(2*f)-
		212*math.Sin(2*l-2*d)-206*math.Sin(l+lp-2*d)+
		192*math.Sin(l+2*d)-165*math.Sin(lp-2*d)+
		148*math.Sin(l-lp)-125*math.Sin(d)-
		110*math.Sin(l+lp)-55*math.Sin(2*f-2*d))

	beta := arcsec * (18520*math.Sin(f+lambda-l0+arcsec*(412*math.Sin(2*f)+541*math.Sin(lp))) -
		526*math.Sin(f-2*d) + 44*math.Sin(l+f-2*d) -
		31*math.Sin(-l+f-2*d) - 25*math.Sin(-2*l+f) -
		23*math.Sin(lp+f-2*d) + 21*math.Sin(-l+f) +
		11*math.Sin(-lp+f-2*d))

	r := 1000 * (385000 - 20905*math.Cos(l) - 3699*math.Cos(2*d-l) -
		2956*math.Cos(2*d) - 570*math.Cos(2*l) + 246*math.Cos(2*l-2*d) -
		205*math.Cos(lp-2*d) - 171*math.Cos(l+2*d) -
		152*math.Cos(l+lp-2*d))

	// ecliptic to equatorial
	eps := 23.43929111 * deg
	x := r * math.Cos(beta) * math.Cos(lambda)
	y := r * math.Cos(beta) * math.Sin(lambda)
	z := r * math.Sin(beta)
	return [3]float64{
		x,
		y*math.Cos(eps) - z*math.Sin(eps),
		y*math.Sin(eps) + z*math.Cos(eps),
	}
}

func add3(a, b [3]float64) [3]float64           { return [3]float64{a[0] + b[0], a[1] + b[1], a[2] + b[2]} }
func scale3(a [3]float64, k float64) [3]float64 { return [3]float64{a[0] * k, a[1] * k, a[2] * k} }
func dot3(a, b [3]float64) float64              { return a[0]*b[0] + a[1]*b[1] + a[2]*b[2] }
func norm3(a [3]float64) float64                { return math.Sqrt(dot3(a, a)) }
