package geom

import "math"

// Vec3 is a world-space position or direction. Y is up.
type Vec3 struct {
	X float64
	Y float64
	Z float64
}

func (v Vec3) ToArray() [3]float64 { return [3]float64{v.X, v.Y, v.Z} }

func FromArray(a [3]float64) Vec3 { return Vec3{X: a[0], Y: a[1], Z: a[2]} }

func Add(a, b Vec3) Vec3 { return Vec3{a.X + b.X, a.Y + b.Y, a.Z + b.Z} }

func Sub(a, b Vec3) Vec3 { return Vec3{a.X - b.X, a.Y - b.Y, a.Z - b.Z} }

func Scale(v Vec3, s float64) Vec3 { return Vec3{v.X * s, v.Y * s, v.Z * s} }

func Dot(a, b Vec3) float64 { return a.X*b.X + a.Y*b.Y + a.Z*b.Z }

func MagSq(v Vec3) float64 { return Dot(v, v) }

func Mag(v Vec3) float64 { return math.Sqrt(MagSq(v)) }

// Normalize returns the unit vector of v, or the zero vector when v has no length.
func Normalize(v Vec3) Vec3 {
	mag := Mag(v)
	if mag == 0 {
		return Vec3{}
	}
	inv := 1.0 / mag
	return Vec3{v.X * inv, v.Y * inv, v.Z * inv}
}

// Distance is the Euclidean distance between a and b.
func Distance(a, b Vec3) float64 { return Mag(Sub(a, b)) }

func DistanceSq(a, b Vec3) float64 { return MagSq(Sub(a, b)) }

// YawForward converts a yaw in degrees into a horizontal unit forward vector.
// Yaw 0 faces +Z, yaw 90 faces +X.
func YawForward(yawDeg float64) Vec3 {
	r := yawDeg * math.Pi / 180
	return Vec3{X: math.Sin(r), Y: 0, Z: math.Cos(r)}
}

// Cell returns the integer grid cell containing v for a cell edge of size.
func Cell(v Vec3, size float64) Vec3i {
	if size <= 0 {
		size = 1
	}
	return Vec3i{
		X: int(math.Floor(v.X / size)),
		Y: int(math.Floor(v.Y / size)),
		Z: int(math.Floor(v.Z / size)),
	}
}

type Vec3i struct {
	X int
	Y int
	Z int
}

func (v Vec3i) ToArray() [3]int { return [3]int{v.X, v.Y, v.Z} }
