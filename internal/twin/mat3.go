package twin

// Vec3 is a 3-vector stored by value.
type Vec3 [3]float64

// Mat3 is a row-major 3×3 matrix stored by value.
type Mat3 [3][3]float64

// Identity3 returns I.
func Identity3() Mat3 {
	return Diag3(1, 1, 1)
}

// Diag3 returns a diagonal matrix.
func Diag3(a, b, c float64) Mat3 {
	return Mat3{{a, 0, 0}, {0, b, 0}, {0, 0, c}}
}

// Mul returns m·n.
func (m Mat3) Mul(n Mat3) Mat3 {
	var out Mat3
	for i := range 3 {
		for j := range 3 {
			out[i][j] = m[i][0]*n[0][j] + m[i][1]*n[1][j] + m[i][2]*n[2][j]
		}
	}
	return out
}

// MulVec returns m·v.
func (m Mat3) MulVec(v Vec3) Vec3 {
	var out Vec3
	for i := range 3 {
		out[i] = m[i][0]*v[0] + m[i][1]*v[1] + m[i][2]*v[2]
	}
	return out
}

// T returns the transpose.
func (m Mat3) T() Mat3 {
	var out Mat3
	for i := range 3 {
		for j := range 3 {
			out[i][j] = m[j][i]
		}
	}
	return out
}

// Add returns m+n.
func (m Mat3) Add(n Mat3) Mat3 {
	for i := range 3 {
		for j := range 3 {
			m[i][j] += n[i][j]
		}
	}
	return m
}

// Sub returns m−n.
func (m Mat3) Sub(n Mat3) Mat3 {
	for i := range 3 {
		for j := range 3 {
			m[i][j] -= n[i][j]
		}
	}
	return m
}

// Scale returns s·m.
func (m Mat3) Scale(s float64) Mat3 {
	for i := range 3 {
		for j := range 3 {
			m[i][j] *= s
		}
	}
	return m
}

// Symmetric returns (m+mᵀ)/2, removing round-off asymmetry from a covariance.
func (m Mat3) Symmetric() Mat3 {
	return m.Add(m.T()).Scale(0.5)
}

// Diag returns the diagonal.
func (m Mat3) Diag() Vec3 {
	return Vec3{m[0][0], m[1][1], m[2][2]}
}

// Outer returns a·bᵀ.
func Outer(a, b Vec3) Mat3 {
	var out Mat3
	for i := range 3 {
		for j := range 3 {
			out[i][j] = a[i] * b[j]
		}
	}
	return out
}

// Dot returns v·w.
func (v Vec3) Dot(w Vec3) float64 {
	return v[0]*w[0] + v[1]*w[1] + v[2]*w[2]
}

// Add returns v+w.
func (v Vec3) Add(w Vec3) Vec3 {
	return Vec3{v[0] + w[0], v[1] + w[1], v[2] + w[2]}
}

// Scale returns s·v.
func (v Vec3) Scale(s float64) Vec3 {
	return Vec3{v[0] * s, v[1] * s, v[2] * s}
}
