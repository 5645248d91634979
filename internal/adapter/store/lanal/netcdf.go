package lanal

import (
	"fmt"
	"math"

	"github.com/fhs/go-netcdf/netcdf"
)

// Coordinate variable name candidates, most specific first.
var (
	latVarNames = []string{"latitude", "lat", "y"}
	lonVarNames = []string{"longitude", "lon", "x"}
)

// readVariableNames lists the data variables in a NetCDF file.
func readVariableNames(path string) (map[string]bool, error) {
	nc, err := netcdf.OpenFile(path, netcdf.NOWRITE)
	if err != nil {
		return nil, fmt.Errorf("failed to open NetCDF file: %w", err)
	}
	defer func() { _ = nc.Close() }()

	n, err := nc.NVars()
	if err != nil {
		return nil, fmt.Errorf("failed to count variables: %w", err)
	}

	names := make(map[string]bool, n)
	for i := 0; i < n; i++ {
		name, err := nc.VarN(i).Name()
		if err != nil {
			return nil, fmt.Errorf("failed to read variable name: %w", err)
		}
		names[name] = true
	}
	return names, nil
}

// readCoordinates reads the 2-D latitude and longitude arrays.
func readCoordinates(path string) (lat2d, lon2d [][]float64, err error) {
	nc, err := netcdf.OpenFile(path, netcdf.NOWRITE)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open NetCDF file: %w", err)
	}
	defer func() { _ = nc.Close() }()

	lat2d, err = read2DByCandidates(nc, latVarNames)
	if err != nil {
		return nil, nil, fmt.Errorf("latitude: %w", err)
	}
	lon2d, err = read2DByCandidates(nc, lonVarNames)
	if err != nil {
		return nil, nil, fmt.Errorf("longitude: %w", err)
	}
	if len(lat2d) != len(lon2d) || len(lat2d[0]) != len(lon2d[0]) {
		return nil, nil, fmt.Errorf("latitude and longitude arrays have different shapes")
	}
	return lat2d, lon2d, nil
}

// read2DByCandidates reads the first present 2-D variable among candidates.
func read2DByCandidates(nc netcdf.Dataset, candidates []string) ([][]float64, error) {
	for _, name := range candidates {
		v, err := nc.Var(name)
		if err != nil {
			continue
		}
		flat, shape, err := readFlat(v)
		if err != nil {
			return nil, err
		}
		if len(shape) != 2 {
			return nil, fmt.Errorf("expected 2D coordinate variable %q, got %dD", name, len(shape))
		}
		return reshape2D(flat, shape[0], shape[1]), nil
	}
	return nil, fmt.Errorf("no variable found (tried: %v)", candidates)
}

// readSlab reads one variable's full 2-D slab as a flat row-major array,
// tolerating a leading length-1 time dimension. Fill values become NaN.
func readSlab(path, name string) (flat []float64, nCols int, err error) {
	nc, err := netcdf.OpenFile(path, netcdf.NOWRITE)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to open NetCDF file: %w", err)
	}
	defer func() { _ = nc.Close() }()

	v, err := nc.Var(name)
	if err != nil {
		return nil, 0, fmt.Errorf("variable %q not found", name)
	}

	flat, shape, err := readFlat(v)
	if err != nil {
		return nil, 0, err
	}

	switch {
	case len(shape) == 2:
		nCols = shape[1]
	case len(shape) == 3 && shape[0] == 1:
		nCols = shape[2]
	default:
		return nil, 0, fmt.Errorf("variable %q has unsupported shape %v", name, shape)
	}

	if fv, ok := fillValue(v); ok {
		for i, val := range flat {
			if val == fv {
				flat[i] = math.NaN()
			}
		}
	}
	return flat, nCols, nil
}

// readFlat reads a variable of any supported numeric type into a flat
// float64 array along with its dimension lengths.
func readFlat(v netcdf.Var) ([]float64, []int, error) {
	dims, err := v.Dims()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get dimensions: %w", err)
	}

	shape := make([]int, len(dims))
	total := 1
	for i, d := range dims {
		n, err := d.Len()
		if err != nil {
			return nil, nil, fmt.Errorf("failed to get dimension length: %w", err)
		}
		shape[i] = int(n)
		total *= int(n)
	}

	t, err := v.Type()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get variable type: %w", err)
	}

	switch t {
	case netcdf.DOUBLE:
		data := make([]float64, total)
		if err := v.ReadFloat64s(data); err != nil {
			return nil, nil, err
		}
		return data, shape, nil
	case netcdf.FLOAT:
		tmp := make([]float32, total)
		if err := v.ReadFloat32s(tmp); err != nil {
			return nil, nil, err
		}
		out := make([]float64, total)
		for i, val := range tmp {
			out[i] = float64(val)
		}
		return out, shape, nil
	case netcdf.INT:
		tmp := make([]int32, total)
		if err := v.ReadInt32s(tmp); err != nil {
			return nil, nil, err
		}
		out := make([]float64, total)
		for i, val := range tmp {
			out[i] = float64(val)
		}
		return out, shape, nil
	case netcdf.SHORT:
		tmp := make([]int16, total)
		if err := v.ReadInt16s(tmp); err != nil {
			return nil, nil, err
		}
		out := make([]float64, total)
		for i, val := range tmp {
			out[i] = float64(val)
		}
		return out, shape, nil
	default:
		return nil, nil, fmt.Errorf("unsupported variable type: %v", t)
	}
}

// fillValue returns the _FillValue or missing_value attribute if present.
func fillValue(v netcdf.Var) (float64, bool) {
	for _, name := range []string{"_FillValue", "missing_value"} {
		a := v.Attr(name)
		if a == (netcdf.Attr{}) {
			continue
		}
		if n, err := a.Len(); err != nil || n == 0 {
			continue
		}
		buf64 := make([]float64, 1)
		if err := a.ReadFloat64s(buf64); err == nil {
			return buf64[0], true
		}
		buf32 := make([]float32, 1)
		if err := a.ReadFloat32s(buf32); err == nil {
			return float64(buf32[0]), true
		}
		bufi := make([]int32, 1)
		if err := a.ReadInt32s(bufi); err == nil {
			return float64(bufi[0]), true
		}
	}
	return 0, false
}

// reshape2D views a flat row-major array as rows slices.
func reshape2D(flat []float64, nRows, nCols int) [][]float64 {
	out := make([][]float64, nRows)
	for i := 0; i < nRows; i++ {
		out[i] = flat[i*nCols : (i+1)*nCols]
	}
	return out
}
