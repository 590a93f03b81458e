package stats

import (
	"gonum.org/v1/gonum/stat"
)

// Moments holds the first two population moments of a sample.
type Moments struct {
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"std_dev"` // population standard deviation (ddof = 0)
}

// Summarize returns the mean and population standard deviation of data.
// An empty sample has zero moments.
func Summarize(data []float64) Moments {
	switch len(data) {
	case 0:
		return Moments{}
	case 1:
		return Moments{Mean: data[0]}
	}
	mean, std := stat.PopMeanStdDev(data, nil)
	return Moments{Mean: mean, StdDev: std}
}

// SummarizeMatrix pools every element of a frames x dims matrix into one
// sample.
func SummarizeMatrix(matrix [][]float64) Moments {
	n := 0
	for _, row := range matrix {
		n += len(row)
	}
	flat := make([]float64, 0, n)
	for _, row := range matrix {
		flat = append(flat, row...)
	}
	return Summarize(flat)
}

// SummarizeColumns returns the moments of every column of a frames x dims
// matrix, i.e. one trajectory per dimension over time.
func SummarizeColumns(matrix [][]float64) []Moments {
	if len(matrix) == 0 {
		return []Moments{}
	}
	dims := len(matrix[0])
	out := make([]Moments, dims)
	column := make([]float64, len(matrix))
	for d := range dims {
		for t, row := range matrix {
			column[t] = row[d]
		}
		out[d] = Summarize(column)
	}
	return out
}
