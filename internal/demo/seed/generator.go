package seed

import (
	"bytes"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/parquet-go/parquet-go"
)

type Deal struct {
	DealID   int64     `parquet:"deal_id"`
	Stage    string    `parquet:"deal_stage"`
	Owner    string    `parquet:"owner"`
	Region   string    `parquet:"region"`
	Amount   float64   `parquet:"amount"`
	ClosedAt time.Time `parquet:"closed_at"`
	Notes    *string   `parquet:"notes,optional"`
}

type Employee struct {
	EmployeeID int64     `parquet:"employee_id"`
	Department string    `parquet:"department"`
	Title      string    `parquet:"title"`
	Salary     float64   `parquet:"salary"`
	HiredAt    time.Time `parquet:"hired_at"`
	Remote     bool      `parquet:"remote"`
}

type Generator struct {
	rnd   *rand.Rand
	epoch time.Time
}

func NewGenerator(seed int64) *Generator {
	return &Generator{
		rnd:   rand.New(rand.NewSource(seed)),
		epoch: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (g *Generator) Deals(n int) []Deal {
	deals := make([]Deal, 0, n)
	for i := 0; i < n; i++ {
		stage := g.pickStage()
		deal := Deal{
			DealID:   int64(i + 1),
			Stage:    stage,
			Owner:    pickOne(g.rnd, []string{"Avery", "Jordan", "Kai", "Morgan", "Rene", "Sasha"}),
			Region:   pickOne(g.rnd, []string{"EMEA", "NA", "APAC", "LATAM"}),
			Amount:   round2(500 + g.rnd.Float64()*49500),
			ClosedAt: g.epoch.AddDate(0, 0, g.rnd.Intn(730)),
		}
		if g.rnd.Intn(4) == 0 {
			note := pickOne(g.rnd, []string{"renewal", "upsell", "referral", "call back"})
			deal.Notes = &note
		}
		deals = append(deals, deal)
	}
	return deals
}

func (g *Generator) Employees(n int) []Employee {
	employees := make([]Employee, 0, n)
	for i := 0; i < n; i++ {
		department := pickOne(g.rnd, []string{"Engineering", "Sales", "Marketing", "Finance", "Support"})
		employees = append(employees, Employee{
			EmployeeID: int64(i + 1),
			Department: department,
			Title:      pickOne(g.rnd, []string{"Associate", "Senior", "Lead", "Manager"}),
			Salary:     round2(45000 + g.rnd.Float64()*105000),
			HiredAt:    g.epoch.AddDate(-g.rnd.Intn(8), 0, -g.rnd.Intn(365)),
			Remote:     g.rnd.Intn(3) == 0,
		})
	}
	return employees
}

func (g *Generator) pickStage() string {
	p := g.rnd.Intn(100)
	switch {
	case p < 35:
		return "Prospecting"
	case p < 60:
		return "Negotiation"
	case p < 85:
		return "Won"
	default:
		return "Lost"
	}
}

// Encode writes rows as a single parquet file.
func Encode[T any](rows []T) ([]byte, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("rows are required")
	}
	buf := bytes.NewBuffer(nil)
	writer := parquet.NewGenericWriter[T](buf)
	if _, err := writer.Write(rows); err != nil {
		return nil, fmt.Errorf("write parquet rows: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close parquet writer: %w", err)
	}
	return buf.Bytes(), nil
}

func round2(value float64) float64 {
	return math.Round(value*100) / 100
}

func pickOne(r *rand.Rand, values []string) string {
	return values[r.Intn(len(values))]
}
