package extraction

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"math"
	"math/rand"
	"time"

	"github.com/dvloznov/tipenter/internal/money"
	"github.com/dvloznov/tipenter/internal/receipt"
)

var simulatedCustomers = []string{
	"John Smith", "Maria Garcia", "David Chen", "Sarah Johnson", "Michael Brown",
	"Emily Davis", "Robert Wilson", "Jessica Martinez", "William Taylor", "Ashley Anderson",
}

// simulatedEpoch anchors simulated dates so the same file always gets the
// same date.
var simulatedEpoch = time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)

// Simulator produces a plausible record from the file name alone. The same
// name always yields the same record and total always equals amount + tip.
type Simulator struct{}

func (Simulator) Extract(ctx context.Context, img Image) (*Result, error) {
	rec := Simulate(img.Name)
	raw, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("Simulator: marshal: %w", err)
	}
	return &Result{Record: rec, Raw: string(raw), Source: SourceSimulated}, nil
}

// Simulate returns the simulated record for fileName.
func Simulate(fileName string) *receipt.Record {
	h := fnv.New64a()
	_, _ = h.Write([]byte(fileName))
	rng := rand.New(rand.NewSource(int64(h.Sum64())))

	amountCents := int64(800 + rng.Intn(14201)) // $8.00 - $150.00
	tipPct := 10 + rng.Intn(16)                 // 10 - 25 %
	tipCents := int64(math.Round(float64(amountCents) * float64(tipPct) / 100))

	amount := money.FromCents(amountCents)
	tip := money.FromCents(tipCents)

	day := simulatedEpoch.AddDate(0, 0, rng.Intn(365))
	minutes := 17*60 + rng.Intn(7*60)

	return &receipt.Record{
		FileName:       fileName,
		Date:           day.Format("2006-01-02"),
		Time:           fmt.Sprintf("%02d:%02d", minutes/60, minutes%60),
		CustomerName:   simulatedCustomers[rng.Intn(len(simulatedCustomers))],
		CheckNumber:    fmt.Sprintf("%d", 1000+rng.Intn(9000)),
		Amount:         money.FormatAmount(amount),
		Tip:            money.FormatAmount(tip),
		Total:          money.FormatAmount(amount.Add(tip)),
		Signed:         rng.Intn(10) < 8,
		Confidence:     math.Round((0.70+rng.Float64()*0.29)*100) / 100,
		ApprovalStatus: receipt.ApprovalPending,
		Simulated:      true,
	}
}
