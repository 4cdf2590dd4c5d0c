package cmd

import (
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/shunichi-ikebuchi/bookkeeping-engine/pkg/models"
)

// proposal is the file form of a proposed entry. JSON files parse as YAML.
type proposal struct {
	TraceID    string            `yaml:"trace_id"`
	Vendor     string            `yaml:"vendor"`
	Amount     string            `yaml:"amount"`
	Category   string            `yaml:"category"`
	Confidence float64           `yaml:"confidence"`
	Tags       map[string]string `yaml:"tags"`
}

// readProposalFile reads a single proposal or a list of proposals.
func readProposalFile(path string) ([]models.ProposedEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read proposal file: %w", err)
	}
	entries, err := parseProposals(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return entries, nil
}

func parseProposals(data []byte) ([]models.ProposedEntry, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse proposals: %w", err)
	}
	if len(doc.Content) == 0 {
		return nil, nil
	}

	var raw []proposal
	root := doc.Content[0]
	if root.Kind == yaml.SequenceNode {
		if err := root.Decode(&raw); err != nil {
			return nil, fmt.Errorf("failed to decode proposals: %w", err)
		}
	} else {
		var single proposal
		if err := root.Decode(&single); err != nil {
			return nil, fmt.Errorf("failed to decode proposal: %w", err)
		}
		raw = append(raw, single)
	}

	entries := make([]models.ProposedEntry, 0, len(raw))
	for i, p := range raw {
		amount, err := decimal.NewFromString(p.Amount)
		if err != nil {
			return nil, fmt.Errorf("proposal %d: invalid amount %q: %w", i, p.Amount, err)
		}
		entries = append(entries, models.ProposedEntry{
			TraceID:    p.TraceID,
			Vendor:     p.Vendor,
			Amount:     amount,
			Category:   p.Category,
			Confidence: p.Confidence,
			Tags:       p.Tags,
		})
	}
	return entries, nil
}
